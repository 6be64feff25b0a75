package querygraph

import "fmt"

// RecordsNotConnectedError reports that fewer (or more) children were
// connected to a parent than the request named.
type RecordsNotConnectedError struct {
	RelationName string
	ParentName   string
	ChildName    string
	Expected     int
	Found        int
}

func (e *RecordsNotConnectedError) Error() string {
	return fmt.Sprintf(
		"the records for relation `%s` between the `%s` and `%s` models are not connected (expected %d, found %d)",
		e.RelationName, e.ParentName, e.ChildName, e.Expected, e.Found,
	)
}

// AssertionError reports a violated assumption about the graph's state.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return "assertion error: " + e.Message
}
