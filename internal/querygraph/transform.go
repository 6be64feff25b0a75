package querygraph

import (
	"fmt"

	"query-engine/internal/filter"
	"query-engine/internal/models"
	"query-engine/internal/queryast"
)

// TransformKind names a transform applied along a ParentProjection edge.
type TransformKind string

const (
	// FilterByParentIDs ANDs the ids into the target's filter.
	FilterByParentIDs TransformKind = "filter_by_parent_ids"
	// FilterByParentIDsExpectingCount is FilterByParentIDs that first
	// requires exactly Expected ids.
	FilterByParentIDsExpectingCount TransformKind = "filter_by_parent_ids_expecting_count"
	// FilterBySingleParentID narrows the target to the last id.
	FilterBySingleParentID TransformKind = "filter_by_single_parent_id"
	// ParentProjectionsForRelatedRead hands the ids to a related read.
	ParentProjectionsForRelatedRead TransformKind = "parent_projections_for_related_read"
	// DeletionCheckIDs hands the ids to a deletion check.
	DeletionCheckIDs TransformKind = "deletion_check_ids"
)

// Transform describes how parent ids modify a node.
type Transform struct {
	Kind         TransformKind `json:"kind"`
	Expected     int           `json:"expected,omitempty"`
	RelationName string        `json:"relation_name,omitempty"`
	ParentName   string        `json:"parent_name,omitempty"`
	ChildName    string        `json:"child_name,omitempty"`
}

// Apply runs the transform against node using ids extracted from the
// source node's result.
func (t Transform) Apply(node Node, ids []models.RecordProjection) error {
	switch t.Kind {
	case FilterByParentIDs:
		f, err := filterable(node, t.Kind)
		if err != nil {
			return err
		}
		f.AddFilter(filter.FromProjections(ids))
		return nil

	case FilterByParentIDsExpectingCount:
		if len(ids) != t.Expected {
			return &RecordsNotConnectedError{
				RelationName: t.RelationName,
				ParentName:   t.ParentName,
				ChildName:    t.ChildName,
				Expected:     t.Expected,
				Found:        len(ids),
			}
		}
		f, err := filterable(node, t.Kind)
		if err != nil {
			return err
		}
		f.AddFilter(filter.FromProjections(ids))
		return nil

	case FilterBySingleParentID:
		if len(ids) == 0 {
			return &AssertionError{Message: "Expected a valid parent ID to be present for a nested delete on a one-to-many relation."}
		}
		f, err := filterable(node, t.Kind)
		if err != nil {
			return err
		}
		f.AddFilter(filter.FromProjection(ids[len(ids)-1]))
		return nil

	case ParentProjectionsForRelatedRead:
		qn, ok := node.(*QueryNode)
		if !ok {
			return mismatch(node, t.Kind)
		}
		rq, ok := qn.Query.(*queryast.RelatedRecordsQuery)
		if !ok {
			return mismatch(node, t.Kind)
		}
		rq.ParentProjections = ids
		return nil

	case DeletionCheckIDs:
		cn, ok := node.(*CheckNode)
		if !ok {
			return mismatch(node, t.Kind)
		}
		cn.IDs = ids
		return nil

	default:
		return &AssertionError{Message: fmt.Sprintf("unknown transform %q", t.Kind)}
	}
}

func filterable(node Node, kind TransformKind) (queryast.Filterable, error) {
	qn, ok := node.(*QueryNode)
	if !ok {
		return nil, mismatch(node, kind)
	}
	f, ok := qn.Query.(queryast.Filterable)
	if !ok {
		return nil, mismatch(node, kind)
	}
	return f, nil
}

func mismatch(node Node, kind TransformKind) error {
	return &AssertionError{Message: fmt.Sprintf("transform %s cannot be applied to %s", kind, node)}
}
