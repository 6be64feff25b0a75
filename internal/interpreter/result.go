package interpreter

import (
	"query-engine/internal/cursor"
	"query-engine/internal/models"
	"query-engine/internal/querygraph"
)

// CursorKey is the rendered key of a record's opaque cursor.
const CursorKey = "_cursor"

// ReadResult holds the records of a read and of the reads nested in it.
// Nested records carry the id of the parent they belong to. With Cursors
// set every rendered record carries its opaque cursor under CursorKey.
type ReadResult struct {
	Name    string
	Model   *models.Model
	Field   *models.RelationField
	Single  bool
	Cursors bool
	Records models.ManyRecords
	Nested  []*ReadResult
}

// Render converts the records to plain maps keyed by field name, attaching
// nested records to their parents.
func (r *ReadResult) Render() (any, error) {
	rows, err := r.renderRecords(r.Records.Records)
	if err != nil {
		return nil, err
	}
	if r.Single {
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

func (r *ReadResult) renderRecords(records []models.Record) ([]map[string]any, error) {
	var rows []map[string]any
	names := r.fieldNames()

	// Nested records grouped by the key of their parent.
	children := make([]map[string][]models.Record, len(r.Nested))
	for idx, nested := range r.Nested {
		groups := make(map[string][]models.Record)
		for _, child := range nested.Records.Records {
			if child.ParentID == nil {
				continue
			}
			key := child.ParentID.Key()
			groups[key] = append(groups[key], child)
		}
		children[idx] = groups
	}

	for _, record := range records {
		row := make(map[string]any, len(names)+len(r.Nested)+1)
		for idx, name := range names {
			if idx < len(record.Values) {
				row[name] = record.Values[idx]
			}
		}
		if len(r.Nested) == 0 && !r.Cursors {
			rows = append(rows, row)
			continue
		}

		id, err := record.Projection(r.Records.FieldNames, r.Model.PrimaryIdentifier())
		if err != nil {
			return nil, err
		}
		if r.Cursors {
			row[CursorKey] = cursor.Encode(r.Model, id)
		}
		key := id.Key()
		for idx, nested := range r.Nested {
			rendered, err := nested.renderRecords(children[idx][key])
			if err != nil {
				return nil, err
			}
			row[nested.Name] = nested.shape(rendered)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// shape renders a to-one relation as a single object or nil.
func (r *ReadResult) shape(rows []map[string]any) any {
	if r.Field != nil && !r.Field.IsList {
		if len(rows) == 0 {
			return nil
		}
		return rows[0]
	}
	if rows == nil {
		return []map[string]any{}
	}
	return rows
}

func (r *ReadResult) fieldNames() []string {
	names := make([]string, len(r.Records.FieldNames))
	for idx, column := range r.Records.FieldNames {
		names[idx] = column
		if sf, err := r.Model.FindScalarFieldByDBName(column); err == nil {
			names[idx] = sf.Name()
		}
	}
	return names
}

// WriteResult reports the number of records a write affected.
type WriteResult struct {
	Model *models.Model
	Count int64
}

func (w *WriteResult) Render() (any, error) {
	return map[string]any{"count": w.Count}, nil
}

type resultEntry struct {
	node   querygraph.NodeRef
	name   string
	result any
}

// ResultSet holds the results of the nodes marked as results, in graph
// order.
type ResultSet struct {
	entries []resultEntry
}

func (rs *ResultSet) add(ref querygraph.NodeRef, result any) {
	name := ""
	if read, ok := result.(*ReadResult); ok {
		name = read.Name
	}
	rs.entries = append(rs.entries, resultEntry{node: ref, name: name, result: result})
}

// Get returns the result of a node.
func (rs *ResultSet) Get(ref querygraph.NodeRef) (any, bool) {
	for _, e := range rs.entries {
		if e.node == ref {
			return e.result, true
		}
	}
	return nil, false
}

// Len returns the number of results.
func (rs *ResultSet) Len() int {
	return len(rs.entries)
}

// Data renders every result. Reads are keyed by their result name, other
// results by fallback.
func (rs *ResultSet) Data(fallback string) (map[string]any, error) {
	data := make(map[string]any, len(rs.entries))
	for _, e := range rs.entries {
		name := e.name
		if name == "" {
			name = fallback
		}

		var (
			rendered any
			err      error
		)
		switch res := e.result.(type) {
		case *ReadResult:
			rendered, err = res.Render()
		case *WriteResult:
			rendered, err = res.Render()
		}
		if err != nil {
			return nil, err
		}
		data[name] = rendered
	}
	return data, nil
}
