package models

import "fmt"

// Record is one row. Values are positional against the owning ManyRecords'
// FieldNames. ParentID is set by nested reads.
type Record struct {
	Values   []Value
	ParentID *RecordProjection
}

// NewRecord builds a record from positional values.
func NewRecord(values ...Value) Record {
	return Record{Values: values}
}

// Clone copies the values and parent id so the copy can be reassigned.
func (r Record) Clone() Record {
	out := Record{Values: append([]Value(nil), r.Values...)}
	if r.ParentID != nil {
		p := r.ParentID.Clone()
		out.ParentID = &p
	}
	return out
}

// SetParentID assigns the parent the record was read for.
func (r *Record) SetParentID(parent RecordProjection) {
	r.ParentID = &parent
}

// FieldValue looks a column value up by name.
func (r Record) FieldValue(fieldNames []string, name string) (Value, error) {
	for i, n := range fieldNames {
		if n == name {
			if i >= len(r.Values) {
				break
			}
			return r.Values[i], nil
		}
	}
	return nil, &FieldNotFoundError{Name: name, Model: fmt.Sprintf("record with fields %v", fieldNames)}
}

// Projection extracts the values of the projection's columns.
func (r Record) Projection(fieldNames []string, mp ModelProjection) (RecordProjection, error) {
	ds := mp.DataSourceFields()
	pairs := make([]Pair, 0, len(ds))
	for _, f := range ds {
		v, err := r.FieldValue(fieldNames, f.Name)
		if err != nil {
			return RecordProjection{}, err
		}
		pairs = append(pairs, Pair{Field: f, Value: v})
	}
	return RecordProjection{Pairs: pairs}, nil
}

// ManyRecords is an ordered result set sharing one column layout.
type ManyRecords struct {
	FieldNames []string
	Records    []Record
}

// NewManyRecords returns an empty result set with the given columns.
func NewManyRecords(fieldNames []string) ManyRecords {
	return ManyRecords{FieldNames: fieldNames}
}

func (m *ManyRecords) Len() int { return len(m.Records) }

// Push appends a record.
func (m *ManyRecords) Push(r Record) {
	m.Records = append(m.Records, r)
}

// Reverse reverses record order in place.
func (m *ManyRecords) Reverse() {
	for i, j := 0, len(m.Records)-1; i < j; i, j = i+1, j-1 {
		m.Records[i], m.Records[j] = m.Records[j], m.Records[i]
	}
}

// Projections extracts mp from every record.
func (m ManyRecords) Projections(mp ModelProjection) ([]RecordProjection, error) {
	out := make([]RecordProjection, 0, len(m.Records))
	for _, r := range m.Records {
		rp, err := r.Projection(m.FieldNames, mp)
		if err != nil {
			return nil, err
		}
		out = append(out, rp)
	}
	return out, nil
}

// AsMaps renders each record as a column-keyed map.
func (m ManyRecords) AsMaps() []map[string]Value {
	out := make([]map[string]Value, 0, len(m.Records))
	for _, r := range m.Records {
		row := make(map[string]Value, len(m.FieldNames))
		for i, name := range m.FieldNames {
			if i < len(r.Values) {
				row[name] = r.Values[i]
			}
		}
		out = append(out, row)
	}
	return out
}

// SingleRecord is a record together with its column layout.
type SingleRecord struct {
	FieldNames []string
	Record     Record
}

// Projection extracts mp from the record.
func (s SingleRecord) Projection(mp ModelProjection) (RecordProjection, error) {
	return s.Record.Projection(s.FieldNames, mp)
}
