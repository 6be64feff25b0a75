// Package models holds the read-only data model consumed by the query engine:
// models, scalar and relation fields, relations, and the projection and record
// types built on top of them.
//
// Models live in an arena owned by InternalDataModel. Fields refer back to their
// model through a ModelID handle; resolving a handle is a bounds-checked lookup.
package models

import (
	"fmt"
	"sort"
	"strings"
)

// ModelID is a stable handle into the InternalDataModel arena.
type ModelID int

// InternalDataModel owns every model and relation of a schema.
type InternalDataModel struct {
	models    []*Model
	relations []*Relation
	byName    map[string]ModelID
}

// Models returns all models in declaration order.
func (dm *InternalDataModel) Models() []*Model {
	return dm.models
}

// Relations returns all relations in declaration order.
func (dm *InternalDataModel) Relations() []*Relation {
	return dm.relations
}

// Model resolves a model handle.
func (dm *InternalDataModel) Model(id ModelID) (*Model, error) {
	if dm == nil || int(id) < 0 || int(id) >= len(dm.models) {
		return nil, fmt.Errorf("%w: handle %d", ErrModelNotFound, id)
	}
	return dm.models[id], nil
}

// FindModel looks a model up by name.
func (dm *InternalDataModel) FindModel(name string) (*Model, error) {
	if dm == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	id, ok := dm.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	return dm.models[id], nil
}

// RelationFieldsReferencing returns the relation fields of other models whose
// relation targets the given model, sorted by model and field name.
func (dm *InternalDataModel) RelationFieldsReferencing(id ModelID) []*RelationField {
	var out []*RelationField
	for _, m := range dm.models {
		for _, rf := range m.relationFields {
			if rf.relatedModel == id {
				out = append(out, rf)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].model != out[j].model {
			return out[i].model < out[j].model
		}
		return out[i].name < out[j].name
	})
	return out
}

// FieldsRequiringModel returns the required singular relation fields whose
// FK columns live on their own model and point at the given model. Records
// referenced through them cannot be deleted without orphaning the referrer.
func (dm *InternalDataModel) FieldsRequiringModel(id ModelID) []*RelationField {
	var out []*RelationField
	for _, rf := range dm.RelationFieldsReferencing(id) {
		if rf.IsRequired && !rf.IsList && rf.IsInlinedOnEnclosingModel() {
			out = append(out, rf)
		}
	}
	return out
}

// Model is a named record type backed by a table.
type Model struct {
	ID     ModelID
	Name   string
	DBName string

	scalarFields      []*ScalarField
	relationFields    []*RelationField
	primaryIdentifier ModelProjection
	dm                *InternalDataModel
}

// ScalarFields returns the model's scalar fields in column order.
func (m *Model) ScalarFields() []*ScalarField {
	return m.scalarFields
}

// RelationFields returns the model's relation fields.
func (m *Model) RelationFields() []*RelationField {
	return m.relationFields
}

// DataModel returns the arena that owns the model.
func (m *Model) DataModel() *InternalDataModel {
	return m.dm
}

// PrimaryIdentifier returns the fields identifying a record of this model.
func (m *Model) PrimaryIdentifier() ModelProjection {
	return m.primaryIdentifier
}

// FindScalarField returns the scalar field with the given name.
func (m *Model) FindScalarField(name string) (*ScalarField, error) {
	for _, sf := range m.scalarFields {
		if sf.name == name {
			return sf, nil
		}
	}
	return nil, &FieldNotFoundError{Name: name, Model: m.Name}
}

// FindScalarFieldByDBName returns the scalar field backed by the given column.
func (m *Model) FindScalarFieldByDBName(column string) (*ScalarField, error) {
	for _, sf := range m.scalarFields {
		if sf.dbName == column {
			return sf, nil
		}
	}
	return nil, &FieldNotFoundError{Name: column, Model: m.Name}
}

// FindRelationField returns the relation field with the given name.
func (m *Model) FindRelationField(name string) (*RelationField, error) {
	for _, rf := range m.relationFields {
		if rf.name == name {
			return rf, nil
		}
	}
	return nil, &FieldNotFoundError{Name: name, Model: m.Name}
}

// FindField resolves a scalar or relation field by name.
func (m *Model) FindField(name string) (Field, error) {
	if sf, err := m.FindScalarField(name); err == nil {
		return sf, nil
	}
	if rf, err := m.FindRelationField(name); err == nil {
		return rf, nil
	}
	return nil, &FieldNotFoundError{Name: name, Model: m.Name}
}

// ResolveCompoundField resolves a compound selector such as "authorId_slug"
// to the fields of the primary identifier it names.
func (m *Model) ResolveCompoundField(name string) ([]Field, bool) {
	id := m.primaryIdentifier
	if id.Len() < 2 {
		return nil, false
	}
	names := make([]string, 0, id.Len())
	for _, f := range id.Fields() {
		names = append(names, f.Name())
	}
	if strings.Join(names, "_") != name {
		return nil, false
	}
	return id.Fields(), true
}

func (m *Model) String() string {
	return m.Name
}
