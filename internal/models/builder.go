package models

import (
	"errors"
	"fmt"
)

// Schema is the declarative input used to build an InternalDataModel.
type Schema struct {
	Models    []ModelTemplate
	Relations []RelationTemplate
}

// ModelTemplate declares a model.
type ModelTemplate struct {
	Name   string
	DBName string
	Fields []ScalarFieldTemplate
	// PrimaryKey lists field names forming the identifier. When empty the
	// fields flagged IsID are used.
	PrimaryKey []string
}

// ScalarFieldTemplate declares a scalar field.
type ScalarFieldTemplate struct {
	Name       string
	DBName     string
	Type       TypeIdentifier
	IsID       bool
	IsRequired bool
	IsUnique   bool
}

// RelationTemplate declares a relation and both of its fields.
type RelationTemplate struct {
	Name string

	ModelA         string
	FieldA         string
	FieldAIsList   bool
	FieldARequired bool

	ModelB         string
	FieldB         string
	FieldBIsList   bool
	FieldBRequired bool

	// Inline names the side whose table holds ReferencingColumns.
	Inline             RelationSide
	ReferencingColumns []string
	// ReferencedFields are scalar fields of the other side; defaults to its
	// primary identifier.
	ReferencedFields []string

	JoinTable    string
	JoinColumnsA []string
	JoinColumnsB []string
}

// Build validates a schema and materializes the model arena.
func Build(schema Schema) (*InternalDataModel, error) {
	dm := &InternalDataModel{byName: make(map[string]ModelID, len(schema.Models))}

	for i, tmpl := range schema.Models {
		if tmpl.Name == "" {
			return nil, fmt.Errorf("model %d has no name", i)
		}
		if _, dup := dm.byName[tmpl.Name]; dup {
			return nil, fmt.Errorf("duplicate model %q", tmpl.Name)
		}
		m := &Model{ID: ModelID(i), Name: tmpl.Name, DBName: tmpl.DBName, dm: dm}
		if m.DBName == "" {
			m.DBName = tmpl.Name
		}
		for _, ft := range tmpl.Fields {
			sf := &ScalarField{
				name:       ft.Name,
				dbName:     ft.DBName,
				Type:       ft.Type,
				IsID:       ft.IsID,
				IsRequired: ft.IsRequired || ft.IsID,
				IsUnique:   ft.IsUnique,
				model:      m.ID,
			}
			if sf.dbName == "" {
				sf.dbName = ft.Name
			}
			m.scalarFields = append(m.scalarFields, sf)
		}
		id, err := primaryIdentifier(m, tmpl.PrimaryKey)
		if err != nil {
			return nil, err
		}
		m.primaryIdentifier = id
		dm.byName[m.Name] = m.ID
		dm.models = append(dm.models, m)
	}

	for i, tmpl := range schema.Relations {
		if err := addRelation(dm, i, tmpl); err != nil {
			return nil, fmt.Errorf("relation %q: %w", tmpl.Name, err)
		}
	}
	return dm, nil
}

func primaryIdentifier(m *Model, names []string) (ModelProjection, error) {
	var fields []Field
	if len(names) > 0 {
		for _, name := range names {
			sf, err := m.FindScalarField(name)
			if err != nil {
				return ModelProjection{}, err
			}
			sf.IsID = true
			sf.IsRequired = true
			fields = append(fields, sf)
		}
		return NewModelProjection(fields...), nil
	}
	for _, sf := range m.scalarFields {
		if sf.IsID {
			fields = append(fields, sf)
		}
	}
	if len(fields) == 0 {
		return ModelProjection{}, fmt.Errorf("model %q has no primary identifier", m.Name)
	}
	return NewModelProjection(fields...), nil
}

func addRelation(dm *InternalDataModel, idx int, tmpl RelationTemplate) error {
	a, err := dm.FindModel(tmpl.ModelA)
	if err != nil {
		return err
	}
	b, err := dm.FindModel(tmpl.ModelB)
	if err != nil {
		return err
	}
	if tmpl.FieldA == "" || tmpl.FieldB == "" {
		return errors.New("both relation fields must be named")
	}
	if a.ID == b.ID && tmpl.FieldA == tmpl.FieldB {
		return errors.New("self relation needs two distinct field names")
	}

	rel := &Relation{ID: idx, Name: tmpl.Name, ModelA: a.ID, FieldA: tmpl.FieldA, ModelB: b.ID, FieldB: tmpl.FieldB}
	fieldA := &RelationField{name: tmpl.FieldA, model: a.ID, relatedModel: b.ID, relation: rel, IsList: tmpl.FieldAIsList, IsRequired: tmpl.FieldARequired, dm: dm}
	fieldB := &RelationField{name: tmpl.FieldB, model: b.ID, relatedModel: a.ID, relation: rel, IsList: tmpl.FieldBIsList, IsRequired: tmpl.FieldBRequired, dm: dm}

	switch {
	case tmpl.JoinTable != "":
		if len(tmpl.JoinColumnsA) != a.primaryIdentifier.DBLen() || len(tmpl.JoinColumnsB) != b.primaryIdentifier.DBLen() {
			return errors.New("join table columns must match both primary identifiers")
		}
		rel.Manifestation = &JoinTableRelation{Table: tmpl.JoinTable, ModelAColumns: tmpl.JoinColumnsA, ModelBColumns: tmpl.JoinColumnsB}
		fieldA.linkingFields = a.primaryIdentifier
		fieldB.linkingFields = b.primaryIdentifier
	case tmpl.Inline == SideA || tmpl.Inline == SideB:
		holder, holderField, other, otherField := a, fieldA, b, fieldB
		if tmpl.Inline == SideB {
			holder, holderField, other, otherField = b, fieldB, a, fieldA
		}
		referenced, err := referencedFields(other, tmpl.ReferencedFields)
		if err != nil {
			return err
		}
		if len(tmpl.ReferencingColumns) != referenced.DBLen() {
			return fmt.Errorf("%d referencing columns for %d referenced columns", len(tmpl.ReferencingColumns), referenced.DBLen())
		}
		refNames := make([]string, 0, referenced.Len())
		for _, f := range referenced.Fields() {
			refNames = append(refNames, f.Name())
		}
		rel.Manifestation = &InlineRelation{InTableOf: holder.ID, Side: tmpl.Inline, ReferencingColumns: tmpl.ReferencingColumns, ReferencedFields: refNames}

		refDS := referenced.DataSourceFields()
		for i, col := range tmpl.ReferencingColumns {
			holderField.dataSourceFields = append(holderField.dataSourceFields, DataSourceField{
				Name:       col,
				Type:       refDS[i].Type,
				IsRequired: holderField.IsRequired,
				Model:      holder.ID,
			})
		}
		holderField.linkingFields = NewModelProjection(holderField)
		otherField.linkingFields = referenced
	default:
		return errors.New("relation must be inlined on one side or use a join table")
	}

	a.relationFields = append(a.relationFields, fieldA)
	b.relationFields = append(b.relationFields, fieldB)
	dm.relations = append(dm.relations, rel)
	return nil
}

func referencedFields(m *Model, names []string) (ModelProjection, error) {
	if len(names) == 0 {
		return m.primaryIdentifier, nil
	}
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		sf, err := m.FindScalarField(name)
		if err != nil {
			return ModelProjection{}, err
		}
		fields = append(fields, sf)
	}
	return NewModelProjection(fields...), nil
}
