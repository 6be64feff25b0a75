package models

import "fmt"

// TypeIdentifier classifies the value type stored by a column.
type TypeIdentifier int

const (
	TypeString TypeIdentifier = iota
	TypeInt
	TypeFloat
	TypeDecimal
	TypeBoolean
	TypeDateTime
	TypeUUID
	TypeJSON
	TypeBytes
	TypeEnum
)

func (t TypeIdentifier) String() string {
	switch t {
	case TypeString:
		return "String"
	case TypeInt:
		return "Int"
	case TypeFloat:
		return "Float"
	case TypeDecimal:
		return "Decimal"
	case TypeBoolean:
		return "Boolean"
	case TypeDateTime:
		return "DateTime"
	case TypeUUID:
		return "UUID"
	case TypeJSON:
		return "Json"
	case TypeBytes:
		return "Bytes"
	case TypeEnum:
		return "Enum"
	default:
		return fmt.Sprintf("TypeIdentifier(%d)", int(t))
	}
}

// DataSourceField is one physical column.
type DataSourceField struct {
	Name       string
	Type       TypeIdentifier
	IsRequired bool
	Model      ModelID
}

// Field is a logical model field backed by zero or more columns.
type Field interface {
	Name() string
	ModelID() ModelID
	DataSourceFields() []DataSourceField
}

// ScalarField maps to exactly one column.
type ScalarField struct {
	name       string
	dbName     string
	Type       TypeIdentifier
	IsID       bool
	IsRequired bool
	IsUnique   bool
	model      ModelID
}

func (sf *ScalarField) Name() string     { return sf.name }
func (sf *ScalarField) DBName() string   { return sf.dbName }
func (sf *ScalarField) ModelID() ModelID { return sf.model }

// DataSourceField returns the single column backing the field.
func (sf *ScalarField) DataSourceField() DataSourceField {
	return DataSourceField{Name: sf.dbName, Type: sf.Type, IsRequired: sf.IsRequired, Model: sf.model}
}

func (sf *ScalarField) DataSourceFields() []DataSourceField {
	return []DataSourceField{sf.DataSourceField()}
}

// Unique reports whether the field alone identifies a record.
func (sf *ScalarField) Unique() bool {
	return sf.IsUnique || sf.IsID
}

// RelationField is one side of a relation.
type RelationField struct {
	name         string
	model        ModelID
	relatedModel ModelID
	relation     *Relation
	IsList       bool
	IsRequired   bool

	dataSourceFields []DataSourceField
	linkingFields    ModelProjection
	dm               *InternalDataModel
}

func (rf *RelationField) Name() string     { return rf.name }
func (rf *RelationField) ModelID() ModelID { return rf.model }

// DataSourceFields returns the FK columns when the relation is inlined on
// this field's model, and nothing otherwise.
func (rf *RelationField) DataSourceFields() []DataSourceField {
	return rf.dataSourceFields
}

// Relation returns the relation this field belongs to.
func (rf *RelationField) Relation() *Relation {
	return rf.relation
}

// Model resolves the model declaring this field.
func (rf *RelationField) Model() (*Model, error) {
	return rf.dm.Model(rf.model)
}

// RelatedModelID returns the handle of the model on the other side.
func (rf *RelationField) RelatedModelID() ModelID {
	return rf.relatedModel
}

// RelatedModel resolves the model on the other side of the relation.
func (rf *RelationField) RelatedModel() (*Model, error) {
	return rf.dm.Model(rf.relatedModel)
}

// RelatedField resolves the opposite relation field.
func (rf *RelationField) RelatedField() (*RelationField, error) {
	related, err := rf.RelatedModel()
	if err != nil {
		return nil, err
	}
	name := rf.relation.FieldB
	if rf.relation.FieldA != rf.name || rf.relation.ModelA != rf.model {
		name = rf.relation.FieldA
	}
	return related.FindRelationField(name)
}

// IsInlinedOnEnclosingModel reports whether the FK columns live on this
// field's own table.
func (rf *RelationField) IsInlinedOnEnclosingModel() bool {
	inline, ok := rf.relation.Manifestation.(*InlineRelation)
	if !ok {
		return false
	}
	if rf.relation.ModelA == rf.relation.ModelB {
		// Self relation: the inlined side is the one owning the FK columns.
		return len(rf.dataSourceFields) > 0
	}
	return inline.InTableOf == rf.model
}

// IsManyToMany reports whether the relation is backed by a join table.
func (rf *RelationField) IsManyToMany() bool {
	return rf.relation.IsManyToMany()
}

// LinkingFields returns the fields of this field's model used to join with
// the other side: the FK itself when inlined here, otherwise the fields the
// opposite FK references.
func (rf *RelationField) LinkingFields() ModelProjection {
	return rf.linkingFields
}

func (rf *RelationField) String() string {
	return rf.name
}
