package models

// RelationSide names one side of a relation.
type RelationSide int

const (
	SideNone RelationSide = iota
	SideA
	SideB
)

// Relation connects two relation fields.
type Relation struct {
	ID     int
	Name   string
	ModelA ModelID
	FieldA string
	ModelB ModelID
	FieldB string

	Manifestation RelationManifestation
}

// RelationManifestation describes how a relation is stored.
type RelationManifestation interface {
	isManifestation()
}

// InlineRelation stores FK columns on one of the two models.
type InlineRelation struct {
	InTableOf          ModelID
	Side               RelationSide
	ReferencingColumns []string
	ReferencedFields   []string
}

// JoinTableRelation stores pairs in a dedicated join table.
type JoinTableRelation struct {
	Table         string
	ModelAColumns []string
	ModelBColumns []string
}

func (*InlineRelation) isManifestation()    {}
func (*JoinTableRelation) isManifestation() {}

// IsManyToMany reports whether the relation uses a join table.
func (r *Relation) IsManyToMany() bool {
	_, ok := r.Manifestation.(*JoinTableRelation)
	return ok
}

// JoinColumnsFor returns the join table columns pointing at the model on the
// given side.
func (r *Relation) JoinColumnsFor(side RelationSide) []string {
	jt, ok := r.Manifestation.(*JoinTableRelation)
	if !ok {
		return nil
	}
	if side == SideA {
		return jt.ModelAColumns
	}
	return jt.ModelBColumns
}

// SideOf reports which side the given relation field sits on.
func (r *Relation) SideOf(rf *RelationField) RelationSide {
	if rf.model == r.ModelA && rf.name == r.FieldA {
		return SideA
	}
	if rf.model == r.ModelB && rf.name == r.FieldB {
		return SideB
	}
	return SideNone
}
