// Package graphbuilder turns request documents into query graphs.
package graphbuilder

import (
	"fmt"

	"query-engine/internal/connector"
	"query-engine/internal/filter"
	"query-engine/internal/models"
	"query-engine/internal/queryast"
	"query-engine/internal/querygraph"
)

const findChildrenByParentName = "find_children_by_parent"

// InsertFindChildrenByParentNode adds a read of the related records of
// every parent produced by parent. The parent's primary identifier and the
// field's linking fields are handed to the read through the new edge.
func InsertFindChildrenByParentNode(g *querygraph.Graph, parent querygraph.NodeRef, field *models.RelationField, f filter.Filter) (querygraph.NodeRef, error) {
	parentModel, err := field.Model()
	if err != nil {
		return 0, err
	}
	childModel, err := field.RelatedModel()
	if err != nil {
		return 0, err
	}
	related, err := field.RelatedField()
	if err != nil {
		return 0, err
	}
	projection := parentModel.PrimaryIdentifier().Merge(field.LinkingFields())

	read := g.CreateQueryNode(&queryast.RelatedRecordsQuery{
		Name:           findChildrenByParentName,
		ParentField:    field,
		Args:           connector.QueryArguments{Filter: f},
		SelectedFields: connector.FromProjection(childModel.PrimaryIdentifier().Merge(related.LinkingFields())),
	})
	_, err = g.CreateEdge(parent, read, &querygraph.ParentProjection{
		Projection: projection,
		Transform:  querygraph.Transform{Kind: querygraph.ParentProjectionsForRelatedRead},
	})
	if err != nil {
		return 0, fmt.Errorf("connect %s: %w", findChildrenByParentName, err)
	}
	return read, nil
}

// InsertDeletionChecks places a check between find and del that fails when
// a record found by find is still required by another model. Nothing is
// inserted when no relation requires model.
func InsertDeletionChecks(g *querygraph.Graph, model *models.Model, find, del querygraph.NodeRef) error {
	requiring := model.DataModel().FieldsRequiringModel(model.ID)
	if len(requiring) == 0 {
		return nil
	}

	projection := model.PrimaryIdentifier()
	for _, rf := range requiring {
		referenced, err := rf.RelatedField()
		if err != nil {
			return err
		}
		projection = projection.Merge(referenced.LinkingFields())
	}
	if err := widenSelection(g, find, projection); err != nil {
		return err
	}

	check := g.CreateNode(&querygraph.CheckNode{Model: model})
	if _, err := g.CreateEdge(find, check, &querygraph.ParentProjection{
		Projection: projection,
		Transform:  querygraph.Transform{Kind: querygraph.DeletionCheckIDs},
	}); err != nil {
		return err
	}
	_, err := g.CreateEdge(check, del, querygraph.ExecutionOrder{})
	return err
}

// widenSelection makes a read node return the columns of mp.
func widenSelection(g *querygraph.Graph, ref querygraph.NodeRef, mp models.ModelProjection) error {
	node, err := g.Node(ref)
	if err != nil {
		return err
	}
	qn, ok := node.(*querygraph.QueryNode)
	if !ok {
		return nil
	}
	switch q := qn.Query.(type) {
	case *queryast.RelatedRecordsQuery:
		q.SelectedFields = q.SelectedFields.Merge(mp)
	case *queryast.ManyRecordsQuery:
		q.SelectedFields = q.SelectedFields.Merge(mp)
	case *queryast.RecordQuery:
		q.SelectedFields = q.SelectedFields.Merge(mp)
	}
	return nil
}
