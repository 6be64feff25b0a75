package graphbuilder

import (
	"fmt"

	"query-engine/internal/filter"
	"query-engine/internal/models"
	"query-engine/internal/queryast"
	"query-engine/internal/querygraph"
)

// ConnectNestedDelete deletes related records of the parent.
//
// For a list relation value is a list of unique selectors; the selected
// records must all be connected to the parent or the graph fails with
// RecordsNotConnectedError. For a singular relation value is a boolean and
// true deletes the one connected record.
func ConnectNestedDelete(g *querygraph.Graph, parent querygraph.NodeRef, field *models.RelationField, value any) error {
	childModel, err := field.RelatedModel()
	if err != nil {
		return err
	}
	parentModel, err := field.Model()
	if err != nil {
		return err
	}
	childID := childModel.PrimaryIdentifier()
	path := field.Name() + ".delete"

	if field.IsList {
		var filters []filter.Filter
		for i, item := range coerceList(value) {
			selector, ok := item.(map[string]any)
			if !ok || selector == nil {
				return inputErrorf(fmt.Sprintf("%s[%d]", path, i), "expected a unique selector object")
			}
			if len(selector) != 1 {
				return inputErrorf(fmt.Sprintf("%s[%d]", path, i), "expected exactly one unique field, got %d", len(selector))
			}
			f, err := ExtractUniqueFilter(selector, childModel)
			if err != nil {
				return err
			}
			filters = append(filters, f)
		}

		orFilter := filter.Or(filters...)
		deleteMany := g.CreateQueryNode(&queryast.DeleteManyRecords{Model: childModel, Where: orFilter})
		find, err := InsertFindChildrenByParentNode(g, parent, field, orFilter)
		if err != nil {
			return err
		}
		if err := InsertDeletionChecks(g, childModel, find, deleteMany); err != nil {
			return err
		}
		_, err = g.CreateEdge(find, deleteMany, &querygraph.ParentProjection{
			Projection: childID,
			Transform: querygraph.Transform{
				Kind:         querygraph.FilterByParentIDsExpectingCount,
				Expected:     len(filters),
				RelationName: field.Relation().Name,
				ParentName:   parentModel.Name,
				ChildName:    childModel.Name,
			},
		})
		return err
	}

	shouldDelete, ok := value.(bool)
	if !ok {
		return inputErrorf(path, "expected a boolean for a singular relation")
	}
	if !shouldDelete {
		return nil
	}

	find, err := InsertFindChildrenByParentNode(g, parent, field, filter.Empty())
	if err != nil {
		return err
	}
	deleteOne := g.CreateQueryNode(&queryast.DeleteRecord{Model: childModel})
	if err := InsertDeletionChecks(g, childModel, find, deleteOne); err != nil {
		return err
	}
	_, err = g.CreateEdge(find, deleteOne, &querygraph.ParentProjection{
		Projection: childID,
		Transform:  querygraph.Transform{Kind: querygraph.FilterBySingleParentID},
	})
	return err
}

// ConnectNestedDeleteMany deletes, per filter, the related records of the
// parent matching it. Matching nothing is not an error.
func ConnectNestedDeleteMany(g *querygraph.Graph, parent querygraph.NodeRef, field *models.RelationField, value any) error {
	childModel, err := field.RelatedModel()
	if err != nil {
		return err
	}
	childID := childModel.PrimaryIdentifier()

	for i, item := range coerceList(value) {
		where, ok := item.(map[string]any)
		if !ok {
			return inputErrorf(fmt.Sprintf("%s.deleteMany[%d]", field.Name(), i), "expected a filter object")
		}
		f, err := ExtractFilter(where, childModel)
		if err != nil {
			return err
		}

		find, err := InsertFindChildrenByParentNode(g, parent, field, f)
		if err != nil {
			return err
		}
		deleteMany := g.CreateQueryNode(&queryast.DeleteManyRecords{Model: childModel, Where: f})
		if err := InsertDeletionChecks(g, childModel, find, deleteMany); err != nil {
			return err
		}
		if _, err := g.CreateEdge(find, deleteMany, &querygraph.ParentProjection{
			Projection: childID,
			Transform:  querygraph.Transform{Kind: querygraph.FilterByParentIDs},
		}); err != nil {
			return err
		}
	}
	return nil
}

func coerceList(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}
