package interpreter

import (
	"context"
	"fmt"

	"query-engine/internal/filter"
	"query-engine/internal/models"
	"query-engine/internal/observability"
	"query-engine/internal/queryast"
)

// manyToMany resolves a relation backed by a join table. Every fetched
// child is assigned to each parent it is joined with, cloning the record
// for every parent past the first.
func (i *Interpreter) manyToMany(ctx context.Context, q *queryast.RelatedRecordsQuery, parent *models.ManyRecords, paginator NestedPagination) (models.ManyRecords, error) {
	parentField := q.ParentField
	related, err := parentField.RelatedField()
	if err != nil {
		return models.ManyRecords{}, err
	}
	childModel, err := parentField.RelatedModel()
	if err != nil {
		return models.ManyRecords{}, err
	}
	childLinkID := related.LinkingFields()

	// Join tables always reference the parent's primary identifier.
	parentIDs := q.ParentProjections
	if parentIDs == nil {
		parentModel, err := parentField.Model()
		if err != nil {
			return models.ManyRecords{}, err
		}
		parentIDs, err = parent.Projections(parentModel.PrimaryIdentifier())
		if err != nil {
			return models.ManyRecords{}, err
		}
	}

	ids, err := i.conn.GetRelatedM2MRecordIDs(ctx, parentField, parentIDs)
	if err != nil {
		return models.ManyRecords{}, err
	}

	childModelID := childModel.PrimaryIdentifier()
	childIDs := make([]models.RecordProjection, len(ids))
	for idx, ri := range ids {
		childIDs[idx], err = childModelID.Assimilate(ri.Child)
		if err != nil {
			return models.ManyRecords{}, err
		}
	}

	var linkFilter filter.Filter
	if childLinkID.DBLen() > 1 {
		linkFilter = filter.FromProjections(childIDs)
	} else {
		values := make([]models.Value, len(childIDs))
		for idx, id := range childIDs {
			values[idx] = id.Pairs[0].Value
		}
		linkFilter = filter.InValues(childLinkID.DataSourceFields()[0], values)
	}
	args := q.Args.WithoutPagination()
	args.Filter = filter.Merge(args.Filter, linkFilter)

	scalars, err := i.conn.GetManyRecords(ctx, childModel, args, q.SelectedFields.OnlyScalarAndInlined())
	if err != nil {
		return models.ManyRecords{}, err
	}

	// Child id to parent ids.
	idMap := make(map[string][]models.RecordProjection, len(ids))
	for idx, ri := range ids {
		key := childIDs[idx].Key()
		idMap[key] = append(idMap[key], ri.Parent)
	}

	// Clones follow their source record so every parent sees its children
	// in fetched order.
	expanded := make([]models.Record, 0, len(scalars.Records))
	var clones int
	for idx := range scalars.Records {
		record := &scalars.Records[idx]
		recordID, err := record.Projection(scalars.FieldNames, childModelID)
		if err != nil {
			return models.ManyRecords{}, err
		}
		key := recordID.Key()
		parents, ok := idMap[key]
		delete(idMap, key)
		if !ok || len(parents) == 0 {
			return models.ManyRecords{}, &InconsistencyError{
				Message: fmt.Sprintf("record %s of %s has no join table entry for %s", recordID, childModel.Name, parentField.Name()),
			}
		}

		first := parents[len(parents)-1]
		record.SetParentID(first)
		expanded = append(expanded, *record)
		for _, parentID := range parents[:len(parents)-1] {
			clone := record.Clone()
			clone.SetParentID(parentID)
			expanded = append(expanded, clone)
			clones++
		}
	}

	metrics := observability.EngineMetricsFromContext(ctx)
	metrics.RecordRecordsFetched(ctx, int64(scalars.Len()), "many_to_many")
	metrics.RecordFanOutClones(ctx, int64(clones), "many_to_many")

	scalars.Records = expanded
	paginator.Apply(&scalars)
	return scalars, nil
}

// oneToMany resolves an inline relation in either direction. Parent link
// values are mapped to the parent ids they belong to and children are
// matched on the same values.
func (i *Interpreter) oneToMany(ctx context.Context, q *queryast.RelatedRecordsQuery, parent *models.ManyRecords, paginator NestedPagination) (models.ManyRecords, error) {
	parentField := q.ParentField
	parentModel, err := parentField.Model()
	if err != nil {
		return models.ManyRecords{}, err
	}
	childModel, err := parentField.RelatedModel()
	if err != nil {
		return models.ManyRecords{}, err
	}
	related, err := parentField.RelatedField()
	if err != nil {
		return models.ManyRecords{}, err
	}
	parentModelID := parentModel.PrimaryIdentifier()
	parentLinkID := parentField.LinkingFields()
	childLinkID := related.LinkingFields()

	joined := q.ParentProjections
	if joined == nil {
		joined, err = parent.Projections(parentModelID.Merge(parentLinkID))
		if err != nil {
			return models.ManyRecords{}, err
		}
	}

	// Link values to every parent id tied to them, compared by value only.
	linkMapping := make(map[string][]models.RecordProjection)
	linkValues := make(map[string][]models.Value)
	var linkOrder []string
	for _, projection := range joined {
		split, err := projection.SplitInto(parentModelID, parentLinkID)
		if err != nil {
			return models.ManyRecords{}, err
		}
		id, link := split[0], split[1]
		key := link.ValuesKey()
		if _, ok := linkMapping[key]; !ok {
			linkOrder = append(linkOrder, key)
			linkValues[key] = link.Values()
		}
		linkMapping[key] = append(linkMapping[key], id)
	}

	var linkFilter filter.Filter
	if childLinkID.DBLen() > 1 {
		filters := make([]filter.Filter, 0, len(linkOrder))
		for _, key := range linkOrder {
			filters = append(filters, filter.FromProjection(childLinkID.FromUnchecked(linkValues[key])))
		}
		linkFilter = filter.Or(filters...)
	} else {
		values := make([]models.Value, 0, len(linkOrder))
		for _, key := range linkOrder {
			values = append(values, linkValues[key][0])
		}
		linkFilter = filter.InValues(childLinkID.DataSourceFields()[0], values)
	}
	args := q.Args.WithoutPagination()
	args.Filter = filter.Merge(args.Filter, linkFilter)

	scalars, err := i.conn.GetManyRecords(ctx, childModel, args, q.SelectedFields)
	if err != nil {
		return models.ManyRecords{}, err
	}
	names := scalars.FieldNames

	var clones int
	switch {
	case parentField.IsInlinedOnEnclosingModel():
		// The FK lives on the parent: several parents may point at the same
		// child, which is then cloned once per additional parent. Clones
		// follow their source record.
		expanded := make([]models.Record, 0, len(scalars.Records))
		for idx := range scalars.Records {
			record := &scalars.Records[idx]
			childLink, err := record.Projection(names, childLinkID)
			if err != nil {
				return models.ManyRecords{}, err
			}
			key := childLink.ValuesKey()
			parentIDs, ok := linkMapping[key]
			if !ok {
				expanded = append(expanded, *record)
				continue
			}
			if len(parentIDs) == 0 {
				return models.ManyRecords{}, &InconsistencyError{
					Message: fmt.Sprintf("no parent left for %s record %s", childModel.Name, childLink),
				}
			}
			reverse(parentIDs)
			first := parentIDs[len(parentIDs)-1]
			parentIDs = parentIDs[:len(parentIDs)-1]
			linkMapping[key] = parentIDs

			record.SetParentID(first)
			expanded = append(expanded, *record)
			for _, parentID := range parentIDs {
				clone := record.Clone()
				clone.SetParentID(parentID)
				expanded = append(expanded, clone)
				clones++
			}
		}
		scalars.Records = expanded

	case related.IsInlinedOnEnclosingModel():
		// The FK lives on the child: each child belongs to exactly one link
		// value and is assigned to a single parent, without fan-out.
		for idx := range scalars.Records {
			record := &scalars.Records[idx]
			childLink, err := record.Projection(names, related.LinkingFields())
			if err != nil {
				return models.ManyRecords{}, err
			}
			parentIDs, ok := linkMapping[childLink.ValuesKey()]
			if !ok || len(parentIDs) == 0 {
				continue
			}
			reverse(parentIDs)
			record.SetParentID(parentIDs[0])
		}

	default:
		return models.ManyRecords{}, &InconsistencyError{
			Message: fmt.Sprintf("relation %s between %s and %s is inlined on neither side", parentField.Relation().Name, parentModel.Name, childModel.Name),
		}
	}

	metrics := observability.EngineMetricsFromContext(ctx)
	metrics.RecordRecordsFetched(ctx, int64(scalars.Len()), "one_to_many")
	metrics.RecordFanOutClones(ctx, int64(clones), "one_to_many")

	paginator.Apply(&scalars)
	return scalars, nil
}

func reverse(ids []models.RecordProjection) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}
