package interpreter

import (
	"context"

	"query-engine/internal/connector"
	"query-engine/internal/filter"
	"query-engine/internal/logging"
	"query-engine/internal/models"
	"query-engine/internal/observability"
	"query-engine/internal/querygraph"
)

// checkDeletion fails when any record of another model still points at one
// of the records about to be deleted through a required relation.
func (i *Interpreter) checkDeletion(ctx context.Context, n *querygraph.CheckNode) error {
	if len(n.IDs) == 0 {
		return nil
	}
	one := int64(1)

	for _, rf := range n.Model.DataModel().FieldsRequiringModel(n.Model.ID) {
		referenced, err := rf.RelatedField()
		if err != nil {
			return err
		}
		owner, err := rf.Model()
		if err != nil {
			return err
		}

		links := make([]models.RecordProjection, 0, len(n.IDs))
		for _, id := range n.IDs {
			split, err := id.SplitInto(referenced.LinkingFields())
			if err != nil {
				return err
			}
			link, err := rf.LinkingFields().Assimilate(split[0])
			if err != nil {
				return err
			}
			links = append(links, link)
		}

		args := connector.QueryArguments{First: &one, Filter: filter.FromProjections(links)}
		found, err := i.conn.GetManyRecords(ctx, owner, args, connector.FromProjection(owner.PrimaryIdentifier()))
		if err != nil {
			return err
		}
		if found.Len() == 0 {
			continue
		}

		relation := rf.Relation()
		modelA, err := n.Model.DataModel().Model(relation.ModelA)
		if err != nil {
			return err
		}
		modelB, err := n.Model.DataModel().Model(relation.ModelB)
		if err != nil {
			return err
		}
		observability.EngineMetricsFromContext(ctx).RecordRelationViolation(ctx, relation.Name)
		logging.FromContext(ctx).Info("deletion rejected by required relation",
			"relation", relation.Name,
			"model", n.Model.Name,
			"owner", owner.Name,
		)
		return &RelationViolationError{
			RelationName: relation.Name,
			ModelAName:   modelA.Name,
			ModelBName:   modelB.Name,
		}
	}
	return nil
}
