// Package connector defines the contracts the interpreter uses to talk to a
// data source. Implementations live in sub-packages.
package connector

import (
	"context"

	"query-engine/internal/filter"
	"query-engine/internal/models"
)

// ReadOperations fetch records.
type ReadOperations interface {
	// GetSingleRecord returns nil when no record matches.
	GetSingleRecord(ctx context.Context, model *models.Model, f filter.Filter, selected SelectedFields) (*models.SingleRecord, error)
	GetManyRecords(ctx context.Context, model *models.Model, args QueryArguments, selected SelectedFields) (models.ManyRecords, error)
	// GetRelatedM2MRecordIDs reads join table pairs for the given parents of
	// field's model. Parent ids use the parent model's primary identifier
	// and child ids the related model's.
	GetRelatedM2MRecordIDs(ctx context.Context, field *models.RelationField, parentIDs []models.RecordProjection) ([]RelatedIDs, error)
}

// WriteOperations mutate records.
type WriteOperations interface {
	// DeleteRecord deletes exactly one record and fails with a RecordNotFound
	// ConnectorError when nothing matched.
	DeleteRecord(ctx context.Context, model *models.Model, f filter.Filter) error
	DeleteRecords(ctx context.Context, model *models.Model, f filter.Filter) (int64, error)
}

// ConnectionLike is what the interpreter executes against, usually a
// transaction.
type ConnectionLike interface {
	ReadOperations
	WriteOperations
}

// Transaction is a ConnectionLike scoped to one database transaction.
type Transaction interface {
	ConnectionLike
	Commit() error
	Rollback() error
}

// Connector opens transactions.
type Connector interface {
	Begin(ctx context.Context) (Transaction, error)
}

// RelatedIDs is one join table row.
type RelatedIDs struct {
	Parent models.RecordProjection
	Child  models.RecordProjection
}
