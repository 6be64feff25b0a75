// Package sqlconnector implements the connector contracts on MySQL
// compatible databases. Statements are built with squirrel and run through
// a dbexec executor, usually a request transaction.
package sqlconnector

import (
	"context"
	"fmt"

	"query-engine/internal/connector"
	"query-engine/internal/dbexec"
)

// DefaultMaxInValues bounds the IN lists of join table reads.
const DefaultMaxInValues = 1000

// Options tune statement generation.
type Options struct {
	// MaxInValues splits join table reads into chunks of at most this many
	// parent ids. Zero means DefaultMaxInValues.
	MaxInValues int
}

// Connector opens request transactions.
type Connector struct {
	beginner dbexec.Beginner
	opts     Options
}

// New returns a connector beginning transactions on beginner.
func New(beginner dbexec.Beginner, opts Options) *Connector {
	return &Connector{beginner: beginner, opts: opts}
}

// Begin starts a transaction.
func (c *Connector) Begin(ctx context.Context) (connector.Transaction, error) {
	tx, err := c.beginner.BeginTx(ctx)
	if err != nil {
		return nil, &connector.ConnectorError{Kind: connector.KindTransaction, Err: fmt.Errorf("begin: %w", err)}
	}
	return &Transaction{Connection: NewConnection(tx, c.opts), tx: tx}, nil
}

// Connection runs connector operations on one executor.
type Connection struct {
	exec dbexec.QueryExecutor
	opts Options
}

// NewConnection wraps an executor.
func NewConnection(exec dbexec.QueryExecutor, opts Options) *Connection {
	if opts.MaxInValues <= 0 {
		opts.MaxInValues = DefaultMaxInValues
	}
	return &Connection{exec: exec, opts: opts}
}

// Transaction is a Connection that can be committed or rolled back.
type Transaction struct {
	*Connection
	tx dbexec.TxExecutor
}

func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return &connector.ConnectorError{Kind: connector.KindTransaction, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func (t *Transaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return &connector.ConnectorError{Kind: connector.KindTransaction, Err: fmt.Errorf("rollback: %w", err)}
	}
	return nil
}

var (
	_ connector.ConnectionLike = (*Connection)(nil)
	_ connector.Transaction    = (*Transaction)(nil)
	_ connector.Connector      = (*Connector)(nil)
)
