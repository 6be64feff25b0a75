// Package interpreter executes query graphs against a connection.
//
// Nodes run in topological order. Before a node runs, every incoming edge is
// consumed; parent projection edges extract identities from the source
// node's result and transform the node. The first failure aborts the graph,
// leaving the caller to roll back its transaction.
package interpreter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"query-engine/internal/connector"
	"query-engine/internal/logging"
	"query-engine/internal/observability"
	"query-engine/internal/queryast"
	"query-engine/internal/querygraph"
)

// NodeState tracks a node through execution.
type NodeState int

const (
	Pending NodeState = iota
	Ready
	Executed
	Failed
)

func (s NodeState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Executed:
		return "executed"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Interpreter executes one graph. It is not safe for concurrent use.
type Interpreter struct {
	conn    connector.ConnectionLike
	states  []NodeState
	results map[querygraph.NodeRef]any
}

// New returns an interpreter running against conn.
func New(conn connector.ConnectionLike) *Interpreter {
	return &Interpreter{conn: conn}
}

// State returns the state a node reached in the last execution.
func (i *Interpreter) State(ref querygraph.NodeRef) NodeState {
	if int(ref) < 0 || int(ref) >= len(i.states) {
		return Pending
	}
	return i.states[ref]
}

// Execute runs every node of g and returns the results of the nodes marked
// as results.
func (i *Interpreter) Execute(ctx context.Context, g *querygraph.Graph) (*ResultSet, error) {
	logger := logging.FromContext(ctx)
	metrics := observability.EngineMetricsFromContext(ctx)

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	i.states = make([]NodeState, g.NodeCount())
	i.results = make(map[querygraph.NodeRef]any, g.NodeCount())
	metrics.RecordGraphSize(ctx, g.NodeCount())
	logger.Debug("executing query graph", "nodes", g.NodeCount(), "edges", g.EdgeCount())

	for _, ref := range order {
		node, err := g.Node(ref)
		if err != nil {
			return nil, err
		}
		kind := nodeKind(node)

		if err := i.prepare(g, ref, node); err != nil {
			i.states[ref] = Failed
			logger.Warn("query graph node failed", "node", int(ref), "kind", kind, "stage", "prepare", "error", err)
			return nil, &NodeError{Node: ref, Kind: kind, Err: err}
		}
		i.states[ref] = Ready
		logger.Debug("query graph node ready", "node", int(ref), "kind", kind)

		start := time.Now()
		nodeCtx, span := startNodeSpan(ctx, "engine.node."+kind,
			attribute.Int("engine.node.id", int(ref)),
			attribute.String("engine.node.kind", kind),
		)
		result, err := i.executeNode(nodeCtx, node)
		finishNodeSpan(span, err)
		if err != nil {
			i.states[ref] = Failed
			metrics.RecordNode(ctx, time.Since(start), kind, "error")
			logger.Warn("query graph node failed", "node", int(ref), "kind", kind, "error", err)
			return nil, &NodeError{Node: ref, Kind: kind, Err: err}
		}
		metrics.RecordNode(ctx, time.Since(start), kind, "success")
		i.states[ref] = Executed
		i.results[ref] = result
		logger.Debug("query graph node executed", "node", int(ref), "kind", kind)
	}

	rs := &ResultSet{}
	for _, ref := range g.ResultNodes() {
		rs.add(ref, i.results[ref])
	}
	return rs, nil
}

// prepare consumes the incoming edges of a node, applying parent
// projections from the already executed sources.
func (i *Interpreter) prepare(g *querygraph.Graph, ref querygraph.NodeRef, node querygraph.Node) error {
	for _, edge := range g.IncomingEdges(ref) {
		dep, err := g.PluckEdge(edge)
		if err != nil {
			return err
		}
		src, err := g.EdgeSource(edge)
		if err != nil {
			return err
		}
		if i.states[src] != Executed {
			return &querygraph.AssertionError{Message: fmt.Sprintf("node %d ran before its dependency %d", ref, src)}
		}

		pp, ok := dep.(*querygraph.ParentProjection)
		if !ok {
			continue
		}
		read, ok := i.results[src].(*ReadResult)
		if !ok {
			return &querygraph.AssertionError{Message: fmt.Sprintf("node %d has no records to project for node %d", src, ref)}
		}
		ids, err := read.Records.Projections(pp.Projection)
		if err != nil {
			return err
		}
		if err := pp.Transform.Apply(node, ids); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interpreter) executeNode(ctx context.Context, node querygraph.Node) (any, error) {
	switch n := node.(type) {
	case *querygraph.CheckNode:
		return nil, i.checkDeletion(ctx, n)
	case *querygraph.QueryNode:
		switch q := n.Query.(type) {
		case queryast.ReadQuery:
			return i.read(ctx, q, nil)
		case queryast.WriteQuery:
			return i.write(ctx, q)
		}
	}
	return nil, &querygraph.AssertionError{Message: fmt.Sprintf("cannot execute %s", node)}
}

func nodeKind(node querygraph.Node) string {
	switch n := node.(type) {
	case *querygraph.CheckNode:
		return "deletion_check"
	case *querygraph.QueryNode:
		switch n.Query.(type) {
		case *queryast.RecordQuery:
			return "record_query"
		case *queryast.ManyRecordsQuery:
			return "many_records_query"
		case *queryast.RelatedRecordsQuery:
			return "related_records_query"
		case *queryast.DeleteRecord:
			return "delete_record"
		case *queryast.DeleteManyRecords:
			return "delete_many_records"
		}
	}
	return "unknown"
}
