// Package querygraph holds the dependency graph of operations built for one
// request. Nodes and edges live in arenas and are addressed by index
// handles. Edges carry either a pure ordering dependency or a parent
// projection whose values are threaded into the target node.
package querygraph

import (
	"errors"
	"fmt"
	"strings"

	"query-engine/internal/models"
	"query-engine/internal/queryast"
)

var (
	// ErrCycle is returned when an edge would close a cycle.
	ErrCycle = errors.New("edge would create a cycle")
	// ErrEdgeConsumed is returned when an edge is plucked twice.
	ErrEdgeConsumed = errors.New("edge already consumed")
	// ErrUnknownNode is returned for handles outside the arena.
	ErrUnknownNode = errors.New("unknown node")
	// ErrUnknownEdge is returned for handles outside the arena.
	ErrUnknownEdge = errors.New("unknown edge")
)

// NodeRef addresses a node.
type NodeRef int

// EdgeRef addresses an edge.
type EdgeRef int

// Node is the content of a graph node.
type Node interface {
	String() string
	isNode()
}

// QueryNode executes a query.
type QueryNode struct {
	Query queryast.Query
}

// CheckNode verifies that the records in IDs of Model can be deleted
// without orphaning required relations.
type CheckNode struct {
	Model *models.Model
	IDs   []models.RecordProjection
}

func (*QueryNode) isNode() {}
func (*CheckNode) isNode() {}

func (n *QueryNode) String() string { return n.Query.String() }

func (n *CheckNode) String() string {
	return fmt.Sprintf("DeletionCheck(model: %s, ids: %d)", n.Model.Name, len(n.IDs))
}

// Dependency is the payload of an edge.
type Dependency interface {
	String() string
	isDependency()
}

// ExecutionOrder only orders two nodes.
type ExecutionOrder struct{}

// ParentProjection extracts Projection from every record of the source
// node's result and applies Transform to the target node.
type ParentProjection struct {
	Projection models.ModelProjection
	Transform  Transform
}

func (ExecutionOrder) isDependency()    {}
func (*ParentProjection) isDependency() {}

func (ExecutionOrder) String() string { return "ExecutionOrder" }

func (p *ParentProjection) String() string {
	return fmt.Sprintf("ParentProjection(%s, %s)", p.Projection, p.Transform.Kind)
}

type nodeEntry struct {
	content Node
	result  bool
}

type edgeEntry struct {
	from, to NodeRef
	dep      Dependency
	plucked  bool
}

// Graph is a DAG of operations.
type Graph struct {
	nodes []nodeEntry
	edges []edgeEntry
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// CreateNode adds a node.
func (g *Graph) CreateNode(n Node) NodeRef {
	g.nodes = append(g.nodes, nodeEntry{content: n})
	return NodeRef(len(g.nodes) - 1)
}

// CreateQueryNode adds a node executing q.
func (g *Graph) CreateQueryNode(q queryast.Query) NodeRef {
	return g.CreateNode(&QueryNode{Query: q})
}

// CreateEdge adds a dependency from -> to. It fails with ErrCycle when to
// already reaches from.
func (g *Graph) CreateEdge(from, to NodeRef, dep Dependency) (EdgeRef, error) {
	if !g.validNode(from) || !g.validNode(to) {
		return 0, fmt.Errorf("%w: edge %d -> %d", ErrUnknownNode, from, to)
	}
	if from == to || g.reaches(to, from) {
		return 0, fmt.Errorf("%w: %d -> %d", ErrCycle, from, to)
	}
	if dep == nil {
		dep = ExecutionOrder{}
	}
	g.edges = append(g.edges, edgeEntry{from: from, to: to, dep: dep})
	return EdgeRef(len(g.edges) - 1), nil
}

// Node returns the content of a node.
func (g *Graph) Node(n NodeRef) (Node, error) {
	if !g.validNode(n) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, n)
	}
	return g.nodes[n].content, nil
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// MarkResult flags a node whose output is returned to the caller.
func (g *Graph) MarkResult(n NodeRef) error {
	if !g.validNode(n) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, n)
	}
	g.nodes[n].result = true
	return nil
}

// IsResult reports whether the node was marked as a result.
func (g *Graph) IsResult(n NodeRef) bool {
	return g.validNode(n) && g.nodes[n].result
}

// ResultNodes returns result nodes in creation order.
func (g *Graph) ResultNodes() []NodeRef {
	var out []NodeRef
	for i, n := range g.nodes {
		if n.result {
			out = append(out, NodeRef(i))
		}
	}
	return out
}

// IncomingEdges returns the edges ending at n in creation order.
func (g *Graph) IncomingEdges(n NodeRef) []EdgeRef {
	var out []EdgeRef
	for i, e := range g.edges {
		if e.to == n {
			out = append(out, EdgeRef(i))
		}
	}
	return out
}

// OutgoingEdges returns the edges starting at n in creation order.
func (g *Graph) OutgoingEdges(n NodeRef) []EdgeRef {
	var out []EdgeRef
	for i, e := range g.edges {
		if e.from == n {
			out = append(out, EdgeRef(i))
		}
	}
	return out
}

// EdgeSource returns the node an edge starts at.
func (g *Graph) EdgeSource(e EdgeRef) (NodeRef, error) {
	if !g.validEdge(e) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownEdge, e)
	}
	return g.edges[e].from, nil
}

// EdgeTarget returns the node an edge ends at.
func (g *Graph) EdgeTarget(e EdgeRef) (NodeRef, error) {
	if !g.validEdge(e) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownEdge, e)
	}
	return g.edges[e].to, nil
}

// PluckEdge consumes an edge and returns its dependency. Each edge can be
// plucked once.
func (g *Graph) PluckEdge(e EdgeRef) (Dependency, error) {
	if !g.validEdge(e) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEdge, e)
	}
	if g.edges[e].plucked {
		return nil, fmt.Errorf("%w: %d", ErrEdgeConsumed, e)
	}
	g.edges[e].plucked = true
	return g.edges[e].dep, nil
}

// Roots returns the nodes without incoming edges.
func (g *Graph) Roots() []NodeRef {
	var out []NodeRef
	for i := range g.nodes {
		if len(g.IncomingEdges(NodeRef(i))) == 0 {
			out = append(out, NodeRef(i))
		}
	}
	return out
}

// TopologicalOrder returns every node after all of its dependencies. Ties
// are broken by creation order.
func (g *Graph) TopologicalOrder() ([]NodeRef, error) {
	indegree := make([]int, len(g.nodes))
	for _, e := range g.edges {
		indegree[e.to]++
	}
	done := make([]bool, len(g.nodes))
	order := make([]NodeRef, 0, len(g.nodes))
	for len(order) < len(g.nodes) {
		next := -1
		for i := range g.nodes {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, ErrCycle
		}
		done[next] = true
		order = append(order, NodeRef(next))
		for _, e := range g.edges {
			if int(e.from) == next {
				indegree[e.to]--
			}
		}
	}
	return order, nil
}

func (g *Graph) String() string {
	var b strings.Builder
	b.WriteString("---- Query Graph ----\n")
	for i, n := range g.nodes {
		marker := ""
		if n.result {
			marker = " (result)"
		}
		fmt.Fprintf(&b, "Node %d%s: %s\n", i, marker, n.content)
		for _, e := range g.OutgoingEdges(NodeRef(i)) {
			edge := g.edges[e]
			fmt.Fprintf(&b, "  Edge %d -> Node %d: %s\n", e, edge.to, edge.dep)
		}
	}
	b.WriteString("---------------------")
	return b.String()
}

func (g *Graph) validNode(n NodeRef) bool {
	return int(n) >= 0 && int(n) < len(g.nodes)
}

func (g *Graph) validEdge(e EdgeRef) bool {
	return int(e) >= 0 && int(e) < len(g.edges)
}

func (g *Graph) reaches(from, target NodeRef) bool {
	seen := make(map[NodeRef]bool)
	stack := []NodeRef{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		for _, e := range g.edges {
			if e.from == n {
				stack = append(stack, e.to)
			}
		}
	}
	return false
}
