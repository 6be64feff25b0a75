package querygraph

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-engine/internal/models"
	"query-engine/internal/models/modeltest"
	"query-engine/internal/queryast"
)

func TestGraphEdges(t *testing.T) {
	dm := modeltest.Blog()
	post := modeltest.MustModel(dm, "Post")

	g := New()
	a := g.CreateQueryNode(&queryast.ManyRecordsQuery{Name: "a", Model: post})
	b := g.CreateQueryNode(&queryast.DeleteManyRecords{Model: post})
	c := g.CreateQueryNode(&queryast.DeleteManyRecords{Model: post})

	ab, err := g.CreateEdge(a, b, ExecutionOrder{})
	require.NoError(t, err)
	_, err = g.CreateEdge(b, c, nil)
	require.NoError(t, err)

	t.Run("rejects cycles", func(t *testing.T) {
		_, err := g.CreateEdge(c, a, ExecutionOrder{})
		assert.True(t, errors.Is(err, ErrCycle))
		_, err = g.CreateEdge(a, a, ExecutionOrder{})
		assert.True(t, errors.Is(err, ErrCycle))
	})

	t.Run("rejects unknown nodes", func(t *testing.T) {
		_, err := g.CreateEdge(a, NodeRef(42), ExecutionOrder{})
		assert.True(t, errors.Is(err, ErrUnknownNode))
	})

	t.Run("edge endpoints", func(t *testing.T) {
		src, err := g.EdgeSource(ab)
		require.NoError(t, err)
		dst, err := g.EdgeTarget(ab)
		require.NoError(t, err)
		assert.Equal(t, a, src)
		assert.Equal(t, b, dst)
		assert.Equal(t, []EdgeRef{ab}, g.IncomingEdges(b))
		assert.Equal(t, []EdgeRef{ab}, g.OutgoingEdges(a))
		assert.Equal(t, []NodeRef{a}, g.Roots())
	})

	t.Run("edges are plucked once", func(t *testing.T) {
		dep, err := g.PluckEdge(ab)
		require.NoError(t, err)
		assert.Equal(t, ExecutionOrder{}, dep)
		_, err = g.PluckEdge(ab)
		assert.True(t, errors.Is(err, ErrEdgeConsumed))
	})
}

func TestTopologicalOrder(t *testing.T) {
	dm := modeltest.Blog()
	post := modeltest.MustModel(dm, "Post")

	g := New()
	del := g.CreateQueryNode(&queryast.DeleteManyRecords{Model: post})
	check := g.CreateNode(&CheckNode{Model: post})
	find := g.CreateQueryNode(&queryast.ManyRecordsQuery{Name: "find", Model: post})
	other := g.CreateQueryNode(&queryast.ManyRecordsQuery{Name: "other", Model: post})

	_, err := g.CreateEdge(find, check, ExecutionOrder{})
	require.NoError(t, err)
	_, err = g.CreateEdge(check, del, ExecutionOrder{})
	require.NoError(t, err)

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []NodeRef{find, check, del, other}, order)
}

func TestTransforms(t *testing.T) {
	dm := modeltest.Blog()
	post := modeltest.MustModel(dm, "Post")
	ids := []models.RecordProjection{
		post.PrimaryIdentifier().FromUnchecked([]models.Value{int64(1)}),
		post.PrimaryIdentifier().FromUnchecked([]models.Value{int64(2)}),
	}

	t.Run("filter by parent ids", func(t *testing.T) {
		q := &queryast.DeleteManyRecords{Model: post}
		err := Transform{Kind: FilterByParentIDs}.Apply(&QueryNode{Query: q}, ids)
		require.NoError(t, err)
		assert.Equal(t, "id IN [1 2]", q.Where.String())
	})

	t.Run("expecting count mismatch", func(t *testing.T) {
		q := &queryast.DeleteManyRecords{Model: post}
		tr := Transform{Kind: FilterByParentIDsExpectingCount, Expected: 3, RelationName: "PostToUser", ParentName: "User", ChildName: "Post"}
		err := tr.Apply(&QueryNode{Query: q}, ids)
		var notConnected *RecordsNotConnectedError
		require.True(t, errors.As(err, &notConnected))
		assert.Equal(t, "PostToUser", notConnected.RelationName)
		assert.Equal(t, 2, notConnected.Found)
		assert.Nil(t, q.Where)
	})

	t.Run("expecting count match", func(t *testing.T) {
		q := &queryast.DeleteManyRecords{Model: post}
		err := Transform{Kind: FilterByParentIDsExpectingCount, Expected: 2}.Apply(&QueryNode{Query: q}, ids)
		require.NoError(t, err)
		assert.NotNil(t, q.Where)
	})

	t.Run("single parent id", func(t *testing.T) {
		q := &queryast.DeleteRecord{Model: post}
		require.NoError(t, Transform{Kind: FilterBySingleParentID}.Apply(&QueryNode{Query: q}, ids))
		assert.Equal(t, "id = 2", q.Where.String())

		err := Transform{Kind: FilterBySingleParentID}.Apply(&QueryNode{Query: &queryast.DeleteRecord{Model: post}}, nil)
		var assertion *AssertionError
		assert.True(t, errors.As(err, &assertion))
	})

	t.Run("related read receives parents", func(t *testing.T) {
		q := &queryast.RelatedRecordsQuery{ParentField: modeltest.MustRelationField(dm, "Post", "tags")}
		require.NoError(t, Transform{Kind: ParentProjectionsForRelatedRead}.Apply(&QueryNode{Query: q}, ids))
		assert.Len(t, q.ParentProjections, 2)
	})

	t.Run("deletion check receives ids", func(t *testing.T) {
		n := &CheckNode{Model: post}
		require.NoError(t, Transform{Kind: DeletionCheckIDs}.Apply(n, ids))
		assert.Len(t, n.IDs, 2)
	})

	t.Run("kind mismatch is an assertion", func(t *testing.T) {
		err := Transform{Kind: DeletionCheckIDs}.Apply(&QueryNode{Query: &queryast.DeleteRecord{Model: post}}, ids)
		var assertion *AssertionError
		assert.True(t, errors.As(err, &assertion))
	})

	t.Run("descriptors are serializable", func(t *testing.T) {
		tr := Transform{Kind: FilterByParentIDsExpectingCount, Expected: 2, RelationName: "r", ParentName: "p", ChildName: "c"}
		data, err := json.Marshal(tr)
		require.NoError(t, err)
		var back Transform
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, tr, back)
	})
}

func TestGraphString(t *testing.T) {
	dm := modeltest.Blog()
	post := modeltest.MustModel(dm, "Post")
	g := New()
	a := g.CreateQueryNode(&queryast.ManyRecordsQuery{Name: "posts", Model: post})
	b := g.CreateQueryNode(&queryast.DeleteManyRecords{Model: post})
	_, err := g.CreateEdge(a, b, &ParentProjection{Projection: post.PrimaryIdentifier(), Transform: Transform{Kind: FilterByParentIDs}})
	require.NoError(t, err)
	require.NoError(t, g.MarkResult(a))

	out := g.String()
	assert.Contains(t, out, "Node 0 (result): ManyRecordsQuery")
	assert.Contains(t, out, "Edge 0 -> Node 1: ParentProjection((id), filter_by_parent_ids)")
}
