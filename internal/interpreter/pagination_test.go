package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"query-engine/internal/connector"
	"query-engine/internal/models"
	"query-engine/internal/models/modeltest"
)

func TestNestedPagination(t *testing.T) {
	user := modeltest.MustModel(modeltest.Blog(), "User")
	parent := func(id int64) models.RecordProjection {
		return user.PrimaryIdentifier().FromUnchecked([]models.Value{id})
	}
	// Two parents with interleaved children: a1 b1 a2 a3 b2 a4.
	build := func() models.ManyRecords {
		records := models.NewManyRecords([]string{"id"})
		for _, c := range []struct {
			id     int64
			parent int64
		}{{1, 1}, {2, 2}, {3, 1}, {4, 1}, {5, 2}, {6, 1}} {
			r := models.NewRecord(c.id)
			r.SetParentID(parent(c.parent))
			records.Push(r)
		}
		return records
	}
	n := func(v int64) *int64 { return &v }

	tests := []struct {
		name string
		args connector.QueryArguments
		want []int64
	}{
		{name: "none", args: connector.QueryArguments{}, want: []int64{1, 2, 3, 4, 5, 6}},
		{name: "first", args: connector.QueryArguments{First: n(2)}, want: []int64{1, 2, 3, 5}},
		{name: "skip", args: connector.QueryArguments{Skip: n(1)}, want: []int64{3, 4, 5, 6}},
		{name: "skip and first", args: connector.QueryArguments{Skip: n(1), First: n(1)}, want: []int64{3, 5}},
		{name: "last", args: connector.QueryArguments{Last: n(1)}, want: []int64{5, 6}},
		{name: "first and last", args: connector.QueryArguments{First: n(3), Last: n(2)}, want: []int64{3, 4, 2, 5}},
		{name: "skip past end", args: connector.QueryArguments{Skip: n(5)}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := build()
			NewNestedPagination(tt.args).Apply(&records)

			var got []int64
			for _, r := range records.Records {
				got = append(got, r.Values[0].(int64))
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestNestedPaginationKeepsOrder(t *testing.T) {
	records := models.NewManyRecords([]string{"id"})
	for _, id := range []int64{3, 1, 2} {
		records.Push(models.NewRecord(id))
	}
	first := int64(2)
	NewNestedPagination(connector.QueryArguments{First: &first}).Apply(&records)

	assert.Equal(t, []models.Record{models.NewRecord(int64(3)), models.NewRecord(int64(1))}, records.Records)
}
