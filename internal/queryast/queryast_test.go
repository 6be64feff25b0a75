package queryast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-engine/internal/filter"
	"query-engine/internal/models"
	"query-engine/internal/models/modeltest"
)

func TestFilterable(t *testing.T) {
	dm := modeltest.Blog()
	post := modeltest.MustModel(dm, "Post")
	title := post.ScalarFields()[1].DataSourceField()
	id := post.PrimaryIdentifier().FromUnchecked([]models.Value{int64(3)})

	queries := []Query{
		&ManyRecordsQuery{Name: "posts", Model: post},
		&RecordQuery{Name: "post", Model: post},
		&RelatedRecordsQuery{Name: "posts", ParentField: modeltest.MustRelationField(dm, "User", "posts")},
		&DeleteRecord{Model: post},
		&DeleteManyRecords{Model: post, Where: filter.EqualsValue(title, "draft")},
	}

	for _, q := range queries {
		t.Run(q.String(), func(t *testing.T) {
			f, ok := q.(Filterable)
			require.True(t, ok)
			before := f.Filter()
			f.AddFilter(filter.FromProjection(id))
			if before == nil || filter.IsEmpty(before) {
				assert.Equal(t, "id = 3", f.Filter().String())
			} else {
				assert.Equal(t, "(title = draft AND id = 3)", f.Filter().String())
			}
			f.SetFilter(filter.Empty())
			assert.True(t, filter.IsEmpty(f.Filter()))
		})
	}
}

func TestRelatedRecordsQueryTargetModel(t *testing.T) {
	dm := modeltest.Blog()
	q := &RelatedRecordsQuery{ParentField: modeltest.MustRelationField(dm, "Post", "tags")}
	assert.Equal(t, "Tag", q.TargetModel().Name)
	var _ ReadQuery = q
}
