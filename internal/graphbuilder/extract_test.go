package graphbuilder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"query-engine/internal/connector"
	"query-engine/internal/cursor"
	"query-engine/internal/models"
	"query-engine/internal/models/modeltest"
)

func TestExtractQueryArgs(t *testing.T) {
	user := modeltest.MustModel(modeltest.Blog(), "User")

	args, err := ExtractQueryArgs(map[string]any{
		"skip":    2.0,
		"last":    3.0,
		"orderBy": map[string]any{"email": "ASC"},
		"where":   map[string]any{"name": "Ada"},
		"ignored": true,
	}, user)
	require.NoError(t, err)
	assert.Equal(t, "{skip=2, last=3, orderBy=email ASC, where=name = Ada}", args.String())
	assert.Equal(t, connector.Ascending, args.SortOrder())

	empty, err := ExtractQueryArgs(nil, user)
	require.NoError(t, err)
	assert.False(t, empty.HasPagination())
	assert.Nil(t, empty.Filter)
}

func TestExtractQueryArgsErrors(t *testing.T) {
	user := modeltest.MustModel(modeltest.Blog(), "User")

	tests := []struct {
		name string
		args map[string]any
		path string
	}{
		{name: "negative first", args: map[string]any{"first": -1.0}, path: "first"},
		{name: "fractional skip", args: map[string]any{"skip": 1.5}, path: "skip"},
		{name: "bad direction", args: map[string]any{"orderBy": map[string]any{"name": "up"}}, path: "orderBy.name"},
		{name: "two order fields", args: map[string]any{"orderBy": map[string]any{"name": "asc", "id": "asc"}}, path: "orderBy"},
		{name: "unknown order field", args: map[string]any{"orderBy": map[string]any{"age": "asc"}}, path: "orderBy"},
		{name: "where not an object", args: map[string]any{"where": "x"}, path: "where"},
		{name: "cursor of wrong type", args: map[string]any{"after": 1.0}, path: "after"},
		{name: "malformed cursor", args: map[string]any{"before": "not-a-cursor"}, path: "before"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractQueryArgs(tt.args, user)
			var input *InputError
			require.True(t, errors.As(err, &input), "got %v", err)
			assert.Equal(t, tt.path, input.Path)
		})
	}
}

func TestExtractCursor(t *testing.T) {
	dm := modeltest.Blog()
	user := modeltest.MustModel(dm, "User")
	account := modeltest.MustModel(dm, "Account")

	t.Run("object", func(t *testing.T) {
		args, err := ExtractQueryArgs(map[string]any{"after": map[string]any{"id": 5.0}}, user)
		require.NoError(t, err)
		require.NotNil(t, args.After)
		assert.Equal(t, "{id: 5}", args.After.String())
		assert.True(t, args.HasCursor())
	})

	t.Run("compound identifier", func(t *testing.T) {
		args, err := ExtractQueryArgs(map[string]any{
			"before": map[string]any{"tenant_code": map[string]any{"tenant": "t1", "code": "a"}},
		}, account)
		require.NoError(t, err)
		require.NotNil(t, args.Before)
		assert.Equal(t, "{tenant: t1, code: a}", args.Before.String())
	})

	t.Run("opaque string", func(t *testing.T) {
		id := user.PrimaryIdentifier().FromUnchecked([]models.Value{int64(7)})
		args, err := ExtractQueryArgs(map[string]any{"after": cursor.Encode(user, id)}, user)
		require.NoError(t, err)
		require.NotNil(t, args.After)
		assert.True(t, args.After.Equal(id))
	})

	t.Run("null", func(t *testing.T) {
		args, err := ExtractQueryArgs(map[string]any{"after": nil}, user)
		require.NoError(t, err)
		assert.Nil(t, args.After)
	})
}

func TestExtractFilter(t *testing.T) {
	dm := modeltest.Blog()
	user := modeltest.MustModel(dm, "User")
	post := modeltest.MustModel(dm, "Post")
	invoice := modeltest.MustModel(dm, "Invoice")

	tests := []struct {
		name  string
		model *models.Model
		where map[string]any
		want  string
	}{
		{
			name:  "equality",
			model: user,
			where: map[string]any{"name": "Ada", "email": "ada@example.com"},
			want:  "(email = ada@example.com AND name = Ada)",
		},
		{
			name:  "operators",
			model: user,
			where: map[string]any{"id": map[string]any{"gte": 1.0, "lt": 10.0, "notIn": []any{3.0}}},
			want:  "(id >= 1 AND id < 10 AND id NOT IN [3])",
		},
		{
			name:  "boolean combinators follow scalars",
			model: user,
			where: map[string]any{
				"OR": []any{map[string]any{"name": "Ada"}, map[string]any{"name": "Bob"}},
				"id": map[string]any{"gt": 1.0},
			},
			want: "(id > 1 AND (name = Ada OR name = Bob))",
		},
		{
			name:  "not",
			model: user,
			where: map[string]any{"NOT": map[string]any{"name": "Ada"}},
			want:  "NOT (name = Ada)",
		},
		{
			name:  "relation field",
			model: post,
			where: map[string]any{"author": 1.0},
			want:  "author_id = 1",
		},
		{
			name:  "compound relation field",
			model: invoice,
			where: map[string]any{"account": map[string]any{"account_tenant": "t1", "account_code": "a"}},
			want:  "(account_tenant = t1 AND account_code = a)",
		},
		{
			name:  "null equality",
			model: user,
			where: map[string]any{"name": nil},
			want:  "name = <nil>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ExtractFilter(tt.where, tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.String())
		})
	}
}

func TestExtractFilterErrors(t *testing.T) {
	user := modeltest.MustModel(modeltest.Blog(), "User")

	tests := []struct {
		name  string
		where map[string]any
		path  string
	}{
		{name: "unknown field", where: map[string]any{"age": 3.0}, path: "age"},
		{name: "unknown operator", where: map[string]any{"id": map[string]any{"like": 1.0}}, path: "id.like"},
		{name: "in without list", where: map[string]any{"id": map[string]any{"in": 1.0}}, path: "id.in"},
		{name: "bad value", where: map[string]any{"id": "seven"}, path: "id"},
		{name: "combinator of scalars", where: map[string]any{"AND": []any{1.0}}, path: "AND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractFilter(tt.where, user)
			var input *InputError
			require.True(t, errors.As(err, &input), "got %v", err)
			assert.Equal(t, tt.path, input.Path)
		})
	}
}

func TestExtractUniqueFilter(t *testing.T) {
	dm := modeltest.Blog()
	user := modeltest.MustModel(dm, "User")
	account := modeltest.MustModel(dm, "Account")

	f, err := ExtractUniqueFilter(map[string]any{"email": "ada@example.com"}, user)
	require.NoError(t, err)
	assert.Equal(t, "email = ada@example.com", f.String())

	f, err = ExtractUniqueFilter(map[string]any{"tenant_code": map[string]any{"tenant": "t1", "code": "a"}}, account)
	require.NoError(t, err)
	assert.Equal(t, "(tenant = t1 AND code = a)", f.String())

	_, err = ExtractUniqueFilter(map[string]any{"name": "Ada"}, user)
	var input *InputError
	require.True(t, errors.As(err, &input))

	_, err = ExtractUniqueFilter(map[string]any{"id": nil}, user)
	require.True(t, errors.As(err, &input))
}
