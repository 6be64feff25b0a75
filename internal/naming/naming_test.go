package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "User"},
		{"user_profiles", "UserProfile"},
		{"order_items", "OrderItem"},
		{"people", "Person"},
		{"category", "Category"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.ModelName(tt.input))
		})
	}
}

func TestFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user_name", "userName"},
		{"created_at", "createdAt"},
		{"id", "id"},
		{"user_profile_id", "userProfileId"},
		{"api_v2_key", "apiV2Key"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.FieldName(tt.input))
		})
	}
}

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"person", "people"},
		{"child", "children"},
		{"status", "statuses"},
		{"orderItem", "orderItems"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Pluralize(tt.input))
		})
	}
}

func TestSingularize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user"},
		{"categories", "category"},
		{"people", "person"},
		{"children", "child"},
		{"statuses", "status"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Singularize(tt.input))
		})
	}
}

func TestOverrides(t *testing.T) {
	namer := New(Config{
		PluralOverrides:   map[string]string{"staff": "staff"},
		SingularOverrides: map[string]string{"Data": "datum"},
	}, nil)

	assert.Equal(t, "staff", namer.Pluralize("staff"))
	assert.Equal(t, "users", namer.Pluralize("user"))
	assert.Equal(t, "datum", namer.Singularize("data"), "overrides match case-insensitively")
	assert.Equal(t, "Datum", namer.ModelName("data"))
}

func TestManyToOneFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		name     string
		columns  []string
		table    string
		expected string
	}{
		{"id suffix", []string{"author_id"}, "users", "author"},
		{"long prefix", []string{"created_by_user_id"}, "users", "createdByUser"},
		{"fk suffix", []string{"owner_fk"}, "users", "owner"},
		{"no suffix", []string{"simple"}, "users", "simple"},
		{"bare suffix", []string{"_id"}, "users", "Id"},
		{"composite", []string{"tenant_id", "user_id"}, "users", "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.ManyToOneFieldName(tt.columns, tt.table))
		})
	}
}

func TestOneToManyFieldName(t *testing.T) {
	namer := Default()

	tests := []struct {
		sourceTable string
		fkColumn    string
		isOnlyFK    bool
		expected    string
	}{
		{"comments", "user_id", true, "comments"},
		{"posts", "author_id", false, "authorPosts"},
		{"posts", "editor_id", false, "editorPosts"},
		{"order_items", "order_id", true, "orderItems"},
	}

	for _, tt := range tests {
		t.Run(tt.sourceTable+"_"+tt.fkColumn, func(t *testing.T) {
			result := namer.OneToManyFieldName(tt.sourceTable, []string{tt.fkColumn}, tt.isOnlyFK)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestJunctionFieldName(t *testing.T) {
	namer := Default()

	assert.Equal(t, "tags", namer.JunctionFieldName("post_tags", "posts", "tags", "tags"))
	assert.Equal(t, "posts", namer.JunctionFieldName("post_tags", "posts", "tags", "posts"))
	assert.Equal(t, "bookmarks", namer.JunctionFieldName("bookmarks", "posts", "users", "posts"))
}

func TestRegisterScalarField_ReservedKeywords(t *testing.T) {
	var buf bytes.Buffer
	namer := New(DefaultConfig(), slog.New(slog.NewTextHandler(&buf, nil)))

	assert.Equal(t, "AND_", namer.RegisterScalarField("Gate", "AND"))
	assert.Equal(t, "or", namer.RegisterScalarField("Gate", "or"))
	assert.Contains(t, buf.String(), "filter keyword")
}

func TestModelName_Reserved(t *testing.T) {
	namer := Default()
	assert.Equal(t, "Query_", namer.ModelName("queries"))
}

func TestRegisterModel_Collision(t *testing.T) {
	var buf bytes.Buffer
	namer := New(DefaultConfig(), slog.New(slog.NewTextHandler(&buf, nil)))

	assert.Equal(t, "User", namer.RegisterModel("users"))
	assert.Equal(t, "User2", namer.RegisterModel("user"))
	assert.Contains(t, buf.String(), "naming collision detected")

	namer.Reset()
	assert.Equal(t, "User", namer.RegisterModel("user"))
}

func TestRegisterRelationField(t *testing.T) {
	namer := Default()
	namer.RegisterScalarField("Post", "author")

	assert.Equal(t, "authorRef", namer.RegisterRelationField("Post", "author", "posts.author", true))
	namer.RegisterScalarField("User", "posts")
	assert.Equal(t, "postsRel", namer.RegisterRelationField("User", "posts", "posts.author", false))
	assert.Equal(t, "comments", namer.RegisterRelationField("User", "comments", "comments.user_id", false))
}

func TestRegisterManyToManyField(t *testing.T) {
	namer := Default()
	namer.RegisterRelationField("Post", "tags", "tags.post_id", false)

	assert.Equal(t, "tagsViaPostTags", namer.RegisterManyToManyField("Post", "tags", "post_tags"))
	assert.Equal(t, "categories", namer.RegisterManyToManyField("Post", "categories", "post_categories"))
}

func TestRegisterRelation(t *testing.T) {
	namer := Default()

	assert.Equal(t, "PostToUser", namer.RegisterRelation("User", "Post", "posts.author_id"))
	assert.Equal(t, "PostToUser2", namer.RegisterRelation("Post", "User", "posts.editor_id"))
	assert.Equal(t, "UserToUser", namer.RegisterRelation("User", "User", "users.manager_id"))
}
