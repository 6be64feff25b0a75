package naming

import (
	"log/slog"
	"sort"
	"strings"
)

// Namer provides all name transformations from SQL names to model names.
// It is stateful: registrations accumulate until Reset.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new data model build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// ModelName converts a table name to a singular PascalCase model name.
// Example: "user_profiles" -> "UserProfile"
func (n *Namer) ModelName(tableName string) string {
	name := toPascalCase(n.Singularize(tableName))
	if isReservedModelName(name) {
		n.logger.Warn("model name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", name+"_"),
		)
		return name + "_"
	}
	return name
}

// FieldName converts a column name to camelCase.
// Example: "user_name" -> "userName"
func (n *Namer) FieldName(columnName string) string {
	return toCamelCase(columnName)
}

// ManyToOneFieldName names the to-one side of a foreign key after its column
// with common suffixes stripped. Composite keys are named after the
// referenced table.
// Example: "author_id" -> "author", "created_by_user_id" -> "createdByUser"
func (n *Namer) ManyToOneFieldName(fkColumns []string, referencedTable string) string {
	if len(fkColumns) != 1 {
		return n.FieldName(n.Singularize(referencedTable))
	}
	name := fkColumns[0]
	for _, suffix := range []string{"_id", "_fk"} {
		if len(name) > len(suffix) && strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.FieldName(name)
}

// OneToManyFieldName names the list side of a foreign key.
// If isOnlyFK is true (single FK from source table), uses pluralized table name.
// Otherwise, prefixes with the FK field name for disambiguation.
// Example: isOnlyFK=true: "comments" -> "comments"
// Example: isOnlyFK=false, fkColumns=["author_id"]: "posts" -> "authorPosts"
func (n *Namer) OneToManyFieldName(sourceTable string, fkColumns []string, isOnlyFK bool) string {
	tablePlural := n.Pluralize(n.FieldName(n.Singularize(sourceTable)))
	if isOnlyFK {
		return tablePlural
	}
	prefix := n.ManyToOneFieldName(fkColumns, sourceTable)
	if len(tablePlural) > 0 {
		return prefix + strings.ToUpper(tablePlural[:1]) + tablePlural[1:]
	}
	return prefix
}

// ManyToManyFieldName generates the field name for join table relations.
// Example: "employees" -> "employees", "role" -> "roles"
func (n *Namer) ManyToManyFieldName(targetTable string) string {
	return n.Pluralize(n.FieldName(n.Singularize(targetTable)))
}

// JunctionFieldName uses the target table name when the join table name is a
// plain combination of both table names, and the join table name otherwise.
func (n *Namer) JunctionFieldName(junctionTable, leftTable, rightTable, targetTable string) string {
	if !n.isSimpleJunctionName(junctionTable, leftTable, rightTable) {
		return n.Pluralize(n.FieldName(junctionTable))
	}
	return n.ManyToManyFieldName(targetTable)
}

func (n *Namer) isSimpleJunctionName(junctionTable, leftTable, rightTable string) bool {
	junctionTokens := splitTokens(junctionTable)
	if len(junctionTokens) == 0 {
		return false
	}

	allowed := make(map[string]struct{})
	n.addNameTokens(allowed, leftTable)
	n.addNameTokens(allowed, rightTable)

	for _, token := range junctionTokens {
		if _, ok := allowed[token]; !ok {
			return false
		}
	}
	return true
}

func (n *Namer) addNameTokens(set map[string]struct{}, name string) {
	for _, token := range splitTokens(name) {
		set[token] = struct{}{}
		set[n.Singularize(token)] = struct{}{}
		set[n.Pluralize(token)] = struct{}{}
	}
}

func splitTokens(name string) []string {
	tokens := strings.Split(strings.ToLower(name), "_")
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	return out
}

// RegisterModel registers a table and returns the resolved model name.
func (n *Namer) RegisterModel(tableName string) string {
	return n.resolver.RegisterModel(n.ModelName(tableName), tableName)
}

// RegisterScalarField registers a column field and returns the resolved field name.
// Columns are registered first so they keep their natural names.
func (n *Namer) RegisterScalarField(modelName, columnName string) string {
	fieldName := n.validateFieldAndSuffix(n.FieldName(columnName))
	return n.resolver.RegisterField(modelName, fieldName, "column:"+columnName)
}

// RegisterRelationField registers a relation field and returns the resolved
// name. A clash with a column gets a Ref (to-one) or Rel (list) suffix.
func (n *Namer) RegisterRelationField(modelName, fieldName, source string, isToOne bool) string {
	fieldName = n.validateFieldAndSuffix(fieldName)
	if n.resolver.FieldExists(modelName, fieldName) {
		if isToOne {
			fieldName += "Ref"
		} else {
			fieldName += "Rel"
		}
	}
	return n.resolver.RegisterField(modelName, fieldName, "relation:"+source)
}

// RegisterManyToManyField registers a join table field. A clash uses a
// Via{JoinModel} suffix before falling back to numeric suffixes.
func (n *Namer) RegisterManyToManyField(modelName, fieldName, junctionTable string) string {
	fieldName = n.validateFieldAndSuffix(fieldName)
	if n.resolver.FieldExists(modelName, fieldName) {
		fieldName += "Via" + toPascalCase(junctionTable)
	}
	return n.resolver.RegisterField(modelName, fieldName, "join:"+junctionTable)
}

// RegisterRelation names the relation between two models as "<A>To<B>" with
// both names in alphabetical order.
// Example: ("User", "Post") -> "PostToUser"
func (n *Namer) RegisterRelation(modelA, modelB, source string) string {
	names := []string{modelA, modelB}
	sort.Strings(names)
	return n.resolver.RegisterRelation(names[0]+"To"+names[1], source)
}

func (n *Namer) validateFieldAndSuffix(name string) string {
	if isReservedFieldName(name) {
		safeName := name + "_"
		n.logger.Warn("field name conflicts with filter keyword, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
