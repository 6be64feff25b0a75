package schemarefresh

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"query-engine/internal/introspection"
	"query-engine/internal/junction"
	"query-engine/internal/models"
	"query-engine/internal/naming"
)

// BuildConfig defines inputs for data model assembly.
type BuildConfig struct {
	Queryer      introspection.Queryer
	DatabaseName string
	// Tables are glob patterns of the tables exposed as models.
	Tables []string
	Naming naming.Config
	Logger *slog.Logger
}

// BuildResult contains the artifacts produced by Build.
type BuildResult struct {
	DBSchema  *introspection.Schema
	Junctions junction.Map
	Schema    models.Schema
	DataModel *models.InternalDataModel
}

// Build runs the assembly pipeline: introspect, classify join tables, name
// everything, then materialize the model arena.
func Build(ctx context.Context, cfg BuildConfig) (*BuildResult, error) {
	if cfg.Queryer == nil {
		return nil, fmt.Errorf("data model builder requires an introspection queryer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbSchema, err := introspection.IntrospectDatabase(ctx, cfg.Queryer, cfg.DatabaseName, cfg.Tables)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect database: %w", err)
	}

	junctions := junction.ClassifyJunctions(dbSchema)
	schema := ModelSchema(dbSchema, junctions, naming.New(cfg.Naming, logger), logger)

	dm, err := models.Build(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to build data model: %w", err)
	}
	return &BuildResult{DBSchema: dbSchema, Junctions: junctions, Schema: schema, DataModel: dm}, nil
}

type modeledTable struct {
	table  introspection.Table
	model  string
	fields map[string]string // column → field name
}

// ModelSchema converts introspected tables into a model schema.
//   - Tables without a primary key are skipped.
//   - Foreign keys become relations inlined on the referencing model; the key
//     columns stay visible as scalar fields.
//   - Pure junction tables become join table relations instead of models.
//   - Foreign keys to tables outside the schema are ignored.
func ModelSchema(dbSchema *introspection.Schema, junctions junction.Map, namer *naming.Namer, logger *slog.Logger) models.Schema {
	var schema models.Schema
	modeled := make(map[string]*modeledTable)
	var order []string

	for _, table := range dbSchema.Tables {
		if _, ok := junctions.Pure(table.Name); ok {
			continue
		}
		if len(introspection.PrimaryKeyColumns(table)) == 0 {
			logger.Warn("skipping table without primary key", slog.String("table", table.Name))
			continue
		}
		mt := &modeledTable{table: table, model: namer.RegisterModel(table.Name), fields: map[string]string{}}
		modeled[table.Name] = mt
		order = append(order, table.Name)
		schema.Models = append(schema.Models, modelTemplate(mt, namer))
	}

	for _, name := range order {
		holder := modeled[name]
		constraints := introspection.ForeignKeyConstraints(holder.table)
		for _, fk := range constraints {
			target, ok := modeled[fk.ReferencedTable]
			if !ok {
				logger.Debug("ignoring foreign key to unmodeled table",
					slog.String("table", name),
					slog.String("referenced_table", fk.ReferencedTable),
				)
				continue
			}
			rel, err := inlineRelation(holder, target, fk, countReferences(constraints, fk.ReferencedTable) == 1, namer)
			if err != nil {
				logger.Warn("skipping foreign key", slog.String("table", name), slog.String("error", err.Error()))
				continue
			}
			schema.Relations = append(schema.Relations, rel)
		}
	}

	junctionNames := make([]string, 0, len(junctions))
	for name := range junctions {
		junctionNames = append(junctionNames, name)
	}
	sort.Strings(junctionNames)
	for _, name := range junctionNames {
		info, ok := junctions.Pure(name)
		if !ok {
			continue
		}
		left, lok := modeled[info.LeftFK.ReferencedTable]
		right, rok := modeled[info.RightFK.ReferencedTable]
		if !lok || !rok {
			continue
		}
		schema.Relations = append(schema.Relations, joinTableRelation(info, left, right, namer))
	}
	return schema
}

func modelTemplate(mt *modeledTable, namer *naming.Namer) models.ModelTemplate {
	unique := singleColumnUniques(mt.table)
	tmpl := models.ModelTemplate{Name: mt.model, DBName: mt.table.Name}
	for _, col := range mt.table.Columns {
		field := namer.RegisterScalarField(mt.model, col.Name)
		mt.fields[col.Name] = field
		tmpl.Fields = append(tmpl.Fields, models.ScalarFieldTemplate{
			Name:       field,
			DBName:     col.Name,
			Type:       introspection.TypeIdentifier(col),
			IsID:       col.IsPrimaryKey,
			IsRequired: !col.IsNullable,
			IsUnique:   unique[col.Name],
		})
	}
	for _, col := range introspection.PrimaryKeyColumns(mt.table) {
		tmpl.PrimaryKey = append(tmpl.PrimaryKey, mt.fields[col.Name])
	}
	return tmpl
}

func singleColumnUniques(table introspection.Table) map[string]bool {
	out := make(map[string]bool)
	for _, set := range introspection.UniqueColumnSets(table) {
		if len(set) == 1 {
			out[set[0]] = true
		}
	}
	return out
}

func countReferences(constraints []introspection.ForeignKeyConstraint, table string) int {
	n := 0
	for _, fk := range constraints {
		if fk.ReferencedTable == table {
			n++
		}
	}
	return n
}

func inlineRelation(holder, target *modeledTable, fk introspection.ForeignKeyConstraint, isOnlyFK bool, namer *naming.Namer) (models.RelationTemplate, error) {
	referenced := make([]string, 0, len(fk.ReferencedColumns))
	for _, col := range fk.ReferencedColumns {
		field, ok := target.fields[col]
		if !ok {
			return models.RelationTemplate{}, fmt.Errorf("referenced column %s.%s not found", target.table.Name, col)
		}
		referenced = append(referenced, field)
	}

	required := true
	for _, name := range fk.ColumnNames {
		col, ok := holder.table.Column(name)
		if !ok {
			return models.RelationTemplate{}, fmt.Errorf("foreign key column %s.%s not found", holder.table.Name, name)
		}
		if col.IsNullable {
			required = false
		}
	}

	source := holder.table.Name + "." + strings.Join(fk.ColumnNames, ",")
	toOneName := namer.ManyToOneFieldName(fk.ColumnNames, fk.ReferencedTable)
	backIsList := !isUniqueSet(holder.table, fk.ColumnNames)
	backName := namer.OneToManyFieldName(holder.table.Name, fk.ColumnNames, isOnlyFK)
	if !backIsList {
		backName = namer.FieldName(namer.Singularize(holder.table.Name))
		if !isOnlyFK {
			backName = toOneName + strings.ToUpper(backName[:1]) + backName[1:]
		}
	}

	fieldA := namer.RegisterRelationField(holder.model, toOneName, source, true)
	fieldB := namer.RegisterRelationField(target.model, backName, source, !backIsList)

	return models.RelationTemplate{
		Name:               namer.RegisterRelation(holder.model, target.model, source),
		ModelA:             holder.model,
		FieldA:             fieldA,
		FieldARequired:     required,
		ModelB:             target.model,
		FieldB:             fieldB,
		FieldBIsList:       backIsList,
		Inline:             models.SideA,
		ReferencingColumns: fk.ColumnNames,
		ReferencedFields:   referenced,
	}, nil
}

func isUniqueSet(table introspection.Table, columns []string) bool {
	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
	}
	for _, set := range introspection.UniqueColumnSets(table) {
		if len(set) != len(want) {
			continue
		}
		match := true
		for _, c := range set {
			if !want[c] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func joinTableRelation(info junction.Info, left, right *modeledTable, namer *naming.Namer) models.RelationTemplate {
	leftTable, rightTable := info.LeftFK.ReferencedTable, info.RightFK.ReferencedTable
	fieldA := namer.RegisterManyToManyField(left.model,
		namer.JunctionFieldName(info.Table, leftTable, rightTable, rightTable), info.Table)
	fieldB := namer.RegisterManyToManyField(right.model,
		namer.JunctionFieldName(info.Table, leftTable, rightTable, leftTable), info.Table)

	return models.RelationTemplate{
		Name:         namer.RegisterRelation(left.model, right.model, info.Table),
		ModelA:       left.model,
		FieldA:       fieldA,
		FieldAIsList: true,
		ModelB:       right.model,
		FieldB:       fieldB,
		FieldBIsList: true,
		JoinTable:    info.Table,
		JoinColumnsA: info.LeftFK.ColumnNames,
		JoinColumnsB: info.RightFK.ColumnNames,
	}
}
