package graphbuilder

import (
	"fmt"
	"sort"

	"query-engine/internal/connector"
	"query-engine/internal/models"
	"query-engine/internal/queryast"
	"query-engine/internal/querygraph"
)

// Actions understood by Build.
const (
	ActionFindMany     = "findMany"
	ActionFindOne      = "findOne"
	ActionDeleteOne    = "deleteOne"
	ActionDeleteMany   = "deleteMany"
	ActionDeleteNested = "deleteNested"
)

// Document is one JSON request.
//
//	{"action": "findMany", "model": "User",
//	 "args": {"where": {"name": "ada"}, "first": 10},
//	 "include": {"posts": {"args": {"orderBy": {"title": "asc"}}}}}
//
// cursors adds an opaque "_cursor" to every listed record, usable as the
// after or before argument of a later request.
//
// deleteNested selects a parent with args.where and deletes related
// records listed under data:
//
//	{"action": "deleteNested", "model": "User", "args": {"where": {"id": 1}},
//	 "data": {"posts": {"delete": [{"id": 7}], "deleteMany": [{"title": "draft"}]}}}
type Document struct {
	Action  string                 `json:"action"`
	Model   string                 `json:"model"`
	Name    string                 `json:"name,omitempty"`
	Args    map[string]any         `json:"args,omitempty"`
	Select  []string               `json:"select,omitempty"`
	Include map[string]Selection   `json:"include,omitempty"`
	Data    map[string]NestedWrite `json:"data,omitempty"`
	Cursors bool                   `json:"cursors,omitempty"`
}

// Selection is a nested read of a relation field.
type Selection struct {
	Args    map[string]any       `json:"args,omitempty"`
	Select  []string             `json:"select,omitempty"`
	Include map[string]Selection `json:"include,omitempty"`
	Cursors bool                 `json:"cursors,omitempty"`
}

// NestedWrite lists the nested deletes applied to one relation field.
type NestedWrite struct {
	Delete     any `json:"delete,omitempty"`
	DeleteMany any `json:"deleteMany,omitempty"`
}

// ResultName returns the key the document's result is rendered under.
func (d Document) ResultName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Action + d.Model
}

// Build turns a document into a query graph.
func Build(dm *models.InternalDataModel, doc Document) (*querygraph.Graph, error) {
	model, err := dm.FindModel(doc.Model)
	if err != nil {
		return nil, inputErrorf("model", "%v", err)
	}
	g := querygraph.New()

	switch doc.Action {
	case ActionFindMany:
		q, err := buildManyRecordsQuery(doc, model)
		if err != nil {
			return nil, err
		}
		return g, g.MarkResult(g.CreateQueryNode(q))

	case ActionFindOne:
		q, err := buildRecordQuery(doc, model)
		if err != nil {
			return nil, err
		}
		return g, g.MarkResult(g.CreateQueryNode(q))

	case ActionDeleteOne, ActionDeleteMany:
		if err := buildDelete(g, doc, model); err != nil {
			return nil, err
		}
		return g, nil

	case ActionDeleteNested:
		if err := buildDeleteNested(g, doc, model); err != nil {
			return nil, err
		}
		return g, nil

	default:
		return nil, inputErrorf("action", "unsupported action %q", doc.Action)
	}
}

func buildManyRecordsQuery(doc Document, model *models.Model) (*queryast.ManyRecordsQuery, error) {
	args, err := ExtractQueryArgs(doc.Args, model)
	if err != nil {
		return nil, err
	}
	nested, err := buildNested(doc.Include, model)
	if err != nil {
		return nil, err
	}
	selected, err := selectedFields(model, doc.Select, doc.Include)
	if err != nil {
		return nil, err
	}
	return &queryast.ManyRecordsQuery{
		Name:           doc.ResultName(),
		Model:          model,
		Args:           args,
		SelectedFields: selected,
		Nested:         nested,
		EmitCursors:    doc.Cursors,
	}, nil
}

func buildRecordQuery(doc Document, model *models.Model) (*queryast.RecordQuery, error) {
	args, err := ExtractQueryArgs(doc.Args, model)
	if err != nil {
		return nil, err
	}
	if args.HasPagination() || args.HasCursor() {
		return nil, inputErrorf("args", "%s takes only a where argument", doc.Action)
	}
	nested, err := buildNested(doc.Include, model)
	if err != nil {
		return nil, err
	}
	selected, err := selectedFields(model, doc.Select, doc.Include)
	if err != nil {
		return nil, err
	}
	return &queryast.RecordQuery{
		Name:           doc.ResultName(),
		Model:          model,
		Where:          args.Filter,
		SelectedFields: selected,
		Nested:         nested,
	}, nil
}

func buildDelete(g *querygraph.Graph, doc Document, model *models.Model) error {
	args, err := ExtractQueryArgs(doc.Args, model)
	if err != nil {
		return err
	}

	var del querygraph.NodeRef
	if doc.Action == ActionDeleteOne {
		if args.Filter == nil {
			return inputErrorf("args.where", "deleteOne requires a where argument")
		}
		del = g.CreateQueryNode(&queryast.DeleteRecord{Model: model, Where: args.Filter})
	} else {
		del = g.CreateQueryNode(&queryast.DeleteManyRecords{Model: model, Where: args.Filter})
	}
	if err := g.MarkResult(del); err != nil {
		return err
	}

	if len(model.DataModel().FieldsRequiringModel(model.ID)) == 0 {
		return nil
	}
	find := g.CreateQueryNode(&queryast.ManyRecordsQuery{
		Name:           "find_records_to_delete",
		Model:          model,
		Args:           connector.QueryArguments{Filter: args.Filter},
		SelectedFields: connector.FromProjection(model.PrimaryIdentifier()),
	})
	return InsertDeletionChecks(g, model, find, del)
}

func buildDeleteNested(g *querygraph.Graph, doc Document, model *models.Model) error {
	parentDoc := doc
	parentDoc.Action = ActionFindOne
	parent, err := buildRecordQuery(parentDoc, model)
	if err != nil {
		return err
	}
	if parent.Where == nil {
		return inputErrorf("args.where", "deleteNested requires a where argument")
	}
	parent.Name = doc.ResultName()
	for _, rf := range model.RelationFields() {
		parent.SelectedFields = parent.SelectedFields.Merge(rf.LinkingFields())
	}
	parentNode := g.CreateQueryNode(parent)
	if err := g.MarkResult(parentNode); err != nil {
		return err
	}

	names := make([]string, 0, len(doc.Data))
	for name := range doc.Data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field, err := model.FindRelationField(name)
		if err != nil {
			return inputErrorf("data."+name, "%v", err)
		}
		write := doc.Data[name]
		if write.Delete != nil {
			if err := ConnectNestedDelete(g, parentNode, field, write.Delete); err != nil {
				return err
			}
		}
		if write.DeleteMany != nil {
			if !field.IsList {
				return inputErrorf("data."+name+".deleteMany", "deleteMany requires a list relation")
			}
			if err := ConnectNestedDeleteMany(g, parentNode, field, write.DeleteMany); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildNested(include map[string]Selection, model *models.Model) ([]queryast.ReadQuery, error) {
	names := sortedSelectionNames(include)
	nested := make([]queryast.ReadQuery, 0, len(names))
	for _, name := range names {
		sel := include[name]
		field, err := model.FindRelationField(name)
		if err != nil {
			return nil, inputErrorf("include."+name, "%v", err)
		}
		child, err := field.RelatedModel()
		if err != nil {
			return nil, err
		}
		args, err := ExtractQueryArgs(sel.Args, child)
		if err != nil {
			return nil, err
		}
		if !field.IsList && (args.HasPagination() || args.HasCursor()) {
			return nil, inputErrorf("include."+name+".args", "pagination requires a list relation")
		}
		if !field.IsList && sel.Cursors {
			return nil, inputErrorf("include."+name+".cursors", "cursors require a list relation")
		}
		children, err := buildNested(sel.Include, child)
		if err != nil {
			return nil, err
		}
		selected, err := selectedFields(child, sel.Select, sel.Include)
		if err != nil {
			return nil, err
		}
		related, err := field.RelatedField()
		if err != nil {
			return nil, err
		}
		nested = append(nested, &queryast.RelatedRecordsQuery{
			Name:           name,
			ParentField:    field,
			Args:           args,
			SelectedFields: selected.Merge(related.LinkingFields()),
			Nested:         children,
			EmitCursors:    sel.Cursors,
		})
	}
	return nested, nil
}

// selectedFields resolves an explicit selection (or every scalar) plus the
// primary identifier and the linking fields of included relations.
func selectedFields(model *models.Model, names []string, include map[string]Selection) (connector.SelectedFields, error) {
	var selected connector.SelectedFields
	if len(names) == 0 {
		selected = connector.SelectAll(model)
	} else {
		fields := make([]models.Field, 0, len(names))
		for _, name := range names {
			sf, err := model.FindScalarField(name)
			if err != nil {
				return connector.SelectedFields{}, inputErrorf("select", "%v", err)
			}
			fields = append(fields, sf)
		}
		selected = connector.NewSelectedFields(fields...)
	}
	selected = selected.Merge(model.PrimaryIdentifier())
	for _, name := range sortedSelectionNames(include) {
		rf, err := model.FindRelationField(name)
		if err != nil {
			return connector.SelectedFields{}, inputErrorf("include."+name, "%v", err)
		}
		selected = selected.Merge(rf.LinkingFields())
	}
	return selected, nil
}

func sortedSelectionNames(include map[string]Selection) []string {
	names := make([]string, 0, len(include))
	for name := range include {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d Document) String() string {
	return fmt.Sprintf("%s(%s)", d.Action, d.Model)
}
