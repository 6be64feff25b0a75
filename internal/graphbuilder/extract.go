package graphbuilder

import (
	"sort"
	"strings"

	"query-engine/internal/connector"
	"query-engine/internal/cursor"
	"query-engine/internal/filter"
	"query-engine/internal/models"
)

// ExtractQueryArgs reads skip, first, last, after, before, orderBy and
// where from a decoded argument map. Unknown keys are ignored.
func ExtractQueryArgs(args map[string]any, model *models.Model) (connector.QueryArguments, error) {
	var out connector.QueryArguments
	for _, key := range sortedKeys(args) {
		value := args[key]
		var err error
		switch key {
		case "skip":
			out.Skip, err = extractCount(key, value)
		case "first":
			out.First, err = extractCount(key, value)
		case "last":
			out.Last, err = extractCount(key, value)
		case "after":
			out.After, err = extractCursor(key, value, model)
		case "before":
			out.Before, err = extractCursor(key, value, model)
		case "orderBy":
			out.OrderBy, err = extractOrderBy(value, model)
		case "where":
			if value == nil {
				continue
			}
			where, ok := value.(map[string]any)
			if !ok {
				return out, inputErrorf("where", "expected an object")
			}
			out.Filter, err = ExtractFilter(where, model)
		}
		if err != nil {
			return connector.QueryArguments{}, err
		}
	}
	return out, nil
}

func extractCount(key string, value any) (*int64, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := models.ParseValue(models.TypeInt, value)
	if err != nil {
		return nil, inputErrorf(key, "%v", err)
	}
	n := parsed.(int64)
	if n < 0 {
		return nil, inputErrorf(key, "must not be negative, got %d", n)
	}
	return &n, nil
}

func extractOrderBy(value any, model *models.Model) (*connector.OrderBy, error) {
	if value == nil {
		return nil, nil
	}
	m, ok := value.(map[string]any)
	if !ok || len(m) != 1 {
		return nil, inputErrorf("orderBy", "expected an object with exactly one field")
	}
	for name, dir := range m {
		sf, err := model.FindScalarField(name)
		if err != nil {
			return nil, inputErrorf("orderBy", "%v", err)
		}
		direction, _ := dir.(string)
		switch strings.ToLower(direction) {
		case "asc":
			return &connector.OrderBy{Field: sf, SortOrder: connector.Ascending}, nil
		case "desc":
			return &connector.OrderBy{Field: sf, SortOrder: connector.Descending}, nil
		default:
			return nil, inputErrorf("orderBy."+name, "direction must be asc or desc")
		}
	}
	return nil, nil
}

// extractCursor accepts null (no cursor), an opaque cursor string, or a map
// of field to value. Compound fields take a nested map of their parts.
func extractCursor(key string, value any, model *models.Model) (*models.RecordProjection, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		rp, err := cursor.Decode(model, v)
		if err != nil {
			return nil, inputErrorf(key, "%v", err)
		}
		return &rp, nil
	case map[string]any:
		var pairs []models.Pair
		for _, name := range fieldOrder(v, model) {
			fieldPairs, err := resolvePairs(key+"."+name, name, v[name], model)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, fieldPairs...)
		}
		rp := models.NewRecordProjection(pairs...)
		return &rp, nil
	default:
		return nil, inputErrorf(key, "expected a cursor string or object")
	}
}

// resolvePairs maps one input field to column/value pairs. Regular fields
// are tried first, then compound identifiers.
func resolvePairs(path, name string, value any, model *models.Model) ([]models.Pair, error) {
	field, err := model.FindField(name)
	if err != nil {
		fields, ok := model.ResolveCompoundField(name)
		if !ok {
			return nil, inputErrorf(path, "unable to resolve field %s to a field or a set of fields on model %s", name, model.Name)
		}
		nested, ok := value.(map[string]any)
		if !ok {
			return nil, inputErrorf(path, "expected an object for compound field")
		}
		var pairs []models.Pair
		for _, f := range fields {
			sub, ok := nested[f.Name()]
			if !ok {
				return nil, inputErrorf(path+"."+f.Name(), "missing value")
			}
			ds := f.DataSourceFields()[0]
			parsed, err := models.ParseValue(ds.Type, sub)
			if err != nil {
				return nil, inputErrorf(path+"."+f.Name(), "%v", err)
			}
			pairs = append(pairs, models.Pair{Field: ds, Value: parsed})
		}
		return pairs, nil
	}

	ds := field.DataSourceFields()
	switch len(ds) {
	case 0:
		return nil, inputErrorf(path, "field %s has no columns on %s", name, model.Name)
	case 1:
		parsed, err := models.ParseValue(ds[0].Type, value)
		if err != nil {
			return nil, inputErrorf(path, "%v", err)
		}
		return []models.Pair{{Field: ds[0], Value: parsed}}, nil
	}

	// Relation fields spanning several columns are keyed by column name.
	nested, ok := value.(map[string]any)
	if !ok {
		return nil, inputErrorf(path, "expected an object keyed by column")
	}
	pairs := make([]models.Pair, 0, len(ds))
	for _, d := range ds {
		parsed, err := models.ParseValue(d.Type, nested[d.Name])
		if err != nil {
			return nil, inputErrorf(path+"."+d.Name, "%v", err)
		}
		pairs = append(pairs, models.Pair{Field: d, Value: parsed})
	}
	return pairs, nil
}

// ExtractFilter builds a filter from a where object. Field values are either
// plain values (equality) or operator objects with equals, not, in, notIn,
// lt, lte, gt and gte. AND, OR and NOT take a list of where objects.
func ExtractFilter(where map[string]any, model *models.Model) (filter.Filter, error) {
	var parts []filter.Filter
	for _, key := range fieldOrder(where, model) {
		value := where[key]
		switch key {
		case "AND", "OR", "NOT":
			var children []filter.Filter
			for _, item := range coerceList(value) {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, inputErrorf(key, "expected a list of objects")
				}
				child, err := ExtractFilter(m, model)
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
			switch key {
			case "AND":
				parts = append(parts, filter.And(children...))
			case "OR":
				parts = append(parts, filter.Or(children...))
			default:
				parts = append(parts, filter.Not(children...))
			}
			continue
		}

		if sf, err := model.FindScalarField(key); err == nil {
			f, err := scalarFilter(key, sf, value)
			if err != nil {
				return nil, err
			}
			parts = append(parts, f)
			continue
		}

		pairs, err := resolvePairs(key, key, value, model)
		if err != nil {
			return nil, err
		}
		parts = append(parts, filter.FromProjection(models.NewRecordProjection(pairs...)))
	}
	return filter.And(parts...), nil
}

// ExtractUniqueFilter builds an equality filter from a unique selector:
// unique scalar fields or the compound identifier.
func ExtractUniqueFilter(selector map[string]any, model *models.Model) (filter.Filter, error) {
	var pairs []models.Pair
	for _, key := range fieldOrder(selector, model) {
		if sf, err := model.FindScalarField(key); err == nil && !sf.Unique() {
			return nil, inputErrorf(key, "field %s is not unique on %s", key, model.Name)
		}
		if _, err := model.FindRelationField(key); err == nil {
			return nil, inputErrorf(key, "relation field %s cannot select a unique record", key)
		}
		if selector[key] == nil {
			return nil, inputErrorf(key, "unique selector must not be null")
		}
		resolved, err := resolvePairs(key, key, selector[key], model)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, resolved...)
	}
	return filter.FromProjection(models.NewRecordProjection(pairs...)), nil
}

var scalarOperators = map[string]filter.Condition{
	"equals": filter.Equals,
	"not":    filter.NotEquals,
	"lt":     filter.LessThan,
	"lte":    filter.LessThanOrEquals,
	"gt":     filter.GreaterThan,
	"gte":    filter.GreaterThanOrEquals,
}

func scalarFilter(path string, sf *models.ScalarField, value any) (filter.Filter, error) {
	ds := sf.DataSourceField()
	ops, ok := value.(map[string]any)
	if !ok {
		parsed, err := models.ParseValue(ds.Type, value)
		if err != nil {
			return nil, inputErrorf(path, "%v", err)
		}
		return filter.EqualsValue(ds, parsed), nil
	}

	var parts []filter.Filter
	for _, op := range sortedKeys(ops) {
		switch op {
		case "in", "notIn":
			list, ok := ops[op].([]any)
			if !ok {
				return nil, inputErrorf(path+"."+op, "expected a list")
			}
			values := make([]models.Value, 0, len(list))
			for _, item := range list {
				parsed, err := models.ParseValue(ds.Type, item)
				if err != nil {
					return nil, inputErrorf(path+"."+op, "%v", err)
				}
				values = append(values, parsed)
			}
			cond := filter.In
			if op == "notIn" {
				cond = filter.NotIn
			}
			parts = append(parts, &filter.ScalarFilter{Field: ds, Condition: cond, Values: values})
		default:
			cond, known := scalarOperators[op]
			if !known {
				return nil, inputErrorf(path+"."+op, "unknown operator")
			}
			parsed, err := models.ParseValue(ds.Type, ops[op])
			if err != nil {
				return nil, inputErrorf(path+"."+op, "%v", err)
			}
			parts = append(parts, filter.Scalar(ds, cond, parsed))
		}
	}
	return filter.And(parts...), nil
}

// fieldOrder returns the keys of m ordered by field declaration, then
// alphabetically for keys that are not scalar fields.
func fieldOrder(m map[string]any, model *models.Model) []string {
	position := make(map[string]int, len(model.ScalarFields()))
	for i, sf := range model.ScalarFields() {
		position[sf.Name()] = i
	}
	keys := sortedKeys(m)
	sort.SliceStable(keys, func(i, j int) bool {
		pi, iok := position[keys[i]]
		pj, jok := position[keys[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok != jok:
			return iok
		default:
			return false
		}
	})
	return keys
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
