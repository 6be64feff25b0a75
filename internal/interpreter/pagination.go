package interpreter

import (
	"query-engine/internal/connector"
	"query-engine/internal/models"
)

// NestedPagination applies skip, first and last per parent to the records
// of a nested read, keeping the order of the input.
type NestedPagination struct {
	skip  *int64
	first *int64
	last  *int64
}

// NewNestedPagination takes the pagination arguments of a nested read.
func NewNestedPagination(args connector.QueryArguments) NestedPagination {
	return NestedPagination{skip: args.Skip, first: args.First, last: args.Last}
}

// IsEmpty reports whether no pagination applies.
func (p NestedPagination) IsEmpty() bool {
	return p.skip == nil && p.first == nil && p.last == nil
}

// Apply drops the records outside each parent's page.
func (p NestedPagination) Apply(records *models.ManyRecords) {
	if p.IsEmpty() || records.Len() == 0 {
		return
	}

	totals := make(map[string]int64)
	for _, r := range records.Records {
		totals[parentKey(r)]++
	}

	seen := make(map[string]int64)
	kept := records.Records[:0]
	for _, r := range records.Records {
		key := parentKey(r)
		idx := seen[key]
		seen[key]++
		if p.keep(idx, totals[key]) {
			kept = append(kept, r)
		}
	}
	records.Records = kept
}

func (p NestedPagination) keep(idx, total int64) bool {
	var skip int64
	if p.skip != nil {
		skip = *p.skip
	}
	if idx < skip {
		return false
	}
	pos := idx - skip
	remaining := total - skip
	if p.first != nil {
		if pos >= *p.first {
			return false
		}
		if remaining > *p.first {
			remaining = *p.first
		}
	}
	if p.last != nil && pos < remaining-*p.last {
		return false
	}
	return true
}

func parentKey(r models.Record) string {
	if r.ParentID == nil {
		return ""
	}
	return r.ParentID.Key()
}
