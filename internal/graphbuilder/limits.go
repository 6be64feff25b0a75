package graphbuilder

// PageLimits bound the page sizes a document may request.
type PageLimits struct {
	// DefaultPageSize applies to a top-level findMany without first or last.
	DefaultPageSize int
	// MaxPageSize caps first and last at every level. Zero disables the cap.
	MaxPageSize int
}

// ApplyPageLimits fills in the default page size of a top-level findMany
// and rejects first or last above the maximum anywhere in the document.
func ApplyPageLimits(doc *Document, limits PageLimits) error {
	if doc.Action == ActionFindMany && limits.DefaultPageSize > 0 && !hasPageSize(doc.Args) {
		if doc.Args == nil {
			doc.Args = make(map[string]any, 1)
		}
		doc.Args["first"] = int64(limits.DefaultPageSize)
	}
	if limits.MaxPageSize <= 0 {
		return nil
	}
	if err := checkPageSize("args", doc.Args, limits.MaxPageSize); err != nil {
		return err
	}
	return checkNestedPageSizes("include", doc.Include, limits.MaxPageSize)
}

func hasPageSize(args map[string]any) bool {
	return args["first"] != nil || args["last"] != nil
}

func checkPageSize(path string, args map[string]any, max int) error {
	for _, key := range []string{"first", "last"} {
		n, err := extractCount(path+"."+key, args[key])
		if err != nil {
			return err
		}
		if n != nil && *n > int64(max) {
			return inputErrorf(path+"."+key, "must not exceed %d, got %d", max, *n)
		}
	}
	return nil
}

func checkNestedPageSizes(path string, include map[string]Selection, max int) error {
	for _, name := range sortedSelectionNames(include) {
		sel := include[name]
		if err := checkPageSize(path+"."+name+".args", sel.Args, max); err != nil {
			return err
		}
		if err := checkNestedPageSizes(path+"."+name+".include", sel.Include, max); err != nil {
			return err
		}
	}
	return nil
}
