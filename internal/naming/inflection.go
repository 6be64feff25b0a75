package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form. Overrides are looked
// up case-insensitively before falling back to the inflection rules.
func (n *Namer) Pluralize(word string) string {
	if override, ok := lookupOverride(n.config.PluralOverrides, word); ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
func (n *Namer) Singularize(word string) string {
	if override, ok := lookupOverride(n.config.SingularOverrides, word); ok {
		return override
	}
	return inflection.Singular(word)
}

func lookupOverride(overrides map[string]string, word string) (string, bool) {
	if override, ok := overrides[word]; ok {
		return override, true
	}
	lower := strings.ToLower(word)
	for from, to := range overrides {
		if strings.ToLower(from) == lower {
			return to, true
		}
	}
	return "", false
}
