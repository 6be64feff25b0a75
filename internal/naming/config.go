// Package naming turns table and column names into model, field and relation
// names. It applies pluralization overrides, keeps filter keywords free and
// resolves collisions with numeric or positional suffixes.
package naming

// Config overrides inflection for words the inflection rules get wrong.
// Plurals name list relation fields, singulars name models.
type Config struct {
	// PluralOverrides maps a singular to its plural, e.g. {"person": "people"}.
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
	// SingularOverrides maps a plural to its singular, e.g. {"data": "datum"}.
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns empty override maps.
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
	}
}
