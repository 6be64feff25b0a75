// Package cursor builds keyset pagination conditions and encodes opaque
// cursors. Opaque cursors are base64-encoded JSON carrying the model name,
// the identifier columns and string-coerced values.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"query-engine/internal/models"
)

type payload struct {
	Version int      `json:"v"`
	Model   string   `json:"m"`
	Fields  []string `json:"f"`
	Values  []string `json:"vals"`
}

// Encode builds an opaque cursor for the record identified by rp.
// Values are string-coerced for JSON safety (avoids float64→int64 precision loss).
func Encode(model *models.Model, rp models.RecordProjection) string {
	p := payload{Version: 1, Model: model.Name}
	for _, pair := range rp.Pairs {
		p.Fields = append(p.Fields, pair.Field.Name)
		p.Values = append(p.Values, models.FormatValue(pair.Value))
	}
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses an opaque cursor and validates it against the model's
// primary identifier.
func Decode(model *models.Model, raw string) (models.RecordProjection, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return models.RecordProjection{}, fmt.Errorf("invalid cursor: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.RecordProjection{}, fmt.Errorf("invalid cursor format")
	}
	if p.Version != 1 {
		return models.RecordProjection{}, fmt.Errorf("invalid cursor format: unsupported version %d", p.Version)
	}
	if p.Model != model.Name {
		return models.RecordProjection{}, fmt.Errorf("cursor model mismatch: expected %s, got %s", model.Name, p.Model)
	}

	id := model.PrimaryIdentifier().DataSourceFields()
	if len(p.Fields) != len(id) || len(p.Values) != len(id) {
		return models.RecordProjection{}, fmt.Errorf("invalid cursor: expected %d identifier values, got %d", len(id), len(p.Values))
	}
	pairs := make([]models.Pair, len(id))
	for i, f := range id {
		if p.Fields[i] != f.Name {
			return models.RecordProjection{}, fmt.Errorf("cursor field mismatch at position %d: expected %s, got %s", i, f.Name, p.Fields[i])
		}
		v, err := models.ParseValue(f.Type, p.Values[i])
		if err != nil {
			return models.RecordProjection{}, fmt.Errorf("invalid cursor value for %s: %w", f.Name, err)
		}
		pairs[i] = models.Pair{Field: f, Value: v}
	}
	return models.NewRecordProjection(pairs...), nil
}
