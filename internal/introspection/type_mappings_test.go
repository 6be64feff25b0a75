package introspection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"query-engine/internal/models"
)

func TestTypeIdentifier(t *testing.T) {
	tests := []struct {
		dataType   string
		columnType string
		want       models.TypeIdentifier
	}{
		{"int", "int(11)", models.TypeInt},
		{"bigint", "bigint(20) unsigned", models.TypeInt},
		{"tinyint", "tinyint(1)", models.TypeBoolean},
		{"tinyint", "tinyint(4)", models.TypeInt},
		{"bit", "bit(1)", models.TypeBoolean},
		{"bit", "bit(8)", models.TypeBytes},
		{"double", "double", models.TypeFloat},
		{"decimal", "decimal(10,2)", models.TypeDecimal},
		{"datetime", "datetime(6)", models.TypeDateTime},
		{"date", "date", models.TypeDateTime},
		{"json", "json", models.TypeJSON},
		{"varbinary", "varbinary(64)", models.TypeBytes},
		{"enum", "enum('a','b')", models.TypeEnum},
		{"char", "char(36)", models.TypeUUID},
		{"char", "char(2)", models.TypeString},
		{"varchar", "varchar(255)", models.TypeString},
		{"set", "set('x','y')", models.TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.columnType, func(t *testing.T) {
			got := TypeIdentifier(Column{DataType: tt.dataType, ColumnType: tt.columnType})
			assert.Equal(t, tt.want, got)
		})
	}
}
