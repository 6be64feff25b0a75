package introspection

import (
	"strings"

	"query-engine/internal/models"
)

// TypeIdentifier maps a column's SQL type onto the model type system.
// tinyint(1) is treated as a boolean and char(36) as a UUID.
func TypeIdentifier(col Column) models.TypeIdentifier {
	columnType := strings.ToLower(strings.TrimSpace(col.ColumnType))
	switch col.DataType {
	case "tinyint":
		if strings.HasPrefix(columnType, "tinyint(1)") {
			return models.TypeBoolean
		}
		return models.TypeInt
	case "bool", "boolean":
		return models.TypeBoolean
	case "smallint", "mediumint", "int", "integer", "bigint", "year":
		return models.TypeInt
	case "bit":
		if columnType == "bit(1)" {
			return models.TypeBoolean
		}
		return models.TypeBytes
	case "float", "double", "real":
		return models.TypeFloat
	case "decimal", "numeric":
		return models.TypeDecimal
	case "date", "datetime", "timestamp":
		return models.TypeDateTime
	case "json":
		return models.TypeJSON
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob":
		return models.TypeBytes
	case "enum":
		return models.TypeEnum
	case "char":
		if columnType == "char(36)" {
			return models.TypeUUID
		}
		return models.TypeString
	default:
		return models.TypeString
	}
}
