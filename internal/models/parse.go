package models

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseValue coerces a loosely typed input (JSON decoded or string encoded)
// into the Go type used for columns of type t. A nil input stays nil.
func ParseValue(t TypeIdentifier, raw any) (Value, error) {
	if raw == nil {
		return nil, nil
	}
	switch t {
	case TypeInt:
		switch v := raw.(type) {
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("invalid integer value %v", v)
			}
			return int64(v), nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case uint:
			return int64(v), nil
		case uint32:
			return int64(v), nil
		case uint64:
			return int64(v), nil
		case []byte:
			return ParseValue(t, string(v))
		case string:
			parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid integer value %q", v)
			}
			return parsed, nil
		}
	case TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case []byte:
			return ParseValue(t, string(v))
		case string:
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid float value %q", v)
			}
			return parsed, nil
		}
	case TypeDecimal:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case []byte:
			return ParseValue(t, string(v))
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid boolean value %q", v)
			}
			return parsed, nil
		case float64:
			return v != 0, nil
		case int64:
			return v != 0, nil
		}
	case TypeDateTime:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case []byte:
			return ParseValue(t, string(v))
		case string:
			for _, layout := range dateTimeLayouts {
				if ts, err := time.Parse(layout, v); err == nil {
					return ts, nil
				}
			}
			return nil, fmt.Errorf("invalid datetime value %q", v)
		}
	case TypeUUID:
		switch v := raw.(type) {
		case string:
			parsed, err := uuid.Parse(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("invalid UUID value %q", v)
			}
			return parsed.String(), nil
		case []byte:
			// binary(16) columns hold RFC-order bytes.
			if len(v) == 16 {
				parsed, err := uuid.FromBytes(v)
				if err != nil {
					return nil, fmt.Errorf("invalid UUID bytes")
				}
				return parsed.String(), nil
			}
			return ParseValue(t, string(v))
		case uuid.UUID:
			return v.String(), nil
		}
	case TypeBytes:
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case string:
			decoded, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("invalid base64 bytes value")
			}
			return decoded, nil
		}
	default:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return fmt.Sprintf("%v", v), nil
		}
	}
	return nil, fmt.Errorf("invalid %s value of type %T", t, raw)
}

// FormatValue renders a value as a string that ParseValue accepts back.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
