package models

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a single column value as returned by a connector.
type Value = any

// CanonicalValue encodes a value so that equal values of different Go integer
// widths or string representations of bytes collapse to the same key.
func CanonicalValue(v Value) string {
	switch t := v.(type) {
	case nil:
		return "n:"
	case bool:
		return "b:" + strconv.FormatBool(t)
	case int:
		return "i:" + strconv.FormatInt(int64(t), 10)
	case int8:
		return "i:" + strconv.FormatInt(int64(t), 10)
	case int16:
		return "i:" + strconv.FormatInt(int64(t), 10)
	case int32:
		return "i:" + strconv.FormatInt(int64(t), 10)
	case int64:
		return "i:" + strconv.FormatInt(t, 10)
	case uint:
		return "i:" + strconv.FormatUint(uint64(t), 10)
	case uint8:
		return "i:" + strconv.FormatUint(uint64(t), 10)
	case uint16:
		return "i:" + strconv.FormatUint(uint64(t), 10)
	case uint32:
		return "i:" + strconv.FormatUint(uint64(t), 10)
	case uint64:
		return "i:" + strconv.FormatUint(t, 10)
	case float32:
		return canonicalFloat(float64(t))
	case float64:
		return canonicalFloat(t)
	case string:
		return "s:" + strconv.Quote(t)
	case []byte:
		return "x:" + hex.EncodeToString(t)
	case time.Time:
		return "t:" + t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return "s:" + strconv.Quote(t.String())
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// JSON numbers decode as float64; integral floats must match integer keys.
func canonicalFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "i:" + strconv.FormatInt(int64(f), 10)
	}
	return "f:" + strconv.FormatFloat(f, 'g', -1, 64)
}

// CanonicalValues encodes an ordered list of values.
func CanonicalValues(values []Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = CanonicalValue(v)
	}
	return strings.Join(parts, "\x1e")
}
