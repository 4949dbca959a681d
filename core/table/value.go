package table

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are the fixed layouts tried during inference and cell
// parsing, in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timestampStorage is the staging format for timestamps: UTC with a
// fixed-width fraction so that lexical order equals chronological order.
const timestampStorage = "2006-01-02T15:04:05.000000000Z07:00"

// boolTokens maps the accepted boolean spellings (lowercased) to values.
var boolTokens = map[string]bool{
	"true": true, "t": true, "yes": true,
	"false": false, "f": false, "no": false,
}

// Value is a tagged cell value. Cells that do not match their column's
// inferred type degrade to Text rather than failing a scan.
type Value struct {
	// Raw holds the underlying value: string, int64, float64, bool or
	// time.Time depending on Kind. It is nil when IsNull is set.
	Raw any

	// Kind indicates which variant Raw holds.
	Kind Type

	// IsNull marks an absent cell.
	IsNull bool
}

// NewNull returns the null cell.
func NewNull() Value { return Value{IsNull: true} }

// NewText returns a text cell.
func NewText(s string) Value { return Value{Raw: s, Kind: Text} }

// NewInteger returns an integer cell.
func NewInteger(n int64) Value { return Value{Raw: n, Kind: Integer} }

// NewFloat returns a float cell.
func NewFloat(f float64) Value { return Value{Raw: f, Kind: Float} }

// NewBoolean returns a boolean cell.
func NewBoolean(b bool) Value { return Value{Raw: b, Kind: Boolean} }

// NewTimestamp returns a timestamp cell.
func NewTimestamp(ts time.Time) Value { return Value{Raw: ts, Kind: Timestamp} }

// String renders the cell for display. Null renders as the empty string.
func (v Value) String() string {
	if v.IsNull {
		return ""
	}
	switch v.Kind {
	case Integer:
		return strconv.FormatInt(v.Raw.(int64), 10)
	case Float:
		return strconv.FormatFloat(v.Raw.(float64), 'g', -1, 64)
	case Boolean:
		return strconv.FormatBool(v.Raw.(bool))
	case Timestamp:
		return v.Raw.(time.Time).Format(time.RFC3339Nano)
	default:
		return v.Raw.(string)
	}
}

// MarshalJSON encodes the cell as a JSON scalar: null, string, number,
// bool, or an RFC 3339 string for timestamps.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsNull {
		return []byte("null"), nil
	}
	switch v.Kind {
	case Timestamp:
		return json.Marshal(v.Raw.(time.Time).Format(time.RFC3339Nano))
	default:
		return json.Marshal(v.Raw)
	}
}

// ParseCell converts a raw CSV field into the staging representation for a
// column of type t: the typed value on success, the raw text when the field
// does not parse (the tolerant fallback), or nil for the empty field (null).
func ParseCell(t Type, raw string) any {
	if raw == "" {
		return nil
	}
	trimmed := strings.TrimSpace(raw)
	switch t {
	case Integer:
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
	case Float:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	case Boolean:
		if b, ok := boolTokens[strings.ToLower(trimmed)]; ok {
			if b {
				return int64(1)
			}
			return int64(0)
		}
	case Timestamp:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				return ts.UTC().Format(timestampStorage)
			}
		}
	default:
		return raw
	}
	// Mismatched cell: keep the raw text so the row still renders.
	return raw
}

// CellFromSQL converts a value scanned from the staging store back into a
// tagged cell for a column of type t. Values whose storage class does not
// match the column (possible for cells that failed ParseCell) come back as
// their natural kind, ultimately falling back to Text.
func CellFromSQL(t Type, v any) Value {
	if v == nil {
		return NewNull()
	}
	switch t {
	case Integer:
		if n, ok := asInt64(v); ok {
			return NewInteger(n)
		}
	case Float:
		if f, ok := asFloat64(v); ok {
			return NewFloat(f)
		}
		if n, ok := asInt64(v); ok {
			return NewFloat(float64(n))
		}
	case Boolean:
		if n, ok := asInt64(v); ok {
			if n == 0 || n == 1 {
				return NewBoolean(n == 1)
			}
			return NewInteger(n)
		}
	case Timestamp:
		if s, ok := asString(v); ok {
			if ts, err := time.Parse(timestampStorage, s); err == nil {
				return NewTimestamp(ts)
			}
			for _, layout := range timestampLayouts {
				if ts, err := time.Parse(layout, s); err == nil {
					return NewTimestamp(ts)
				}
			}
			return NewText(s)
		}
	}
	// Text columns, and the tolerant fallback for every mismatch.
	if s, ok := asString(v); ok {
		return NewText(s)
	}
	if n, ok := asInt64(v); ok {
		if t == Integer {
			return NewInteger(n)
		}
		return NewText(strconv.FormatInt(n, 10))
	}
	if f, ok := asFloat64(v); ok {
		return NewText(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return NewText(stringify(v))
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	if f, ok := v.(float64); ok {
		return f, true
	}
	return 0, false
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func stringify(v any) string {
	if s, ok := asString(v); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
