package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/csvgate/csvgate/core/errors"
)

// DefaultSampleRows is the number of records sampled for type inference
// when the caller does not override it.
const DefaultSampleRows = 1000

// Infer derives a Schema from a CSV header and a bounded sample of records.
// source names the input for error context only.
//
// The result is deterministic for identical input bytes. Inference is a
// heuristic: rows beyond the sample may carry values that do not match the
// inferred type, and such cells degrade to raw text at scan time.
func Infer(source string, header []string, sample [][]string) (Schema, error) {
	if len(header) == 0 {
		return nil, errors.NewSchema(source, "no columns")
	}

	schema := make(Schema, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		key := NormalizeName(name)
		if _, dup := seen[key]; dup {
			return nil, errors.NewSchema(source, fmt.Sprintf("duplicate column name %q", name))
		}
		seen[key] = struct{}{}
		schema[i] = Column{Name: name, Type: classify(i, sample)}
	}
	return schema, nil
}

// classify inspects column col across the sampled records. Empty fields are
// nulls and do not vote; a column with no non-null samples defaults to Text.
func classify(col int, sample [][]string) Type {
	allInt := true
	allFloat := true
	allBool := true
	allTime := true
	sawValue := false

	for _, record := range sample {
		if col >= len(record) {
			continue // short record: treat the missing field as null
		}
		raw := record[col]
		if raw == "" {
			continue
		}
		sawValue = true
		v := strings.TrimSpace(raw)

		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := boolTokens[strings.ToLower(v)]; !ok {
				allBool = false
			}
		}
		if allTime && !parsesAsTime(v) {
			allTime = false
		}

		if !allInt && !allFloat && !allBool && !allTime {
			return Text
		}
	}

	if !sawValue {
		return Text
	}
	switch {
	case allInt:
		return Integer
	case allFloat:
		return Float
	case allBool:
		return Boolean
	case allTime:
		return Timestamp
	default:
		return Text
	}
}

func parsesAsTime(v string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}
