// Package table defines the tabular data model for csvgate: semantic column
// types, schemas discovered by sampling a bounded prefix of the source, and
// typed cell values that tolerate malformed data.
package table

import (
	"strings"
)

// Type is the inferred semantic type of a column.
type Type int

const (
	// Text is the default type; any value is representable as text.
	Text Type = iota
	// Integer holds 64-bit signed integers.
	Integer
	// Float holds 64-bit floating point numbers.
	Float
	// Boolean holds true/false values.
	Boolean
	// Timestamp holds points in time, stored normalized to UTC.
	Timestamp
)

// String returns the lowercase name of the type as used in API payloads.
// Out-of-range values render as text, the type everything degrades to.
func (t Type) String() string {
	switch t {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	default:
		return "text"
	}
}

// MarshalJSON encodes the type as its lowercase name.
func (t Type) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// SQLType returns the SQLite column type used to stage values of this type.
// Timestamps are stored as fixed-width ISO-8601 text so that lexical order
// is chronological order; booleans are stored as 0/1 integers.
func (t Type) SQLType() string {
	switch t {
	case Integer, Boolean:
		return "INTEGER"
	case Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

// ParseType resolves a type name produced by Type.String.
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return Text, true
	case "integer":
		return Integer, true
	case "float":
		return Float, true
	case "boolean":
		return Boolean, true
	case "timestamp":
		return Timestamp, true
	default:
		return Text, false
	}
}

// Column describes one column of a dataset.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Schema is the ordered column description of a dataset. Order is
// significant: it is display order and default scan order.
type Schema []Column

// Lookup returns the column matching name under normalization. Schema
// names are unique after normalization, so the match is unambiguous; the
// returned column carries the canonical name.
func (s Schema) Lookup(name string) (Column, bool) {
	want := NormalizeName(name)
	for _, c := range s {
		if NormalizeName(c.Name) == want {
			return c, true
		}
	}
	return Column{}, false
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// NormalizeName is the column-name normalization applied before duplicate
// detection and case-insensitive column matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FindFold returns the canonical schema name for the given name, which is
// how by-convention columns such as "question" are located.
func (s Schema) FindFold(name string) (string, bool) {
	if c, ok := s.Lookup(name); ok {
		return c.Name, true
	}
	return "", false
}
