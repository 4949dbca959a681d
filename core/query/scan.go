package query

import (
	"strings"

	"github.com/csvgate/csvgate/core/table"
)

// ScanSpec is the compiled form of a validated query: which rows to read,
// in what order, and how many. Identical queries against an unchanged
// dataset compile to identical SQL and arguments.
type ScanSpec struct {
	Columns      table.Schema
	SortBy       string // canonical column name; empty means source order
	SortType     table.Type
	Direction    SortDirection
	SearchColumn string // canonical column name; empty means no filter
	Search       string // ASCII-lowered needle
	Offset       int
	Limit        int
}

// Filtered reports whether the scan restricts rows to a search match.
func (s *ScanSpec) Filtered() bool { return s.SearchColumn != "" }

// SQL returns the page scan statement and its arguments. At most Limit rows
// come back, ordered deterministically: the sort key first, then the row's
// original source position as tiebreak.
func (s *ScanSpec) SQL() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, col := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(QuoteIdent(col.Name))
	}
	b.WriteString(" FROM ")
	b.WriteString(TableName)

	args := make([]any, 0, 3)
	if s.Filtered() {
		b.WriteString(" WHERE ")
		b.WriteString(searchPredicate(s.SearchColumn))
		args = append(args, s.Search)
	}

	b.WriteString(" ORDER BY ")
	if s.SortBy != "" {
		b.WriteString(QuoteIdent(s.SortBy))
		if s.SortType == table.Text {
			b.WriteString(" COLLATE NOCASE")
		}
		if s.Direction == Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
		b.WriteString(", ")
	}
	b.WriteString("rowid ASC LIMIT ? OFFSET ?")
	args = append(args, s.Limit, s.Offset)

	return b.String(), args
}

// CountSQL returns the aggregate statement for the filtered row count.
func (s *ScanSpec) CountSQL() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(TableName)
	if !s.Filtered() {
		return b.String(), nil
	}
	b.WriteString(" WHERE ")
	b.WriteString(searchPredicate(s.SearchColumn))
	return b.String(), []any{s.Search}
}

// searchPredicate matches rows whose column contains the needle as a
// case-insensitive substring. instr instead of LIKE keeps wildcard
// characters in the needle literal.
func searchPredicate(column string) string {
	return "instr(lower(CAST(" + QuoteIdent(column) + " AS TEXT)), ?) > 0"
}

// QuoteIdent quotes a column name for use in SQL. Dataset columns come from
// CSV headers and may contain anything.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
