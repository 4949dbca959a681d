// Package query plans bounded row scans. Plan validates a RowQuery against
// the schema current at call time and compiles it into a deterministic scan
// plan for the staging store.
package query

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/csvgate/csvgate/core/errors"
	"github.com/csvgate/csvgate/core/table"
)

// TableName is the name of the staged dataset table. The loader creates it
// and every ScanSpec reads from it.
const TableName = "dataset"

// DefaultMaxSearchLen bounds the search text when the caller does not
// configure a limit.
const DefaultMaxSearchLen = 200

// SortDirection orders a scan ascending or descending.
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// ParseDirection maps the wire value of sort_dir onto a SortDirection.
// The empty string defaults to ascending.
func ParseDirection(s string) (SortDirection, error) {
	switch s {
	case "":
		return Asc, nil
	case "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return "", errors.NewValidation("sort_dir", "must be asc or desc")
}

// RowQuery is a validated page request. Zero values mean "use the default":
// an empty SortColumn falls back to the dataset's default sort, an empty
// Search applies no filter.
type RowQuery struct {
	Page       int
	PageSize   int
	SortColumn string
	Direction  SortDirection
	Search     string
}

// Options carries the per-dataset planning configuration. Zero limits are
// treated as unbounded; the gateway always supplies its configured values.
type Options struct {
	DefaultSort  string // column used when the query names none; empty means source order
	SearchColumn string // column the search predicate applies to; empty means not searchable
	MaxPageSize  int
	MaxSearchLen int
}

// Plan validates q against schema and compiles the scan. All failures are
// ValidationErrors naming the offending parameter; an unknown sort column is
// an error, never a silently ignored sort.
func Plan(q RowQuery, schema table.Schema, opts Options) (*ScanSpec, error) {
	if q.Page < 1 {
		return nil, errors.NewValidation("page", "must be at least 1")
	}
	if q.PageSize < 1 {
		return nil, errors.NewValidation("page_size", "must be at least 1")
	}
	if opts.MaxPageSize > 0 && q.PageSize > opts.MaxPageSize {
		return nil, errors.NewValidation("page_size", fmt.Sprintf("must be between 1 and %d", opts.MaxPageSize))
	}

	switch q.Direction {
	case "", Asc, Desc:
	default:
		return nil, errors.NewValidation("sort_dir", "must be asc or desc")
	}
	dir := q.Direction
	if dir == "" {
		dir = Asc
	}

	spec := &ScanSpec{
		Columns:   schema,
		Direction: dir,
		Offset:    (q.Page - 1) * q.PageSize,
		Limit:     q.PageSize,
	}

	if name := strings.TrimSpace(q.SortColumn); name != "" {
		col, ok := schema.Lookup(name)
		if !ok {
			return nil, errors.NewValidation("sort_by", fmt.Sprintf("unknown column %q", name))
		}
		spec.SortBy = col.Name
		spec.SortType = col.Type
	} else if opts.DefaultSort != "" {
		// The default derives from the schema at load time; a miss means the
		// schema changed underneath us and source order is fine.
		if col, ok := schema.Lookup(opts.DefaultSort); ok {
			spec.SortBy = col.Name
			spec.SortType = col.Type
		}
	}

	if strings.TrimSpace(q.Search) != "" {
		limit := opts.MaxSearchLen
		if limit <= 0 {
			limit = DefaultMaxSearchLen
		}
		if utf8.RuneCountInString(q.Search) > limit {
			return nil, errors.NewValidation("search", fmt.Sprintf("must be at most %d characters", limit))
		}
		if opts.SearchColumn == "" {
			return nil, errors.NewValidation("search", "dataset has no searchable column")
		}
		col, ok := schema.Lookup(opts.SearchColumn)
		if !ok {
			return nil, errors.NewValidation("search", "dataset has no searchable column")
		}
		spec.SearchColumn = col.Name
		spec.Search = asciiLower(q.Search)
	}

	return spec, nil
}

// asciiLower folds A-Z only, matching SQLite's lower() so both sides of the
// substring comparison use the same fold.
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
