package dataset

import (
	"context"

	"github.com/csvgate/csvgate/core/errors"
	"github.com/csvgate/csvgate/core/query"
	"github.com/csvgate/csvgate/core/table"
)

// scanPage runs the count aggregate and the bounded page scan against this
// snapshot's store. With no filter the cached total doubles as the
// filtered count, so only the page scan touches the store.
func (s *snapshot) scanPage(ctx context.Context, q query.RowQuery, spec *query.ScanSpec) (*PageResult, error) {
	res := &PageResult{
		Rows:          make([]table.Row, 0, spec.Limit),
		Page:          q.Page,
		PageSize:      q.PageSize,
		TotalRows:     s.rowCount,
		TotalFiltered: s.rowCount,
		SortBy:        spec.SortBy,
		SortDir:       string(spec.Direction),
		Search:        q.Search,
		Offset:        spec.Offset,
		Limit:         spec.Limit,
	}

	if spec.Filtered() {
		text, args := spec.CountSQL()
		if err := s.db.QueryRowContext(ctx, text, args...).Scan(&res.TotalFiltered); err != nil {
			return nil, errors.NewExecution("count", err)
		}
	}

	text, args := spec.SQL()
	rows, err := s.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, errors.NewExecution("page", err)
	}
	defer rows.Close()

	names := spec.Columns.Names()
	for rows.Next() {
		raw := make([]any, len(spec.Columns))
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.NewExecution("page", err)
		}
		cells := make([]table.Value, len(raw))
		for i, col := range spec.Columns {
			cells[i] = table.CellFromSQL(col.Type, raw[i])
		}
		res.Rows = append(res.Rows, table.NewRow(names, cells))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewExecution("page", err)
	}
	return res, nil
}
