package dataset

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/csvgate/csvgate/core/errors"
	"github.com/csvgate/csvgate/core/query"
	"github.com/csvgate/csvgate/core/source"
	"github.com/csvgate/csvgate/core/sqlite"
	"github.com/csvgate/csvgate/core/table"
	"github.com/csvgate/csvgate/internal/logging"
	"github.com/csvgate/csvgate/internal/validation"
)

// insertBatch is the number of rows staged per transaction.
const insertBatch = 5000

// defaultSortCandidates are tried in order against a fresh schema; the
// first one present becomes the dataset's default sort column.
var defaultSortCandidates = []string{"question_id", "doc_id", "question"}

// buildSnapshot stages the file at path into a fresh SQLite store under its
// own temp dir and returns the snapshot describing it. On failure all
// partially staged files are removed.
func buildSnapshot(ctx context.Context, cfg Config, path string) (*snapshot, error) {
	started := time.Now()

	if err := validation.ValidateSource(path); err != nil {
		return nil, &errors.SchemaError{Source: filepath.Base(path), Message: "source rejected", Err: err}
	}

	src, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	reader := src.CSV()
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.NewSchema(src.Name(), "no columns")
		}
		return nil, &errors.SchemaError{Source: src.Name(), Message: "unreadable header", Err: err}
	}
	header = append([]string(nil), header...) // the reader reuses its record slice

	var stats LoadStats
	sample := make([][]string, 0, cfg.SampleRows)
	for len(sample) < cfg.SampleRows {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !isParseError(err) {
				return nil, errors.NewExecution("sample", err)
			}
			stats.Read++
			stats.Skipped++
			continue
		}
		stats.Read++
		sample = append(sample, append([]string(nil), rec...))
	}

	schema, err := table.Infer(src.Name(), header, sample)
	if err != nil {
		return nil, err
	}

	var searchCol string
	if cfg.SearchColumn != "" {
		if name, ok := schema.FindFold(cfg.SearchColumn); ok {
			searchCol = name
		}
	}
	var dedupeCol string
	if cfg.Dedupe && searchCol != "" {
		dedupeCol = searchCol
	}

	parent := cfg.StageDir
	if parent == "" {
		parent = os.TempDir()
	}
	dir, err := os.MkdirTemp(parent, "csvgate-stage-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	cleanup := func(db *sql.DB) {
		if db != nil {
			db.Close()
		}
		os.RemoveAll(dir)
	}

	db, err := sqlite.OpenStaging(filepath.Join(dir, "dataset.db"))
	if err != nil {
		cleanup(nil)
		return nil, errors.NewExecution("stage", err)
	}

	if _, err := db.ExecContext(ctx, createTableSQL(schema)); err != nil {
		cleanup(db)
		return nil, errors.NewExecution("stage", err)
	}
	if dedupeCol != "" {
		if _, err := db.ExecContext(ctx, dedupeIndexSQL(dedupeCol)); err != nil {
			cleanup(db)
			return nil, errors.NewExecution("stage", err)
		}
	}

	ing := newIngest(ctx, db, schema, dedupeCol != "")
	for _, rec := range sample {
		if err := ing.add(rec); err != nil {
			cleanup(db)
			return nil, err
		}
	}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !isParseError(err) {
				ing.abort()
				cleanup(db)
				return nil, errors.NewExecution("ingest", err)
			}
			stats.Read++
			stats.Skipped++
			continue
		}
		stats.Read++
		if err := ing.add(rec); err != nil {
			cleanup(db)
			return nil, err
		}
	}
	if err := ing.flush(); err != nil {
		cleanup(db)
		return nil, err
	}

	var rowCount int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+query.TableName).Scan(&rowCount); err != nil {
		cleanup(db)
		return nil, errors.NewExecution("count", err)
	}
	stats.Staged = rowCount
	stats.Deduped = stats.Read - stats.Skipped - rowCount

	fingerprint, err := src.Fingerprint()
	if err != nil {
		cleanup(db)
		return nil, errors.NewExecution("fingerprint", err)
	}

	// Staging is done; lift the single-connection pin so readers run
	// concurrently. All access from here on is SELECT only.
	db.SetMaxOpenConns(0)

	stats.Took = time.Since(started)
	logging.DatasetLoaded(src.Name(), rowCount, stats.Skipped, stats.Deduped, stats.Took)

	return &snapshot{
		db:          db,
		dir:         dir,
		schema:      schema,
		rowCount:    rowCount,
		defaultSort: defaultSortFor(schema),
		searchCol:   searchCol,
		dedupeCol:   dedupeCol,
		sourceName:  src.Name(),
		sourcePath:  path,
		fingerprint: fingerprint,
		loadedAt:    time.Now().UTC(),
		stats:       stats,
	}, nil
}

// defaultSortFor picks the conventional id/question column when present,
// falling back to the first column.
func defaultSortFor(schema table.Schema) string {
	for _, candidate := range defaultSortCandidates {
		if name, ok := schema.FindFold(candidate); ok {
			return name
		}
	}
	return schema[0].Name
}

func isParseError(err error) bool {
	var perr *csv.ParseError
	return errors.As(err, &perr)
}

func createTableSQL(schema table.Schema) string {
	cols := make([]string, len(schema))
	for i, col := range schema {
		cols[i] = query.QuoteIdent(col.Name) + " " + col.Type.SQLType()
	}
	return "CREATE TABLE " + query.TableName + " (" + strings.Join(cols, ", ") + ")"
}

func dedupeIndexSQL(column string) string {
	return "CREATE UNIQUE INDEX " + query.TableName + "_dedupe ON " + query.TableName + " (" + query.QuoteIdent(column) + ")"
}

func insertSQL(schema table.Schema, orIgnore bool) string {
	cols := make([]string, len(schema))
	marks := make([]string, len(schema))
	for i, col := range schema {
		cols[i] = query.QuoteIdent(col.Name)
		marks[i] = "?"
	}
	verb := "INSERT"
	if orIgnore {
		// Keep-first dedupe: later rows hitting the unique index are dropped.
		verb = "INSERT OR IGNORE"
	}
	return verb + " INTO " + query.TableName +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

// ingest streams rows into the staging table in batched transactions with
// a prepared statement per batch.
type ingest struct {
	ctx    context.Context
	db     *sql.DB
	schema table.Schema
	text   string
	tx     *sql.Tx
	stmt   *sql.Stmt
	vals   []any
	n      int
}

func newIngest(ctx context.Context, db *sql.DB, schema table.Schema, orIgnore bool) *ingest {
	return &ingest{
		ctx:    ctx,
		db:     db,
		schema: schema,
		text:   insertSQL(schema, orIgnore),
		vals:   make([]any, len(schema)),
	}
}

// add binds one CSV record and executes the insert. Fields beyond the
// schema are dropped; missing trailing fields become nulls.
func (in *ingest) add(rec []string) error {
	if in.tx == nil {
		if err := in.begin(); err != nil {
			return err
		}
	}
	for i, col := range in.schema {
		if i < len(rec) {
			in.vals[i] = table.ParseCell(col.Type, rec[i])
		} else {
			in.vals[i] = nil
		}
	}
	if _, err := in.stmt.ExecContext(in.ctx, in.vals...); err != nil {
		in.abort()
		return errors.NewExecution("ingest", err)
	}
	in.n++
	if in.n >= insertBatch {
		return in.flush()
	}
	return nil
}

func (in *ingest) begin() error {
	tx, err := in.db.BeginTx(in.ctx, nil)
	if err != nil {
		return errors.NewExecution("ingest", err)
	}
	stmt, err := tx.PrepareContext(in.ctx, in.text)
	if err != nil {
		tx.Rollback()
		return errors.NewExecution("ingest", err)
	}
	in.tx = tx
	in.stmt = stmt
	in.n = 0
	return nil
}

// flush commits the open batch, if any.
func (in *ingest) flush() error {
	if in.tx == nil {
		return nil
	}
	in.stmt.Close()
	err := in.tx.Commit()
	in.tx = nil
	in.stmt = nil
	in.n = 0
	if err != nil {
		return errors.NewExecution("ingest", err)
	}
	return nil
}

// abort rolls back the open batch, if any.
func (in *ingest) abort() {
	if in.tx == nil {
		return
	}
	in.stmt.Close()
	in.tx.Rollback()
	in.tx = nil
	in.stmt = nil
	in.n = 0
}
