// Package dataset owns the live dataset: staging each version of the
// source file into a local SQLite store, serving bounded page scans
// against it, and swapping versions atomically underneath concurrent
// readers.
package dataset

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/csvgate/csvgate/core/errors"
	"github.com/csvgate/csvgate/core/query"
	"github.com/csvgate/csvgate/core/table"
	"github.com/csvgate/csvgate/internal/logging"
)

// Events receives refresh lifecycle notifications, typically fanned out to
// websocket clients. Callbacks run synchronously on the refreshing
// goroutine; a slow callback delays the refresh, nothing else.
type Events interface {
	RefreshStarted(id, source string)
	RefreshFinished(id string, meta Metadata, stats LoadStats)
	RefreshFailed(id string, err error)
}

// Config configures a Gateway.
type Config struct {
	Source       string // path to the CSV file, optionally .gz or .xz
	SearchColumn string // column the search predicate applies to, "" = not searchable
	Dedupe       bool   // drop duplicate rows by SearchColumn at load, keeping the first
	SampleRows   int    // records sampled for type inference, 0 = table.DefaultSampleRows
	MaxPageSize  int    // upper bound for page_size, 0 = unbounded
	MaxSearchLen int    // upper bound for search length in runes, 0 = query.DefaultMaxSearchLen
	StageDir     string // parent directory for staging stores, "" = os.TempDir()
	Events       Events // optional refresh lifecycle listener
}

// Metadata describes the currently served dataset version. A returned
// Metadata stays valid across later refreshes: it is a value copied from
// an immutable snapshot.
type Metadata struct {
	Columns      table.Schema `json:"columns"`
	TotalRows    int64        `json:"row_count"`
	DefaultSort  *string      `json:"default_sort"`
	SearchColumn *string      `json:"searchable_column"`
	SourcePath   string       `json:"csv_path"`
	SourceName   string       `json:"csv_display_name"`
	Fingerprint  string       `json:"fingerprint"`
	LoadedAt     time.Time    `json:"loaded_at"`
	DedupeColumn string       `json:"dedupe_column,omitempty"`
}

// LoadStats describes one staging pass over the source.
type LoadStats struct {
	Read    int64         // data records consumed from the source
	Staged  int64         // rows in the staging table
	Skipped int64         // malformed records dropped
	Deduped int64         // duplicate rows ignored
	Took    time.Duration
}

// PageResult is one page of rows plus the pagination facts the caller
// needs to render controls. Echo fields mirror the request.
type PageResult struct {
	Rows          []table.Row `json:"rows"`
	Page          int         `json:"page"`
	PageSize      int         `json:"page_size"`
	TotalRows     int64       `json:"total_rows"`
	TotalFiltered int64       `json:"total_filtered"`
	SortBy        string      `json:"sort_by,omitempty"`
	SortDir       string      `json:"sort_dir"`
	Search        string      `json:"search,omitempty"`
	Offset        int         `json:"offset"`
	Limit         int         `json:"limit"`
}

// Gateway owns the live snapshot pointer. All methods are safe for
// concurrent use. Close must be called only after request traffic has
// drained.
type Gateway struct {
	cfg     Config
	current atomic.Pointer[snapshot]
	reload  sync.Mutex
	closed  atomic.Bool
}

// Open stages the configured source and returns a serving Gateway. Schema
// problems surface as SchemaError, staging problems as ExecutionError; in
// either case no Gateway is returned.
func Open(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("dataset: no source configured")
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = table.DefaultSampleRows
	}

	snap, err := buildSnapshot(ctx, cfg, cfg.Source)
	if err != nil {
		return nil, err
	}

	g := &Gateway{cfg: cfg}
	g.current.Store(snap)
	return g, nil
}

// Describe returns the current snapshot's metadata. It never touches the
// store and never blocks behind scans or refreshes.
func (g *Gateway) Describe() Metadata {
	return g.current.Load().metadata()
}

// Stats returns the load statistics of the current snapshot.
func (g *Gateway) Stats() LoadStats {
	return g.current.Load().stats
}

// FetchPage plans q against the snapshot current at call time and executes
// the bounded scan on that same snapshot. At most PageSize rows are held
// in memory; the filtered count comes from a separate aggregate pass.
func (g *Gateway) FetchPage(ctx context.Context, q query.RowQuery) (*PageResult, error) {
	if g.closed.Load() {
		return nil, errors.ErrClosed
	}
	s := g.acquire()
	defer s.release()

	spec, err := query.Plan(q, s.schema, query.Options{
		DefaultSort:  s.defaultSort,
		SearchColumn: s.searchCol,
		MaxPageSize:  g.cfg.MaxPageSize,
		MaxSearchLen: g.cfg.MaxSearchLen,
	})
	if err != nil {
		return nil, err
	}
	return s.scanPage(ctx, q, spec)
}

// acquire pins the current snapshot against teardown. The re-check closes
// the race with a concurrent swap: once a reader is counted, retire defers
// teardown to that reader's release.
func (g *Gateway) acquire() *snapshot {
	for {
		s := g.current.Load()
		s.acquire()
		if g.current.Load() == s {
			return s
		}
		s.release()
	}
}

// Refresh stages sourcePath (the configured source when empty) into a new
// snapshot and atomically swaps it in. On failure the previous snapshot
// remains current and fully serviceable. A refresh requested while another
// is in flight is rejected with ErrRefreshInProgress.
func (g *Gateway) Refresh(ctx context.Context, sourcePath string) (Metadata, error) {
	if g.closed.Load() {
		return Metadata{}, errors.ErrClosed
	}
	if !g.reload.TryLock() {
		return Metadata{}, errors.ErrRefreshInProgress
	}
	defer g.reload.Unlock()

	if sourcePath == "" {
		sourcePath = g.cfg.Source
	}

	id := uuid.NewString()
	logging.RefreshEvent(id, "loading", "source", sourcePath)
	if g.cfg.Events != nil {
		g.cfg.Events.RefreshStarted(id, sourcePath)
	}

	snap, err := buildSnapshot(ctx, g.cfg, sourcePath)
	if err != nil {
		rerr := errors.NewRefresh(sourcePath, err)
		logging.RefreshError(id, sourcePath, rerr)
		if g.cfg.Events != nil {
			g.cfg.Events.RefreshFailed(id, rerr)
		}
		return Metadata{}, rerr
	}

	old := g.current.Swap(snap)
	old.retire()

	logging.RefreshEvent(id, "swapped",
		"rows", snap.rowCount,
		"fingerprint", snap.fingerprint,
		"duration_ms", snap.stats.Took.Milliseconds())

	meta := snap.metadata()
	if g.cfg.Events != nil {
		g.cfg.Events.RefreshFinished(id, meta, snap.stats)
	}
	return meta, nil
}

// Close retires the current snapshot. In-flight scans finish on the
// snapshot they pinned; no new calls may be made after Close.
func (g *Gateway) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	g.current.Load().retire()
	return nil
}
