package dataset

import (
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/csvgate/csvgate/core/table"
)

// snapshot bundles one dataset version: the staged store, its schema, and
// the facts derived at load time. A snapshot is immutable once built; the
// refcount keeps its store alive until every scan that started on it has
// finished.
type snapshot struct {
	db          *sql.DB
	dir         string // private staging dir, removed on teardown
	schema      table.Schema
	rowCount    int64
	defaultSort string // canonical column name, "" = source order
	searchCol   string // canonical column name, "" = not searchable
	dedupeCol   string // canonical column name, "" = dedupe not applied
	sourceName  string
	sourcePath  string
	fingerprint string
	loadedAt    time.Time
	stats       LoadStats

	refs      atomic.Int64
	retired   atomic.Bool
	closeOnce sync.Once
}

func (s *snapshot) acquire() { s.refs.Add(1) }

// release drops one reader. The last reader out of a retired snapshot
// tears it down.
func (s *snapshot) release() {
	if s.refs.Add(-1) == 0 && s.retired.Load() {
		s.destroy()
	}
}

// retire marks the snapshot as superseded. Teardown happens now if no
// reader holds it, otherwise when the last reader releases.
func (s *snapshot) retire() {
	s.retired.Store(true)
	if s.refs.Load() == 0 {
		s.destroy()
	}
}

func (s *snapshot) destroy() {
	s.closeOnce.Do(func() {
		s.db.Close()
		os.RemoveAll(s.dir)
	})
}

// metadata derives the public view of this version. The schema slice is
// shared but never mutated after build.
func (s *snapshot) metadata() Metadata {
	m := Metadata{
		Columns:      s.schema,
		TotalRows:    s.rowCount,
		SourcePath:   s.sourcePath,
		SourceName:   s.sourceName,
		Fingerprint:  s.fingerprint,
		LoadedAt:     s.loadedAt,
		DedupeColumn: s.dedupeCol,
	}
	if s.defaultSort != "" {
		name := s.defaultSort
		m.DefaultSort = &name
	}
	if s.searchCol != "" {
		name := s.searchCol
		m.SearchColumn = &name
	}
	return m
}
