// Package source opens dataset files for scanning. It handles transparent
// gzip and xz decompression and fingerprints the raw bytes as they are
// consumed.
package source

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
)

// File is an open dataset source. Every raw byte read from disk passes
// through a BLAKE3 hasher on its way to the CSV reader, so the fingerprint
// is free once the stream has been consumed.
type File struct {
	path         string
	file         *os.File
	tee          io.Reader
	decompressor io.Closer
	hasher       *blake3.Hasher
	csv          *csv.Reader
}

// Open opens the dataset at path. Files ending in .gz or .xz are
// decompressed transparently; anything else is read as plain CSV.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}

	hasher := blake3.New()
	tee := io.TeeReader(f, hasher)

	var reader io.Reader = tee
	var decompressor io.Closer

	switch {
	case strings.HasSuffix(path, ".xz"):
		xzr, err := xz.NewReader(tee)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
		decompressor = nil // xz reader doesn't need closing
	case strings.HasSuffix(path, ".gz"):
		gzr, err := gzip.NewReader(tee)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1 // ragged rows surface as nulls, not errors
	cr.ReuseRecord = true

	return &File{
		path:         path,
		file:         f,
		tee:          tee,
		decompressor: decompressor,
		hasher:       hasher,
		csv:          cr,
	}, nil
}

// Path returns the path the source was opened from.
func (f *File) Path() string { return f.path }

// Name returns the display name of the source, the base name of its path.
func (f *File) Name() string { return filepath.Base(f.path) }

// CSV returns the record reader. The reader reuses its record slice; copy
// any record that must outlive the next Read call.
func (f *File) CSV() *csv.Reader { return f.csv }

// Fingerprint drains any unread raw bytes and returns the hex BLAKE3 hash
// of the file content. Call it only after the CSV stream is no longer
// needed; draining bypasses the decompressor.
func (f *File) Fingerprint() (string, error) {
	if _, err := io.Copy(io.Discard, f.tee); err != nil {
		return "", fmt.Errorf("fingerprint source: %w", err)
	}
	return hex.EncodeToString(f.hasher.Sum(nil)), nil
}

// Close closes the source and any underlying decompressor.
func (f *File) Close() error {
	var errs []error
	if f.decompressor != nil {
		if err := f.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := f.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
