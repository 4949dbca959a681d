// Package dedupe strips duplicate rows from a CSV, keeping the first
// occurrence of each key value. It is the pre-processing step for feeding
// a clean file to the gateway; the gateway's own load-time dedupe covers
// the case where the file was never cleaned.
package dedupe

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/csvgate/csvgate/core/source"
)

// Stats reports one deduplication pass.
type Stats struct {
	Initial int64 // data rows read
	Final   int64 // rows written
	Removed int64 // duplicate rows dropped
	Skipped int64 // malformed records dropped
}

// key is a truncated BLAKE3 digest. Sixteen bytes keeps the seen-set at a
// quarter of the raw key size for long question text with no realistic
// collision risk.
type key [16]byte

func keyOf(value string) key {
	var k key
	sum := blake3.Sum256([]byte(value))
	copy(k[:], sum[:16])
	return k
}

// Stream copies records from r to w, dropping every record whose value in
// the named column was seen before. The header row is matched
// case-insensitively and passed through verbatim. Records too short to
// reach the key column dedupe under the empty value.
func Stream(r *csv.Reader, w *csv.Writer, column string) (Stats, error) {
	var stats Stats

	header, err := r.Read()
	if err == io.EOF {
		return stats, fmt.Errorf("input has no header row")
	}
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}

	keyIdx := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(column)) {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return stats, fmt.Errorf("column %q not found (have: %s)", column, strings.Join(header, ", "))
	}

	if err := w.Write(header); err != nil {
		return stats, fmt.Errorf("write header: %w", err)
	}

	seen := make(map[key]struct{})
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if _, ok := err.(*csv.ParseError); ok {
			stats.Skipped++
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("read record: %w", err)
		}

		stats.Initial++
		value := ""
		if keyIdx < len(record) {
			value = record[keyIdx]
		}

		k := keyOf(value)
		if _, dup := seen[k]; dup {
			stats.Removed++
			continue
		}
		seen[k] = struct{}{}

		if err := w.Write(record); err != nil {
			return stats, fmt.Errorf("write record: %w", err)
		}
		stats.Final++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return stats, fmt.Errorf("flush output: %w", err)
	}
	return stats, nil
}

// File deduplicates inPath into outPath. Compressed inputs are read
// transparently; the output is compressed when outPath ends in .gz or
// .xz. A partial output file is removed on failure.
func File(inPath, outPath, column string) (Stats, error) {
	src, err := source.Open(inPath)
	if err != nil {
		return Stats{}, err
	}
	defer src.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return Stats{}, fmt.Errorf("create output: %w", err)
	}

	var sink io.Writer = out
	var compressor io.WriteCloser
	switch {
	case strings.HasSuffix(outPath, ".xz"):
		xw, err := xz.NewWriter(out)
		if err != nil {
			out.Close()
			os.Remove(outPath)
			return Stats{}, fmt.Errorf("xz writer: %w", err)
		}
		sink = xw
		compressor = xw
	case strings.HasSuffix(outPath, ".gz"):
		gw := gzip.NewWriter(out)
		sink = gw
		compressor = gw
	}

	stats, err := Stream(src.CSV(), csv.NewWriter(sink), column)
	if err == nil && compressor != nil {
		err = compressor.Close()
	}
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close output: %w", closeErr)
	}
	if err != nil {
		os.Remove(outPath)
		return Stats{}, err
	}
	return stats, nil
}
