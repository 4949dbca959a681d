package dedupe

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/csvgate/csvgate/core/source"
)

const dupCSV = `question_id,question,score
1,Buy shoes,0.75
2,How to bake an apple pie,0.5
3,Buy shoes,0.33
4,buy shoes,0.25
5,How to bake an apple pie,0.1
`

func writeInput(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return path
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	src, err := source.Open(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer src.Close()

	var rows [][]string
	for {
		record, err := src.CSV().Read()
		if err != nil {
			break
		}
		rows = append(rows, append([]string(nil), record...))
	}
	return rows
}

func TestFileKeepFirst(t *testing.T) {
	in := writeInput(t, "in.csv", []byte(dupCSV))
	out := filepath.Join(t.TempDir(), "out.csv")

	stats, err := File(in, out, "question")
	if err != nil {
		t.Fatalf("dedupe failed: %v", err)
	}

	if stats.Initial != 5 {
		t.Errorf("expected 5 initial rows, got %d", stats.Initial)
	}
	if stats.Final != 3 {
		t.Errorf("expected 3 final rows, got %d", stats.Final)
	}
	if stats.Removed != 2 {
		t.Errorf("expected 2 removed rows, got %d", stats.Removed)
	}

	rows := readRows(t, out)
	if len(rows) != 4 { // header + 3 data rows
		t.Fatalf("expected 4 output rows, got %d", len(rows))
	}
	if rows[0][1] != "question" {
		t.Errorf("expected header passthrough, got %v", rows[0])
	}

	// First occurrences survive in order; the key match is exact, so the
	// lowercase variant is its own row.
	wantIDs := []string{"1", "2", "4"}
	for i, want := range wantIDs {
		if rows[i+1][0] != want {
			t.Errorf("row %d: expected id %s, got %s", i+1, want, rows[i+1][0])
		}
	}
}

func TestFileColumnMissing(t *testing.T) {
	in := writeInput(t, "in.csv", []byte(dupCSV))
	out := filepath.Join(t.TempDir(), "out.csv")

	_, err := File(in, out, "answer")
	if err == nil {
		t.Fatal("expected error for missing column")
	}
	if !strings.Contains(err.Error(), `"answer"`) || !strings.Contains(err.Error(), "question_id") {
		t.Errorf("expected error to name the column and the header, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("expected partial output to be removed")
	}
}

func TestFileColumnCaseFolded(t *testing.T) {
	in := writeInput(t, "in.csv", []byte(dupCSV))
	out := filepath.Join(t.TempDir(), "out.csv")

	stats, err := File(in, out, "QUESTION")
	if err != nil {
		t.Fatalf("expected case-insensitive column match, got %v", err)
	}
	if stats.Removed != 2 {
		t.Errorf("expected 2 removed rows, got %d", stats.Removed)
	}
}

func TestFileEmptyInput(t *testing.T) {
	in := writeInput(t, "in.csv", nil)
	out := filepath.Join(t.TempDir(), "out.csv")

	if _, err := File(in, out, "question"); err == nil || !strings.Contains(err.Error(), "header") {
		t.Errorf("expected header error for empty input, got %v", err)
	}
}

func TestFileGzipInput(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(dupCSV)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	in := writeInput(t, "in.csv.gz", buf.Bytes())
	out := filepath.Join(t.TempDir(), "out.csv")

	stats, err := File(in, out, "question")
	if err != nil {
		t.Fatalf("dedupe failed on gzip input: %v", err)
	}
	if stats.Final != 3 {
		t.Errorf("expected 3 final rows, got %d", stats.Final)
	}
}

func TestFileCompressedRoundTrip(t *testing.T) {
	for _, ext := range []string{".gz", ".xz"} {
		t.Run(ext, func(t *testing.T) {
			in := writeInput(t, "in.csv", []byte(dupCSV))
			out := filepath.Join(t.TempDir(), "out.csv"+ext)

			stats, err := File(in, out, "question")
			if err != nil {
				t.Fatalf("dedupe failed: %v", err)
			}
			if stats.Final != 3 {
				t.Errorf("expected 3 final rows, got %d", stats.Final)
			}

			rows := readRows(t, out)
			if len(rows) != 4 {
				t.Errorf("expected 4 rows reading %s back, got %d", out, len(rows))
			}
		})
	}
}

func TestStreamSkipsMalformed(t *testing.T) {
	input := "question_id,question\n" +
		"1,fine\n" +
		"2,say \"hi\" there\n" +
		"3,also fine\n"

	r := csv.NewReader(strings.NewReader(input))
	r.FieldsPerRecord = -1

	var buf bytes.Buffer
	stats, err := Stream(r, csv.NewWriter(&buf), "question")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("expected 1 skipped record, got %d", stats.Skipped)
	}
	if stats.Final != 2 {
		t.Errorf("expected 2 rows written, got %d", stats.Final)
	}
}

func TestStreamShortRecordsShareEmptyKey(t *testing.T) {
	input := "question_id,question\n" +
		"1\n" +
		"2\n" +
		"3,real question\n"

	r := csv.NewReader(strings.NewReader(input))
	r.FieldsPerRecord = -1

	var buf bytes.Buffer
	stats, err := Stream(r, csv.NewWriter(&buf), "question")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	// Both short records key on "", so only the first survives.
	if stats.Final != 2 {
		t.Errorf("expected 2 rows written, got %d", stats.Final)
	}
	if stats.Removed != 1 {
		t.Errorf("expected 1 removed row, got %d", stats.Removed)
	}
}

func TestStreamPreservesQuoting(t *testing.T) {
	input := "question_id,question\n" +
		`1,"contains, a comma"` + "\n" +
		`2,"has ""quotes"" inside"` + "\n"

	r := csv.NewReader(strings.NewReader(input))
	r.FieldsPerRecord = -1

	var buf bytes.Buffer
	if _, err := Stream(r, csv.NewWriter(&buf), "question"); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	reread := csv.NewReader(&buf)
	rows, err := reread.ReadAll()
	if err != nil {
		t.Fatalf("output does not re-parse: %v", err)
	}
	if rows[1][1] != "contains, a comma" {
		t.Errorf("comma value mangled: %q", rows[1][1])
	}
	if rows[2][1] != `has "quotes" inside` {
		t.Errorf("quoted value mangled: %q", rows[2][1])
	}
}
