// Command csvgate is the CLI tool for the csvgate dataset gateway.
// It serves a large CSV dataset through a paged, filtered, sorted JSON API
// and provides offline helpers for inspecting and deduplicating sources.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/csvgate/csvgate/core/dataset"
	"github.com/csvgate/csvgate/core/errors"
	"github.com/csvgate/csvgate/core/source"
	"github.com/csvgate/csvgate/core/sqlite"
	"github.com/csvgate/csvgate/core/table"
	"github.com/csvgate/csvgate/internal/api"
	"github.com/csvgate/csvgate/internal/dedupe"
	"github.com/csvgate/csvgate/internal/logging"
)

const version = "0.3.0"

// CLI defines the command-line interface for csvgate.
var CLI struct {
	// Global flags
	LogLevel  string `help:"Log level (debug, info, warn, error)" enum:"debug,info,warn,error" default:"info" env:"CSVGATE_LOG_LEVEL"`
	LogFormat string `help:"Log output format (json, text)" enum:"json,text" default:"json" env:"CSVGATE_LOG_FORMAT"`

	Serve   ServeCmd   `cmd:"" help:"Serve the dataset over HTTP"`
	Inspect InspectCmd `cmd:"" help:"Sample a CSV and print its inferred schema"`
	Dedupe  DedupeCmd  `cmd:"" help:"Strip duplicate rows from a CSV, keeping the first occurrence"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ServeCmd runs the HTTP gateway over the configured source.
type ServeCmd struct {
	Source          string   `help:"CSV dataset to serve (.csv, optionally .gz or .xz compressed)" required:"" env:"CSV_PATH" type:"existingfile"`
	Listen          string   `help:"HTTP listen address" default:":8080" env:"CSVGATE_LISTEN"`
	DefaultPageSize int      `help:"Page size applied when a request names none" default:"100" env:"DEFAULT_PAGE_SIZE"`
	MaxPageSize     int      `help:"Largest page_size a request may ask for" default:"500" env:"MAX_PAGE_SIZE"`
	SearchColumn    string   `help:"Column the search filter applies to" default:"question" env:"SEARCH_COLUMN"`
	Dedupe          bool     `help:"Drop duplicate rows by the search column at load, keeping the first" default:"true" negatable:"" env:"DEDUPE"`
	SampleRows      int      `help:"Records sampled for column type inference" default:"1000" env:"SAMPLE_ROWS"`
	MaxSearchLen    int      `help:"Longest accepted search text in characters" default:"200" env:"MAX_SEARCH_LEN"`
	StageDir        string   `help:"Parent directory for staging stores (default: system temp)" env:"STAGE_DIR" type:"path"`
	AllowedOrigins  []string `help:"CORS allowed origins (empty = allow all)" env:"CSVGATE_ALLOWED_ORIGINS"`
	TLSCert         string   `help:"Path to TLS certificate file" env:"CSVGATE_TLS_CERT" type:"path"`
	TLSKey          string   `help:"Path to TLS private key file" env:"CSVGATE_TLS_KEY" type:"path"`
}

// Validate applies the eager startup checks. Out-of-range values fail the
// command instead of being clamped; kong itself rejects non-integer
// environment values before this runs.
func (c *ServeCmd) Validate() error {
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("default page size must be at least 1, got %d", c.DefaultPageSize)
	}
	if c.MaxPageSize < 1 {
		return fmt.Errorf("max page size must be at least 1, got %d", c.MaxPageSize)
	}
	if c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("default page size %d exceeds max page size %d", c.DefaultPageSize, c.MaxPageSize)
	}
	if c.SampleRows < 1 {
		return fmt.Errorf("sample rows must be at least 1, got %d", c.SampleRows)
	}
	if c.MaxSearchLen < 1 {
		return fmt.Errorf("max search length must be at least 1, got %d", c.MaxSearchLen)
	}
	return nil
}

// config maps the parsed flags onto the server configuration.
func (c *ServeCmd) config() api.Config {
	cfg := api.Config{
		Listen:          c.Listen,
		DefaultPageSize: c.DefaultPageSize,
		AllowedOrigins:  c.AllowedOrigins,
		Dataset: dataset.Config{
			Source:       c.Source,
			SearchColumn: c.SearchColumn,
			Dedupe:       c.Dedupe,
			SampleRows:   c.SampleRows,
			MaxPageSize:  c.MaxPageSize,
			MaxSearchLen: c.MaxSearchLen,
			StageDir:     c.StageDir,
		},
	}
	if c.TLSCert != "" || c.TLSKey != "" {
		cfg.TLS = api.TLSConfig{
			Enabled:  true,
			CertFile: c.TLSCert,
			KeyFile:  c.TLSKey,
		}
	}
	return cfg
}

func (c *ServeCmd) Run() error {
	return api.Start(c.config())
}

// InspectCmd samples a CSV and reports its inferred schema.
type InspectCmd struct {
	Path       string `arg:"" help:"CSV file to inspect" type:"existingfile"`
	SampleRows int    `help:"Records sampled for column type inference" default:"1000"`
	Count      bool   `help:"Read the whole file for an exact row count and fingerprint"`
	JSON       bool   `help:"Output as JSON"`
}

// inspectReport is the inspect command's output shape.
type inspectReport struct {
	Source      string       `json:"source"`
	Columns     table.Schema `json:"columns"`
	Sampled     int64        `json:"sampled_rows"`
	Skipped     int64        `json:"skipped_rows,omitempty"`
	RowCount    *int64       `json:"row_count,omitempty"`
	Fingerprint string       `json:"fingerprint,omitempty"`
}

func (c *InspectCmd) Run() error {
	report, err := inspect(c.Path, c.SampleRows, c.Count)
	if err != nil {
		return err
	}

	if c.JSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	printInspectReport(report, c.Count)
	return nil
}

// inspect samples path and infers its schema. With count set it keeps
// reading to the end of the file for an exact data-row count and the
// content fingerprint; otherwise only the bounded sample is read.
func inspect(path string, sampleRows int, count bool) (*inspectReport, error) {
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
	header = append([]string(nil), header...)

	report := &inspectReport{Source: src.Name()}
	sample := make([][]string, 0, sampleRows)
	for len(sample) < sampleRows {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, &errors.ExecutionError{Stage: "sample", Err: err}
			}
			report.Skipped++
			continue
		}
		sample = append(sample, append([]string(nil), rec...))
	}
	report.Sampled = int64(len(sample))

	schema, err := table.Infer(src.Name(), header, sample)
	if err != nil {
		return nil, err
	}
	report.Columns = schema

	if count {
		total := int64(len(sample))
		for {
			_, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				var perr *csv.ParseError
				if !errors.As(err, &perr) {
					return nil, &errors.ExecutionError{Stage: "count", Err: err}
				}
				report.Skipped++
				continue
			}
			total++
		}
		report.RowCount = &total

		fingerprint, err := src.Fingerprint()
		if err != nil {
			return nil, err
		}
		report.Fingerprint = fingerprint
	}

	return report, nil
}

func printInspectReport(report *inspectReport, counted bool) {
	fmt.Printf("Source: %s\n", report.Source)

	width := 0
	for _, col := range report.Columns {
		if len(col.Name) > width {
			width = len(col.Name)
		}
	}
	fmt.Printf("Columns (%d):\n", len(report.Columns))
	for _, col := range report.Columns {
		fmt.Printf("  %-*s  %s\n", width, col.Name, col.Type)
	}

	fmt.Printf("Sampled: %d records\n", report.Sampled)
	if report.Skipped > 0 {
		fmt.Printf("Skipped: %d malformed records\n", report.Skipped)
	}
	if counted && report.RowCount != nil {
		fmt.Printf("Rows: %d (exact)\n", *report.RowCount)
		fmt.Printf("Fingerprint: %s\n", report.Fingerprint)
	}
}

// DedupeCmd strips duplicate rows from a CSV, keeping the first occurrence
// of each key value.
type DedupeCmd struct {
	Input  string `arg:"" help:"Input CSV (.csv, .csv.gz or .csv.xz)" type:"existingfile"`
	Output string `arg:"" help:"Output path; a .gz or .xz suffix compresses the result" type:"path"`
	Column string `help:"Column whose values identify duplicates" default:"question"`
}

func (c *DedupeCmd) Run() error {
	stats, err := dedupe.File(c.Input, c.Output, c.Column)
	if err != nil {
		return fmt.Errorf("dedupe failed: %w", err)
	}

	fmt.Printf("Deduplicated by %q: %s -> %s\n", c.Column, c.Input, c.Output)
	fmt.Printf("  Initial rows: %d\n", stats.Initial)
	fmt.Printf("  Final rows:   %d\n", stats.Final)
	fmt.Printf("  Removed:      %d\n", stats.Removed)
	if stats.Skipped > 0 {
		fmt.Printf("  Skipped:      %d malformed records\n", stats.Skipped)
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Printf("csvgate version %s\n", version)
	fmt.Printf("  sqlite driver: %s (%s)\n", info.DriverName, info.Package)
	return nil
}

func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func parseLogFormat(s string) logging.Format {
	if strings.ToLower(s) == "text" {
		return logging.FormatText
	}
	return logging.FormatJSON
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("csvgate"),
		kong.Description("csvgate - paged, filtered, sorted views over very large CSV datasets"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	logging.InitLogger(parseLogLevel(CLI.LogLevel), parseLogFormat(CLI.LogFormat))
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
