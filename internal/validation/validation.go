// Package validation provides fail-fast checks for operator-supplied
// source paths. The checks run before a gateway stages anything, so a
// typo'd path or a compressed file renamed to .csv is reported at startup
// instead of surfacing as a load failure minutes later.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// MaxPathLength is the maximum allowed path length.
const MaxPathLength = 4096

// Common validation errors.
var (
	ErrEmptyPath            = errors.New("path cannot be empty")
	ErrPathTooLong          = errors.New("path too long")
	ErrInvalidCharacter     = errors.New("invalid character in path")
	ErrUnsupportedExtension = errors.New("unsupported source extension")
	ErrNotRegularFile       = errors.New("not a regular file")
	ErrContentMismatch      = errors.New("content does not match extension")
)

// FileType represents a source encoding, detected from the extension or
// from content.
type FileType string

const (
	FileTypeCSV     FileType = "csv"
	FileTypeGzip    FileType = "gzip"
	FileTypeXZ      FileType = "xz"
	FileTypeUnknown FileType = "unknown"
)

// ValidatePath performs basic path hygiene checks: length limits, null
// bytes, and control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	// Check length
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}

	// Check for null bytes
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}

	// Check for control characters
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}

	return nil
}

// SourceType maps a source path onto its encoding by extension. Only
// .csv, .csv.gz, and .csv.xz are served.
func SourceType(path string) (FileType, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".csv.gz"):
		return FileTypeGzip, nil
	case strings.HasSuffix(lower, ".csv.xz"):
		return FileTypeXZ, nil
	case strings.HasSuffix(lower, ".csv"):
		return FileTypeCSV, nil
	}
	return FileTypeUnknown, fmt.Errorf("%w: %q (want .csv, .csv.gz, or .csv.xz)", ErrUnsupportedExtension, path)
}

// magicBytes defines magic byte signatures for content detection.
var magicBytes = []struct {
	fileType FileType
	magic    []byte
}{
	{FileTypeGzip, []byte{0x1f, 0x8b}},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
}

// detectFileType detects compression wrappers from magic bytes. CSV has
// no signature, so anything unrecognized comes back unknown.
func detectFileType(buf []byte) FileType {
	for _, sig := range magicBytes {
		if len(buf) >= len(sig.magic) && bytes.Equal(buf[:len(sig.magic)], sig.magic) {
			return sig.fileType
		}
	}
	return FileTypeUnknown
}

// ValidateSource checks that path names a servable source: a regular file
// with a supported extension whose first bytes agree with that extension.
// An empty file passes; the loader reports the more precise schema error.
func ValidateSource(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}

	expected, err := SourceType(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("source not readable: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("source not readable: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("source not readable: %w", err)
	}
	if n == 0 {
		return nil
	}
	buf = buf[:n]

	detected := detectFileType(buf)
	switch expected {
	case FileTypeGzip, FileTypeXZ:
		if detected != expected {
			return fmt.Errorf("%w: %s does not start with a %s header", ErrContentMismatch, path, expected)
		}
	case FileTypeCSV:
		if detected != FileTypeUnknown {
			return fmt.Errorf("%w: %s contains %s data, rename it with the matching extension", ErrContentMismatch, path, detected)
		}
		if !isLikelyText(buf) {
			return fmt.Errorf("%w: %s does not look like text", ErrContentMismatch, path)
		}
	}

	return nil
}

// isLikelyText checks if the buffer contains likely text content.
// Returns true if the buffer appears to be text (UTF-8, ASCII).
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}

	// Check for null bytes (strong indicator of binary content)
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	// Count printable characters vs control characters
	printable := 0
	control := 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
		// UTF-8 continuation bytes (0x80-0xBF) and start bytes (0xC0-0xFD) are neutral
	}

	// If more than 95% is printable, consider it text
	if printable > 0 && float64(printable)/float64(printable+control) > 0.95 {
		return true
	}

	return false
}
