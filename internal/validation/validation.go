// Package validation checks user-supplied paths and input files before
// they reach the comparison engine.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Limits on what the CLI accepts (CWE-400).
const (
	// MaxFileSize is the maximum allowed input size (256 MB).
	MaxFileSize = 256 << 20
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrFileTooLarge     = errors.New("file too large")
	ErrTypeMismatch     = errors.New("file type mismatch")
)

// ValidatePath validates a path for basic safety without requiring a base directory.
// It checks for null bytes, control characters, and excessive length.
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

// FileType is an accepted input kind.
type FileType string

const (
	// FileTypeDocx is a ZIP package.
	FileTypeDocx FileType = "docx"
	// FileTypeXML is a bare main document part.
	FileTypeXML FileType = "xml"
	// FileTypeUnknown is anything else.
	FileTypeUnknown FileType = "unknown"
)

var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// CheckInput validates path, size and content of an input document and
// returns its type. The extension decides what the content must be.
func CheckInput(path string) (FileType, error) {
	if err := ValidatePath(path); err != nil {
		return FileTypeUnknown, err
	}
	f, err := os.Open(path)
	if err != nil {
		return FileTypeUnknown, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileTypeUnknown, err
	}
	if info.Size() > MaxFileSize {
		return FileTypeUnknown, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, info.Size(), MaxFileSize)
	}
	return ValidateFileType(f, path)
}

// ValidateFileType checks that the content read from reader matches the
// type its filename claims.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	// Read first 512 bytes for magic byte detection
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	expected := detectFileTypeFromExtension(filename)
	detected := detectFileTypeFromMagic(buf)
	switch {
	case expected == FileTypeUnknown:
		return FileTypeUnknown, fmt.Errorf("%w: %s is neither .docx nor .xml", ErrTypeMismatch, filename)
	case expected == FileTypeDocx && detected != FileTypeDocx:
		return FileTypeUnknown, fmt.Errorf("%w: %s is not a ZIP package", ErrTypeMismatch, filename)
	case expected == FileTypeXML && !isLikelyText(buf):
		return FileTypeUnknown, fmt.Errorf("%w: %s does not look like XML", ErrTypeMismatch, filename)
	}
	return expected, nil
}

// detectFileTypeFromMagic detects file type from magic bytes.
func detectFileTypeFromMagic(buf []byte) FileType {
	if bytes.HasPrefix(buf, zipMagic) {
		return FileTypeDocx
	}
	return FileTypeUnknown
}

// detectFileTypeFromExtension determines expected file type from filename extension.
func detectFileTypeFromExtension(filename string) FileType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".docx", ".docm", ".dotx", ".dotm":
		return FileTypeDocx
	case ".xml":
		return FileTypeXML
	default:
		return FileTypeUnknown
	}
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
		} else if b < 0x20 {
			control++
		}
		// UTF-8 continuation bytes (0x80-0xBF) and start bytes (0xC0-0xFD) are neutral
	}

	// If more than 95% is printable, consider it text
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
