// Package cas caches comparison outputs by content.
// Entries are addressed by the BLAKE3 hash of both input documents and the
// options that shaped the comparison, so an identical request is served
// from disk without running the engine again.
package cas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/redline/core/compare"
	rerrors "github.com/FocuswithJustin/redline/core/errors"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

// ErrInvalidHash is returned when a key is not a lowercase BLAKE3 hex string.
var ErrInvalidHash = errors.New("invalid hash format")

// keyPattern matches a 256-bit BLAKE3 digest in lowercase hex.
var keyPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Meta is the JSON sidecar stored next to each blob.
type Meta struct {
	Mode           string        `json:"mode"`
	FallbackReason string        `json:"fallbackReason,omitempty"`
	Stats          compare.Stats `json:"stats"`
	Size           int           `json:"size"`
	Created        time.Time     `json:"created"`
}

// Entry is a cached comparison output.
type Entry struct {
	Document []byte
	Meta     Meta
}

// Store is a directory of xz-compressed comparison outputs.
type Store struct {
	root string
}

// NewStore creates a store at root, creating the blob directory if needed.
func NewStore(root string) (*Store, error) {
	blobDir := filepath.Join(root, "blobs", "blake3")
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Put stores the output under key. An existing entry is left untouched.
func (s *Store) Put(key string, document []byte, meta Meta) error {
	if !isValidHash(key) {
		return ErrInvalidHash
	}
	blobPath := s.pathForKey(key)
	if _, err := os.Stat(blobPath); err == nil {
		return nil
	}

	prefixDir := filepath.Dir(blobPath)
	if err := os.MkdirAll(prefixDir, 0755); err != nil {
		return fmt.Errorf("failed to create prefix directory: %w", err)
	}

	var buf bytes.Buffer
	w, err := xzNewWriter(&buf)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(document); err != nil {
		return fmt.Errorf("failed to compress blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to compress blob: %w", err)
	}

	if meta.Created.IsZero() {
		meta.Created = time.Now().UTC()
	}
	meta.Size = len(document)
	sidecar, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	// The sidecar goes first so a visible blob always has its metadata.
	if err := writeAtomic(prefixDir, ".meta-*", s.metaPath(key), sidecar); err != nil {
		return err
	}
	return writeAtomic(prefixDir, ".blob-*", blobPath, buf.Bytes())
}

// writeAtomic writes data to a temp file in dir and renames it to path.
func writeAtomic(dir, pattern, path string, data []byte) error {
	tempFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// Rename to final path (atomic on POSIX)
	if err := osRename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename blob: %w", err)
	}
	return nil
}

// Get returns the entry stored under key.
// A miss is a NotFoundError; a malformed key is ErrInvalidHash.
func (s *Store) Get(key string) (*Entry, error) {
	if !isValidHash(key) {
		return nil, ErrInvalidHash
	}
	f, err := os.Open(s.pathForKey(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.NewNotFound("cache entry", key)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	r, err := xzNewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz reader: %w", err)
	}
	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress blob: %w", err)
	}

	entry := &Entry{Document: doc}
	data, err := os.ReadFile(s.metaPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rerrors.NewNotFound("cache entry", key)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &entry.Meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if entry.Meta.Size != len(doc) {
		return nil, fmt.Errorf("blob %s is %d bytes, metadata says %d", key, len(doc), entry.Meta.Size)
	}
	return entry, nil
}

// Exists reports whether an entry is stored under key.
func (s *Store) Exists(key string) bool {
	if !isValidHash(key) {
		return false
	}
	_, err := os.Stat(s.pathForKey(key))
	return err == nil
}

// pathForKey returns the blob path: <root>/blobs/blake3/<first2>/<key>.xz
func (s *Store) pathForKey(key string) string {
	return filepath.Join(s.root, "blobs", "blake3", key[:2], key+".xz")
}

func (s *Store) metaPath(key string) string {
	return filepath.Join(s.root, "blobs", "blake3", key[:2], key+".json")
}

// isValidHash checks if the given string is a valid key.
func isValidHash(hash string) bool {
	return keyPattern.MatchString(hash)
}
