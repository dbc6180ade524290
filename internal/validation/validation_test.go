package validation

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"valid relative", "docs/contract.docx", nil},
		{"valid absolute", "/tmp/contract.docx", nil},
		{"empty", "", ErrEmptyPath},
		{"too long", strings.Repeat("a", MaxPathLength+1), ErrPathTooLong},
		{"null byte", "a\x00b.docx", ErrInvalidCharacter},
		{"control character", "a\nb.docx", ErrInvalidCharacter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantErr == nil && err != nil {
				t.Errorf("ValidatePath(%q) = %v", tt.path, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePath(%q) = %v, want %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFileType(t *testing.T) {
	zipData := append([]byte{0x50, 0x4b, 0x03, 0x04}, bytes.Repeat([]byte{0}, 40)...)
	xmlData := []byte(`<?xml version="1.0"?><w:document/>`)

	tests := []struct {
		name     string
		filename string
		content  []byte
		want     FileType
		wantErr  bool
	}{
		{"docx", "a.docx", zipData, FileTypeDocx, false},
		{"uppercase extension", "A.DOCX", zipData, FileTypeDocx, false},
		{"template", "a.dotx", zipData, FileTypeDocx, false},
		{"xml", "document.xml", xmlData, FileTypeXML, false},
		{"docx that is text", "a.docx", xmlData, FileTypeUnknown, true},
		{"xml that is binary", "a.xml", zipData, FileTypeUnknown, true},
		{"empty xml", "a.xml", nil, FileTypeUnknown, true},
		{"other extension", "a.pdf", zipData, FileTypeUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateFileType(bytes.NewReader(tt.content), tt.filename)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrTypeMismatch) {
				t.Errorf("error should wrap ErrTypeMismatch: %v", err)
			}
			if got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheckInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "document.xml")
	if err := os.WriteFile(path, []byte("<w:document/>"), 0644); err != nil {
		t.Fatal(err)
	}
	if ft, err := CheckInput(path); err != nil || ft != FileTypeXML {
		t.Errorf("CheckInput = %s, %v", ft, err)
	}
	if _, err := CheckInput(filepath.Join(dir, "missing.docx")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}
	if _, err := CheckInput(""); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("empty path: %v", err)
	}
}

func TestIsLikelyText(t *testing.T) {
	if !isLikelyText([]byte("plain <xml/> text\n")) {
		t.Error("text should be text")
	}
	if isLikelyText([]byte{'a', 0, 'b'}) {
		t.Error("null byte means binary")
	}
	if isLikelyText(bytes.Repeat([]byte{0x01}, 10)) {
		t.Error("control bytes mean binary")
	}
}
