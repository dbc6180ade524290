// Package docx reads and writes WordprocessingML packages.
package docx

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	rerrors "github.com/FocuswithJustin/redline/core/errors"
)

// Part names inside a package.
const (
	DocumentPart  = "word/document.xml"
	NumberingPart = "word/numbering.xml"
)

// entry is one package member, kept with its original header so unchanged
// parts are written back as they were read.
type entry struct {
	header zip.FileHeader
	data   []byte
}

// Package is an in-memory .docx, or a bare document.xml when Raw is set.
type Package struct {
	Raw     bool
	entries []*entry
}

// Open reads a package from disk. A file ending in .xml is taken as a bare
// main document part.
func Open(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rerrors.NewIO("read", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return FromDocument(data), nil
	}
	p, err := Read(data)
	if err != nil {
		return nil, rerrors.Wrapf(err, "%s", path)
	}
	return p, nil
}

// FromDocument wraps a bare document.xml.
func FromDocument(data []byte) *Package {
	return &Package{
		Raw: true,
		entries: []*entry{{
			header: zip.FileHeader{Name: DocumentPart, Method: zip.Deflate},
			data:   data,
		}},
	}
}

// Read parses a ZIP package, keeping entry order.
func Read(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, rerrors.NewParse("docx", "", "not a zip package: "+err.Error())
	}
	p := &Package{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, rerrors.NewParse("docx", f.Name, err.Error())
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, rerrors.NewParse("docx", f.Name, err.Error())
		}
		p.entries = append(p.entries, &entry{header: f.FileHeader, data: content})
	}
	if p.find(DocumentPart) == nil {
		return nil, rerrors.NewStructure("package", DocumentPart)
	}
	return p, nil
}

func (p *Package) find(name string) *entry {
	for _, e := range p.entries {
		if e.header.Name == name {
			return e
		}
	}
	return nil
}

// Part returns the named part, or nil.
func (p *Package) Part(name string) []byte {
	if e := p.find(name); e != nil {
		return e.data
	}
	return nil
}

// Names lists the parts in package order.
func (p *Package) Names() []string {
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.header.Name
	}
	return names
}

// Document returns the main document part.
func (p *Package) Document() []byte { return p.Part(DocumentPart) }

// Numbering returns the numbering part, or nil when there is none.
func (p *Package) Numbering() []byte { return p.Part(NumberingPart) }

// SetPart replaces the named part, appending it when missing.
func (p *Package) SetPart(name string, data []byte) {
	if e := p.find(name); e != nil {
		e.data = data
		return
	}
	p.entries = append(p.entries, &entry{
		header: zip.FileHeader{Name: name, Method: zip.Deflate},
		data:   data,
	})
}

// SetDocument replaces the main document part.
func (p *Package) SetDocument(data []byte) { p.SetPart(DocumentPart, data) }

// Bytes serialises the package. A raw package yields the document part.
func (p *Package) Bytes() ([]byte, error) {
	if p.Raw {
		return p.Document(), nil
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range p.entries {
		h := e.header
		// Sizes and CRC are recomputed by the writer.
		h.CompressedSize64, h.UncompressedSize64, h.CRC32 = 0, 0, 0
		h.CompressedSize, h.UncompressedSize = 0, 0
		h.Extra = nil
		w, err := zw.CreateHeader(&h)
		if err != nil {
			return nil, rerrors.NewIO("write part", h.Name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, rerrors.NewIO("write part", h.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, rerrors.NewIO("close package", "", err)
	}
	return buf.Bytes(), nil
}

// WriteFile serialises the package to path.
func (p *Package) WriteFile(path string) error {
	data, err := p.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return rerrors.NewIO("write", path, err)
	}
	return nil
}
