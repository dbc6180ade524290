package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/internal/config"
	"github.com/FocuswithJustin/redline/internal/docx"
)

func documentXML(texts ...string) string {
	var sb strings.Builder
	sb.WriteString(`<w:document xmlns:w="` + wml.NS + `"><w:body>`)
	for _, s := range texts {
		sb.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + s + `</w:t></w:r></w:p>`)
	}
	sb.WriteString(`<w:sectPr/></w:body></w:document>`)
	return sb.String()
}

func writeDocx(t *testing.T, dir, name string, texts ...string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range [][2]string{
		{"[Content_Types].xml", "<Types/>"},
		{docx.DocumentPart, documentXML(texts...)},
		{"word/styles.xml", "<w:styles/>"},
	} {
		w, err := zw.Create(part[0])
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(part[1]))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

// captureStdout runs fn with command output redirected to a buffer.
func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()
	if err := fn(); err != nil {
		t.Fatalf("command failed: %v", err)
	}
	return buf.String()
}

func textOf(t *testing.T, path string, accept, reject bool) string {
	t.Helper()
	cmd := &TextCmd{In: path, Accept: accept, Reject: reject}
	return strings.TrimSpace(captureStdout(t, func() error { return cmd.Run(&Globals{}) }))
}

func TestCompareDocx(t *testing.T) {
	dir := t.TempDir()
	orig := writeDocx(t, dir, "orig.docx", "Hello.", "the cat sat down")
	rev := writeDocx(t, dir, "rev.docx", "Hello.", "the dog ran down", "World.")
	out := filepath.Join(dir, "out.docx")

	cmd := &CompareCmd{Original: orig, Revised: rev, Out: out, Author: "Reviewer", Date: "2024-03-01T09:00:00Z"}
	output := captureStdout(t, func() error { return cmd.Run(&Globals{}) })
	if !strings.Contains(output, "Mode: rebuild") {
		t.Errorf("summary = %s", output)
	}

	pkg, err := docx.Open(out)
	if err != nil {
		t.Fatalf("output does not open: %v", err)
	}
	if pkg.Part("word/styles.xml") == nil {
		t.Error("other parts of the revised package must be kept")
	}
	if !strings.Contains(string(pkg.Document()), `w:author="Reviewer"`) {
		t.Error("revisions should carry the author")
	}

	if got := textOf(t, out, true, false); got != "Hello.\nthe dog ran down\nWorld." {
		t.Errorf("accepted text = %q", got)
	}
	if got := textOf(t, out, false, true); got != "Hello.\nthe cat sat down" {
		t.Errorf("rejected text = %q", got)
	}
}

func TestCompareInplaceJSON(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.xml", documentXML("one", "two"))
	rev := writeFile(t, dir, "rev.xml", documentXML("one", "two", "three"))
	out := filepath.Join(dir, "out.xml")

	cmd := &CompareCmd{Original: orig, Revised: rev, Out: out, Mode: "inplace", JSON: true}
	output := captureStdout(t, func() error { return cmd.Run(&Globals{}) })

	var sum summary
	if err := json.Unmarshal([]byte(output), &sum); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, output)
	}
	if sum.Requested != "inplace" || sum.ModeUsed != "inplace" || len(sum.Attempts) != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Stats.Insertions != 1 {
		t.Errorf("stats = %+v", sum.Stats)
	}
}

func TestCompareCacheAndJournal(t *testing.T) {
	dir := t.TempDir()
	orig := writeDocx(t, dir, "orig.docx", "alpha")
	rev := writeDocx(t, dir, "rev.docx", "omega")
	cache := filepath.Join(dir, "cache")
	db := filepath.Join(dir, "journal.db")

	run := func(out string) summary {
		cmd := &CompareCmd{Original: orig, Revised: rev, Out: out, Date: "2024-03-01T09:00:00Z",
			Cache: cache, Journal: db, JSON: true}
		var sum summary
		output := captureStdout(t, func() error { return cmd.Run(&Globals{}) })
		if err := json.Unmarshal([]byte(output), &sum); err != nil {
			t.Fatal(err)
		}
		return sum
	}
	first := run(filepath.Join(dir, "a.docx"))
	second := run(filepath.Join(dir, "b.docx"))
	if first.Cached || !second.Cached {
		t.Errorf("cached = %v, %v; want false, true", first.Cached, second.Cached)
	}
	if first.Stats != second.Stats {
		t.Errorf("cached stats %+v differ from %+v", second.Stats, first.Stats)
	}
	a, _ := docx.Open(filepath.Join(dir, "a.docx"))
	b, _ := docx.Open(filepath.Join(dir, "b.docx"))
	if !bytes.Equal(a.Document(), b.Document()) {
		t.Error("cached output should be identical")
	}

	hist := &HistoryCmd{Journal: db, Limit: 10}
	output := captureStdout(t, func() error { return hist.Run(&Globals{}) })
	lines := strings.Count(output, "changes")
	if lines != 2 || !strings.Contains(output, "(cached)") {
		t.Errorf("history = %s", output)
	}
	if !strings.Contains(output, first.ID) {
		t.Errorf("history should list %s: %s", first.ID, output)
	}
}

func TestCompareConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "redline.yaml", "author: From Config\nreconstructionMode: inplace\n")
	orig := writeFile(t, dir, "orig.xml", documentXML("a"))
	rev := writeFile(t, dir, "rev.xml", documentXML("b"))
	out := filepath.Join(dir, "out.xml")

	cmd := &CompareCmd{Original: orig, Revised: rev, Out: out, Config: cfg, Mode: "rebuild"}
	captureStdout(t, func() error { return cmd.Run(&Globals{}) })
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `w:author="From Config"`) {
		t.Error("author should come from the config file")
	}
}

func TestCompareErrors(t *testing.T) {
	dir := t.TempDir()
	orig := writeFile(t, dir, "orig.xml", documentXML("a"))
	rev := writeFile(t, dir, "rev.xml", documentXML("b"))
	noBody := writeFile(t, dir, "nobody.xml", `<w:document xmlns:w="`+wml.NS+`"/>`)
	notZip := writeFile(t, dir, "fake.docx", "plain text")

	tests := []struct {
		name string
		cmd  CompareCmd
	}{
		{"bad mode", CompareCmd{Original: orig, Revised: rev, Out: filepath.Join(dir, "o.xml"), Mode: "sideways"}},
		{"bad date", CompareCmd{Original: orig, Revised: rev, Out: filepath.Join(dir, "o.xml"), Date: "tomorrow"}},
		{"missing body", CompareCmd{Original: noBody, Revised: rev, Out: filepath.Join(dir, "o.xml")}},
		{"docx that is not a zip", CompareCmd{Original: notZip, Revised: rev, Out: filepath.Join(dir, "o.xml")}},
		{"raw input to docx output", CompareCmd{Original: orig, Revised: rev, Out: filepath.Join(dir, "o.docx")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			old := stdout
			stdout = &buf
			defer func() { stdout = old }()
			if err := tt.cmd.Run(&Globals{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAcceptReject(t *testing.T) {
	dir := t.TempDir()
	tracked := `<w:document xmlns:w="` + wml.NS + `"><w:body><w:p>` +
		`<w:r><w:t xml:space="preserve">keep </w:t></w:r>` +
		`<w:ins w:id="1" w:author="a" w:date="2024-01-01T00:00:00Z"><w:r><w:t>new</w:t></w:r></w:ins>` +
		`<w:del w:id="2" w:author="a" w:date="2024-01-01T00:00:00Z"><w:r><w:delText>old</w:delText></w:r></w:del>` +
		`</w:p><w:sectPr/></w:body></w:document>`
	in := writeFile(t, dir, "tracked.xml", tracked)

	accepted := filepath.Join(dir, "accepted.xml")
	captureStdout(t, func() error { return (&AcceptCmd{In: in, Out: accepted}).Run(&Globals{}) })
	rejected := filepath.Join(dir, "rejected.xml")
	captureStdout(t, func() error { return (&RejectCmd{In: in, Out: rejected}).Run(&Globals{}) })

	if got := textOf(t, accepted, false, false); got != "keep new" {
		t.Errorf("accepted = %q", got)
	}
	if got := textOf(t, rejected, false, false); got != "keep old" {
		t.Errorf("rejected = %q", got)
	}
}

func TestHistoryEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	output := captureStdout(t, func() error { return (&HistoryCmd{Journal: db}).Run(&Globals{}) })
	if !strings.Contains(output, "No comparisons recorded") {
		t.Errorf("output = %q", output)
	}
}

func TestVersion(t *testing.T) {
	output := captureStdout(t, (&VersionCmd{}).Run)
	if !strings.Contains(output, version) || !strings.Contains(output, "sqlite driver") {
		t.Errorf("output = %q", output)
	}
}

func TestGlobalsLogging(t *testing.T) {
	g := &Globals{LogLevel: "loud"}
	if err := g.initLogging(config.Logging{}); err == nil {
		t.Error("unknown level should be refused")
	}
	g = &Globals{LogFormat: "text"}
	if err := g.initLogging(config.Logging{Level: "debug", Format: "json"}); err != nil {
		t.Errorf("flags over file: %v", err)
	}
}
