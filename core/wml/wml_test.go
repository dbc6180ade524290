package wml

import (
	"errors"
	"strings"
	"testing"
	"time"

	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/FocuswithJustin/redline/core/xml"
)

func doc(t *testing.T, body string) *xml.Document {
	t.Helper()
	d, err := xml.Parse([]byte(`<w:document xmlns:w="` + NS + `"><w:body>` + body + `</w:body></w:document>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return d
}

func TestBody(t *testing.T) {
	d := doc(t, `<w:p/>`)
	body, err := Body(d, "original")
	if err != nil || !Is(body, "body") {
		t.Fatalf("Body = %v, %v", body, err)
	}

	noBody, _ := xml.Parse([]byte(`<w:document xmlns:w="` + NS + `"/>`))
	_, err = Body(noBody, "revised")
	if !errors.Is(err, rerrors.ErrStructure) {
		t.Fatalf("expected structure error, got %v", err)
	}
	if !strings.Contains(err.Error(), "revised") {
		t.Errorf("error should name the document: %v", err)
	}
}

func TestParagraphTexts(t *testing.T) {
	d := doc(t, `<w:p><w:r><w:t>Hello</w:t><w:tab/><w:t>world</w:t></w:r></w:p>`+
		`<w:p><w:del><w:r><w:delText>gone</w:delText></w:r></w:del><w:r><w:t xml:space="preserve">  kept  </w:t></w:r></w:p>`+
		`<w:p><w:r><w:fldChar w:fldCharType="begin"/><w:instrText>PAGE</w:instrText><w:t>1</w:t></w:r></w:p>`)
	body, _ := Body(d, "")

	got := ParagraphTexts(body)
	want := []string{"Hello world", "kept", "1"}
	if len(got) != len(want) {
		t.Fatalf("ParagraphTexts = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBookmarks(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		names   []string
		healthy bool
	}{
		{
			name:    "paired",
			body:    `<w:p><w:bookmarkStart w:id="0" w:name="a"/><w:r><w:t>x</w:t></w:r><w:bookmarkEnd w:id="0"/></w:p>`,
			names:   []string{"a"},
			healthy: true,
		},
		{
			name:  "duplicate",
			body:  `<w:p><w:bookmarkStart w:id="0" w:name="a"/><w:bookmarkEnd w:id="0"/><w:bookmarkStart w:id="1" w:name="a"/><w:bookmarkEnd w:id="1"/></w:p>`,
			names: []string{"a"},
		},
		{
			name:  "unclosed",
			body:  `<w:p><w:bookmarkStart w:id="3" w:name="b"/></w:p>`,
			names: []string{"b"},
		},
		{
			name: "orphan end",
			body: `<w:p><w:bookmarkEnd w:id="9"/></w:p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := Body(doc(t, tt.body), "")
			set := Bookmarks(body)
			if strings.Join(set.Names, ",") != strings.Join(tt.names, ",") {
				t.Errorf("Names = %v, want %v", set.Names, tt.names)
			}
			if set.Healthy() != tt.healthy {
				t.Errorf("Healthy = %v (dups %v, unmatched %v)", set.Healthy(), set.Duplicates, set.Unmatched)
			}
		})
	}
}

func TestParagraphMark(t *testing.T) {
	d := doc(t, `<w:p><w:pPr><w:jc w:val="left"/><w:sectPr/></w:pPr><w:r><w:t>x</w:t></w:r></w:p>`)
	p := Descendants(d.Root(), "p")[0]
	rev := NewRevisions("tester", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	SetParagraphMark(p, rev.Wrapper(Delete))
	if k, ok := ParagraphMark(p); !ok || k != Delete {
		t.Fatalf("ParagraphMark = %v, %v", k, ok)
	}
	pPr := Child(p, "pPr")
	var order []string
	for _, c := range xml.Elements(pPr) {
		order = append(order, c.Data)
	}
	if strings.Join(order, ",") != "jc,rPr,sectPr" {
		t.Errorf("pPr children = %v", order)
	}

	ClearParagraphMark(p)
	if _, ok := ParagraphMark(p); ok {
		t.Error("mark still present after ClearParagraphMark")
	}
	if Child(pPr, "rPr") != nil {
		t.Error("empty mark rPr should be removed")
	}
}

func TestRevisions(t *testing.T) {
	rev := NewRevisions("A", time.Date(2024, 3, 1, 10, 0, 0, 500, time.FixedZone("x", 3600)))
	if rev.Date != "2024-03-01T09:00:00Z" {
		t.Errorf("Date = %q", rev.Date)
	}

	ins := rev.Wrapper(Insert)
	del := rev.Wrapper(Delete)
	if Attr(ins, "id") == Attr(del, "id") {
		t.Error("wrapper IDs must be unique")
	}
	if Attr(ins, "author") != "A" || Attr(ins, "date") != rev.Date {
		t.Errorf("wrapper not stamped: %v", ins.Attr)
	}

	name := rev.NewMoveName()
	if name != "move1" {
		t.Errorf("NewMoveName = %q", name)
	}
	fromStart := rev.RangeStart(name, MoveFrom)
	fromEnd := rev.RangeEnd(name, MoveFrom)
	toStart := rev.RangeStart(name, MoveTo)
	if Attr(fromStart, "id") != Attr(fromEnd, "id") {
		t.Error("range start and end must share an ID")
	}
	if Attr(fromStart, "id") == Attr(toStart, "id") {
		t.Error("source and destination ranges need distinct IDs")
	}
	if Attr(toStart, "name") != name {
		t.Errorf("range name = %q", Attr(toStart, "name"))
	}

	rev.Reserve(100)
	if id := rev.NextID(); id != 101 {
		t.Errorf("NextID after Reserve = %d", id)
	}
}

func TestFormatChange(t *testing.T) {
	d := doc(t, `<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>x</w:t></w:r></w:p>`)
	run := Descendants(d.Root(), "r")[0]
	rev := NewRevisions("A", time.Unix(0, 0))

	old := El("rPr")
	xml.AppendChild(old, El("i"))
	rev.AttachFormatChange(run, old)

	got := xml.String(Child(run, "rPr"))
	if !strings.Contains(got, "<w:b/><w:rPrChange") || !strings.Contains(got, "<w:rPr><w:i/></w:rPr></w:rPrChange>") {
		t.Errorf("rPr = %s", got)
	}
}

func TestHasRevisions(t *testing.T) {
	clean, _ := Body(doc(t, `<w:p><w:r><w:t>x</w:t></w:r></w:p>`), "")
	if HasRevisions(clean) {
		t.Error("clean body reported revisions")
	}
	tracked, _ := Body(doc(t, `<w:p><w:ins w:id="1"><w:r><w:t>x</w:t></w:r></w:ins></w:p>`), "")
	if !HasRevisions(tracked) {
		t.Error("tracked body not detected")
	}
}

func TestHasContent(t *testing.T) {
	tests := []struct {
		name string
		p    string
		want bool
	}{
		{"markers only", `<w:p><w:pPr/><w:bookmarkStart w:id="0" w:name="a"/><w:bookmarkEnd w:id="0"/></w:p>`, false},
		{"run", `<w:p><w:r/></w:p>`, true},
		{"empty hyperlink", `<w:p><w:hyperlink w:anchor="x"/></w:p>`, false},
		{"hyperlink with run", `<w:p><w:hyperlink><w:r><w:t>x</w:t></w:r></w:hyperlink></w:p>`, true},
		{"empty content control", `<w:p><w:sdt><w:sdtPr/><w:sdtContent><w:bookmarkStart w:id="1" w:name="b"/></w:sdtContent></w:sdt></w:p>`, false},
		{"nested wrappers with run", `<w:p><w:sdt><w:sdtContent><w:smartTag><w:r/></w:smartTag></w:sdtContent></w:sdt></w:p>`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Descendants(doc(t, tt.p).Root(), "p")[0]
			if got := HasContent(p); got != tt.want {
				t.Errorf("HasContent = %v, want %v", got, tt.want)
			}
		})
	}
}
