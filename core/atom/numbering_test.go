package atom

import (
	"errors"
	"testing"

	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/FocuswithJustin/redline/core/wml"
)

const numberingXML = `<w:numbering xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:abstractNum w:abstractNumId="0">
  <w:lvl w:ilvl="0"><w:start w:val="1"/><w:numFmt w:val="decimal"/><w:lvlText w:val="%1."/></w:lvl>
  <w:lvl w:ilvl="1"><w:start w:val="1"/><w:numFmt w:val="lowerLetter"/><w:lvlText w:val="%1.%2)"/></w:lvl>
</w:abstractNum>
<w:abstractNum w:abstractNumId="1">
  <w:lvl w:ilvl="0"><w:numFmt w:val="bullet"/><w:lvlText w:val="•"/></w:lvl>
</w:abstractNum>
<w:num w:numId="1"><w:abstractNumId w:val="0"/></w:num>
<w:num w:numId="2"><w:abstractNumId w:val="1"/></w:num>
<w:num w:numId="3"><w:abstractNumId w:val="0"/><w:lvlOverride w:ilvl="0"><w:startOverride w:val="5"/></w:lvlOverride></w:num>
</w:numbering>`

func listPara(numID, ilvl, text string) string {
	return `<w:p><w:pPr><w:numPr><w:ilvl w:val="` + ilvl + `"/><w:numId w:val="` + numID + `"/></w:numPr></w:pPr><w:r><w:t>` + text + `</w:t></w:r></w:p>`
}

func TestLabeler(t *testing.T) {
	n, err := ParseNumbering([]byte(numberingXML))
	if err != nil {
		t.Fatalf("ParseNumbering failed: %v", err)
	}
	b := body(t, listPara("1", "0", "a")+listPara("1", "1", "b")+listPara("1", "1", "c")+
		listPara("1", "0", "d")+listPara("1", "1", "e")+listPara("2", "0", "f")+
		`<w:p><w:r><w:t>plain</w:t></w:r></w:p>`+listPara("3", "0", "g"))

	l := n.NewLabeler()
	want := []string{"1.", "1.a)", "1.b)", "2.", "2.a)", "•", "", "5."}
	for i, p := range wml.Descendants(b, "p") {
		if got := l.Next(p); got != want[i] {
			t.Errorf("paragraph %d label = %q, want %q", i, got, want[i])
		}
	}
}

func TestNumberingFoldsIntoHash(t *testing.T) {
	n, err := ParseNumbering([]byte(numberingXML))
	if err != nil {
		t.Fatal(err)
	}
	one := body(t, listPara("1", "0", "item"))
	two := body(t, `<w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr></w:p>`+listPara("1", "0", "item"))

	a := Atomize(one, Original, Options{Numbering: n})
	r := Atomize(two, Revised, Options{Numbering: n})
	if a[0].Label != "1." || r[1].Label != "2." {
		t.Fatalf("labels = %q, %q", a[0].Label, r[1].Label)
	}
	if Equivalent(a[0], r[1]) {
		t.Error("renumbered list items must compare as different")
	}
	plain := Atomize(one, Original, Options{})
	if plain[0].Hash == a[0].Hash {
		t.Error("label should change the hash")
	}
}

func TestParseNumberingErrors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"not xml", "<w:numbering"},
		{"wrong root", `<w:document xmlns:w="` + wml.NS + `"/>`},
		{"bad start", `<w:numbering xmlns:w="` + wml.NS + `"><w:abstractNum w:abstractNumId="0"><w:lvl w:ilvl="0"><w:start w:val="x"/></w:lvl></w:abstractNum></w:numbering>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseNumbering([]byte(tt.xml))
			if !errors.Is(err, rerrors.ErrInvalidInput) {
				t.Errorf("err = %v, want a parse error", err)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n      int
		format string
		want   string
	}{
		{4, "decimal", "4"},
		{4, "upperRoman", "IV"},
		{14, "lowerRoman", "xiv"},
		{1, "upperLetter", "A"},
		{28, "lowerLetter", "bb"},
		{3, "decimalZero", "03"},
		{2, "ordinal", "2nd"},
		{12, "ordinal", "12th"},
		{7, "none", ""},
		{7, "unknownFmt", "7"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.n, tt.format); got != tt.want {
			t.Errorf("FormatNumber(%d, %s) = %q, want %q", tt.n, tt.format, got, tt.want)
		}
	}
}
