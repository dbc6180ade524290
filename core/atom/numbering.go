package atom

import (
	"strconv"
	"strings"

	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// levelTextGrammar is the participle grammar for w:lvlText values such as
// "%1." or "(%2)" or "%1.%2.%3".
//
//nolint:govet // participle grammar tags are not standard struct tags
type levelTextGrammar struct {
	Parts []*levelTextPart `parser:"@@*"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type levelTextPart struct {
	Level   string `parser:"  @Level"`
	Literal string `parser:"| @Literal"`
}

var levelTextLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Level", Pattern: `%[1-9]`},
	{Name: "Literal", Pattern: `[^%]+|%`},
})

var levelTextParser = participle.MustBuild[levelTextGrammar](
	participle.Lexer(levelTextLexer),
)

type numLevel struct {
	start  int
	format string
	text   *levelTextGrammar
}

// Numbering is the list definition set of word/numbering.xml.
type Numbering struct {
	abstract map[string]map[int]*numLevel
	// instances maps w:numId to its abstract definition and counter key.
	instances map[string]numInstance
}

type numInstance struct {
	abstractID string
	key        string
	starts     map[int]int
}

// ParseNumbering reads numbering.xml. Malformed input yields a ParseError;
// callers comparing documents skip list labels in that case.
func ParseNumbering(data []byte) (*Numbering, error) {
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if !wml.Is(root, "numbering") {
		return nil, &rerrors.ParseError{Format: "numbering", Message: "root element is not w:numbering"}
	}

	n := &Numbering{
		abstract:  make(map[string]map[int]*numLevel),
		instances: make(map[string]numInstance),
	}
	for _, abs := range xml.Elements(root) {
		if !wml.Is(abs, "abstractNum") {
			continue
		}
		levels := make(map[int]*numLevel)
		for _, lvl := range xml.Elements(abs) {
			if !wml.Is(lvl, "lvl") {
				continue
			}
			l, ilvl, err := parseLevel(lvl)
			if err != nil {
				return nil, err
			}
			levels[ilvl] = l
		}
		n.abstract[wml.Attr(abs, "abstractNumId")] = levels
	}
	for _, num := range xml.Elements(root) {
		if !wml.Is(num, "num") {
			continue
		}
		id := wml.Attr(num, "numId")
		absID := wml.Attr(wml.Child(num, "abstractNumId"), "val")
		inst := numInstance{abstractID: absID, key: "a" + absID}
		for _, ov := range xml.Elements(num) {
			if !wml.Is(ov, "lvlOverride") {
				continue
			}
			so := wml.Child(ov, "startOverride")
			if so == nil {
				continue
			}
			ilvl, err1 := strconv.Atoi(wml.Attr(ov, "ilvl"))
			start, err2 := strconv.Atoi(wml.Attr(so, "val"))
			if err1 != nil || err2 != nil {
				return nil, &rerrors.ParseError{Format: "numbering", Message: "bad lvlOverride in w:num " + id}
			}
			if inst.starts == nil {
				inst.starts = make(map[int]int)
			}
			inst.starts[ilvl] = start
			inst.key = "n" + id
		}
		n.instances[id] = inst
	}
	return n, nil
}

func parseLevel(lvl *xml.Node) (*numLevel, int, error) {
	ilvl, err := strconv.Atoi(wml.Attr(lvl, "ilvl"))
	if err != nil {
		return nil, 0, &rerrors.ParseError{Format: "numbering", Message: "bad w:ilvl", Err: err}
	}
	l := &numLevel{start: 1, format: "decimal"}
	if s := wml.Child(lvl, "start"); s != nil {
		if l.start, err = strconv.Atoi(wml.Attr(s, "val")); err != nil {
			return nil, 0, &rerrors.ParseError{Format: "numbering", Message: "bad w:start", Err: err}
		}
	}
	if f := wml.Child(lvl, "numFmt"); f != nil {
		l.format = wml.Attr(f, "val")
	}
	raw := wml.Attr(wml.Child(lvl, "lvlText"), "val")
	l.text, err = levelTextParser.ParseString("", raw)
	if err != nil {
		return nil, 0, &rerrors.ParseError{Format: "numbering", Message: "bad w:lvlText " + strconv.Quote(raw), Err: err}
	}
	return l, ilvl, nil
}

// Labeler renders list labels for paragraphs visited in document order.
type Labeler struct {
	numbering *Numbering
	counters  map[string]*[9]int
	started   map[string]*[9]bool
}

// NewLabeler starts counting from the first paragraph of a document.
func (n *Numbering) NewLabeler() *Labeler {
	return &Labeler{
		numbering: n,
		counters:  make(map[string]*[9]int),
		started:   make(map[string]*[9]bool),
	}
}

// Next advances the counters for p and returns its label, or "" when p is
// not a list paragraph.
func (l *Labeler) Next(p *xml.Node) string {
	if l == nil {
		return ""
	}
	numPr := wml.Child(wml.Child(p, "pPr"), "numPr")
	if numPr == nil {
		return ""
	}
	numID := wml.Attr(wml.Child(numPr, "numId"), "val")
	if numID == "" || numID == "0" {
		return ""
	}
	ilvl, err := strconv.Atoi(wml.Attr(wml.Child(numPr, "ilvl"), "val"))
	if err != nil || ilvl < 0 || ilvl > 8 {
		ilvl = 0
	}
	inst, ok := l.numbering.instances[numID]
	if !ok {
		return ""
	}
	levels := l.numbering.abstract[inst.abstractID]
	if levels[ilvl] == nil {
		return ""
	}

	counts, seen := l.counters[inst.key], l.started[inst.key]
	if counts == nil {
		counts, seen = new([9]int), new([9]bool)
		l.counters[inst.key], l.started[inst.key] = counts, seen
	}
	if seen[ilvl] {
		counts[ilvl]++
	} else {
		counts[ilvl] = inst.start(levels, ilvl)
		seen[ilvl] = true
	}
	for d := ilvl + 1; d < len(seen); d++ {
		seen[d] = false
	}

	var sb strings.Builder
	for _, part := range levels[ilvl].text.Parts {
		if part.Level == "" {
			sb.WriteString(part.Literal)
			continue
		}
		ref := int(part.Level[1]-'0') - 1
		lv := levels[ref]
		if lv == nil {
			continue
		}
		value := counts[ref]
		if !seen[ref] {
			value = inst.start(levels, ref)
		}
		sb.WriteString(FormatNumber(value, lv.format))
	}
	return sb.String()
}

func (i numInstance) start(levels map[int]*numLevel, ilvl int) int {
	if s, ok := i.starts[ilvl]; ok {
		return s
	}
	if lv := levels[ilvl]; lv != nil {
		return lv.start
	}
	return 1
}

// FormatNumber renders n in a w:numFmt style.
func FormatNumber(n int, format string) string {
	switch format {
	case "none", "bullet":
		return ""
	case "decimalZero":
		if n < 10 && n >= 0 {
			return "0" + strconv.Itoa(n)
		}
		return strconv.Itoa(n)
	case "lowerRoman":
		return strings.ToLower(roman(n))
	case "upperRoman":
		return roman(n)
	case "lowerLetter":
		return strings.ToLower(letter(n))
	case "upperLetter":
		return letter(n)
	case "ordinal":
		return strconv.Itoa(n) + ordinalSuffix(n)
	}
	return strconv.Itoa(n)
}

func roman(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	values := []int{1000, 900, 500, 400, 100, 90, 50, 40, 10, 9, 5, 4, 1}
	symbols := []string{"M", "CM", "D", "CD", "C", "XC", "L", "XL", "X", "IX", "V", "IV", "I"}
	var sb strings.Builder
	for i, v := range values {
		for n >= v {
			sb.WriteString(symbols[i])
			n -= v
		}
	}
	return sb.String()
}

// letter renders 1..26 as A..Z, then AA..ZZ, AAA.. as Word does.
func letter(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	ch := string(rune('A' + (n-1)%26))
	return strings.Repeat(ch, (n-1)/26+1)
}

func ordinalSuffix(n int) string {
	switch {
	case n%100 >= 11 && n%100 <= 13:
		return "th"
	case n%10 == 1:
		return "st"
	case n%10 == 2:
		return "nd"
	case n%10 == 3:
		return "rd"
	}
	return "th"
}
