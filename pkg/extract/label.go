package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Label is a parsed rule identifier such as "103.1.a".
type Label struct {
	// Parts holds every dot-separated component, the section number first.
	Parts []string

	// Number is the numeric value of the leading component.
	Number int
}

// labelGrammar is the participle grammar for rule identifiers.
// Examples: "100", "100.1", "103.1.a", "103.1.a.2", "103.1.a.2.b"
//
//nolint:govet // participle grammar tags are not standard struct tags
type labelGrammar struct {
	Number string       `@Int`
	Parts  []*labelPart `( "." @@ )*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type labelPart struct {
	Number *string `  @Int`
	Letter *string `| @Letter`
}

var labelLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Letter", Pattern: `[a-zA-Z]`},
	{Name: "Punct", Pattern: `\.`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var labelParser = participle.MustBuild[labelGrammar](
	participle.Lexer(labelLexer),
	participle.Elide("Whitespace"),
)

// ParseLabel parses an identifier or display label. A single trailing period
// is accepted. Components after the leading number must alternate between
// numbers and single letters.
func ParseLabel(s string) (Label, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if s == "" {
		return Label{}, fmt.Errorf("empty label")
	}

	parsed, err := labelParser.ParseString("", s)
	if err != nil {
		return Label{}, fmt.Errorf("invalid label %q: %w", s, err)
	}

	number, err := strconv.Atoi(parsed.Number)
	if err != nil {
		return Label{}, fmt.Errorf("invalid label number %q: %w", parsed.Number, err)
	}

	label := Label{
		Parts:  []string{parsed.Number},
		Number: number,
	}
	for i, part := range parsed.Parts {
		wantNumber := i%2 == 0
		switch {
		case wantNumber && part.Number != nil:
			label.Parts = append(label.Parts, *part.Number)
		case !wantNumber && part.Letter != nil:
			label.Parts = append(label.Parts, strings.ToLower(*part.Letter))
		default:
			return Label{}, fmt.Errorf("invalid label %q: component %d out of sequence", s, i+2)
		}
	}
	return label, nil
}

// ID returns the canonical identifier.
func (l Label) ID() string {
	return strings.Join(l.Parts, ".")
}

// Display returns the identifier with its trailing period.
func (l Label) Display() string {
	return l.ID() + "."
}

// Depth returns the number of components after the leading number.
func (l Label) Depth() int {
	return len(l.Parts) - 1
}

// Prefixes returns every proper, non-empty prefix identifier, longest first.
func (l Label) Prefixes() []string {
	prefixes := make([]string, 0, len(l.Parts)-1)
	for n := len(l.Parts) - 1; n >= 1; n-- {
		prefixes = append(prefixes, strings.Join(l.Parts[:n], "."))
	}
	return prefixes
}

// Block returns the enclosing block identifier: the leading number rounded
// down to a multiple of divisor, zero-padded to the original width. ok is
// false when the label is itself that block.
func (l Label) Block(divisor int) (string, bool) {
	if divisor <= 0 {
		return "", false
	}
	block := (l.Number / divisor) * divisor
	id := fmt.Sprintf("%0*d", len(l.Parts[0]), block)
	if len(l.Parts) == 1 && id == l.Parts[0] {
		return "", false
	}
	return id, true
}
