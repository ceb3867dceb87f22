package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// NotALabel is the level reported for continuation lines.
const NotALabel = -1

// DefaultSectionDivisor makes "100.", "200.", ... top-level sections.
const DefaultSectionDivisor = 100

// Classification describes a line that begins with a recognized label.
type Classification struct {
	// Level is the hierarchy depth, or NotALabel.
	Level int

	// ID is the label without its trailing period.
	ID string

	// Label is the display form with the trailing period.
	Label string

	// Remainder is the trimmed text after the label.
	Remainder string
}

// IsLabel reports whether the line started a new entity.
func (c Classification) IsLabel() bool {
	return c.Level != NotALabel
}

// Classifier determines the hierarchy depth of a line from the shape of its
// leading numeric label.
type Classifier struct {
	// shapes are ordered by increasing specificity; index i matches a label
	// with i components after the section number.
	shapes []*regexp.Regexp

	sectionDivisor int
}

// NewClassifier creates a classifier. A bare three-digit label is a section
// (level 0) when it is a multiple of sectionDivisor, otherwise a rule
// (level 1). A non-positive divisor falls back to DefaultSectionDivisor.
func NewClassifier(sectionDivisor int) *Classifier {
	if sectionDivisor <= 0 {
		sectionDivisor = DefaultSectionDivisor
	}
	return &Classifier{
		shapes: []*regexp.Regexp{
			regexp.MustCompile(`^(\d{3})\.(?:\s|$)`),
			regexp.MustCompile(`^(\d{3}\.\d+)\.(?:\s|$)`),
			regexp.MustCompile(`^(\d{3}\.\d+\.[a-z])\.(?:\s|$)`),
			regexp.MustCompile(`^(\d{3}\.\d+\.[a-z]\.\d+)\.(?:\s|$)`),
			regexp.MustCompile(`^(\d{3}\.\d+\.[a-z]\.\d+\.[a-z])\.(?:\s|$)`),
		},
		sectionDivisor: sectionDivisor,
	}
}

// SectionDivisor returns the configured hundred-block size.
func (c *Classifier) SectionDivisor() int {
	return c.sectionDivisor
}

// Level returns the hierarchy depth of a trimmed line, or NotALabel.
func (c *Classifier) Level(line string) int {
	return c.Classify(line).Level
}

// Classify matches the leading token of a trimmed line against every label
// shape and keeps the deepest full match.
func (c *Classifier) Classify(line string) Classification {
	result := Classification{Level: NotALabel}

	for depth, shape := range c.shapes {
		m := shape.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		result = Classification{
			Level:     c.baseLevel(m[1][:3]) + depth,
			ID:        m[1],
			Label:     m[1] + ".",
			Remainder: strings.TrimSpace(line[len(m[1])+1:]),
		}
	}

	return result
}

// baseLevel applies the hundred-boundary convention to the section number.
func (c *Classifier) baseLevel(number string) int {
	n, err := strconv.Atoi(number)
	if err != nil || n%c.sectionDivisor != 0 {
		return 1
	}
	return 0
}
