package extract

import (
	"strings"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

// Draft is an entity produced by the splitter, before parent resolution and
// cross-reference extraction.
type Draft struct {
	Entity *ruleset.Entity

	// Line is the 1-based source line of the entity's label.
	Line int
}

// pendingEntity is the entity under construction.
type pendingEntity struct {
	class Classification
	line  int
	lines []string
}

// Splitter accumulates labelled lines and their continuation text into
// drafts. It is a small state machine: the only state is the entity under
// construction.
type Splitter struct {
	current  *pendingEntity
	drafts   []*Draft
	preamble int
}

// NewSplitter creates an empty splitter.
func NewSplitter() *Splitter {
	return &Splitter{drafts: make([]*Draft, 0)}
}

// OnLabelledLine finalizes the entity under construction and starts a new one
// seeded with the text after the label.
func (s *Splitter) OnLabelledLine(class Classification, line int) {
	s.flush()
	s.current = &pendingEntity{
		class: class,
		line:  line,
		lines: []string{class.Remainder},
	}
}

// OnContinuationLine appends text to the entity under construction. Text
// before the first label is counted as preamble and discarded.
func (s *Splitter) OnContinuationLine(text string) {
	if s.current == nil {
		s.preamble++
		return
	}
	s.current.lines = append(s.current.lines, text)
}

// OnBlankLine records a paragraph break inside the entity under construction.
func (s *Splitter) OnBlankLine() {
	if s.current == nil {
		return
	}
	s.current.lines = append(s.current.lines, "")
}

// Finalize flushes the last entity and returns every draft in source order.
func (s *Splitter) Finalize() []*Draft {
	s.flush()
	return s.drafts
}

// PreambleLines returns the number of discarded lines before the first label.
func (s *Splitter) PreambleLines() int {
	return s.preamble
}

func (s *Splitter) flush() {
	if s.current == nil {
		return
	}

	content := strings.Join(trimBlankLines(s.current.lines), "\n")
	s.drafts = append(s.drafts, &Draft{
		Entity: &ruleset.Entity{
			ID:        s.current.class.ID,
			Label:     s.current.class.Label,
			Title:     firstLine(content),
			Content:   content,
			Level:     s.current.class.Level,
			Children:  []string{},
			CrossRefs: []string{},
		},
		Line: s.current.line,
	})
	s.current = nil
}

// trimBlankLines drops leading and trailing blank lines.
func trimBlankLines(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

// firstLine returns content up to the first newline, or the trimmed content
// when there is none.
func firstLine(content string) string {
	if idx := strings.IndexByte(content, '\n'); idx != -1 {
		return strings.TrimSpace(content[:idx])
	}
	return strings.TrimSpace(content)
}
