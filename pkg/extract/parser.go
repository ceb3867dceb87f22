// Package extract provides parsing of numbered rules text into a hierarchical,
// cross-referenced rule dataset.
package extract

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/coolbeans/rulebook/pkg/ruleset"
)

var (
	// ErrSourceNotFound is returned when the source file does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrEmptySource is returned when the source holds no text.
	ErrEmptySource = errors.New("source is empty")

	// ErrNoLabels is returned when no line of the source carries a
	// recognized label.
	ErrNoLabels = errors.New("no numbered rules found in source")
)

// versionChecksumLength is the number of checksum hex digits used as the
// version tag when none is configured.
const versionChecksumLength = 12

// Options configures a Parser.
type Options struct {
	// Version tags every entity. Defaults to a prefix of the source checksum.
	Version string

	// LastUpdated is recorded in the dataset. Defaults to the parse time.
	LastUpdated time.Time

	// SectionDivisor decides which bare three-digit labels are sections.
	SectionDivisor int

	// Matchers are extra citation styles added to the default ones.
	Matchers []ReferenceMatcher
}

// Statistics describes a single parse.
type Statistics struct {
	Lines             int `json:"lines"`
	LabelledLines     int `json:"labelled_lines"`
	ContinuationLines int `json:"continuation_lines"`
	BlankLines        int `json:"blank_lines"`
	PreambleLines     int `json:"preamble_lines"`
	Entities          int `json:"entities"`
	CrossRefs         int `json:"cross_refs"`
	Anomalies         int `json:"anomalies"`
}

// Result is the output of a parse.
type Result struct {
	Dataset  *ruleset.Dataset `json:"dataset"`
	Stats    Statistics       `json:"stats"`
	Source   string           `json:"source,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Parser converts numbered rules text into a rule dataset.
type Parser struct {
	classifier *Classifier
	extractor  *ReferenceExtractor
	builder    *HierarchyBuilder
	opts       Options
}

// NewParser creates a Parser with the default conventions.
func NewParser() *Parser {
	return NewParserWithOptions(Options{})
}

// NewParserWithOptions creates a Parser from options.
func NewParserWithOptions(opts Options) *Parser {
	if opts.SectionDivisor <= 0 {
		opts.SectionDivisor = DefaultSectionDivisor
	}

	extractor := NewReferenceExtractor()
	for _, matcher := range opts.Matchers {
		extractor.AddMatcher(matcher)
	}

	return &Parser{
		classifier: NewClassifier(opts.SectionDivisor),
		extractor:  extractor,
		builder:    NewHierarchyBuilder(opts.SectionDivisor),
		opts:       opts,
	}
}

// Parse reads rules text and returns the parsed dataset. A source without a
// single recognized label is an error rather than an empty dataset.
func (p *Parser) Parse(r io.Reader) (*Result, error) {
	startTime := time.Now()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptySource
	}

	text := normalizeLineEndings(string(data))
	checksum := blake3.Sum256([]byte(text))
	checksumHex := hex.EncodeToString(checksum[:])

	splitter := NewSplitter()
	stats := Statistics{}
	for i, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		stats.Lines++

		if line == "" {
			stats.BlankLines++
			splitter.OnBlankLine()
			continue
		}

		class := p.classifier.Classify(line)
		if class.IsLabel() {
			stats.LabelledLines++
			splitter.OnLabelledLine(class, i+1)
			continue
		}

		stats.ContinuationLines++
		splitter.OnContinuationLine(line)
	}

	drafts := splitter.Finalize()
	stats.PreambleLines = splitter.PreambleLines()
	if len(drafts) == 0 {
		return nil, ErrNoLabels
	}

	version := p.opts.Version
	if version == "" {
		version = checksumHex[:versionChecksumLength]
	}

	for _, draft := range drafts {
		draft.Entity.DatasetVersion = version
		draft.Entity.CrossRefs = p.extractor.Extract(draft.Entity.ID, draft.Entity.Content)
	}

	entities, anomalies := p.builder.Build(drafts)
	for _, entity := range entities {
		stats.CrossRefs += len(entity.CrossRefs)
	}
	stats.Entities = len(entities)
	stats.Anomalies = len(anomalies)

	lastUpdated := p.opts.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	dataset := ruleset.NewDataset(version, lastUpdated, entities)
	dataset.SourceChecksum = checksumHex
	dataset.Anomalies = anomalies

	return &Result{
		Dataset:  dataset,
		Stats:    stats,
		Duration: time.Since(startTime),
	}, nil
}

// ParseString parses rules text held in memory.
func (p *Parser) ParseString(text string) (*Result, error) {
	return p.Parse(strings.NewReader(text))
}

// ParseFile parses the rules text stored at path.
func (p *Parser) ParseFile(path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer file.Close()

	result, err := p.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	result.Source = path

	log.Debug().
		Str("source", path).
		Int("entities", result.Stats.Entities).
		Int("anomalies", result.Stats.Anomalies).
		Dur("duration", result.Duration).
		Msg("parsed rules source")
	return result, nil
}

// Fetcher returns a loader fetch function that re-parses path on every load.
func (p *Parser) Fetcher(path string) ruleset.FetchFunc {
	return func(ctx context.Context) (*ruleset.Dataset, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := p.ParseFile(path)
		if err != nil {
			return nil, err
		}
		return result.Dataset, nil
	}
}

// ParseFiles parses independent sources concurrently with at most workers
// parses in flight. Results keep the order of paths. The first failure
// cancels the remaining parses.
func (p *Parser) ParseFiles(ctx context.Context, paths []string, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = 1
	}

	results := make([]*Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := p.ParseFile(path)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// normalizeLineEndings converts CRLF and lone CR line endings to LF.
func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
