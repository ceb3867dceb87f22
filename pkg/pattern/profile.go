// Package pattern provides a registry of parsing profiles for rulebook
// sources. A profile carries the numbering conventions of a source and the
// extra citation styles its text uses.
package pattern

import (
	"fmt"
	"regexp"

	"github.com/coolbeans/rulebook/pkg/extract"
)

// DefaultProfileID is the id of the built-in profile.
const DefaultProfileID = "default"

// Profile describes how a rulebook source is numbered and cited.
type Profile struct {
	// Metadata
	Name        string `yaml:"name" json:"name"`
	ProfileID   string `yaml:"profile_id" json:"profile_id"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// SectionDivisor decides which bare three-digit labels are sections.
	// Zero means the parser default.
	SectionDivisor int `yaml:"section_divisor,omitempty" json:"section_divisor,omitempty"`

	// References are citation styles added to the built-in ones.
	References []ReferencePattern `yaml:"references,omitempty" json:"references,omitempty"`

	// Compiled patterns (populated after loading)
	compiled []*regexp.Regexp
}

// ReferencePattern is one citation style. The first capture group of
// Pattern must hold the referenced identifier.
type ReferencePattern struct {
	Name    string `yaml:"name" json:"name"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

// DefaultProfile returns the built-in profile: hundred-block sections and
// the default citation styles only.
func DefaultProfile() *Profile {
	p := &Profile{
		Name:           "Default rulebook",
		ProfileID:      DefaultProfileID,
		Version:        "1.0.0",
		Description:    "Sections at multiples of 100, rule/see/parenthesized citations",
		SectionDivisor: extract.DefaultSectionDivisor,
	}
	p.compiled = []*regexp.Regexp{}
	return p
}

// Validate checks that the profile has all required fields.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.ProfileID == "" {
		return fmt.Errorf("profile profile_id is required")
	}
	if p.Version == "" {
		return fmt.Errorf("profile version is required")
	}
	if p.SectionDivisor < 0 {
		return fmt.Errorf("section_divisor must not be negative, got %d", p.SectionDivisor)
	}
	for i, ref := range p.References {
		if ref.Pattern == "" {
			return fmt.Errorf("reference %d has an empty pattern", i)
		}
	}
	return nil
}

// Compile compiles every reference pattern. A pattern without a capture
// group is rejected.
func (p *Profile) Compile() error {
	compiled := make([]*regexp.Regexp, 0, len(p.References))
	for i, ref := range p.References {
		re, err := regexp.Compile(ref.Pattern)
		if err != nil {
			return fmt.Errorf("compiling reference %d pattern %q: %w", i, ref.Pattern, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("reference %d pattern %q has no capture group", i, ref.Pattern)
		}
		compiled = append(compiled, re)
	}
	p.compiled = compiled
	return nil
}

// IsCompiled returns true if the profile has been compiled.
func (p *Profile) IsCompiled() bool {
	return p.compiled != nil
}

// Matchers returns a reference matcher per compiled citation style.
func (p *Profile) Matchers() []extract.ReferenceMatcher {
	matchers := make([]extract.ReferenceMatcher, 0, len(p.compiled))
	for _, re := range p.compiled {
		matchers = append(matchers, extract.PatternMatcher(re))
	}
	return matchers
}

// ParserOptions returns parser options carrying the profile's conventions.
func (p *Profile) ParserOptions() extract.Options {
	return extract.Options{
		SectionDivisor: p.SectionDivisor,
		Matchers:       p.Matchers(),
	}
}
