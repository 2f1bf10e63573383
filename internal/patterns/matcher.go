package patterns

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// CompileError is returned by Update when one of the supplied patterns
// fails to compile. The prior pattern set remains in force (spec §4.A,
// §7.2): a CompileError never leaves the Matcher without a working set.
type CompileError struct {
	Index   int
	Name    string
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("pattern %d (%s): %s", e.Index, e.Name, e.Message)
}

// Result is the outcome of evaluating one piece of content.
type Result struct {
	Matched      bool
	Tag          Tag
	PatternName  string
	MatchedRange [2]int
	Severity     float64
}

// compiled is one pattern ready for matching: its individual regexp (used
// to recover the exact matched range once its tag group is known to
// match) and severity. Its position in group.patterns is its declaration
// order within its tag group.
type compiled struct {
	name     string
	re       *regexp.Regexp
	severity float64
}

// group is all patterns sharing a tag, in declaration order, plus one
// combined alternation regexp used as a fast single-pass reject check.
type group struct {
	tag      Tag
	patterns []compiled
	combined *regexp.Regexp // nil if the group has no patterns
}

// tagPriorityOrder lists tags from highest to lowest priority, matching
// spec §4.A: Slur > Phishing > Invite > Custom.
var tagPriorityOrder = []Tag{TagSlur, TagPhishing, TagInviteLink, TagCustom}

// set is one atomically-swappable compiled pattern set.
type set struct {
	groups map[Tag]*group
}

// Matcher evaluates content against a compiled, atomically-replaceable set
// of regex patterns (spec §3 PatternSet, §4.A).
//
// Compilation is atomic: Update either replaces the whole set or leaves
// the prior set untouched (never a partially-updated set), by building
// the new set fully off to the side before the atomic.Value swap.
type Matcher struct {
	current atomic.Value // holds *set
}

// NewMatcher returns a Matcher with an empty pattern set (Pass on anything).
func NewMatcher() *Matcher {
	m := &Matcher{}
	m.current.Store(&set{groups: map[Tag]*group{}})
	return m
}

// Update compiles sources into a new pattern set and swaps it in. On
// failure, the Matcher's current set is left exactly as it was.
func (m *Matcher) Update(sources []Source) error {
	groups := map[Tag]*group{}
	for i, src := range sources {
		tag, ok := parseTag(src.Tag)
		if !ok {
			return &CompileError{Index: i, Name: src.Name, Message: fmt.Sprintf("unknown tag %q", src.Tag)}
		}
		expr := src.Expr
		if !src.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return &CompileError{Index: i, Name: src.Name, Message: err.Error()}
		}
		severity := tag.DefaultSeverity()
		if src.SeverityOverride != nil {
			severity = *src.SeverityOverride
		}
		g, ok := groups[tag]
		if !ok {
			g = &group{tag: tag}
			groups[tag] = g
		}
		g.patterns = append(g.patterns, compiled{name: src.Name, re: re, severity: severity})
	}

	for _, g := range groups {
		exprs := make([]string, len(g.patterns))
		for i, p := range g.patterns {
			exprs[i] = "(?:" + p.re.String() + ")"
		}
		combined, err := regexp.Compile(strings.Join(exprs, "|"))
		if err != nil {
			// Each sub-expression compiled individually above, so this
			// should not happen; fail closed rather than install a group
			// whose fast-reject path can't be trusted.
			return &CompileError{Index: -1, Name: string(g.tag.String()), Message: "combined group: " + err.Error()}
		}
		g.combined = combined
	}

	m.current.Store(&set{groups: groups})
	return nil
}

// Evaluate scans content against the current pattern set. Empty content
// always returns Pass (spec §4.A). Among all patterns that match anywhere
// in content, the highest-priority tag wins (P1); ties within a tag are
// broken by declaration order, the first-declared pattern winning
// (SPEC_FULL §12 Open Question resolution).
func (m *Matcher) Evaluate(content string) Result {
	if content == "" {
		return Result{}
	}
	s := m.current.Load().(*set)

	for _, tag := range tagPriorityOrder {
		g, ok := s.groups[tag]
		if !ok || g.combined == nil {
			continue
		}
		if !g.combined.MatchString(content) {
			continue
		}
		// The tag group has at least one hit; find the first-declared
		// pattern within it that actually matches, and its exact range.
		for _, p := range g.patterns {
			if loc := p.re.FindStringIndex(content); loc != nil {
				return Result{
					Matched:      true,
					Tag:          tag,
					PatternName:  p.name,
					MatchedRange: [2]int{loc[0], loc[1]},
					Severity:     p.severity,
				}
			}
		}
	}
	return Result{}
}
