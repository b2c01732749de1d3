// Package match selects canonical records by id glob, title pattern and
// creation date.
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates glob patterns against record ids.
//
// Ids are global ids such as "gid://shop/Product/42", so "/" acts as the
// segment separator: "gid://shop/Product/*" selects every product and
// "gid://shop/**" selects everything from one shop.
//
// A Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes []string
	excludes []string
}

// Errors returned by Matcher operations.
var (
	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// NewMatcher compiles include and exclude patterns. With no includes every
// id is included; excludes still apply.
func NewMatcher(includes, excludes []string) (*Matcher, error) {
	m := &Matcher{}
	var err error
	if m.includes, err = compile(includes); err != nil {
		return nil, err
	}
	if m.excludes, err = compile(excludes); err != nil {
		return nil, err
	}
	return m, nil
}

func compile(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether id matches an include pattern and no exclude.
func (m *Matcher) Match(id string) bool {
	if len(m.includes) > 0 && !anyMatch(m.includes, id) {
		return false
	}
	return !anyMatch(m.excludes, id)
}

// Empty reports whether the matcher has no patterns.
func (m *Matcher) Empty() bool {
	return len(m.includes) == 0 && len(m.excludes) == 0
}

// IncludePatterns returns the compiled include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the compiled exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

func anyMatch(patterns []string, id string) bool {
	for _, p := range patterns {
		// Patterns were validated in NewMatcher.
		if ok, _ := doublestar.Match(p, id); ok {
			return true
		}
	}
	return false
}
