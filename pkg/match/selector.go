package match

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/3leaps/gobulk/pkg/record"
)

// Config holds record selection criteria from CLI flags.
type Config struct {
	// Includes are id globs a record must match (any). Empty selects all.
	Includes []string

	// Excludes are id globs a record must not match.
	Excludes []string

	// TitleRegex is applied to the record title.
	TitleRegex string

	// CreatedAfter keeps records created at or after this time (inclusive).
	// Accepts "2024-01-15" or RFC3339.
	CreatedAfter string

	// CreatedBefore keeps records created before this time (exclusive).
	CreatedBefore string
}

// Selector errors.
var (
	ErrInvalidDate  = errors.New("invalid date value")
	ErrInvalidRegex = errors.New("invalid regex pattern")
)

// Selector decides whether a canonical record is selected.
type Selector struct {
	ids    *Matcher
	title  *regexp.Regexp
	after  time.Time // zero means unbounded
	before time.Time // zero means unbounded
}

// New compiles cfg into a Selector.
func New(cfg Config) (*Selector, error) {
	ids, err := NewMatcher(cfg.Includes, cfg.Excludes)
	if err != nil {
		return nil, err
	}
	s := &Selector{ids: ids}

	if cfg.TitleRegex != "" {
		re, err := regexp.Compile(cfg.TitleRegex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
		}
		s.title = re
	}
	if cfg.CreatedAfter != "" {
		if s.after, err = ParseDate(cfg.CreatedAfter); err != nil {
			return nil, fmt.Errorf("created after: %w", err)
		}
	}
	if cfg.CreatedBefore != "" {
		if s.before, err = ParseDate(cfg.CreatedBefore); err != nil {
			return nil, fmt.Errorf("created before: %w", err)
		}
	}
	if !s.after.IsZero() && !s.before.IsZero() && !s.after.Before(s.before) {
		return nil, fmt.Errorf("%w: after (%s) >= before (%s)", ErrInvalidDate,
			s.after.Format(time.RFC3339), s.before.Format(time.RFC3339))
	}
	return s, nil
}

// Empty reports whether the selector selects every record.
func (s *Selector) Empty() bool {
	return s.ids.Empty() && s.title == nil && s.after.IsZero() && s.before.IsZero()
}

// Match reports whether rec passes every criterion.
//
// A record whose creation time cannot be parsed fails any date bound.
func (s *Selector) Match(rec *record.Canonical) bool {
	if !s.ids.Match(rec.ID) {
		return false
	}
	if s.title != nil && !s.title.MatchString(rec.Title) {
		return false
	}
	if s.after.IsZero() && s.before.IsZero() {
		return true
	}

	created, err := ParseDate(rec.CreatedAt)
	if err != nil {
		return false
	}
	if !s.after.IsZero() && created.Before(s.after) {
		return false
	}
	if !s.before.IsZero() && !created.Before(s.before) {
		return false
	}
	return true
}

// String returns a human-readable description.
func (s *Selector) String() string {
	var parts []string
	if inc := s.ids.IncludePatterns(); len(inc) > 0 {
		parts = append(parts, "id: "+strings.Join(inc, ","))
	}
	if exc := s.ids.ExcludePatterns(); len(exc) > 0 {
		parts = append(parts, "not id: "+strings.Join(exc, ","))
	}
	if s.title != nil {
		parts = append(parts, "title: /"+s.title.String()+"/")
	}
	if !s.after.IsZero() {
		parts = append(parts, "created >= "+s.after.Format(time.RFC3339))
	}
	if !s.before.IsZero() {
		parts = append(parts, "created < "+s.before.Format(time.RFC3339))
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, "; ")
}

// ParseDate parses "2006-01-02", RFC3339 or RFC3339Nano into UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
