// Package fileset builds the list of files that go into an archive:
// exclusion patterns, the newline separated manifest handed to tar -T,
// and the walker that fills it.
package fileset

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is one compiled exclusion rule. Three shapes are supported:
//
//	/path/*   everything below /path/
//	/path     that exact path only
//	*.ext     substring glob, anchored at the end of the path
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

func (p Pattern) Raw() string { return p.raw }

func (p Pattern) Match(path string) bool { return p.re.MatchString(path) }

// Compile turns a raw exclusion rule into a Pattern.
func Compile(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, fmt.Errorf("empty exclude pattern")
	}

	var expr string
	switch {
	case strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/*"):
		expr = "^" + expandGlob(strings.TrimSuffix(raw, "*")) + ".*"
	case strings.HasPrefix(raw, "/"):
		expr = "^" + expandGlob(raw) + "$"
	default:
		expr = ".*" + expandGlob(raw) + "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid exclude pattern %q: %w", raw, err)
	}
	return Pattern{raw: raw, re: re}, nil
}

// expandGlob converts shell style wildcards to a regexp fragment,
// quoting everything except "*".
func expandGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '*' {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	return b.String()
}

// Matcher tests paths against a set of exclusion patterns.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher compiles the non-blank entries in raw. Blank entries are
// skipped, so a stray empty line in the configuration cannot abort a
// backup.
func NewMatcher(raw []string) (*Matcher, error) {
	patterns := make([]Pattern, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		p, err := Compile(r)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return &Matcher{patterns: patterns}, nil
}

// Excluded reports whether any pattern matches path.
func (m *Matcher) Excluded(path string) bool {
	for _, p := range m.patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

func (m *Matcher) Empty() bool { return len(m.patterns) == 0 }
