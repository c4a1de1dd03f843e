// Package redact implements xchecker's secret redactor (spec.md §4.4):
// an ordered set of named regex patterns, scan/redact operations, and
// pattern-ID-only reporting. Scan never logs matched text — only the
// pattern ID and byte range — and a non-ignored match is a hard stop
// before any external call.
package redact

import "regexp"

// Match records where a pattern fired, never the matched text itself.
type Match struct {
	PatternID string
	Start     int
	End       int
}

// Pattern is one named detection rule.
type Pattern struct {
	ID    string
	Regex *regexp.Regexp
}

// Redactor holds an ordered pattern set plus an ignore set.
type Redactor struct {
	patterns []Pattern
	ignored  map[string]bool
}

// defaultPatterns matches spec.md §4.4's required defaults.
func defaultPatterns() []Pattern {
	return []Pattern{
		{ID: "github_pat", Regex: regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`)},
		{ID: "aws_access_key", Regex: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
		{ID: "aws_secret_assignment", Regex: regexp.MustCompile(`AWS_SECRET_ACCESS_KEY[=:]`)},
		{ID: "slack_token", Regex: regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]+`)},
		{ID: "bearer_token", Regex: regexp.MustCompile(`Bearer [A-Za-z0-9._-]{20,}`)},
	}
}

// New constructs a Redactor with the default patterns, additional patterns
// supplied as raw regexes (extra_secret_patterns), and a set of pattern IDs
// to ignore (ignore_secret_patterns) — spec.md §3 Config fields.
func New(extra []string, ignore []string) (*Redactor, error) {
	r := &Redactor{
		patterns: defaultPatterns(),
		ignored:  make(map[string]bool, len(ignore)),
	}
	for _, id := range ignore {
		r.ignored[id] = true
	}
	for i, raw := range extra {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, err
		}
		r.patterns = append(r.patterns, Pattern{ID: extraPatternID(i), Regex: re})
	}
	return r, nil
}

func extraPatternID(i int) string {
	const base = "extra_"
	digits := "0123456789"
	if i < 10 {
		return base + string(digits[i])
	}
	return base + string(rune('0'+i/10)) + string(digits[i%10])
}

// AddPattern appends a named pattern at construction time.
func (r *Redactor) AddPattern(id string, re *regexp.Regexp) {
	r.patterns = append(r.patterns, Pattern{ID: id, Regex: re})
}

// IgnorePattern marks a pattern ID to be excluded from scan/redact results.
func (r *Redactor) IgnorePattern(id string) {
	if r.ignored == nil {
		r.ignored = make(map[string]bool)
	}
	r.ignored[id] = true
}

// Scan reports every non-ignored match's pattern ID and byte range. It
// never returns or logs the matched text.
func (r *Redactor) Scan(text string) []Match {
	var matches []Match
	for _, p := range r.patterns {
		if r.ignored[p.ID] {
			continue
		}
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{PatternID: p.ID, Start: loc[0], End: loc[1]})
		}
	}
	return matches
}

// Redact replaces every non-ignored match with a fixed placeholder and
// returns the redacted text alongside the same match list Scan would
// produce (computed against the original text's offsets).
func (r *Redactor) Redact(text string) (string, []Match) {
	matches := r.Scan(text)
	if len(matches) == 0 {
		return text, matches
	}

	// Replace from the end so earlier byte ranges stay valid.
	sorted := append([]Match(nil), matches...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Start > sorted[i].Start {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	out := text
	for _, m := range sorted {
		out = out[:m.Start] + "[REDACTED:" + m.PatternID + "]" + out[m.End:]
	}
	return out, matches
}
