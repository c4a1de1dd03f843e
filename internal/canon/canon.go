// Package canon implements xchecker's canonicalization and hashing
// contract (spec.md §4.1): YAML-v1 and Markdown-v1 canonical forms used
// for BLAKE3 hashing, plus JCS (RFC 8785) emission for receipts.
package canon

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// Version is the canonicalization version tuple recorded on every receipt.
const Version = "yaml-v1,md-v1"

// Hash is a BLAKE3 digest in both display forms (spec.md §4.1).
type Hash struct {
	Full   string // 64 lowercase hex chars
	First8 string // leading 8 hex chars of Full
}

// HashBytes computes the BLAKE3 hash of canonical bytes.
func HashBytes(canonicalBytes []byte) Hash {
	h := blake3.New()
	_, _ = h.Write(canonicalBytes)
	sum := h.Sum(nil)
	full := hex.EncodeToString(sum)
	return Hash{Full: full, First8: full[:8]}
}

// OffsetError reports a byte offset into malformed input, per spec.md
// §4.1's "failure yields a typed error carrying byte offset" requirement.
type OffsetError struct {
	Offset int
	Reason string
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("canonicalization failed at byte offset %d: %s", e.Offset, e.Reason)
}

// CanonicalizeYAML parses YAML into a generic tree, converts it to JSON,
// and emits it through JCS — which enforces RFC 8785's lexicographic
// member-name ordering. The result is used only for hashing; the on-disk
// YAML keeps its original, human-readable form (spec.md §4.1 YAML-v1).
func CanonicalizeYAML(src []byte) ([]byte, error) {
	var generic interface{}
	if err := yaml.Unmarshal(src, &generic); err != nil {
		return nil, &OffsetError{Offset: 0, Reason: err.Error()}
	}

	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, &OffsetError{Offset: 0, Reason: fmt.Sprintf("yaml-to-json: %v", err)}
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, &OffsetError{Offset: 0, Reason: fmt.Sprintf("jcs transform: %v", err)}
	}
	return out, nil
}

// NormalizeYAMLForDisk rewrites src with LF endings, trimmed trailing
// whitespace per line, and a single terminal newline (spec.md §4.1:
// "on-disk YAML file is written in human-readable form").
func NormalizeYAMLForDisk(src []byte) []byte {
	text := normalizeLines(string(src))
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	out := strings.Join(lines, "\n")
	out = strings.TrimRight(out, "\n") + "\n"
	return []byte(out)
}

// fenceTildeRE matches a fenced-code-block delimiter line written with
// tildes (optionally indented up to 3 spaces, per CommonMark), capturing
// the indent, the run of tildes, and any trailing info string.
var fenceTildeRE = regexp.MustCompile(`^( {0,3})(~{3,})(.*)$`)

// normalizeFences rewrites tilde-delimited code fences to backtick
// fences so Markdown-v1 hashes the same regardless of which delimiter an
// LLM response happened to use (spec.md §4.1 Markdown-v1).
func normalizeFences(lines []string) {
	for i, l := range lines {
		if m := fenceTildeRE.FindStringSubmatch(l); m != nil {
			lines[i] = m[1] + strings.Repeat("`", len(m[2])) + m[3]
		}
	}
}

// CanonicalizeMarkdown normalizes Markdown to LF, trims trailing whitespace
// per line, normalizes fenced-code-block delimiters to backticks, collapses
// trailing blank-line runs to exactly one, and ensures a terminal newline
// (spec.md §4.1 Markdown-v1). On-disk bytes and hash input are identical
// for Markdown.
func CanonicalizeMarkdown(src []byte) []byte {
	text := normalizeLines(string(src))
	lines := strings.Split(text, "\n")

	// Trim trailing whitespace per line.
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}

	normalizeFences(lines)

	// Collapse trailing run of blank lines to exactly one, then ensure a
	// single terminal newline.
	for len(lines) > 1 && lines[len(lines)-1] == "" && lines[len(lines)-2] == "" {
		lines = lines[:len(lines)-1]
	}
	out := strings.Join(lines, "\n")
	out = strings.TrimRight(out, "\n") + "\n"
	return []byte(out)
}

func normalizeLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}

