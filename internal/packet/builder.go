package packet

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/EffortlessMetrics/xchecker/internal/atomicio"
	"github.com/EffortlessMetrics/xchecker/internal/canon"
	"github.com/EffortlessMetrics/xchecker/internal/logging"
	"github.com/EffortlessMetrics/xchecker/internal/redact"
)

// highTierDirs and mediumTierNames implement spec.md §4.6 step 2's
// classification rule.
var highTierDirs = []string{"SPEC", "ADR", "REPORT"}
var mediumTierPrefixes = []string{"README", "SCHEMA"}

// Builder assembles a Packet from a source tree plus prior-phase context,
// enforcing byte/line budgets and secret redaction (spec.md §4.6).
type Builder struct {
	Root     string
	Budget   Budget
	Redactor *redact.Redactor
	log      *logging.Logger
}

// New constructs a Builder rooted at root (the restricted project root
// candidates are selected from by default).
func New(root string, budget Budget, redactor *redact.Redactor) *Builder {
	return &Builder{Root: root, Budget: budget, Redactor: redactor, log: logging.Get(logging.CategoryPacket)}
}

// Upstream is an always-included, non-evictable anchor: a prior phase's
// *.core.yaml artifact or the problem statement (spec.md §4.6 step 1-2).
type Upstream struct {
	Path    string
	Content []byte
}

// Build runs the full Select→Classify→Hash→Pack→BudgetCheck→Redact→Finalize
// pipeline. candidates is the pre-globbed file list (selection by include/
// exclude glob happens before Build is called, by the caller's config-driven
// walk); upstream pieces are passed separately since they are never subject
// to eviction.
func (b *Builder) Build(phase string, upstream []Upstream, candidates []Candidate) (*Packet, error) {
	var pieces []Piece

	for _, u := range upstream {
		pieces = append(pieces, b.makePiece(u.Path, u.Content, PriorityUpstream))
	}

	classified := make([]Piece, 0, len(candidates))
	for _, c := range candidates {
		classified = append(classified, b.makePiece(c.Path, c.Content, classify(c.Path)))
	}
	// LIFO within a tier: most recently discovered first. Candidates arrive
	// in discovery order, so a stable reverse gives LIFO while keeping tier
	// grouping intact via the final sort.
	reversePieces(classified)
	sort.SliceStable(classified, func(i, j int) bool { return classified[i].Priority < classified[j].Priority })
	pieces = append(pieces, classified...)

	packed, overflowAt, upstreamOverflow := b.pack(pieces)
	if upstreamOverflow {
		return nil, b.overflow(phase, pieces, -1, "upstream tier alone exceeds budget")
	}
	if overflowAt >= 0 {
		return nil, b.overflow(phase, pieces, overflowAt, "budget exceeded during pack")
	}

	var buf bytes.Buffer
	for _, p := range packed {
		buf.Write(p.Content)
		if !bytes.HasSuffix(p.Content, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}

	redacted := buf.String()
	if b.Redactor != nil {
		out, matches := b.Redactor.Redact(redacted)
		if len(matches) > 0 {
			ids := make([]string, 0, len(matches))
			seen := map[string]bool{}
			for _, m := range matches {
				if !seen[m.PatternID] {
					seen[m.PatternID] = true
					ids = append(ids, m.PatternID)
				}
			}
			b.log.Warn("packet redaction fired for patterns: %v", ids)
			return nil, &SecretDetectedError{PatternIDs: ids}
		}
		redacted = out
	}

	return &Packet{
		Pieces:            packed,
		TotalBytes:        buf.Len(),
		TotalLines:        countLines(buf.Bytes()),
		RenderedText:      redacted,
		PostRedactionHash: canon.HashBytes([]byte(redacted)),
	}, nil
}

func (b *Builder) makePiece(path string, content []byte, pr Priority) Piece {
	return Piece{
		Path:             path,
		Priority:         pr,
		PreRedactionHash: canon.HashBytes(content),
		ByteLength:       len(content),
		LineCount:        countLines(content),
		Content:          content,
	}
}

// pack appends pieces in tier order, tracking running totals, returning the
// admitted subset plus the index at which budget was first exceeded (-1 if
// none) and whether the Upstream tier alone overflows.
func (b *Builder) pack(pieces []Piece) (admitted []Piece, overflowIdx int, upstreamOverflow bool) {
	var bytesTotal, linesTotal int
	overflowIdx = -1

	for i, p := range pieces {
		newBytes := bytesTotal + p.ByteLength
		newLines := linesTotal + p.LineCount

		if p.Priority == PriorityUpstream {
			if b.Budget.MaxBytes > 0 && newBytes > b.Budget.MaxBytes || b.Budget.MaxLines > 0 && newLines > b.Budget.MaxLines {
				return nil, -1, true
			}
			admitted = append(admitted, p)
			bytesTotal, linesTotal = newBytes, newLines
			continue
		}

		if b.Budget.MaxBytes > 0 && newBytes > b.Budget.MaxBytes || b.Budget.MaxLines > 0 && newLines > b.Budget.MaxLines {
			overflowIdx = i
			return nil, overflowIdx, false
		}
		admitted = append(admitted, p)
		bytesTotal, linesTotal = newBytes, newLines
	}
	return admitted, -1, false
}

func (b *Builder) overflow(phase string, pieces []Piece, cutoff int, reason string) error {
	manifest := Manifest{
		Phase:    phase,
		MaxBytes: b.Budget.MaxBytes,
		MaxLines: b.Budget.MaxLines,
	}
	if cutoff >= 0 && cutoff < len(pieces) {
		manifest.CutoffPath = pieces[cutoff].Path
	}
	for i, p := range pieces {
		manifest.Candidates = append(manifest.Candidates, ManifestEntry{
			Path:       p.Path,
			Priority:   p.Priority.String(),
			ByteLength: p.ByteLength,
			LineCount:  p.LineCount,
			Admitted:   cutoff < 0 || i < cutoff,
		})
	}

	if err := b.writeManifest(phase, manifest); err != nil {
		b.log.Error("failed to write overflow manifest: %v", err)
	}
	if err := b.writePreview(phase, pieces, cutoff); err != nil {
		b.log.Error("failed to write overflow preview: %v", err)
	}

	return &OverflowError{Manifest: manifest, Reason: reason}
}

func (b *Builder) writeManifest(phase string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(b.Root, "context", phase+"-packet.manifest.json")
	return atomicio.Write(path, data, 0o644)
}

func (b *Builder) writePreview(phase string, pieces []Piece, cutoff int) error {
	var buf bytes.Buffer
	limit := len(pieces)
	if cutoff >= 0 {
		limit = cutoff
	}
	for i := 0; i < limit; i++ {
		buf.Write(pieces[i].Content)
		buf.WriteByte('\n')
	}
	path := filepath.Join(b.Root, "context", phase+"-packet.txt")
	return atomicio.Write(path, buf.Bytes(), 0o644)
}

// WritePreview persists the always-written packet preview after a
// successful build (spec.md §4.6 step 8: "Preview is always written").
func (b *Builder) WritePreview(phase string, p *Packet) error {
	path := filepath.Join(b.Root, "context", phase+"-packet.txt")
	return atomicio.Write(path, []byte(p.RenderedText), 0o644)
}

// WriteFullPacket persists the full packet text, only called by the
// caller when debug_packet is set and redaction succeeded (spec.md §4.6
// step 8).
func (b *Builder) WriteFullPacket(phase string, p *Packet) error {
	path := filepath.Join(b.Root, "context", phase+"-packet.full.txt")
	return atomicio.Write(path, []byte(p.RenderedText), 0o600)
}

func classify(path string) Priority {
	upper := strings.ToUpper(filepath.ToSlash(path))
	for _, dir := range highTierDirs {
		if strings.Contains(upper, "/"+dir+"/") || strings.HasPrefix(upper, dir+"/") {
			return PriorityHigh
		}
	}
	base := strings.ToUpper(filepath.Base(path))
	for _, prefix := range mediumTierPrefixes {
		if strings.HasPrefix(base, prefix) {
			return PriorityMedium
		}
	}
	return PriorityLow
}

func reversePieces(p []Piece) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

func countLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := bytes.Count(b, []byte("\n"))
	if !bytes.HasSuffix(b, []byte("\n")) {
		n++
	}
	return n
}

// Walk discovers candidate files under root matching include globs and
// not matching exclude globs, reading each file's raw bytes (spec.md §4.6
// step 1's "Select" operation). Discovery order is directory-walk order,
// which the Builder treats as oldest-first for LIFO tie-breaking within
// a tier.
func Walk(root string, include, exclude []string) ([]Candidate, error) {
	var out []Candidate
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !matchesAny(rel, include, true) || matchesAny(rel, exclude, false) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, Candidate{Path: rel, Content: content})
		return nil
	})
	return out, err
}

// matchesAny reports whether path matches any of globs. emptyMeansAll
// controls the behavior when globs is empty: true for include-list
// defaults (no include filter means everything passes), false for
// exclude-list defaults (no exclude filter means nothing is excluded).
func matchesAny(path string, globs []string, emptyMeansAll bool) bool {
	if len(globs) == 0 {
		return emptyMeansAll
	}
	for _, g := range globs {
		if ok, _ := filepath.Match(g, path); ok {
			return true
		}
		if ok, _ := filepath.Match(g, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}
