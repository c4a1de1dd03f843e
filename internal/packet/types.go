// Package packet implements xchecker's Packet Builder (spec.md §4.6):
// deterministic, budget-enforced request assembly with priority-based
// ordering, pre/post-redaction hashing, and overflow/manifest handling.
package packet

import "github.com/EffortlessMetrics/xchecker/internal/canon"

// Priority is the packet piece's eviction/ordering tier. Upstream pieces
// are never evicted; everything else is dropped in Low→Medium→High order
// once a budget is exceeded.
type Priority int

const (
	PriorityUpstream Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityUpstream:
		return "upstream"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Piece is one file admitted into the packet (spec.md §3 Packet.PacketPiece).
type Piece struct {
	Path             string
	Priority         Priority
	PreRedactionHash canon.Hash
	ByteLength       int
	LineCount        int
	Content          []byte
}

// Candidate is a file discovered during Select, before priority
// classification and packing.
type Candidate struct {
	Path    string
	Content []byte
}

// Budget is the size/line ceiling a packet must respect (spec.md §3 Config).
type Budget struct {
	MaxBytes int
	MaxLines int
}

// Packet is the assembled request payload (spec.md §3).
type Packet struct {
	Pieces           []Piece
	TotalBytes       int
	TotalLines       int
	RenderedText     string // after redaction
	PostRedactionHash canon.Hash
}

// ManifestEntry describes one candidate in the overflow manifest
// (spec.md §4.6 step 6): every candidate considered, admitted or not.
type ManifestEntry struct {
	Path       string   `json:"path"`
	Priority   string   `json:"priority"`
	ByteLength int      `json:"byte_length"`
	LineCount  int      `json:"line_count"`
	Admitted   bool     `json:"admitted"`
}

// Manifest is written to context/<phase>-packet.manifest.json on overflow.
type Manifest struct {
	Phase      string          `json:"phase"`
	MaxBytes   int             `json:"max_bytes"`
	MaxLines   int             `json:"max_lines"`
	CutoffPath string          `json:"cutoff_path"`
	Candidates []ManifestEntry `json:"candidates"`
}

// OverflowError is returned when even the Upstream tier alone exceeds
// budget, or a non-Upstream piece would push totals over budget
// (spec.md §4.6 step 5-6): exit_code=7, error_kind=packet_overflow.
type OverflowError struct {
	Manifest Manifest
	Reason   string
}

func (e *OverflowError) Error() string { return "packet overflow: " + e.Reason }

// SecretDetectedError aborts packet assembly when the redactor finds a
// non-ignored match (spec.md §4.6 step 7): exit_code=8.
type SecretDetectedError struct {
	PatternIDs []string
}

func (e *SecretDetectedError) Error() string { return "secret detected in packet content" }
