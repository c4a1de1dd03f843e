// Package phase implements xchecker's Phase trait and the six concrete
// phases (spec.md §4.8): Requirements, Design, Tasks, Review, Fixup,
// Final. Each phase builds its own packet, renders its own prompt, and
// turns an LLM result into artifacts plus a NextStep decision.
package phase

import (
	"fmt"

	"github.com/EffortlessMetrics/xchecker/internal/canon"
	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
)

// ID enumerates the six phases, totally ordered by dependency (spec.md §3).
type ID int

const (
	Requirements ID = iota
	Design
	Tasks
	Review
	Fixup
	Final
)

var names = [...]string{"requirements", "design", "tasks", "review", "fixup", "final"}

func (p ID) String() string {
	if int(p) < 0 || int(p) >= len(names) {
		return "unknown"
	}
	return names[p]
}

// Ordinal is the NN prefix used in artifact filenames (spec.md §3
// Artifact: "Named NN-<phase>.md").
func (p ID) Ordinal() int { return int(p) }

// ParseID resolves a phase name back to its ID, used by CLI resume/status.
func ParseID(name string) (ID, error) {
	for i, n := range names {
		if n == name {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", name)
}

// FileType enumerates an Artifact's kind (spec.md §3 Artifact).
type FileType string

const (
	FileTypeMarkdown FileType = "markdown"
	FileTypeYAMLCore FileType = "yaml-core"
	FileTypePreview  FileType = "preview"
	FileTypeManifest FileType = "manifest"
)

// Artifact is one produced file (spec.md §3 Artifact).
type Artifact struct {
	RelPath        string
	FileType       FileType
	CanonicalBytes []byte
	OnDiskBytes    []byte
	Hash           canon.Hash
}

// NextStepKind discriminates the orchestrator action after postprocess.
type NextStepKind int

const (
	Advance NextStepKind = iota
	Rewind
	Complete
)

// NextStep is postprocess's control-flow verdict (spec.md §4.8). To/ToSet
// let Advance target a specific phase (e.g. Review skipping the Fixup
// phase entirely when no fixup plan was found, matching spec.md §4.8's
// "Final: {Fixup OR Review}" dependency flexibility) instead of always
// moving to the next phase in fixed sequence.
type NextStep struct {
	Kind   NextStepKind
	To     ID
	ToSet  bool
	Reason string
}

// AdvanceNext moves to the next phase in fixed sequence.
func AdvanceNext() NextStep { return NextStep{Kind: Advance} }

// AdvanceTo moves to a specific phase, skipping any phases in between.
func AdvanceTo(id ID) NextStep { return NextStep{Kind: Advance, To: id, ToSet: true} }

// RewindTo requests a rewind to an earlier phase with a reason.
func RewindTo(id ID, reason string) NextStep {
	return NextStep{Kind: Rewind, To: id, ToSet: true, Reason: reason}
}

// CompleteRun ends the pipeline successfully.
func CompleteRun() NextStep { return NextStep{Kind: Complete} }

// Context carries everything a phase needs to build its packet and
// prompt: prior artifacts, the problem statement, and the budgets the
// Packet Builder enforces.
type Context struct {
	SpecID           string
	ProblemStatement string
	PriorArtifacts   map[ID][]Artifact // completed phases' artifacts, keyed by phase
	Builder          *packet.Builder
	ApplyFixups      bool
	RewindCount      int
}

// Phase is the capability set every concrete phase implements (spec.md §4.8).
type Phase interface {
	ID() ID
	Deps() []ID
	CanResume() bool
	Prompt(ctx Context) string
	MakePacket(ctx Context) (*packet.Packet, error)
	Postprocess(result llm.Result, ctx Context) ([]Artifact, NextStep, error)
}

// deps is the totally-ordered dependency table from spec.md §4.8.
var deps = map[ID][]ID{
	Requirements: {},
	Design:       {Requirements},
	Tasks:        {Design},
	Review:       {Tasks},
	Fixup:        {Review},
	Final:        {Fixup}, // Review is also acceptable per spec.md §4.8; orchestrator checks either.
}

// DepsOf returns the declared dependency list for id.
func DepsOf(id ID) []ID { return deps[id] }

// FinalAcceptableDeps lists Final's two acceptable predecessor phases
// (spec.md §4.8: "Final: {Fixup OR Review}").
var FinalAcceptableDeps = []ID{Fixup, Review}

// All lists every phase in dependency order.
var All = []ID{Requirements, Design, Tasks, Review, Fixup, Final}
