package phase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/EffortlessMetrics/xchecker/internal/canon"
	"github.com/EffortlessMetrics/xchecker/internal/fixup"
	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
)

const fixupPlanMarker = "FIXUP PLAN:"

// ReviewPhase critiques 02-tasks.md (and its ancestors) and optionally
// proposes a unified-diff fixup plan against earlier artifacts (spec.md
// §4.8). It never applies a diff itself — extraction only. The Fixup
// phase, which depends on Review, performs the actual apply-and-rewind
// decision (DESIGN.md records this split as the resolution of spec.md
// §4.8's prose, which attributes the apply/rewind call to "Review" without
// distinguishing it from the separately enumerated Fixup phase).
type ReviewPhase struct{}

func (ReviewPhase) ID() ID          { return Review }
func (ReviewPhase) Deps() []ID      { return DepsOf(Review) }
func (ReviewPhase) CanResume() bool { return true }

func (ReviewPhase) Prompt(ctx Context) string {
	tasks, _ := priorMarkdown(ctx, Tasks)
	instructions := "Review the requirements, design, and tasks below for gaps, " +
		"inconsistencies, or missing edge cases. If a prior artifact needs a textual " +
		"correction, include a line reading exactly \"" + fixupPlanMarker + "\" followed " +
		"by a unified diff against the affected file(s). Otherwise omit that section " +
		"entirely.\n\nTasks:\n" + tasks
	return basePrompt("Review", instructions, ctx)
}

func (p ReviewPhase) MakePacket(ctx Context) (*packet.Packet, error) {
	tasks, _ := priorMarkdown(ctx, Tasks)
	design, _ := priorMarkdown(ctx, Design)
	req, _ := priorMarkdown(ctx, Requirements)
	upstream := []packet.Upstream{
		{Path: "02-tasks.md", Content: []byte(tasks)},
		{Path: "01-design.md", Content: []byte(design)},
		{Path: "00-requirements.md", Content: []byte(req)},
	}
	candidates, err := packet.Walk(ctx.Builder.Root, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("review: walking root: %w", err)
	}
	return ctx.Builder.Build(p.ID().String(), upstream, candidates)
}

// fixupPlan is the manifest artifact Review hands Fixup: the parsed
// unified-diff targets, serialized so Fixup's postprocess can reconstitute
// them without re-invoking the LLM.
type fixupPlan struct {
	Targets []fixup.Target `json:"targets"`
}

func (ReviewPhase) Postprocess(result llm.Result, ctx Context) ([]Artifact, NextStep, error) {
	artifacts, err := pairedArtifacts(Review, result.RawText)
	if err != nil {
		return nil, NextStep{}, err
	}

	md, _, splitErr := splitYAMLCore(result.RawText)
	if splitErr != nil {
		return nil, NextStep{}, splitErr
	}

	idx := strings.Index(md, fixupPlanMarker)
	if idx == -1 {
		// No fixup plan proposed: skip the Fixup phase entirely, matching
		// spec.md §4.8's "Final: {Fixup OR Review}" dependency flexibility.
		return artifacts, AdvanceTo(Final), nil
	}

	diffText := md[idx+len(fixupPlanMarker):]
	targets, err := fixup.ParseDiffs(diffText)
	if err != nil {
		return nil, NextStep{}, fmt.Errorf("review: parsing fixup plan diff: %w", err)
	}

	planBytes, err := json.Marshal(fixupPlan{Targets: targets})
	if err != nil {
		return nil, NextStep{}, fmt.Errorf("review: marshaling fixup plan: %w", err)
	}
	planArtifact := Artifact{
		RelPath:        fmt.Sprintf("%02d-%s.fixups.json", Review.Ordinal(), Review),
		FileType:       FileTypeManifest,
		CanonicalBytes: planBytes,
		OnDiskBytes:    planBytes,
		Hash:           canon.HashBytes(planBytes),
	}

	return append(artifacts, planArtifact), AdvanceNext(), nil
}
