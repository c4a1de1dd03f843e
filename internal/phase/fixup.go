package phase

import (
	"encoding/json"
	"fmt"

	"github.com/EffortlessMetrics/xchecker/internal/fixup"
	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
)

// FixupPhase consumes Review's fixup plan manifest and either reports it
// (preview mode) or applies it and rewinds (apply mode). It makes no LLM
// call of its own; Prompt/MakePacket exist to satisfy the uniform Phase
// trait the orchestrator drives every phase through, but the orchestrator
// short-circuits Fixup's backend invocation when there is no plan to act
// on (DESIGN.md records this as the Open Question resolution for the
// Review/Fixup apply-and-rewind split).
type FixupPhase struct{}

func (FixupPhase) ID() ID          { return Fixup }
func (FixupPhase) Deps() []ID      { return DepsOf(Fixup) }
func (FixupPhase) CanResume() bool { return true }

func (FixupPhase) Prompt(ctx Context) string {
	return "" // no LLM invocation; see type doc.
}

func (p FixupPhase) MakePacket(ctx Context) (*packet.Packet, error) {
	plan, ok := fixupPlanFrom(ctx)
	if !ok {
		return &packet.Packet{}, nil
	}
	upstream := []packet.Upstream{{Path: "review-fixup-plan", Content: mustMarshalPlan(plan)}}
	return ctx.Builder.Build(p.ID().String(), upstream, nil)
}

func fixupPlanFrom(ctx Context) (fixupPlan, bool) {
	for _, a := range ctx.PriorArtifacts[Review] {
		if a.FileType != FileTypeManifest {
			continue
		}
		var plan fixupPlan
		if err := json.Unmarshal(a.OnDiskBytes, &plan); err != nil {
			continue
		}
		return plan, true
	}
	return fixupPlan{}, false
}

func mustMarshalPlan(plan fixupPlan) []byte {
	b, _ := json.Marshal(plan)
	return b
}

// Postprocess ignores result (Fixup makes no LLM call): it applies or
// previews the plan carried from Review directly. The "result" parameter
// is accepted to satisfy the Phase interface uniformly.
func (FixupPhase) Postprocess(result llm.Result, ctx Context) ([]Artifact, NextStep, error) {
	plan, ok := fixupPlanFrom(ctx)
	if !ok || len(plan.Targets) == 0 {
		return nil, AdvanceNext(), nil
	}

	engine := fixup.New(ctx.Builder.Root, false)

	if !ctx.ApplyFixups {
		summaries := engine.DryRun(plan.Targets)
		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, NextStep{}, fmt.Errorf("fixup: marshaling preview summaries: %w", err)
		}
		artifact := Artifact{
			RelPath:        fmt.Sprintf("%02d-%s.preview.json", Fixup.Ordinal(), Fixup),
			FileType:       FileTypePreview,
			CanonicalBytes: b,
			OnDiskBytes:    b,
		}
		return []Artifact{artifact}, AdvanceNext(), nil
	}

	records, applyErr := engine.Apply(plan.Targets)

	b, merr := json.Marshal(records)
	if merr != nil {
		return nil, NextStep{}, fmt.Errorf("fixup: marshaling apply records: %w", merr)
	}
	artifact := Artifact{
		RelPath:        fmt.Sprintf("%02d-%s.applied.json", Fixup.Ordinal(), Fixup),
		FileType:       FileTypeManifest,
		CanonicalBytes: b,
		OnDiskBytes:    b,
	}

	if applyErr != nil {
		// Apply stops at the first failure but records carries every
		// target attempted so far; surface it so the receipt still lists
		// which targets succeeded before the failure (spec.md §4.9).
		return []Artifact{artifact}, NextStep{}, fmt.Errorf("fixup: applying plan: %w", applyErr)
	}

	anySucceeded := false
	for _, r := range records {
		if r.Succeeded {
			anySucceeded = true
			break
		}
	}
	if !anySucceeded {
		return []Artifact{artifact}, AdvanceNext(), nil
	}

	// A fixup that touches a prior artifact invalidates everything from
	// Requirements forward; rewind there unconditionally and let the
	// orchestrator enforce MaxRewinds.
	return []Artifact{artifact}, RewindTo(Requirements, "fixup applied against prior artifacts"), nil
}
