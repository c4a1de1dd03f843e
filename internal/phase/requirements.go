package phase

import (
	"fmt"

	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
)

// RequirementsPhase turns a problem statement into 00-requirements.md /
// 00-requirements.core.yaml (spec.md §4.8). It has no upstream phase
// artifacts — the problem statement itself is the sole upstream piece.
type RequirementsPhase struct{}

func (RequirementsPhase) ID() ID          { return Requirements }
func (RequirementsPhase) Deps() []ID      { return DepsOf(Requirements) }
func (RequirementsPhase) CanResume() bool { return true }

func (RequirementsPhase) Prompt(ctx Context) string {
	return basePrompt("Requirements", "Derive a requirements document (goals, "+
		"user stories, acceptance criteria) from the problem statement below.\n\n"+
		"Problem statement:\n"+ctx.ProblemStatement, ctx)
}

func (p RequirementsPhase) MakePacket(ctx Context) (*packet.Packet, error) {
	upstream := []packet.Upstream{{Path: "problem_statement", Content: []byte(ctx.ProblemStatement)}}
	candidates, err := packet.Walk(ctx.Builder.Root, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("requirements: walking root: %w", err)
	}
	return ctx.Builder.Build(p.ID().String(), upstream, candidates)
}

func (RequirementsPhase) Postprocess(result llm.Result, ctx Context) ([]Artifact, NextStep, error) {
	artifacts, err := pairedArtifacts(Requirements, result.RawText)
	if err != nil {
		return nil, NextStep{}, err
	}
	return artifacts, AdvanceNext(), nil
}
