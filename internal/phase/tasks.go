package phase

import (
	"fmt"

	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
)

// TasksPhase turns 01-design.md into 02-tasks.md / 02-tasks.core.yaml
// (spec.md §4.8): an ordered, checkable implementation task list.
type TasksPhase struct{}

func (TasksPhase) ID() ID          { return Tasks }
func (TasksPhase) Deps() []ID      { return DepsOf(Tasks) }
func (TasksPhase) CanResume() bool { return true }

func (TasksPhase) Prompt(ctx Context) string {
	design, _ := priorMarkdown(ctx, Design)
	return basePrompt("Tasks", "Derive an ordered, checkable implementation task "+
		"list from the design below. Each task must be independently verifiable.\n\n"+
		"Design:\n"+design, ctx)
}

func (p TasksPhase) MakePacket(ctx Context) (*packet.Packet, error) {
	design, _ := priorMarkdown(ctx, Design)
	req, _ := priorMarkdown(ctx, Requirements)
	upstream := []packet.Upstream{
		{Path: "01-design.md", Content: []byte(design)},
		{Path: "00-requirements.md", Content: []byte(req)},
	}
	candidates, err := packet.Walk(ctx.Builder.Root, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("tasks: walking root: %w", err)
	}
	return ctx.Builder.Build(p.ID().String(), upstream, candidates)
}

func (TasksPhase) Postprocess(result llm.Result, ctx Context) ([]Artifact, NextStep, error) {
	artifacts, err := pairedArtifacts(Tasks, result.RawText)
	if err != nil {
		return nil, NextStep{}, err
	}
	return artifacts, AdvanceNext(), nil
}
