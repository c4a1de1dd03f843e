package phase

import (
	"fmt"

	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
)

// DesignPhase turns 00-requirements.md into 01-design.md /
// 01-design.core.yaml (spec.md §4.8).
type DesignPhase struct{}

func (DesignPhase) ID() ID          { return Design }
func (DesignPhase) Deps() []ID      { return DepsOf(Design) }
func (DesignPhase) CanResume() bool { return true }

func (DesignPhase) Prompt(ctx Context) string {
	req, _ := priorMarkdown(ctx, Requirements)
	return basePrompt("Design", "Derive a design document (architecture, "+
		"component boundaries, data model, key decisions) from the requirements "+
		"below.\n\nRequirements:\n"+req, ctx)
}

func (p DesignPhase) MakePacket(ctx Context) (*packet.Packet, error) {
	req, _ := priorMarkdown(ctx, Requirements)
	upstream := []packet.Upstream{{Path: "00-requirements.md", Content: []byte(req)}}
	candidates, err := packet.Walk(ctx.Builder.Root, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("design: walking root: %w", err)
	}
	return ctx.Builder.Build(p.ID().String(), upstream, candidates)
}

func (DesignPhase) Postprocess(result llm.Result, ctx Context) ([]Artifact, NextStep, error) {
	artifacts, err := pairedArtifacts(Design, result.RawText)
	if err != nil {
		return nil, NextStep{}, err
	}
	return artifacts, AdvanceNext(), nil
}
