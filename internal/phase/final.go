package phase

import (
	"fmt"

	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
)

// FinalPhase consolidates every prior artifact into the terminal
// 05-final.md / 05-final.core.yaml pair (spec.md §4.8). Its dependency is
// satisfied by either Fixup or Review (FinalAcceptableDeps) since Fixup is
// skippable when Review found nothing to fix.
type FinalPhase struct{}

func (FinalPhase) ID() ID          { return Final }
func (FinalPhase) Deps() []ID      { return FinalAcceptableDeps }
func (FinalPhase) CanResume() bool { return true }

func (FinalPhase) Prompt(ctx Context) string {
	req, _ := priorMarkdown(ctx, Requirements)
	design, _ := priorMarkdown(ctx, Design)
	tasks, _ := priorMarkdown(ctx, Tasks)
	review, _ := priorMarkdown(ctx, Review)
	instructions := "Consolidate the requirements, design, tasks, and review " +
		"below into a single final specification document, resolving any " +
		"remaining inconsistencies in favor of the review's guidance.\n\n" +
		"Requirements:\n" + req + "\n\nDesign:\n" + design + "\n\nTasks:\n" + tasks +
		"\n\nReview:\n" + review
	return basePrompt("Final", instructions, ctx)
}

func (p FinalPhase) MakePacket(ctx Context) (*packet.Packet, error) {
	var upstream []packet.Upstream
	for _, id := range []ID{Requirements, Design, Tasks, Review} {
		if md, ok := priorMarkdown(ctx, id); ok {
			upstream = append(upstream, packet.Upstream{Path: fmt.Sprintf("%02d-%s.md", id.Ordinal(), id), Content: []byte(md)})
		}
	}
	candidates, err := packet.Walk(ctx.Builder.Root, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("final: walking root: %w", err)
	}
	return ctx.Builder.Build(p.ID().String(), upstream, candidates)
}

func (FinalPhase) Postprocess(result llm.Result, ctx Context) ([]Artifact, NextStep, error) {
	artifacts, err := pairedArtifacts(Final, result.RawText)
	if err != nil {
		return nil, NextStep{}, err
	}
	return artifacts, CompleteRun(), nil
}
