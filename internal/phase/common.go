package phase

import (
	"fmt"
	"strings"

	"github.com/EffortlessMetrics/xchecker/internal/canon"
)

const yamlCoreFence = "```yaml-core"
const fenceClose = "```"

// splitYAMLCore implements the wire convention fixed in SPEC_FULL.md §12:
// a phase's raw response is markdown containing exactly one fenced code
// block tagged ```yaml-core. Its body becomes the .core.yaml content; the
// markdown with that block removed becomes the .md content.
func splitYAMLCore(raw string) (md string, yamlCore string, err error) {
	start := strings.Index(raw, yamlCoreFence)
	if start == -1 {
		return "", "", fmt.Errorf("postprocess: no ```yaml-core fenced block in raw response")
	}
	bodyStart := start + len(yamlCoreFence)
	// Skip to end of the fence-open line.
	if nl := strings.IndexByte(raw[bodyStart:], '\n'); nl >= 0 {
		bodyStart += nl + 1
	} else {
		return "", "", fmt.Errorf("postprocess: yaml-core fence has no body")
	}
	end := strings.Index(raw[bodyStart:], fenceClose)
	if end == -1 {
		return "", "", fmt.Errorf("postprocess: unterminated ```yaml-core fenced block")
	}
	yamlCore = raw[bodyStart : bodyStart+end]

	closeEnd := bodyStart + end + len(fenceClose)
	md = raw[:start] + raw[closeEnd:]
	return md, yamlCore, nil
}

// pairedArtifacts builds the .md and .core.yaml artifact pair every phase
// except Fixup emits (spec.md §4.8 postprocess, SPEC_FULL.md §12).
func pairedArtifacts(id ID, rawText string) ([]Artifact, error) {
	md, yamlCore, err := splitYAMLCore(rawText)
	if err != nil {
		return nil, err
	}

	mdCanon := canon.CanonicalizeMarkdown([]byte(md))
	mdArtifact := Artifact{
		RelPath:        fmt.Sprintf("%02d-%s.md", id.Ordinal(), id),
		FileType:       FileTypeMarkdown,
		CanonicalBytes: mdCanon,
		OnDiskBytes:    mdCanon,
		Hash:           canon.HashBytes(mdCanon),
	}

	yamlOnDisk := canon.NormalizeYAMLForDisk([]byte(yamlCore))
	yamlCanonBytes, err := canon.CanonicalizeYAML(yamlOnDisk)
	if err != nil {
		return nil, fmt.Errorf("postprocess: canonicalizing yaml-core: %w", err)
	}
	yamlArtifact := Artifact{
		RelPath:        fmt.Sprintf("%02d-%s.core.yaml", id.Ordinal(), id),
		FileType:       FileTypeYAMLCore,
		CanonicalBytes: yamlCanonBytes,
		OnDiskBytes:    yamlOnDisk,
		Hash:           canon.HashBytes(yamlCanonBytes),
	}

	return []Artifact{mdArtifact, yamlArtifact}, nil
}

// priorMarkdown returns the markdown artifact's on-disk text for a
// completed phase, used to feed later phases' packets (spec.md §4.6
// upstream pieces are always admitted, never evicted).
func priorMarkdown(ctx Context, id ID) (string, bool) {
	for _, a := range ctx.PriorArtifacts[id] {
		if a.FileType == FileTypeMarkdown {
			return string(a.OnDiskBytes), true
		}
	}
	return "", false
}

// basePrompt renders the shared system/user framing every concrete phase
// wraps its own instructions around.
func basePrompt(name, instructions string, ctx Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s phase of a specification pipeline for spec %q.\n\n", name, ctx.SpecID)
	b.WriteString(instructions)
	b.WriteString("\n\nRespond with a markdown document containing exactly one fenced ")
	b.WriteString("```yaml-core code block holding the machine-readable core of your output.\n")
	return b.String()
}
