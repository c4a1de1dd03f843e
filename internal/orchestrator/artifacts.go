package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/EffortlessMetrics/xchecker/internal/atomicio"
	"github.com/EffortlessMetrics/xchecker/internal/phase"
)

// stageArtifacts writes every artifact into artifacts/.partial/ (spec.md
// §4.11 step g). Each individual write is already atomic (atomicio.Write);
// staging under .partial/ keeps a failed phase's partial output out of the
// promoted artifacts/ tree until the whole set succeeds.
func stageArtifacts(specRoot string, artifacts []phase.Artifact) error {
	partialDir := filepath.Join(specRoot, "artifacts", ".partial")
	for _, a := range artifacts {
		if err := atomicio.Write(filepath.Join(partialDir, a.RelPath), a.OnDiskBytes, 0o644); err != nil {
			return fmt.Errorf("staging artifact %s: %w", a.RelPath, err)
		}
	}
	return nil
}

// promoteArtifacts moves every staged artifact from .partial/ into
// artifacts/, then removes the now-empty .partial entries (spec.md §4.11
// step h: "Success => delete partials").
func promoteArtifacts(specRoot string, artifacts []phase.Artifact) error {
	artifactsDir := filepath.Join(specRoot, "artifacts")
	partialDir := filepath.Join(artifactsDir, ".partial")
	for _, a := range artifacts {
		src := filepath.Join(partialDir, a.RelPath)
		dst := filepath.Join(artifactsDir, a.RelPath)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("promoting artifact %s: %w", a.RelPath, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("promoting artifact %s: %w", a.RelPath, err)
		}
	}
	return nil
}
