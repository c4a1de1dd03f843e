package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/EffortlessMetrics/xchecker/internal/canon"
	"github.com/EffortlessMetrics/xchecker/internal/phase"
	"github.com/EffortlessMetrics/xchecker/internal/receipt"
)

// LoadHistory reads every receipt under <specRoot>/receipts and keeps the
// most recently emitted one per phase, reconstructing the state a crashed
// or interrupted run left behind (spec.md §4.11 step 2: "first-missing").
func LoadHistory(specRoot string) (map[phase.ID]*receipt.Receipt, error) {
	dir := filepath.Join(specRoot, "receipts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[phase.ID]*receipt.Receipt{}, nil
		}
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	history := make(map[phase.ID]*receipt.Receipt)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, rerr := os.ReadFile(filepath.Join(dir, e.Name()))
		if rerr != nil {
			continue
		}
		var r receipt.Receipt
		if jerr := json.Unmarshal(data, &r); jerr != nil {
			continue
		}
		id, perr := phase.ParseID(r.Phase)
		if perr != nil {
			continue
		}
		// Filenames sort lexicographically by <phase>-<iso8601>.json;
		// since entries are name-sorted, the last one seen per phase is
		// the most recent (ties broken by timestamp's own ordering).
		if existing, ok := history[id]; !ok || r.EmittedAt.After(existing.EmittedAt) {
			history[id] = &r
		}
	}
	return history, nil
}

// DetermineStartPhase implements spec.md §4.11 step 2's "else first-missing"
// branch: the first phase in dependency order without a successful
// receipt. Fixup is treated as satisfied-by-skip when Review succeeded and
// its outputs carry no fixup-plan manifest (ReviewPhase.Postprocess's
// AdvanceTo(Final) path never produces one).
func DetermineStartPhase(history map[phase.ID]*receipt.Receipt) phase.ID {
	for _, id := range phase.All {
		r, ok := history[id]
		if ok && r.ExitCode == 0 {
			continue
		}
		if id == phase.Fixup {
			if reviewSucceededWithNoFixupPlan(history) {
				continue
			}
		}
		return id
	}
	return phase.Final
}

// LoadArtifacts reconstructs the priorArtifacts map a resumed run needs
// from promoted files under <specRoot>/artifacts, restricted to phases
// with a successful receipt. Only .md and .core.yaml are reloaded — the
// per-phase manifest/preview side files are regenerated if needed, never
// consumed across a resume boundary.
func LoadArtifacts(specRoot string, history map[phase.ID]*receipt.Receipt) map[phase.ID][]phase.Artifact {
	out := make(map[phase.ID][]phase.Artifact)
	dir := filepath.Join(specRoot, "artifacts")
	for id, r := range history {
		if r.ExitCode != 0 {
			continue
		}
		var artifacts []phase.Artifact
		if relPath, data, err := readNamed(dir, id, ".md"); err == nil {
			c := canon.CanonicalizeMarkdown(data)
			artifacts = append(artifacts, phase.Artifact{RelPath: relPath, FileType: phase.FileTypeMarkdown, CanonicalBytes: c, OnDiskBytes: data, Hash: canon.HashBytes(c)})
		}
		if relPath, data, err := readNamed(dir, id, ".core.yaml"); err == nil {
			onDisk := canon.NormalizeYAMLForDisk(data)
			if c, cerr := canon.CanonicalizeYAML(onDisk); cerr == nil {
				artifacts = append(artifacts, phase.Artifact{RelPath: relPath, FileType: phase.FileTypeYAMLCore, CanonicalBytes: c, OnDiskBytes: onDisk, Hash: canon.HashBytes(c)})
			}
		}
		if len(artifacts) > 0 {
			out[id] = artifacts
		}
	}
	return out
}

func readNamed(dir string, id phase.ID, suffix string) (relPath string, data []byte, err error) {
	// Artifact filenames carry an NN prefix (phase.Artifact.RelPath, built
	// by pairedArtifacts); glob for it since the ordinal is known but
	// zero-padding width is fixed at 2 digits by that helper.
	matches, globErr := filepath.Glob(filepath.Join(dir, "*-"+id.String()+suffix))
	if globErr != nil || len(matches) == 0 {
		return "", nil, os.ErrNotExist
	}
	data, err = os.ReadFile(matches[0])
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(matches[0]), data, nil
}

func reviewSucceededWithNoFixupPlan(history map[phase.ID]*receipt.Receipt) bool {
	r, ok := history[phase.Review]
	if !ok || r.ExitCode != 0 {
		return false
	}
	for _, o := range r.Outputs {
		if strings.HasSuffix(o.Path, ".fixups.json") {
			return false
		}
	}
	return true
}
