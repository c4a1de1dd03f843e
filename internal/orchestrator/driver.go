package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EffortlessMetrics/xchecker/internal/config"
	"github.com/EffortlessMetrics/xchecker/internal/lock"
	"github.com/EffortlessMetrics/xchecker/internal/llm"
	"github.com/EffortlessMetrics/xchecker/internal/logging"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
	"github.com/EffortlessMetrics/xchecker/internal/phase"
	"github.com/EffortlessMetrics/xchecker/internal/receipt"
)

// Driver runs the phase pipeline for one spec (spec.md §4.11).
type Driver struct {
	SpecRoot         string
	SpecID           string
	ProblemStatement string
	Config           *config.Config
	Backend          llm.Backend
	Builder          *packet.Builder
	log              *logging.Logger
}

// New constructs a Driver. builder must be rooted at specRoot.
func New(specRoot, specID, problemStatement string, cfg *config.Config, backend llm.Backend, builder *packet.Builder) *Driver {
	return &Driver{
		SpecRoot:         specRoot,
		SpecID:           specID,
		ProblemStatement: problemStatement,
		Config:           cfg,
		Backend:          backend,
		Builder:          builder,
		log:              logging.Get(logging.CategoryOrchestrator),
	}
}

// Run executes the driver loop from startPhase through Final, or until a
// terminal failure or SIGINT (spec.md §4.11). It backs the CLI `resume
// --phase` surface: history/artifacts are loaded from disk exactly as
// RunFromLastMissing does, so verifyDeps sees real prior receipts rather
// than an empty map. If startPhase already has a successful receipt and
// its phase reports can_resume()=false, the run is a no-op (spec.md:275).
func (d *Driver) Run(ctx context.Context, startPhase phase.ID) Run {
	history, err := LoadHistory(d.SpecRoot)
	if err != nil {
		return Run{ExitCode: ExitUnknown, Reason: fmt.Sprintf("loading receipt history: %v", err)}
	}
	if r, ok := history[startPhase]; ok && r.ExitCode == 0 && !phase.Get(startPhase).CanResume() {
		return Run{ExitCode: ExitSuccess, Reason: "phase already completed and cannot be resumed"}
	}
	artifacts := LoadArtifacts(d.SpecRoot, history)
	return d.run(ctx, startPhase, history, artifacts)
}

// RunFromLastMissing implements the bare `spec <id>` CLI surface
// (spec.md §6): load whatever receipts/artifacts a prior run produced and
// resume at the first phase without a successful receipt.
func (d *Driver) RunFromLastMissing(ctx context.Context) Run {
	history, err := LoadHistory(d.SpecRoot)
	if err != nil {
		return Run{ExitCode: ExitUnknown, Reason: fmt.Sprintf("loading receipt history: %v", err)}
	}
	artifacts := LoadArtifacts(d.SpecRoot, history)
	start := DetermineStartPhase(history)
	return d.run(ctx, start, history, artifacts)
}

func (d *Driver) run(ctx context.Context, startPhase phase.ID, seedHistory map[phase.ID]*receipt.Receipt, priorArtifacts map[phase.ID][]phase.Artifact) Run {
	mgr := lock.New(d.SpecRoot, d.Config.LockTTL())
	handle, err := mgr.Acquire(d.Config.Force)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return Run{ExitCode: ExitLockHeld, Reason: "spec is locked by another run"}
		}
		return Run{ExitCode: ExitUnknown, Reason: fmt.Sprintf("acquiring lock: %v", err)}
	}
	defer handle.Release()
	if handle.Warning != "" {
		d.log.Warn("lock acquired with warning: %s", handle.Warning)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := d.installSignalHandler(cancel)
	defer stop()

	state := &State{
		SpecID:  d.SpecID,
		Config:  d.Config,
		Lock:    handle,
		Current: startPhase,
		History: seedHistory,
	}

	for {
		select {
		case <-runCtx.Done():
			return d.abortForSignal(state)
		default:
		}

		id := state.Current
		p := phase.Get(id)

		if err := d.verifyDeps(p, state); err != nil {
			return Run{ExitCode: ExitUnknown, Reason: err.Error()}
		}

		run, next, artifacts := d.runOnePhase(runCtx, p, state, priorArtifacts)
		if run.ExitCode != ExitSuccess {
			return run
		}
		priorArtifacts[id] = artifacts

		switch next.Kind {
		case phase.Complete:
			return Run{ExitCode: ExitSuccess, Reason: "pipeline complete"}
		case phase.Rewind:
			if state.RewindCount >= MaxRewinds {
				return Run{ExitCode: ExitUnknown, Reason: fmt.Sprintf("rewind cap (%d) exceeded at phase %s", MaxRewinds, id)}
			}
			state.RewindCount++
			state.Current = next.To
		default: // phase.Advance
			if next.ToSet {
				state.Current = next.To
				continue
			}
			nextID, ok := nextInSequence(id)
			if !ok {
				return Run{ExitCode: ExitSuccess, Reason: "pipeline complete"}
			}
			state.Current = nextID
		}
	}
}

func nextInSequence(id phase.ID) (phase.ID, bool) {
	for i, p := range phase.All {
		if p == id {
			if i+1 < len(phase.All) {
				return phase.All[i+1], true
			}
			return 0, false
		}
	}
	return 0, false
}

// runOnePhase executes steps b-h of spec.md §4.11's driver loop for a
// single phase: build packet, invoke backend, postprocess, stage and
// promote artifacts, write the receipt.
func (d *Driver) runOnePhase(ctx context.Context, p phase.Phase, state *State, priorArtifacts map[phase.ID][]phase.Artifact) (Run, phase.NextStep, []phase.Artifact) {
	pctx := d.phaseContext(priorArtifacts, state)

	pkt, err := p.MakePacket(pctx)
	if err != nil {
		return d.receiptForBuildError(state, p.ID(), err), phase.NextStep{}, nil
	}

	// Fixup makes no LLM call when it has no plan to act on; MakePacket
	// returns an empty *packet.Packet in that case.
	var result llm.Result
	if pkt != nil && len(pkt.Pieces) > 0 {
		invocation := llm.Invocation{
			SpecID:  d.SpecID,
			PhaseID: p.ID().String(),
			Timeout: int(d.invocationTimeout().Seconds()),
			Messages: []llm.Message{
				{Role: llm.RoleUser, Content: p.Prompt(pctx)},
			},
		}
		result, err = d.Backend.Invoke(ctx, invocation)
		if err != nil {
			return d.receiptForBackendError(state, p.ID(), err), phase.NextStep{}, nil
		}
	}

	artifacts, next, err := p.Postprocess(result, pctx)
	if err != nil {
		// Postprocess may still return partial artifacts alongside the
		// error (e.g. FixupPhase's apply records up to the first
		// failure); stage them so the receipt lists which succeeded
		// instead of reporting zero outputs on a partial failure.
		if len(artifacts) > 0 {
			if serr := stageArtifacts(d.SpecRoot, artifacts); serr == nil {
				_ = promoteArtifacts(d.SpecRoot, artifacts)
			}
		}
		return d.receiptFor(state, p.ID(), 70, receipt.ErrorKindBackendFailure, err.Error(), artifacts), phase.NextStep{}, nil
	}

	if len(artifacts) > 0 {
		if err := stageArtifacts(d.SpecRoot, artifacts); err != nil {
			return d.receiptFor(state, p.ID(), 1, receipt.ErrorKindUnknown, err.Error(), nil), phase.NextStep{}, nil
		}
		if err := promoteArtifacts(d.SpecRoot, artifacts); err != nil {
			return d.receiptFor(state, p.ID(), 1, receipt.ErrorKindUnknown, err.Error(), nil), phase.NextStep{}, nil
		}
	}

	r := d.buildReceipt(state, p.ID(), 0, receipt.ErrorKindNone, "", artifacts, pkt)
	path, werr := receipt.Write(d.SpecRoot, r)
	if werr != nil {
		return Run{ExitCode: ExitUnknown, Reason: werr.Error()}, phase.NextStep{}, nil
	}
	state.History[p.ID()] = r

	return Run{ExitCode: ExitSuccess, ReceiptPath: path}, next, artifacts
}

func (d *Driver) verifyDeps(p phase.Phase, state *State) error {
	if p.ID() == phase.Final {
		satisfied := false
		for _, dep := range phase.FinalAcceptableDeps {
			if r, ok := state.History[dep]; ok && r.ExitCode == 0 {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return fmt.Errorf("phase final: neither fixup nor review has a successful receipt")
		}
		return nil
	}
	for _, dep := range p.Deps() {
		r, ok := state.History[dep]
		if !ok || r.ExitCode != 0 {
			return fmt.Errorf("phase %s: dependency %s has no successful receipt", p.ID(), dep)
		}
	}
	return nil
}

func (d *Driver) installSignalHandler(cancel context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			d.log.Warn("received interrupt, finishing in-flight write before exit")
			cancel()
			select {
			case <-sigCh:
				d.log.Warn("received second interrupt, exiting immediately")
				os.Exit(130)
			case <-done:
			}
		case <-done:
		}
	}()
	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}

// abortForSignal handles a first SIGINT/SIGTERM (spec.md:191): the
// in-flight atomic write has already finished by the time runCtx.Done()
// is observed here, the lock is released by run()'s deferred
// handle.Release(), and a receipt is still written recording the abort
// so the run leaves an auditable trail identical in shape to any other
// exit_code=1 failure.
func (d *Driver) abortForSignal(state *State) Run {
	const reason = "aborted by signal"
	r := d.buildReceipt(state, state.Current, ExitUnknown, receipt.ErrorKindUnknown, reason, nil, nil)
	path, _ := receipt.Write(d.SpecRoot, r)
	return Run{ExitCode: ExitUnknown, ReceiptPath: path, Reason: reason}
}

func (d *Driver) phaseContext(priorArtifacts map[phase.ID][]phase.Artifact, state *State) phase.Context {
	return phase.Context{
		SpecID:           d.SpecID,
		ProblemStatement: d.ProblemStatement,
		Builder:          d.Builder,
		PriorArtifacts:   priorArtifacts,
		ApplyFixups:      d.Config.ApplyFixups,
		RewindCount:      state.RewindCount,
	}
}

func (d *Driver) invocationTimeout() time.Duration {
	return d.Config.PhaseTimeout()
}
