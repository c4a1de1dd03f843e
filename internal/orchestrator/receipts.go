package orchestrator

import (
	"errors"
	"time"

	"github.com/EffortlessMetrics/xchecker/internal/canon"
	"github.com/EffortlessMetrics/xchecker/internal/config"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
	"github.com/EffortlessMetrics/xchecker/internal/phase"
	"github.com/EffortlessMetrics/xchecker/internal/receipt"
	"github.com/EffortlessMetrics/xchecker/internal/runner"
)

const xcheckerVersion = "0.1.0"
const executionStrategy = "controlled" // SPEC_FULL.md §13 Open Question resolution

// receiptForBuildError maps a MakePacket failure onto the packet_overflow
// / secret_detected exit codes (spec.md §4.11 step b-c).
func (d *Driver) receiptForBuildError(state *State, id phase.ID, err error) Run {
	var overflow *packet.OverflowError
	if errors.As(err, &overflow) {
		r := d.buildReceipt(state, id, ExitPacketOverflow, receipt.ErrorKindPacketOverflow, err.Error(), nil, nil)
		path, _ := receipt.Write(d.SpecRoot, r)
		return Run{ExitCode: ExitPacketOverflow, ReceiptPath: path, Reason: err.Error()}
	}
	var secret *packet.SecretDetectedError
	if errors.As(err, &secret) {
		r := d.buildReceipt(state, id, ExitSecretDetected, receipt.ErrorKindSecretDetected, err.Error(), nil, nil)
		path, _ := receipt.Write(d.SpecRoot, r)
		return Run{ExitCode: ExitSecretDetected, ReceiptPath: path, Reason: err.Error()}
	}
	r := d.buildReceipt(state, id, ExitUnknown, receipt.ErrorKindUnknown, err.Error(), nil, nil)
	path, _ := receipt.Write(d.SpecRoot, r)
	return Run{ExitCode: ExitUnknown, ReceiptPath: path, Reason: err.Error()}
}

// receiptForBackendError maps a Runner/Backend failure onto phase_timeout
// / claude_failure (spec.md §7).
func (d *Driver) receiptForBackendError(state *State, id phase.ID, err error) Run {
	var rerr *runner.Error
	if errors.As(err, &rerr) {
		switch rerr.Kind {
		case runner.ErrorKindPhaseTimeout:
			r := d.buildReceipt(state, id, ExitPhaseTimeout, receipt.ErrorKindPhaseTimeout, rerr.Message, nil, nil)
			r.StderrTail = string(rerr.Result.StderrTail)
			path, _ := receipt.Write(d.SpecRoot, r)
			return Run{ExitCode: ExitPhaseTimeout, ReceiptPath: path, Reason: rerr.Message}
		case runner.ErrorKindBackendFailure:
			r := d.buildReceipt(state, id, ExitBackendFailure, receipt.ErrorKindBackendFailure, rerr.Message, nil, nil)
			r.StderrTail = string(rerr.Result.StderrTail)
			path, _ := receipt.Write(d.SpecRoot, r)
			return Run{ExitCode: ExitBackendFailure, ReceiptPath: path, Reason: rerr.Message}
		}
	}
	r := d.buildReceipt(state, id, ExitUnknown, receipt.ErrorKindUnknown, err.Error(), nil, nil)
	path, _ := receipt.Write(d.SpecRoot, r)
	return Run{ExitCode: ExitUnknown, ReceiptPath: path, Reason: err.Error()}
}

// receiptFor is a thin wrapper used by failure paths after postprocess or
// artifact staging that don't map onto a more specific taxonomy entry.
func (d *Driver) receiptFor(state *State, id phase.ID, exit ExitCode, kind receipt.ErrorKind, reason string, artifacts []phase.Artifact) Run {
	r := d.buildReceipt(state, id, exit, kind, reason, artifacts, nil)
	path, _ := receipt.Write(d.SpecRoot, r)
	return Run{ExitCode: exit, ReceiptPath: path, Reason: reason}
}

func (d *Driver) buildReceipt(state *State, id phase.ID, exit ExitCode, kind receipt.ErrorKind, reason string, artifacts []phase.Artifact, pkt *packet.Packet) *receipt.Receipt {
	r := &receipt.Receipt{
		SchemaVersion:           receipt.SchemaVersion,
		EmittedAt:               time.Now().UTC(),
		SpecID:                  d.SpecID,
		Phase:                   id.String(),
		XcheckerVersion:         xcheckerVersion,
		Runner:                  "native",
		CanonicalizationBackend: receipt.CanonicalizationBackend,
		CanonicalizationVersion: canon.Version,
		Flags:                   flagsFromConfig(d.Config),
		ExitCode:                int(exit),
		Warnings:                []string{},
		ErrorKind:               kind,
		ErrorReason:             reason,
		ExecutionStrategy:       executionStrategy,
	}

	if pkt != nil {
		files := make([]receipt.PacketFile, 0, len(pkt.Pieces))
		for _, piece := range pkt.Pieces {
			files = append(files, receipt.PacketFile{
				Path:               piece.Path,
				Priority:           piece.Priority.String(),
				BLAKE3PreRedaction: piece.PreRedactionHash.Full,
			})
		}
		r.Packet = receipt.PacketEvidence{Files: files, PostRedactionHash: pkt.PostRedactionHash.Full}
	}

	for _, a := range artifacts {
		r.Outputs = append(r.Outputs, receipt.Output{Path: a.RelPath, BLAKE3First8: a.Hash.First8})
	}

	return r
}

func flagsFromConfig(cfg *config.Config) map[string]string {
	return map[string]string{
		"runner_mode":  string(cfg.RunnerMode),
		"apply_fixups": boolFlag(cfg.ApplyFixups),
		"strict_lock":  boolFlag(cfg.StrictLock),
	}
}

func boolFlag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
