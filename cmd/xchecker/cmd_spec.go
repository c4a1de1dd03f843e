package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/xchecker/internal/orchestrator"
	"github.com/EffortlessMetrics/xchecker/internal/packet"
	"github.com/EffortlessMetrics/xchecker/internal/phase"
	"github.com/EffortlessMetrics/xchecker/internal/redact"
)

var (
	problemFlag     string
	problemFileFlag string
	resumePhaseFlag string
)

var specCmd = &cobra.Command{
	Use:   "spec <id>",
	Short: "Run a spec from its first missing phase through Final",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID := args[0]
		problem, err := resolveProblemStatement()
		if err != nil {
			return err
		}
		d, err := buildDriver(specID, problem)
		if err != nil {
			return err
		}
		run := d.RunFromLastMissing(cmd.Context())
		return reportAndExit(run)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a spec starting at an explicit phase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID := args[0]
		if resumePhaseFlag == "" {
			return fmt.Errorf("--phase is required")
		}
		startID, err := phase.ParseID(resumePhaseFlag)
		if err != nil {
			return fmt.Errorf("invalid --phase %q: %w", resumePhaseFlag, err)
		}
		problem, err := resolveProblemStatement()
		if err != nil {
			return err
		}
		d, err := buildDriver(specID, problem)
		if err != nil {
			return err
		}
		run := d.Run(cmd.Context(), startID)
		return reportAndExit(run)
	},
}

func init() {
	specCmd.Flags().StringVar(&problemFlag, "problem", "", "Problem statement text")
	specCmd.Flags().StringVar(&problemFileFlag, "problem-file", "", "Path to a file containing the problem statement")
	resumeCmd.Flags().StringVar(&resumePhaseFlag, "phase", "", "Phase to resume at (requirements|design|tasks|review|fixup|final)")
	resumeCmd.Flags().StringVar(&problemFlag, "problem", "", "Problem statement text")
	resumeCmd.Flags().StringVar(&problemFileFlag, "problem-file", "", "Path to a file containing the problem statement")
}

func resolveProblemStatement() (string, error) {
	if problemFileFlag != "" {
		data, err := os.ReadFile(problemFileFlag)
		if err != nil {
			return "", fmt.Errorf("reading --problem-file: %w", err)
		}
		return string(data), nil
	}
	return problemFlag, nil
}

// buildDriver wires a fresh orchestrator.Driver for one spec run: redactor,
// packet builder rooted at the spec's own directory, and the configured
// backend (spec.md §4.11 step 1's preconditions).
func buildDriver(specID, problem string) (*orchestrator.Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	root := specRootFor(specID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating spec root: %w", err)
	}

	r, err := redact.New(cfg.ExtraSecretPatterns, cfg.IgnoreSecretPatterns)
	if err != nil {
		return nil, fmt.Errorf("building redactor: %w", err)
	}
	builder := packet.New(root, packet.Budget{
		MaxBytes: cfg.PacketMaxBytes,
		MaxLines: cfg.PacketMaxLines,
	}, r)

	backend := resolveBackend()
	if debugFlag {
		fmt.Fprintf(os.Stderr, "backend: %s\n", describeBackend())
	}
	return orchestrator.New(root, specID, problem, cfg, backend, builder), nil
}

func reportAndExit(run orchestrator.Run) error {
	if run.ReceiptPath != "" {
		fmt.Fprintf(os.Stdout, "receipt: %s\n", run.ReceiptPath)
	}
	if run.Reason != "" {
		fmt.Fprintln(os.Stdout, run.Reason)
	}
	if run.ExitCode != orchestrator.ExitSuccess {
		return &exitError{code: int(run.ExitCode), msg: run.Reason}
	}
	return nil
}

// exitCodeForError maps a RunE error to a process exit code (spec.md §6):
// an *exitError carries the driver's own code, anything else is argument
// or setup failure before a Driver ever ran.
func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 2
}
