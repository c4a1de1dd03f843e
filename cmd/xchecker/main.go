// Package main implements the xchecker CLI: a thin cobra wrapper around
// internal/orchestrator's driver loop.
//
// # File Index
//
//   - main.go - entry point, rootCmd, global flags, logger setup
//   - cmd_spec.go    - spec/resume subcommands
//   - cmd_status.go  - status subcommand
//   - cmd_clean.go   - clean subcommand
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/EffortlessMetrics/xchecker/internal/config"
	"github.com/EffortlessMetrics/xchecker/internal/logging"
)

var (
	debugFlag       bool
	workspaceFlag   string
	configFlag      string
	backendArgv     []string
	applyFixupsFlag bool
	forceLockFlag   bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "xchecker",
	Short:         "xchecker - deterministic, audited LLM specification pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `xchecker drives a spec through six phases (requirements, design,
tasks, review, fixup, final), producing byte-stable, cryptographically
hashed artifacts and receipts for every attempt.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if debugFlag {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		stateHome := resolveStateHome()
		if err := logging.Initialize(stateHome, debugFlag, false); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}

		loaded, err := config.Load(configFlag)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		if cmd.Flags().Changed("apply-fixups") {
			cfg.ApplyCLI("apply_fixups", func(c *config.Config) { c.ApplyFixups = applyFixupsFlag })
		}
		if cmd.Flags().Changed("force") {
			cfg.ApplyCLI("force", func(c *config.Config) { c.Force = forceLockFlag })
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "State root (default: $XCHECKER_HOME or ./.xchecker)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&backendArgv, "backend", nil, "Backend subprocess argv (e.g. --backend=claude,-p,--output-format,stream-json)")
	rootCmd.PersistentFlags().BoolVar(&applyFixupsFlag, "apply-fixups", false, "Apply Review's fixup plan instead of dry-run preview only")
	rootCmd.PersistentFlags().BoolVar(&forceLockFlag, "force", false, "Force-acquire a spec's lock even if it looks live")

	rootCmd.AddCommand(specCmd, resumeCmd, statusCmd, cleanCmd)
}

// resolveStateHome implements spec.md §6's STATE_HOME resolution:
// workspace flag, then XCHECKER_HOME, then ./.xchecker.
func resolveStateHome() string {
	if workspaceFlag != "" {
		if abs, err := filepath.Abs(workspaceFlag); err == nil {
			return abs
		}
		return workspaceFlag
	}
	if v := os.Getenv("XCHECKER_HOME"); v != "" {
		return v
	}
	return "./.xchecker"
}

func specRootFor(specID string) string {
	return filepath.Join(resolveStateHome(), "specs", specID)
}

// exitError carries a driver's exit code through cobra's error-returning
// RunE so PersistentPostRun still runs (logger sync, log file close)
// before the process actually exits.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.msg
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if !errors.As(err, &ee) {
		fmt.Fprintf(os.Stderr, "xchecker: %v\n", err)
	}
	os.Exit(exitCodeForError(err))
}
