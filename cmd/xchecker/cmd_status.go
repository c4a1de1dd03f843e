package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EffortlessMetrics/xchecker/internal/orchestrator"
	"github.com/EffortlessMetrics/xchecker/internal/phase"
)

var statusJSONFlag bool

type phaseStatus struct {
	Phase    string `json:"phase"`
	ExitCode int    `json:"exit_code,omitempty"`
	Ran      bool   `json:"ran"`
	OK       bool   `json:"ok"`
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show per-phase receipt status for a spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID := args[0]
		root := specRootFor(specID)
		history, err := orchestrator.LoadHistory(root)
		if err != nil {
			return fmt.Errorf("loading receipt history: %w", err)
		}

		statuses := make([]phaseStatus, 0, len(phase.All))
		for _, id := range phase.All {
			r, ok := history[id]
			s := phaseStatus{Phase: id.String()}
			if ok {
				s.Ran = true
				s.ExitCode = r.ExitCode
				s.OK = r.ExitCode == 0
			}
			statuses = append(statuses, s)
		}

		if statusJSONFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(statuses)
		}

		for _, s := range statuses {
			switch {
			case !s.Ran:
				fmt.Fprintf(os.Stdout, "%-12s pending\n", s.Phase)
			case s.OK:
				fmt.Fprintf(os.Stdout, "%-12s ok\n", s.Phase)
			default:
				fmt.Fprintf(os.Stdout, "%-12s failed (exit %d)\n", s.Phase, s.ExitCode)
			}
		}
		next := orchestrator.DetermineStartPhase(history)
		fmt.Fprintf(os.Stdout, "\nnext phase: %s\n", next)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSONFlag, "json", false, "Emit status as JSON")
}
