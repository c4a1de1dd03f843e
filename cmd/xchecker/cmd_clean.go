package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	cleanHardFlag  bool
	cleanForceFlag bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean <id>",
	Short: "Remove a spec's lock (and optionally its entire state) on disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specID := args[0]
		root := specRootFor(specID)

		lockPath := filepath.Join(root, ".lock")
		if _, err := os.Stat(lockPath); err == nil {
			if !cleanForceFlag {
				return fmt.Errorf("%s is locked; pass --force to remove the lock file", specID)
			}
			if err := os.Remove(lockPath); err != nil {
				return fmt.Errorf("removing lock: %w", err)
			}
			fmt.Fprintf(os.Stdout, "removed lock: %s\n", lockPath)
		}

		if cleanHardFlag {
			if err := os.RemoveAll(root); err != nil {
				return fmt.Errorf("removing spec state: %w", err)
			}
			fmt.Fprintf(os.Stdout, "removed spec state: %s\n", root)
		}
		return nil
	},
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanHardFlag, "hard", false, "Also delete the spec's receipts and artifacts")
	cleanCmd.Flags().BoolVar(&cleanForceFlag, "force", false, "Remove a live-looking lock without checking staleness")
}
