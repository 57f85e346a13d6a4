package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dev.helix.snapshots/internal/engine"
	"dev.helix.snapshots/internal/fsruntime"
)

func createReverseCommand() *cobra.Command {
	var (
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "reverse <snapshot-id>",
		Short: "Apply a snapshot's reverse diff and record the reversal as a new snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}

			rt := fsruntime.New()
			result, err := e.ReverseOp(args[0], engine.ReverseOptions{DryRun: dryRun, Force: force}, rt)
			if err != nil {
				return err
			}

			if dryRun {
				fmt.Println(result.ReverseDiff)
				return nil
			}
			fmt.Printf("reversed as %s, affected: %v\n", result.SnapshotID, result.AffectedFiles)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the reverse diff without applying it")
	cmd.Flags().BoolVar(&force, "force", false, "continue even if applying the reverse diff reports a failure")

	return cmd
}
