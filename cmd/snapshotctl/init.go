package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func createInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Bootstrap the snapshot store and initial checkpoint for a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			state := e.GetCurrentState()
			fmt.Printf("workspace %s ready (sequence=%d, last=%s)\n", e.GetWorkspacePath(), state.SequenceNumber, state.LastSnapshotID)
			return nil
		},
	}
}
