package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func createStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the engine's current chain position and cache stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			state := e.GetCurrentState()
			stats := e.GetCacheStats()
			fmt.Printf("last snapshot: %s\n", state.LastSnapshotID)
			fmt.Printf("sequence number: %d\n", state.SequenceNumber)
			fmt.Printf("known files: %d\n", len(state.KnownFileHashes))
			fmt.Printf("snapshots indexed: %d\n", stats.SnapshotCount)
			return nil
		},
	}
}
