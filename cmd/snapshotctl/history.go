package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dev.helix.snapshots/internal/engine"
)

func createHistoryCommand() *cobra.Command {
	var (
		limit        int
		toolFilter   string
		fileFilter   string
		includeDiffs bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded snapshots, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}

			page, err := e.GetEditHistory(engine.HistoryQuery{
				Limit:        limit,
				ToolFilter:   toolFilter,
				FileFilter:   fileFilter,
				IncludeDiffs: includeDiffs,
			})
			if err != nil {
				return err
			}

			for _, snap := range page.Items {
				fmt.Printf("%s  seq=%-4d  %-20s  %s\n", snap.ID, snap.SequenceNumber, snap.Tool, snap.Description)
				if includeDiffs && snap.Diff != "" {
					fmt.Println(snap.Diff)
				}
			}
			if page.HasMore {
				fmt.Println("... more snapshots available, raise --limit to see them")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of snapshots to show")
	cmd.Flags().StringVar(&toolFilter, "tool", "", "filter by tool name")
	cmd.Flags().StringVar(&fileFilter, "file", "", "filter by affected file")
	cmd.Flags().BoolVar(&includeDiffs, "diffs", false, "print each snapshot's diff text")

	return cmd
}
