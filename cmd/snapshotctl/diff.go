package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func createDiffCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Inspect snapshot diffs",
	}
	cmd.AddCommand(createDiffShowCommand())
	return cmd
}

func createDiffShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Print a snapshot's stored diff text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			result, err := e.ReadSnapshotDiff(args[0])
			if err != nil {
				return err
			}
			if !result.OK {
				return fmt.Errorf("snapshot %s not found", args[0])
			}
			fmt.Println(result.Diff)
			return nil
		},
	}
}
