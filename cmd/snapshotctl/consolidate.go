package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dev.helix.snapshots/internal/engine"
)

func createConsolidateCommand() *cobra.Command {
	var (
		ids             []string
		seqStart        int
		seqEnd          int
		title           string
		description     string
		deleteOriginals bool
	)

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge a contiguous range of snapshots into one",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ConsolidateOptions{
				IDs:             ids,
				Title:           title,
				Description:     description,
				DeleteOriginals: deleteOriginals,
			}
			if len(ids) == 0 {
				opts.SequenceRange = &[2]int{seqStart, seqEnd}
			}

			e, err := openEngine()
			if err != nil {
				return err
			}

			result, err := e.ConsolidateSnapshots(opts)
			if err != nil {
				return err
			}

			fmt.Printf("consolidated into %s (sequence %d-%d)\n", result.ConsolidatedID, result.SequenceRange[0], result.SequenceRange[1])
			if len(result.DeletedOriginals) > 0 {
				if deleteOriginals {
					fmt.Printf("removed %d original snapshot(s) from the index and disk\n", len(result.DeletedOriginals))
				} else {
					fmt.Printf("removed %d original snapshot(s) from the index (pass --delete-originals to also remove their files)\n", len(result.DeletedOriginals))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "explicit snapshot ids to merge")
	cmd.Flags().IntVar(&seqStart, "from", 0, "start of the sequence range to merge (ignored if --ids is set)")
	cmd.Flags().IntVar(&seqEnd, "to", 0, "end of the sequence range to merge (ignored if --ids is set)")
	cmd.Flags().StringVar(&title, "title", "", "title recorded on the consolidated snapshot")
	cmd.Flags().StringVar(&description, "description", "", "description recorded on the consolidated snapshot")
	cmd.Flags().BoolVar(&deleteOriginals, "delete-originals", false, "also delete the merged snapshots' files from disk (they always leave the index)")

	return cmd
}
