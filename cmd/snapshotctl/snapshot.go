package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dev.helix.snapshots/internal/diffs"
	"dev.helix.snapshots/internal/engine"
)

func createSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage individual snapshots",
	}
	cmd.AddCommand(createSnapshotCreateCommand())
	return cmd
}

func createSnapshotCreateCommand() *cobra.Command {
	var (
		tool        string
		description string
		files       string
		diffFile    string
		sessionID   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a new snapshot from an already-computed unified diff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if diffFile == "" {
				return fmt.Errorf("--diff-file is required")
			}
			diffBytes, err := os.ReadFile(diffFile)
			if err != nil {
				return fmt.Errorf("reading diff file: %w", err)
			}
			diffText := string(diffBytes)

			affected := splitCSV(files)
			if len(affected) == 0 {
				fds, err := diffs.ParseDetailed(diffText)
				if err == nil {
					for _, fd := range fds {
						affected = append(affected, diffs.ExtractFilePath(fd))
					}
				}
			}

			linesChanged := 0
			if fds, err := diffs.ParseDetailed(diffText); err == nil {
				for _, fd := range fds {
					added, deleted := diffs.CountChanges(fd)
					linesChanged += added + deleted
				}
			}

			e, err := openEngine()
			if err != nil {
				return err
			}

			id, err := e.CreateSnapshot(engine.CreateSnapshotOp{
				Tool:          tool,
				Description:   description,
				AffectedFiles: affected,
				Diff:          diffText,
				Context:       engine.OpContext{SessionID: sessionID},
				Metadata:      engine.OpMetadata{LinesChanged: linesChanged},
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "manual", "tool name recorded against the snapshot")
	cmd.Flags().StringVar(&description, "description", "", "human-readable description")
	cmd.Flags().StringVar(&files, "files", "", "comma-separated list of affected files (defaults to the diff's own file list)")
	cmd.Flags().StringVar(&diffFile, "diff-file", "", "path to a unified diff to record")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "caller session identifier")

	return cmd
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
