package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func createValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the snapshot chain for sequence gaps and mispointed parents",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			result, err := e.ValidateIntegrity()
			if err != nil {
				return err
			}
			if result.Valid {
				fmt.Println("snapshot chain is consistent")
				return nil
			}
			for _, issue := range result.Issues {
				fmt.Printf("%s: %s\n", issue.Kind, issue.Detail)
			}
			return fmt.Errorf("found %d integrity issue(s)", len(result.Issues))
		},
	}
}
