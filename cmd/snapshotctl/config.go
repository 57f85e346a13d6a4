package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"dev.helix.snapshots/internal/engineconfig"
)

func createConfigCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the engine's effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := engineconfig.Load(configPath)
			if err != nil {
				return err
			}
			cfg.WorkspacePath = workspacePath

			switch format {
			case "yaml":
				return printYAML(cfg)
			case "json":
				return printJSON(cfg)
			default:
				return fmt.Errorf("config: unsupported format %q (want yaml or json)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml, json)")
	return cmd
}

func printYAML(data interface{}) error {
	output, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	fmt.Print(string(output))
	return nil
}

func printJSON(data interface{}) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
