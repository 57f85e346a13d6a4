// Command snapshotctl is a thin operator CLI over the snapshot engine,
// exercising init, snapshot creation from a pre-built diff, history
// browsing, consolidation, reversal, and chain validation against a real
// workspace.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	rootCmd := createRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	workspacePath string
	configPath    string
)

func createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "snapshotctl",
		Short:   "Inspect and drive a workspace's snapshot history",
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().StringVarP(&workspacePath, "workspace", "w", ".", "workspace root")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "engine config file (yaml/json/toml)")

	viper.SetEnvPrefix("SNAPSHOTCTL")
	viper.AutomaticEnv()
	bindFlags(rootCmd.PersistentFlags())

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("workspace") {
			if v := viper.GetString("workspace"); v != "" {
				workspacePath = v
			}
		}
		if !cmd.Flags().Changed("config") {
			if v := viper.GetString("config"); v != "" {
				configPath = v
			}
		}
		return nil
	}

	rootCmd.AddCommand(createInitCommand())
	rootCmd.AddCommand(createSnapshotCommand())
	rootCmd.AddCommand(createHistoryCommand())
	rootCmd.AddCommand(createConsolidateCommand())
	rootCmd.AddCommand(createReverseCommand())
	rootCmd.AddCommand(createDiffCommand())
	rootCmd.AddCommand(createStateCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createValidateCommand())

	return rootCmd
}

// bindFlags wires every persistent flag to viper under its own name, so a
// SNAPSHOTCTL_-prefixed environment variable can override an unset flag.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})
}
