// Package cmd provides the command-line interface for ddesim.
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// NewRootCmd creates the base command when called without any subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "ddesim",
		Short: "ddesim runs distributed discrete-event models with " +
			"blocking receivers.",
		Long: `ddesim runs distributed discrete-event models in which every ` +
			`actor has its own goroutine and a director resolves deadlocks. ` +
			`Runs are recorded into an SQLite database and can be monitored ` +
			`over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			levelName, _ := cmd.Flags().GetString("log-level")

			level, err := logrus.ParseLevel(levelName)
			if err != nil {
				return err
			}

			logrus.SetLevel(level)

			return nil
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info",
		"Logging level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newInspectCmd())

	return rootCmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
