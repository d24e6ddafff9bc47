// Package commands implements the agent's CLI commands.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Pennsieve Agent - local proxy and upload service",
	Long: `The Pennsieve Agent runs alongside a user's tools and bridges them to
the Pennsieve platform: a reverse HTTP proxy, a timeseries WebSocket
proxy backed by an on-disk page cache, and a file-upload service backed
by a SQLite work queue streaming multipart uploads to object storage.

Use "agent [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
// Called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (if unset, no file is read and built-in defaults apply)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)

	configCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(configCmd)
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
