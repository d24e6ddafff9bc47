package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pennsieve/agent/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agent version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "agent %s\n", version.Version)
		return nil
	},
}
