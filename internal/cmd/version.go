package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crossing/internal/wire"
)

// Version is set at build time with -ldflags "-X .../internal/cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the crossing version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "crossing %s (%s, wire %s)\n", Version, runtime.Version(), wire.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
