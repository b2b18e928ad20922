package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/refinery/internal/version"
)

// VersionCmd prints build version information.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("refinery %s (%s)\n", version.Version, version.Commit)
	},
}
