package cmd

import (
	"runtime"

	"github.com/spf13/cobra"
)

// versionCmd shows the verbose version for diagnostic purposes.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fromcvs.",
	Long: `Display version information including build details.

Shows the release version, the commit it was built from, the build
timestamp and the Go runtime version. Include it when reporting a
conversion problem.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("fromcvs CLI\n")
		cmd.Printf("  Version: %s\n", version)
		cmd.Printf("  Commit:  %s\n", commit)
		cmd.Printf("  Built:   %s\n", date)
		cmd.Printf("  Runtime: %s\n", runtime.Version())
	},
}
