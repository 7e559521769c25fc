// Package cmd defines the command-line interface for fromcvs.
package cmd

import (
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(setsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the index subcommands to the parent index command
	indexCmd.AddCommand(indexStatusCmd)
	indexCmd.AddCommand(indexClearCmd)
	indexCmd.AddCommand(indexExportCmd)
	indexCmd.AddCommand(indexMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("log-level", contract.DefaultLogLevel, "Log level: trace or debug or info or warn or error")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().IntP("limit", "l", contract.DefaultResultLimit, "Number of results to display (0 = all)")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().String("index-backend", string(schema.SQLiteBackend), "Index backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("index-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("rlog-path", "rlog", "Path to the rlog executable")
	rootCmd.PersistentFlags().String("co-path", "co", "Path to the co executable")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Flags shared by convert and sets
	for _, c := range []*cobra.Command{convertCmd, setsCmd} {
		c.Flags().String("author-map", "", "File mapping CVS logins to 'login = Full Name <email>'")
		c.Flags().String("ignore-branches", "", "Regular expression of branch names to skip")
		c.Flags().Bool("merge-symbols", false, "Merge every branch name tagged at a branch point into one branch")
		c.Flags().String("window", contract.DefaultWindow.String(), "Maximum time between revisions of one changeset")
		c.Flags().String("window-mode", string(schema.RunningMaxWindow), "Window measure: running-max or first")
		c.Flags().String("fallback-encoding", contract.DefaultFallbackEncoding, "Encoding of log messages that are not valid UTF-8")
	}

	// Bind all flags of convertCmd to Viper
	convertCmd.Flags().String("dest-kind", string(schema.FastImportDest), "Destination: git (fast-import) or gogit or index")
	convertCmd.Flags().String("trunk-name", contract.DefaultTrunkName, "Branch name used for the CVS trunk")
	convertCmd.Flags().String("expand-keywords", "yes", "Expand RCS keywords in file contents (yes/no)")
	convertCmd.Flags().String("git-path", "git", "Path to the git executable")
	if err := viper.BindPFlags(convertCmd.Flags()); err != nil {
		contract.LogFatal("Error binding convert flags", err)
	}

	// Bind all flags of setsCmd to Viper
	setsCmd.Flags().Bool("detail", false, "Print the member revisions of each changeset")
	if err := viper.BindPFlags(setsCmd.Flags()); err != nil {
		contract.LogFatal("Error binding sets flags", err)
	}

	// Bind all flags of showCmd to Viper
	showCmd.Flags().Bool("diff", false, "Print a unified diff of every member against its predecessor")
	if err := viper.BindPFlags(showCmd.Flags()); err != nil {
		contract.LogFatal("Error binding show flags", err)
	}

	// Bind all flags of indexMigrateCmd to Viper
	indexMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(indexMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding index migrate flags", err)
	}
}
