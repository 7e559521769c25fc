package cmd

import (
	"fmt"
	"os"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/internal/index"
	"github.com/seanfarley/fromcvs/internal/outwriter"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// indexSetup loads minimal configuration needed for index operations.
// This is used by commands that need index access without full shared setup.
func indexSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	// Get index-related config values
	backend := schema.DatabaseBackend(viper.GetString("index-backend"))
	if backend == "" {
		backend = schema.SQLiteBackend
	}
	connStr := viper.GetString("index-db-connect")

	// Basic validation for database backends
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	output := schema.OutputMode(viper.GetString("output"))
	if output == "" {
		output = schema.TextOut
	}

	cfg.IndexBackend = backend
	cfg.IndexDBConnect = connStr
	cfg.Output = output
	cfg.OutputFile = viper.GetString("output-file")
	return contract.ConfigureLogger(viper.GetString("log-level"))
}

// indexSetupWrapper wraps indexSetup to provide PreRunE for index commands.
func indexSetupWrapper(_ *cobra.Command, _ []string) error {
	return indexSetup()
}

// indexCmd focused on changeset index management.
//
// Note: Index subcommands use minimal initialization (indexSetup) instead of
// the full sharedSetup. This avoids repository validation for simple
// database operations.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the changeset index",
	Long: `Manage the changeset index written by 'fromcvs convert --dest-kind index'.

The index records every replayed changeset with its author, branch, date
and member revisions, so that 'fromcvs show' can find the changeset of any
file revision.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (disabled)

Subcommands:
  status  - Show index statistics
  export  - Export data to Parquet for analytics
  clear   - Remove the index
  migrate - Run database schema migrations

Examples:
  # Check index status
  fromcvs index status

  # Export for analysis in pandas/DuckDB
  fromcvs index export --output-file changesets`,
}

// indexStatusCmd shows index status.
var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display index statistics and connection details",
	Long: `Show detailed information about the changeset index.

Displays the backend type and connection status, the repository and modules
the index describes, the number of changesets with the dates of the oldest
and newest one, and the row count of every table.

Examples:
  # Check the default SQLite index
  fromcvs index status

  # Check a MySQL index
  fromcvs index status --index-backend mysql --index-db-connect "user:pass@tcp(localhost:3306)/fromcvs"`,
	PreRunE: indexSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := runIndexStatus(); err != nil {
			contract.LogFatal("Failed to get index status", err)
		}
	},
}

func runIndexStatus() error {
	store, err := index.Open(cfg.IndexBackend, indexConnString(cfg, ""), contract.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	status, err := store.GetStatus()
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteIndexStatus(status, cfg)
}

// indexClearCmd removes the index.
var indexClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the changeset index",
	Long: `Delete the changeset index.

For SQLite the index file is removed. For MySQL and PostgreSQL the index
tables are dropped. The next indexed conversion starts from scratch.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  # Export before clearing
  fromcvs index export --output-file backup
  fromcvs index clear`,
	PreRunE: indexSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := index.Clear(cfg.IndexBackend, indexConnString(cfg, ""), cfg.IndexDBConnect); err != nil {
			contract.LogFatal("Failed to clear index", err)
		}
		fmt.Println("Index cleared successfully.")
	},
}

// indexExportCmd exports the index to Parquet files.
var indexExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the index to Parquet for BI tools and analytics",
	Long: `Export the changeset index to Parquet files.

Writes three files next to each other:
  <output-file>.changesets.parquet  - one row per changeset
  <output-file>.revisions.parquet   - one row per member revision
  <output-file>.branches.parquet    - one row per branch

Requires: --output-file parameter

Examples:
  # Export all data
  fromcvs index export --output-file history

  # Query with DuckDB
  duckdb -c "SELECT author, count(*) FROM read_parquet('history.changesets.parquet') GROUP BY 1"`,
	PreRunE: indexSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := runIndexExport(); err != nil {
			contract.LogFatal("Failed to export index", err)
		}
	},
}

func runIndexExport() error {
	if cfg.OutputFile == "" {
		return fmt.Errorf("--output-file is required for export")
	}
	store, err := index.Open(cfg.IndexBackend, indexConnString(cfg, ""), contract.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.ExportParquet(cfg.OutputFile, os.Stdout)
}

// indexMigrateCmd runs database migrations for the index.
var indexMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions of the changeset index.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  # Migrate to latest version (default)
  fromcvs index migrate

  # Migrate to specific version
  fromcvs index migrate --target-version 1

  # Rollback to the initial state
  fromcvs index migrate --target-version 0`,
	PreRunE: indexSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		targetVersion := viper.GetInt("target-version")
		if err := index.Migrate(cfg.IndexBackend, indexConnString(cfg, ""), targetVersion, os.Stdout); err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
	},
}
