package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/seanfarley/fromcvs/schema"
)

// Default values for configuration.
const (
	DefaultWindow           = 180 * time.Second
	DefaultFallbackEncoding = "ISO-8859-1"
	DefaultTrunkName        = "master"
	DefaultResultLimit      = 0 // no limit
	DefaultLogLevel         = "info"
)

// DateTimeFormat is the default date time representation.
var DateTimeFormat = time.RFC3339

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for a conversion.
// This struct remains the "final, validated" config.
type Config struct {
	SourceRoot string // absolute path of the CVS repository root
	Module     string // module directory below SourceRoot
	DestPath   string // destination repository, or index location

	DestKind       schema.DestinationKind
	IndexBackend   schema.DatabaseBackend
	IndexDBConnect string // Please use env var as this is plaintext

	AuthorMapFile    string
	IgnoreBranches   *regexp.Regexp
	MergeSymbols     bool
	Window           time.Duration
	WindowMode       schema.WindowMode
	FallbackEncoding string
	TrunkName        string
	ExpandKeywords   bool

	RlogPath string
	CoPath   string
	GitPath  string

	LogLevel string

	Output      schema.OutputMode
	OutputFile  string
	ResultLimit int
	Detail      bool
	Diff        bool
	Width       int // Terminal width override (0 = auto-detect)
	UseColors   bool
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// These are set manually from positional args, so no tag
	SourceRootStr string
	ModuleStr     string
	DestPathStr   string

	// --- Fields from rootCmd.PersistentFlags() ---
	LogLevel       string `mapstructure:"log-level"`
	IndexBackend   string `mapstructure:"index-backend"`
	IndexDBConnect string `mapstructure:"index-db-connect"`
	Output         string `mapstructure:"output"`
	OutputFile     string `mapstructure:"output-file"`
	Width          int    `mapstructure:"width"`
	Color          string `mapstructure:"color"`
	Limit          int    `mapstructure:"limit"`
	RlogPath       string `mapstructure:"rlog-path"`
	CoPath         string `mapstructure:"co-path"`

	// --- Fields shared by convert and sets ---
	AuthorMap        string `mapstructure:"author-map"`
	IgnoreBranches   string `mapstructure:"ignore-branches"`
	MergeSymbols     bool   `mapstructure:"merge-symbols"`
	Window           string `mapstructure:"window"`
	WindowMode       string `mapstructure:"window-mode"`
	FallbackEncoding string `mapstructure:"fallback-encoding"`

	// --- Fields from convertCmd.Flags() ---
	DestKind       string `mapstructure:"dest-kind"`
	TrunkName      string `mapstructure:"trunk-name"`
	ExpandKeywords string `mapstructure:"expand-keywords"`
	GitPath        string `mapstructure:"git-path"`

	// --- Fields from setsCmd.Flags() and showCmd.Flags() ---
	Detail bool `mapstructure:"detail"`
	Diff   bool `mapstructure:"diff"`
}

// ProcessAndValidate performs all complex parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := validateBackendConfig(cfg, input); err != nil {
		return err
	}
	if err := processAggregation(cfg, input); err != nil {
		return err
	}
	if err := processBranchFilter(cfg, input); err != nil {
		return err
	}
	if err := resolveSourcePaths(cfg, input); err != nil {
		return err
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("index-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("index-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateSimpleInputs processes and validates all non-path related fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	// --- 0. Transfer simple non-validated fields from input -> cfg ---
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.Detail = input.Detail
	cfg.Diff = input.Diff
	cfg.AuthorMapFile = input.AuthorMap
	cfg.MergeSymbols = input.MergeSymbols

	colors, err := ParseBoolString(defaultString(input.Color, "yes"))
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	expand, err := ParseBoolString(defaultString(input.ExpandKeywords, "yes"))
	if err != nil {
		return fmt.Errorf("invalid --expand-keywords value: %w", err)
	}
	cfg.ExpandKeywords = expand

	// --- 1. Limit Validation ---
	if input.Limit < 0 {
		return fmt.Errorf("limit cannot be negative (received %d)", input.Limit)
	}
	cfg.ResultLimit = input.Limit

	// --- 2. Output Validation ---
	cfg.Output = schema.OutputMode(strings.ToLower(defaultString(input.Output, string(schema.TextOut))))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}
	if cfg.Output == schema.ParquetOut && cfg.OutputFile == "" {
		return fmt.Errorf("--output-file is required for parquet output")
	}

	// --- 3. Log level ---
	cfg.LogLevel = strings.ToLower(defaultString(input.LogLevel, DefaultLogLevel))
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	// --- 4. Tool paths ---
	cfg.RlogPath = defaultString(input.RlogPath, "rlog")
	cfg.CoPath = defaultString(input.CoPath, "co")
	cfg.GitPath = defaultString(input.GitPath, "git")
	cfg.TrunkName = defaultString(input.TrunkName, DefaultTrunkName)
	cfg.FallbackEncoding = defaultString(input.FallbackEncoding, DefaultFallbackEncoding)

	return nil
}

// validateBackendConfig validates destination kind and index backend configuration.
func validateBackendConfig(cfg *Config, input *ConfigRawInput) error {
	cfg.DestKind = schema.DestinationKind(strings.ToLower(defaultString(input.DestKind, string(schema.FastImportDest))))
	if _, ok := schema.ValidDestinationKinds[cfg.DestKind]; !ok {
		return fmt.Errorf("invalid destination kind '%s'. must be git, gogit, index", input.DestKind)
	}

	cfg.IndexBackend = schema.DatabaseBackend(strings.ToLower(defaultString(input.IndexBackend, string(schema.SQLiteBackend))))
	if _, ok := schema.ValidDatabaseBackends[cfg.IndexBackend]; !ok {
		return fmt.Errorf("invalid index backend '%s'. must be sqlite, mysql, postgresql, none", input.IndexBackend)
	}
	cfg.IndexDBConnect = input.IndexDBConnect
	return ValidateDatabaseConnectionString(cfg.IndexBackend, cfg.IndexDBConnect)
}

// processAggregation parses the changeset window settings.
func processAggregation(cfg *Config, input *ConfigRawInput) error {
	cfg.Window = DefaultWindow
	if input.Window != "" {
		d, err := time.ParseDuration(input.Window)
		if err != nil {
			return fmt.Errorf("invalid --window value %q: %w", input.Window, err)
		}
		if d <= 0 {
			return fmt.Errorf("window must be positive (received %s)", d)
		}
		cfg.Window = d
	}

	cfg.WindowMode = schema.WindowMode(strings.ToLower(defaultString(input.WindowMode, string(schema.RunningMaxWindow))))
	if _, ok := schema.ValidWindowModes[cfg.WindowMode]; !ok {
		return fmt.Errorf("invalid window mode '%s'. must be running-max, first", input.WindowMode)
	}
	return nil
}

// processBranchFilter compiles the ignore-branches expression.
func processBranchFilter(cfg *Config, input *ConfigRawInput) error {
	cfg.IgnoreBranches = nil
	if input.IgnoreBranches == "" {
		return nil
	}
	re, err := regexp.Compile(input.IgnoreBranches)
	if err != nil {
		return fmt.Errorf("invalid --ignore-branches expression: %w", err)
	}
	cfg.IgnoreBranches = re
	return nil
}

// resolveSourcePaths resolves the positional arguments.
func resolveSourcePaths(cfg *Config, input *ConfigRawInput) error {
	cfg.Module = filepath.ToSlash(filepath.Clean(defaultString(input.ModuleStr, ".")))
	if strings.HasPrefix(cfg.Module, "../") || filepath.IsAbs(cfg.Module) {
		return fmt.Errorf("module %q must be relative to the repository root", input.ModuleStr)
	}

	if input.SourceRootStr != "" {
		root, err := filepath.Abs(input.SourceRootStr)
		if err != nil {
			return err
		}
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("cannot access repository root: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("repository root %q is not a directory", root)
		}
		cfg.SourceRoot = filepath.Clean(root)

		modDir := filepath.Join(cfg.SourceRoot, filepath.FromSlash(cfg.Module))
		if info, err := os.Stat(modDir); err != nil || !info.IsDir() {
			return fmt.Errorf("module %q not found below %s", cfg.Module, cfg.SourceRoot)
		}
	}

	cfg.DestPath = input.DestPathStr
	if cfg.DestPath != "" && cfg.DestKind != schema.IndexDest {
		abs, err := filepath.Abs(cfg.DestPath)
		if err != nil {
			return err
		}
		cfg.DestPath = abs
	}
	return nil
}

// ProcessProfilingConfig enables profiling when a prefix is supplied.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}

func defaultString(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
