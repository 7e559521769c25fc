package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/fatih/color"
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// All linker flags will be set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg will hold the validated, final configuration.
var cfg = &contract.Config{}

// input holds the raw, unvalidated configuration from all sources (file, env, flags).
// Viper will unmarshal into this struct.
var input = &contract.ConfigRawInput{}

// profile holds profiling configuration.
var profile = &contract.ProfileConfig{}

// startProfiling starts CPU profiling if enabled.
func startProfiling() error {
	if !profile.Enabled {
		return nil
	}
	cpuFile, err := os.Create(profile.Prefix + ".cpu.prof")
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		return fmt.Errorf("could not start CPU profiling: %w", err)
	}
	contract.Logger.Infof("Profiling enabled. CPU profile: %s.cpu.prof, Memory profile: %s.mem.prof", profile.Prefix, profile.Prefix)
	return nil
}

// stopProfiling stops profiling and writes the memory profile.
func stopProfiling() error {
	if !profile.Enabled {
		return nil
	}
	pprof.StopCPUProfile()

	memFile, err := os.Create(profile.Prefix + ".mem.prof")
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer func() { _ = memFile.Close() }()
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}
	return nil
}

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:   "fromcvs",
	Short: "Convert CVS history into atomic changesets.",
	Long: `fromcvs reads a CVS repository, reconstructs the atomic commits hidden in
its per-file revision history and replays them into git, an embedded git
store or a relational changeset index. Runs are incremental.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setConfigFile()

	viper.SetEnvPrefix("FROMCVS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("limit", contract.DefaultResultLimit)
	viper.SetDefault("output", string(schema.TextOut))
	viper.SetDefault("log-level", contract.DefaultLogLevel)
	viper.SetDefault("dest-kind", string(schema.FastImportDest))
	viper.SetDefault("index-backend", string(schema.SQLiteBackend))
	viper.SetDefault("index-db-connect", "")
	viper.SetDefault("window", contract.DefaultWindow.String())
	viper.SetDefault("window-mode", string(schema.RunningMaxWindow))
	viper.SetDefault("fallback-encoding", contract.DefaultFallbackEncoding)
	viper.SetDefault("trunk-name", contract.DefaultTrunkName)
	viper.SetDefault("expand-keywords", "yes")
	viper.SetDefault("color", "yes")
}

// setConfigFile points viper at --config or at .fromcvs.yaml in the
// current directory or $HOME.
func setConfigFile() {
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		return
	}
	viper.SetConfigName(".fromcvs")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")
}

// loadConfigFile reads the config file if one is present.
func loadConfigFile() error {
	setConfigFile()
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// sharedSetup unmarshals config, assigns positional arguments and runs validation.
// paths names the positional arguments in order: root, module, dest.
func sharedSetup(_ context.Context, args []string, paths ...*string) error {
	if err := contract.ProcessProfilingConfig(profile, viper.GetString("profile")); err != nil {
		return fmt.Errorf("failed to process profiling config: %w", err)
	}
	if profile.Enabled {
		if err := startProfiling(); err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
	}

	// 1. Read config file. This merges defaults, file, env, and flags.
	if err := loadConfigFile(); err != nil {
		return err
	}

	// 2. Unmarshal all resolved values from Viper into our raw input struct.
	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	// 3. Handle positional arguments (which Viper doesn't do).
	for i, arg := range args {
		if i < len(paths) {
			*paths[i] = arg
		}
	}

	// 4. Run all validation and complex parsing.
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}
	if err := contract.ConfigureLogger(cfg.LogLevel); err != nil {
		return err
	}
	if !cfg.UseColors {
		color.NoColor = true
	}
	return nil
}

// sourceSetup prepares commands that take <cvsroot> <module> [destination].
func sourceSetup(cmd *cobra.Command, args []string) error {
	// convert and sets share flag names; bind the ones of the running command.
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return sharedSetup(rootCtx, args, &input.SourceRootStr, &input.ModuleStr, &input.DestPathStr)
}

// plainSetup prepares commands without repository arguments.
func plainSetup(_ *cobra.Command, _ []string) error {
	return sharedSetup(rootCtx, nil)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// StopProfiling stops profiling if enabled.
func StopProfiling() error {
	return stopProfiling()
}
