package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
)

// Color variables for console output.
var (
	IgnoreColor = color.New(color.FgHiBlack)
	BranchColor = color.New(color.FgCyan)
	MergeColor  = color.New(color.FgMagenta, color.Bold)
	VendorColor = color.New(color.FgYellow)
	HeaderColor = color.New(color.Bold)
)

// Logger is the shared logger of the command line layer.
var Logger = logrus.New()

// GetColorAction returns a colored action label for console output (table).
func GetColorAction(a schema.Action) string {
	text := string(a)
	switch a {
	case schema.ActionIgnore:
		return IgnoreColor.Sprint(text)
	case schema.ActionBranch:
		return BranchColor.Sprint(text)
	case schema.ActionBranchMerge, schema.ActionVendorMerge:
		return MergeColor.Sprint(text)
	case schema.ActionVendor:
		return VendorColor.Sprint(text)
	default:
		return text
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. It returns os.Stdout when no path is given.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// ParseLogLevel maps a level name to a logrus level.
func ParseLogLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q (expected debug/info/warn/error)", level)
	}
}

// ConfigureLogger applies the level to the shared logger and writes diagnostics to stderr.
func ConfigureLogger(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(lvl)
	Logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
	})
	return nil
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	Logger.Errorf("Fatal %s: %v", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	Logger.Warnf("Warn %s: %v", msg, err)
}

// GetIndexDBFilePath returns the path to the default SQLite changeset index.
func GetIndexDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".fromcvs_index.db"
	}
	return filepath.Join(homeDir, ".fromcvs_index.db")
}

// TruncatePath shortens a path from the left to fit maxWidth runes.
func TruncatePath(path string, maxWidth int) string {
	runes := []rune(path)
	if len(runes) > maxWidth && maxWidth > 3 {
		return "..." + string(runes[len(runes)-maxWidth+3:])
	}
	return path
}

// ParseBoolString parses a string representation of a boolean value.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
