package contract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetColorAction(t *testing.T) {
	prev := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = prev }()

	tests := []struct {
		name    string
		action  schema.Action
		colored bool
	}{
		{"normal stays plain", schema.ActionNormal, false},
		{"ignore", schema.ActionIgnore, true},
		{"branch", schema.ActionBranch, true},
		{"branch merge", schema.ActionBranchMerge, true},
		{"vendor", schema.ActionVendor, true},
		{"vendor merge", schema.ActionVendorMerge, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetColorAction(tt.action)
			assert.Contains(t, result, string(tt.action))
			assert.Equal(t, tt.colored, result != string(tt.action))
		})
	}
}

func TestSelectOutputFile(t *testing.T) {
	t.Run("empty path returns stdout", func(t *testing.T) {
		file, err := SelectOutputFile("")
		require.NoError(t, err)
		assert.Equal(t, os.Stdout, file)
	})

	t.Run("valid path creates file", func(t *testing.T) {
		tempFile := filepath.Join(t.TempDir(), "sets.txt")

		file, err := SelectOutputFile(tempFile)
		require.NoError(t, err)
		assert.NotNil(t, file)
		_ = file.Close()

		_, err = os.Stat(tempFile)
		assert.NoError(t, err)
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input     string
		expected  logrus.Level
		expectErr bool
	}{
		{"", logrus.InfoLevel, false},
		{"debug", logrus.DebugLevel, false},
		{"INFO", logrus.InfoLevel, false},
		{"warning", logrus.WarnLevel, false},
		{"warn", logrus.WarnLevel, false},
		{"error", logrus.ErrorLevel, false},
		{"trace", logrus.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lvl, err := ParseLogLevel(tt.input)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, lvl)
		})
	}
}

func TestConfigureLogger(t *testing.T) {
	defer func() { _ = ConfigureLogger(DefaultLogLevel) }()

	require.NoError(t, ConfigureLogger("debug"))
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())

	assert.Error(t, ConfigureLogger("verbose"))
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel(), "invalid level leaves logger untouched")
}

func TestGetIndexDBFilePath(t *testing.T) {
	path := GetIndexDBFilePath()
	assert.NotEmpty(t, path)
	assert.Contains(t, path, ".fromcvs_index.db")

	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, homeDir), "path %s should start with home dir %s", path, homeDir)
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"yes", "TRUE", "1"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.True(t, v, s)
	}
	for _, s := range []string{"no", "False", "0"} {
		v, err := ParseBoolString(s)
		require.NoError(t, err)
		assert.False(t, v, s)
	}
	_, err := ParseBoolString("maybe")
	assert.Error(t, err)
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "src/main.c", TruncatePath("src/main.c", 20))
	assert.Equal(t, "...main.c", TruncatePath("src/lib/main.c", 9))
	assert.Equal(t, "src/main.c", TruncatePath("src/main.c", 3))
}
