package contract

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seanfarley/fromcvs/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCVSRoot creates a repository root with one module directory.
func newCVSRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "CVSROOT"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proj", "src"), 0o755))
	return root
}

func TestProcessAndValidate(t *testing.T) {
	root := newCVSRoot(t)

	tests := []struct {
		name        string
		input       *ConfigRawInput
		expectError bool
		check       func(*testing.T, *Config)
	}{
		{
			name:  "defaults",
			input: &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", DestPathStr: "out.git"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultWindow, cfg.Window)
				assert.Equal(t, schema.RunningMaxWindow, cfg.WindowMode)
				assert.Equal(t, schema.FastImportDest, cfg.DestKind)
				assert.Equal(t, schema.SQLiteBackend, cfg.IndexBackend)
				assert.Equal(t, schema.TextOut, cfg.Output)
				assert.Equal(t, DefaultTrunkName, cfg.TrunkName)
				assert.Equal(t, DefaultFallbackEncoding, cfg.FallbackEncoding)
				assert.Equal(t, "rlog", cfg.RlogPath)
				assert.Equal(t, "co", cfg.CoPath)
				assert.Equal(t, "git", cfg.GitPath)
				assert.True(t, cfg.ExpandKeywords)
				assert.True(t, cfg.UseColors)
				assert.Nil(t, cfg.IgnoreBranches)
				assert.Equal(t, "proj", cfg.Module)
				assert.True(t, filepath.IsAbs(cfg.DestPath))
			},
		},
		{
			name: "custom window and mode",
			input: &ConfigRawInput{
				SourceRootStr: root, ModuleStr: "proj/src",
				Window: "5m", WindowMode: "FIRST",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5*time.Minute, cfg.Window)
				assert.Equal(t, schema.FirstRevWindow, cfg.WindowMode)
				assert.Equal(t, "proj/src", cfg.Module)
			},
		},
		{
			name:  "ignore branches compiled",
			input: &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", IgnoreBranches: "^(TMP|old)_"},
			check: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.IgnoreBranches)
				assert.True(t, cfg.IgnoreBranches.MatchString("TMP_work"))
				assert.False(t, cfg.IgnoreBranches.MatchString("RELENG_1"))
			},
		},
		{
			name:  "index destination keeps relative path",
			input: &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", DestPathStr: "idx.db", DestKind: "index"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, schema.IndexDest, cfg.DestKind)
				assert.Equal(t, "idx.db", cfg.DestPath)
			},
		},
		{
			name:        "bad window",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", Window: "soon"},
			expectError: true,
		},
		{
			name:        "negative window",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", Window: "-3m"},
			expectError: true,
		},
		{
			name:        "unknown window mode",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", WindowMode: "median"},
			expectError: true,
		},
		{
			name:        "bad ignore expression",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", IgnoreBranches: "(unclosed"},
			expectError: true,
		},
		{
			name:        "unknown destination",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", DestKind: "svn"},
			expectError: true,
		},
		{
			name:        "missing module",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "nope"},
			expectError: true,
		},
		{
			name:        "module escapes root",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "../elsewhere"},
			expectError: true,
		},
		{
			name:        "missing root",
			input:       &ConfigRawInput{SourceRootStr: filepath.Join(root, "missing"), ModuleStr: "proj"},
			expectError: true,
		},
		{
			name:        "negative limit",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", Limit: -1},
			expectError: true,
		},
		{
			name:        "parquet without output file",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", Output: "parquet"},
			expectError: true,
		},
		{
			name:        "invalid color",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", Color: "sometimes"},
			expectError: true,
		},
		{
			name:        "invalid log level",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", LogLevel: "loud"},
			expectError: true,
		},
		{
			name:        "mysql without connection string",
			input:       &ConfigRawInput{SourceRootStr: root, ModuleStr: "proj", IndexBackend: "mysql"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			err := ProcessAndValidate(cfg, tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidateDatabaseConnectionString(t *testing.T) {
	tests := []struct {
		name      string
		backend   schema.DatabaseBackend
		conn      string
		expectErr bool
	}{
		{"sqlite ignores connection", schema.SQLiteBackend, "", false},
		{"none ignores connection", schema.NoneBackend, "", false},
		{"mysql valid", schema.MySQLBackend, "user:pass@tcp(localhost:3306)/fromcvs", false},
		{"mysql missing tcp", schema.MySQLBackend, "user:pass@localhost/fromcvs", true},
		{"mysql missing database", schema.MySQLBackend, "user:pass@tcp(localhost:3306)", true},
		{"mysql empty", schema.MySQLBackend, "", true},
		{"postgres valid", schema.PostgreSQLBackend, "host=localhost port=5432 user=u password=p dbname=fromcvs", false},
		{"postgres missing host", schema.PostgreSQLBackend, "dbname=fromcvs", true},
		{"postgres missing dbname", schema.PostgreSQLBackend, "host=localhost", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDatabaseConnectionString(tt.backend, tt.conn)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProcessProfilingConfig(t *testing.T) {
	profile := &ProfileConfig{}
	require.NoError(t, ProcessProfilingConfig(profile, ""))
	assert.False(t, profile.Enabled)

	require.NoError(t, ProcessProfilingConfig(profile, "run1"))
	assert.True(t, profile.Enabled)
	assert.Equal(t, "run1", profile.Prefix)
}
