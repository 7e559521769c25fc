package cmd

import (
	"testing"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/internal/index"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexConnString(t *testing.T) {
	sqlite := &contract.Config{IndexBackend: schema.SQLiteBackend}
	assert.Equal(t, contract.GetIndexDBFilePath(), indexConnString(sqlite, ""))
	assert.Equal(t, "/tmp/x.db", indexConnString(sqlite, "/tmp/x.db"))

	sqlite.IndexDBConnect = "/tmp/configured.db"
	assert.Equal(t, "/tmp/configured.db", indexConnString(sqlite, ""))

	mysql := &contract.Config{IndexBackend: schema.MySQLBackend, IndexDBConnect: "u:p@tcp(h:3306)/db"}
	assert.Equal(t, "u:p@tcp(h:3306)/db", indexConnString(mysql, "ignored.db"))
}

func TestRecordSource(t *testing.T) {
	store, err := index.Open(schema.SQLiteBackend, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, recordSource(store, &contract.Config{SourceRoot: "/cvs", Module: "src"}))
	require.NoError(t, recordSource(store, &contract.Config{SourceRoot: "/cvs", Module: "doc"}))
	require.NoError(t, recordSource(store, &contract.Config{SourceRoot: "/cvs", Module: "src"}))

	modules, err := store.Modules()
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "doc"}, modules)

	err = recordSource(store, &contract.Config{SourceRoot: "/other", Module: "src"})
	assert.ErrorIs(t, err, contract.ErrDestination)
}

func TestOpenDestination_Errors(t *testing.T) {
	_, _, err := openDestination(&contract.Config{DestKind: schema.FastImportDest})
	assert.ErrorIs(t, err, contract.ErrDestination)

	_, _, err = openDestination(&contract.Config{DestKind: schema.GoGitDest})
	assert.ErrorIs(t, err, contract.ErrDestination)

	_, _, err = openDestination(&contract.Config{DestKind: schema.IndexDest, IndexBackend: schema.NoneBackend})
	assert.ErrorIs(t, err, contract.ErrDestination)
}

func TestOpenDestination_Index(t *testing.T) {
	cfg := &contract.Config{
		DestKind:     schema.IndexDest,
		IndexBackend: schema.SQLiteBackend,
		DestPath:     t.TempDir() + "/index.db",
		SourceRoot:   "/cvs",
		Module:       "src",
	}
	dest, release, err := openDestination(cfg)
	require.NoError(t, err)
	assert.IsType(t, &index.Store{}, dest)
	require.NoError(t, release())
}
