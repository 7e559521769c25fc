package outwriter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

var baseDate = time.Date(2004, 3, 1, 12, 0, 0, 0, time.UTC)

func testSets() []*schema.Changeset {
	trunk := schema.NewChangeset([]*schema.RevisionRecord{
		{File: "src/a.c", Rev: "1.2", Next: "1.1", Date: baseDate, Author: "alice", State: schema.StateNormal,
			Classification: schema.Classification{Action: schema.ActionNormal}},
		{File: "src/b.c", Rev: "1.1", Date: baseDate.Add(time.Minute), Author: "alice", State: schema.StateNormal,
			Classification: schema.Classification{Action: schema.ActionNormal}},
	})
	branch := schema.NewChangeset([]*schema.RevisionRecord{
		{File: "src/a.c", Rev: "1.2.2.1", Date: baseDate.Add(time.Hour), Author: "bob", State: schema.StateDead,
			Classification: schema.Classification{Action: schema.ActionIgnore, Link: "1.2"}},
	})
	branch.Branch = "RELENG_1"
	return []*schema.Changeset{trunk, branch}
}

func TestWriteSetsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSetsCSV(&buf, testSets(), true))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + 2 rows
	assert.Equal(t, []string{"index", "date", "author", "branch", "files", "ignore", "log_digest", "members"}, records[0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "2004-03-01T12:01:00Z", records[1][1])
	assert.Equal(t, "alice", records[1][2])
	assert.Equal(t, "2", records[1][4])
	assert.Equal(t, "false", records[1][5])
	assert.Equal(t, "src/a.c:1.2|src/b.c:1.1", records[1][7])
	assert.Equal(t, "RELENG_1", records[2][3])
	assert.Equal(t, "true", records[2][5])
}

func TestWriteSetsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSetsJSON(&buf, testSets(), true))

	var result []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result, 2)
	assert.Equal(t, float64(1), result[0]["index"])
	assert.Equal(t, "alice", result[0]["author"])
	assert.Equal(t, "2004-03-01T12:00:00Z", result[0]["first_date"])

	members := result[1]["members"].([]any)
	require.Len(t, members, 1)
	member := members[0].(map[string]any)
	assert.Equal(t, "1.2", member["next_revision"])
	assert.Equal(t, "ignore", member["action"])
	assert.Equal(t, true, member["dead"])

	buf.Reset()
	require.NoError(t, writeSetsJSON(&buf, testSets(), false))
	assert.NotContains(t, buf.String(), "members")
}

func TestWriteSetsTable(t *testing.T) {
	cfg := &contract.Config{Detail: true, Width: 160}
	var buf bytes.Buffer
	require.NoError(t, writeSetsTable(&buf, testSets(), schema.ScanStats{Files: 2, Directories: 1}, cfg, time.Second))

	out := buf.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "(trunk)")
	assert.Contains(t, out, "RELENG_1")
	assert.Contains(t, out, "src/a.c:1.2.2.1 ignore")
	assert.Contains(t, out, "Showing 2 changesets (3 revisions; scanned 2 files in 1 directories, 0 warnings)")
}

func TestWriteSetResults_LimitAndFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sets.json")
	cfg := &contract.Config{Output: schema.JSONOut, OutputFile: out, ResultLimit: 1}
	require.NoError(t, WriteSetResults(testSets(), schema.ScanStats{}, cfg, 0))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var result []map[string]any
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result, 1)
}

func TestWriteSetResults_Parquet(t *testing.T) {
	dir := t.TempDir()
	cfg := &contract.Config{Output: schema.ParquetOut, OutputFile: filepath.Join(dir, "sets.parquet"), Detail: true}
	require.NoError(t, WriteSetResults(testSets(), schema.ScanStats{}, cfg, 0))
	assert.FileExists(t, filepath.Join(dir, "sets.parquet"))
	assert.FileExists(t, filepath.Join(dir, "sets.members.parquet"))
}

func testView() *schema.ChangesetView {
	return &schema.ChangesetView{
		Changeset: schema.ChangesetRecord{
			ID: 7, Author: "alice", Date: baseDate,
			Members: []schema.RevisionMember{
				{Path: "src/a.c", Revision: "1.2", NextRevision: "1.1"},
				{Path: "src/new.c", Revision: "1.1"},
			},
		},
		Log: "Fix the frobnicator.\n",
		Texts: []schema.MemberText{
			{Path: "src/a.c", From: "1.1", To: "1.2", Old: []byte("one\ntwo\n"), New: []byte("one\nthree\n")},
			{Path: "src/new.c", To: "1.1", New: []byte("fresh\n")},
		},
	}
}

func TestWriteChangesetText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeChangesetText(&buf, testView()))

	want := `Changeset by alice on (trunk) at 2004-03-01T12:00:00Z

Fix the frobnicator.

[ src/a.c:1.2 src/new.c:1.1 ]

--- src/a.c:1.1
+++ src/a.c:1.2
@@ -1,2 +1,2 @@
 one
-two
+three

--- /dev/null
+++ src/new.c:1.1
@@ -0,0 +1 @@
+fresh
`
	assert.Equal(t, want, buf.String())
}

func TestUnifiedDiff_Removed(t *testing.T) {
	diff, err := unifiedDiff(schema.MemberText{Path: "gone.c", From: "1.3", To: "1.4", Old: []byte("bye\n")})
	require.NoError(t, err)
	assert.Contains(t, diff, "+++ /dev/null")
	assert.Contains(t, diff, "-bye")

	diff, err = unifiedDiff(schema.MemberText{Path: "same.c", From: "1.1", To: "1.2", Old: []byte("x\n"), New: []byte("x\n")})
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestWriteChangesetJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeChangesetJSON(&buf, testView()))

	var result map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, float64(7), result["id"])
	assert.Equal(t, "Fix the frobnicator.\n", result["log"])
	diffs := result["diffs"].([]any)
	require.Len(t, diffs, 2)
	assert.Contains(t, diffs[0].(map[string]any)["diff"], "+three")
}

func TestWriteChangesetView_UnsupportedOutput(t *testing.T) {
	err := WriteChangesetView(testView(), &contract.Config{Output: schema.CSVOut})
	assert.Error(t, err)
}

func TestWriteIndexStatusText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeIndexStatusText(&buf, schema.IndexStatus{Backend: "none"}))
	assert.Equal(t, "Index Backend: none\nConnected: false\n", buf.String())

	buf.Reset()
	require.NoError(t, writeIndexStatusText(&buf, schema.IndexStatus{
		Backend:         "sqlite",
		Connected:       true,
		Database:        "/tmp/index.db",
		SourceRoot:      "/cvs",
		Modules:         []string{"proj"},
		TotalChangesets: 2,
		OldestChangeset: baseDate,
		LastChangeset:   baseDate.Add(time.Hour),
		TableSizes:      map[string]int64{"revision": 3, "changeset": 2},
	}))
	out := buf.String()
	assert.Contains(t, out, "Database: /tmp/index.db\n")
	assert.Contains(t, out, "Last Changeset: 2004-03-01 13:00:00\n")
	assert.True(t, strings.Index(out, "changeset: 2 rows") < strings.Index(out, "revision: 3 rows"))
}

func TestWriteSummaryText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeSummaryText(&buf, &schema.ConversionSummary{
		Watermark: baseDate,
		Scan:      schema.ScanStats{Files: 10, Skipped: 4, Revisions: 25, Warnings: 1},
		Replay:    schema.ReplayStats{Changesets: 9, Ignored: 1, Commits: 8, Merges: 2, ForwardMerges: 1, BranchesCreated: 3},
		Duration:  1500 * time.Millisecond,
	}))
	out := buf.String()
	assert.Contains(t, out, "Continued after 2004-03-01 12:00:00\n")
	assert.Contains(t, out, "Files scanned:     10 (4 unchanged)\n")
	assert.Contains(t, out, "Merges:            2 (1 forwarded)\n")
	assert.Contains(t, out, "Completed in 1.5s\n")

	summary := summaryJSON(&schema.ConversionSummary{})
	assert.Nil(t, summary.Watermark)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(nil))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines([]byte("a\nb\n")))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines([]byte("a\nb")))
}
