package core

import (
	"sort"
	"testing"
	"time"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// classifyAll classifies histories keyed by file path.
func classifyAll(t *testing.T, files map[string]*schema.FileHistory) map[string]*FileClassification {
	t.Helper()
	c, _ := newTestClassifier(nil)
	out := make(map[string]*FileClassification, len(files))
	for path, h := range files {
		out[path] = c.Classify(path, h)
	}
	return out
}

// newTestTopology registers the files in path order and builds the topology.
func newTestTopology(t *testing.T, dest contract.Destination, merge bool, watermark time.Time, fcs map[string]*FileClassification) (*Topology, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	topo := NewTopology(dest, merge, watermark, logger)
	for _, path := range sortedPaths(fcs) {
		topo.Register(fcs[path])
	}
	require.NoError(t, topo.Build())
	return topo, hook
}

func sortedPaths(fcs map[string]*FileClassification) []string {
	paths := make([]string, 0, len(fcs))
	for p := range fcs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func isFixup(req schema.CommitRequest) bool {
	return req.Author == schema.FixupAuthor
}

func TestTopology_ResolveAliases(t *testing.T) {
	files := map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"RELENG_1": "1.2.0.2", "RELENG_1_ALIAS": "1.2.0.2"},
			raw("1.2", 100, "1.1"), raw("1.1", 0, "")),
	}

	merged, _ := newTestTopology(t, nil, true, time.Time{}, classifyAll(t, files))
	assert.Equal(t, "RELENG_1", merged.Resolve("RELENG_1_ALIAS"))
	assert.Equal(t, "RELENG_1", merged.Resolve("RELENG_1"))
	assert.Equal(t, "UNKNOWN", merged.Resolve("UNKNOWN"))
	assert.Len(t, merged.Branches(), 1)

	separate, _ := newTestTopology(t, nil, false, time.Time{}, classifyAll(t, files))
	assert.Equal(t, "RELENG_1_ALIAS", separate.Resolve("RELENG_1_ALIAS"))
	assert.Len(t, separate.Branches(), 2)
}

func TestTopology_DryRunStartsInHoldoff(t *testing.T) {
	files := map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"B": "1.2.0.2"},
			raw("1.2", 100, "1.1"), raw("1.1", 0, "")),
	}
	topo, _ := newTestTopology(t, nil, false, time.Time{}, classifyAll(t, files))
	assert.Equal(t, schema.Holdoff, topo.State("B"))
	assert.Equal(t, 1, topo.Owed("B"))
	assert.Equal(t, schema.Branched, topo.State(schema.TrunkBranch))
}

func TestTopology_EnsureCreatedParentsFirst(t *testing.T) {
	files := map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"OUTER": "1.2.0.2", "INNER": "1.2.2.1.0.2"},
			raw("1.2", 100, "1.1", "1.2.2.1"),
			raw("1.1", 0, ""),
			raw("1.2.2.1", 200, "", "1.2.2.1.2.1"),
			raw("1.2.2.1.2.1", 300, "")),
	}
	dest := new(contract.MockDestination)
	dest.On("FileList", schema.TrunkBranch).Return([]string{}, nil)
	dest.On("HasBranch", mock.Anything).Return(false)

	var order []string
	dest.On("CreateBranch", "OUTER", "", false, at(300)).Run(func(mock.Arguments) { order = append(order, "OUTER") }).Return(nil).Once()
	dest.On("CreateBranch", "INNER", "OUTER", false, at(300)).Run(func(mock.Arguments) { order = append(order, "INNER") }).Return(nil).Once()

	topo, _ := newTestTopology(t, dest, false, time.Time{}, classifyAll(t, files))
	require.NoError(t, topo.EnsureCreated("INNER", at(300)))

	assert.Equal(t, []string{"OUTER", "INNER"}, order)
	assert.Equal(t, schema.Merging, topo.State("OUTER"))
	assert.Equal(t, schema.Merging, topo.State("INNER"))
	assert.Equal(t, 2, topo.Created())

	// Already created branches are left alone.
	require.NoError(t, topo.EnsureCreated("INNER", at(400)))
	dest.AssertExpectations(t)
}

func TestTopology_CreationRemovesFilesNotCarried(t *testing.T) {
	watermark := at(1000)
	files := map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"B": "1.2.0.2"},
			raw("1.2", 100, "1.1"), raw("1.1", 0, "")),
		"b.c": history("1.1", nil, raw("1.1", 0, "")),
	}
	dest := new(contract.MockDestination)
	dest.On("FileList", schema.TrunkBranch).Return([]string{"a.c", "b.c"}, nil)
	dest.On("HasBranch", "B").Return(false)
	dest.On("CreateBranch", "B", "", false, at(2000)).Return(nil).Once()
	dest.On("SelectBranch", "B").Return(nil).Once()
	dest.On("Remove", "b.c", (*schema.RevisionRecord)(nil)).Return(nil).Once()
	dest.On("Commit", mock.MatchedBy(isFixup)).Return("fixup-1", nil).Once()

	topo, _ := newTestTopology(t, dest, false, watermark, classifyAll(t, files))
	assert.Equal(t, 0, topo.Owed("B"))

	require.NoError(t, topo.EnsureCreated("B", at(2000)))
	assert.Equal(t, schema.Branched, topo.State("B"))
	assert.Equal(t, []string{"a.c"}, topo.Files("B"))
	dest.AssertExpectations(t)
}

func TestTopology_ForwardMergeWhileMerging(t *testing.T) {
	fcs := classifyAll(t, map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"B": "1.2.0.2"},
			raw("1.2", 200, "1.1"), raw("1.1", 0, "")),
		"b.c": history("1.1", map[string]string{"B": "1.1.0.2"},
			raw("1.1", 0, "", "1.1.2.1"), raw("1.1.2.1", 100, "")),
	})
	a11, a12 := fcs["a.c"].ByRev["1.1"], fcs["a.c"].ByRev["1.2"]
	b11, b1121 := fcs["b.c"].ByRev["1.1"], fcs["b.c"].ByRev["1.1.2.1"]

	dest := new(contract.MockDestination)
	dest.On("FileList", schema.TrunkBranch).Return([]string{}, nil)
	dest.On("HasBranch", "B").Return(false)
	dest.On("CreateBranch", "B", "", false, at(100)).Return(nil).Once()
	dest.On("SelectBranch", "B").Return(nil).Once()
	dest.On("Remove", "a.c", (*schema.RevisionRecord)(nil)).Return(nil).Once()
	dest.On("Commit", mock.MatchedBy(isFixup)).Return("fixup-1", nil).Once()

	topo, _ := newTestTopology(t, dest, false, time.Time{}, fcs)
	assert.Equal(t, 2, topo.Owed("B"))

	// 1. The initial mainline commit delivers b.c@1.1 while B is held off.
	trunk := []*schema.RevisionRecord{a11, b11}
	require.NoError(t, topo.Prepare(schema.TrunkBranch, trunk, at(0)))
	assert.Empty(t, topo.NoteCommit(schema.TrunkBranch, trunk))
	assert.Equal(t, schema.Holdoff, topo.State("B"))
	assert.Equal(t, 1, topo.Owed("B"))

	// 2. The first branch commit creates B; a.c is not carried yet.
	require.NoError(t, topo.EnsureCreated("B", at(100)))
	assert.Equal(t, schema.Merging, topo.State("B"))
	assert.Empty(t, topo.NoteCommit("B", []*schema.RevisionRecord{b1121}))

	// 3. The mainline reaches a.c@1.2, which B still owes.
	require.NoError(t, topo.Prepare(schema.TrunkBranch, []*schema.RevisionRecord{a12}, at(200)))
	merges := topo.NoteCommit(schema.TrunkBranch, []*schema.RevisionRecord{a12})
	require.Len(t, merges, 1)
	assert.Equal(t, "B", merges[0].Branch)
	assert.Equal(t, []*schema.RevisionRecord{a12}, merges[0].Revisions)
	assert.Equal(t, schema.Branched, topo.State("B"))
	assert.Equal(t, 0, topo.Owed("B"))

	assert.Empty(t, topo.NoteCommit("B", merges[0].Revisions))
	assert.Equal(t, []string{"a.c", "b.c"}, topo.Files("B"))
	dest.AssertExpectations(t)
}

func TestTopology_PrepareCreatesDisturbedBranch(t *testing.T) {
	fcs := classifyAll(t, map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"B": "1.1.0.2"},
			raw("1.2", 500, "1.1"), raw("1.1", 0, "")),
	})
	a11, a12 := fcs["a.c"].ByRev["1.1"], fcs["a.c"].ByRev["1.2"]

	dest := new(contract.MockDestination)
	dest.On("FileList", schema.TrunkBranch).Return([]string{}, nil)
	dest.On("HasBranch", "B").Return(false)
	dest.On("CreateBranch", "B", "", false, at(500)).Return(nil).Once()

	topo, _ := newTestTopology(t, dest, false, time.Time{}, fcs)

	require.NoError(t, topo.Prepare(schema.TrunkBranch, []*schema.RevisionRecord{a11}, at(0)))
	topo.NoteCommit(schema.TrunkBranch, []*schema.RevisionRecord{a11})
	assert.Equal(t, schema.Holdoff, topo.State("B"))

	require.NoError(t, topo.Prepare(schema.TrunkBranch, []*schema.RevisionRecord{a12}, at(500)))
	assert.Equal(t, schema.Branched, topo.State("B"))
	assert.Equal(t, []string{"a.c"}, topo.Files("B"))
	dest.AssertExpectations(t)
}

func TestTopology_LoadsExistingBranches(t *testing.T) {
	fcs := classifyAll(t, map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"B": "1.2.0.2"},
			raw("1.2", 100, "1.1"), raw("1.1", 0, "")),
	})
	dest := new(contract.MockDestination)
	dest.On("FileList", schema.TrunkBranch).Return([]string{"a.c"}, nil)
	dest.On("HasBranch", "B").Return(true)
	dest.On("FileList", "B").Return([]string{"a.c"}, nil)

	topo, _ := newTestTopology(t, dest, false, at(5000), fcs)
	assert.Equal(t, schema.Branched, topo.State("B"))
	require.NoError(t, topo.Finalize(at(6000)))
	dest.AssertNotCalled(t, "CreateBranch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTopology_FinalizeCreatesHeldOffBranches(t *testing.T) {
	fcs := classifyAll(t, map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"OUTER": "1.2.0.2", "INNER": "1.2.2.1.0.2", "ZZZ": "1.1.0.2"},
			raw("1.2", 100, "1.1", "1.2.2.1"),
			raw("1.1", 0, ""),
			raw("1.2.2.1", 200, "")),
	})
	dest := new(contract.MockDestination)
	dest.On("FileList", schema.TrunkBranch).Return([]string{}, nil)
	dest.On("HasBranch", mock.Anything).Return(false)

	var order []string
	dest.On("CreateBranch", mock.Anything, mock.Anything, false, at(900)).
		Run(func(args mock.Arguments) { order = append(order, args.String(0)) }).
		Return(nil)

	topo, _ := newTestTopology(t, dest, false, time.Time{}, fcs)
	require.NoError(t, topo.Finalize(at(900)))
	assert.Equal(t, []string{"OUTER", "ZZZ", "INNER"}, order)
	for _, name := range []string{"OUTER", "INNER", "ZZZ"} {
		assert.NotEqual(t, schema.Holdoff, topo.State(name), name)
	}
}

func TestTopology_BranchExistsIsFatal(t *testing.T) {
	fcs := classifyAll(t, map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"B": "1.2.0.2"},
			raw("1.2", 100, "1.1"), raw("1.1", 0, "")),
	})
	dest := new(contract.MockDestination)
	dest.On("FileList", schema.TrunkBranch).Return([]string{}, nil)
	dest.On("HasBranch", "B").Return(false).Once()
	dest.On("HasBranch", "B").Return(true)

	topo, _ := newTestTopology(t, dest, false, time.Time{}, fcs)
	err := topo.EnsureCreated("B", at(100))
	require.Error(t, err)
	assert.ErrorIs(t, err, contract.ErrBranchExists)
}

func TestTopology_UnknownParentDefaultsToMainline(t *testing.T) {
	fcs := classifyAll(t, map[string]*schema.FileHistory{
		"a.c": history("1.2", map[string]string{"INNER": "1.2.2.1.0.2"},
			raw("1.2", 100, "1.1", "1.2.2.1"),
			raw("1.1", 0, ""),
			raw("1.2.2.1", 200, "")),
	})
	topo, hook := newTestTopology(t, nil, false, time.Time{}, fcs)

	branches := topo.Branches()
	require.Len(t, branches, 1)
	assert.Equal(t, "INNER", branches[0].Name)
	assert.Equal(t, schema.TrunkBranch, branches[0].Parent)
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "assuming mainline")
}

func TestTopology_SiblingEvidenceResolvesParent(t *testing.T) {
	fcs := classifyAll(t, map[string]*schema.FileHistory{
		// INNER sprouts from OUTER in a.c ...
		"a.c": history("1.2", map[string]string{"OUTER": "1.2.0.2", "INNER": "1.2.2.1.0.2"},
			raw("1.2", 100, "1.1", "1.2.2.1"),
			raw("1.1", 0, ""),
			raw("1.2.2.1", 200, "")),
		// ... but from the mainline in b.c, which OUTER never modified.
		"b.c": history("1.1", map[string]string{"OUTER": "1.1.0.2", "INNER": "1.1.0.4"},
			raw("1.1", 0, "")),
	})
	topo, _ := newTestTopology(t, nil, false, time.Time{}, fcs)

	parents := map[string]string{}
	for _, b := range topo.Branches() {
		parents[b.Name] = b.Parent
	}
	assert.Equal(t, map[string]string{"OUTER": "", "INNER": "OUTER"}, parents)
}
