package core

import (
	"regexp"
	"testing"
	"time"

	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2003, 6, 10, 9, 0, 0, 0, time.UTC)

// at returns t0 shifted by the given number of seconds.
func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

// raw builds a live raw revision.
func raw(rev string, sec int, next string, branches ...string) *schema.RawRevision {
	return &schema.RawRevision{
		Rev:      rev,
		Date:     at(sec),
		Author:   "alice",
		State:    schema.StateNormal,
		Next:     next,
		Branches: branches,
		Log:      "log of " + rev,
	}
}

// dead marks a raw revision as a removal.
func dead(r *schema.RawRevision) *schema.RawRevision {
	r.State = schema.StateDead
	return r
}

// history builds a revision table.
func history(head string, symbols map[string]string, revs ...*schema.RawRevision) *schema.FileHistory {
	h := &schema.FileHistory{
		Head:      head,
		Symbols:   symbols,
		Revisions: make(map[string]*schema.RawRevision, len(revs)),
	}
	for _, r := range revs {
		h.Revisions[r.Rev] = r
	}
	return h
}

// newTestClassifier returns a classifier with a hooked logger.
func newTestClassifier(ignore *regexp.Regexp) (*Classifier, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewClassifier(NewSymbolTable(), ignore, logger), hook
}

func actions(fc *FileClassification) map[string]schema.Action {
	out := make(map[string]schema.Action, len(fc.Revisions))
	for _, r := range fc.Revisions {
		out[r.Rev] = r.Action
	}
	return out
}

func TestClassify_TrunkOnly(t *testing.T) {
	c, hook := newTestClassifier(nil)
	fc := c.Classify("src/main.c", history("1.2", nil,
		raw("1.2", 100, "1.1"),
		raw("1.1", 0, ""),
	))

	require.Len(t, fc.Revisions, 2)
	assert.Equal(t, "1.1", fc.Revisions[0].Rev)
	assert.Equal(t, map[string]schema.Action{"1.1": schema.ActionNormal, "1.2": schema.ActionNormal}, actions(fc))
	assert.True(t, fc.ByRev["1.2"].OriginKnown)
	assert.Equal(t, at(0), fc.Birth)
	assert.Equal(t, schema.DigestLog("log of 1.2"), fc.ByRev["1.2"].LogDigest)
	assert.Empty(t, fc.Tags)
	assert.Empty(t, hook.AllEntries())
}

func TestClassify_VendorOnlyImport(t *testing.T) {
	c, _ := newTestClassifier(nil)
	fc := c.Classify("lib/zlib.c", history("1.1", map[string]string{"ZLIB": "1.1.1", "ZLIB_1_2": "1.1.1.1"},
		raw("1.1.1.1", 0, ""),
	))

	r := fc.ByRev["1.1.1.1"]
	assert.Equal(t, schema.ActionVendor, r.Action)
	assert.Equal(t, []string{"ZLIB"}, r.Syms)
	assert.True(t, r.OriginKnown)
	require.Len(t, fc.Tags, 1)
	assert.True(t, fc.Tags[0].Vendor)
	assert.Equal(t, "1.1", fc.Tags[0].Point)
}

func TestClassify_VendorImportBeforeTrunkWork(t *testing.T) {
	c, _ := newTestClassifier(nil)
	fc := c.Classify("lib/zlib.c", history("1.1", map[string]string{"ZLIB": "1.1.1"},
		raw("1.1", 0, "", "1.1.1.1"),
		raw("1.1.1.1", 0, "1.1.1.2"),
		raw("1.1.1.2", 5000, ""),
	))

	assert.Equal(t, map[string]schema.Action{
		"1.1":     schema.ActionIgnore,
		"1.1.1.1": schema.ActionVendorMerge,
		"1.1.1.2": schema.ActionVendorMerge,
	}, actions(fc))
	assert.Equal(t, "1.1", fc.ByRev["1.1.1.1"].Link)
	assert.Equal(t, "1.1.1.1", fc.ByRev["1.1.1.2"].Link)
}

func TestClassify_VendorAfterTrunkWork(t *testing.T) {
	c, _ := newTestClassifier(nil)
	fc := c.Classify("lib/zlib.c", history("1.2", map[string]string{"ZLIB": "1.1.1"},
		raw("1.2", 3000, "1.1"),
		raw("1.1", 0, "", "1.1.1.1"),
		raw("1.1.1.1", 1, "1.1.1.2"),
		raw("1.1.1.2", 5000, ""),
	))

	assert.Equal(t, map[string]schema.Action{
		"1.1":     schema.ActionIgnore,
		"1.2":     schema.ActionNormal,
		"1.1.1.1": schema.ActionVendorMerge,
		"1.1.1.2": schema.ActionVendor,
	}, actions(fc))
}

func TestClassify_VendorImportGapKeepsInitial(t *testing.T) {
	c, _ := newTestClassifier(nil)
	fc := c.Classify("lib/zlib.c", history("1.1", map[string]string{"ZLIB": "1.1.1"},
		raw("1.1", 0, "", "1.1.1.1"),
		raw("1.1.1.1", 60, ""),
	))
	assert.Equal(t, schema.ActionNormal, fc.ByRev["1.1"].Action)
}

func TestClassify_NamedBranch(t *testing.T) {
	c, hook := newTestClassifier(nil)
	fc := c.Classify("src/main.c", history("1.3", map[string]string{"RELENG_1": "1.2.0.2", "REL_1_0": "1.2"},
		raw("1.3", 900, "1.2"),
		raw("1.2", 100, "1.1", "1.2.2.1"),
		raw("1.1", 0, ""),
		raw("1.2.2.1", 500, "1.2.2.2"),
		raw("1.2.2.2", 700, ""),
	))

	first, second := fc.ByRev["1.2.2.1"], fc.ByRev["1.2.2.2"]
	assert.Equal(t, schema.ActionBranch, first.Action)
	assert.Equal(t, schema.ActionBranch, second.Action)
	assert.Equal(t, "1.2", first.Link)
	assert.Equal(t, "1.2.2.1", second.Link)
	assert.Equal(t, []string{"RELENG_1"}, first.Syms)
	assert.Equal(t, schema.TrunkBranch, first.Origin)
	assert.True(t, first.OriginKnown)
	assert.Nil(t, fc.ByRev["1.3"].Syms)

	require.Len(t, fc.Tags, 1)
	assert.Equal(t, schema.BranchTag{
		Names: []string{"RELENG_1"}, Prefix: "1.2.2", Point: "1.2", ParentKnown: true,
	}, fc.Tags[0])
	assert.Empty(t, hook.AllEntries())
}

func TestClassify_UnnamedBranchIsIgnored(t *testing.T) {
	c, _ := newTestClassifier(nil)
	fc := c.Classify("src/main.c", history("1.2", nil,
		raw("1.2", 100, "1.1", "1.2.4.1"),
		raw("1.1", 0, ""),
		raw("1.2.4.1", 500, ""),
	))
	assert.Equal(t, schema.ActionIgnore, fc.ByRev["1.2.4.1"].Action)
	assert.Equal(t, "1.2", fc.ByRev["1.2.4.1"].Link)
}

func TestClassify_IgnoredBranchName(t *testing.T) {
	c, _ := newTestClassifier(regexp.MustCompile(`^TMP_`))
	fc := c.Classify("src/main.c", history("1.2", map[string]string{"TMP_work": "1.2.0.2"},
		raw("1.2", 100, "1.1", "1.2.2.1"),
		raw("1.1", 0, ""),
		raw("1.2.2.1", 500, ""),
	))
	assert.Equal(t, schema.ActionIgnore, fc.ByRev["1.2.2.1"].Action)
	assert.Empty(t, fc.Tags)
}

func TestClassify_AddedOnBranchArtifacts(t *testing.T) {
	c, _ := newTestClassifier(nil)
	fc := c.Classify("src/new.c", history("1.1", map[string]string{"FEATURE": "1.1.0.2"},
		dead(raw("1.1", 100, "", "1.1.2.1")),
		dead(raw("1.1.2.1", 100, "1.1.2.2")),
		raw("1.1.2.2", 100, ""),
	))
	assert.Equal(t, map[string]schema.Action{
		"1.1":     schema.ActionIgnore,
		"1.1.2.1": schema.ActionIgnore,
		"1.1.2.2": schema.ActionBranch,
	}, actions(fc))
}

func TestClassify_NestedBranchOrigin(t *testing.T) {
	c, _ := newTestClassifier(nil)
	fc := c.Classify("src/main.c", history("1.2", map[string]string{"OUTER": "1.2.0.2", "INNER": "1.2.2.1.0.2"},
		raw("1.2", 100, "1.1", "1.2.2.1"),
		raw("1.1", 0, ""),
		raw("1.2.2.1", 200, "", "1.2.2.1.2.1"),
		raw("1.2.2.1.2.1", 300, ""),
	))

	inner := fc.ByRev["1.2.2.1.2.1"]
	assert.Equal(t, schema.ActionBranch, inner.Action)
	assert.Equal(t, "OUTER", inner.Origin)
	assert.True(t, inner.OriginKnown)
	assert.Equal(t, 2, inner.Depth())

	require.Len(t, fc.Tags, 2)
	assert.Equal(t, "1.2.2.1.2", fc.Tags[1].Prefix)
	assert.Equal(t, "OUTER", fc.Tags[1].Parent)
}

func TestClassify_UnnamedParentLeavesOriginUnknown(t *testing.T) {
	c, _ := newTestClassifier(nil)
	fc := c.Classify("src/main.c", history("1.2", map[string]string{"INNER": "1.2.2.1.0.2"},
		raw("1.2", 100, "1.1", "1.2.2.1"),
		raw("1.1", 0, ""),
		raw("1.2.2.1", 200, "", "1.2.2.1.2.1"),
		raw("1.2.2.1.2.1", 300, ""),
	))
	assert.False(t, fc.ByRev["1.2.2.1.2.1"].OriginKnown)
	assert.Equal(t, schema.ActionIgnore, fc.ByRev["1.2.2.1"].Action)
}

func TestClassify_DefaultBranch(t *testing.T) {
	c, _ := newTestClassifier(nil)
	h := history("1.3", map[string]string{"STABLE": "1.2.0.2"},
		raw("1.3", 900, "1.2"),
		raw("1.2", 100, "1.1", "1.2.2.1"),
		raw("1.1", 0, ""),
		raw("1.2.2.1", 500, ""),
	)
	h.Branch = "1.2.2"
	fc := c.Classify("src/main.c", h)

	assert.Equal(t, map[string]schema.Action{
		"1.1":     schema.ActionNormal,
		"1.2":     schema.ActionNormal,
		"1.3":     schema.ActionIgnore,
		"1.2.2.1": schema.ActionBranchMerge,
	}, actions(fc))
}

func TestClassify_NestedDefaultBranch(t *testing.T) {
	c, hook := newTestClassifier(nil)
	h := history("1.3", map[string]string{"STABLE": "1.2.0.2", "STABLE_FIX": "1.2.2.1.0.2"},
		raw("1.3", 900, "1.2"),
		raw("1.2", 100, "1.1", "1.2.2.1"),
		raw("1.1", 0, ""),
		raw("1.2.2.1", 200, "1.2.2.2", "1.2.2.1.2.1"),
		raw("1.2.2.2", 700, ""),
		raw("1.2.2.1.2.1", 500, ""),
	)
	h.Branch = "1.2.2.1.2"
	fc := c.Classify("src/main.c", h)

	assert.Equal(t, map[string]schema.Action{
		"1.1":         schema.ActionNormal,
		"1.2":         schema.ActionNormal,
		"1.3":         schema.ActionIgnore,
		"1.2.2.1":     schema.ActionBranchMerge,
		"1.2.2.2":     schema.ActionBranch,
		"1.2.2.1.2.1": schema.ActionBranchMerge,
	}, actions(fc))
	assert.Empty(t, hook.AllEntries())
}

func TestClassify_VendorDefaultBranchMergesEveryImport(t *testing.T) {
	c, _ := newTestClassifier(nil)
	h := history("1.2", map[string]string{"ZLIB": "1.1.1"},
		raw("1.2", 3000, "1.1"),
		raw("1.1", 0, "", "1.1.1.1"),
		raw("1.1.1.1", 1, "1.1.1.2"),
		raw("1.1.1.2", 5000, ""),
	)
	h.Branch = schema.VendorBranchPrefix
	fc := c.Classify("lib/zlib.c", h)

	assert.Equal(t, map[string]schema.Action{
		"1.1":     schema.ActionIgnore,
		"1.2":     schema.ActionIgnore,
		"1.1.1.1": schema.ActionVendorMerge,
		"1.1.1.2": schema.ActionVendorMerge,
	}, actions(fc))
}

func TestClassify_DanglingBranchSymbol(t *testing.T) {
	c, hook := newTestClassifier(nil)
	fc := c.Classify("src/main.c", history("1.2", map[string]string{"REL1": "1.3.0.2"},
		raw("1.2", 100, "1.1"),
		raw("1.1", 0, ""),
	))

	assert.Equal(t, 1, fc.Warnings)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "missing revision 1.3")
	assert.Equal(t, "src/main.c", hook.LastEntry().Data["file"])
	assert.Empty(t, fc.Tags)
}

func TestClassify_DanglingBranchRevision(t *testing.T) {
	c, hook := newTestClassifier(nil)
	fc := c.Classify("src/main.c", history("1.2", map[string]string{"REL1": "1.3.2.1"},
		raw("1.2", 100, "1.1"),
		raw("1.1", 0, ""),
		raw("1.3.2.1", 400, ""),
	))

	assert.NotEqual(t, schema.ActionBranch, fc.ByRev["1.3.2.1"].Action)
	assert.Equal(t, schema.ActionIgnore, fc.ByRev["1.3.2.1"].Action)
	assert.Equal(t, 1, fc.Warnings)
	assert.Len(t, hook.Entries, 1)
}

func TestClassify_DanglingTag(t *testing.T) {
	c, hook := newTestClassifier(nil)
	fc := c.Classify("src/main.c", history("1.1", map[string]string{"REL_2_0": "1.9"},
		raw("1.1", 0, ""),
	))
	assert.Equal(t, 1, fc.Warnings)
	assert.Contains(t, hook.LastEntry().Message, "REL_2_0")
}

func TestClassify_Deterministic(t *testing.T) {
	h := history("1.3", map[string]string{"B": "1.2.0.2", "A": "1.2.0.2"},
		raw("1.3", 900, "1.2"),
		raw("1.2", 100, "1.1", "1.2.2.1"),
		raw("1.1", 0, ""),
		raw("1.2.2.1", 500, ""),
	)
	c1, _ := newTestClassifier(nil)
	c2, _ := newTestClassifier(nil)
	a, b := c1.Classify("f.c", h), c2.Classify("f.c", h)

	require.Equal(t, len(a.Revisions), len(b.Revisions))
	for i := range a.Revisions {
		assert.Equal(t, *a.Revisions[i], *b.Revisions[i])
	}
	assert.Equal(t, []string{"A", "B"}, a.ByRev["1.2.2.1"].Syms)
}
