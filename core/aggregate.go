package core

import (
	"bytes"
	"sort"
	"time"

	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
)

// Resolver maps a branch name to its canonical alias.
type Resolver interface {
	Resolve(name string) string
}

// identityResolver treats every name as canonical.
type identityResolver struct{}

func (identityResolver) Resolve(name string) string { return name }

// Aggregator groups classified revisions of many files into changesets.
type Aggregator struct {
	window   time.Duration
	mode     schema.WindowMode
	resolver Resolver
	log      logrus.FieldLogger
}

// NewAggregator creates an aggregator. A nil resolver keeps branch names as they are.
func NewAggregator(window time.Duration, mode schema.WindowMode, resolver Resolver, log logrus.FieldLogger) *Aggregator {
	if resolver == nil {
		resolver = identityResolver{}
	}
	if mode == "" {
		mode = schema.RunningMaxWindow
	}
	return &Aggregator{window: window, mode: mode, resolver: resolver, log: log}
}

// Aggregate builds the changesets of one scan pass, ordered by their earliest date.
// Members of each changeset are ordered by file path.
func (a *Aggregator) Aggregate(revs []*schema.RevisionRecord) []*schema.Changeset {
	pool := make([]*schema.RevisionRecord, len(revs))
	copy(pool, revs)
	sortPool(pool)

	queue := a.group(pool)
	var out []*schema.Changeset
	for len(queue) > 0 {
		cs := queue[0]
		queue = queue[1:]
		if cs.Len() == 0 {
			continue
		}

		cs.SortByDate()
		if head, tail := splitDuplicates(cs); tail != nil {
			a.log.Debugf("splitting changeset by %s at %s: file touched twice", cs.Author, tail.MinDate.Format(time.RFC3339))
			queue = append(queue, head, tail)
			continue
		}

		parts := a.splitBranches(cs)
		if len(parts) > 1 {
			a.log.Debugf("splitting changeset by %s at %s across %d branches", cs.Author, cs.MinDate.Format(time.RFC3339), len(parts))
		}
		for _, part := range parts {
			if head, tail := a.splitSpan(part); tail != nil {
				queue = append(queue, head, tail)
				continue
			}
			part.SortByFile()
			out = append(out, part)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		x, y := out[i], out[j]
		if !x.MinDate.Equal(y.MinDate) {
			return x.MinDate.Before(y.MinDate)
		}
		if x.Author != y.Author {
			return x.Author < y.Author
		}
		return x.Revisions[0].File < y.Revisions[0].File
	})
	return out
}

// sortPool orders revisions so that candidates for one changeset are adjacent:
// id-less revisions first by author, log and date; then revisions by commit id.
func sortPool(pool []*schema.RevisionRecord) {
	sort.SliceStable(pool, func(i, j int) bool {
		x, y := pool[i], pool[j]
		if (x.CommitID == "") != (y.CommitID == "") {
			return x.CommitID == ""
		}
		if x.CommitID != y.CommitID {
			return x.CommitID < y.CommitID
		}
		if x.Author != y.Author {
			return x.Author < y.Author
		}
		if c := bytes.Compare(x.LogDigest[:], y.LogDigest[:]); c != 0 {
			return c < 0
		}
		if !x.Date.Equal(y.Date) {
			return x.Date.Before(y.Date)
		}
		if x.File != y.File {
			return x.File < y.File
		}
		return schema.CompareRevs(x.Rev, y.Rev) < 0
	})
}

// candidate is a changeset under construction.
type candidate struct {
	revs     []*schema.RevisionRecord
	syms     map[string]struct{} // canonical branch names
	first    time.Time
	max      time.Time
	resolver Resolver
}

func newCandidate(r *schema.RevisionRecord, resolver Resolver) *candidate {
	c := &candidate{syms: make(map[string]struct{}), first: r.Date, resolver: resolver}
	c.add(r)
	return c
}

func (c *candidate) add(r *schema.RevisionRecord) {
	c.revs = append(c.revs, r)
	for _, s := range r.Syms {
		c.syms[c.resolver.Resolve(s)] = struct{}{}
	}
	if r.Date.After(c.max) {
		c.max = r.Date
	}
}

// accepts reports whether r shares the branch evidence of the candidate.
func (c *candidate) accepts(r *schema.RevisionRecord) bool {
	if len(r.Syms) == 0 || len(c.syms) == 0 {
		return len(r.Syms) == 0 && len(c.syms) == 0
	}
	for _, s := range r.Syms {
		if _, ok := c.syms[c.resolver.Resolve(s)]; ok {
			return true
		}
	}
	return false
}

// group does the linear scan over the sorted pool.
func (a *Aggregator) group(pool []*schema.RevisionRecord) []*schema.Changeset {
	var sets []*schema.Changeset
	var open []*candidate
	flush := func() {
		for _, c := range open {
			sets = append(sets, schema.NewChangeset(c.revs))
		}
		open = open[:0]
	}

	var prev *schema.RevisionRecord
	for _, r := range pool {
		if prev == nil || !sameRun(prev, r) {
			flush()
		}
		prev = r

		if r.CommitID != "" {
			if len(open) == 0 {
				open = append(open, newCandidate(r, a.resolver))
			} else {
				open[0].add(r)
			}
			continue
		}

		var target *candidate
		for i := len(open) - 1; i >= 0; i-- {
			if open[i].accepts(r) && a.inWindow(open[i], r.Date) {
				target = open[i]
				break
			}
		}
		if target == nil {
			open = append(open, newCandidate(r, a.resolver))
			continue
		}
		target.add(r)
	}
	flush()
	return sets
}

// sameRun reports whether two adjacent pool entries may share a changeset at all.
func sameRun(x, y *schema.RevisionRecord) bool {
	if x.CommitID != "" || y.CommitID != "" {
		return x.CommitID == y.CommitID
	}
	return x.Author == y.Author && x.LogDigest == y.LogDigest
}

// inWindow applies the configured window rule to a candidate.
func (a *Aggregator) inWindow(c *candidate, date time.Time) bool {
	ref := c.max
	if a.mode == schema.FirstRevWindow {
		ref = c.first
	}
	return date.Sub(ref) <= a.window
}

// splitDuplicates cuts a date-ordered changeset at the first file seen twice.
func splitDuplicates(cs *schema.Changeset) (*schema.Changeset, *schema.Changeset) {
	seen := make(map[string]struct{}, cs.Len())
	for i, r := range cs.Revisions {
		if _, dup := seen[r.File]; dup {
			return schema.NewChangeset(cs.Revisions[:i:i]), schema.NewChangeset(cs.Revisions[i:])
		}
		seen[r.File] = struct{}{}
	}
	return cs, nil
}

// splitBranches divides a changeset whose members resolve to more than one branch.
// The branch covering the most members is served first.
func (a *Aggregator) splitBranches(cs *schema.Changeset) []*schema.Changeset {
	covers := make([]map[string]struct{}, cs.Len())
	for i, r := range cs.Revisions {
		covers[i] = make(map[string]struct{}, len(r.Syms))
		if len(r.Syms) == 0 {
			covers[i][schema.TrunkBranch] = struct{}{}
			continue
		}
		for _, s := range r.Syms {
			covers[i][a.resolver.Resolve(s)] = struct{}{}
		}
	}

	remaining := make([]int, cs.Len())
	for i := range remaining {
		remaining[i] = i
	}

	var parts []*schema.Changeset
	for len(remaining) > 0 {
		counts := make(map[string]int)
		for _, i := range remaining {
			for b := range covers[i] {
				counts[b]++
			}
		}
		best, bestCount := "", -1
		for b, n := range counts {
			if n > bestCount || (n == bestCount && b < best) {
				best, bestCount = b, n
			}
		}

		var members []*schema.RevisionRecord
		var rest []int
		for _, i := range remaining {
			if _, ok := covers[i][best]; ok {
				members = append(members, cs.Revisions[i])
			} else {
				rest = append(rest, i)
			}
		}
		part := schema.NewChangeset(members)
		part.Branch = best
		parts = append(parts, part)
		remaining = rest
	}
	return parts
}

// splitSpan cuts a changeset at the first member outside the window.
// Changesets carrying a commit id are never cut.
func (a *Aggregator) splitSpan(cs *schema.Changeset) (*schema.Changeset, *schema.Changeset) {
	if cs.CommitID != "" {
		return cs, nil
	}
	c := newCandidate(cs.Revisions[0], a.resolver)
	for i := 1; i < cs.Len(); i++ {
		r := cs.Revisions[i]
		if !a.inWindow(c, r.Date) {
			head := schema.NewChangeset(cs.Revisions[:i:i])
			tail := schema.NewChangeset(cs.Revisions[i:])
			head.Branch, tail.Branch = cs.Branch, cs.Branch
			return head, tail
		}
		c.add(r)
	}
	return cs, nil
}
