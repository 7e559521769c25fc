package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
)

// mainlineID is the arena index of the mainline.
const mainlineID = 0

// BranchPoint is one branch of the topology arena. Parent and children are
// arena indexes.
type BranchPoint struct {
	Name   string
	Parent int
	Vendor bool
	Depth  int
	State  schema.BranchState

	owed     map[string]string // file -> branch point revision not yet seen on the parent
	present  *pathSet          // files that carry the right content on the branch
	files    *pathSet          // files live on the branch in the destination
	children []int

	parentName  string
	parentDepth int
	parentKnown bool
}

// ForwardMerge asks the replay driver to carry revisions just committed on a
// parent onto a branch that has already been created.
type ForwardMerge struct {
	Branch    string
	Revisions []*schema.RevisionRecord
}

// tagRecord is one branch symbol carried by one file.
type tagRecord struct {
	file  string
	tag   schema.BranchTag
	point *schema.RevisionRecord // nil when the branch point is missing
}

// Topology tracks branch ancestry, symbol aliases and the lifecycle of every branch.
type Topology struct {
	dest         contract.Destination
	mergeSymbols bool
	watermark    time.Time
	log          logrus.FieldLogger

	names  *SymbolTable
	alias  []int          // union-find parent per name id
	points []*BranchPoint // indexed by canonical name id, nil for aliases
	tags   []tagRecord

	created int
}

// NewTopology creates an empty topology. dest may be nil for a dry run, in which
// case every branch starts in holdoff and nothing is created.
func NewTopology(dest contract.Destination, mergeSymbols bool, watermark time.Time, log logrus.FieldLogger) *Topology {
	t := &Topology{
		dest:         dest,
		mergeSymbols: mergeSymbols,
		watermark:    watermark,
		log:          log,
		names:        NewSymbolTable(),
	}
	t.intern(schema.TrunkBranch)
	t.points = append(t.points, &BranchPoint{
		Name:        schema.TrunkBranch,
		Parent:      mainlineID,
		State:       schema.Branched,
		owed:        map[string]string{},
		present:     newPathSet(),
		files:       newPathSet(),
		parentKnown: true,
	})
	return t
}

// intern returns the name id, growing the union-find table as needed.
func (t *Topology) intern(name string) int {
	id := t.names.Intern(name)
	for len(t.alias) <= id {
		t.alias = append(t.alias, len(t.alias))
	}
	return id
}

func (t *Topology) find(id int) int {
	for t.alias[id] != id {
		t.alias[id] = t.alias[t.alias[id]]
		id = t.alias[id]
	}
	return id
}

// union joins two names; the lexically lowest name stays canonical.
func (t *Topology) union(a, b int) {
	ra, rb := t.find(a), t.find(b)
	if ra == rb {
		return
	}
	if t.names.Resolve(rb) < t.names.Resolve(ra) {
		ra, rb = rb, ra
	}
	t.alias[rb] = ra
}

// Register records the branch symbols of one classified file.
func (t *Topology) Register(fc *FileClassification) {
	for _, tag := range fc.Tags {
		ids := make([]int, 0, len(tag.Names))
		for _, name := range tag.Names {
			ids = append(ids, t.intern(name))
		}
		if t.mergeSymbols {
			for _, id := range ids[1:] {
				t.union(ids[0], id)
			}
		}
		t.tags = append(t.tags, tagRecord{
			file:  fc.File,
			tag:   tag,
			point: effectivePoint(fc, tag.Point),
		})
	}
}

// effectivePoint returns the revision whose content a branch starts from.
// An initial 1.1 dropped in favor of the vendor import is replaced by 1.1.1.1.
func effectivePoint(fc *FileClassification, rev string) *schema.RevisionRecord {
	p, ok := fc.ByRev[rev]
	if !ok {
		return nil
	}
	if p.Action == schema.ActionIgnore && rev == "1.1" {
		if v, ok := fc.ByRev[schema.VendorBranchPrefix+".1"]; ok {
			return v
		}
	}
	return p
}

// Build links the registered branches and loads their state from the destination.
func (t *Topology) Build() error {
	for _, rec := range t.tags {
		for _, name := range rec.tag.Names {
			bp := t.point(t.find(t.intern(name)))
			t.absorb(bp, rec)
		}
	}
	t.link()
	return t.load()
}

// point returns the arena entry of a canonical id, creating it on first use.
func (t *Topology) point(id int) *BranchPoint {
	for len(t.points) <= id {
		t.points = append(t.points, nil)
	}
	if t.points[id] == nil {
		t.points[id] = &BranchPoint{
			Name:    t.names.Resolve(id),
			Parent:  mainlineID,
			State:   schema.Holdoff,
			owed:    map[string]string{},
			present: newPathSet(),
			files:   newPathSet(),
		}
	}
	return t.points[id]
}

// absorb folds one file's evidence into a branch.
func (t *Topology) absorb(bp *BranchPoint, rec tagRecord) {
	bp.Vendor = bp.Vendor || rec.tag.Vendor

	if rec.tag.ParentKnown {
		depth := 0
		if rec.tag.Parent != schema.TrunkBranch {
			depth = schema.RevDepth(rec.tag.Point)
		}
		switch {
		case !bp.parentKnown || depth > bp.parentDepth:
			bp.parentName, bp.parentDepth, bp.parentKnown = rec.tag.Parent, depth, true
		case depth == bp.parentDepth && rec.tag.Parent != bp.parentName:
			t.log.Debugf("branch %s: %s names parent %q, keeping %q", bp.Name, rec.file, rec.tag.Parent, bp.parentName)
		}
	}

	p := rec.point
	if rec.tag.Vendor || p == nil || p.Dead() || p.Action == schema.ActionIgnore {
		return
	}
	if p.Date.After(t.watermark) {
		bp.owed[rec.file] = p.Rev
	} else {
		bp.present.Add(rec.file)
	}
}

// link resolves parents, breaks cycles and computes depths.
func (t *Topology) link() {
	for id, bp := range t.points {
		if id == mainlineID || bp == nil {
			continue
		}
		bp.Parent = mainlineID
		switch {
		case bp.Vendor:
		case !bp.parentKnown:
			t.log.Warnf("branch %s: parent branch has no name in any file, assuming mainline", bp.Name)
		case bp.parentName != schema.TrunkBranch:
			pid, ok := t.names.Lookup(bp.parentName)
			if ok && t.points[t.find(pid)] != nil {
				bp.Parent = t.find(pid)
			} else {
				t.log.Warnf("branch %s: parent %s is not a known branch, assuming mainline", bp.Name, bp.parentName)
			}
		}
	}

	for id, bp := range t.points {
		if id == mainlineID || bp == nil {
			continue
		}
		for p, steps := bp.Parent, 0; p != mainlineID; p, steps = t.points[p].Parent, steps+1 {
			if p == id || steps > len(t.points) {
				t.log.Warnf("branch %s: ancestry loops, assuming mainline", bp.Name)
				bp.Parent = mainlineID
				break
			}
		}
	}

	for _, bp := range t.points {
		if bp != nil {
			bp.children = bp.children[:0]
		}
	}
	for id, bp := range t.points {
		if id == mainlineID || bp == nil {
			continue
		}
		parent := t.points[bp.Parent]
		parent.children = append(parent.children, id)
	}
	for _, bp := range t.points {
		if bp == nil {
			continue
		}
		sort.Slice(bp.children, func(i, j int) bool {
			return t.points[bp.children[i]].Name < t.points[bp.children[j]].Name
		})
		bp.Depth = t.depthOf(bp)
	}
}

func (t *Topology) depthOf(bp *BranchPoint) int {
	depth := 0
	for cur := bp; cur.Name != schema.TrunkBranch; cur = t.points[cur.Parent] {
		depth++
	}
	return depth
}

// load reconstructs the lifecycle state from the destination.
func (t *Topology) load() error {
	if t.dest == nil {
		return nil
	}
	main := t.points[mainlineID]
	files, err := t.dest.FileList(schema.TrunkBranch)
	if err != nil {
		return fmt.Errorf("list mainline files: %w", err)
	}
	main.files = newPathSet(files...)

	for id, bp := range t.points {
		if id == mainlineID || bp == nil || !t.dest.HasBranch(bp.Name) {
			continue
		}
		files, err := t.dest.FileList(bp.Name)
		if err != nil {
			return fmt.Errorf("list files of branch %s: %w", bp.Name, err)
		}
		bp.files = newPathSet(files...)
		for _, f := range files {
			bp.present.Add(f)
		}
		bp.State = schema.Merging
		if len(bp.owed) == 0 {
			bp.State = schema.Branched
		}
	}
	return nil
}

// Resolve returns the canonical alias of a branch name.
func (t *Topology) Resolve(name string) string {
	id, ok := t.names.Lookup(name)
	if !ok {
		return name
	}
	return t.names.Resolve(t.find(id))
}

// lookup returns the arena index of a branch, adding unknown branches below the mainline.
func (t *Topology) lookup(name string) int {
	id := t.find(t.intern(name))
	if id < len(t.points) && t.points[id] != nil {
		return id
	}
	t.log.Warnf("branch %s: no file carries its symbol, assuming it sprouts from the mainline", name)
	bp := t.point(id)
	main := t.points[mainlineID]
	main.children = append(main.children, id)
	bp.Depth = 1
	return id
}

// pointOf returns the arena entry of a known branch, or nil.
func (t *Topology) pointOf(name string) *BranchPoint {
	id, ok := t.names.Lookup(name)
	if !ok {
		return nil
	}
	id = t.find(id)
	if id >= len(t.points) {
		return nil
	}
	return t.points[id]
}

// State returns the lifecycle state of a branch.
func (t *Topology) State(name string) schema.BranchState {
	if bp := t.pointOf(name); bp != nil {
		return bp.State
	}
	return schema.Holdoff
}

// Owed returns how many branch point revisions a branch still waits for.
func (t *Topology) Owed(name string) int {
	if bp := t.pointOf(name); bp != nil {
		return len(bp.owed)
	}
	return 0
}

// Files returns the files the topology believes are live on a branch.
func (t *Topology) Files(name string) []string {
	if bp := t.pointOf(name); bp != nil {
		return bp.files.Values()
	}
	return nil
}

// Created returns the number of branches created in the destination so far.
func (t *Topology) Created() int {
	return t.created
}

// EnsureCreated creates a branch and all of its missing ancestors.
func (t *Topology) EnsureCreated(name string, at time.Time) error {
	return t.ensure(t.lookup(name), at)
}

func (t *Topology) ensure(id int, at time.Time) error {
	bp := t.points[id]
	if bp.State != schema.Holdoff {
		return nil
	}
	if err := t.ensure(bp.Parent, at); err != nil {
		return err
	}
	parent := t.points[bp.Parent]

	if t.dest.HasBranch(bp.Name) {
		return fmt.Errorf("%w: %s", contract.ErrBranchExists, bp.Name)
	}
	if err := t.dest.CreateBranch(bp.Name, parent.Name, bp.Vendor, at); err != nil {
		return fmt.Errorf("create branch %s: %w", bp.Name, err)
	}
	t.created++
	t.log.Infof("created branch %s from %s", bp.Name, displayBranch(parent.Name))

	if bp.Vendor {
		bp.State = schema.Branched
		return nil
	}

	// The branch starts as a copy of its parent; drop what it does not carry.
	var stale []string
	for _, f := range parent.files.Values() {
		if bp.present.Contains(f) {
			bp.files.Add(f)
		} else {
			stale = append(stale, f)
		}
	}
	if len(stale) > 0 {
		if err := t.removeStale(bp, stale, at); err != nil {
			return err
		}
	}

	bp.State = schema.Merging
	if len(bp.owed) == 0 {
		bp.State = schema.Branched
	}
	return nil
}

// removeStale commits the removal of files copied from the parent by branch creation.
func (t *Topology) removeStale(bp *BranchPoint, stale []string, at time.Time) error {
	if err := t.dest.SelectBranch(bp.Name); err != nil {
		return err
	}
	for _, f := range stale {
		if err := t.dest.Remove(f, nil); err != nil {
			return err
		}
	}
	_, err := t.dest.Commit(schema.CommitRequest{
		Author:  schema.FixupAuthor,
		Date:    at,
		Message: fmt.Sprintf("Remove files not present on branch %s", bp.Name),
	})
	if err != nil {
		return fmt.Errorf("fix up branch %s: %w", bp.Name, err)
	}
	t.log.Debugf("branch %s: removed %d files not carried from %s", bp.Name, len(stale), displayBranch(t.points[bp.Parent].Name))
	return nil
}

// Prepare creates every held-off descendant of branch whose content the given
// revisions would change before the branch was created.
func (t *Topology) Prepare(branch string, revs []*schema.RevisionRecord, at time.Time) error {
	return t.prepare(t.lookup(branch), revs, at)
}

func (t *Topology) prepare(id int, revs []*schema.RevisionRecord, at time.Time) error {
	for _, cid := range t.points[id].children {
		c := t.points[cid]
		if c.Vendor || c.State != schema.Holdoff {
			continue
		}
		if t.disturbs(c, revs) {
			if err := t.ensure(cid, at); err != nil {
				return err
			}
			continue
		}
		if err := t.prepare(cid, revs, at); err != nil {
			return err
		}
	}
	return nil
}

// disturbs reports whether revs move a file the branch carries past its branch point.
func (t *Topology) disturbs(bp *BranchPoint, revs []*schema.RevisionRecord) bool {
	for _, r := range revs {
		if r.Action == schema.ActionIgnore {
			continue
		}
		if owe, ok := bp.owed[r.File]; ok {
			if schema.BranchOf(owe) == schema.BranchOf(r.Rev) && schema.CompareRevs(r.Rev, owe) > 0 {
				t.log.Warnf("branch %s: %s moved to %s before branch point %s was replayed", bp.Name, r.File, r.Rev, owe)
				return true
			}
			continue
		}
		if bp.present.Contains(r.File) {
			return true
		}
	}
	return false
}

// NoteCommit records revisions committed on branch and returns the forward merges
// owed to created child branches.
func (t *Topology) NoteCommit(branch string, revs []*schema.RevisionRecord) []ForwardMerge {
	id := t.lookup(branch)
	bp := t.points[id]
	for _, r := range revs {
		if r.Action == schema.ActionIgnore {
			continue
		}
		if r.Dead() {
			bp.files.Remove(r.File)
		} else {
			bp.files.Add(r.File)
		}
	}
	return t.deliver(id, revs)
}

func (t *Topology) deliver(id int, revs []*schema.RevisionRecord) []ForwardMerge {
	var merges []ForwardMerge
	for _, cid := range t.points[id].children {
		c := t.points[cid]
		if c.Vendor {
			continue
		}
		var got []*schema.RevisionRecord
		for _, r := range revs {
			if owe, ok := c.owed[r.File]; ok && owe == r.Rev && r.Action != schema.ActionIgnore {
				delete(c.owed, r.File)
				c.present.Add(r.File)
				got = append(got, r)
			}
		}
		if len(got) == 0 {
			continue
		}
		switch c.State {
		case schema.Holdoff:
			merges = append(merges, t.deliver(cid, got)...)
		case schema.Merging:
			merges = append(merges, ForwardMerge{Branch: c.Name, Revisions: got})
			if len(c.owed) == 0 {
				c.State = schema.Branched
			}
		}
	}
	return merges
}

// Finalize creates every branch still held off, parents first.
func (t *Topology) Finalize(at time.Time) error {
	var pending []int
	for id, bp := range t.points {
		if bp == nil {
			continue
		}
		if bp.State == schema.Holdoff {
			pending = append(pending, id)
		}
		if bp.State == schema.Merging {
			t.log.Debugf("branch %s: %d branch point revisions never arrived", bp.Name, len(bp.owed))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := t.points[pending[i]], t.points[pending[j]]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.Name < b.Name
	})
	for _, id := range pending {
		if err := t.ensure(id, at); err != nil {
			return err
		}
	}
	return nil
}

// Branches lists the known branches with their parents, parents first.
func (t *Topology) Branches() []schema.BranchRecord {
	var bps []*BranchPoint
	for id, bp := range t.points {
		if id != mainlineID && bp != nil {
			bps = append(bps, bp)
		}
	}
	sort.Slice(bps, func(i, j int) bool {
		if bps[i].Depth != bps[j].Depth {
			return bps[i].Depth < bps[j].Depth
		}
		return bps[i].Name < bps[j].Name
	})
	out := make([]schema.BranchRecord, 0, len(bps))
	for _, bp := range bps {
		out = append(out, schema.BranchRecord{
			Name:   bp.Name,
			Parent: t.points[bp.Parent].Name,
			Vendor: bp.Vendor,
		})
	}
	return out
}

// displayBranch names the mainline in log messages.
func displayBranch(name string) string {
	if name == schema.TrunkBranch {
		return "mainline"
	}
	return name
}
