package core

import (
	"regexp"
	"sort"
	"time"

	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
)

// vendorImportTolerance is the largest gap between 1.1 and 1.1.1.1 for which
// 1.1 is treated as the duplicate produced by an initial import.
const vendorImportTolerance = time.Second

// FileClassification is the classified revision table of one file.
type FileClassification struct {
	File      string
	Revisions []*schema.RevisionRecord // ordered by revision number
	ByRev     map[string]*schema.RevisionRecord
	Tags      []schema.BranchTag // branch symbols carried by the file, ordered by prefix
	Birth     time.Time
	Warnings  int
}

// Classifier assigns actions, branch names and links to the revisions of one file.
type Classifier struct {
	syms   *SymbolTable
	ignore *regexp.Regexp
	log    logrus.FieldLogger
}

// NewClassifier creates a classifier. Branches whose name matches ignore are
// treated as unnamed and their revisions are ignored.
func NewClassifier(syms *SymbolTable, ignore *regexp.Regexp, log logrus.FieldLogger) *Classifier {
	return &Classifier{syms: syms, ignore: ignore, log: log}
}

// fileState is the working set of one Classify call.
type fileState struct {
	file        string
	hist        *schema.FileHistory
	recs        map[string]*schema.RevisionRecord
	symBranches map[string][]string // branch number -> names
	symTags     map[string][]string // revision -> names
	log         logrus.FieldLogger
	warnings    int
}

// Classify classifies every revision of hist. file is the normalized path.
func (c *Classifier) Classify(file string, hist *schema.FileHistory) *FileClassification {
	fs := &fileState{
		file:        c.syms.String(file),
		hist:        hist,
		recs:        make(map[string]*schema.RevisionRecord, len(hist.Revisions)),
		symBranches: make(map[string][]string),
		symTags:     make(map[string][]string),
		log:         c.log.WithField("file", file),
	}

	c.collectSymbols(fs)
	c.buildRecords(fs)
	fs.checkDangling()
	fs.classifyVendor()
	fs.classifyDefaultBranch()
	fs.classifyBranches()
	fs.classifyRemaining()

	out := &FileClassification{
		File:     fs.file,
		ByRev:    fs.recs,
		Tags:     fs.branchTags(),
		Warnings: fs.warnings,
	}
	out.Revisions = make([]*schema.RevisionRecord, 0, len(fs.recs))
	for _, r := range fs.recs {
		out.Revisions = append(out.Revisions, r)
		if out.Birth.IsZero() || r.Date.Before(out.Birth) {
			out.Birth = r.Date
		}
	}
	sort.Slice(out.Revisions, func(i, j int) bool {
		return schema.CompareRevs(out.Revisions[i].Rev, out.Revisions[j].Rev) < 0
	})
	return out
}

// collectSymbols splits the symbol table into branch names and tag names.
func (c *Classifier) collectSymbols(fs *fileState) {
	for name, value := range fs.hist.Symbols {
		num, isBranch := schema.NormalizeSymbol(value)
		if num == "" {
			fs.warn("symbol %s has malformed value %q", name, value)
			continue
		}
		if !isBranch {
			fs.symTags[num] = append(fs.symTags[num], c.syms.String(name))
			continue
		}
		if c.ignore != nil && c.ignore.MatchString(name) {
			continue
		}
		fs.symBranches[num] = append(fs.symBranches[num], c.syms.String(name))
	}
	for _, names := range fs.symBranches {
		sort.Strings(names)
	}
	for _, names := range fs.symTags {
		sort.Strings(names)
	}
}

// buildRecords turns the raw revisions into records with empty classification.
func (c *Classifier) buildRecords(fs *fileState) {
	for rev, raw := range fs.hist.Revisions {
		fs.recs[rev] = &schema.RevisionRecord{
			Rev:       rev,
			File:      fs.file,
			Date:      raw.Date,
			Author:    c.syms.String(raw.Author),
			LogDigest: schema.DigestLog(raw.Log),
			State:     raw.State,
			Next:      raw.Next,
			Branches:  raw.Branches,
			CommitID:  raw.CommitID,
		}
	}
}

func (fs *fileState) warn(format string, args ...any) {
	fs.warnings++
	fs.log.Warnf(format, args...)
}

// checkDangling reports symbols whose target revision is missing.
func (fs *fileState) checkDangling() {
	for _, prefix := range sortedKeys(fs.symBranches) {
		if schema.IsVendorBranch(prefix) {
			continue
		}
		point := schema.BranchPrefixPoint(prefix)
		if _, ok := fs.recs[point]; !ok {
			fs.warn("branch %v (%s) sprouts from missing revision %s", fs.symBranches[prefix], prefix, point)
		}
	}
	for _, rev := range sortedKeys(fs.symTags) {
		if _, ok := fs.recs[rev]; !ok {
			fs.warn("tag %v points at missing revision %s", fs.symTags[rev], rev)
		}
	}
}

// classifyVendor handles the 1.1.1 vendor branch of imported files.
func (fs *fileState) classifyVendor() {
	first, ok := fs.recs[schema.VendorBranchPrefix+".1"]
	if !ok {
		return
	}
	initial, hasInitial := fs.recs["1.1"]
	nomerge := fs.hist.Branch != "" && fs.hist.Branch != schema.VendorBranchPrefix

	// Vendor revisions older than the first real trunk change were the trunk content.
	// With the vendor branch as default branch every import is the trunk content.
	var trunkdate time.Time
	if fs.hist.Branch != schema.VendorBranchPrefix {
		for rev := fs.hist.Head; rev != "" && rev != "1.1"; {
			r, ok := fs.recs[rev]
			if !ok {
				break
			}
			if r.Next == "1.1" {
				trunkdate = r.Date
			}
			rev = r.Next
		}
	}

	names := fs.symBranches[schema.VendorBranchPrefix]
	for r := first; r != nil; r = fs.recs[r.Next] {
		if hasInitial && !nomerge && (trunkdate.IsZero() || r.Date.Before(trunkdate)) {
			r.Action = schema.ActionVendorMerge
		} else {
			r.Action = schema.ActionVendor
		}
		r.Syms = names
		r.Origin = schema.TrunkBranch
		r.OriginKnown = true
	}

	if hasInitial {
		gap := first.Date.Sub(initial.Date)
		if gap >= 0 && gap <= vendorImportTolerance {
			initial.Action = schema.ActionIgnore
		}
	}
}

// classifyDefaultBranch ignores trunk revisions hidden by a default branch.
func (fs *fileState) classifyDefaultBranch() {
	if fs.hist.Branch == "" {
		return
	}
	point := schema.TrunkPointOf(fs.hist.Branch)
	for rev := fs.hist.Head; rev != "" && rev != point; {
		r, ok := fs.recs[rev]
		if !ok {
			fs.warn("default branch %s: trunk chain broken at %s", fs.hist.Branch, rev)
			return
		}
		r.Action = schema.ActionIgnore
		rev = r.Next
	}
}

// classifyBranches walks every branch from its branch point and links each
// revision to the one it continues from.
func (fs *fileState) classifyBranches() {
	for _, parentRev := range sortedKeys(fs.recs) {
		parent := fs.recs[parentRev]
		for _, child := range parent.Branches {
			prefix := schema.BranchOf(child)
			names := fs.symBranches[prefix]
			origin, known := fs.originOf(prefix)

			prev := parent
			for rev := child; rev != ""; {
				r, ok := fs.recs[rev]
				if !ok {
					fs.warn("branch %s: missing revision %s", prefix, rev)
					break
				}
				r.Link = prev.Rev
				r.Syms = names
				r.Origin = origin
				r.OriginKnown = known
				if r.Action == "" {
					switch {
					case rev == child && r.Dead() && r.Date.Equal(parent.Date):
						r.Action = schema.ActionIgnore
					case fs.onDefaultPath(rev):
						r.Action = schema.ActionBranchMerge
					case len(names) == 0:
						r.Action = schema.ActionIgnore
					default:
						r.Action = schema.ActionBranch
					}
				}
				prev = r
				rev = r.Next
			}
		}
	}
}

// onDefaultPath reports whether rev lies on the path from the trunk to the
// default branch: on the default branch itself, or on one of its ancestor
// branches no later than the point the path leaves that branch.
func (fs *fileState) onDefaultPath(rev string) bool {
	def := fs.hist.Branch
	if def == "" {
		return false
	}
	branch := schema.BranchOf(rev)
	if branch == def {
		return true
	}
	for point := schema.BranchPrefixPoint(def); schema.RevDepth(point) > 0; point = schema.BranchPrefixPoint(schema.BranchOf(point)) {
		if branch == schema.BranchOf(point) {
			return schema.CompareRevs(rev, point) <= 0
		}
	}
	return false
}

// classifyRemaining settles 1.1 and every revision not reached so far.
func (fs *fileState) classifyRemaining() {
	if r, ok := fs.recs["1.1"]; ok && r.Dead() {
		r.Action = schema.ActionIgnore
	}
	for _, rev := range sortedKeys(fs.recs) {
		r := fs.recs[rev]
		if r.Depth() == 0 {
			r.OriginKnown = true
		}
		if r.Action != "" {
			continue
		}
		if r.Depth() > 0 {
			// Not reachable from any branch point, so there is no history to attach it to.
			fs.warn("revision %s is not reachable from its branch point", rev)
			r.Action = schema.ActionIgnore
			continue
		}
		r.Action = schema.ActionNormal
	}
}

// originOf returns the name of the branch a branch number sprouts from.
func (fs *fileState) originOf(prefix string) (string, bool) {
	point := schema.BranchPrefixPoint(prefix)
	if schema.RevDepth(point) == 0 {
		return schema.TrunkBranch, true
	}
	parent := schema.BranchOf(point)
	if schema.IsVendorBranch(parent) {
		return schema.TrunkBranch, true
	}
	if names := fs.symBranches[parent]; len(names) > 0 {
		return names[0], true
	}
	return "", false
}

// branchTags lists the branch symbols whose branch point exists.
func (fs *fileState) branchTags() []schema.BranchTag {
	tags := make([]schema.BranchTag, 0, len(fs.symBranches))
	for _, prefix := range sortedKeys(fs.symBranches) {
		vendor := schema.IsVendorBranch(prefix)
		point := schema.BranchPrefixPoint(prefix)
		if _, ok := fs.recs[point]; !ok && !vendor {
			continue
		}
		parent, known := fs.originOf(prefix)
		tags = append(tags, schema.BranchTag{
			Names:       fs.symBranches[prefix],
			Prefix:      prefix,
			Point:       point,
			Parent:      parent,
			ParentKnown: known,
			Vendor:      vendor,
		})
	}
	return tags
}

// sortedKeys returns the keys of a revision-keyed map in numeric revision order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return schema.CompareRevs(keys[i], keys[j]) < 0
	})
	return keys
}
