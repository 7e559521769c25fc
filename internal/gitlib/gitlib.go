// Package gitlib writes changesets straight into a git object store
// through go-git, without an external git process.
package gitlib

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
)

type entry struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

// branch is the in-memory tree of one git branch.
type branch struct {
	head   plumbing.Hash
	files  *treemap.Map // path -> entry, nil until loaded
	unborn bool
}

// Dest is a Destination backed by a go-git repository.
type Dest struct {
	repo  *git.Repository
	trunk string
	log   logrus.FieldLogger

	branches  map[string]*branch
	watermark time.Time
	current   string
}

var _ contract.Destination = &Dest{} // Compile-time check

// Open opens the repository at dir, initializing a new one when none exists.
func Open(dir, trunk string, log logrus.FieldLogger) (*Dest, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", contract.ErrDestination, dir, err)
	}
	return New(repo, trunk, log), nil
}

// New wraps an open repository. trunk names the branch the mainline is written to.
func New(repo *git.Repository, trunk string, log logrus.FieldLogger) *Dest {
	if log == nil {
		log = contract.Logger
	}
	return &Dest{
		repo:     repo,
		trunk:    trunk,
		log:      log,
		branches: make(map[string]*branch),
		current:  trunk,
	}
}

// Start implements the Destination interface.
func (d *Dest) Start(_ context.Context) error {
	refs, err := d.repo.Branches()
	if err != nil {
		return fmt.Errorf("%w: list branches: %v", contract.ErrDestination, err)
	}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		c, err := d.repo.CommitObject(ref.Hash())
		if err != nil {
			return fmt.Errorf("branch %s: %w", ref.Name().Short(), err)
		}
		d.branches[ref.Name().Short()] = &branch{head: ref.Hash()}
		if c.Committer.When.After(d.watermark) {
			d.watermark = c.Committer.When
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", contract.ErrDestination, err)
	}

	// Point an unborn HEAD at the trunk so checkouts land on the mainline.
	if _, err := d.repo.Reference(plumbing.HEAD, true); err != nil {
		head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(d.trunk))
		if err := d.repo.Storer.SetReference(head); err != nil {
			return fmt.Errorf("%w: set HEAD: %v", contract.ErrDestination, err)
		}
	}
	return nil
}

// LastWatermark implements the Destination interface.
func (d *Dest) LastWatermark() (time.Time, error) {
	return d.watermark, nil
}

// FileList implements the Destination interface.
func (d *Dest) FileList(name string) ([]string, error) {
	if name != contract.AllBranches {
		files, err := d.files(d.gitName(name))
		if err != nil {
			return nil, err
		}
		return keys(files), nil
	}
	union := treemap.NewWithStringComparator()
	for gname := range d.branches {
		files, err := d.files(gname)
		if err != nil {
			return nil, err
		}
		for _, k := range files.Keys() {
			union.Put(k, nil)
		}
	}
	return keys(union), nil
}

// HasBranch implements the Destination interface.
func (d *Dest) HasBranch(name string) bool {
	b, ok := d.branches[d.gitName(name)]
	return ok && !b.unborn
}

// CreateBranch implements the Destination interface.
func (d *Dest) CreateBranch(name, parent string, vendor bool, _ time.Time) error {
	gname, gparent := d.gitName(name), d.gitName(parent)
	if d.HasBranch(name) {
		return fmt.Errorf("%w: %s", contract.ErrBranchExists, gname)
	}
	b := &branch{files: treemap.NewWithStringComparator()}
	if !vendor {
		files, err := d.files(gparent)
		if err != nil {
			return err
		}
		it := files.Iterator()
		for it.Next() {
			b.files.Put(it.Key(), it.Value())
		}
		b.head = d.branches[gparent].head
	}
	d.branches[gname] = b
	if !b.head.IsZero() {
		if err := d.setRef(gname, b.head); err != nil {
			return err
		}
	}
	d.log.Debugf("created %s at %s", gname, b.head)
	return nil
}

// SelectBranch implements the Destination interface.
func (d *Dest) SelectBranch(name string) error {
	d.current = d.gitName(name)
	return nil
}

// Update implements the Destination interface.
func (d *Dest) Update(file string, content *schema.FileContent, _ *schema.RevisionRecord) error {
	files, err := d.files(d.current)
	if err != nil {
		return err
	}
	obj := d.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content.Data)))
	w, err := obj.Writer()
	if err != nil {
		return fmt.Errorf("%w: %v", contract.ErrDestination, err)
	}
	if _, err := w.Write(content.Data); err != nil {
		_ = w.Close()
		return fmt.Errorf("%w: write blob %s: %v", contract.ErrDestination, file, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", contract.ErrDestination, err)
	}
	h, err := d.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return fmt.Errorf("%w: store blob %s: %v", contract.ErrDestination, file, err)
	}
	files.Put(file, entry{hash: h, mode: fileMode(content.Mode)})
	return nil
}

// Remove implements the Destination interface.
func (d *Dest) Remove(file string, _ *schema.RevisionRecord) error {
	files, err := d.files(d.current)
	if err != nil {
		return err
	}
	files.Remove(file)
	return nil
}

// Commit implements the Destination interface.
func (d *Dest) Commit(req schema.CommitRequest) (string, error) {
	return d.commit(req, plumbing.ZeroHash)
}

// Merge implements the Destination interface.
func (d *Dest) Merge(parentID string, req schema.CommitRequest) (string, error) {
	h := plumbing.NewHash(parentID)
	if h.IsZero() || h.String() != strings.ToLower(parentID) {
		return "", fmt.Errorf("%w: merge parent %q is not a commit hash", contract.ErrUnexpectedParent, parentID)
	}
	if _, err := d.repo.CommitObject(h); err != nil {
		return "", fmt.Errorf("%w: merge parent %s: %v", contract.ErrUnexpectedParent, parentID, err)
	}
	return d.commit(req, h)
}

// Flush implements the Destination interface. Objects are stored as they are written.
func (d *Dest) Flush() error {
	return nil
}

// Finish implements the Destination interface.
func (d *Dest) Finish() error {
	return nil
}

func (d *Dest) commit(req schema.CommitRequest, mergeFrom plumbing.Hash) (string, error) {
	if err := d.checkCreated(d.current); err != nil {
		return "", err
	}
	files, err := d.files(d.current)
	if err != nil {
		return "", err
	}
	b := d.branches[d.current]

	root, err := d.writeTree(buildDir(files))
	if err != nil {
		return "", fmt.Errorf("%w: write tree: %v", contract.ErrDestination, err)
	}
	sig := object.Signature{Name: req.Author, Email: req.Email, When: req.Date}
	c := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   req.Message,
		TreeHash:  root,
	}
	if !b.head.IsZero() {
		c.ParentHashes = append(c.ParentHashes, b.head)
	}
	if !mergeFrom.IsZero() {
		c.ParentHashes = append(c.ParentHashes, mergeFrom)
	}

	obj := d.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	if err := c.Encode(obj); err != nil {
		return "", fmt.Errorf("%w: encode commit: %v", contract.ErrDestination, err)
	}
	h, err := d.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("%w: store commit: %v", contract.ErrDestination, err)
	}
	if err := d.setRef(d.current, h); err != nil {
		return "", err
	}
	b.head = h
	b.unborn = false
	if req.Date.After(d.watermark) {
		d.watermark = req.Date
	}
	return h.String(), nil
}

// checkCreated rejects commits to a branch that was neither created nor
// found in the repository. Only the mainline may be born by its first commit.
func (d *Dest) checkCreated(gname string) error {
	if gname == d.trunk {
		return nil
	}
	if b, ok := d.branches[gname]; !ok || b.unborn {
		return fmt.Errorf("%w: branch %s was never created", contract.ErrUnexpectedParent, gname)
	}
	return nil
}

// files returns the tree of a git branch, reading pre-existing heads on first use.
func (d *Dest) files(gname string) (*treemap.Map, error) {
	b := d.branches[gname]
	if b == nil {
		b = &branch{unborn: true}
		d.branches[gname] = b
	}
	if b.files != nil {
		return b.files, nil
	}
	b.files = treemap.NewWithStringComparator()
	if b.head.IsZero() {
		return b.files, nil
	}
	c, err := d.repo.CommitObject(b.head)
	if err != nil {
		return nil, fmt.Errorf("%w: branch %s: %v", contract.ErrDestination, gname, err)
	}
	iter, err := c.Files()
	if err != nil {
		return nil, fmt.Errorf("%w: branch %s: %v", contract.ErrDestination, gname, err)
	}
	err = iter.ForEach(func(f *object.File) error {
		b.files.Put(f.Name, entry{hash: f.Hash, mode: f.Mode})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: branch %s: %v", contract.ErrDestination, gname, err)
	}
	return b.files, nil
}

func (d *Dest) setRef(gname string, h plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(gname), h)
	if err := d.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("%w: update %s: %v", contract.ErrDestination, gname, err)
	}
	return nil
}

func (d *Dest) gitName(name string) string {
	if name == schema.TrunkBranch {
		return d.trunk
	}
	return name
}

// dir is one directory level of a tree being written.
type dir struct {
	files map[string]entry
	dirs  map[string]*dir
}

func newDir() *dir {
	return &dir{files: make(map[string]entry), dirs: make(map[string]*dir)}
}

func buildDir(files *treemap.Map) *dir {
	root := newDir()
	it := files.Iterator()
	for it.Next() {
		p := it.Key().(string)
		cur := root
		parent, base := path.Split(p)
		if parent != "" {
			for _, part := range strings.Split(strings.TrimSuffix(parent, "/"), "/") {
				next, ok := cur.dirs[part]
				if !ok {
					next = newDir()
					cur.dirs[part] = next
				}
				cur = next
			}
		}
		cur.files[base] = it.Value().(entry)
	}
	return root
}

// writeTree stores a directory and its subdirectories, returning the tree hash.
func (d *Dest) writeTree(n *dir) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(n.files)+len(n.dirs))
	for name, sub := range n.dirs {
		h, err := d.writeTree(sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h})
	}
	for name, e := range n.files {
		entries = append(entries, object.TreeEntry{Name: name, Mode: e.mode, Hash: e.hash})
	}
	// git orders directories as if their names ended in a slash.
	sort.Slice(entries, func(i, j int) bool {
		return sortName(entries[i]) < sortName(entries[j])
	})

	obj := d.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	tree := &object.Tree{Entries: entries}
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return d.repo.Storer.SetEncodedObject(obj)
}

func sortName(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// fileMode maps a file mode to the two regular modes git tracks.
func fileMode(mode os.FileMode) filemode.FileMode {
	if mode.Perm()&0o111 != 0 {
		return filemode.Executable
	}
	return filemode.Regular
}

func keys(m *treemap.Map) []string {
	out := make([]string, 0, m.Size())
	for _, k := range m.Keys() {
		out = append(out, k.(string))
	}
	return out
}
