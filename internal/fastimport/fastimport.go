// Package fastimport writes changesets to a git repository through a
// git fast-import stream.
package fastimport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emirpasic/gods/sets/treeset"
	libfastimport "github.com/rcowham/go-libgitfastimport"
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
)

// branch is the in-run state of one git branch.
type branch struct {
	tip    string       // commit mark or hash, empty before the first commit
	files  *treeset.Set // nil until listed
	pickup bool         // existed before the run and has not been committed to yet
	unborn bool         // touched but neither created nor committed to
}

type fileOp struct {
	path libfastimport.Path
	mode libfastimport.Mode
	mark int
}

// bufferedStream batches backend writes until Flush.
type bufferedStream struct {
	*bufio.Writer
	stream io.Closer
}

func (s bufferedStream) Close() error {
	if err := s.Flush(); err != nil {
		_ = s.stream.Close()
		return err
	}
	return s.stream.Close()
}

// Dest is a Destination emitting a fast-import stream.
type Dest struct {
	repo  string
	trunk string
	git   contract.GitClient
	log   logrus.FieldLogger

	ctx     context.Context
	stream  io.WriteCloser
	out     *bufio.Writer
	backend *libfastimport.Backend
	err     error

	// Commit marks increase monotonically. Blob marks restart above the
	// last commit mark for every commit, so only commit marks stay live.
	commitMark int
	fileMark   int

	branches  map[string]*branch
	pickedUp  map[string]bool // tips found at Start
	watermark time.Time
	current   string
	modified  []fileOp
	deleted   []libfastimport.Path
}

var _ contract.Destination = &Dest{} // Compile-time check

// New creates a fast-import destination for the repository at repo.
// trunk names the git branch the mainline is written to.
func New(repo, trunk string, git contract.GitClient, log logrus.FieldLogger) *Dest {
	if log == nil {
		log = contract.Logger
	}
	return &Dest{
		repo:     repo,
		trunk:    trunk,
		git:      git,
		log:      log,
		ctx:      context.Background(),
		fileMark: 1,
		branches: make(map[string]*branch),
		pickedUp: make(map[string]bool),
	}
}

// Start implements the Destination interface. A missing repository is initialized.
func (d *Dest) Start(ctx context.Context) error {
	d.ctx = ctx
	if _, err := d.git.Run(ctx, d.repo, "rev-parse", "--git-dir"); err != nil {
		if err := os.MkdirAll(d.repo, 0o755); err != nil {
			return fmt.Errorf("%w: %v", contract.ErrDestination, err)
		}
		if _, err := d.git.Run(ctx, d.repo, "init", "-q"); err != nil {
			return fmt.Errorf("%w: %v", contract.ErrDestination, err)
		}
		d.log.Infof("initialized git repository %s", d.repo)
	}

	tips, err := d.git.ListBranches(ctx, d.repo)
	if err != nil {
		return fmt.Errorf("%w: %v", contract.ErrDestination, err)
	}
	for _, tip := range tips {
		d.branches[tip.Name] = &branch{tip: tip.Hash, pickup: true}
		d.pickedUp[tip.Hash] = true
		if tip.Committed.After(d.watermark) {
			d.watermark = tip.Committed
		}
	}

	stream, err := d.git.FastImport(ctx, d.repo)
	if err != nil {
		return fmt.Errorf("%w: %v", contract.ErrDestination, err)
	}
	d.stream = stream
	d.out = bufio.NewWriter(stream)
	d.backend = libfastimport.NewBackend(bufferedStream{Writer: d.out, stream: stream}, nil, nil)
	d.current = d.trunk
	return nil
}

// LastWatermark implements the Destination interface.
func (d *Dest) LastWatermark() (time.Time, error) {
	return d.watermark, nil
}

// FileList implements the Destination interface.
func (d *Dest) FileList(name string) ([]string, error) {
	if name == contract.AllBranches {
		union := treeset.NewWithStringComparator()
		for gname := range d.branches {
			files, err := d.files(gname)
			if err != nil {
				return nil, err
			}
			union.Add(files.Values()...)
		}
		return values(union), nil
	}
	files, err := d.files(d.gitName(name))
	if err != nil {
		return nil, err
	}
	return values(files), nil
}

// HasBranch implements the Destination interface.
func (d *Dest) HasBranch(name string) bool {
	b, ok := d.branches[d.gitName(name)]
	return ok && !b.unborn
}

// CreateBranch implements the Destination interface.
func (d *Dest) CreateBranch(name, parent string, vendor bool, at time.Time) error {
	gname, gparent := d.gitName(name), d.gitName(parent)
	if d.HasBranch(name) {
		return fmt.Errorf("%w: %s", contract.ErrBranchExists, gname)
	}

	b := &branch{files: treeset.NewWithStringComparator()}
	reset := libfastimport.CmdReset{RefName: refName(gname)}
	if !vendor {
		files, err := d.files(gparent)
		if err != nil {
			return err
		}
		b.files.Add(files.Values()...)
		if p := d.branches[gparent]; p != nil && p.tip != "" {
			b.tip = p.tip
			reset.CommitIsh = p.tip
		}
	}
	d.do(reset)
	d.branches[gname] = b
	d.log.Debugf("reset %s from %s at %s", gname, gparent, at.Format(contract.DateTimeFormat))
	return d.failed()
}

// SelectBranch implements the Destination interface.
func (d *Dest) SelectBranch(name string) error {
	d.current = d.gitName(name)
	return nil
}

// Update implements the Destination interface.
func (d *Dest) Update(path string, content *schema.FileContent, _ *schema.RevisionRecord) error {
	files, err := d.files(d.current)
	if err != nil {
		return err
	}
	d.fileMark++
	d.do(libfastimport.CmdBlob{Mark: d.fileMark, Data: string(content.Data)})
	d.modified = append(d.modified, fileOp{path: libfastimport.Path(path), mode: gitMode(content.Mode), mark: d.fileMark})
	files.Add(path)
	return d.failed()
}

// Remove implements the Destination interface.
func (d *Dest) Remove(path string, _ *schema.RevisionRecord) error {
	files, err := d.files(d.current)
	if err != nil {
		return err
	}
	d.deleted = append(d.deleted, libfastimport.Path(path))
	files.Remove(path)
	return nil
}

// Commit implements the Destination interface.
func (d *Dest) Commit(req schema.CommitRequest) (string, error) {
	return d.commit(req, "")
}

// Merge implements the Destination interface. parentID must be a commit of
// this run or a branch tip found at Start.
func (d *Dest) Merge(parentID string, req schema.CommitRequest) (string, error) {
	if !d.knownCommit(parentID) {
		return "", fmt.Errorf("%w: merge parent %q is not a known commit", contract.ErrUnexpectedParent, parentID)
	}
	return d.commit(req, parentID)
}

// Flush implements the Destination interface.
func (d *Dest) Flush() error {
	if d.out == nil {
		return nil
	}
	if err := d.out.Flush(); err != nil && d.err == nil {
		d.err = err
	}
	return d.failed()
}

// Finish implements the Destination interface.
func (d *Dest) Finish() error {
	if d.stream == nil {
		return nil
	}
	flushErr := d.Flush()
	closeErr := d.stream.Close()
	d.stream = nil
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %v", contract.ErrDestination, closeErr)
	}
	return nil
}

func (d *Dest) commit(req schema.CommitRequest, mergeFrom string) (string, error) {
	if b, ok := d.branches[d.current]; d.current != d.trunk && (!ok || b.unborn) {
		return "", fmt.Errorf("%w: branch %s was never created", contract.ErrUnexpectedParent, d.current)
	}
	if _, err := d.files(d.current); err != nil {
		return "", err
	}
	b := d.branches[d.current]
	b.unborn = false

	d.commitMark++
	cmd := libfastimport.CmdCommit{
		Ref:       refName(d.current),
		Mark:      d.commitMark,
		Committer: libfastimport.Ident{Name: req.Author, Email: req.Email, Time: req.Date.UTC()},
		Msg:       req.Message,
	}
	if b.pickup {
		// Make fast-import continue the existing ref of an incremental run.
		cmd.From = refName(d.current) + "^0"
		b.pickup = false
	}
	if mergeFrom != "" {
		cmd.Merge = []string{mergeFrom}
	}
	d.do(cmd)
	for _, p := range d.deleted {
		d.do(libfastimport.FileDelete{Path: p})
	}
	for _, op := range d.modified {
		d.do(libfastimport.FileModify{Mode: op.mode, DataRef: ":" + strconv.Itoa(op.mark), Path: op.path})
	}
	d.do(libfastimport.CmdCommitEnd{})

	id := ":" + strconv.Itoa(d.commitMark)
	b.tip = id
	d.deleted = nil
	d.modified = nil
	d.fileMark = d.commitMark + 1
	if req.Date.After(d.watermark) {
		d.watermark = req.Date
	}
	if err := d.failed(); err != nil {
		return "", err
	}
	return id, nil
}

// knownCommit reports whether id names a commit mark already issued or a
// pre-existing branch tip.
func (d *Dest) knownCommit(id string) bool {
	if mark, ok := strings.CutPrefix(id, ":"); ok {
		n, err := strconv.Atoi(mark)
		return err == nil && n >= 1 && n <= d.commitMark
	}
	return d.pickedUp[id]
}

// files returns the file set of a git branch, listing pre-existing branches on first use.
func (d *Dest) files(gname string) (*treeset.Set, error) {
	b := d.branches[gname]
	if b == nil {
		b = &branch{files: treeset.NewWithStringComparator(), unborn: true}
		d.branches[gname] = b
	}
	if b.files != nil {
		return b.files, nil
	}
	listed, err := d.git.ListFiles(d.ctx, d.repo, "refs/heads/"+gname)
	if err != nil {
		return nil, fmt.Errorf("%w: list files of %s: %v", contract.ErrDestination, gname, err)
	}
	b.files = treeset.NewWithStringComparator()
	for _, f := range listed {
		b.files.Add(f)
	}
	return b.files, nil
}

func (d *Dest) gitName(name string) string {
	if name == schema.TrunkBranch {
		return d.trunk
	}
	return name
}

func refName(gname string) string {
	return "refs/heads/" + gname
}

// do hands one command to the fast-import backend, keeping the first error.
func (d *Dest) do(cmd libfastimport.Cmd) {
	if d.err != nil {
		return
	}
	if d.backend == nil {
		d.err = errors.New("stream not started")
		return
	}
	d.err = d.backend.Do(cmd)
}

func (d *Dest) failed() error {
	if d.err == nil {
		return nil
	}
	return fmt.Errorf("%w: fast-import stream: %v", contract.ErrDestination, d.err)
}

// gitMode maps a file mode to the two regular modes git tracks.
func gitMode(mode os.FileMode) libfastimport.Mode {
	if mode.Perm()&0o111 != 0 {
		return libfastimport.ModeExe
	}
	return libfastimport.ModeFil
}

func values(set *treeset.Set) []string {
	out := make([]string, 0, set.Size())
	it := set.Iterator()
	for it.Next() {
		out = append(out, it.Value().(string))
	}
	return out
}
