package core

import (
	"context"
	"fmt"
	"time"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
)

// Replayer turns ordered changesets into destination operations.
type Replayer struct {
	p      *Pipeline
	topo   *Topology
	window time.Duration

	stats   schema.ReplayStats
	prevMax time.Time
	content map[string]*schema.FileContent // file@rev -> expanded content, per changeset
}

// NewReplayer creates a replay driver. window is the quiet gap after which the
// destination is asked to flush.
func NewReplayer(p *Pipeline, topo *Topology, window time.Duration) *Replayer {
	return &Replayer{p: p, topo: topo, window: window}
}

// Stats returns the counters of the replay so far.
func (r *Replayer) Stats() schema.ReplayStats {
	s := r.stats
	s.BranchesCreated = r.topo.Created()
	return s
}

// Replay applies every changeset in order and finally creates the branches
// still held off.
func (r *Replayer) Replay(ctx context.Context, sets []*schema.Changeset) error {
	for _, cs := range sets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.replayOne(ctx, cs); err != nil {
			return fmt.Errorf("changeset by %s on %s at %s: %w",
				cs.Author, displayBranch(cs.Branch), cs.MinDate.Format(time.RFC3339), err)
		}
	}

	end := r.stats.LastDate
	if end.IsZero() {
		end = r.topo.watermark
	}
	if err := r.topo.Finalize(end); err != nil {
		return fmt.Errorf("create remaining branches: %w", err)
	}
	return nil
}

func (r *Replayer) replayOne(ctx context.Context, cs *schema.Changeset) error {
	r.stats.Changesets++
	if cs.Ignore {
		r.stats.Ignored++
		r.p.Log.Debugf("skipping ignored changeset by %s at %s", cs.Author, cs.MinDate.Format(time.RFC3339))
		return nil
	}

	if !r.prevMax.IsZero() && cs.MinDate.Sub(r.prevMax) > r.window {
		if err := r.p.Dest.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		r.stats.Flushes++
	}
	r.prevMax = cs.MaxDate
	r.stats.LastDate = cs.MaxDate
	r.content = make(map[string]*schema.FileContent, cs.Len())

	req, err := r.request(ctx, cs)
	if err != nil {
		return err
	}

	// Revisions that also belong on the mainline are applied there directly
	// when the changeset itself is on the mainline.
	mainline := cs.Branch == schema.TrunkBranch
	var own, merged []*schema.RevisionRecord
	for _, rev := range cs.Revisions {
		if rev.Action == schema.ActionIgnore {
			continue
		}
		if mainline && rev.Action == schema.ActionVendor {
			r.p.Log.Debugf("%s %s: vendor revision without a branch name, not replayed", rev.File, rev.Rev)
			continue
		}
		own = append(own, rev)
		if !mainline && rev.Action.IsMerge() {
			merged = append(merged, rev)
		}
	}
	if len(own) == 0 {
		r.stats.Ignored++
		return nil
	}

	// --- 1. Commit on the changeset's own branch ---
	if err := r.topo.EnsureCreated(cs.Branch, cs.MinDate); err != nil {
		return err
	}
	if err := r.topo.Prepare(cs.Branch, own, cs.MinDate); err != nil {
		return err
	}
	if err := r.p.Dest.SelectBranch(cs.Branch); err != nil {
		return fmt.Errorf("select branch %s: %w", displayBranch(cs.Branch), err)
	}
	if err := r.apply(ctx, own); err != nil {
		return err
	}
	req.Revisions = own
	id, err := r.p.Dest.Commit(req)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.stats.Commits++
	if err := r.forward(ctx, id, req, r.topo.NoteCommit(cs.Branch, own)); err != nil {
		return err
	}

	// --- 2. Carry merge revisions onto the mainline ---
	if len(merged) == 0 {
		return nil
	}
	if err := r.topo.Prepare(schema.TrunkBranch, merged, cs.MinDate); err != nil {
		return err
	}
	if err := r.p.Dest.SelectBranch(schema.TrunkBranch); err != nil {
		return fmt.Errorf("select mainline: %w", err)
	}
	if err := r.apply(ctx, merged); err != nil {
		return err
	}
	req.Revisions = merged
	mid, err := r.p.Dest.Merge(id, req)
	if err != nil {
		return fmt.Errorf("merge onto mainline: %w", err)
	}
	r.stats.Merges++
	return r.forward(ctx, mid, req, r.topo.NoteCommit(schema.TrunkBranch, merged))
}

// forward delivers revisions committed as parentID onto branches that still owe them.
func (r *Replayer) forward(ctx context.Context, parentID string, req schema.CommitRequest, merges []ForwardMerge) error {
	for _, fm := range merges {
		if err := r.p.Dest.SelectBranch(fm.Branch); err != nil {
			return fmt.Errorf("select branch %s: %w", fm.Branch, err)
		}
		if err := r.apply(ctx, fm.Revisions); err != nil {
			return err
		}
		req.Revisions = fm.Revisions
		id, err := r.p.Dest.Merge(parentID, req)
		if err != nil {
			return fmt.Errorf("forward merge onto %s: %w", fm.Branch, err)
		}
		r.stats.ForwardMerges++
		r.p.Log.Debugf("forward merged %d revisions onto %s", len(fm.Revisions), fm.Branch)
		if err := r.forward(ctx, id, req, r.topo.NoteCommit(fm.Branch, fm.Revisions)); err != nil {
			return err
		}
	}
	return nil
}

// apply stages the revisions on the selected branch.
func (r *Replayer) apply(ctx context.Context, revs []*schema.RevisionRecord) error {
	for _, rev := range revs {
		if rev.Dead() {
			if err := r.p.Dest.Remove(rev.File, rev); err != nil {
				return fmt.Errorf("remove %s %s: %w", rev.File, rev.Rev, err)
			}
			continue
		}
		content, err := r.materialize(ctx, rev)
		if err != nil {
			return err
		}
		if err := r.p.Dest.Update(rev.File, content, rev); err != nil {
			return fmt.Errorf("update %s %s: %w", rev.File, rev.Rev, err)
		}
	}
	return nil
}

func (r *Replayer) materialize(ctx context.Context, rev *schema.RevisionRecord) (*schema.FileContent, error) {
	key := rev.File + "@" + rev.Rev
	if c, ok := r.content[key]; ok {
		return c, nil
	}
	c, err := r.p.Source.Materialize(ctx, rev.File, rev.Rev)
	if err != nil {
		return nil, fmt.Errorf("materialize %s %s: %w", rev.File, rev.Rev, err)
	}
	if r.p.Expander != nil {
		expanded := *c
		expanded.Data = r.p.Expander.Expand(c, rev)
		c = &expanded
	}
	r.content[key] = c
	return c, nil
}

// request builds the commit metadata shared by every commit of a changeset.
func (r *Replayer) request(ctx context.Context, cs *schema.Changeset) (schema.CommitRequest, error) {
	first := cs.Revisions[0]
	raw, err := r.p.Source.Log(ctx, first.File, first.Rev)
	if err != nil {
		return schema.CommitRequest{}, fmt.Errorf("log of %s %s: %w", first.File, first.Rev, err)
	}
	msg, err := r.p.Decoder.Decode(raw)
	if err != nil {
		return schema.CommitRequest{}, fmt.Errorf("log of %s %s: %w", first.File, first.Rev, err)
	}
	name, email := r.p.Authors.Resolve(cs.Author)
	return schema.CommitRequest{
		Author:  name,
		Email:   email,
		Date:    cs.MaxDate,
		Message: msg,
	}, nil
}

// passthroughDecoder keeps log messages as they are.
type passthroughDecoder struct{}

func (passthroughDecoder) Decode(raw string) (string, error) { return raw, nil }

// loginAuthors uses the login as both name and email.
type loginAuthors struct{}

func (loginAuthors) Resolve(login string) (string, string) { return login, login }

var (
	_ contract.TextDecoder    = passthroughDecoder{}
	_ contract.AuthorResolver = loginAuthors{}
)
