package core

import (
	"context"
	"fmt"
	"time"

	"github.com/seanfarley/fromcvs/schema"
)

// Scanner walks a module, classifies every revision file and pools the
// revisions newer than the watermark.
type Scanner struct {
	p          *Pipeline
	classifier *Classifier
	topo       *Topology
	watermark  time.Time
	stats      schema.ScanStats
}

// NewScanner creates a scanner feeding topo. topo may be nil when only the
// revision pool is wanted.
func NewScanner(p *Pipeline, classifier *Classifier, topo *Topology, watermark time.Time) *Scanner {
	return &Scanner{p: p, classifier: classifier, topo: topo, watermark: watermark}
}

// Stats returns the counters of the scan so far.
func (s *Scanner) Stats() schema.ScanStats {
	return s.stats
}

// Scan returns the revision pool of module.
func (s *Scanner) Scan(ctx context.Context, module string) ([]*schema.RevisionRecord, error) {
	var pool []*schema.RevisionRecord
	lastDir := ""
	first := true

	err := s.p.Source.Walk(ctx, module, func(f schema.SourceFile) error {
		if first || f.Dir != lastDir {
			s.p.Log.Infof("scanning %s", displayDir(f.Dir))
			s.stats.Directories++
			lastDir, first = f.Dir, false
		}
		// Files untouched since the last run carry no new revisions.
		if !s.watermark.IsZero() && f.ModTime.Before(s.watermark) {
			s.stats.Skipped++
			return nil
		}

		hist, err := s.p.Source.Open(ctx, f.Path)
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Path, err)
		}
		s.stats.Files++

		fc := s.classifier.Classify(f.Path, hist)
		s.stats.Warnings += fc.Warnings
		if s.topo != nil {
			s.topo.Register(fc)
		}
		for _, r := range fc.Revisions {
			// Ignored revisions never reach a changeset.
			if r.Action != schema.ActionIgnore && r.Date.After(s.watermark) {
				pool = append(pool, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.stats.Revisions = len(pool)
	return pool, nil
}

func displayDir(dir string) string {
	if dir == "" || dir == "." {
		return "/"
	}
	return dir
}
