// Package core has the conversion engine: classification, aggregation, branch
// topology and replay.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/sirupsen/logrus"
)

// Pipeline bundles the collaborators of one conversion.
type Pipeline struct {
	Source   contract.ContentSource
	Dest     contract.Destination    // nil for a dry run
	Expander contract.Expander       // nil keeps keywords unexpanded
	Decoder  contract.TextDecoder    // nil keeps log messages as they are
	Authors  contract.AuthorResolver // nil uses logins as names
	Log      logrus.FieldLogger
}

// withDefaults fills the optional collaborators.
func (p *Pipeline) withDefaults() *Pipeline {
	out := *p
	if out.Decoder == nil {
		out.Decoder = passthroughDecoder{}
	}
	if out.Authors == nil {
		out.Authors = loginAuthors{}
	}
	if out.Log == nil {
		out.Log = contract.Logger
	}
	return &out
}

// Convert scans cfg.Module, aggregates the new history into changesets and
// replays them into p.Dest.
func Convert(ctx context.Context, cfg *contract.Config, p *Pipeline) (*schema.ConversionSummary, error) {
	if p.Source == nil || p.Dest == nil {
		return nil, errors.New("convert needs a content source and a destination")
	}
	p = p.withDefaults()
	start := time.Now()

	// --- 1. Open the destination and find where the last run stopped ---
	if err := p.Dest.Start(ctx); err != nil {
		return nil, fmt.Errorf("start destination: %w", err)
	}
	watermark, err := p.Dest.LastWatermark()
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	if !watermark.IsZero() {
		p.Log.Infof("continuing after %s", watermark.Format(contract.DateTimeFormat))
	}

	// --- 2. Scan and classify ---
	syms := NewSymbolTable()
	topo := NewTopology(p.Dest, cfg.MergeSymbols, watermark, p.Log)
	scanner := NewScanner(p, NewClassifier(syms, cfg.IgnoreBranches, p.Log), topo, watermark)
	pool, err := scanner.Scan(ctx, cfg.Module)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", cfg.Module, err)
	}
	if err := topo.Build(); err != nil {
		return nil, fmt.Errorf("load branches: %w", err)
	}

	// --- 3. Aggregate ---
	sets := NewAggregator(cfg.Window, cfg.WindowMode, topo, p.Log).Aggregate(pool)
	p.Log.Infof("%d revisions in %d changesets", len(pool), len(sets))

	// --- 4. Replay ---
	replayer := NewReplayer(p, topo, cfg.Window)
	if err := replayer.Replay(ctx, sets); err != nil {
		return nil, err
	}
	if err := p.Dest.Finish(); err != nil {
		return nil, fmt.Errorf("finish destination: %w", err)
	}

	return &schema.ConversionSummary{
		Watermark: watermark,
		Scan:      scanner.Stats(),
		Replay:    replayer.Stats(),
		Duration:  time.Since(start),
	}, nil
}

// CollectChangesets scans and aggregates cfg.Module without a destination.
// It returns the changesets with the branches they imply.
func CollectChangesets(ctx context.Context, cfg *contract.Config, p *Pipeline) ([]*schema.Changeset, []schema.BranchRecord, schema.ScanStats, error) {
	if p.Source == nil {
		return nil, nil, schema.ScanStats{}, errors.New("no content source")
	}
	p = p.withDefaults()

	topo := NewTopology(nil, cfg.MergeSymbols, time.Time{}, p.Log)
	scanner := NewScanner(p, NewClassifier(NewSymbolTable(), cfg.IgnoreBranches, p.Log), topo, time.Time{})
	pool, err := scanner.Scan(ctx, cfg.Module)
	if err != nil {
		return nil, nil, scanner.Stats(), fmt.Errorf("scan %s: %w", cfg.Module, err)
	}
	if err := topo.Build(); err != nil {
		return nil, nil, scanner.Stats(), err
	}
	sets := NewAggregator(cfg.Window, cfg.WindowMode, topo, p.Log).Aggregate(pool)
	return sets, topo.Branches(), scanner.Stats(), nil
}
