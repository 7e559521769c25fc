// Package outwriter has output and writer logic.
package outwriter

import (
	"time"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API for the command layer.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteSets prints an aggregated changeset listing using the configured output format.
func (ow *OutWriter) WriteSets(sets []*schema.Changeset, stats schema.ScanStats, cfg *contract.Config, duration time.Duration) error {
	return WriteSetResults(sets, stats, cfg, duration)
}

// WriteChangeset prints a looked-up changeset using the configured output format.
func (ow *OutWriter) WriteChangeset(view *schema.ChangesetView, cfg *contract.Config) error {
	return WriteChangesetView(view, cfg)
}

// WriteSummary prints the result of a conversion run.
func (ow *OutWriter) WriteSummary(summary *schema.ConversionSummary, cfg *contract.Config) error {
	return WriteConversionSummary(summary, cfg)
}

// WriteIndexStatus prints index status information.
func (ow *OutWriter) WriteIndexStatus(status schema.IndexStatus, cfg *contract.Config) error {
	return WriteIndexStatus(status, cfg)
}
