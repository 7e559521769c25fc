package outwriter

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
)

const statusTimeFormat = "2006-01-02 15:04:05"

// WriteIndexStatus prints index status information.
func WriteIndexStatus(status schema.IndexStatus, cfg *contract.Config) error {
	if cfg.Output == schema.JSONOut {
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, status)
		}, "Wrote JSON")
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return writeIndexStatusText(w, status)
	}, "Wrote status")
}

func writeIndexStatusText(w io.Writer, status schema.IndexStatus) error {
	lines := []string{
		fmt.Sprintf("Index Backend: %s", status.Backend),
		fmt.Sprintf("Connected: %t", status.Connected),
	}
	if status.Connected {
		if status.Database != "" {
			lines = append(lines, fmt.Sprintf("Database: %s", status.Database))
		}
		if status.SourceRoot != "" {
			lines = append(lines, fmt.Sprintf("Source Root: %s", status.SourceRoot))
		}
		if len(status.Modules) > 0 {
			lines = append(lines, fmt.Sprintf("Modules: %v", status.Modules))
		}
		lines = append(lines, fmt.Sprintf("Total Changesets: %d", status.TotalChangesets))
		if status.TotalChangesets > 0 {
			lines = append(lines,
				fmt.Sprintf("Last Changeset: %s", status.LastChangeset.UTC().Format(statusTimeFormat)),
				fmt.Sprintf("Oldest Changeset: %s", status.OldestChangeset.UTC().Format(statusTimeFormat)))
		}
		tables := make([]string, 0, len(status.TableSizes))
		for table := range status.TableSizes {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		lines = append(lines, "Table Sizes:")
		for _, table := range tables {
			lines = append(lines, fmt.Sprintf("  %s: %d rows", table, status.TableSizes[table]))
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteConversionSummary prints the statistics of a conversion run.
func WriteConversionSummary(summary *schema.ConversionSummary, cfg *contract.Config) error {
	if cfg.Output == schema.JSONOut {
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, summaryJSON(summary))
		}, "Wrote JSON")
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return writeSummaryText(w, summary)
	}, "Wrote summary")
}

func writeSummaryText(w io.Writer, s *schema.ConversionSummary) error {
	if !s.Watermark.IsZero() {
		if _, err := fmt.Fprintf(w, "Continued after %s\n", s.Watermark.UTC().Format(statusTimeFormat)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, `Files scanned:     %d (%d unchanged)
Revisions:         %d
Changesets:        %d (%d ignored)
Commits:           %d
Merges:            %d (%d forwarded)
Branches created:  %d
Warnings:          %d
Completed in %v
`,
		s.Scan.Files, s.Scan.Skipped,
		s.Scan.Revisions,
		s.Replay.Changesets, s.Replay.Ignored,
		s.Replay.Commits,
		s.Replay.Merges, s.Replay.ForwardMerges,
		s.Replay.BranchesCreated,
		s.Scan.Warnings,
		s.Duration.Round(time.Millisecond))
	return err
}

type jsonSummary struct {
	Watermark       *time.Time `json:"watermark,omitempty"`
	Directories     int        `json:"directories"`
	Files           int        `json:"files"`
	Skipped         int        `json:"skipped"`
	Revisions       int        `json:"revisions"`
	Warnings        int        `json:"warnings"`
	Changesets      int        `json:"changesets"`
	Ignored         int        `json:"ignored"`
	Commits         int        `json:"commits"`
	Merges          int        `json:"merges"`
	ForwardMerges   int        `json:"forward_merges"`
	BranchesCreated int        `json:"branches_created"`
	DurationMs      int64      `json:"duration_ms"`
}

func summaryJSON(s *schema.ConversionSummary) jsonSummary {
	out := jsonSummary{
		Directories:     s.Scan.Directories,
		Files:           s.Scan.Files,
		Skipped:         s.Scan.Skipped,
		Revisions:       s.Scan.Revisions,
		Warnings:        s.Scan.Warnings,
		Changesets:      s.Replay.Changesets,
		Ignored:         s.Replay.Ignored,
		Commits:         s.Replay.Commits,
		Merges:          s.Replay.Merges,
		ForwardMerges:   s.Replay.ForwardMerges,
		BranchesCreated: s.Replay.BranchesCreated,
		DurationMs:      s.Duration.Milliseconds(),
	}
	if !s.Watermark.IsZero() {
		wm := s.Watermark.UTC()
		out.Watermark = &wm
	}
	return out
}
