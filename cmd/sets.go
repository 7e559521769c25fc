package cmd

import (
	"time"

	"github.com/seanfarley/fromcvs/core"
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/internal/outwriter"
	"github.com/spf13/cobra"
)

// setsCmd lists the changesets of a module without writing anything.
var setsCmd = &cobra.Command{
	Use:   "sets <cvsroot> <module>",
	Short: "List the changesets a conversion would replay",
	Long: `Scan a CVS module and print the changesets it aggregates to, in the
order a conversion would replay them. Nothing is written to a destination.

Each changeset shows its date, author, branch, member count and flags:
  ignore  - every member belongs to an ignored branch
  vendor  - a vendor import on branch 1.1.1
  merge   - members continue history from another branch

Use --detail to list the member revisions of every changeset.

Examples:
  # Preview the changesets of a module
  fromcvs sets /var/cvs src

  # Tune the aggregation window and inspect the members
  fromcvs sets /var/cvs src --window 5m --detail --limit 20

  # Export for analysis in DuckDB
  fromcvs sets /var/cvs src --output parquet --output-file sets.parquet --detail`,
	Args:    cobra.ExactArgs(2),
	PreRunE: sourceSetup,
	Run: func(_ *cobra.Command, _ []string) {
		if err := runSets(cfg); err != nil {
			contract.LogFatal("Failed to list changesets", err)
		}
	},
}

func runSets(cfg *contract.Config) error {
	start := time.Now()
	// Contents are never read while listing.
	scan := *cfg
	scan.ExpandKeywords = false
	p, err := newPipeline(&scan)
	if err != nil {
		return err
	}

	sets, branches, stats, err := core.CollectChangesets(rootCtx, cfg, p)
	if err != nil {
		return err
	}
	contract.Logger.Debugf("%d branches referenced", len(branches))
	return outwriter.NewOutWriter().WriteSets(sets, stats, cfg, time.Since(start))
}
