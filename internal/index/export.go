package index

import (
	"errors"
	"fmt"
	"io"

	"github.com/seanfarley/fromcvs/internal/parquet"
)

// ExportParquet writes the changeset, revision and branch tables of the index
// to Parquet files named after outputFile.
func (s *Store) ExportParquet(outputFile string, out io.Writer) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}

	status, err := s.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get index status: %w", err)
	}
	if status.TotalChangesets == 0 {
		return errors.New("no changesets found to export")
	}

	_, _ = fmt.Fprintf(out, "Exporting data from %s backend...\n", status.Backend)
	_, _ = fmt.Fprintf(out, "Total changesets: %d\n", status.TotalChangesets)
	_, _ = fmt.Fprintf(out, "Total revisions: %d\n", status.TableSizes[revisionTable])

	changesets, err := s.ListChangesets(0)
	if err != nil {
		return fmt.Errorf("failed to retrieve changesets: %w", err)
	}
	revisions, err := s.AllRevisions()
	if err != nil {
		return fmt.Errorf("failed to retrieve revisions: %w", err)
	}
	branches, err := s.Branches()
	if err != nil {
		return fmt.Errorf("failed to retrieve branches: %w", err)
	}

	changesetsFile := outputFile + ".changesets.parquet"
	if err := parquet.WriteChangesetsParquet(parquet.ConvertChangesetRecords(changesets), changesetsFile); err != nil {
		return fmt.Errorf("failed to write changesets: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Exported %d changesets to: %s\n", len(changesets), changesetsFile)

	revisionsFile := outputFile + ".revisions.parquet"
	if err := parquet.WriteRevisionsParquet(parquet.ConvertRevisionRows(revisions), revisionsFile); err != nil {
		return fmt.Errorf("failed to write revisions: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Exported %d revisions to: %s\n", len(revisions), revisionsFile)

	branchesFile := outputFile + ".branches.parquet"
	if err := parquet.WriteBranchesParquet(parquet.ConvertBranchRecords(branches), branchesFile); err != nil {
		return fmt.Errorf("failed to write branches: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Exported %d branches to: %s\n", len(branches), branchesFile)

	_, _ = fmt.Fprintln(out, "\nExport complete! The Parquet files can be read with DuckDB, Spark, Arrow or pandas.")
	return nil
}
