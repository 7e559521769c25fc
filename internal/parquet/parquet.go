// Package parquet provides data structures and functions for exporting the
// changeset index and changeset listings to Parquet files using
// github.com/parquet-go/parquet-go.
package parquet

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/seanfarley/fromcvs/schema"
)

// Changeset is one reconstructed commit.
// This struct maps to the changeset index table.
type Changeset struct {
	// ChangesetID is the index id, or the position in a listing
	ChangesetID int64 `parquet:"changeset_id,snappy"`

	// Branch is the branch name, empty for the mainline
	Branch string `parquet:"branch,snappy"`

	// Author is the committer of every member revision
	Author string `parquet:"author,snappy"`

	// Date is the date of the newest member (stored as TIMESTAMP with nanosecond precision)
	Date time.Time `parquet:"date,snappy"`

	// MemberCount is the number of file revisions in the changeset
	MemberCount int32 `parquet:"member_count,snappy"`

	// Ignore is set when every member is ignored during replay
	Ignore bool `parquet:"ignore,snappy"`

	// LogDigest is the hex digest of the shared log message (nullable)
	LogDigest *string `parquet:"log_digest,optional,snappy"`
}

// Revision is one file revision and the changeset it belongs to.
// This struct maps to the revision index table joined with file paths.
type Revision struct {
	ChangesetID int64  `parquet:"changeset_id,snappy"`
	FilePath    string `parquet:"file_path,snappy"`
	Revision    string `parquet:"revision,snappy"`

	// NextRevision is the revision this one replaced (nullable)
	NextRevision *string `parquet:"next_revision,optional,snappy"`
}

// Branch is one branch recorded in the index.
type Branch struct {
	Name    string    `parquet:"name,snappy"`
	Parent  string    `parquet:"parent,snappy"`
	Vendor  bool      `parquet:"vendor,snappy"`
	Created time.Time `parquet:"created,snappy"`
}

// WriteChangesetsParquet writes a slice of Changeset structs to a Parquet file.
func WriteChangesetsParquet(data []Changeset, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteRevisionsParquet writes a slice of Revision structs to a Parquet file.
func WriteRevisionsParquet(data []Revision, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteBranchesParquet writes a slice of Branch structs to a Parquet file.
func WriteBranchesParquet(data []Branch, outputPath string) error {
	return writeParquet(data, outputPath)
}

// writeParquet writes rows using a schema derived from the struct tags of T.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	// Close writes the footer; the file is unreadable without it.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return file.Close()
}

// ConvertChangesetRecords converts indexed changesets for Parquet export.
func ConvertChangesetRecords(records []schema.ChangesetRecord) []Changeset {
	result := make([]Changeset, len(records))
	for i, record := range records {
		result[i] = Changeset{
			ChangesetID: record.ID,
			Branch:      record.Branch,
			Author:      record.Author,
			Date:        record.Date,
			MemberCount: int32(len(record.Members)),
		}
	}
	return result
}

// ConvertChangesets converts an aggregated changeset listing for Parquet
// export. Changesets are numbered from 1 in listing order.
func ConvertChangesets(sets []*schema.Changeset) []Changeset {
	result := make([]Changeset, len(sets))
	for i, cs := range sets {
		digest := hex.EncodeToString(cs.LogDigest[:])
		result[i] = Changeset{
			ChangesetID: int64(i + 1),
			Branch:      cs.Branch,
			Author:      cs.Author,
			Date:        cs.MaxDate,
			MemberCount: int32(len(cs.Revisions)),
			Ignore:      cs.Ignore,
			LogDigest:   &digest,
		}
	}
	return result
}

// ConvertChangesetMembers flattens the members of a changeset listing.
func ConvertChangesetMembers(sets []*schema.Changeset) []Revision {
	var result []Revision
	for i, cs := range sets {
		for _, rev := range cs.Revisions {
			result = append(result, Revision{
				ChangesetID:  int64(i + 1),
				FilePath:     rev.File,
				Revision:     rev.Rev,
				NextRevision: optional(rev.Predecessor()),
			})
		}
	}
	return result
}

// ConvertRevisionRows converts indexed revisions for Parquet export.
func ConvertRevisionRows(rows []schema.RevisionRow) []Revision {
	result := make([]Revision, len(rows))
	for i, row := range rows {
		result[i] = Revision{
			ChangesetID:  row.ChangesetID,
			FilePath:     row.Path,
			Revision:     row.Revision,
			NextRevision: optional(row.NextRevision),
		}
	}
	return result
}

// ConvertBranchRecords converts indexed branches for Parquet export.
func ConvertBranchRecords(records []schema.BranchRecord) []Branch {
	result := make([]Branch, len(records))
	for i, record := range records {
		result[i] = Branch(record)
	}
	return result
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
