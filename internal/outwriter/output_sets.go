package outwriter

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/internal/parquet"
	"github.com/seanfarley/fromcvs/schema"
)

// WriteSetResults outputs a changeset listing, dispatching based on the output format configured.
func WriteSetResults(sets []*schema.Changeset, stats schema.ScanStats, cfg *contract.Config, duration time.Duration) error {
	if cfg.ResultLimit > 0 && len(sets) > cfg.ResultLimit {
		sets = sets[:cfg.ResultLimit]
	}

	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSetsJSON(w, sets, cfg.Detail)
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSetsCSV(w, sets, cfg.Detail)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.ParquetOut:
		if err := writeSetsParquet(sets, cfg); err != nil {
			return fmt.Errorf("error writing Parquet output: %w", err)
		}
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeSetsTable(w, sets, stats, cfg, duration)
		}, "Wrote table")
	}
	return nil
}

// setFlags describes how replay treats a changeset.
func setFlags(cs *schema.Changeset) string {
	var flags []string
	if cs.Ignore {
		flags = append(flags, contract.IgnoreColor.Sprint("ignore"))
	}
	if cs.IsVendorImport() {
		flags = append(flags, contract.VendorColor.Sprint("vendor"))
	}
	if cs.HasMerges() {
		flags = append(flags, contract.MergeColor.Sprint("merge"))
	}
	return strings.Join(flags, " ")
}

func displayBranch(name string) string {
	if name == schema.TrunkBranch {
		return "(trunk)"
	}
	return name
}

// writeSetsTable generates and writes the human-readable table.
func writeSetsTable(w io.Writer, sets []*schema.Changeset, stats schema.ScanStats, cfg *contract.Config, duration time.Duration) error {
	table := tablewriter.NewWriter(w)

	headers := []string{"#", "Date", "Author", "Branch", "Files", "Flags"}
	if cfg.Detail {
		headers = append(headers, "Members")
	}
	table.Header(headers)
	table.Configure(func(tc *tablewriter.Config) {
		tc.Row.Alignment.Global = tw.AlignLeft
	})

	pathWidth := getMaxTablePathWidth(cfg)
	var data [][]string
	revisions := 0
	for i, cs := range sets {
		revisions += cs.Len()
		row := []string{
			strconv.Itoa(i + 1),
			cs.MaxDate.UTC().Format(contract.DateTimeFormat),
			cs.Author,
			contract.BranchColor.Sprint(displayBranch(cs.Branch)),
			strconv.Itoa(cs.Len()),
			setFlags(cs),
		}
		if cfg.Detail {
			members := make([]string, len(cs.Revisions))
			for j, r := range cs.Revisions {
				members[j] = contract.TruncatePath(r.File, pathWidth) + ":" + r.Rev + " " + contract.GetColorAction(r.Action)
			}
			row = append(row, strings.Join(members, "\n"))
		}
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Showing %d changesets (%d revisions; scanned %d files in %d directories, %d warnings)\n",
		len(sets), revisions, stats.Files, stats.Directories, stats.Warnings); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Scan completed in %v\n", duration)
	return err
}

// writeSetsCSV writes the changeset listing in CSV format.
func writeSetsCSV(w io.Writer, sets []*schema.Changeset, detail bool) error {
	header := []string{"index", "date", "author", "branch", "files", "ignore", "log_digest"}
	if detail {
		header = append(header, "members")
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for i, cs := range sets {
			rec := []string{
				strconv.Itoa(i + 1),
				cs.MaxDate.UTC().Format(contract.DateTimeFormat),
				cs.Author,
				cs.Branch,
				strconv.Itoa(cs.Len()),
				strconv.FormatBool(cs.Ignore),
				hex.EncodeToString(cs.LogDigest[:]),
			}
			if detail {
				members := make([]string, len(cs.Revisions))
				for j, r := range cs.Revisions {
					members[j] = r.File + ":" + r.Rev
				}
				rec = append(rec, strings.Join(members, "|"))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// jsonMember is one member revision of a listed changeset.
type jsonMember struct {
	Path         string        `json:"path"`
	Revision     string        `json:"revision"`
	NextRevision string        `json:"next_revision,omitempty"`
	Action       schema.Action `json:"action"`
	Dead         bool          `json:"dead,omitempty"`
}

// jsonSet is one listed changeset.
type jsonSet struct {
	Index     int          `json:"index"`
	Date      time.Time    `json:"date"`
	FirstDate time.Time    `json:"first_date"`
	Author    string       `json:"author"`
	Branch    string       `json:"branch"`
	Files     int          `json:"files"`
	Ignore    bool         `json:"ignore"`
	LogDigest string       `json:"log_digest"`
	Members   []jsonMember `json:"members,omitempty"`
}

// writeSetsJSON writes the changeset listing in JSON format.
func writeSetsJSON(w io.Writer, sets []*schema.Changeset, detail bool) error {
	output := make([]jsonSet, len(sets))
	for i, cs := range sets {
		output[i] = jsonSet{
			Index:     i + 1,
			Date:      cs.MaxDate.UTC(),
			FirstDate: cs.MinDate.UTC(),
			Author:    cs.Author,
			Branch:    cs.Branch,
			Files:     cs.Len(),
			Ignore:    cs.Ignore,
			LogDigest: hex.EncodeToString(cs.LogDigest[:]),
		}
		if !detail {
			continue
		}
		for _, r := range cs.Revisions {
			output[i].Members = append(output[i].Members, jsonMember{
				Path:         r.File,
				Revision:     r.Rev,
				NextRevision: r.Predecessor(),
				Action:       r.Action,
				Dead:         r.Dead(),
			})
		}
	}
	return writeJSON(w, output)
}

// writeSetsParquet writes the listing to cfg.OutputFile and, with detail,
// the members next to it.
func writeSetsParquet(sets []*schema.Changeset, cfg *contract.Config) error {
	if err := parquet.WriteChangesetsParquet(parquet.ConvertChangesets(sets), cfg.OutputFile); err != nil {
		return err
	}
	contract.Logger.Infof("Wrote %d changesets to %s", len(sets), cfg.OutputFile)
	if !cfg.Detail {
		return nil
	}
	membersFile := strings.TrimSuffix(cfg.OutputFile, ".parquet") + ".members.parquet"
	members := parquet.ConvertChangesetMembers(sets)
	if err := parquet.WriteRevisionsParquet(members, membersFile); err != nil {
		return err
	}
	contract.Logger.Infof("Wrote %d members to %s", len(members), membersFile)
	return nil
}
