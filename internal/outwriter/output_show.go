package outwriter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ianbruene/go-difflib/difflib"
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
)

// WriteChangesetView outputs a looked-up changeset as text or JSON.
func WriteChangesetView(view *schema.ChangesetView, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeChangesetJSON(w, view)
		}, "Wrote JSON")
	case schema.TextOut, "":
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeChangesetText(w, view)
		}, "Wrote changeset")
	default:
		return fmt.Errorf("output format %s is not supported for a single changeset", cfg.Output)
	}
}

// writeChangesetText prints the header, log, member list and diffs.
func writeChangesetText(w io.Writer, view *schema.ChangesetView) error {
	cs := view.Changeset
	if _, err := contract.HeaderColor.Fprintf(w, "Changeset by %s on %s at %s\n",
		cs.Author, displayBranch(cs.Branch), cs.Date.UTC().Format(contract.DateTimeFormat)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\n%s\n\n", strings.TrimRight(view.Log, "\n")); err != nil {
		return err
	}

	members := make([]string, len(cs.Members))
	for i, m := range cs.Members {
		members[i] = m.Path + ":" + m.Revision
	}
	if _, err := fmt.Fprintf(w, "[ %s ]\n", strings.Join(members, " ")); err != nil {
		return err
	}

	for _, text := range view.Texts {
		diff, err := unifiedDiff(text)
		if err != nil {
			return err
		}
		if diff == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n%s", diff); err != nil {
			return err
		}
	}
	return nil
}

// unifiedDiff renders one member against its predecessor.
func unifiedDiff(text schema.MemberText) (string, error) {
	from := text.Path + ":" + text.From
	if text.From == "" {
		from = "/dev/null"
	}
	to := text.Path + ":" + text.To
	if text.New == nil {
		to = "/dev/null"
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(text.Old),
		B:        splitLines(text.New),
		FromFile: from,
		ToFile:   to,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", text.Path, err)
	}
	return diff, nil
}

// splitLines splits text after each newline. Unlike difflib.SplitLines it
// yields no line for empty text and no empty last line.
func splitLines(text []byte) []string {
	if len(text) == 0 {
		return nil
	}
	lines := strings.SplitAfter(string(text), "\n")
	if last := len(lines) - 1; lines[last] == "" {
		return lines[:last]
	}
	lines[len(lines)-1] += "\n"
	return lines
}

// writeChangesetJSON writes the changeset with rendered diffs.
func writeChangesetJSON(w io.Writer, view *schema.ChangesetView) error {
	type jsonDiff struct {
		Path string `json:"path"`
		From string `json:"from,omitempty"`
		To   string `json:"to"`
		Diff string `json:"diff"`
	}
	type jsonChangeset struct {
		ID      int64                   `json:"id"`
		Author  string                  `json:"author"`
		Branch  string                  `json:"branch"`
		Date    time.Time               `json:"date"`
		Log     string                  `json:"log"`
		Members []schema.RevisionMember `json:"members"`
		Diffs   []jsonDiff              `json:"diffs,omitempty"`
	}

	cs := view.Changeset
	out := jsonChangeset{
		ID:      cs.ID,
		Author:  cs.Author,
		Branch:  cs.Branch,
		Date:    cs.Date.UTC(),
		Log:     view.Log,
		Members: cs.Members,
	}
	for _, text := range view.Texts {
		diff, err := unifiedDiff(text)
		if err != nil {
			return err
		}
		out.Diffs = append(out.Diffs, jsonDiff{Path: text.Path, From: text.From, To: text.To, Diff: diff})
	}
	return writeJSON(w, out)
}
