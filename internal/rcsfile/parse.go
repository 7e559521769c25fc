// Package rcsfile reads RCS revision files through the rlog and co tools.
package rcsfile

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/seanfarley/fromcvs/schema"
)

const (
	revSeparator = "----------------------------"
	endSeparator = "============================================================================="
)

// rlog prints dates either in the classic RCS form (always UTC) or, for newer
// versions, in ISO form with a zone offset.
var dateLayouts = []string{
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05-07",
}

// ParseRlog parses the output of rlog for a single file.
func ParseRlog(out []byte) (*schema.FileHistory, error) {
	h := &schema.FileHistory{
		Symbols:    make(map[string]string),
		ExpandMode: schema.ExpandKV,
		Revisions:  make(map[string]*schema.RawRevision),
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if err := parseHeader(sc, h); err != nil {
		return nil, err
	}
	if err := parseRevisions(sc, h); err != nil {
		return nil, err
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read rlog output: %w", err)
	}
	linkRevisions(h)
	return h, nil
}

// parseHeader consumes everything up to the first revision separator.
func parseHeader(sc *bufio.Scanner, h *schema.FileHistory) error {
	inSymbols := false
	for sc.Scan() {
		line := sc.Text()
		if line == revSeparator || line == endSeparator {
			return nil
		}
		if inSymbols {
			if strings.HasPrefix(line, "\t") {
				name, rev, ok := strings.Cut(strings.TrimSpace(line), ":")
				if !ok {
					return fmt.Errorf("malformed symbol line %q", line)
				}
				h.Symbols[strings.TrimSpace(name)] = strings.TrimSpace(rev)
				continue
			}
			inSymbols = false
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "RCS file":
			h.Path = value
		case "head":
			h.Head = value
		case "branch":
			h.Branch = value
		case "symbolic names":
			inSymbols = true
		case "keyword substitution":
			mode := schema.ExpandMode(value)
			if _, ok := schema.ValidExpandModes[mode]; !ok {
				return fmt.Errorf("unknown keyword substitution %q", value)
			}
			h.ExpandMode = mode
		case "description":
			// The description runs up to the first separator and is not needed.
			for sc.Scan() {
				if l := sc.Text(); l == revSeparator || l == endSeparator {
					return nil
				}
			}
			return nil
		}
	}
	return nil
}

// parseRevisions consumes the revision blocks.
func parseRevisions(sc *bufio.Scanner, h *schema.FileHistory) error {
	var cur *schema.RawRevision
	var logLines []string
	finish := func() {
		if cur == nil {
			return
		}
		cur.Log = strings.Join(logLines, "\n")
		h.Revisions[cur.Rev] = cur
		cur, logLines = nil, nil
	}

	pendingSep := false
	for sc.Scan() {
		line := sc.Text()
		if pendingSep {
			pendingSep = false
			if strings.HasPrefix(line, "revision ") {
				finish()
			} else if cur != nil {
				// A separator-looking line inside a log message.
				logLines = append(logLines, revSeparator)
			}
		}

		switch {
		case line == endSeparator:
			finish()
			return nil
		case line == revSeparator:
			pendingSep = true
		case cur == nil && strings.HasPrefix(line, "revision "):
			fields := strings.Fields(line)
			cur = &schema.RawRevision{Rev: fields[1], State: schema.StateNormal}
			if !sc.Scan() {
				return fmt.Errorf("revision %s: missing date line", cur.Rev)
			}
			if err := parseDateLine(sc.Text(), cur); err != nil {
				return fmt.Errorf("revision %s: %w", cur.Rev, err)
			}
		case cur != nil && len(logLines) == 0 && strings.HasPrefix(line, "branches:"):
			// Branch starts are derived from the revision numbers in linkRevisions.
		case cur != nil:
			logLines = append(logLines, line)
		}
	}
	finish()
	return nil
}

// parseDateLine parses "date: D;  author: A;  state: S;  lines: +1 -0;  commitid: C;".
func parseDateLine(line string, r *schema.RawRevision) error {
	if !strings.HasPrefix(line, "date:") {
		return fmt.Errorf("unexpected line %q", line)
	}
	for _, field := range strings.Split(line, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "date":
			t, err := parseDate(value)
			if err != nil {
				return err
			}
			r.Date = t
		case "author":
			r.Author = value
		case "state":
			if value == "dead" {
				r.State = schema.StateDead
			}
		case "commitid":
			r.CommitID = value
		}
	}
	if r.Date.IsZero() {
		return fmt.Errorf("no date in %q", line)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

// linkRevisions derives next pointers and branch starts from the numbering:
// trunk revisions point at the next lower trunk revision, branch revisions at
// the next higher revision of their branch.
func linkRevisions(h *schema.FileHistory) {
	byBranch := make(map[string][]string)
	for rev := range h.Revisions {
		b := schema.TrunkBranch
		if schema.RevDepth(rev) > 0 {
			b = schema.BranchOf(rev)
		}
		byBranch[b] = append(byBranch[b], rev)
	}

	for branch, revs := range byBranch {
		sort.Slice(revs, func(i, j int) bool { return schema.CompareRevs(revs[i], revs[j]) < 0 })
		trunk := branch == schema.TrunkBranch
		for i, rev := range revs {
			r := h.Revisions[rev]
			switch {
			case trunk && i > 0:
				r.Next = revs[i-1]
			case !trunk && i < len(revs)-1:
				r.Next = revs[i+1]
			}
		}
		if trunk {
			continue
		}
		if point, ok := h.Revisions[schema.BranchPrefixPoint(branch)]; ok {
			point.Branches = append(point.Branches, revs[0])
		}
	}

	for _, r := range h.Revisions {
		sort.Slice(r.Branches, func(i, j int) bool { return schema.CompareRevs(r.Branches[i], r.Branches[j]) < 0 })
	}
}
