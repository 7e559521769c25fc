// Package keyword expands RCS keywords such as $Id$ in materialized file content.
package keyword

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
)

// DateFormat is the layout of dates inside expanded keywords.
const DateFormat = "2006/01/02 15:04:05"

// builtin lists the keywords RCS always knows.
var builtin = []string{"Author", "CVSHeader", "Date", "Header", "Id", "Name", "RCSfile", "Revision", "Source", "State"}

var (
	localKeywordRe  = regexp.MustCompile(`^\s*(?:LocalKeyword|tag)=(\w+)(?:=(\w+))?`)
	keywordExpandRe = regexp.MustCompile(`^\s*(?:KeywordExpand|tagexpand)=([ei])(\w+(?:,\w+)*)?`)
)

// Expander rewrites keywords according to the expansion mode of each file.
type Expander struct {
	root     string
	module   string
	keywords map[string]string // keyword -> builtin it expands like
	re       *regexp.Regexp    // nil when no keyword is expanded
}

var _ contract.Expander = &Expander{} // Compile-time check

// New creates an expander for the repository at root, honoring the local
// keyword settings in CVSROOT/config and CVSROOT/options.
func New(root, module string) (*Expander, error) {
	e := &Expander{root: root, module: module, keywords: make(map[string]string)}
	expand := make(map[string]bool)
	for _, kw := range builtin {
		e.keywords[kw] = kw
		expand[kw] = true
	}

	for _, name := range []string{"config", "options"} {
		if err := e.readConfig(filepath.Join(root, "CVSROOT", name), expand); err != nil {
			return nil, err
		}
	}

	var names []string
	for kw, on := range expand {
		if on {
			names = append(names, regexp.QuoteMeta(kw))
		}
	}
	if len(names) > 0 {
		sort.Strings(names)
		e.re = regexp.MustCompile(`\$(` + strings.Join(names, "|") + `)(?::[^$\n]*)?\$`)
	}
	return e, nil
}

func (e *Expander) readConfig(file string, expand map[string]bool) error {
	f, err := os.Open(file)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if m := localKeywordRe.FindStringSubmatch(line); m != nil {
			like := m[2]
			if like == "" {
				like = "Id"
			}
			if _, ok := e.keywords[like]; !ok {
				return fmt.Errorf("%s: local keyword %s expands like unknown keyword %s", file, m[1], like)
			}
			e.keywords[m[1]] = e.keywords[like]
			expand[m[1]] = true
			continue
		}
		if m := keywordExpandRe.FindStringSubmatch(line); m != nil {
			var listed []string
			if m[2] != "" {
				listed = strings.Split(m[2], ",")
			}
			if m[1] == "i" {
				for kw := range expand {
					expand[kw] = false
				}
				for _, kw := range listed {
					expand[kw] = true
				}
			} else {
				for _, kw := range listed {
					expand[kw] = false
				}
			}
		}
	}
	return sc.Err()
}

// Expand implements the Expander interface.
func (e *Expander) Expand(content *schema.FileContent, rev *schema.RevisionRecord) []byte {
	if e.re == nil {
		return content.Data
	}
	mode := content.Expand
	if mode == "" {
		mode = schema.ExpandKV
	}
	if mode == schema.ExpandO || mode == schema.ExpandB {
		return content.Data
	}

	return e.re.ReplaceAllFunc(content.Data, func(match []byte) []byte {
		kw := string(e.re.FindSubmatch(match)[1])
		switch mode {
		case schema.ExpandK:
			return []byte("$" + kw + "$")
		case schema.ExpandV:
			return []byte(e.value(kw, rev))
		default:
			return []byte("$" + kw + ": " + e.value(kw, rev) + " $")
		}
	})
}

// value returns the expansion of one keyword.
func (e *Expander) value(kw string, rev *schema.RevisionRecord) string {
	rcsfile := path.Join(e.module, rev.File) + ",v"
	header := func() string {
		return " " + rev.Rev + " " + rev.Date.UTC().Format(DateFormat) + " " + rev.Author + " " + state(rev)
	}
	switch e.keywords[kw] {
	case "Author":
		return rev.Author
	case "Date":
		return rev.Date.UTC().Format(DateFormat)
	case "CVSHeader":
		return rcsfile + header()
	case "Header":
		return path.Join(filepath.ToSlash(e.root), rcsfile) + header()
	case "Id":
		return path.Base(rcsfile) + header()
	case "Name":
		if len(rev.Syms) > 0 {
			return rev.Syms[0]
		}
		return ""
	case "RCSfile":
		return path.Base(rcsfile)
	case "Revision":
		return rev.Rev
	case "Source":
		return path.Join(filepath.ToSlash(e.root), rcsfile)
	case "State":
		return state(rev)
	}
	return ""
}

// state returns the RCS state name of a revision.
func state(rev *schema.RevisionRecord) string {
	if rev.Dead() {
		return "dead"
	}
	return "Exp"
}
