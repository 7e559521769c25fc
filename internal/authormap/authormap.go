// Package authormap maps CVS logins to full author identities.
package authormap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/seanfarley/fromcvs/internal/contract"
)

var entryRe = regexp.MustCompile(`^([^=\s]+)\s*=\s*(.*?)\s*(?:<([^>]*)>)?\s*$`)

// Map resolves logins. Unknown logins map to themselves.
type Map struct {
	names  map[string]string
	emails map[string]string
}

var _ contract.AuthorResolver = &Map{} // Compile-time check

// Load reads an author map file. An empty path yields an empty map.
func Load(file string) (*Map, error) {
	if file == "" {
		return Parse(strings.NewReader(""))
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open author map: %w", err)
	}
	defer func() { _ = f.Close() }()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return m, nil
}

// Parse reads lines of the form "login = Full Name <email>".
// Blank lines and lines starting with # are skipped.
func Parse(r io.Reader) (*Map, error) {
	m := &Map{names: make(map[string]string), emails: make(map[string]string)}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		match := entryRe.FindStringSubmatch(line)
		if match == nil || (match[2] == "" && match[3] == "") {
			return nil, fmt.Errorf("line %d: expected login=Full Name <email>", n)
		}
		login := match[1]
		m.names[login] = match[2]
		if match[2] == "" {
			m.names[login] = login
		}
		m.emails[login] = match[3]
	}
	return m, sc.Err()
}

// Len returns the number of mapped logins.
func (m *Map) Len() int {
	return len(m.names)
}

// Resolve implements the AuthorResolver interface.
func (m *Map) Resolve(login string) (string, string) {
	name, ok := m.names[login]
	if !ok {
		return login, login
	}
	email := m.emails[login]
	if email == "" {
		email = login
	}
	return name, email
}
