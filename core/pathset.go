package core

import (
	"github.com/emirpasic/gods/sets/treeset"
)

// pathSet is a sorted set of file paths.
type pathSet struct{ set *treeset.Set }

func newPathSet(paths ...string) *pathSet {
	s := &pathSet{set: treeset.NewWithStringComparator()}
	for _, p := range paths {
		s.set.Add(p)
	}
	return s
}

func (s *pathSet) Add(path string) {
	s.set.Add(path)
}

func (s *pathSet) Remove(path string) {
	s.set.Remove(path)
}

func (s *pathSet) Contains(path string) bool {
	return s.set.Contains(path)
}

func (s *pathSet) Size() int {
	return s.set.Size()
}

// Values returns the paths in lexical order.
func (s *pathSet) Values() []string {
	out := make([]string, 0, s.set.Size())
	it := s.set.Iterator()
	for it.Next() {
		out = append(out, it.Value().(string))
	}
	return out
}
