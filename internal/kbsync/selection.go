package kbsync

import "strings"

// Selection is the set of course names scoping the AI context of a chat turn.
// It keeps insertion order and is not safe for concurrent use; the Reconciler
// guards its own copy.
type Selection struct {
	names []string
	index map[string]struct{}
}

func NewSelection(names ...string) *Selection {
	s := &Selection{index: map[string]struct{}{}}
	for _, n := range names {
		if !s.Contains(n) {
			s.Toggle(n)
		}
	}
	return s
}

// Toggle flips membership of name and reports whether it is now selected.
func (s *Selection) Toggle(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if s.Remove(name) {
		return false
	}
	s.index[name] = struct{}{}
	s.names = append(s.names, name)
	return true
}

// Remove drops name and reports whether it was selected.
func (s *Selection) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if _, ok := s.index[name]; !ok {
		return false
	}
	delete(s.index, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
	return true
}

func (s *Selection) Contains(name string) bool {
	_, ok := s.index[strings.TrimSpace(name)]
	return ok
}

func (s *Selection) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Selection) Len() int { return len(s.names) }
