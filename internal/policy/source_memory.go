package policy

import (
	"context"
	"strings"
	"sync"
)

// MemoryTermSource is an in-memory TermSource for tests and local runs.
type MemoryTermSource struct {
	mu    sync.RWMutex
	terms []string
}

func NewMemoryTermSource(terms ...string) *MemoryTermSource {
	s := &MemoryTermSource{}
	s.Replace(terms)
	return s
}

func (s *MemoryTermSource) Replace(terms []string) {
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(t)))
	}
	s.mu.Lock()
	s.terms = lowered
	s.mu.Unlock()
}

func (s *MemoryTermSource) ListTerms(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.terms))
	copy(out, s.terms)
	return out, nil
}
