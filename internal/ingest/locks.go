package ingest

import "sync"

// SourceLocks provides an exclusive advisory lock per source name. The lock
// is held for the whole indexing_documents phase of a source and for vector
// deletions, so a reconciliation-triggered delete cannot race an in-flight
// ingestion of the same source. Unrelated sources proceed in parallel.
type SourceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSourceLocks creates an empty lock table.
func NewSourceLocks() *SourceLocks {
	return &SourceLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the exclusive lock for name, blocking until it is free.
func (s *SourceLocks) Lock(name string) {
	s.mu.Lock()
	m, ok := s.locks[name]
	if !ok {
		m = &sync.Mutex{}
		s.locks[name] = m
	}
	s.mu.Unlock()
	m.Lock()
}

// Unlock releases the lock for name. Entries are kept; the table is bounded
// by the number of distinct source names.
func (s *SourceLocks) Unlock(name string) {
	s.mu.Lock()
	m := s.locks[name]
	s.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
}
