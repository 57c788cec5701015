package session

import (
	"context"
	"sync"

	"github.com/spigell/interview-scorer/internal/apperr"
)

type memoryEntry struct {
	record   Record
	answered map[string]struct{}
}

// MemoryStore keeps sessions in process memory. It is meant for local runs and
// tests; state is lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[Key]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[Key]*memoryEntry)}
}

func (s *MemoryStore) entry(key Key) *memoryEntry {
	e, ok := s.sessions[key]
	if !ok {
		e = &memoryEntry{record: newRecord(key), answered: make(map[string]struct{})}
		s.sessions[key] = e
	}
	return e
}

func (s *MemoryStore) GetOrCreate(_ context.Context, key Key) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecord(s.entry(key).record), nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[key]
	if !ok {
		return Record{}, apperr.NotFound("session %s", key)
	}
	return copyRecord(e.record), nil
}

func (s *MemoryStore) Advance(_ context.Context, key Key, total int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	current := e.record.CurrentQuestion
	if current >= total {
		return total, false, nil
	}
	e.record.CurrentQuestion++
	return current, true, nil
}

func (s *MemoryStore) AppendResult(_ context.Context, key Key, r Result) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	if _, dup := e.answered[r.QuestionID]; dup {
		return false, nil
	}
	e.answered[r.QuestionID] = struct{}{}
	e.record.Results = append(e.record.Results, r)
	return true, nil
}

func (s *MemoryStore) Reset(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(key)
	e.record.CurrentQuestion = 0
	e.record.Results = []Result{}
	e.answered = make(map[string]struct{})
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func copyRecord(r Record) Record {
	out := r
	out.Results = make([]Result, len(r.Results))
	copy(out.Results, r.Results)
	return out
}
