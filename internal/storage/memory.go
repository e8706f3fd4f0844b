package storage

import (
	"context"
	"sync"
	"time"
)

const memoryAuditCap = 1000

type memoryStore struct {
	mu     sync.Mutex
	docs   map[string][]byte
	audit  []AuditEntry
	closed bool
}

// NewMemory returns a process-local store.
func NewMemory() Store {
	return &memoryStore{docs: map[string][]byte{}}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	v, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *memoryStore) Put(ctx context.Context, key string, value []byte) error {
	return s.PutAll(ctx, Entry{Key: key, Value: value})
}

func (s *memoryStore) PutAll(_ context.Context, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, e := range entries {
		s.docs[e.Key] = append([]byte(nil), e.Value...)
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.docs, key)
	return nil
}

func (s *memoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.audit = append(s.audit, e)
	if len(s.audit) > memoryAuditCap {
		s.audit = s.audit[len(s.audit)-memoryAuditCap:]
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
