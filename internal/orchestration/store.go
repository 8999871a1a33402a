package orchestration

import (
	"context"
	"errors"
	"sync"
)

// Store errors.
var (
	// ErrSequenceConflict means an append raced with another writer: the
	// entry's sequence number no longer matches the history length.
	ErrSequenceConflict = errors.New("history sequence conflict")

	// ErrInstanceNotFound means no history exists for the instance id.
	ErrInstanceNotFound = errors.New("orchestration instance not found")

	// ErrLeaseHeld means another owner is currently driving the instance.
	ErrLeaseHeld = errors.New("instance lease already held")
)

// HistoryStore persists per-instance append-only histories. Appends are
// atomic and ordered: an entry is accepted only at the exact next sequence
// position, so two writers can never both extend the same history.
type HistoryStore interface {
	// Append appends the entry at position entry.Seq. Returns
	// ErrSequenceConflict if the history length differs from entry.Seq.
	Append(ctx context.Context, instanceID string, entry Entry) error

	// Load returns the full ordered history for an instance, or
	// ErrInstanceNotFound.
	Load(ctx context.Context, instanceID string) ([]Entry, error)

	// ListIncomplete returns the ids of instances whose history has no
	// completion-published entry.
	ListIncomplete(ctx context.Context) ([]string, error)

	// AcquireLease takes single-writer ownership of an instance, or
	// returns ErrLeaseHeld. The returned release function must be called
	// when the owner is done.
	AcquireLease(ctx context.Context, instanceID string) (func(), error)
}

// MemoryStore is the in-process HistoryStore. Single-process deployments and
// tests use it directly; leases only need to exclude other goroutines.
type MemoryStore struct {
	mu        sync.Mutex
	histories map[string][]Entry
	leases    map[string]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		histories: make(map[string][]Entry),
		leases:    make(map[string]bool),
	}
}

// Append implements HistoryStore.
func (s *MemoryStore) Append(ctx context.Context, instanceID string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.histories[instanceID]
	if entry.Seq != len(history) {
		return ErrSequenceConflict
	}
	s.histories[instanceID] = append(history, entry)
	return nil
}

// Load implements HistoryStore.
func (s *MemoryStore) Load(ctx context.Context, instanceID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.histories[instanceID]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	out := make([]Entry, len(history))
	copy(out, history)
	return out, nil
}

// ListIncomplete implements HistoryStore.
func (s *MemoryStore) ListIncomplete(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, history := range s.histories {
		published := false
		for _, e := range history {
			if e.Type == EntryCompletionPublished {
				published = true
				break
			}
		}
		if !published {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// AcquireLease implements HistoryStore.
func (s *MemoryStore) AcquireLease(ctx context.Context, instanceID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leases[instanceID] {
		return nil, ErrLeaseHeld
	}
	s.leases[instanceID] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.leases, instanceID)
		})
	}
	return release, nil
}

var _ HistoryStore = (*MemoryStore)(nil)
