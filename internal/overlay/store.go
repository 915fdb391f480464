package overlay

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store is the persistence abstraction for overlays. Implementations assign
// identities on Insert and keep creation order for List.
type Store interface {
	// List returns overlays in creation order, only those of streamKey when it
	// is non-empty.
	List(ctx context.Context, streamKey string) ([]Overlay, error)

	// Insert stores o under a new identity and returns the stored document.
	Insert(ctx context.Context, o Overlay) (Overlay, error)

	// Update applies p to the overlay with id and returns the result, or
	// ErrNotFound.
	Update(ctx context.Context, id string, p Patch) (Overlay, error)

	// Delete removes the overlay with id. Missing ids are not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the backend connection.
	Close(ctx context.Context) error
}

// MemoryStore is a concurrency-safe in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]Overlay
	order []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Overlay)}
}

// List implements Store.List.
func (s *MemoryStore) List(_ context.Context, streamKey string) ([]Overlay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Overlay, 0, len(s.order))
	for _, id := range s.order {
		o := s.docs[id]
		if streamKey != "" && o.StreamKey != streamKey {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Insert implements Store.Insert.
func (s *MemoryStore) Insert(_ context.Context, o Overlay) (Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.ID = uuid.NewString()
	s.docs[o.ID] = o
	s.order = append(s.order, o.ID)
	return o, nil
}

// Update implements Store.Update.
func (s *MemoryStore) Update(_ context.Context, id string, p Patch) (Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.docs[id]
	if !ok {
		return Overlay{}, ErrNotFound
	}
	p.Apply(&o)
	s.docs[id] = o
	return o, nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return nil
	}
	delete(s.docs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close implements Store.Close.
func (s *MemoryStore) Close(context.Context) error {
	return nil
}
