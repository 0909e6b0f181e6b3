package catalog

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/docvault/internal/device"
)

// MemoryStore keeps the catalog in process memory. Binds serialize per document id.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]Document
	order     []string
	locks     documentLocks
}

// NewMemoryStore returns a store pre-populated with seed documents in listing order.
func NewMemoryStore(seed ...Document) *MemoryStore {
	store := &MemoryStore{documents: make(map[string]Document, len(seed))}
	for index := len(seed) - 1; index >= 0; index-- {
		document := seed[index].Clone()
		store.documents[document.ID] = document
		store.order = append(store.order, document.ID)
	}
	return store
}

func (s *MemoryStore) Get(_ context.Context, documentID string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	document, ok := s.documents[documentID]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	return document.Clone(), nil
}

func (s *MemoryStore) Bind(ctx context.Context, documentID string, id device.ID) (Document, error) {
	unlock := s.locks.lock(documentID)
	defer unlock()

	current, err := s.Get(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	updated, err := Bind(current, id)
	if err != nil {
		return current, err
	}

	s.mu.Lock()
	s.documents[documentID] = updated.Clone()
	s.mu.Unlock()
	return updated, nil
}

func (s *MemoryStore) Insert(_ context.Context, document Document) error {
	if strings.TrimSpace(document.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.documents[document.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, document.ID)
	}
	s.documents[document.ID] = document.Clone()
	s.order = append(s.order, document.ID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		s.mu.RLock()
		snapshot := make([]Document, 0, len(s.order))
		for index := len(s.order) - 1; index >= 0; index-- {
			document := s.documents[s.order[index]]
			if filter.Matches(document) {
				snapshot = append(snapshot, document.Clone())
			}
		}
		s.mu.RUnlock()

		for _, document := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(Document{}, newStoreError(opList, "canceled", err))
				return
			}
			if !yield(document, nil) {
				return
			}
		}
	}
}

// documentLocks hands out one mutex per document id.
type documentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *documentLocks) lock(documentID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	entry, ok := l.locks[documentID]
	if !ok {
		entry = &sync.Mutex{}
		l.locks[documentID] = entry
	}
	l.mu.Unlock()

	entry.Lock()
	return entry.Unlock
}
