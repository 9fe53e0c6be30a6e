package storage

import (
	"context"
	"sync"

	"github.com/hacknation/tagscan/service-gateway/internal/models"
)

// MemoryStore keeps documents in process. Used for local runs without Postgres
// and as the store behind handler tests.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]models.Document
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]models.Document)}
}

func (s *MemoryStore) Set(ctx context.Context, id string, doc models.Document) error {
	doc = doc.Clone()
	doc["id"] = id

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; !exists {
		s.order = append(s.order, id)
	}
	s.docs[id] = doc
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch models.Document) (models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}

	merged := doc.Clone()
	for k, v := range patch {
		if k == "id" {
			continue
		}
		merged[k] = v
	}
	s.docs[id] = merged
	return merged.Clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return ErrNotFound
	}
	delete(s.docs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]models.Document, 0, len(s.order))
	for _, id := range s.order {
		docs = append(docs, s.docs[id].Clone())
	}
	return docs, nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}
