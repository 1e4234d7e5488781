package memory

import (
	"context"
	"fmt"
	"sync"

	"bookplatform/internal/vectorstore"
)

type entry struct {
	id       string
	vector   []float32
	metadata vectorstore.Metadata
}

// Store is an ephemeral brute-force index. Vectors are normalized on insert,
// so a dot product against a normalized query is the cosine similarity.
type Store struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
	index     map[string]int
}

func New() *Store {
	return &Store{index: make(map[string]int)}
}

func (s *Store) Upsert(_ context.Context, id string, vector []float32, metadata vectorstore.Metadata) error {
	if id == "" {
		return vectorstore.ErrEmptyID
	}
	normalized, err := vectorstore.Normalize(vector)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = len(normalized)
	}
	if len(normalized) != s.dimension {
		return fmt.Errorf("%w: store has %d, got %d", vectorstore.ErrDimensionMismatch, s.dimension, len(normalized))
	}

	if pos, ok := s.index[id]; ok {
		s.entries[pos].vector = normalized
		s.entries[pos].metadata = metadata
		return nil
	}
	s.index[id] = len(s.entries)
	s.entries = append(s.entries, entry{id: id, vector: normalized, metadata: metadata})
	return nil
}

func (s *Store) Search(_ context.Context, query []float32, k int) ([]vectorstore.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 || k <= 0 {
		return []vectorstore.QueryResult{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: store has %d, got %d", vectorstore.ErrDimensionMismatch, s.dimension, len(query))
	}
	normalized, err := vectorstore.Normalize(query)
	if err != nil {
		return nil, err
	}

	results := make([]vectorstore.QueryResult, len(s.entries))
	for i, e := range s.entries {
		results[i] = vectorstore.QueryResult{
			ID:       e.id,
			Score:    vectorstore.Dot(e.vector, normalized),
			Metadata: e.metadata,
		}
	}
	vectorstore.SortResults(results)
	return vectorstore.Truncate(results, k), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return nil
	}
	s.entries = append(s.entries[:pos], s.entries[pos+1:]...)
	delete(s.index, id)
	for i := pos; i < len(s.entries); i++ {
		s.index[s.entries[i].id] = i
	}
	s.resetIfEmpty()
	return nil
}

func (s *Store) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Store) PruneSource(_ context.Context, source string, fromIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.metadata.Source == source && e.metadata.ChunkIndex >= fromIndex {
			delete(s.index, e.id)
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	for i, e := range s.entries {
		s.index[e.id] = i
	}
	s.resetIfEmpty()
	return nil
}

// resetIfEmpty lets an emptied store accept vectors of a new dimension.
// Callers hold mu.
func (s *Store) resetIfEmpty() {
	if len(s.entries) == 0 {
		s.dimension = 0
	}
}
