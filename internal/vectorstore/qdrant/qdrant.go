// Package qdrant is a minimal REST client that stores chunk vectors in a
// Qdrant collection with cosine distance.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"bookplatform/internal/vectorstore"
)

const maxPointID = uint64(1<<63 - 1)

var errCollectionMissing = errors.New("qdrant collection missing")

type Config struct {
	URL        string
	APIKey     string
	Collection string
	// Dimension fixes the collection size up front. Zero means the first
	// upsert decides.
	Dimension int
	Timeout   time.Duration
}

type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	// mu guards dimension and ensured and is never held across a request.
	mu        sync.Mutex
	dimension int
	ensured   bool
	// ensureMu serializes collection creation. Search never takes it.
	ensureMu sync.Mutex
}

func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a string id onto Qdrant's unsigned integer id space.
// Different ids may collide; that is accepted, the later upsert wins.
func PointID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64() % maxPointID
}

func (s *Store) Upsert(ctx context.Context, id string, vector []float32, metadata vectorstore.Metadata) error {
	if id == "" {
		return vectorstore.ErrEmptyID
	}
	if _, err := vectorstore.Normalize(vector); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	body := map[string]any{
		"points": []map[string]any{{
			"id":     PointID(id),
			"vector": vector,
			"payload": map[string]any{
				"chunk_id":    id,
				"source":      metadata.Source,
				"text":        metadata.Text,
				"chunk_index": metadata.ChunkIndex,
				"start":       metadata.Start,
				"end":         metadata.End,
			},
		}},
	}
	return s.do(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), body, nil)
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vectorstore.QueryResult, error) {
	if k <= 0 {
		return []vectorstore.QueryResult{}, nil
	}
	s.mu.Lock()
	dimension := s.dimension
	s.mu.Unlock()
	if dimension > 0 && len(query) != dimension {
		return nil, fmt.Errorf("%w: collection has %d, got %d", vectorstore.ErrDimensionMismatch, dimension, len(query))
	}

	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float32 `json:"score"`
			Payload struct {
				ChunkID    string `json:"chunk_id"`
				Source     string `json:"source"`
				Text       string `json:"text"`
				ChunkIndex int    `json:"chunk_index"`
				Start      int    `json:"start"`
				End        int    `json:"end"`
			} `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &resp)
	if errors.Is(err, errCollectionMissing) {
		return []vectorstore.QueryResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]vectorstore.QueryResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, vectorstore.QueryResult{
			ID:    r.Payload.ChunkID,
			Score: r.Score,
			Metadata: vectorstore.Metadata{
				Source:     r.Payload.Source,
				Text:       r.Payload.Text,
				ChunkIndex: r.Payload.ChunkIndex,
				Start:      r.Payload.Start,
				End:        r.Payload.End,
			},
		})
	}
	vectorstore.SortResults(results)
	return vectorstore.Truncate(results, k), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	body := map[string]any{"points": []uint64{PointID(id)}}
	err := s.do(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), body, nil)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	return err
}

// PruneSource deletes by payload filter on source and chunk_index.
func (s *Store) PruneSource(ctx context.Context, source string, fromIndex int) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "source", "match": map[string]any{"value": source}},
				{"key": "chunk_index", "range": map[string]any{"gte": fromIndex}},
			},
		},
	}
	err := s.do(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), body, nil)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	return err
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionPath(""), nil, &resp)
	if errors.Is(err, errCollectionMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.PointsCount, nil
}

// ensureCollection creates the collection on first use. A concurrent creator
// answering 409 counts as success. A failed attempt is retried by the next upsert.
func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	if ensured, err := s.claimDimension(dimension); err != nil || ensured {
		return err
	}

	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if ensured, err := s.claimDimension(dimension); err != nil || ensured {
		return err
	}

	err := s.do(ctx, http.MethodGet, s.collectionPath(""), nil, nil)
	switch {
	case err == nil:
		s.markEnsured()
		return nil
	case !errors.Is(err, errCollectionMissing):
		return fmt.Errorf("check qdrant collection failed: %w", err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	err = s.do(ctx, http.MethodPut, s.collectionPath(""), body, nil)
	var statusErr *StatusError
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return fmt.Errorf("create qdrant collection failed: %w", err)
	}
	s.markEnsured()
	return nil
}

// claimDimension fixes the collection dimension on first use and reports
// whether the collection is already known to exist.
func (s *Store) claimDimension(dimension int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = dimension
	}
	if dimension != s.dimension {
		return false, fmt.Errorf("%w: collection has %d, got %d", vectorstore.ErrDimensionMismatch, s.dimension, dimension)
	}
	return s.ensured, nil
}

func (s *Store) markEnsured() {
	s.mu.Lock()
	s.ensured = true
	s.mu.Unlock()
}

func (s *Store) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// StatusError is an unexpected Qdrant response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (s *Store) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request failed: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build qdrant request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response failed: %w", err)
	}
	return nil
}
