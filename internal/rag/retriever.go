package rag

import (
	"context"
	"strings"

	"bookplatform/internal/vectorstore"
)

const DefaultTopK = 5

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// RetrievedChunk is a search hit flattened for prompt assembly.
type RetrievedChunk struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	Text       string  `json:"text"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

type Retriever struct {
	embedder QueryEmbedder
	store    vectorstore.Store
}

func NewRetriever(embedder QueryEmbedder, store vectorstore.Store) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns the k chunks closest to query. Errors from the embedder
// or the store are returned as they are.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidInput
	}
	if k <= 0 {
		k = DefaultTopK
	}

	vector, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.store.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	out := make([]RetrievedChunk, len(hits))
	for i, h := range hits {
		out[i] = RetrievedChunk{
			ID:         h.ID,
			Source:     h.Metadata.Source,
			Text:       h.Metadata.Text,
			ChunkIndex: h.Metadata.ChunkIndex,
			Score:      h.Score,
		}
	}
	return out, nil
}
