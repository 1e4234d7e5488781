package rag

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"bookplatform/internal/ai"
)

const DefaultEmbedBatchSize = 50

// EmbeddingClient is the external embedding service.
type EmbeddingClient interface {
	EmbedBatch(ctx context.Context, cfg ai.EmbeddingConfig, texts []string) ([][]float32, error)
}

type EmbedderOptions struct {
	BatchSize int
	// RequestsPerSecond paces outbound batches. Zero disables pacing.
	RequestsPerSecond float64
}

// Embedder turns text into vectors, batch by batch, keeping input order.
// It never caches.
type Embedder struct {
	client    EmbeddingClient
	cfg       ai.EmbeddingConfig
	batchSize int
	limiter   *rate.Limiter
}

func NewEmbedder(client EmbeddingClient, cfg ai.EmbeddingConfig, opts EmbedderOptions) *Embedder {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	e := &Embedder{client: client, cfg: cfg, batchSize: batchSize}
	if opts.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return e
}

// EmbedBatch returns exactly one vector per text, all of the same dimension.
// Any failed batch fails the whole call with a *ServiceError naming the batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	dimension := 0
	for batch, offset := 0, 0; offset < len(texts); batch, offset = batch+1, offset+e.batchSize {
		end := offset + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, &ServiceError{Op: OpEmbed, Batch: batch, Err: err}
			}
		}

		vectors, err := e.client.EmbedBatch(ctx, e.cfg, texts[offset:end])
		if err != nil {
			return nil, &ServiceError{Op: OpEmbed, Batch: batch, Err: err}
		}
		if len(vectors) != end-offset {
			return nil, &ServiceError{
				Op:    OpEmbed,
				Batch: batch,
				Err:   fmt.Errorf("sent %d texts, got %d vectors", end-offset, len(vectors)),
			}
		}
		for _, v := range vectors {
			if dimension == 0 {
				dimension = len(v)
			}
			if len(v) == 0 || len(v) != dimension {
				return nil, &ServiceError{
					Op:    OpEmbed,
					Batch: batch,
					Err:   fmt.Errorf("got vector of dimension %d, want %d", len(v), dimension),
				}
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
