package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookplatform/internal/vectorstore"
)

// DocumentSource is a read-only set of named text documents.
type DocumentSource interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) (string, error)
}

// VectorEmbedder embeds texts in input order.
type VectorEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type ChunkOptions struct {
	Size    int
	Overlap int
}

type Failure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Report summarizes one ingestion run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Documents  int       `json:"documents"`
	Chunks     int       `json:"chunks"`
	Failures   []Failure `json:"failures"`
}

type Status struct {
	Running    bool    `json:"running"`
	LastReport *Report `json:"last_report,omitempty"`
}

// Ingestor chunks documents, embeds the chunks and upserts them under ids
// "<source>#<index>".
type Ingestor struct {
	source   DocumentSource
	embedder VectorEmbedder
	store    vectorstore.Store
	chunks   ChunkOptions
	logger   *slog.Logger

	mu       sync.Mutex
	bySource map[string]int
	running  bool
	last     *Report
}

func NewIngestor(source DocumentSource, embedder VectorEmbedder, store vectorstore.Store, chunks ChunkOptions, logger *slog.Logger) (*Ingestor, error) {
	if chunks.Size <= 0 || chunks.Overlap < 0 || chunks.Size <= chunks.Overlap {
		return nil, fmt.Errorf("%w: chunk size %d must be positive and greater than overlap %d",
			ErrConfiguration, chunks.Size, chunks.Overlap)
	}
	return &Ingestor{
		source:   source,
		embedder: embedder,
		store:    store,
		chunks:   chunks,
		logger:   logger,
		bySource: make(map[string]int),
	}, nil
}

func ChunkID(source string, index int) string {
	return fmt.Sprintf("%s#%d", source, index)
}

// Run ingests every document of the source. Unreadable or failing documents
// are logged and skipped, so the index may end up partial.
func (i *Ingestor) Run(ctx context.Context) (*Report, error) {
	i.mu.Lock()
	i.running = true
	i.mu.Unlock()

	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now(), Failures: []Failure{}}
	defer func() {
		report.FinishedAt = time.Now()
		i.mu.Lock()
		i.running = false
		i.last = report
		i.mu.Unlock()
	}()

	names, err := i.source.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list documents failed: %w", err)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n, err := i.Reindex(ctx, name)
		if err != nil {
			i.logger.Error("ingest document failed", "run_id", report.RunID, "source", name, "error", err)
			report.Failures = append(report.Failures, Failure{Source: name, Error: err.Error()})
			continue
		}
		report.Documents++
		report.Chunks += n
	}

	i.logger.Info("ingestion finished",
		"run_id", report.RunID,
		"documents", report.Documents,
		"chunks", report.Chunks,
		"failures", len(report.Failures),
		"elapsed", time.Since(report.StartedAt),
	)
	return report, nil
}

// Reindex replaces the stored chunks of one document and returns the new
// chunk count. Chunks left over from a longer previous version are deleted.
func (i *Ingestor) Reindex(ctx context.Context, name string) (int, error) {
	text, err := i.source.Read(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("read document failed: %w", err)
	}
	spans, err := SplitSpans(text, i.chunks.Size, i.chunks.Overlap)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(spans))
	for j, s := range spans {
		texts[j] = s.Text
	}
	vectors, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	for j, s := range spans {
		metadata := vectorstore.Metadata{
			Source:     name,
			Text:       s.Text,
			ChunkIndex: j,
			Start:      s.Start,
			End:        s.End,
		}
		if err := i.store.Upsert(ctx, ChunkID(name, j), vectors[j], metadata); err != nil {
			return j, fmt.Errorf("store chunk %d failed: %w", j, err)
		}
	}

	i.mu.Lock()
	previous, tracked := i.bySource[name]
	i.bySource[name] = len(spans)
	i.mu.Unlock()

	if !tracked || previous > len(spans) {
		if err := i.deleteRange(ctx, name, len(spans), previous); err != nil {
			return len(spans), err
		}
	}
	return len(spans), nil
}

// Remove deletes every chunk produced for name.
func (i *Ingestor) Remove(ctx context.Context, name string) error {
	i.mu.Lock()
	previous := i.bySource[name]
	delete(i.bySource, name)
	i.mu.Unlock()

	return i.deleteRange(ctx, name, 0, previous)
}

// deleteRange removes chunks [from, to) of name. Stores that can prune by
// source drop every chunk from "from" on, including ones this process never saw.
func (i *Ingestor) deleteRange(ctx context.Context, name string, from, to int) error {
	if p, ok := i.store.(vectorstore.SourcePruner); ok {
		if err := p.PruneSource(ctx, name, from); err != nil {
			return fmt.Errorf("prune stale chunks failed: %w", err)
		}
		return nil
	}
	for j := from; j < to; j++ {
		if err := i.store.Delete(ctx, ChunkID(name, j)); err != nil {
			return fmt.Errorf("delete stale chunk %d failed: %w", j, err)
		}
	}
	return nil
}

func (i *Ingestor) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Status{Running: i.running, LastReport: i.last}
}
