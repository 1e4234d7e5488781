package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bookplatform/internal/ai"
	"bookplatform/internal/config"
	"bookplatform/internal/docsource"
	"bookplatform/internal/rag"
	"bookplatform/internal/vectorstore"
	"bookplatform/internal/vectorstore/memory"
	"bookplatform/internal/vectorstore/qdrant"
	"bookplatform/internal/vectorstore/sqlite"
)

// RAG bundles the retrieval components of one process. Ingestor is nil when
// no embedding credentials are configured.
type RAG struct {
	Store     vectorstore.Store
	Assistant *rag.Assistant
	Ingestor  *rag.Ingestor
	Docs      *docsource.Directory
	LLM       *ai.OpenAICompatibleClient

	cfg    config.RAGConfig
	logger *slog.Logger
	close  func() error
	wg     sync.WaitGroup
}

func NewRAG(cfg *config.Config, logger *slog.Logger) (*RAG, error) {
	policy, err := rag.ParseFailurePolicy(cfg.RAG.FailurePolicy)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := newVectorStore(cfg)
	if err != nil {
		return nil, err
	}
	docs, err := docsource.NewDirectory(cfg.RAG.DocsDir, cfg.RAG.DocsPattern)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("%w: %v", rag.ErrConfiguration, err)
	}

	r := &RAG{
		Store:  store,
		Docs:   docs,
		cfg:    cfg.RAG,
		logger: logger,
		close:  closeStore,
	}

	if !cfg.LLMConfigured() {
		logger.Warn("llm credentials missing, book assistant disabled")
		r.Assistant = rag.NewDisabledAssistant(errors.New("llm credentials are not configured"), policy, logger)
		return r, nil
	}

	r.LLM = ai.NewOpenAICompatibleClient(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second)
	embedder := rag.NewEmbedder(r.LLM, ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	}, rag.EmbedderOptions{
		BatchSize:         cfg.RAG.EmbedBatchSize,
		RequestsPerSecond: cfg.RAG.EmbedRequestsPerSec,
	})
	generator := rag.NewGenerator(r.LLM, ChatConfig(cfg), cfg.RAG.HistoryTurns)
	r.Assistant = rag.NewAssistant(rag.NewRetriever(embedder, store), generator, cfg.RAG.TopK, policy, logger)

	r.Ingestor, err = rag.NewIngestor(docs, embedder, store, rag.ChunkOptions{
		Size:    cfg.RAG.ChunkSize,
		Overlap: cfg.RAG.ChunkOverlap,
	}, logger)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	return r, nil
}

// ChatConfig is the chat-completion setting shared by the assistant and the
// personalization service.
func ChatConfig(cfg *config.Config) ai.ChatConfig {
	return ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
}

func newVectorStore(cfg *config.Config) (vectorstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.RAG.VectorStore {
	case "memory":
		return memory.New(), noop, nil
	case "qdrant":
		return qdrant.New(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Dimension:  cfg.Qdrant.Dimension,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSeconds) * time.Second,
		}), noop, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown vector store %q", rag.ErrConfiguration, cfg.RAG.VectorStore)
}

// Start launches background ingestion and the document watcher as
// configured. Searches run against whatever has been indexed so far.
func (r *RAG) Start(ctx context.Context) error {
	if r.Ingestor == nil {
		return nil
	}
	if r.cfg.IngestOnStart {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if _, err := r.Ingestor.Run(ctx); err != nil {
				r.logger.Error("initial ingestion failed", "dir", r.Docs.Dir, "error", err)
			}
		}()
	}
	if r.cfg.WatchDocs {
		w, err := docsource.NewWatcher(r.Docs, r.Ingestor, r.logger)
		if err != nil {
			return err
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			w.Run(ctx)
		}()
	}
	return nil
}

// Close waits for background work started with a now-cancelled context and
// releases the vector store.
func (r *RAG) Close() error {
	r.wg.Wait()
	if r.close != nil {
		return r.close()
	}
	return nil
}
