package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookplatform/internal/config"
	"bookplatform/internal/rag"
	"bookplatform/internal/vectorstore/memory"
	"bookplatform/internal/vectorstore/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	cfg.LLM.APIKey = ""
	cfg.RAG.DocsDir = t.TempDir()
	return cfg
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.AppConfig{Name: "bookplatform", Env: "test", LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "bookplatform", rec["app"])
}

func TestNewRAG_WithoutCredentialsIsDisabled(t *testing.T) {
	cfg := testConfig(t)

	r, err := NewRAG(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	assert.IsType(t, &memory.Store{}, r.Store)
	assert.Nil(t, r.Ingestor)
	assert.False(t, r.Assistant.Enabled())
	require.NoError(t, r.Start(context.Background()))

	answer, err := r.Assistant.GetAnswer(context.Background(), "what is a servo?", nil)
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
}

func TestNewRAG_RejectsBadSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.RAG.FailurePolicy = "retry_forever"
	_, err := NewRAG(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	cfg = testConfig(t)
	cfg.RAG.VectorStore = "faiss"
	_, err = NewRAG(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

// fakeLLM serves embeddings where each text maps to a one-hot vector chosen
// by its first letter, and echoes a fixed chat reply.
func fakeLLM(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			type item struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}
			data := make([]item, len(req.Input))
			for i, text := range req.Input {
				vec := make([]float32, 26)
				if text != "" {
					c := strings.ToLower(strings.TrimSpace(text))[0]
					if c >= 'a' && c <= 'z' {
						vec[c-'a'] = 1
					}
				}
				vec[25] += 0.01
				data[i] = item{Index: i, Embedding: vec}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		case "/chat/completions":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "Servos use feedback [Source: servo.md]."}}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewRAG_IngestsOnStartIntoSQLite(t *testing.T) {
	srv := fakeLLM(t)
	cfg := testConfig(t)
	cfg.LLM.BaseURL = srv.URL
	cfg.LLM.APIKey = "test-key"
	cfg.RAG.VectorStore = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "vectors.db")
	cfg.RAG.IngestOnStart = true
	require.NoError(t, os.WriteFile(filepath.Join(cfg.RAG.DocsDir, "servo.md"), []byte("Servo motors hold a commanded angle."), 0o644))

	r, err := NewRAG(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, r.Store)
	require.NotNil(t, r.Ingestor)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	require.Eventually(t, func() bool {
		st := r.Ingestor.Status()
		return !st.Running && st.LastReport != nil
	}, 5*time.Second, 20*time.Millisecond)

	n, err := r.Store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	answer, err := r.Assistant.GetAnswer(context.Background(), "servo question", nil)
	require.NoError(t, err)
	assert.False(t, answer.Degraded)
	require.NotEmpty(t, answer.Citations)
	assert.Equal(t, "servo.md", answer.Citations[0].Source)

	cancel()
	require.NoError(t, r.Close())
}
