package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"bookplatform/internal/ai"
)

const fakeDim = 64

// bagOfWords embeds text as hashed word counts, so identical texts get
// identical vectors and texts sharing words score higher.
func bagOfWords(text string) []float32 {
	v := make([]float32, fakeDim)
	v[fakeDim-1] = 0.01
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%(fakeDim-1)]++
	}
	return v
}

type fakeEmbeddingClient struct {
	mu      sync.Mutex
	calls   [][]string
	failAt  int
	failErr error
	dropOne bool
}

func newFakeEmbeddingClient() *fakeEmbeddingClient {
	return &fakeEmbeddingClient{failAt: -1}
}

func (f *fakeEmbeddingClient) EmbedBatch(_ context.Context, _ ai.EmbeddingConfig, texts []string) ([][]float32, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	if call == f.failAt {
		return nil, f.failErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = bagOfWords(t)
	}
	if f.dropOne && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbeddingClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeChatClient struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	lastCfg  ai.ChatConfig
	messages []ai.ChatMessage
}

func (f *fakeChatClient) Complete(_ context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCfg = cfg
	f.messages = append([]ai.ChatMessage(nil), messages...)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

var errProviderDown = errors.New("provider down")
