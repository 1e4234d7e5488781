package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"bookplatform/internal/ai"
)

const DefaultHistoryTurns = 5

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const groundingInstruction = `You are a teaching assistant for a book on physical AI and humanoid robotics.
Answer the user's question using only the context below.
If the context does not contain enough information, say "I don't know based on the book content" and do not guess.
When you use a context item, cite it with its source tag, for example [Source: chapter-1.md].`

// ChatClient is the external chat-completion service.
type ChatClient interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

// Turn is one earlier message of the conversation. Generation only reads it.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type Citation struct {
	Source  string  `json:"source"`
	ChunkID string  `json:"chunk_id"`
	Score   float32 `json:"score"`
}

type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	// Degraded is set when the text is an error message produced under the
	// best-effort policy.
	Degraded bool `json:"degraded"`
}

type Generator struct {
	client       ChatClient
	cfg          ai.ChatConfig
	historyTurns int
}

func NewGenerator(client ChatClient, cfg ai.ChatConfig, historyTurns int) *Generator {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &Generator{client: client, cfg: cfg, historyTurns: historyTurns}
}

// Generate makes exactly one completion call and returns its text with the
// citations of the supplied context.
func (g *Generator) Generate(ctx context.Context, query string, history []Turn, contexts []RetrievedChunk) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidInput
	}

	text, err := g.client.Complete(ctx, g.cfg, g.BuildMessages(query, history, contexts))
	if err != nil {
		return nil, &ServiceError{Op: OpComplete, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ServiceError{Op: OpComplete, Err: errors.New("empty completion")}
	}
	return &Answer{Text: text, Citations: Citations(contexts)}, nil
}

// BuildMessages assembles the system instruction, the most recent history
// turns and the query as the last user turn.
func (g *Generator) BuildMessages(query string, history []Turn, contexts []RetrievedChunk) []ai.ChatMessage {
	var system strings.Builder
	system.WriteString(groundingInstruction)
	system.WriteString("\n\nContext:")
	if len(contexts) == 0 {
		system.WriteString("\n(no relevant context was found)")
	}
	for _, c := range contexts {
		system.WriteString("\n\n[Source: ")
		system.WriteString(c.Source)
		system.WriteString("]\n")
		system.WriteString(c.Text)
	}

	turns := recentTurns(history, g.historyTurns)
	messages := make([]ai.ChatMessage, 0, len(turns)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: system.String()})
	for _, t := range turns {
		messages = append(messages, ai.ChatMessage{Role: t.Role, Content: t.Text})
	}
	return append(messages, ai.ChatMessage{Role: RoleUser, Content: query})
}

func recentTurns(history []Turn, n int) []Turn {
	valid := make([]Turn, 0, len(history))
	for _, t := range history {
		if (t.Role == RoleUser || t.Role == RoleAssistant) && strings.TrimSpace(t.Text) != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) > n {
		valid = valid[len(valid)-n:]
	}
	return valid
}

// Citations lists each distinct source once, keeping the order of contexts
// (best score first) and the id of its best chunk.
func Citations(contexts []RetrievedChunk) []Citation {
	seen := make(map[string]struct{}, len(contexts))
	out := make([]Citation, 0, len(contexts))
	for _, c := range contexts {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		out = append(out, Citation{Source: c.Source, ChunkID: c.ID, Score: c.Score})
	}
	return out
}
