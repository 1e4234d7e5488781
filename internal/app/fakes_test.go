package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"bookplatform/internal/ai"
	"bookplatform/internal/model"
	"bookplatform/internal/personalize"
	"bookplatform/internal/rag"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserStore struct {
	byID    map[uint]*model.User
	nextID  uint
	logins  int
	failErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: make(map[uint]*model.User)}
}

func (f *fakeUserStore) Create(_ context.Context, user *model.User) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.nextID++
	user.ID = f.nextID
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id uint) (*model.User, error) {
	return f.byID[id], nil
}

func (f *fakeUserStore) UpdateLastLogin(_ context.Context, id uint, at time.Time) error {
	f.logins++
	f.byID[id].LastLoginAt = &at
	return nil
}

type fakeChapterStore struct {
	chapters map[uint]*model.Chapter
}

func (f *fakeChapterStore) List(context.Context) ([]model.Chapter, error) {
	out := make([]model.Chapter, 0, len(f.chapters))
	for i := uint(1); i <= uint(len(f.chapters)); i++ {
		if c, ok := f.chapters[i]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeChapterStore) GetByID(_ context.Context, id uint) (*model.Chapter, error) {
	return f.chapters[id], nil
}

func (f *fakeChapterStore) Upsert(_ context.Context, chapter *model.Chapter) error {
	if f.chapters == nil {
		f.chapters = make(map[uint]*model.Chapter)
	}
	for id, c := range f.chapters {
		if c.Slug == chapter.Slug {
			chapter.ID = id
			f.chapters[id] = chapter
			return nil
		}
	}
	chapter.ID = uint(len(f.chapters) + 1)
	f.chapters[chapter.ID] = chapter
	return nil
}

type fakeSessionStore struct {
	sessions map[uint]*model.Session
	nextID   uint
	touched  []uint
	// messages, when set, loses the messages of deleted sessions
	messages *fakeMessageStore
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uint]*model.Session)}
}

func (f *fakeSessionStore) Create(_ context.Context, session *model.Session) error {
	f.nextID++
	session.ID = f.nextID
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionStore) ListByUserID(_ context.Context, userID uint) ([]model.Session, error) {
	var out []model.Session
	for i := uint(1); i <= f.nextID; i++ {
		if s, ok := f.sessions[i]; ok && s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) GetOwned(_ context.Context, sessionID, userID uint) (*model.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	return s, nil
}

func (f *fakeSessionStore) DeleteOwned(_ context.Context, sessionID, userID uint) (bool, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return false, nil
	}
	delete(f.sessions, sessionID)
	if f.messages != nil {
		kept := f.messages.messages[:0]
		for _, m := range f.messages.messages {
			if m.SessionID != sessionID {
				kept = append(kept, m)
			}
		}
		f.messages.messages = kept
	}
	return true, nil
}

func (f *fakeSessionStore) Touch(_ context.Context, sessionID uint, _ time.Time) error {
	f.touched = append(f.touched, sessionID)
	return nil
}

type fakeMessageStore struct {
	messages []model.Message
	listed   int
}

func (f *fakeMessageStore) bySession(sessionID uint) []model.Message {
	var out []model.Message
	for _, m := range f.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMessageStore) ListBySessionID(_ context.Context, sessionID uint, limit int) ([]model.Message, error) {
	f.listed++
	out := f.bySession(sessionID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessageStore) ListRecentBySessionID(_ context.Context, sessionID uint, limit int) ([]model.Message, error) {
	out := f.bySession(sessionID)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakePublisher struct {
	published []model.Message
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, msg model.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeHistoryCache struct {
	history map[uint][]model.Message
	dirty   map[uint]bool
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{history: make(map[uint][]model.Message), dirty: make(map[uint]bool)}
}

func (f *fakeHistoryCache) GetHistory(_ context.Context, sessionID uint) ([]model.Message, bool, error) {
	h, ok := f.history[sessionID]
	return h, ok, nil
}

func (f *fakeHistoryCache) SetHistory(_ context.Context, sessionID uint, messages []model.Message) error {
	f.history[sessionID] = messages
	return nil
}

func (f *fakeHistoryCache) DeleteHistory(_ context.Context, sessionID uint) error {
	delete(f.history, sessionID)
	return nil
}

func (f *fakeHistoryCache) MarkDirty(_ context.Context, sessionID uint) error {
	f.dirty[sessionID] = true
	return nil
}

func (f *fakeHistoryCache) IsDirty(_ context.Context, sessionID uint) (bool, error) {
	return f.dirty[sessionID], nil
}

type fakeAnswerer struct {
	answer  *rag.Answer
	err     error
	query   string
	history []rag.Turn
}

func (f *fakeAnswerer) GetAnswer(_ context.Context, query string, history []rag.Turn) (*rag.Answer, error) {
	f.query = query
	f.history = history
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

var errModelDown = errors.New("model unavailable")

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
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type memoryContentStore struct {
	mu      sync.Mutex
	entries map[personalize.Key]personalize.Entry
	putErr  error
}

func newMemoryContentStore() *memoryContentStore {
	return &memoryContentStore{entries: make(map[personalize.Key]personalize.Entry)}
}

func (m *memoryContentStore) Get(_ context.Context, key personalize.Key) (*personalize.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, personalize.ErrNotFound
	}
	return &e, nil
}

func (m *memoryContentStore) Put(_ context.Context, e personalize.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[e.Key] = e
	return nil
}
