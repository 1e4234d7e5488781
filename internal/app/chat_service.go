package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"bookplatform/internal/model"
	"bookplatform/internal/rag"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrMessageEnqueue  = errors.New("message enqueue failed")
)

// SessionStore is implemented by repository.SessionRepository.
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	ListByUserID(ctx context.Context, userID uint) ([]model.Session, error)
	GetOwned(ctx context.Context, sessionID, userID uint) (*model.Session, error)
	DeleteOwned(ctx context.Context, sessionID, userID uint) (bool, error)
	Touch(ctx context.Context, sessionID uint, at time.Time) error
}

// MessageStore is implemented by repository.MessageRepository.
type MessageStore interface {
	ListBySessionID(ctx context.Context, sessionID uint, limit int) ([]model.Message, error)
	ListRecentBySessionID(ctx context.Context, sessionID uint, limit int) ([]model.Message, error)
}

// Answerer is implemented by rag.Assistant.
type Answerer interface {
	GetAnswer(ctx context.Context, query string, history []rag.Turn) (*rag.Answer, error)
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

type ChatService struct {
	sessionRepo  SessionStore
	messageRepo  MessageStore
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
	assistant    Answerer
	historyTurns int
	logger       *slog.Logger
}

type CreateSessionInput struct {
	UserID    uint
	Title     string
	ChapterID *uint
}

type SendMessageInput struct {
	UserID    uint
	SessionID uint
	Content   string
}

type SendMessageResult struct {
	Messages  []model.Message `json:"messages"`
	Citations []rag.Citation  `json:"citations"`
	Degraded  bool            `json:"degraded"`
}

func NewChatService(
	sessionRepo SessionStore,
	messageRepo MessageStore,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	assistant Answerer,
	historyTurns int,
	logger *slog.Logger,
) *ChatService {
	if historyTurns <= 0 {
		historyTurns = rag.DefaultHistoryTurns
	}
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		publisher:    publisher,
		historyCache: historyCache,
		assistant:    assistant,
		historyTurns: historyTurns,
		logger:       logger,
	}
}

func (s *ChatService) CreateSession(ctx context.Context, input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	session := &model.Session{
		UserID:    input.UserID,
		Title:     title,
		ChapterID: input.ChapterID,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(ctx context.Context, userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(ctx, userID)
}

func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	deleted, err := s.sessionRepo.DeleteOwned(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, sessionID)
	}
	return nil
}

// SendMessage answers content with the book assistant. Both messages are
// persisted asynchronously through the publisher.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return nil, ErrInvalidInput
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	if _, err := s.ownedSession(ctx, input.UserID, input.SessionID); err != nil {
		return nil, err
	}
	if s.publisher == nil {
		return nil, ErrMessageEnqueue
	}

	recent, err := s.messageRepo.ListRecentBySessionID(ctx, input.SessionID, s.historyTurns*2)
	if err != nil {
		return nil, err
	}

	userMessage := model.Message{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      rag.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.SessionID)
		_ = s.historyCache.DeleteHistory(ctx, input.SessionID)
	}
	if err := s.publisher.Publish(ctx, userMessage); err != nil {
		s.logger.Error("publish user message failed", "session_id", input.SessionID, "error", err)
		return nil, ErrMessageEnqueue
	}

	answer, err := s.assistant.GetAnswer(ctx, content, toTurns(recent))
	if err != nil {
		return nil, err
	}

	assistantMessage := model.Message{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      rag.RoleAssistant,
		Content:   answer.Text,
		Sources:   joinSources(answer.Citations),
		Degraded:  answer.Degraded,
		CreatedAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, assistantMessage); err != nil {
		s.logger.Error("publish assistant message failed", "session_id", input.SessionID, "error", err)
		return nil, ErrMessageEnqueue
	}
	if err := s.sessionRepo.Touch(ctx, input.SessionID, assistantMessage.CreatedAt); err != nil {
		s.logger.Warn("touch session failed", "session_id", input.SessionID, "error", err)
	}

	return &SendMessageResult{
		Messages:  []model.Message{userMessage, assistantMessage},
		Citations: answer.Citations,
		Degraded:  answer.Degraded,
	}, nil
}

func (s *ChatService) GetHistory(ctx context.Context, userID, sessionID uint, limit int) ([]model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	if _, err := s.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

func (s *ChatService) ownedSession(ctx context.Context, userID, sessionID uint) (*model.Session, error) {
	session, err := s.sessionRepo.GetOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func toTurns(messages []model.Message) []rag.Turn {
	turns := make([]rag.Turn, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != rag.RoleAssistant {
			role = rag.RoleUser
		}
		turns = append(turns, rag.Turn{Role: role, Text: m.Content, At: m.CreatedAt})
	}
	return turns
}

func joinSources(citations []rag.Citation) string {
	sources := make([]string, 0, len(citations))
	for _, c := range citations {
		sources = append(sources, c.Source)
	}
	return strings.Join(sources, ",")
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
