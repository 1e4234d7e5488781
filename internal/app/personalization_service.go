package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"bookplatform/internal/ai"
	"bookplatform/internal/model"
	"bookplatform/internal/personalize"
	"bookplatform/internal/rag"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

const DefaultPersonalizeMaxTokens = 4096

// SupportedLanguages maps a language code to the name used in prompts.
var SupportedLanguages = map[string]string{
	"en": "English",
	"ur": "Urdu",
}

// ContentCache is implemented by personalize.Cache.
type ContentCache interface {
	GetOrGenerate(ctx context.Context, key personalize.Key, gen personalize.Generator) (personalize.Outcome, error)
}

type PersonalizedResult struct {
	ChapterID uint   `json:"chapter_id"`
	Kind      string `json:"kind"`
	Variant   string `json:"variant,omitempty"`
	Language  string `json:"language"`
	Content   string `json:"content"`
	Cached    bool   `json:"cached"`
}

type PersonalizationService struct {
	users    UserStore
	chapters ChapterStore
	cache    ContentCache
	llm      rag.ChatClient
	cfg      ai.ChatConfig
	disabled error
	logger   *slog.Logger
}

func NewPersonalizationService(
	users UserStore,
	chapters ChapterStore,
	cache ContentCache,
	llm rag.ChatClient,
	cfg ai.ChatConfig,
	logger *slog.Logger,
) *PersonalizationService {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultPersonalizeMaxTokens
	}
	s := &PersonalizationService{
		users:    users,
		chapters: chapters,
		cache:    cache,
		llm:      llm,
		cfg:      cfg,
		logger:   logger,
	}
	if llm == nil || cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		s.disabled = errors.New("llm credentials are not configured")
	}
	return s
}

// Personalize rewrites a chapter for the reader's experience level. Cached
// rewrites are served even when generation is disabled.
func (s *PersonalizationService) Personalize(ctx context.Context, userID, chapterID uint) (*PersonalizedResult, error) {
	user, chapter, err := s.load(ctx, userID, chapterID)
	if err != nil {
		return nil, err
	}

	level := user.ExperienceLevel
	if !model.ValidExperienceLevel(level) {
		level = model.ExperienceBeginner
	}
	key := personalize.Key{
		SubjectID: user.ID,
		ContentID: strconv.FormatUint(uint64(chapter.ID), 10),
		Kind:      personalize.KindPersonalize,
		Variant:   level,
		Language:  "en",
	}
	return s.serve(ctx, key, chapter, []ai.ChatMessage{
		{Role: "system", Content: personalizePrompt(level, user)},
		{Role: "user", Content: "Rewrite this chapter:\n\n" + chapter.Content},
	})
}

// Translate renders a chapter in the target language.
func (s *PersonalizationService) Translate(ctx context.Context, userID, chapterID uint, language string) (*PersonalizedResult, error) {
	language = strings.TrimSpace(strings.ToLower(language))
	name, ok := SupportedLanguages[language]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	user, chapter, err := s.load(ctx, userID, chapterID)
	if err != nil {
		return nil, err
	}

	key := personalize.Key{
		SubjectID: user.ID,
		ContentID: strconv.FormatUint(uint64(chapter.ID), 10),
		Kind:      personalize.KindTranslate,
		Language:  language,
	}
	return s.serve(ctx, key, chapter, []ai.ChatMessage{
		{Role: "system", Content: translatePrompt(name)},
		{Role: "user", Content: "Translate this chapter:\n\n" + chapter.Content},
	})
}

func (s *PersonalizationService) load(ctx context.Context, userID, chapterID uint) (*model.User, *model.Chapter, error) {
	if userID == 0 || chapterID == 0 {
		return nil, nil, ErrInvalidInput
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, ErrUserNotFound
	}
	chapter, err := s.chapters.GetByID(ctx, chapterID)
	if err != nil {
		return nil, nil, err
	}
	if chapter == nil {
		return nil, nil, ErrChapterNotFound
	}
	return user, chapter, nil
}

func (s *PersonalizationService) serve(ctx context.Context, key personalize.Key, chapter *model.Chapter, messages []ai.ChatMessage) (*PersonalizedResult, error) {
	out, err := s.cache.GetOrGenerate(ctx, key, func(ctx context.Context) (string, error) {
		if s.disabled != nil {
			return "", fmt.Errorf("%w: %v", rag.ErrFeatureDisabled, s.disabled)
		}
		text, err := s.llm.Complete(ctx, s.cfg, messages)
		if err != nil {
			return "", &rag.ServiceError{Op: rag.OpComplete, Err: err}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return "", &rag.ServiceError{Op: rag.OpComplete, Err: errors.New("empty completion")}
		}
		return text, nil
	})
	if err != nil {
		return nil, err
	}
	if out.PersistErr != nil {
		s.logger.Warn("personalized content not cached",
			"user_id", key.SubjectID, "chapter_id", chapter.ID, "kind", key.Kind, "error", out.PersistErr)
	}

	return &PersonalizedResult{
		ChapterID: chapter.ID,
		Kind:      key.Kind,
		Variant:   key.Variant,
		Language:  key.Language,
		Content:   out.Text,
		Cached:    out.Hit,
	}, nil
}

func personalizePrompt(level string, user *model.User) string {
	var guidance string
	switch level {
	case model.ExperienceAdvanced:
		guidance = "The reader is advanced. Keep the full technical depth, skip introductory explanations, and add notes on edge cases, performance and current research where useful."
	case model.ExperienceIntermediate:
		guidance = "The reader has intermediate experience. Assume working knowledge of programming and basic robotics, explain domain-specific terms briefly, and keep the technical detail."
	default:
		guidance = "The reader is a beginner. Use plain language, define every technical term on first use, add analogies and short step-by-step explanations, and avoid dense jargon."
	}

	var b strings.Builder
	b.WriteString("You are an educational content writer adapting a chapter of a book on physical AI and humanoid robotics for one reader.\n")
	b.WriteString(guidance)
	b.WriteString("\n")
	if user.RoboticsBackground != "" {
		b.WriteString("Reader background: " + user.RoboticsBackground + "\n")
	}
	if user.OS != "" || user.GPU != "" {
		b.WriteString(fmt.Sprintf("Reader setup: OS %s, GPU %s. Adjust setup instructions to it where relevant.\n", valueOr(user.OS, "unknown"), valueOr(user.GPU, "unknown")))
	}
	b.WriteString("Keep the markdown structure, headings and code blocks. Do not invent facts that are not in the chapter.")
	return b.String()
}

func translatePrompt(language string) string {
	return "You are a technical translator. Translate the chapter into " + language + ".\n" +
		"Leave code blocks, commands, file paths and identifiers unchanged.\n" +
		"Keep the markdown structure and headings. Keep widely used technical terms such as ROS, URDF or GPU in their original form.\n" +
		"Return only the translated chapter."
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
