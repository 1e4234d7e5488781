package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"bookplatform/internal/app"
	"bookplatform/internal/cache"
	"bookplatform/internal/config"
	"bookplatform/internal/personalize"
	"bookplatform/internal/rag"
	mysqlClient "bookplatform/internal/platform/mysql"
	rabbitmqClient "bookplatform/internal/platform/rabbitmq"
	redisClient "bookplatform/internal/platform/redis"
	"bookplatform/internal/repository"
	"bookplatform/internal/worker"
)

// Services are the application services handed to the HTTP layer.
type Services struct {
	Auth            *app.AuthService
	Chapters        *app.ChapterService
	Chat            *app.ChatService
	Personalization *app.PersonalizationService
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	MySQL         *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	MessageWorker *worker.MessagePersistWorker
	RAG           *RAG
	Services      Services

	StartedAt time.Time
	cancel    context.CancelFunc
}

// New connects the backing services and wires the application. Anything
// opened before a failure is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	var err error

	a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN(), logger)
	if err != nil {
		return err
	}
	if err := mysqlClient.Migrate(a.MySQL); err != nil {
		return err
	}

	a.Redis, err = redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(a.MySQL)
	sessionRepo := repository.NewSessionRepository(a.MySQL)
	messageRepo := repository.NewMessageRepository(a.MySQL)
	chapterRepo := repository.NewChapterRepository(a.MySQL)

	a.MessageWorker = worker.NewMessagePersistWorker(a.MQConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue, logger.With("component", "message_worker"))
	if err := a.MessageWorker.Start(ctx); err != nil {
		return fmt.Errorf("start message worker failed: %w", err)
	}

	a.RAG, err = NewRAG(cfg, logger.With("component", "rag"))
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	if err := a.RAG.Start(runCtx); err != nil {
		return fmt.Errorf("start ingestion failed: %w", err)
	}

	contentCache := personalize.NewCache(personalizationStore(cfg, a.MySQL, a.Redis), personalize.Options{
		TTL:          time.Duration(cfg.Personalization.TTLHours) * time.Hour,
		SingleFlight: cfg.Personalization.SingleFlight,
	}, logger.With("component", "personalize"))

	chatCfg := ChatConfig(cfg)
	chatCfg.MaxTokens = cfg.Personalization.MaxTokens
	var llm rag.ChatClient
	if a.RAG.LLM != nil {
		llm = a.RAG.LLM
	}

	a.Services = Services{
		Auth:     app.NewAuthService(userRepo, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute),
		Chapters: app.NewChapterService(chapterRepo),
		Chat: app.NewChatService(
			sessionRepo,
			messageRepo,
			rabbitmqClient.NewMessagePublisher(a.MQConn, cfg.RabbitMQ.MessagePersistQueue),
			cache.NewHistoryCache(
				a.Redis,
				time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
				time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
			),
			a.RAG.Assistant,
			cfg.RAG.HistoryTurns,
			logger.With("component", "chat"),
		),
		Personalization: app.NewPersonalizationService(userRepo, chapterRepo, contentCache, llm, chatCfg, logger.With("component", "personalize")),
	}

	if n, err := a.Services.Chapters.SyncFromDocuments(ctx, a.RAG.Docs); err != nil {
		logger.Warn("sync chapters from documents failed", "dir", a.RAG.Docs.Dir, "synced", n, "error", err)
	} else {
		logger.Info("chapters synced", "count", n)
	}
	return nil
}

func personalizationStore(cfg *config.Config, db *gorm.DB, rdb *redis.Client) personalize.Store {
	if cfg.Personalization.Backend == "redis" {
		return cache.NewPersonalizationStore(rdb)
	}
	return repository.NewPersonalizedContentRepository(db)
}

func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	var errs []error
	if a.RAG != nil {
		errs = append(errs, a.RAG.Close())
	}
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.MQConn != nil {
		errs = append(errs, a.MQConn.Close())
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
