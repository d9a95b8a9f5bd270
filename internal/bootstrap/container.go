package bootstrap

import (
	"context"
	"log"
	"time"

	"magic-collection-be/internal/config"
	"magic-collection-be/internal/controller"
	"magic-collection-be/internal/pkg/logger"
	"magic-collection-be/internal/repository/cache"
	"magic-collection-be/internal/repository/memory"
	"magic-collection-be/internal/repository/unitofwork"
	"magic-collection-be/internal/service"
	"magic-collection-be/pkg/llm"
	"magic-collection-be/pkg/llm/factory"
	"magic-collection-be/pkg/llm/ollama"
	pktNats "magic-collection-be/pkg/nats"
	"magic-collection-be/pkg/relay"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	// Sessions outlive the upstream deadline by this much before the registry reaps them.
	sessionGrace = time.Minute

	abortSweepInterval = 100 * time.Millisecond
)

type Container struct {
	// Controllers
	ChatController   controller.IChatController
	HealthController controller.IHealthController

	// Background Services (Exposed for main.go to run)
	PersistenceQueue service.IPersistenceQueue

	Logger   logger.ILogger
	Sessions *memory.SessionRegistry

	natsPub *pktNats.Publisher
	rdb     *redis.Client
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	// 2. Infrastructure
	// NATS
	var eventBus service.EventBus
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		eventBus = natsPub
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// Event Bus
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewStdLogger(false, false),
	)

	// 3. Model backend
	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, ollama.Config{
		BaseURL:     cfg.Ai.OllamaBaseURL,
		ModelName:   cfg.Ai.LLMModel,
		Timeout:     cfg.Ai.UpstreamTimeout,
		IdleTimeout: cfg.Ai.UpstreamIdleTimeout,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Services
	historyCache := cache.NewHistoryCache(rdb, cfg.Cache.HistoryTTL, sysLogger)
	store := service.NewConversationStore(uowFactory, historyCache)

	bookkeeper := relay.NewBookkeeper(store, service.NewChatEventPublisher(eventBus, sysLogger), sysLogger)
	queue := service.NewPersistenceQueue(pubSub, bookkeeper, sysLogger)

	sessions := memory.NewSessionRegistry(memory.SessionTTL(cfg.Ai.UpstreamTimeout, sessionGrace), time.Minute)
	orchestrator := relay.NewOrchestrator(store, llmProvider, queue, sessions, sysLogger, cfg.Ai.SystemPrompt,
		llm.WithTemperature(cfg.Ai.Temperature),
		llm.WithMaxTokens(cfg.Ai.MaxTokens),
	)

	chatService := service.NewChatService(store, orchestrator)

	// 5. Controllers
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("[FATAL] Failed to access sql.DB: %v", err)
	}

	return &Container{
		ChatController:   controller.NewChatController(chatService, cfg.Auth.JwtSecret, sysLogger),
		HealthController: controller.NewHealthController(sqlDB),
		PersistenceQueue: queue,
		Logger:           sysLogger,
		Sessions:         sessions,
		natsPub:          natsPub,
		rdb:              rdb,
	}
}

// Shutdown stops the HTTP server and tears the container down in dependency order:
// live relays are aborted while the server drains, so their handlers return and
// their cleanup reaches an open queue. The queue closes only after stopServer has
// returned, i.e. after every in-flight handler is done dispatching.
func (c *Container) Shutdown(ctx context.Context, stopServer func(context.Context) error) error {
	stopped := make(chan error, 1)
	go func() {
		stopped <- stopServer(ctx)
	}()

	// A relay may still register between the listener closing and the first sweep.
	ticker := time.NewTicker(abortSweepInterval)
	defer ticker.Stop()

	aborted := c.Sessions.AbortAll()
	var serverErr error
sweep:
	for {
		select {
		case serverErr = <-stopped:
			break sweep
		case <-ticker.C:
			c.Sessions.AbortAll()
		}
	}
	if aborted > 0 {
		c.Logger.Info("BOOTSTRAP", "Aborted in-flight relays", map[string]interface{}{"count": aborted})
	}
	if serverErr != nil {
		c.Logger.Warn("BOOTSTRAP", "Server shutdown error", map[string]interface{}{"error": serverErr.Error()})
	}

	c.Close(ctx)
	return serverErr
}

// Close releases the queue and the infrastructure clients. Call it once the
// HTTP server no longer runs handlers.
func (c *Container) Close(ctx context.Context) {
	if err := c.PersistenceQueue.Close(ctx); err != nil {
		c.Logger.Warn("BOOTSTRAP", "Failed to close persistence queue", map[string]interface{}{"error": err.Error()})
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			c.Logger.Warn("BOOTSTRAP", "Failed to close redis client", map[string]interface{}{"error": err.Error()})
		}
	}
	_ = c.Logger.Sync()
}
