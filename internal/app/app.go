package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nexdesk-ai/nexdesk/internal/config"
	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/core/cache"
	db "github.com/nexdesk-ai/nexdesk/internal/core/database"
	"github.com/nexdesk-ai/nexdesk/internal/core/ingestion"
	"github.com/nexdesk-ai/nexdesk/internal/core/llm"
	"github.com/nexdesk-ai/nexdesk/internal/core/messaging"
	"github.com/nexdesk-ai/nexdesk/internal/core/objectstore"
	"github.com/nexdesk-ai/nexdesk/internal/core/retrieval"
	"github.com/nexdesk-ai/nexdesk/internal/logger"
	"github.com/nexdesk-ai/nexdesk/internal/services"
)

// App owns every long-lived dependency and the HTTP server built on top.
type App struct {
	DBClient   core.DbClient
	RedisCache *cache.RedisCache
	Server     *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready")

	objClient, err := objectstore.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("object client initialized and ready")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	generator, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}

	// Redis is optional; without it the retrieval engine just re-embeds.
	var redisCache *cache.RedisCache
	if cfg.RedisAddr != "" {
		redisCache, err = cache.NewRedisCache(appCtx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable, embedding cache disabled", zap.Error(err))
			redisCache = nil
		}
	}

	pipeline := ingestion.NewPipeline(dbClient, ingestion.NewExtractor(objClient), embedder, ingestion.Config{
		TargetTokens: cfg.ChunkTargetTokens,
		EmbedBatch:   cfg.EmbedBatchSize,
	})

	engine := retrieval.NewEngine(dbClient, embedder, embeddingCacheOrNil(redisCache), retrieval.Config{
		Breadth:        cfg.RetrieveBreadth,
		ReturnCap:      cfg.ReturnCap,
		PerDocCap:      cfg.PerDocCap,
		ScoreThreshold: cfg.ScoreThreshold,
		EmbedDim:       cfg.EmbedDim,
	})

	knowledgeSvc := services.NewKnowledgeService(dbClient, objClient, pipeline, cfg.BucketName, cfg.MaxDocsPerBusiness)
	chatSvc := services.NewChatService(dbClient, engine, generator, cfg.MaxMessagesPerChat, 30*time.Second)

	sender := messaging.NewWebhookSender(cfg.MsgSendURL, cfg.MsgSendToken)
	messagingSvc := services.NewMessagingService(dbClient, chatSvc, sender)

	server := NewServer(cfg, dbClient, knowledgeSvc, chatSvc, messagingSvc)

	return &App{DBClient: dbClient, RedisCache: redisCache, Server: server}, nil
}

// embeddingCacheOrNil keeps a typed-nil *RedisCache from sneaking into the
// engine's interface field as a non-nil value.
func embeddingCacheOrNil(c *cache.RedisCache) retrieval.EmbeddingCache {
	if c == nil {
		return nil
	}
	return c
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
	if a.RedisCache != nil {
		_ = a.RedisCache.Close()
	}
}
