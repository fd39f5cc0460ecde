package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/db"
	"github.com/xxxsen/docqa/internal/embedcache"
	"github.com/xxxsen/docqa/internal/handler"
	"github.com/xxxsen/docqa/internal/job"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/pkg/jwt"
	"github.com/xxxsen/docqa/internal/rag"
	"github.com/xxxsen/docqa/internal/repo"
	"github.com/xxxsen/docqa/internal/schedule"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/stream"
)

const apiPrefix = "/api/v1"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "document question answering server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docqa server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			sqlDB, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer sqlDB.Close()
			if err := db.ApplyMigrations(sqlDB); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			rdb, err := db.OpenRedis(cfg.Redis)
			if err != nil {
				return fmt.Errorf("open redis: %w", err)
			}
			if rdb != nil {
				defer rdb.Close()
			}
			return runServer(cfg, sqlDB, rdb)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

// newTokenCmd mints a bearer token for a user id, for operators and local
// testing.
func newTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" || userID == "" {
				return fmt.Errorf("--config and --user are required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			token, err := jwt.GenerateToken(userID, []byte(cfg.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func buildGenerator(entries []config.AIEntry) (ai.IStreamGenerator, error) {
	items := make([]ai.GeneratorEntry, 0, len(entries))
	for i, e := range entries {
		p, err := ai.NewProvider(e.Provider, e.Data)
		if err != nil {
			return nil, fmt.Errorf("ai.generators[%d]: %w", i, err)
		}
		items = append(items, ai.GeneratorEntry{Name: entryName(e), Generator: ai.NewGenerator(p, e.Model)})
	}
	return ai.NewGroupGenerator(items), nil
}

func buildEmbedder(entries []config.AIEntry) (ai.IEmbedder, error) {
	items := make([]ai.EmbedderEntry, 0, len(entries))
	for i, e := range entries {
		p, err := ai.NewEmbedProvider(e.Provider, e.Data)
		if err != nil {
			return nil, fmt.Errorf("ai.embedders[%d]: %w", i, err)
		}
		items = append(items, ai.EmbedderEntry{Name: entryName(e), Embedder: ai.NewEmbedder(p, e.Model)})
	}
	return ai.NewGroupEmbedder(items), nil
}

func buildReranker(entry *config.AIEntry) (ai.IReranker, error) {
	if entry == nil {
		return nil, nil
	}
	p, err := ai.NewRerankProvider(entry.Provider, entry.Data)
	if err != nil {
		return nil, fmt.Errorf("ai.reranker: %w", err)
	}
	return ai.NewReranker(p, entry.Model), nil
}

func entryName(e config.AIEntry) string {
	if e.Name != "" {
		return e.Name
	}
	return e.Provider + ":" + e.Model
}

func runServer(cfg *config.Config, sqlDB *sql.DB, rdb *redis.Client) error {
	ctx := context.Background()
	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.Int("generators", len(cfg.AI.Generators)),
		zap.Int("embedders", len(cfg.AI.Embedders)),
		zap.Bool("reranker", cfg.AI.Reranker != nil),
		zap.Bool("redis", rdb != nil),
	)

	docRepo := repo.NewDocumentRepo(sqlDB)
	convRepo := repo.NewConversationRepo(sqlDB)
	chunkRepo := repo.NewChunkSearchRepo(sqlDB)
	cacheRepo := repo.NewEmbeddingCacheRepo(sqlDB)

	generator, err := buildGenerator(cfg.AI.Generators)
	if err != nil {
		return err
	}
	baseEmbedder, err := buildEmbedder(cfg.AI.Embedders)
	if err != nil {
		return err
	}
	rerankProvider, err := buildReranker(cfg.AI.Reranker)
	if err != nil {
		return err
	}

	var cacheClient redis.Cmdable
	if rdb != nil {
		cacheClient = rdb
	}
	embedder := embedcache.Wrap(baseEmbedder, cacheClient, cacheRepo, embedcache.ChainConfig{
		LRUSize:  cfg.EmbedCache.LRUSize,
		LRUTTL:   time.Duration(cfg.EmbedCache.LRUTTLSeconds) * time.Second,
		RedisTTL: time.Duration(cfg.EmbedCache.RedisTTLSeconds) * time.Second,
	})

	ragCfg := cfg.Retrieval.Build()
	retriever := rag.NewRetriever(chunkRepo, ragCfg)
	var reranker *rag.Reranker
	if rerankProvider != nil {
		reranker = rag.NewReranker(rerankProvider, ragCfg)
	}
	coordinator := stream.NewCoordinator(generator, convRepo, stream.Config{
		GenerationTimeout: ragCfg.GenerationTimeout,
		MaxSources:        ragCfg.MaxSources,
	})
	chatService := service.NewChatService(service.ChatServiceDeps{
		Documents:     docRepo,
		Conversations: convRepo,
		Embedder:      embedder,
		Retriever:     retriever,
		Reranker:      reranker,
		Aggregator:    rag.NewAggregator(retriever, reranker, ragCfg),
		Streamer:      coordinator,
		Config:        ragCfg,
		EmbedTaskType: cfg.AI.EmbedTaskType,
	})

	deps := handler.RouterDeps{
		Chat:            handler.NewChatHandler(chatService),
		Conversations:   handler.NewConversationHandler(chatService),
		JWTSecret:       []byte(cfg.JWTSecret),
		RateLimitWindow: time.Duration(cfg.RateLimitWindowMs) * time.Millisecond,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		apiPrefix,
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{apiPrefix + handler.ChatPath})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.EmbedCache.DBMaxAgeDays), cfg.CacheCleanupCron); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
