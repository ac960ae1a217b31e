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
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/chatvec/internal/ai"
	"github.com/xxxsen/chatvec/internal/config"
	"github.com/xxxsen/chatvec/internal/db"
	"github.com/xxxsen/chatvec/internal/embedding"
	"github.com/xxxsen/chatvec/internal/handler"
	"github.com/xxxsen/chatvec/internal/job"
	"github.com/xxxsen/chatvec/internal/middleware"
	"github.com/xxxsen/chatvec/internal/model"
	"github.com/xxxsen/chatvec/internal/repo"
	"github.com/xxxsen/chatvec/internal/schedule"
	"github.com/xxxsen/chatvec/internal/service"
	"github.com/xxxsen/chatvec/internal/vectorstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "chatvec",
		Short: "chatvec semantic search backend",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run chatvec server",
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

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildEmbedder(cfg config.AIConfig) (*ai.Manager, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		var args interface{}
		if len(pc.Data) > 0 {
			args = pc.Data
		}
		provider, err := ai.NewEmbedProvider(pc.Provider, args)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     pc.Provider,
			Embedder: ai.NewEmbedder(provider, pc.Model),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	return ai.NewManager(embedder, ai.ManagerConfig{
		TimeoutSeconds: cfg.TimeoutSeconds,
		MaxInputChars:  cfg.MaxInputChars,
	}), nil
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info("starting server", zap.Int("port", cfg.Port))

	manager, err := buildEmbedder(cfg.AI)
	if err != nil {
		return err
	}
	generator := embedding.NewGenerator(manager)

	messageRepo := repo.NewMessageRepo(conn)
	failedRepo := repo.NewFailedRequestRepo(conn)
	store := vectorstore.NewPGStore(conn)

	embeddingService := service.NewEmbeddingService(generator, store, messageRepo, failedRepo)
	searchService := service.NewSearchService(generator, store, messageRepo, service.SearchServiceConfig{
		CacheSize: cfg.Search.CacheSize,
		CacheTTL:  time.Duration(cfg.Search.CacheTTLMinutes) * time.Minute,
	})
	sweeper := service.NewRetrySweeper(failedRepo, service.RetrySweeperConfig{
		BatchSize: cfg.Retry.BatchSize,
		Workers:   cfg.Retry.Workers,
	})
	sweeper.Register(model.FeatureEmbeddingGeneration, func(ctx context.Context, req *model.FailedAIRequest) error {
		return embeddingService.RetryEmbedding(ctx, req.ResourceID)
	})

	deps := handler.RouterDeps{
		Search:           handler.NewSearchHandler(searchService),
		Embeddings:       handler.NewEmbeddingHandler(embeddingService),
		Admin:            handler.NewAdminHandler(sweeper),
		JWTSecret:        []byte(cfg.JWTSecret),
		SearchRateWindow: time.Duration(cfg.Search.RateLimitSeconds) * time.Second,
		PingDB:           conn.Ping,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORS),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewRetrySweepJob(sweeper), cfg.Retry.Spec); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewEmbeddingBackfillJob(embeddingService, cfg.Backfill.BatchSize), cfg.Backfill.Spec); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
