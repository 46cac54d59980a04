package main

import (
	"context"
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

	"github.com/ragdesk/ragdesk/internal/config"
	"github.com/ragdesk/ragdesk/internal/embedding"
	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/filestore"
	"github.com/ragdesk/ragdesk/internal/handler"
	"github.com/ragdesk/ragdesk/internal/ingest"
	"github.com/ragdesk/ragdesk/internal/job"
	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/ragdesk/ragdesk/internal/middleware"
	"github.com/ragdesk/ragdesk/internal/provider"
	"github.com/ragdesk/ragdesk/internal/rag"
	"github.com/ragdesk/ragdesk/internal/repo"
	"github.com/ragdesk/ragdesk/internal/schedule"
	"github.com/ragdesk/ragdesk/internal/secrets"
	"github.com/ragdesk/ragdesk/internal/service"
	"github.com/ragdesk/ragdesk/internal/vectordb"
	"github.com/ragdesk/ragdesk/internal/websearch"
)

const (
	embedCacheSize = 512
	embedCacheTTL  = 30 * time.Minute
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragdesk",
		Short: "ragdesk backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ragdesk server",
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
			return runServer(cfg)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildWebSearch(cfg *config.Config, secretProvider secrets.Provider) *websearch.Service {
	if cfg.WebSearch.Provider == "" {
		return websearch.NewService(nil)
	}
	searcher, err := websearch.New(cfg.WebSearch.Provider, websearch.Config{
		APIKey:   secretProvider.GetSecret(cfg.WebSearch.Provider + "_search_api_key"),
		EngineID: cfg.WebSearch.EngineID,
	})
	if err != nil {
		logutil.GetLogger(context.Background()).Warn("web search disabled", zap.Error(err))
		return websearch.NewService(nil)
	}
	return websearch.NewService(searcher)
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("qdrant", cfg.Qdrant.URL),
		zap.String("file_store", cfg.FileStore.Type),
	)

	db, err := repo.Open(cfg.DBDsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	kbRepo := repo.NewKnowledgeBaseRepo(db)
	fileRepo := repo.NewFileRepo(db)
	assistantRepo := repo.NewAssistantRepo(db)
	chatRepo := repo.NewChatRepo(db)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	secretProvider := secrets.NewStaticProvider(cfg.Secrets)
	httpClient := &http.Client{Timeout: 60 * time.Second}
	resolver := llm.NewResolver(secretProvider, httpClient)
	cachedResolver := embedding.NewCachedResolver(resolver, embedCacheSize, embedCacheTTL)

	vdb := vectordb.New(cfg.Qdrant.URL, cfg.Qdrant.APIKey)
	bus := events.NewBus()

	ingestPipeline := ingest.New(fileRepo, kbRepo, store, vdb, cachedResolver, bus)
	webSearch := buildWebSearch(cfg, secretProvider)
	ragPipeline := rag.New(chatRepo, assistantRepo, vdb, cachedResolver, bus,
		rag.WithDefaults(rag.Defaults{
			Temperature: cfg.Chat.Temperature,
			MaxTokens:   cfg.Chat.MaxTokens,
		}),
		rag.WithWebSearch(webSearch),
	)

	knowledgeService := service.NewKnowledgeService(kbRepo, vdb)
	fileService := service.NewFileService(fileRepo, kbRepo, store, vdb, ingestPipeline)
	assistantService := service.NewAssistantService(assistantRepo, kbRepo)
	chatService := service.NewChatService(chatRepo, assistantRepo, ragPipeline)
	providerService := provider.NewService(resolver)

	deps := handler.RouterDeps{
		Knowledge:  handler.NewKnowledgeHandler(knowledgeService),
		Files:      handler.NewFileHandler(fileService),
		Assistants: handler.NewAssistantHandler(assistantService),
		Chats:      handler.NewChatHandler(chatService, bus),
		Providers:  handler.NewProviderHandler(providerService, webSearch),
		Events:     handler.NewEventsHandler(bus),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewIngestRetryJob(fileRepo, fileService), cfg.Ingest.RetrySpec); err != nil {
		return fmt.Errorf("schedule ingest retry: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
