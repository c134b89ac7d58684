package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hyperbuild-web/internal/application"
	"hyperbuild-web/internal/domain/services"
	"hyperbuild-web/internal/infrastructure/anthropic"
	"hyperbuild-web/internal/infrastructure/archive"
	"hyperbuild-web/internal/infrastructure/gemini"
	"hyperbuild-web/internal/infrastructure/github"
	"hyperbuild-web/internal/infrastructure/openai"
	"hyperbuild-web/internal/infrastructure/sandbox"
	"hyperbuild-web/internal/interfaces/http/handlers"
	"hyperbuild-web/internal/interfaces/http/middleware"
	"hyperbuild-web/pkg/config"
	"hyperbuild-web/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	if err := config.Load(*configPath); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	cfg := config.Get()

	logger.Init(cfg.GetLogLevel(), cfg.GetLogOutputPath())
	defer logger.Sync()

	prompts, err := services.LoadPromptLibrary()
	if err != nil {
		logger.Fatal("加载提示词模板失败", zap.Error(err))
	}

	var responses application.ResponseArchive
	if cfg.Archive.Enabled {
		store, err := archive.Open(cfg.GetArchivePath())
		if err != nil {
			logger.Fatal("打开回复归档失败", zap.String("path", cfg.GetArchivePath()), zap.Error(err))
		}
		defer store.Close()
		responses = store
	}

	chat := application.NewChatService(prompts, cfg.GetClassifierProvider(), responses, providers(cfg)...)
	if !chat.HasProvider(cfg.GetClassifierProvider()) {
		logger.Warn("分类服务商未配置 API 密钥，/template 将不可用", zap.String("provider", cfg.GetClassifierProvider()))
	}

	builds := application.NewBuildService(application.BuildConfig{
		InstallCommand:  cfg.GetInstallCommand(),
		DevCommand:      cfg.GetDevCommand(),
		IdleTimeout:     cfg.GetSessionIdleTimeout(),
		CleanupInterval: cfg.GetSessionCleanupInterval(),
	}, chat, sandbox.NewFactory(cfg.GetSandboxWorkDir()), github.NewClient(cfg))
	defer builds.Close()

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.CORS(cfg.GetAllowOrigins()),
		middleware.BodyLimit(cfg.GetMaxBodySize()),
	)
	handlers.RegisterRoutes(router,
		handlers.NewPromptHandler(chat),
		handlers.NewSessionHandler(builds),
		handlers.NewFileHandler(builds))

	srv := &http.Server{
		Addr:              cfg.GetServerAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("启动服务", zap.String("addr", srv.Addr), zap.Strings("providers", chat.Providers()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("启动 HTTP 服务失败", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("关闭 HTTP 服务失败", zap.Error(err))
	}
}

// providers 只注册配置了 API 密钥的服务商
func providers(cfg *config.Config) []application.ChatProvider {
	var list []application.ChatProvider
	if cfg.GetGeminiAPIKey() != "" {
		list = append(list, gemini.NewClient(cfg))
	}
	if cfg.Providers.Anthropic.APIKey != "" {
		list = append(list, anthropic.NewClient(cfg.Providers.Anthropic))
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		list = append(list, openai.NewClient(cfg.Providers.OpenAI, openai.OpenAIOptions))
	}
	if cfg.Providers.Deepseek.APIKey != "" {
		list = append(list, openai.NewClient(cfg.Providers.Deepseek, openai.DeepseekOptions))
	}
	if len(list) == 0 {
		logger.Warn("没有配置任何服务商 API 密钥")
	}
	return list
}
