// Package main is the entry point for the FamilyBot backend service.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/easeaico/familybot/internal/agent"
	"github.com/easeaico/familybot/internal/chat"
	"github.com/easeaico/familybot/internal/config"
	"github.com/easeaico/familybot/internal/server"
	"github.com/easeaico/familybot/internal/storage"
)

func main() {
	// .env is optional; env vars win when both are set.
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化数据库连接
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}
	if cfg.SeedData {
		if err := store.SeedCharacters(ctx); err != nil {
			logger.Fatal("failed to seed characters", zap.Error(err))
		}
	}

	agentClient := agent.NewClient(cfg.AgentBaseURL)
	if !agentClient.Healthy(ctx) {
		logger.Warn("agent service is not reachable at startup", zap.String("baseURL", cfg.AgentBaseURL))
	}

	service := chat.NewService(store.Users, store.Characters, store.Conversations, agentClient, logger)
	srv := server.NewServer(service, logger)

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	// 优雅关闭处理
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down cleanly", zap.Error(err))
	}
}
