package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bilichat/internal/app"
	"bilichat/internal/chats"
	"bilichat/internal/config"
	"bilichat/internal/server"
	"bilichat/internal/usertoken"
	"bilichat/internal/util"
	"bilichat/pkg/ai"
	"bilichat/pkg/cache"
	"bilichat/pkg/queue"
	"bilichat/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokens, err := usertoken.NewManager(cfg.JWTSecret, 0)
	if err != nil {
		util.Fatal("failed to init token manager", "err", err)
	}

	var st store.Store
	if cfg.DatabaseURL != "" {
		gs, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			util.Fatal("failed to open database", "err", err)
		}
		st = gs
	} else {
		slog.Warn("no databaseURL configured, using in-memory store")
		st = store.NewMemoryStore()
	}

	var cacheLayer cache.Cache = cache.Noop{}
	if cfg.RedisAddr != "" {
		cacheLayer = cache.NewRedisCache(cfg.RedisAddr, "")
	}

	ollama := ai.NewOllamaClient(cfg.OllamaBaseURL, ai.OllamaOptions{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout(),
	})
	registry := ai.NewRegistry(ollama)
	repo := chats.NewRepository(st, ollama)
	summarizer := app.NewSummarizer(repo, registry, cacheLayer)

	appCfg := app.Config{
		Repo:           repo,
		Cache:          cacheLayer,
		Models:         registry,
		AIResponseTTL:  cfg.AIResponseTTL(),
		ChatHistoryTTL: cfg.ChatHistoryTTL(),
		ProfileTTL:     cfg.ProfileTTL(),
	}

	var jobQueue *queue.RedisJobQueue
	if cfg.RedisAddr != "" {
		jobQueue, err = queue.NewRedisJobQueue(queue.RedisQueueConfig{
			Addr:   cfg.RedisAddr,
			Stream: "summary:jobs",
			Group:  "summarizers",
		})
		if err != nil {
			util.Fatal("failed to init summary queue", "err", err)
		}
		appCfg.Summaries = jobQueue
	} else {
		slog.Warn("no redisAddr configured, summary updates disabled")
	}

	appCore := app.New(appCfg)

	httpServer := server.New(server.Config{
		App:    appCore,
		Store:  st,
		Tokens: tokens,
		Ollama: ollama,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: streaming responses stay open for the full
		// generation, bounded by the Ollama client timeout instead.
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	if jobQueue != nil {
		group.Go(func() error {
			jobQueue.Start(ctx, 2, func(ctx context.Context, job queue.JobStatus) error {
				return summarizer.Recompute(ctx, job.UserID)
			})
			return nil
		})
	}
	group.Go(func() error {
		slog.Info("chat server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}
