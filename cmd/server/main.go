package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newsflow/draft-import-service/internal/config"
	"github.com/newsflow/draft-import-service/internal/fetcher"
	"github.com/newsflow/draft-import-service/internal/fixture"
	"github.com/newsflow/draft-import-service/internal/handler"
	"github.com/newsflow/draft-import-service/internal/logger"
	"github.com/newsflow/draft-import-service/internal/pipeline"
	"github.com/newsflow/draft-import-service/internal/queue"
	"github.com/newsflow/draft-import-service/internal/sanitizer"
	"github.com/newsflow/draft-import-service/internal/workspace"
)

func main() {
	// 加载配置
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	p := pipeline.New(sanitizer.NewRegistry(), cfg.MaxHTMLBytes, log)
	catalog := fixture.Default()

	f := fetcher.New(cfg, log)
	defer f.Close()

	// 有 REDIS_URL 时工作区存 Redis，否则存内存
	var store workspace.Store = workspace.NewMemoryStore()
	storeName := "memory"
	if cfg.RedisURL != "" {
		rs, err := workspace.DialRedisStore(cfg.RedisURL, cfg.WorkspaceTTL)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		store, storeName = rs, "redis"
	}

	// 远程抓取默认关闭，ENABLE_FETCH=true 时才开放 /fetch 和队列里的 URL 任务
	var pages handler.PageFetcher
	if cfg.EnableFetch {
		pages = f
	}

	h := handler.New(handler.Deps{
		Config:     cfg,
		Pipeline:   p,
		Workspaces: workspace.NewService(store, p, catalog, log),
		Catalog:    catalog,
		Pages:      pages,
		Logger:     log,
		StoreName:  storeName,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 启动 Redis 队列消费者（可选）
	consumerDone := make(chan struct{})
	if cfg.RedisURL != "" {
		go func() {
			defer close(consumerDone)
			startQueueConsumer(ctx, cfg, p, f, log)
		}()
	} else {
		close(consumerDone)
	}

	// 优雅关闭
	go func() {
		<-ctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("draft import service starting",
		"port", cfg.HTTPPort,
		"max_concurrent", cfg.MaxConcurrent,
		"store", storeName,
		"fetch", cfg.EnableFetch,
		"cycletls", f.CycleTLSEnabled(),
	)

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	<-consumerDone
	log.Info("server stopped")
}

// startQueueConsumer 启动队列消费者
func startQueueConsumer(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, f *fetcher.Fetcher, log *slog.Logger) {
	hostname, _ := os.Hostname()
	q, err := queue.Dial(cfg.RedisURL, "draft-import-"+hostname, log)
	if err != nil {
		log.Error("failed to connect queue", "error", err)
		return
	}
	defer q.Close()

	var pages queue.PageFetcher
	if cfg.EnableFetch {
		pages = f
	}
	q.StartConsumer(ctx, queue.NewImportHandler(p, pages), cfg.QueueConcurrency)
}
