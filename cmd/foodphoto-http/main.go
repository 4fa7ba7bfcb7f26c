package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/sawanori/goodfoodphotoAI/internal/ai"
	"github.com/sawanori/goodfoodphotoAI/internal/api"
	"github.com/sawanori/goodfoodphotoAI/internal/breaker"
	"github.com/sawanori/goodfoodphotoAI/internal/config"
	"github.com/sawanori/goodfoodphotoAI/internal/core"
	"github.com/sawanori/goodfoodphotoAI/internal/gen"
	"github.com/sawanori/goodfoodphotoAI/internal/identity"
	"github.com/sawanori/goodfoodphotoAI/internal/quota"
	"github.com/sawanori/goodfoodphotoAI/internal/repo"
	"github.com/sawanori/goodfoodphotoAI/internal/usagelog"
)

func main() {
	confPath := flag.String("c", "configs/foodphoto.yaml", "path to config file")
	flag.Parse()

	// 設定を読み込む
	cfg, err := config.Load(*confPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// クォータストア：Redis が基本、開発時のみインメモリにフォールバック
	var (
		store    quota.Store
		usageLog usagelog.Recorder = usagelog.Noop{}
	)
	if cfg.Features.LocalFallback && cfg.Redis.Addr == "" {
		logger.Warn("running with in-memory quota store, counts reset on restart")
		store = quota.NewMemoryStore(cfg.Quota.DefaultMonthlyLimit)
	} else {
		redisStore, err := repo.NewStore(cfg, logger)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisStore.Close()
		store = redisStore

		if cfg.Features.UsageLog == "redis_stream" {
			usageLog = usagelog.NewStreamLogger(redisStore.Cli, redisStore.KeyLogStream(), logger)
		}
	}
	gate := quota.NewGate(store, logger)

	// Gemini バックエンド + 熔断 + リトライ
	backend, err := ai.NewGemini(cfg.AI, logger)
	if err != nil {
		log.Fatalf("failed to init ai backend: %v", err)
	}
	brk := breaker.New(cfg.Breaker.Threshold,
		time.Duration(cfg.Breaker.OpenMs)*time.Millisecond,
		breaker.WithLogger(logger))
	orch := gen.New(backend, brk, cfg.Generation, gen.WithLogger(logger))

	verifier, err := identity.NewHMACVerifier(cfg.Auth.Secret)
	if err != nil {
		log.Fatalf("failed to init verifier: %v", err)
	}

	svc := core.NewService(gate, orch, usageLog, logger)

	httpServer := api.NewServer(cfg.Server, svc, gate, verifier, brk, logger)
	r := mux.NewRouter()
	httpServer.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("server is running on %s (PID: %d)", cfg.Server.HTTPAddr, os.Getpid())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// 優雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown failed: %v", err)
	}
	log.Println("server exited properly")
}
