package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RecallSentinel/internal/api"
	"RecallSentinel/internal/config"
	"RecallSentinel/internal/executor"
	"RecallSentinel/internal/marketplace"
	"RecallSentinel/internal/match"
	"RecallSentinel/internal/notifier"
	"RecallSentinel/internal/scheduler"
	"RecallSentinel/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] RecallSentinel starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init store
	var st store.Store
	if cfg.Database.SQLitePath != "" {
		ss, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite store failed, using in-memory store: %v", err)
			st = store.NewMemoryStore()
		} else {
			st = ss
			defer ss.Close()
		}
	} else {
		log.Println("[WARN] no sqlite_path configured, data will not survive restarts")
		st = store.NewMemoryStore()
	}

	// Init marketplace searcher
	var searcher marketplace.Searcher
	if len(cfg.Marketplaces) > 0 {
		endpoints := make(map[string]marketplace.Endpoint, len(cfg.Marketplaces))
		for _, m := range cfg.Marketplaces {
			endpoints[m.ID] = marketplace.Endpoint{BaseURL: m.BaseURL, APIKey: m.APIKey}
		}
		searcher = marketplace.NewHTTPSearcher(endpoints, cfg.Proxy)
	} else {
		log.Println("[WARN] no marketplaces configured, using mock searcher")
		searcher = marketplace.NewMockSearcher()
	}
	log.Printf("[INFO] marketplace searcher: %s", searcher.Name())

	// Init notifier
	var n notifier.Notifier
	if cfg.Notifier.WebhookURL != "" {
		n = notifier.NewWebhookNotifier(cfg.Notifier.WebhookURL, cfg.Proxy)
	} else {
		n = notifier.NewNoop()
	}

	// Init match analyzer and executor
	analyzer := match.NewAnalyzer(cfg.Match.Threshold)
	exec := executor.New(st, searcher, analyzer,
		cfg.Executor.Parallelism,
		time.Duration(cfg.Executor.SearchTimeoutS)*time.Second)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.New(ctx, st, exec, n)
	sched.MaxAttempts = cfg.Scheduler.MaxAttempts
	if err := sched.Start(cfg.Scheduler.Tick); err != nil {
		log.Fatalf("[FATAL] start scheduler: %v", err)
	}
	defer sched.Stop()

	// HTTP API
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewRouter(sched, st, analyzer),
	}
	go func() {
		log.Printf("[INFO] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[FATAL] http server: %v", err)
		}
	}()

	log.Println("[INFO] RecallSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("[WARN] http shutdown: %v", err)
	}
	cancel()
	log.Println("[INFO] RecallSentinel stopped")
}
