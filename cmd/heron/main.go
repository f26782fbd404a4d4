// Heron - Returns reasoning that deploys in 60 seconds.
// Copyright (c) 2025 opensource.commerce
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-commerce/heron/internal/analytics"
	"github.com/opensource-commerce/heron/internal/api"
	"github.com/opensource-commerce/heron/internal/bus"
	"github.com/opensource-commerce/heron/internal/cache"
	"github.com/opensource-commerce/heron/internal/conversation"
	"github.com/opensource-commerce/heron/internal/domain"
	"github.com/opensource-commerce/heron/internal/fraud"
	"github.com/opensource-commerce/heron/internal/history"
	"github.com/opensource-commerce/heron/internal/policy"
	"github.com/opensource-commerce/heron/internal/repository"
	"github.com/opensource-commerce/heron/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("HERON_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting heron",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HERON_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Policy Compressor
	compressor := policy.NewCompressor()
	slog.Info("policy compressor initialized")

	// Initialize Return History Service
	historySvc := history.NewService(repo, cacheImpl, cfg.Engine.HistoryWindowDays)
	slog.Info("return history service initialized", "window_days", cfg.Engine.HistoryWindowDays)

	// Initialize Fraud Scorer with the customer history signal
	scorer, err := fraud.NewScorer(historySvc.GetHistoryGetter(), cfg.Engine.FlagThreshold)
	if err != nil {
		slog.Error("failed to initialize fraud scorer", "error", err)
		os.Exit(1)
	}
	slog.Info("fraud scorer initialized",
		"signals_count", scorer.SignalCount(),
		"flag_threshold", scorer.FlagThreshold(),
	)

	// Initialize Conversation Handler
	chat := conversation.NewHandler(
		policyLookup(repo, cacheImpl),
		scorer,
		conversation.Config{EscalationThreshold: cfg.Engine.EscalationThreshold},
	)
	slog.Info("conversation handler initialized",
		"escalation_threshold", cfg.Engine.EscalationThreshold,
	)

	// Initialize Analytics Service
	reports := analytics.NewService(repo)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("HERON_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, scorer, historySvc)

		// Tenant IDs to process, comma-separated
		var tenantIDs []string
		if envTenants := os.Getenv("HERON_TENANTS"); envTenants != "" {
			for _, t := range strings.Split(envTenants, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tenantIDs = append(tenantIDs, t)
				}
			}
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, compressor, scorer, chat, historySvc, reports, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("heron is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("heron shutdown complete")
}

// policyLookup builds the conversation handler's policy resolver,
// cache first with repository fallback.
func policyLookup(repo domain.Repository, cacheImpl domain.Cache) conversation.PolicyLookup {
	const cacheTTL = 10 * time.Minute
	return func(ctx context.Context, tenantID, sellerID string) (*domain.Policy, error) {
		if cacheImpl != nil {
			if p, err := cacheImpl.GetPolicy(ctx, tenantID, sellerID); err == nil && p != nil {
				return p, nil
			}
		}
		p, err := repo.GetPolicyBySeller(ctx, tenantID, sellerID)
		if err != nil {
			return nil, err
		}
		if cacheImpl != nil {
			_ = cacheImpl.SetPolicy(ctx, tenantID, sellerID, p, cacheTTL)
		}
		return p, nil
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 HERON                    ║")
	fmt.Println("  ║       Returns Reasoning Engine            ║")
	fmt.Println("  ║     Every return, explained.              ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /policies              - Compress a policy from text")
	fmt.Println("    GET  /policies              - List active policies")
	fmt.Println("    GET  /policies/{sellerID}   - Get a seller's policy")
	fmt.Println("    POST /returns/evaluate      - Evaluate a return request")
	fmt.Println("    GET  /returns/{id}          - Get return request by ID")
	fmt.Println("    GET  /evaluations/{id}      - Get evaluation by ID")
	fmt.Println("    GET  /signals               - List fraud signals")
	fmt.Println("    POST /signals/reload        - Replace fraud signals")
	fmt.Println("    POST /chat                  - Talk to the returns assistant")
	fmt.Println("    GET  /conversations/{id}    - Get conversation by ID")
	fmt.Println("    GET  /analytics             - Windowed return statistics")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
