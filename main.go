package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xiaot623/gogo/roundtable/internal/adapter/llm"
	"github.com/xiaot623/gogo/roundtable/internal/config"
	"github.com/xiaot623/gogo/roundtable/internal/memory"
	"github.com/xiaot623/gogo/roundtable/internal/metrics"
	"github.com/xiaot623/gogo/roundtable/internal/orchestrator"
	store "github.com/xiaot623/gogo/roundtable/internal/repository"
	"github.com/xiaot623/gogo/roundtable/internal/service"
	"github.com/xiaot623/gogo/roundtable/internal/tasks"
	"github.com/xiaot623/gogo/roundtable/internal/toolproxy"
	httpserver "github.com/xiaot623/gogo/roundtable/internal/transport/http"
	"github.com/xiaot623/gogo/roundtable/internal/transport/rpc"
	"github.com/xiaot623/gogo/roundtable/internal/transport/ws"
	"github.com/xiaot623/gogo/roundtable/policy"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("Starting roundtable",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("rpc_port", cfg.RPCPort),
		zap.String("database", cfg.DatabaseURL),
		zap.Bool("mock_llm", cfg.IsMock()),
		zap.Int("participants", len(cfg.Participants)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer db.Close()

	m := metrics.New()

	// Initialize LLM client
	llmClient := llm.NewLLMClient(cfg, logger)

	var embedder memory.Embedder = memory.HashEmbedder{}
	if cfg.Embedder == "gemini" {
		genaiEmbedder, err := memory.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Fatal("Failed to initialize embedder", zap.Error(err))
		}
		embedder = genaiEmbedder
	}

	// Initialize policy engine
	policyEngine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		logger.Fatal("Failed to initialize policy engine", zap.Error(err))
	}

	proxy := toolproxy.New(toolproxy.Options{
		Timeout:    cfg.ToolTimeout,
		RatePerSec: cfg.ToolRatePerSec,
		RateBurst:  cfg.ToolRateBurst,
	})
	queue := tasks.NewQueue(tasks.Options{
		Workers:  cfg.TaskWorkers,
		Logger:   logger.Named("tasks"),
		OnFinish: m.TaskFinished,
	})

	mem := memory.NewManager(db, llmClient, embedder, memory.Options{
		ScanLimit:       cfg.MemoryScanLimit,
		ExtractionModel: cfg.ExtractionModel,
	})
	tools := orchestrator.NewToolRunner(db, proxy, policyEngine, m)

	hub := ws.NewHub(m, logger.Named("ws"))
	go hub.Run(ctx)

	orch := orchestrator.New(orchestrator.Deps{
		Store:     db,
		LLM:       llmClient,
		Memory:    mem,
		Tools:     tools,
		Tasks:     queue,
		Publisher: hub,
		Metrics:   m,
		Logger:    logger.Named("orchestrator"),
		Roster:    cfg.Participants,
	}, orchestrator.Options{
		TurnDelay:        cfg.TurnDelay,
		LLMTimeout:       cfg.LLMTimeout,
		HistoryWindow:    cfg.HistoryWindow,
		MaxToolCalls:     cfg.MaxToolCalls,
		MaxTurnsPerRun:   cfg.MaxTurnsPerRun,
		MemoryTopK:       cfg.MemoryTopK,
		MemoryCacheTTL:   cfg.MemoryCacheTTL,
		ExtractionDelay:  cfg.ExtractionDelay,
		RepoPreviewChars: cfg.RepoPreviewChars,
		RepoPreviewMax:   cfg.RepoPreviewMax,
		ResearchModel:    cfg.ResearchModel,
	})

	// Initialize service
	svc := service.New(db, llmClient, mem, orch, tools, hub, cfg, logger.Named("service"))
	go svc.RunProposalExpiryMonitor(ctx)

	wsServer := ws.NewServer(hub, svc, ws.Options{
		ReadTimeout:    cfg.WSReadTimeout,
		WriteTimeout:   cfg.WSWriteTimeout,
		PingInterval:   cfg.WSPingInterval,
		MaxMessageSize: cfg.WSMaxMessageSize,
	}, logger.Named("ws"))
	e := httpserver.NewServer(svc, wsServer, m)

	rpcServer, err := rpc.NewServer(svc, logger.Named("rpc"))
	if err != nil {
		logger.Fatal("Failed to initialize RPC server", zap.Error(err))
	}

	// Start HTTP server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Start RPC server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.RPCPort)
		if err := rpcServer.Start(addr); err != nil {
			logger.Fatal("Failed to start RPC server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down roundtable...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shutdown HTTP server gracefully", zap.Error(err))
	}
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shutdown RPC server gracefully", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to stop turn loops", zap.Error(err))
	}
	if err := queue.Close(); err != nil {
		logger.Warn("Failed to drain task queue", zap.Error(err))
	}
	cancel()

	logger.Info("Roundtable stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
