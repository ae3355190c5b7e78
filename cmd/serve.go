package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/leadscope/crmchat/internal/api"
	"github.com/leadscope/crmchat/internal/chat"
	"github.com/leadscope/crmchat/internal/config"
	"github.com/leadscope/crmchat/internal/database"
	"github.com/leadscope/crmchat/internal/llm"
	"github.com/leadscope/crmchat/internal/log"
	"github.com/leadscope/crmchat/internal/retrieval"
	"github.com/leadscope/crmchat/internal/session"
)

// runServe wires the full pipeline and runs the HTTP server until SIGINT or
// SIGTERM.
func runServe(cfg *config.Config, logger log.Logger) error {
	addr, err := parseServeAddr(cfg.Addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(pool, logger); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	mode, err := chat.ModeByName(cfg.Mode)
	if err != nil {
		return err
	}
	if cfg.TopK > 0 {
		mode.TopK = cfg.TopK
	}

	embedder := retrieval.NewOpenAIEmbedder(retrieval.EmbedderConfig{
		BaseURL:    cfg.EmbeddingBaseURL,
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	})
	retriever := retrieval.NewPgxStore(pool, embedder, logger)

	completer := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		Timeout:     cfg.LLMTimeout,
	})

	store := session.New(logger)
	orchestrator := chat.NewOrchestrator(store, retriever, completer, mode, logger)

	server := api.NewServer(api.Config{
		Addr:           addr,
		StaticDir:      cfg.StaticDir,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Version:        AppVersion,
	}, store, orchestrator, retriever, logger)

	logger.Info("server configured",
		"addr", addr,
		"mode", mode.Name,
		"top_k", mode.TopK,
		"model", cfg.LLMModel)

	return server.Run(ctx)
}
