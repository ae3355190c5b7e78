package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leadscope/crmchat/internal/config"
	"github.com/leadscope/crmchat/internal/database"
	"github.com/leadscope/crmchat/internal/ingest"
	"github.com/leadscope/crmchat/internal/log"
	"github.com/leadscope/crmchat/internal/retrieval"
)

// runLoad ingests a lead CSV file into the vector index.
func runLoad(cfg *config.Config, logger log.Logger) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: crmchat load <file.csv>")
	}
	path := os.Args[2]

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

	embedder := retrieval.NewOpenAIEmbedder(retrieval.EmbedderConfig{
		BaseURL:    cfg.EmbeddingBaseURL,
		APIKey:     cfg.EmbeddingAPIKey,
		Model:      cfg.EmbeddingModel,
		Dimensions: cfg.EmbeddingDimensions,
	})
	store := retrieval.NewPgxStore(pool, embedder, logger)
	loader := ingest.NewLoader(store, logger)

	n, err := loader.LoadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", path, err)
	}

	total, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting documents: %w", err)
	}

	fmt.Printf("Loaded %d chunks from %s (%d documents indexed)\n", n, path, total)
	return nil
}
