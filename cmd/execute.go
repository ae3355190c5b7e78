// Package cmd contains the CLI entry points: command routing, configuration
// loading, and process wiring for the serve and load commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/leadscope/crmchat/internal/config"
	"github.com/leadscope/crmchat/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "1.0.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the crmchat CLI.
// Routing is handled here so main.go stays a minimal shim.
func Execute() error {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "version", "--version", "-v":
		return printVersionInfo()
	case "help", "--help", "-h":
		printHelp()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)

	switch command {
	case "serve":
		return runServe(cfg, logger)
	case "load":
		return runLoad(cfg, logger)
	default:
		printHelp()
		return fmt.Errorf("unknown command %q", command)
	}
}

// newLogger builds the process logger. The DEBUG environment variable
// forces debug level regardless of configuration.
func newLogger(cfg *config.Config) log.Logger {
	level := cfg.LogLevel
	if os.Getenv("DEBUG") != "" {
		level = "debug"
	}
	return log.New(log.Config{Level: log.ParseLevel(level), JSON: cfg.LogJSON})
}

func printVersionInfo() error {
	fmt.Printf("crmchat v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

func printHelp() {
	fmt.Println("crmchat - retrieval-augmented chat backend for CRM lead data")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  crmchat serve [addr]      Start the HTTP server (default :8000)")
	fmt.Println("  crmchat load <file.csv>   Ingest lead data into the vector index")
	fmt.Println("  crmchat version           Show version information")
	fmt.Println("  crmchat help              Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_URL              Required: PostgreSQL connection string")
	fmt.Println("  OPENAI_API_KEY            Optional: completion API key")
	fmt.Println("  CRMCHAT_MODE              Optional: analytical (default) or strict")
	fmt.Println("  CRMCHAT_ADDR              Optional: listen address")
	fmt.Println("  DEBUG                     Optional: enable debug logging")
}
