// Command delete-all-matches removes every stored match. Accounts and the
// match event history are kept.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/grus-gras/internal/config"
	"github.com/grus-gras/internal/postgres"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	confirm := flag.Bool("yes", false, "Confirm deletion of all matches")
	timeout := flag.Duration("timeout", 30*time.Second, "Time allowed for the deletion")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if !*confirm {
		fmt.Fprintln(os.Stderr, "refusing to delete all matches without --yes")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Postgres.URL = url
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	deleted, err := repo.DeleteAllMatches(ctx)
	if err != nil {
		logger.Error("failed to delete matches", "error", err)
		repo.Close()
		os.Exit(1)
	}

	fmt.Printf("deleted %d matches\n", deleted)
}
