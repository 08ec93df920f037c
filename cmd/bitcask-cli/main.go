// Command bitcask-cli provides an interactive shell over a Bitcask store.
// It initializes the logger, loads configuration, opens the store, and
// starts the command-line interface.
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/aetherkv/bitcask"
	"github.com/aetherkv/bitcask/internal/cli"
	"github.com/aetherkv/bitcask/internal/config"
)

func main() {
	slogHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger := slog.New(slogHandler)
	slog.SetDefault(logger)

	slog.Info("main: loading configuration")
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("main: failed to load configuration", "error", err)
		log.Fatalf("Failed to load config: %v", err)
	}
	slog.Info("main: configuration loaded successfully",
		"data_dir", cfg.DATA_DIR,
		"max_file_size", cfg.MAX_FILE_SIZE,
		"sync_on_put", cfg.SYNC_ON_PUT,
	)

	store, err := bitcask.Open(cfg.DATA_DIR,
		bitcask.WithMaxFileSize(cfg.MAX_FILE_SIZE),
		bitcask.WithSyncOnPut(cfg.SYNC_ON_PUT),
		bitcask.WithLockFileName(cfg.LOCK_FILE_NAME),
		bitcask.WithFileHandleCacheSize(cfg.FILE_HANDLE_CACHE_SIZE),
	)
	if err != nil {
		slog.Error("main: failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("main: error closing store", "error", err)
		}
	}()

	slog.Info("main: bitcask store opened")

	handler := cli.NewHandler(store)
	if err := handler.Run(); err != nil {
		slog.Error("main: CLI handler error", "error", err)
		log.Fatalf("CLI error: %v", err)
	}
}
