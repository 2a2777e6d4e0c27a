package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"reportengine-backend/internal/reportcfg"
	"reportengine-backend/internal/storage"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}

	ctx := context.Background()
	store, err := storage.NewStore(ctx, dsn)
	if err != nil {
		logger.Fatal("failed to connect", zap.Error(err))
	}
	defer store.Close()

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		logger.Fatal("failed to list migrations", zap.Error(err))
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Fatal("failed to read migration", zap.String("file", file), zap.Error(err))
		}
		if _, err := store.Pool.Exec(ctx, string(content)); err != nil {
			logger.Fatal("failed to apply migration", zap.String("file", file), zap.Error(err))
		}
		logger.Info("applied migration", zap.String("file", file))
	}

	repo := storage.NewRepository(store)
	manager := reportcfg.NewManager(repo, repo, logger)
	if err := manager.SeedBuiltinTemplates(ctx); err != nil {
		logger.Fatal("failed to seed templates", zap.Error(err))
	}
	logger.Info("migrations complete")
}
