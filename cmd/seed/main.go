package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"bookpoint/internal/catalog"
	"bookpoint/internal/config"
	"bookpoint/internal/database"
	"bookpoint/internal/domain"
	"bookpoint/internal/logging"
	"bookpoint/internal/postgres"

	"github.com/rs/zerolog"
)

type catalogStore interface {
	domain.CatalogWriter
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		catalogPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		configPath  = flag.String("config", config.Path(), "path to config.yaml")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "seed").Logger()

	file, err := catalog.Load(*catalogPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sum, err := catalog.Apply(ctx, store, file, &logger)
	if err != nil {
		return err
	}

	fmt.Printf("Done. services=%d extras=%d staff=%d availability=%d\n", sum.Services, sum.Extras, sum.Staff, sum.Availability)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (catalogStore, error) {
	if cfg.Database.Driver == "postgres" {
		pg, err := postgres.Open(ctx, cfg.Database.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}
