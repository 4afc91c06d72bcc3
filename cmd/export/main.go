package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"bookpoint/internal/config"
	"bookpoint/internal/database"
	"bookpoint/internal/export"
	"bookpoint/internal/google"
	"bookpoint/internal/logging"
	"bookpoint/internal/models"
	"bookpoint/internal/postgres"

	"github.com/rs/zerolog"
)

type exportStore interface {
	export.Source
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	today := time.Now().Format(models.DateLayout)
	var (
		configPath = flag.String("config", config.Path(), "path to config.yaml")
		from       = flag.String("from", today, "first date, YYYY-MM-DD")
		to         = flag.String("to", today, "last date, YYYY-MM-DD")
		toSheets   = flag.Bool("sheets", false, "also rewrite the Google Sheets bookings tab with the range")
	)
	flag.Parse()

	start, err := time.Parse(models.DateLayout, *from)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	end, err := time.Parse(models.DateLayout, *to)
	if err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}

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
	logger := baseLogger.With().Str("component", "export").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := openStore(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer store.Close()

	dir := cfg.Exports.Path
	if dir == "" {
		dir = "exports"
	}
	path, err := export.NewExporter(store, dir, &logger).Export(ctx, start, end)
	if err != nil {
		return err
	}
	fmt.Println(path)

	if !*toSheets {
		return nil
	}
	return pushToSheets(ctx, cfg, store, start, end, &logger)
}

func pushToSheets(ctx context.Context, cfg *config.Config, store exportStore, start, end time.Time, logger *zerolog.Logger) error {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return fmt.Errorf("google sheets is not configured")
	}
	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID,
		cfg.Google.BookingsSheetName, logger)
	if err != nil {
		return err
	}
	bookings, err := store.GetBookingsByDateRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}
	if err := sheets.ReplaceBookingsSheet(ctx, bookings); err != nil {
		return err
	}
	logger.Info().Int("bookings", len(bookings)).Msg("bookings sheet replaced")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (exportStore, error) {
	if cfg.Database.Driver == "postgres" {
		pg, err := postgres.Open(ctx, cfg.Database.Postgres, logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}
