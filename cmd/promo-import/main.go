package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/promotion"
	"github.com/xenking/storefront/internal/promoimport"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		pattern      string
		quorum       int
		discountType string
		value        string
		maxUses      int
		validFor     time.Duration
		description  string
		dryRun       bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&pattern, "files", "data/campaign*.gz", "glob of gzip-compressed code dumps")
	flag.IntVar(&quorum, "quorum", 2, "minimum number of files a code must appear in")
	flag.StringVar(&discountType, "discount-type", string(promotion.DiscountPercentage), "percentage or fixed_amount")
	flag.StringVar(&value, "value", "10", "discount value")
	flag.IntVar(&maxUses, "max-uses", 1, "redemptions allowed per code (0 = unlimited)")
	flag.DurationVar(&validFor, "valid-for", 30*24*time.Hour, "how long imported codes stay valid")
	flag.StringVar(&description, "description", "Campaign code", "description stored with every code")
	flag.BoolVar(&dryRun, "dry-run", false, "only report the codes that would be imported")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	files, err := filepath.Glob(pattern)
	if err != nil {
		slog.Error("invalid files pattern", slog.String("error", err.Error()))
		os.Exit(1)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		slog.Error("invalid discount value", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := promoimport.Config{
		Files:         files,
		Quorum:        quorum,
		Capacity:      120_000_000,
		FPR:           0.001,
		MinLen:        8,
		MaxLen:        10,
		ProgressEvery: 10_000_000,
	}
	now := time.Now()
	tmpl := promoimport.Template{
		Description:  description,
		DiscountType: promotion.DiscountType(discountType),
		Value:        amount,
		MaxUses:      maxUses,
		StartsAt:     now,
		EndsAt:       now.Add(validFor),
	}

	if err := run(ctx, databaseURL, cfg, tmpl, dryRun); err != nil {
		slog.Error("promotion import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promotion import completed successfully")
}

func run(ctx context.Context, databaseURL string, cfg promoimport.Config, tmpl promoimport.Template, dryRun bool) error {
	slog.Info("scanning code dumps", slog.Int("files", len(cfg.Files)), slog.Int("quorum", cfg.Quorum))

	codes, err := promoimport.FindCodes(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "find codes")
	}
	slog.Info("codes accepted", slog.Int("count", len(codes)))

	if len(codes) == 0 || dryRun {
		return nil
	}

	promos, err := promoimport.Promotions(codes, tmpl, uuid.NewString)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	inserted, err := promoimport.Write(ctx, postgres.NewStore(pool), promos, 1000)
	if err != nil {
		return errors.Wrap(err, "write promotions")
	}

	slog.Info("promotions imported",
		slog.Int64("inserted", inserted),
		slog.Int64("skipped", int64(len(promos))-inserted),
	)
	return nil
}
