package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/discount-engine/internal/domain/discount"
	"github.com/xenking/discount-engine/internal/repository"
)

type discountJSON struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Type            string          `json:"type"`
	Value           decimal.Decimal `json:"value"`
	StartsAt        *time.Time      `json:"starts_at"`
	ExpiresAt       *time.Time      `json:"expires_at"`
	MaxUsagePerUser int             `json:"max_usage_per_user"`
	MaxTotalUsage   *int            `json:"max_total_usage"`
	Priority        int             `json:"priority"`
}

func main() {
	var (
		databaseURL   string
		discountsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&discountsFile, "discounts-file", "db/seed/discounts.json", "path to discounts JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, discountsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, discountsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedDiscounts(ctx, repository.NewDiscountRepository(pool), discountsFile); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	return nil
}

func seedDiscounts(ctx context.Context, repo *repository.DiscountRepository, discountsFile string) error {
	slog.Info("reading discounts file", slog.String("path", discountsFile))

	data, err := os.ReadFile(discountsFile)
	if err != nil {
		return errors.Wrap(err, "read discounts file")
	}

	var rules []discountJSON
	if err := json.Unmarshal(data, &rules); err != nil {
		return errors.Wrap(err, "parse discounts JSON")
	}

	slog.Info("inserting discounts", slog.Int("count", len(rules)))

	for _, rule := range rules {
		d := &discount.Discount{
			ID:              uuid.New(),
			Code:            rule.Code,
			Name:            rule.Name,
			Description:     rule.Description,
			Type:            discount.Type(rule.Type),
			Value:           rule.Value,
			StartsAt:        rule.StartsAt,
			ExpiresAt:       rule.ExpiresAt,
			MaxUsagePerUser: rule.MaxUsagePerUser,
			MaxTotalUsage:   rule.MaxTotalUsage,
			IsActive:        true,
			Priority:        rule.Priority,
		}
		if d.Type != discount.TypePercentage && d.Type != discount.TypeFixed {
			return errors.Errorf("discount %q: unknown type %q", rule.Code, rule.Type)
		}
		if d.MaxUsagePerUser <= 0 {
			d.MaxUsagePerUser = 1
		}

		if err := repo.Create(ctx, d); err != nil {
			return errors.Wrapf(err, "insert discount %s", rule.Code)
		}

		slog.Info("inserted discount",
			slog.String("code", rule.Code),
			slog.String("type", rule.Type),
			slog.String("value", rule.Value.String()),
		)
	}

	return nil
}
