package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/discount-engine/internal/domain/discount"
	"github.com/xenking/discount-engine/internal/repository"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	channelBuffer = 4096
)

func main() {
	var (
		databaseURL  string
		discountCode string
		assignedBy   string
		notes        string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&discountCode, "discount-code", "", "code of the discount to assign")
	flag.StringVar(&assignedBy, "assigned-by", "bulk-import", "actor recorded on each assignment")
	flag.StringVar(&notes, "notes", "", "note recorded on each assignment")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one gzipped user-ID file is required")
		os.Exit(1)
	}
	if discountCode == "" {
		slog.Error("discount code is required: set --discount-code")
		os.Exit(1)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, discountCode, assignedBy, notes, files); err != nil {
		slog.Error("assignment ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("assignment ingest completed successfully")
}

func run(ctx context.Context, databaseURL, discountCode, assignedBy, notes string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	d, err := repository.NewDiscountRepository(pool).FindByCode(ctx, discountCode)
	if err != nil {
		return errors.Wrapf(err, "look up discount %q", discountCode)
	}
	if !d.IsActive {
		return errors.Errorf("discount %q is not active", discountCode)
	}

	slog.Info("assigning discount",
		slog.String("code", d.Code),
		slog.String("id", d.ID.String()),
		slog.Int("files", len(files)),
	)

	// File readers stream user IDs into a channel; a single writer dedups
	// them with a bloom filter and upserts assignments. Keeping the filter
	// on the writer side avoids locking it across readers.
	userIDs := make(chan uuid.UUID, channelBuffer)

	g, ctx := errgroup.WithContext(ctx)

	readers, readerCtx := errgroup.WithContext(ctx)
	for _, f := range files {
		readers.Go(streamUserIDs(readerCtx, f, userIDs))
	}
	g.Go(func() error {
		defer close(userIDs)
		return readers.Wait()
	})
	g.Go(func() error {
		return assignAll(ctx, repository.NewAssignmentRepository(pool), d, assignedBy, notes, userIDs)
	})

	return g.Wait()
}

// streamUserIDs parses one user UUID per line from a gzipped file, skipping
// blank lines and malformed IDs.
func streamUserIDs(ctx context.Context, path string, out chan<- uuid.UUID) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		var lines, malformed uint64
		scanner := bufio.NewScanner(gz)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lines++
			if lines%progressEvery == 0 {
				slog.Info("read progress", slog.String("file", path), slog.Uint64("lines", lines))
			}

			id, err := uuid.Parse(line)
			if err != nil {
				malformed++
				continue
			}

			select {
			case out <- id:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("file complete",
			slog.String("file", path),
			slog.Uint64("lines", lines),
			slog.Uint64("malformed", malformed),
		)
		return nil
	}
}

// assignAll drains the channel, deduplicates user IDs, and upserts one
// assignment per unique user. Users already holding the discount are skipped.
func assignAll(
	ctx context.Context,
	ledger *repository.AssignmentRepository,
	d *discount.Discount,
	assignedBy, notes string,
	userIDs <-chan uuid.UUID,
) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

	var assigned, duplicates, existing uint64
	for id := range userIDs {
		raw := id[:]
		if seen.Test(raw) {
			duplicates++
			continue
		}
		seen.Add(raw)

		_, err := ledger.Upsert(ctx, id, d.ID, assignedBy, notes, time.Now())
		switch {
		case errors.Is(err, discount.ErrAlreadyAssigned):
			existing++
		case err != nil:
			return errors.Wrapf(err, "assign discount to user %s", id)
		default:
			assigned++
			if assigned%100_000 == 0 {
				slog.Info("write progress", slog.Uint64("assigned", assigned))
			}
		}
	}

	slog.Info("assignment pass complete",
		slog.Uint64("assigned", assigned),
		slog.Uint64("duplicates_skipped", duplicates),
		slog.Uint64("already_assigned", existing),
	)
	return nil
}
