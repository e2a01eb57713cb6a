// Command promo-ingest bulk-loads promo codes from gzip'd text files.
//
// Every line is either CODE or CODE,PERCENT. Files are streamed
// concurrently; a code is kept when it occurs in at least -min-files files.
// With -min-files above one, per-file bloom filters are built in a first
// pass so that the second pass only tracks codes that can qualify.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-orders/internal/domain/promo"
	"github.com/xenking/kart-orders/internal/repository"
)

func main() {
	var (
		dataDir        string
		pattern        string
		databaseURL    string
		defaultPercent int
		minFiles       int
		chunkSize      int
		dryRun         bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing promo files")
	flag.StringVar(&pattern, "pattern", "*.gz", "glob of promo files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&defaultPercent, "default-percent", 10, "discount percent for lines without one")
	flag.IntVar(&minFiles, "min-files", 1, "minimum number of files a code must appear in")
	flag.IntVar(&chunkSize, "chunk-size", 1000, "promos inserted per batch")
	flag.BoolVar(&dryRun, "dry-run", false, "scan files without writing to the database")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if err := promo.ValidatePercent(defaultPercent); err != nil {
		slog.Error("invalid --default-percent", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := scanOptions{defaultPercent: defaultPercent, minFiles: minFiles}
	if err := run(ctx, filepath.Join(dataDir, pattern), databaseURL, opts, chunkSize, dryRun); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, glob, databaseURL string, opts scanOptions, chunkSize int, dryRun bool) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrapf(err, "glob %s", glob)
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", glob)
	}
	sort.Strings(files)

	slog.Info("scanning promo files", slog.Int("files", len(files)), slog.Int("min_files", opts.minFiles))

	codes, stats, err := collectCodes(ctx, files, opts)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}

	slog.Info("scan complete",
		slog.Int("valid", len(codes)),
		slog.Uint64("lines", stats.lines),
		slog.Uint64("rejected", stats.rejected),
	)

	if len(codes) == 0 || dryRun {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writePromos(ctx, repository.NewPromoRepository(pool), codes, chunkSize)
}

// promoWriter is satisfied by repository.PromoRepository.
type promoWriter interface {
	InsertMany(ctx context.Context, promos []promo.Promo) (int64, error)
}

// writePromos inserts codes in chunks, skipping codes that already exist.
func writePromos(ctx context.Context, w promoWriter, codes []codeEntry, chunkSize int) error {
	chunkSize = max(1, chunkSize)
	now := time.Now().UTC()

	var inserted int64
	for start := 0; start < len(codes); start += chunkSize {
		end := min(start+chunkSize, len(codes))

		batch := make([]promo.Promo, 0, end-start)
		for _, c := range codes[start:end] {
			batch = append(batch, promo.Promo{
				ID:              uuid.NewString(),
				Code:            c.code,
				DiscountPercent: c.percent,
				Available:       true,
				CreatedAt:       now,
			})
		}

		n, err := w.InsertMany(ctx, batch)
		if err != nil {
			return errors.Wrapf(err, "insert promos %d..%d", start, end)
		}
		inserted += n

		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(codes)))
	}

	slog.Info("promos written",
		slog.Int64("inserted", inserted),
		slog.Int64("existing", int64(len(codes))-inserted),
	)
	return nil
}
