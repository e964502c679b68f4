// Command coupon-import loads coupon definitions from gzipped NDJSON exports
// into the coupons table. A code defined in more than one input file is
// ambiguous and skipped; every other row is upserted by code.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/emart-orders/internal/domain/coupon"
	"github.com/xenking/emart-orders/internal/repository"
)

const (
	bloomFPR      = 0.001
	maxFiles      = 64
	maxLineSize   = 64 * 1024
	progressEvery = 1_000_000
)

type config struct {
	databaseURL   string
	bloomCapacity uint
	batchSize     int
	dryRun        bool
	files         []string
}

func main() {
	var cfg config

	flag.StringVar(&cfg.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&cfg.bloomCapacity, "expected-codes", 1_000_000, "expected number of codes per file")
	flag.IntVar(&cfg.batchSize, "batch-size", 500, "coupons per upsert batch")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "validate and report without writing")
	flag.Parse()
	cfg.files = flag.Args()

	if cfg.databaseURL == "" {
		cfg.databaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.databaseURL == "" && !cfg.dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if len(cfg.files) == 0 || len(cfg.files) > maxFiles {
		slog.Error("usage: coupon-import [flags] file.ndjson.gz...", slog.Int("max_files", maxFiles))
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, cfg config) error {
	for _, f := range cfg.files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: one bloom filter of codes per file, built concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(cfg.files)))

	filters, err := buildBloomFilters(ctx, cfg.files, cfg.bloomCapacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: exact check of codes another file may also define.
	slog.Info("pass 2: finding codes defined in several files")

	conflicts, err := findConflicts(ctx, cfg.files, filters)
	if err != nil {
		return errors.Wrap(err, "find conflicts")
	}
	slog.Info("conflicting codes found", slog.Int("count", len(conflicts)))

	var sink func(ctx context.Context, rules []coupon.Rule) error
	if cfg.dryRun {
		sink = func(context.Context, []coupon.Rule) error { return nil }
	} else {
		pool, err := repository.NewPool(ctx, cfg.databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		if err := repository.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		sink = repository.NewSeeder(pool).UpsertCoupons
	}

	// Pass 3: decode, validate and write.
	st, err := importFiles(ctx, cfg.files, conflicts, cfg.batchSize, sink)
	if err != nil {
		return errors.Wrap(err, "import")
	}

	slog.Info("import summary",
		slog.Int("written", st.written),
		slog.Int("conflicting", st.conflicting),
		slog.Int("invalid", st.invalid),
		slog.Bool("dry_run", cfg.dryRun),
	)
	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64

			if err := streamGzFile(ctx, path, func(line []byte) {
				code, err := decodeCode(line)
				if err != nil || code == "" {
					return
				}
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findConflicts re-streams every file and records, per code that tests
// positive in another file's filter, a bitmask of the files it was really
// seen in. Codes seen in two or more files are conflicts; bloom false
// positives drop out because their mask has a single bit.
func findConflicts(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	results := make([]map[string]uint64, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint64)
			fileBit := uint64(1) << uint(i)

			if err := streamGzFile(ctx, path, func(line []byte) {
				code, err := decodeCode(line)
				if err != nil || code == "" {
					return
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						candidates[code] |= fileBit
						return
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan file %d for conflicts", i+1)
			}

			slog.Info("pass 2 complete", slog.Int("file", i+1), slog.Int("candidates", len(candidates)))
			results[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeConflicts(results), nil
}

func mergeConflicts(results []map[string]uint64) map[string]struct{} {
	merged := make(map[string]uint64)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}

	conflicts := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			conflicts[code] = struct{}{}
		}
	}
	return conflicts
}

type stats struct {
	written     int
	conflicting int
	invalid     int
}

// importFiles streams files in order and hands valid, unambiguous rules to
// sink in batches of batchSize.
func importFiles(
	ctx context.Context,
	files []string,
	conflicts map[string]struct{},
	batchSize int,
	sink func(ctx context.Context, rules []coupon.Rule) error,
) (stats, error) {
	var (
		st    stats
		batch = make([]coupon.Rule, 0, batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink(ctx, batch); err != nil {
			return err
		}
		st.written += len(batch)
		batch = batch[:0]
		return nil
	}

	for i, path := range files {
		var sinkErr error
		if err := streamGzFile(ctx, path, func(line []byte) {
			if sinkErr != nil {
				return
			}
			rule, err := decodeRule(line)
			if err != nil {
				st.invalid++
				slog.Warn("skipping invalid row", slog.Int("file", i+1), slog.String("error", err.Error()))
				return
			}
			if _, ok := conflicts[normalizeCode(rule.Code)]; ok {
				st.conflicting++
				return
			}
			batch = append(batch, rule)
			if len(batch) == batchSize {
				sinkErr = flush()
			}
		}); err != nil {
			return st, errors.Wrapf(err, "import file %d", i+1)
		}
		if sinkErr != nil {
			return st, errors.Wrapf(sinkErr, "write batch from file %d", i+1)
		}
	}

	if err := flush(); err != nil {
		return st, errors.Wrap(err, "write final batch")
	}
	return st, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty
// line. fn must not retain line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte)) error {
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

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if line := scanner.Bytes(); len(line) > 0 {
			fn(line)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
