package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/order-lifecycle/internal/domain/catalog"
	"github.com/xenking/order-lifecycle/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

// Upserter stores a batch of variants, replacing existing rows by id.
type Upserter interface {
	Upsert(ctx context.Context, variants []catalog.Variant) error
}

type options struct {
	files     []string
	capacity  uint
	batchSize int
}

func main() {
	var (
		dataDir     string
		databaseURL string
		numFiles    int
		capacity    uint
		batchSize   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing variantsN.gz files")
	flag.IntVar(&numFiles, "files", 3, "number of variantsN.gz files, later files override earlier ones")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected variant rows per file")
	flag.IntVar(&batchSize, "batch-size", 1000, "rows per upsert batch")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("variants%d.gz", i+1))
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		slog.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	opts := options{files: files, capacity: capacity, batchSize: batchSize}
	if err := run(ctx, repository.NewVariantRepository(pool), opts); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		pool.Close()
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

// run loads variant files so that a variant listed in several files ends up
// with the row from the last file. Rows no later file can contain are written
// concurrently; the few shadow candidates are resolved in a final ordered pass.
func run(ctx context.Context, store Upserter, opts options) error {
	for _, f := range opts.files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}
	if opts.batchSize <= 0 {
		opts.batchSize = 1000
	}

	// Pass 1: one bloom filter of variant ids per file.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(opts.files)))

	filters, err := buildBloomFilters(ctx, opts.files, opts.capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: write rows that no later file lists.
	slog.Info("pass 2: writing unshadowed rows")

	candidates, err := writeUnshadowed(ctx, store, opts, filters)
	if err != nil {
		return errors.Wrap(err, "write unshadowed rows")
	}

	// Pass 3: last occurrence wins for ids that may repeat across files.
	slog.Info("pass 3: resolving repeated variants", slog.Int("candidates", len(candidates)))

	if len(candidates) == 0 {
		return nil
	}
	if err := writeLatest(ctx, store, opts, candidates); err != nil {
		return errors.Wrap(err, "write repeated variants")
	}
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

			if err := streamGzFile(ctx, path, func(v catalog.Variant) error {
				filter.AddString(idKey(v.ID))
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("rows", count))
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_rows", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// writeUnshadowed streams every file concurrently and upserts the rows whose id
// is in no later file's filter. It returns the ids that might be shadowed.
func writeUnshadowed(ctx context.Context, store Upserter, opts options, filters []*bloom.BloomFilter) (map[int64]struct{}, error) {
	shadowed := make([]map[int64]struct{}, len(opts.files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range opts.files {
		g.Go(func() error {
			candidates := make(map[int64]struct{})
			batch := make([]catalog.Variant, 0, opts.batchSize)
			var written uint64

			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if err := store.Upsert(ctx, batch); err != nil {
					return err
				}
				written += uint64(len(batch))
				batch = batch[:0]
				return nil
			}

			if err := streamGzFile(ctx, path, func(v catalog.Variant) error {
				key := idKey(v.ID)
				for _, later := range filters[i+1:] {
					if later.TestString(key) {
						candidates[v.ID] = struct{}{}
						return nil
					}
				}
				batch = append(batch, v)
				if len(batch) == opts.batchSize {
					return flush()
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "write file %d", i+1)
			}
			if err := flush(); err != nil {
				return errors.Wrapf(err, "write file %d", i+1)
			}

			slog.Info("pass 2 complete",
				slog.Int("file", i+1),
				slog.Uint64("written", written),
				slog.Int("candidates", len(candidates)),
			)
			shadowed[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[int64]struct{})
	for _, c := range shadowed {
		for id := range c {
			merged[id] = struct{}{}
		}
	}
	return merged, nil
}

// writeLatest re-reads the files in order, keeps the last row of every
// candidate id and upserts those rows.
func writeLatest(ctx context.Context, store Upserter, opts options, candidates map[int64]struct{}) error {
	latest := make(map[int64]catalog.Variant, len(candidates))
	for i, path := range opts.files {
		if err := streamGzFile(ctx, path, func(v catalog.Variant) error {
			if _, ok := candidates[v.ID]; ok {
				latest[v.ID] = v
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "rescan file %d", i+1)
		}
	}

	batch := make([]catalog.Variant, 0, opts.batchSize)
	for _, v := range latest {
		batch = append(batch, v)
		if len(batch) == opts.batchSize {
			if err := store.Upsert(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return store.Upsert(ctx, batch)
	}
	return nil
}

// streamGzFile opens a gzip-compressed CSV file and calls fn for each valid
// variant row. Malformed rows, including a header, are skipped.
func streamGzFile(ctx context.Context, path string, fn func(v catalog.Variant) error) error {
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

	var skipped int
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, ok := parseLine(scanner.Text())
		if !ok {
			skipped++
			continue
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	if skipped > 0 {
		slog.Debug("skipped malformed rows", slog.String("path", path), slog.Int("rows", skipped))
	}
	return nil
}

// parseLine parses "variant_id,product_id,sku,status".
func parseLine(line string) (catalog.Variant, bool) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 4 {
		return catalog.Variant{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || id <= 0 {
		return catalog.Variant{}, false
	}
	productID, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || productID <= 0 {
		return catalog.Variant{}, false
	}
	sku := strings.TrimSpace(parts[2])
	if sku == "" {
		return catalog.Variant{}, false
	}
	var status catalog.VariantStatus
	switch catalog.VariantStatus(strings.ToUpper(strings.TrimSpace(parts[3]))) {
	case catalog.VariantActive:
		status = catalog.VariantActive
	case catalog.VariantInactive:
		status = catalog.VariantInactive
	default:
		return catalog.Variant{}, false
	}
	return catalog.Variant{ID: id, ProductID: productID, SKU: sku, Status: status}, true
}

func idKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
