package main

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-orders/internal/domain/promo"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	// maxFiles bounds the per-code file bitmask.
	maxFiles = bits.UintSize
)

type scanOptions struct {
	defaultPercent int
	minFiles       int
}

type scanStats struct {
	lines    uint64
	rejected uint64
}

type codeEntry struct {
	code    string
	percent int
}

// candidate is a code seen in one file. mask has the bit of that file set;
// merged candidates carry the bits of every file the code was found in.
type candidate struct {
	mask    uint
	percent int
}

// parseLine parses "CODE" or "CODE,PERCENT". Blank lines and lines starting
// with '#' are skipped without being rejected.
func parseLine(line string, defaultPercent int) (entry codeEntry, skip bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return codeEntry{}, true, nil
	}

	code, rawPercent, hasPercent := strings.Cut(line, ",")
	code = strings.TrimSpace(code)
	percent := defaultPercent
	if hasPercent {
		percent, err = strconv.Atoi(strings.TrimSpace(rawPercent))
		if err != nil {
			return codeEntry{}, false, errors.Wrapf(err, "percent of %q", code)
		}
	}

	if err := promo.ValidateCode(code); err != nil {
		return codeEntry{}, false, err
	}
	if err := promo.ValidatePercent(percent); err != nil {
		return codeEntry{}, false, err
	}
	return codeEntry{code: code, percent: percent}, false, nil
}

// collectCodes returns the deduplicated codes found in at least
// opts.minFiles of files, sorted by code. When a code appears with
// different percents, the one from the first file in files wins.
func collectCodes(ctx context.Context, files []string, opts scanOptions) ([]codeEntry, scanStats, error) {
	var stats scanStats
	if len(files) > maxFiles {
		return nil, stats, errors.Errorf("at most %d files supported, got %d", maxFiles, len(files))
	}
	minFiles := max(1, opts.minFiles)
	if minFiles > len(files) {
		return nil, stats, errors.Errorf("min files %d exceeds file count %d", minFiles, len(files))
	}

	var filters []*bloom.BloomFilter
	if minFiles > 1 {
		var err error
		filters, err = buildFilters(ctx, files, opts.defaultPercent)
		if err != nil {
			return nil, stats, errors.Wrap(err, "build bloom filters")
		}
	}

	results := make([]map[string]candidate, len(files))
	var lines, rejected atomic.Uint64

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]candidate)
			bit := uint(1) << uint(i)
			var n uint64

			err := streamFile(gctx, path, func(line string) {
				if n++; n%progressEvery == 0 {
					logProgress("scan", i, n)
				}
				e, skip, err := parseLine(line, opts.defaultPercent)
				if skip {
					return
				}
				if err != nil {
					rejected.Add(1)
					return
				}
				if _, seen := found[e.code]; seen {
					return
				}
				if !inEnoughOtherFiles(filters, i, e.code, minFiles-1) {
					return
				}
				found[e.code] = candidate{mask: bit, percent: e.percent}
			})
			lines.Add(n)
			if err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	// Merge in file order so the first file's percent wins.
	merged := make(map[string]candidate)
	for _, found := range results {
		for code, c := range found {
			if prev, ok := merged[code]; ok {
				prev.mask |= c.mask
				merged[code] = prev
				continue
			}
			merged[code] = c
		}
	}

	out := make([]codeEntry, 0, len(merged))
	for code, c := range merged {
		if bits.OnesCount(c.mask) >= minFiles {
			out = append(out, codeEntry{code: code, percent: c.percent})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })

	stats.lines = lines.Load()
	stats.rejected = rejected.Load()
	return out, stats, nil
}

// inEnoughOtherFiles reports whether code may occur in at least need files
// other than self. Bloom filters have no false negatives, so a false result
// is exact.
func inEnoughOtherFiles(filters []*bloom.BloomFilter, self int, code string, need int) bool {
	if need <= 0 {
		return true
	}
	hits := 0
	for j, f := range filters {
		if j == self || !f.TestString(code) {
			continue
		}
		hits++
		if hits >= need {
			return true
		}
	}
	return false
}

// buildFilters creates one bloom filter of valid codes per file, concurrently.
func buildFilters(ctx context.Context, files []string, defaultPercent int) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var n uint64
			err := streamFile(gctx, path, func(line string) {
				e, skip, err := parseLine(line, defaultPercent)
				if skip || err != nil {
					return
				}
				filter.AddString(e.code)
				if n++; n%progressEvery == 0 {
					logProgress("filter", i, n)
				}
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// streamFile calls fn for every line of the gzip-compressed file at path.
func streamFile(ctx context.Context, path string, fn func(line string)) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

func logProgress(pass string, file int, lines uint64) {
	slog.Info(pass+" progress", slog.Int("file", file+1), slog.Uint64("lines", lines))
}
