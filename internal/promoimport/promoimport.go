// Package promoimport extracts campaign codes from gzip-compressed code
// dumps. A code is accepted when it appears in at least Quorum of the files.
//
// Files are streamed twice. The first pass builds one bloom filter per file;
// the second re-reads every file and records, per code, which files contain
// it and hit at least one other file's filter. Only files that really hold a
// code set its bit, so false positives never inflate the count.
package promoimport

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"slices"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/promotion"
)

const maxFiles = 64

// Config controls code extraction.
type Config struct {
	Files []string
	// Quorum is the minimum number of files a code must appear in.
	Quorum int
	// Capacity and FPR size each file's bloom filter.
	Capacity uint
	FPR      float64
	// Codes outside [MinLen, MaxLen] are ignored.
	MinLen int
	MaxLen int
	// ProgressEvery logs a progress line every n codes; 0 disables it.
	ProgressEvery uint64
}

func (c *Config) validate() error {
	switch {
	case len(c.Files) < 2:
		return errors.New("at least two files are required")
	case len(c.Files) > maxFiles:
		return errors.Errorf("at most %d files are supported", maxFiles)
	case c.Quorum < 2 || c.Quorum > len(c.Files):
		return errors.Errorf("quorum must be between 2 and %d", len(c.Files))
	case c.Capacity == 0 || c.FPR <= 0 || c.FPR >= 1:
		return errors.New("bloom capacity and false positive rate must be set")
	case c.MinLen <= 0 || c.MaxLen < c.MinLen:
		return errors.New("invalid code length bounds")
	}
	return nil
}

func (c *Config) accept(code string) bool {
	return len(code) >= c.MinLen && len(code) <= c.MaxLen
}

// FindCodes returns the normalized codes that reach the quorum, sorted.
func FindCodes(ctx context.Context, cfg Config) ([]string, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	filters := make([]*bloom.BloomFilter, len(cfg.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range cfg.Files {
		g.Go(func() error {
			f, err := buildFilter(gctx, &cfg, path)
			if err != nil {
				return errors.Wrapf(err, "pass 1: %s", path)
			}
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	masks := make([]map[string]uint64, len(cfg.Files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range cfg.Files {
		g.Go(func() error {
			m, err := collectCandidates(gctx, &cfg, i, path, filters)
			if err != nil {
				return errors.Wrapf(err, "pass 2: %s", path)
			}
			masks[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	var codes []string
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= cfg.Quorum {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)
	return codes, nil
}

func buildFilter(ctx context.Context, cfg *Config, path string) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(cfg.Capacity, cfg.FPR)
	var n uint64
	err := streamCodes(ctx, path, func(code string) {
		if !cfg.accept(code) {
			return
		}
		filter.AddString(code)
		n++
		cfg.progress("pass 1 progress", path, n)
	})
	if err != nil {
		return nil, err
	}
	slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("codes", n))
	return filter, nil
}

func collectCandidates(ctx context.Context, cfg *Config, idx int, path string, filters []*bloom.BloomFilter) (map[string]uint64, error) {
	bit := uint64(1) << uint(idx)
	candidates := make(map[string]uint64)
	var n uint64
	err := streamCodes(ctx, path, func(code string) {
		if !cfg.accept(code) {
			return
		}
		n++
		cfg.progress("pass 2 progress", path, n)
		for j, f := range filters {
			if j != idx && f.TestString(code) {
				candidates[code] |= bit
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	slog.Info("pass 2 complete",
		slog.String("file", path),
		slog.Uint64("codes", n),
		slog.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

func (c *Config) progress(msg, path string, n uint64) {
	if c.ProgressEvery > 0 && n%c.ProgressEvery == 0 {
		slog.Info(msg, slog.String("file", path), slog.Uint64("codes", n))
	}
}

// streamCodes calls fn with every normalized non-empty line of a gzip file.
func streamCodes(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if code := promotion.NormalizeCode(scanner.Text()); code != "" {
			fn(code)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

// Template describes the promotion created for every imported code.
type Template struct {
	Description  string
	DiscountType promotion.DiscountType
	Value        decimal.Decimal
	MinPurchase  *decimal.Decimal
	// MaxUses caps redemptions per code; 0 means unlimited.
	MaxUses  int
	StartsAt time.Time
	EndsAt   time.Time
}

// Promotions expands codes into scope-all promotions built from t. The
// first code is validated so a bad template fails before anything is written.
func Promotions(codes []string, t Template, newID func() string) ([]promotion.Promotion, error) {
	out := make([]promotion.Promotion, len(codes))
	for i, code := range codes {
		p := promotion.Promotion{
			ID:           newID(),
			Code:         code,
			Description:  t.Description,
			DiscountType: t.DiscountType,
			Value:        t.Value,
			MinPurchase:  t.MinPurchase,
			StartsAt:     t.StartsAt,
			EndsAt:       t.EndsAt,
			Scope:        promotion.ScopeAll,
			Active:       true,
			CreatedAt:    time.Now(),
		}
		if t.MaxUses > 0 {
			maxUses := t.MaxUses
			p.MaxUses = &maxUses
		}
		if i == 0 {
			if err := p.Validate(); err != nil {
				return nil, errors.Wrap(err, "promotion template")
			}
		}
		out[i] = p
	}
	return out, nil
}

// Importer writes promotions, skipping codes that already exist, and
// reports how many rows it inserted.
type Importer interface {
	ImportPromotions(ctx context.Context, promos []promotion.Promotion) (int64, error)
}

// Write imports promos in chunks of batchSize.
func Write(ctx context.Context, imp Importer, promos []promotion.Promotion, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var total int64
	for chunk := range slices.Chunk(promos, batchSize) {
		n, err := imp.ImportPromotions(ctx, chunk)
		total += n
		if err != nil {
			return total, errors.Wrap(err, "import chunk")
		}
		slog.Info("import progress", slog.Int64("inserted", total), slog.Int("total", len(promos)))
	}
	return total, nil
}
