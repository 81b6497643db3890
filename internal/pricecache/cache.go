// Package pricecache is a persistent per-ticker store of daily price
// series, read-through against the network price source. A cache entry
// is either absent, present-and-covering, or present-but-partial;
// partial coverage is a miss and triggers a full atomic replace, so the
// cache never mixes stale and fresh rows for one ticker.
package pricecache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/infrastructure"
	"eventstudy/internal/pricesource"
	"eventstudy/pkg/contracts/domain"
)

// Options configures cache behavior beyond the directory and source.
type Options struct {
	// AllowStale serves an existing cache entry when the refetch fails.
	// Off by default: stale data is never served silently.
	AllowStale bool
	Logger     *slog.Logger
	Metrics    *infrastructure.PipelineMetrics
}

// Stats counts cache outcomes for one run.
type Stats struct {
	Hits          int `json:"hits"`
	Misses        int `json:"misses"`
	PartialMisses int `json:"partial_misses"`
	Refreshes     int `json:"refreshes"`
	FetchErrors   int `json:"fetch_errors"`
	StaleServed   int `json:"stale_served"`
}

// Cache is the durable per-ticker price store.
type Cache struct {
	dir        string
	source     pricesource.Client
	allowStale bool
	logger     *slog.Logger
	metrics    *infrastructure.PipelineMetrics

	// locks serializes writers per cache file path.
	locks sync.Map // path -> *sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// New creates a cache rooted at dir, fetching misses through source.
func New(dir string, source pricesource.Client, opts Options) (*Cache, error) {
	if dir == "" {
		return nil, apperrors.NewConfigError("price cache dir is empty", nil)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.NewStorageError("failed to create price cache dir", err).
			WithContext("dir", dir)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		dir:        dir,
		source:     source,
		allowStale: opts.AllowStale,
		logger:     logger.With(slog.String("component", "price_cache")),
		metrics:    opts.Metrics,
	}, nil
}

// Path returns the cache file path for a ticker, derived
// deterministically from the upper-cased symbol.
func (c *Cache) Path(ticker string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s.csv", strings.ToUpper(ticker)))
}

// Stats returns a snapshot of the run counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Cache) count(f func(*Stats)) {
	c.statsMu.Lock()
	f(&c.stats)
	c.statsMu.Unlock()
}

// Get returns the price series for ticker covering rng. With refresh
// false a covering cache entry is returned without any network call; a
// missing or partially covering entry is refetched in full and the file
// replaced atomically. With refresh true the network path is taken
// unconditionally.
func (c *Cache) Get(ctx context.Context, ticker string, rng domain.DateRange, refresh bool) (domain.PriceSeries, error) {
	if !rng.Valid() {
		return domain.PriceSeries{}, apperrors.NewValidationError(
			fmt.Sprintf("invalid date range %s for ticker %s", rng, ticker))
	}

	path := c.Path(ticker)
	lock := c.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	var stale *domain.PriceSeries
	if !refresh {
		cached, err := c.load(ctx, path)
		if err == nil {
			if cached.Covers(rng) {
				c.count(func(s *Stats) { s.Hits++ })
				if c.metrics != nil {
					c.metrics.CacheHits.Add(ctx, 1)
				}
				return cached, nil
			}
			// Partial coverage is a miss: never silently return an
			// incomplete series.
			stale = &cached
			c.count(func(s *Stats) { s.PartialMisses++ })
			if c.metrics != nil {
				c.metrics.CachePartialMisses.Add(ctx, 1)
			}
			c.logger.InfoContext(ctx, "cache entry does not cover requested range",
				slog.String("ticker", ticker),
				slog.String("cached_range", cached.FetchedRange.String()),
				slog.String("requested_range", rng.String()))
		} else {
			c.count(func(s *Stats) { s.Misses++ })
			if c.metrics != nil {
				c.metrics.CacheMisses.Add(ctx, 1)
			}
		}
	} else {
		c.count(func(s *Stats) { s.Refreshes++ })
		if c.metrics != nil {
			c.metrics.CacheRefreshes.Add(ctx, 1)
		}
		if cached, err := c.load(ctx, path); err == nil {
			stale = &cached
		}
	}

	series, err := c.fetchAndStore(ctx, ticker, rng, path)
	if err != nil {
		c.count(func(s *Stats) { s.FetchErrors++ })
		if stale != nil && c.allowStale {
			c.count(func(s *Stats) { s.StaleServed++ })
			c.logger.WarnContext(ctx, "price fetch failed, serving stale cache entry by explicit opt-in",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()))
			return *stale, nil
		}
		return domain.PriceSeries{}, err
	}
	return series, nil
}

// load reads and validates the cache entry at path.
func (c *Cache) load(ctx context.Context, path string) (domain.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	defer f.Close()

	series, err := ReadSeries(f)
	if err != nil {
		// A corrupt entry is treated as absent; the atomic write path
		// will replace it wholesale.
		c.logger.WarnContext(ctx, "discarding unreadable cache entry",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return domain.PriceSeries{}, err
	}
	return series, nil
}

// fetchAndStore downloads the full series for rng and atomically
// replaces the cache entry.
func (c *Cache) fetchAndStore(ctx context.Context, ticker string, rng domain.DateRange, path string) (domain.PriceSeries, error) {
	points, err := c.source.FetchPrices(ctx, ticker, rng)
	if err != nil {
		if apperrors.IsPriceFetchError(err) {
			return domain.PriceSeries{}, err
		}
		return domain.PriceSeries{}, apperrors.NewPriceFetchError(ticker, "price fetch failed", err)
	}

	series := domain.PriceSeries{
		Ticker:       strings.ToUpper(ticker),
		Points:       points,
		FetchedAt:    time.Now().UTC().Truncate(time.Second),
		FetchedRange: rng,
	}

	if err := c.store(series, path); err != nil {
		return domain.PriceSeries{}, err
	}

	c.logger.InfoContext(ctx, "cached price series",
		slog.String("ticker", series.Ticker),
		slog.Int("points", len(series.Points)),
		slog.String("range", rng.String()))
	return series, nil
}

// store writes the series to a temp file in the cache dir and renames it
// over the entry, so a crash mid-write never leaves a torn file behind.
func (c *Cache) store(series domain.PriceSeries, path string) error {
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return apperrors.NewStorageError("failed to create temp cache file", err).
			WithContext("path", path)
	}
	tmpName := tmp.Name()

	if err := WriteSeries(tmp, series); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to write cache file", err).
			WithContext("path", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to close cache file", err).
			WithContext("path", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("failed to replace cache file", err).
			WithContext("path", path)
	}
	return nil
}

func (c *Cache) pathLock(path string) *sync.Mutex {
	actual, _ := c.locks.LoadOrStore(path, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
