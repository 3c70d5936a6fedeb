// Package revenue sums a customer's historical order value across the
// paginated order list and memoizes the result for the session.
package revenue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"uptain-sync/internal/model"
)

// Zero is the formatted value for no revenue.
const Zero = "0.00"

// DefaultMaxPages bounds paging when the order list never reports a last page.
const DefaultMaxPages = 100

// PageFetcher retrieves one page of the customer's order list. Pages start at 1.
type PageFetcher interface {
	FetchOrdersPage(ctx context.Context, page int) (*model.OrdersPage, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, page int) (*model.OrdersPage, error)

// FetchOrdersPage calls f.
func (f PageFetcherFunc) FetchOrdersPage(ctx context.Context, page int) (*model.OrdersPage, error) {
	return f(ctx, page)
}

// Calculator computes lifetime revenue once per session.
// Concurrent callers share a single paging sequence.
type Calculator struct {
	fetcher  PageFetcher
	logger   *slog.Logger
	maxPages int

	group singleflight.Group

	mu     sync.Mutex
	cached string
	valid  bool
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithMaxPages overrides DefaultMaxPages.
func WithMaxPages(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCalculator creates a Calculator reading orders from fetcher.
func NewCalculator(fetcher PageFetcher, opts ...Option) *Calculator {
	c := &Calculator{
		fetcher:  fetcher,
		logger:   slog.Default(),
		maxPages: DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate returns the customer's revenue as a two-decimal string.
// Unauthenticated sessions always yield Zero. A failed fetch yields Zero
// and leaves the cache empty so a later call can retry.
func (c *Calculator) Calculate(ctx context.Context, authenticated bool) string {
	if !authenticated || c == nil || c.fetcher == nil {
		return Zero
	}

	if v, ok := c.cachedValue(); ok {
		return v
	}

	// The flight outlives any single caller, so it runs detached from the
	// caller's cancellation. A caller that gives up gets Zero; the others
	// still receive the shared result.
	flight := context.WithoutCancel(ctx)
	ch := c.group.DoChan("revenue", func() (any, error) {
		// A caller that arrived after another flight finished sees the cache.
		if v, ok := c.cachedValue(); ok {
			return v, nil
		}

		cents, err := c.sum(flight)
		if err != nil {
			return nil, err
		}

		formatted := model.FormatCents(cents)
		c.mu.Lock()
		c.cached, c.valid = formatted, true
		c.mu.Unlock()
		return formatted, nil
	})

	select {
	case <-ctx.Done():
		return Zero
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn("revenue calculation failed", "error", res.Err)
			return Zero
		}
		return res.Val.(string)
	}
}

// Reset drops the cached value. Called when the customer session changes.
func (c *Calculator) Reset() {
	c.mu.Lock()
	c.cached, c.valid = "", false
	c.mu.Unlock()
}

func (c *Calculator) cachedValue() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached, c.valid
}

// sum pages through the order list, adding every strictly positive net item
// total. Returns and cancellations carry non-positive totals and are skipped.
func (c *Calculator) sum(ctx context.Context) (int64, error) {
	var total int64

	for page := 1; page <= c.maxPages; page++ {
		result, err := c.fetcher.FetchOrdersPage(ctx, page)
		if err != nil {
			return 0, fmt.Errorf("fetch orders page %d: %w", page, err)
		}
		if result == nil || len(result.Entries) == 0 {
			return total, nil
		}

		for _, order := range result.Entries {
			if cents := model.ToCents(order.ItemSumNet); cents > 0 {
				total += cents
			}
		}

		if result.IsLastPage || (result.LastPageNumber > 0 && page >= result.LastPageNumber) {
			return total, nil
		}
	}

	c.logger.Warn("order paging stopped at page cap", "max_pages", c.maxPages)
	return total, nil
}
