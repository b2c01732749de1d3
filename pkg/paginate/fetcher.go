// Package paginate implements the synchronous cursor-paginated fetch path,
// an alternative to bulk export for small datasets.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/gobulk/pkg/record"
	"github.com/3leaps/gobulk/pkg/resource"
)

// ErrPageStagnation indicates the upstream stopped advancing its cursor.
//
// It is reported in Result.Stagnation and never returned as an error.
var ErrPageStagnation = errors.New("pagination cursor did not advance")

// PageRequest asks for up to First items after the After cursor.
type PageRequest struct {
	First int
	After string
}

// PageSource issues the paginated query call.
type PageSource interface {
	FetchPage(ctx context.Context, kind resource.Kind, req PageRequest) (*record.Page, error)
}

// Config configures fetcher behavior.
type Config struct {
	// PageSize is the number of items requested per page.
	// Default: 50
	PageSize int

	// MaxPages caps the number of page calls. Zero means unlimited.
	// Default: 0
	MaxPages int

	// RateLimit is the maximum page calls per second.
	// Zero means unlimited.
	// Default: 0
	RateLimit float64
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:  50,
		MaxPages:  0,
		RateLimit: 0,
	}
}

// Result contains everything fetched by FetchAll.
type Result struct {
	// Records are the page items followed on each page by their flattened
	// children, in upstream order.
	Records []record.Raw

	// Items counts top-level items across all pages.
	Items int

	// Pages counts page calls made.
	Pages int

	// Stagnation is non-nil (matching ErrPageStagnation) when the loop
	// stopped because the cursor did not advance.
	Stagnation error

	// Truncated is true when MaxPages stopped the loop.
	Truncated bool

	Duration time.Duration
}

// Stagnated reports whether the stagnation guard ended the loop.
func (r *Result) Stagnated() bool {
	return r.Stagnation != nil
}

// Fetcher walks every page of a kind's paginated query.
type Fetcher struct {
	source  PageSource
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a fetcher reading from src.
func New(src PageSource, cfg Config) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if cfg.MaxPages < 0 {
		cfg.MaxPages = 0
	}

	f := &Fetcher{
		source: src,
		config: cfg,
		logger: zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return f
}

// WithLogger sets the logger used for page events.
// Returns the fetcher for method chaining.
func (f *Fetcher) WithLogger(l *zap.Logger) *Fetcher {
	if l != nil {
		f.logger = l
	}
	return f
}

// FetchAll requests pages of pageSize items until the upstream is exhausted.
//
// A pageSize of zero uses the configured page size. The loop stops when a
// page is short, when the page reports no further pages, or when the end
// cursor fails to advance (repeats the current or previous cursor, or is
// empty while more pages are claimed). On error the partial result is
// returned with it.
func (f *Fetcher) FetchAll(ctx context.Context, kind resource.Kind, pageSize int) (*Result, error) {
	start := time.Now()
	if pageSize <= 0 {
		pageSize = f.config.PageSize
	}
	if _, err := resource.Lookup(kind); err != nil {
		return nil, err
	}

	res := &Result{}
	var cursor, previous string

	for {
		if f.config.MaxPages > 0 && res.Pages >= f.config.MaxPages {
			res.Truncated = true
			f.logger.Warn("Page limit reached",
				zap.String("kind", kind.String()),
				zap.Int("max_pages", f.config.MaxPages))
			break
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
		}

		page, err := f.source.FetchPage(ctx, kind, PageRequest{First: pageSize, After: cursor})
		if err != nil {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("fetch %s page %d: %w", kind, res.Pages+1, err)
		}
		res.Pages++
		if page == nil {
			page = &record.Page{}
		}

		res.Items += len(page.Items)
		res.Records = append(res.Records, page.Items...)
		res.Records = append(res.Records, page.Children...)

		f.logger.Debug("Fetched page",
			zap.String("kind", kind.String()),
			zap.Int("page", res.Pages),
			zap.Int("items", len(page.Items)),
			zap.String("cursor", page.Cursor),
			zap.Bool("has_next", page.HasNext))

		if len(page.Items) < pageSize || !page.HasNext {
			break
		}
		if page.Cursor == "" || page.Cursor == cursor || page.Cursor == previous {
			res.Stagnation = fmt.Errorf("%w: %s page %d returned cursor %q", ErrPageStagnation, kind, res.Pages, page.Cursor)
			f.logger.Warn("Pagination stopped on stagnant cursor",
				zap.String("kind", kind.String()),
				zap.Int("page", res.Pages),
				zap.String("cursor", page.Cursor))
			break
		}

		previous = cursor
		cursor = page.Cursor
	}

	res.Duration = time.Since(start)
	return res, nil
}
