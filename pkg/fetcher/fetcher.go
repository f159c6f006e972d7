// Package fetcher walks the cursor-paginated clip listing. One cursor chain
// is always consumed sequentially; FetchMany overlaps independent
// broadcasters. A shared limiter spaces every page request across all
// chains.
package fetcher

import (
	"context"
	"time"

	"clipharvest/internal/workerpool"
	"clipharvest/pkg/config"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/metrics"
	"clipharvest/pkg/models"
	"clipharvest/pkg/ratelimit"
	"clipharvest/pkg/retry"
	"clipharvest/pkg/twitch"
)

// PageSource returns one page of a clip listing
type PageSource interface {
	ClipsPage(ctx context.Context, q twitch.ClipsQuery) (*twitch.ClipsPage, error)
}

// Window is an inclusive time range
type Window struct {
	Start time.Time
	End   time.Time
}

// Query selects one broadcaster's clips in a window
type Query struct {
	BroadcasterID string
	Window        Window
}

// Result is everything one walk produced. When Truncated is set the walk
// stopped before the last page and Err holds the reason; Clips still holds
// every record gathered up to that point.
type Result struct {
	Query     Query
	Clips     []models.ClipRecord
	Pages     int
	Malformed int
	Truncated bool
	Err       error
}

// Fetcher drives page requests
type Fetcher struct {
	source      PageSource
	limiter     ratelimit.Limiter
	retry       *retry.Config
	pageSize    int
	concurrency int
	metrics     *metrics.Metrics
	logger      logger.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithLimiter replaces the inter-request limiter
func WithLimiter(l ratelimit.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRetry replaces the retry policy for page requests
func WithRetry(cfg *retry.Config) Option {
	return func(f *Fetcher) { f.retry = cfg }
}

// WithMetrics records page counts
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a fetcher configured from cfg
func New(source PageSource, cfg config.FetchConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		source:      source,
		limiter:     ratelimit.NewInterval(cfg.MinRequestInterval),
		pageSize:    cfg.PageSize,
		concurrency: cfg.Concurrency,
		retry: &retry.Config{
			MaxAttempts: cfg.RetryAttempts,
			Backoff: &retry.ExponentialBackoff{
				BaseDelay:    cfg.RetryBaseDelay,
				MaxDelay:     30 * time.Second,
				Multiplier:   2,
				JitterFactor: 0.1,
			},
			RetryIf: retry.DefaultRetryIf,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.concurrency < 1 {
		f.concurrency = 1
	}
	rc := *f.retry
	if rc.Logger == nil {
		rc.Logger = f.logger
	}
	f.retry = &rc
	return f
}

// FetchAll walks every page of q. The returned error is reserved for an
// invalid query or a cancelled context; page failures that outlast the
// retry budget truncate the walk and are reported on the Result.
func (f *Fetcher) FetchAll(ctx context.Context, q Query) (*Result, error) {
	const op = "fetcher.FetchAll"

	if q.BroadcasterID == "" {
		return nil, errors.New(errors.KindInvalidInput, op, "broadcaster id is required")
	}
	if q.Window.Start.After(q.Window.End) {
		return nil, errors.Newf(errors.KindInvalidInput, op, "window start %s is after end %s",
			q.Window.Start.Format(time.RFC3339), q.Window.End.Format(time.RFC3339))
	}

	log := logger.Or(f.logger).WithField("broadcaster_id", q.BroadcasterID)
	res := &Result{Query: q}
	seen := make(map[string]bool)
	cursor := ""

	for {
		page, err := retry.DoWithResult(ctx, f.retry, func(ctx context.Context) (*twitch.ClipsPage, error) {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return f.source.ClipsPage(ctx, twitch.ClipsQuery{
				BroadcasterID: q.BroadcasterID,
				StartedAt:     q.Window.Start,
				EndedAt:       q.Window.End,
				First:         f.pageSize,
				After:         cursor,
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Truncated = true
			res.Err = err
			f.metrics.WalkTruncated()
			log.WithError(err).WithFields(map[string]interface{}{
				"pages": res.Pages,
				"clips": len(res.Clips),
			}).Warn("clip listing truncated")
			return res, nil
		}

		res.Pages++
		res.Malformed += page.Malformed
		res.Clips = append(res.Clips, page.Clips...)
		f.metrics.PageFetched(len(page.Clips))

		if page.Cursor == "" {
			break
		}
		if seen[page.Cursor] {
			res.Truncated = true
			res.Err = errors.Newf(errors.KindMalformedRecord, op, "cursor %q repeated", page.Cursor)
			log.WithError(res.Err).Warn("clip listing truncated")
			f.metrics.WalkTruncated()
			break
		}
		seen[page.Cursor] = true
		cursor = page.Cursor
	}

	log.DebugWithFields("clip listing complete", map[string]interface{}{
		"pages":     res.Pages,
		"clips":     len(res.Clips),
		"malformed": res.Malformed,
	})
	return res, nil
}

// FetchMany runs FetchAll for each query with bounded concurrency. Results
// are in query order; a query that could not run has Err set.
func (f *Fetcher) FetchMany(ctx context.Context, queries []Query) []*Result {
	results := workerpool.Run(ctx, f.concurrency, queries, func(ctx context.Context, q Query) *Result {
		res, err := f.FetchAll(ctx, q)
		if err != nil {
			if res == nil {
				res = &Result{Query: q}
			}
			res.Err = err
		}
		return res
	}, workerpool.WithName("fetch"), workerpool.WithLogger(f.logger))

	for i, r := range results {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = errors.New(errors.KindUnknown, "fetcher.FetchMany", "walk did not complete")
			}
			results[i] = &Result{Query: queries[i], Err: err}
		}
	}
	return results
}
