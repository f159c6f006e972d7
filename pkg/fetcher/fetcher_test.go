package fetcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipharvest/pkg/config"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/models"
	"clipharvest/pkg/ratelimit"
	"clipharvest/pkg/retry"
	"clipharvest/pkg/twitch"
)

// scriptedSource serves pages keyed by broadcaster and cursor
type scriptedSource struct {
	mu       sync.Mutex
	pages    map[string]*twitch.ClipsPage
	failures map[string]int
	calls    []string
}

func key(broadcaster, cursor string) string {
	return broadcaster + "|" + cursor
}

func (s *scriptedSource) ClipsPage(ctx context.Context, q twitch.ClipsQuery) (*twitch.ClipsPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(q.BroadcasterID, q.After)
	s.calls = append(s.calls, k)

	if n := s.failures[k]; n > 0 {
		s.failures[k] = n - 1
		return nil, errors.New(errors.KindTransientNetwork, "test", "connection reset")
	}
	page, ok := s.pages[k]
	if !ok {
		return nil, errors.New(errors.KindNotFound, "test", "no such page "+k)
	}
	return page, nil
}

func clips(ids ...string) []models.ClipRecord {
	out := make([]models.ClipRecord, len(ids))
	for i, id := range ids {
		out[i] = models.ClipRecord{ID: id}
	}
	return out
}

func testFetchConfig() config.FetchConfig {
	cfg := config.DefaultConfig().Fetch
	cfg.MinRequestInterval = time.Millisecond
	return cfg
}

func fastRetry(attempts int) *retry.Config {
	return &retry.Config{
		MaxAttempts: attempts,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     retry.DefaultRetryIf,
	}
}

func newFetcher(src PageSource, attempts int) *Fetcher {
	return New(src, testFetchConfig(),
		WithLimiter(ratelimit.Unlimited{}),
		WithRetry(fastRetry(attempts)),
		WithLogger(logger.NewNopLogger()))
}

var window = Window{
	Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
}

func TestFetchAllFollowsCursorToTheEnd(t *testing.T) {
	src := &scriptedSource{pages: map[string]*twitch.ClipsPage{
		key("42", ""):   {Clips: clips("a", "b"), Cursor: "c1"},
		key("42", "c1"): {Clips: clips("c")},
	}}

	res, err := newFetcher(src, 3).FetchAll(context.Background(), Query{BroadcasterID: "42", Window: window})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, ids(res.Clips))
	assert.Equal(t, 2, res.Pages)
	assert.False(t, res.Truncated)
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{key("42", ""), key("42", "c1")}, src.calls, "no further requests")
}

func TestFetchAllRejectsInvertedWindow(t *testing.T) {
	src := &scriptedSource{}
	inverted := Window{Start: window.End, End: window.Start}

	_, err := newFetcher(src, 3).FetchAll(context.Background(), Query{BroadcasterID: "42", Window: inverted})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindInvalidInput))
	assert.Empty(t, src.calls)
}

func TestFetchAllRetriesTransientFailures(t *testing.T) {
	src := &scriptedSource{
		pages: map[string]*twitch.ClipsPage{
			key("42", ""):   {Clips: clips("a"), Cursor: "c1"},
			key("42", "c1"): {Clips: clips("b")},
		},
		failures: map[string]int{key("42", "c1"): 2},
	}

	res, err := newFetcher(src, 3).FetchAll(context.Background(), Query{BroadcasterID: "42", Window: window})
	require.NoError(t, err)
	assert.False(t, res.Truncated)
	assert.Equal(t, []string{"a", "b"}, ids(res.Clips))
	assert.Len(t, src.calls, 4)
}

func TestFetchAllTruncatesWhenRetriesAreExhausted(t *testing.T) {
	src := &scriptedSource{
		pages: map[string]*twitch.ClipsPage{
			key("42", ""):   {Clips: clips("a", "b"), Cursor: "c1"},
			key("42", "c1"): {Clips: clips("c")},
		},
		failures: map[string]int{key("42", "c1"): 10},
	}
	log := logger.NewTestLogger()
	f := New(src, testFetchConfig(), WithLimiter(ratelimit.Unlimited{}), WithRetry(fastRetry(2)), WithLogger(log))

	res, err := f.FetchAll(context.Background(), Query{BroadcasterID: "42", Window: window})
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, errors.KindTransientNetwork))
	assert.Equal(t, []string{"a", "b"}, ids(res.Clips), "records gathered before the failure are kept")
	assert.True(t, log.HasMessage("clip listing truncated"))
}

func TestFetchAllDoesNotRetryPermanentErrors(t *testing.T) {
	src := &scriptedSource{pages: map[string]*twitch.ClipsPage{}}

	res, err := newFetcher(src, 5).FetchAll(context.Background(), Query{BroadcasterID: "42", Window: window})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Len(t, src.calls, 1)
}

func TestFetchAllStopsOnRepeatedCursor(t *testing.T) {
	src := &scriptedSource{pages: map[string]*twitch.ClipsPage{
		key("42", ""):   {Clips: clips("a"), Cursor: "loop"},
		key("42", "loop"): {Clips: clips("b"), Cursor: "loop"},
	}}

	res, err := newFetcher(src, 1).FetchAll(context.Background(), Query{BroadcasterID: "42", Window: window})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, []string{"a", "b"}, ids(res.Clips))
}

func TestFetchAllCountsMalformed(t *testing.T) {
	src := &scriptedSource{pages: map[string]*twitch.ClipsPage{
		key("42", ""): {Clips: clips("a"), Malformed: 2},
	}}

	res, err := newFetcher(src, 1).FetchAll(context.Background(), Query{BroadcasterID: "42", Window: window})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Malformed)
}

func TestFetchAllCancelled(t *testing.T) {
	src := &scriptedSource{pages: map[string]*twitch.ClipsPage{
		key("42", ""): {Clips: clips("a")},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newFetcher(src, 1).FetchAll(ctx, Query{BroadcasterID: "42", Window: window})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchManyKeepsQueryOrder(t *testing.T) {
	pages := map[string]*twitch.ClipsPage{}
	var queries []Query
	for i := 0; i < 10; i++ {
		id := fmt.Sprint(i)
		pages[key(id, "")] = &twitch.ClipsPage{Clips: clips(id + "-a"), Cursor: "n"}
		pages[key(id, "n")] = &twitch.ClipsPage{Clips: clips(id + "-b")}
		queries = append(queries, Query{BroadcasterID: id, Window: window})
	}
	queries = append(queries, Query{BroadcasterID: "bad", Window: Window{Start: window.End, End: window.Start}})

	results := newFetcher(&scriptedSource{pages: pages}, 1).FetchMany(context.Background(), queries)
	require.Len(t, results, 11)
	for i := 0; i < 10; i++ {
		id := fmt.Sprint(i)
		assert.Equal(t, id, results[i].Query.BroadcasterID)
		assert.Equal(t, []string{id + "-a", id + "-b"}, ids(results[i].Clips))
	}
	assert.True(t, errors.Is(results[10].Err, errors.KindInvalidInput))
}

// countingSource records the gap between consecutive requests
type countingSource struct {
	mu    sync.Mutex
	times []time.Time
	n     int32
}

func (c *countingSource) ClipsPage(ctx context.Context, q twitch.ClipsQuery) (*twitch.ClipsPage, error) {
	c.mu.Lock()
	c.times = append(c.times, time.Now())
	c.mu.Unlock()
	atomic.AddInt32(&c.n, 1)
	return &twitch.ClipsPage{}, nil
}

func TestSharedIntervalAcrossChains(t *testing.T) {
	src := &countingSource{}
	cfg := testFetchConfig()
	cfg.MinRequestInterval = 20 * time.Millisecond
	cfg.Concurrency = 4
	f := New(src, cfg, WithRetry(fastRetry(1)), WithLogger(logger.NewNopLogger()))

	queries := make([]Query, 5)
	for i := range queries {
		queries[i] = Query{BroadcasterID: fmt.Sprint(i), Window: window}
	}

	start := time.Now()
	f.FetchMany(context.Background(), queries)
	elapsed := time.Since(start)

	assert.Equal(t, int32(5), atomic.LoadInt32(&src.n))
	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond, "five requests need four intervals")
}

func ids(c []models.ClipRecord) []string {
	out := make([]string, len(c))
	for i, r := range c {
		out[i] = r.ID
	}
	return out
}

func TestNewLeavesRetryConfigUntouched(t *testing.T) {
	rc := fastRetry(2)
	f := New(&scriptedSource{}, testFetchConfig(), WithRetry(rc), WithLogger(logger.NewNopLogger()))

	assert.Nil(t, rc.Logger)
	assert.NotNil(t, f.retry.Logger)
	assert.NotSame(t, rc, f.retry)
}
