package twitch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"clipharvest/internal/validation"
	"clipharvest/pkg/config"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/logger"
	"clipharvest/pkg/models"
	"clipharvest/pkg/ratelimit"
)

// Client talks to the Helix API with app credentials
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	limiter    ratelimit.Limiter
	cache      Cache
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter replaces the request limiter
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithCache replaces the lookup cache
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Helix client. Requests are limited to the Helix app
// budget of 800 per minute unless another limiter is supplied.
func NewClient(cfg config.TwitchConfig, opts ...Option) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = BaseURL
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		headers: map[string]string{
			"Client-Id":     cfg.ClientID,
			"Authorization": "Bearer " + cfg.AccessToken,
			"Accept":        "application/json",
			"User-Agent":    "clipharvest",
		},
		baseURL: base,
		limiter: ratelimit.NewTokenBucket(800, time.Minute),
		cache:   NewCache(cfg.CacheSize, cfg.CacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.GetLogger()
	}
	return c
}

// BaseURL returns the API root in use
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) doRequest(ctx context.Context, op, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindInvalidInput, op, err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.Wrap(errors.KindTransientNetwork, op, err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

// getJSON performs a GET and decodes the body into target
func (c *Client) getJSON(ctx context.Context, op, url string, target interface{}) error {
	resp, err := c.doRequest(ctx, op, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(op, resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.KindTransientNetwork, op, fmt.Errorf("failed to read response body: %w", err))
	}

	if err := json.Unmarshal(body, target); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errors.Wrap(errors.KindMalformedRecord, op, err)
	}
	return nil
}

func (c *Client) checkResponseStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	apiErr := errors.FromStatus(op, resp.StatusCode, helixMessage(body))

	if resp.StatusCode == http.StatusTooManyRequests {
		logger.LogRateLimit(c.logger, op, retryAfter(resp.Header, time.Now()))
	} else {
		c.logger.WarnWithFields("API error", map[string]interface{}{
			"op":     op,
			"status": resp.StatusCode,
			"kind":   string(apiErr.Kind),
		})
	}
	return apiErr
}

// helixMessage extracts "message" from a Helix error body, falling back to
// the raw text
func helixMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return string(body)
}

// retryAfter reads the Ratelimit-Reset epoch header
func retryAfter(h http.Header, now time.Time) time.Duration {
	reset, err := strconv.ParseInt(h.Get("Ratelimit-Reset"), 10, 64)
	if err != nil {
		return 0
	}
	d := time.Unix(reset, 0).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ClipsPage fetches one page of a broadcaster's clip listing. Elements that
// fail decoding or lack required fields are counted, not returned.
func (c *Client) ClipsPage(ctx context.Context, q ClipsQuery) (*ClipsPage, error) {
	const op = "twitch.ClipsPage"

	var resp listResponse
	if err := c.getJSON(ctx, op, ClipsURL(c.baseURL, q), &resp); err != nil {
		return nil, err
	}

	page := &ClipsPage{
		Clips:  make([]models.ClipRecord, 0, len(resp.Data)),
		Cursor: resp.Pagination.Cursor,
	}
	for _, raw := range resp.Data {
		var clip Clip
		if err := json.Unmarshal(raw, &clip); err != nil {
			page.Malformed++
			continue
		}
		if err := validation.Struct(clip); err != nil {
			c.logger.WithError(err).Debug("skipping malformed clip")
			page.Malformed++
			continue
		}
		page.Clips = append(page.Clips, clip.record())
	}
	return page, nil
}

// UsersByLogin resolves logins in batches of MaxBatch. Logins Helix does
// not know are returned in missing. Resolved users are cached by login.
func (c *Client) UsersByLogin(ctx context.Context, logins []string) ([]models.Streamer, []string, error) {
	const op = "twitch.UsersByLogin"

	found := make(map[string]models.Streamer, len(logins))
	var pending []string
	seen := make(map[string]bool, len(logins))

	for _, l := range logins {
		l = NormalizeLogin(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		if cached, ok := c.cache.Get("user:" + l); ok {
			var s models.Streamer
			if json.Unmarshal(cached, &s) == nil {
				found[l] = s
				continue
			}
		}
		pending = append(pending, l)
	}

	for _, batch := range batches(pending, MaxBatch) {
		var resp listResponse
		if err := c.getJSON(ctx, op, UsersURL(c.baseURL, batch), &resp); err != nil {
			return nil, nil, err
		}
		for _, raw := range resp.Data {
			var u User
			if err := json.Unmarshal(raw, &u); err != nil || validation.Struct(u) != nil {
				continue
			}
			s := u.streamer()
			login := NormalizeLogin(u.Login)
			found[login] = s
			if data, err := json.Marshal(s); err == nil {
				c.cache.Set("user:"+login, data)
			}
		}
	}

	var streamers []models.Streamer
	var missing []string
	for _, l := range logins {
		l = NormalizeLogin(l)
		if l == "" || !seen[l] {
			continue
		}
		seen[l] = false
		if s, ok := found[l]; ok {
			streamers = append(streamers, s)
		} else {
			missing = append(missing, l)
		}
	}
	return streamers, missing, nil
}

// FollowerCount returns a broadcaster's follower total
func (c *Client) FollowerCount(ctx context.Context, broadcasterID string) (int, error) {
	const op = "twitch.FollowerCount"
	key := "followers:" + broadcasterID

	if cached, ok := c.cache.Get(key); ok {
		if n, err := strconv.Atoi(string(cached)); err == nil {
			return n, nil
		}
	}

	var resp listResponse
	if err := c.getJSON(ctx, op, FollowersURL(c.baseURL, broadcasterID), &resp); err != nil {
		return 0, err
	}
	if resp.Total == nil {
		return 0, errors.New(errors.KindMalformedRecord, op, "response has no total")
	}

	c.cache.Set(key, []byte(strconv.Itoa(*resp.Total)))
	return *resp.Total, nil
}

// VideosByID looks up videos in batches of MaxBatch. Deleted videos are
// simply absent from the result.
func (c *Client) VideosByID(ctx context.Context, ids []string) ([]models.Video, error) {
	const op = "twitch.VideosByID"

	var videos []models.Video
	for _, batch := range batches(dedupe(ids), MaxBatch) {
		var resp listResponse
		if err := c.getJSON(ctx, op, VideosURL(c.baseURL, batch), &resp); err != nil {
			// Helix answers 404 when none of the ids exist
			if errors.Is(err, errors.KindNotFound) {
				continue
			}
			return nil, err
		}
		for _, raw := range resp.Data {
			var v Video
			if err := json.Unmarshal(raw, &v); err != nil || validation.Struct(v) != nil {
				continue
			}
			videos = append(videos, v.model())
		}
	}
	return videos, nil
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
