// Package feed reads the live match data provider.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"matchbot/internal/match"
	"matchbot/pkg/logx"
	"matchbot/pkg/metrics"
)

type Endpoint string

const (
	EndpointMatch  Endpoint = "/live/match"
	EndpointScore  Endpoint = "/live/score"
	EndpointScorer Endpoint = "/live/recent-goal-scorer-stats"
)

const (
	DefaultAPIKeyHeader = "HockeyData-API-Key"
	DefaultCacheTTL     = 15 * time.Second
	DefaultTimeout      = 10 * time.Second
	maxBodyBytes        = 1 << 20
)

// FetchError reports that an endpoint produced no usable data this time.
type FetchError struct {
	Endpoint Endpoint
	Status   int // 0 when no response was received
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("feed %s: http %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("feed %s: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err came from the feed.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

type Config struct {
	Host         string
	APIKey       string
	APIKeyHeader string
	CacheTTL     time.Duration
	Timeout      time.Duration
}

type Client struct {
	mu      sync.RWMutex
	cfg     Config
	http    *http.Client
	cache   *Cache
	log     logx.Logger
	metrics *metrics.Manager

	badDate atomic.Value // string, last unparsable date already warned about
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithMetrics(m *metrics.Manager) Option { return func(c *Client) { c.metrics = m } }

func (cfg Config) withDefaults() Config {
	cfg.Host = strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = DefaultAPIKeyHeader
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg
}

func New(cfg Config, log logx.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{},
		cache: NewCache(cfg.CacheTTL),
		log:   log.With(logx.Comp("feed")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Apply swaps host, credentials and timings at runtime and drops cached
// responses.
func (c *Client) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	c.cache.SetTTL(cfg.CacheTTL)
	c.cache.Purge()
}

func (c *Client) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Fetch returns the raw body of an endpoint, served from the cache while
// fresh. Any failure is a *FetchError.
func (c *Client) Fetch(ctx context.Context, ep Endpoint) ([]byte, error) {
	body, hit, err := c.cache.GetOrFetch(ctx, string(ep), func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, ep)
	})
	if hit {
		c.metrics.FeedRequest(string(ep), "cache")
	}
	var fe *FetchError
	if err != nil && !errors.As(err, &fe) {
		// the caller gave up while a shared fetch was in flight
		return nil, &FetchError{Endpoint: ep, Err: err}
	}
	return body, err
}

func (c *Client) do(ctx context.Context, ep Endpoint) ([]byte, error) {
	cfg := c.config()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Host+string(ep), nil)
	if err != nil {
		return nil, &FetchError{Endpoint: ep, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set(cfg.APIKeyHeader, cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.FeedRequest(string(ep), "error")
		return nil, &FetchError{Endpoint: ep, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.FeedRequest(string(ep), "error")
		return nil, &FetchError{Endpoint: ep, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.FeedRequest(string(ep), "http_"+fmt.Sprint(resp.StatusCode))
		return nil, &FetchError{Endpoint: ep, Status: resp.StatusCode, Err: errors.New(snippet(body))}
	}
	c.metrics.FeedRequest(string(ep), "ok")
	c.log.Trace("feed fetched", logx.String("endpoint", string(ep)), logx.Duration("took", time.Since(start)), logx.Int("bytes", len(body)))
	return body, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty body"
	}
	return s
}

// Match fetches and decodes the live match.
func (c *Client) Match(ctx context.Context) (match.Snapshot, error) {
	b, err := c.Fetch(ctx, EndpointMatch)
	if err != nil {
		return match.Snapshot{}, err
	}
	s, err := match.ParseMatch(b)
	if err != nil {
		return match.Snapshot{}, &FetchError{Endpoint: EndpointMatch, Err: err}
	}
	if s.UnparsedDate != "" && c.badDate.Swap(s.UnparsedDate) != s.UnparsedDate {
		c.log.Warn("match date not understood, start time unknown", logx.String("date", s.UnparsedDate))
	}
	return s, nil
}

// Scoreboard fetches and decodes the live score.
func (c *Client) Scoreboard(ctx context.Context) (match.Scoreboard, error) {
	b, err := c.Fetch(ctx, EndpointScore)
	if err != nil {
		return match.Scoreboard{}, err
	}
	s, err := match.ParseScoreboard(b)
	if err != nil {
		return match.Scoreboard{}, &FetchError{Endpoint: EndpointScore, Err: err}
	}
	return s, nil
}

// Scorer fetches and decodes the most recent goal scorer.
func (c *Client) Scorer(ctx context.Context) (match.ScorerInfo, error) {
	b, err := c.Fetch(ctx, EndpointScorer)
	if err != nil {
		return match.ScorerInfo{}, err
	}
	s, err := match.ParseScorer(b)
	if err != nil {
		return match.ScorerInfo{}, &FetchError{Endpoint: EndpointScorer, Err: err}
	}
	return s, nil
}

// Invalidate drops cached responses, used after a config change.
func (c *Client) Invalidate() { c.cache.Purge() }
