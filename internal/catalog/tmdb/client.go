package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"cinelex/internal/config"
	"cinelex/internal/logging"
	"cinelex/internal/ratelimit"
)

const (
	minYear          = 1900
	maxDiscoverPages = 500
	defaultImageBase = "https://image.tmdb.org/t/p/original"
)

// Stats summarizes client activity since construction.
type Stats struct {
	Requests    int64         `json:"requests"`
	RateLimited int64         `json:"rate_limited"`
	Errors      int64         `json:"errors"`
	Records     int64         `json:"records"`
	Failed      int64         `json:"failed"`
	Duration    time.Duration `json:"duration"`
}

// Client talks to the TMDB v3 API.
type Client struct {
	apiKey     string
	baseURL    string
	imageBase  string
	language   string
	maxRetries int
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	stats   Stats
	started time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLimiter replaces the limiter built from the configured rate.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "tmdb")
	}
}

// WithClock overrides the time source used for year validation and stats.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a TMDB client.
func New(cfg config.TMDB, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("tmdb base url required")
	}
	imageBase := strings.TrimRight(strings.TrimSpace(cfg.ImageBaseURL), "/")
	if imageBase == "" {
		imageBase = defaultImageBase
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		imageBase:  imageBase,
		language:   strings.TrimSpace(cfg.Language),
		maxRetries: retries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(nil, "tmdb"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.limiter == nil {
		client.limiter = ratelimit.New("tmdb", cfg.RequestsPerSecond)
	}
	client.started = client.now()
	return client, nil
}

// Limiter exposes the client's limiter for status reporting.
func (c *Client) Limiter() *ratelimit.Limiter { return c.limiter }

// Stats returns a copy of the request counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Duration = c.now().Sub(c.started)
	return out
}

func (c *Client) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

// Fetch streams normalized movies released in year whose original language
// matches language. maxResults caps the number of records yielded across all
// quarters; zero means unlimited. Page and record failures are yielded as
// *PageError and *RecordError and the stream continues. Any other error is
// final.
func (c *Client) Fetch(ctx context.Context, year int, language string, maxResults int) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if err := ValidateYear(year, c.now()); err != nil {
			yield(Record{}, err)
			return
		}
		logger := c.logger.With(logging.Int("year", year), logging.String("language", language))
		logger.Info("starting quarterly discover", logging.Int("max_results", maxResults))

		emitted := 0
		for _, window := range Quarters(year) {
			page, totalPages := 1, 1
			for page <= totalPages {
				if err := ctx.Err(); err != nil {
					yield(Record{}, err)
					return
				}
				if maxResults > 0 && emitted >= maxResults {
					logger.Info("reached max results", logging.Int("emitted", emitted))
					return
				}
				resp, err := c.discover(ctx, year, language, window, page)
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						yield(Record{}, ctxErr)
						return
					}
					logger.Warn("discover page failed",
						logging.String("from", window.From),
						logging.Int("page", page),
						logging.Error(err))
					if !yield(Record{}, &PageError{Year: year, Range: window, Page: page, Err: err}) {
						return
					}
					page++
					continue
				}
				if page == 1 {
					totalPages = min(resp.TotalPages, maxDiscoverPages)
					logger.Info("discovered movies for range",
						logging.String("from", window.From),
						logging.String("to", window.To),
						logging.Int("total_pages", resp.TotalPages),
						logging.Int("total_results", resp.TotalResults))
				}
				for _, hit := range resp.Results {
					if maxResults > 0 && emitted >= maxResults {
						logger.Info("reached max results", logging.Int("emitted", emitted))
						return
					}
					record, err := c.GetDetails(ctx, hit.ID)
					if err != nil {
						if ctxErr := ctx.Err(); ctxErr != nil {
							yield(Record{}, ctxErr)
							return
						}
						c.count(func(s *Stats) { s.Failed++ })
						logger.Debug("skipping movie", logging.Int64("tmdb_id", hit.ID), logging.Error(err))
						if !yield(Record{}, &RecordError{TMDBID: hit.ID, Err: err}) {
							return
						}
						continue
					}
					if language != "" {
						record.Language = language
					}
					emitted++
					c.count(func(s *Stats) { s.Records++ })
					if !yield(record, nil) {
						return
					}
				}
				page++
			}
		}
		logger.Info("discover finished", logging.Int("emitted", emitted))
	}
}

func (c *Client) discover(ctx context.Context, year int, language string, window DateRange, page int) (*discoverResponse, error) {
	params := url.Values{}
	params.Set("primary_release_year", strconv.Itoa(year))
	params.Set("release_date.gte", window.From)
	params.Set("release_date.lte", window.To)
	params.Set("include_adult", "false")
	params.Set("sort_by", "popularity.desc")
	params.Set("page", strconv.Itoa(page))
	if language != "" {
		params.Set("with_original_language", language)
	}
	var payload discoverResponse
	if err := c.get(ctx, "discover", "/discover/movie", params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetDetails fetches and normalizes one movie, credits included. A movie
// without a usable release date yields a *ValidationError.
func (c *Client) GetDetails(ctx context.Context, tmdbID int64) (Record, error) {
	if tmdbID <= 0 {
		return Record{}, &ValidationError{Field: "tmdb_id", Reason: "must be positive"}
	}
	params := url.Values{}
	params.Set("append_to_response", "credits")
	var payload movieDetails
	if err := c.get(ctx, "details", fmt.Sprintf("/movie/%d", tmdbID), params, &payload); err != nil {
		return Record{}, err
	}
	return payload.normalize(c.imageBase)
}

// get runs one rate-limited GET, retrying 429 responses up to maxRetries times.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse tmdb url: %w", err)
	}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint.RawQuery = params.Encode()

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}
		status, body, latency, err := c.send(ctx, endpoint.String())
		c.count(func(s *Stats) { s.Requests++ })
		if err != nil {
			c.count(func(s *Stats) { s.Errors++ })
			return &RequestError{Op: op, Attempts: attempt, Err: fmt.Errorf("execute request (latency=%v): %w", latency, err)}
		}
		if status == http.StatusTooManyRequests {
			backoff := c.limiter.OnRateLimited()
			c.count(func(s *Stats) { s.RateLimited++ })
			if attempt > c.maxRetries {
				c.count(func(s *Stats) { s.Errors++ })
				return &RequestError{Op: op, StatusCode: status, Attempts: attempt, Err: errors.New("rate limit retries exhausted")}
			}
			c.logger.Warn("tmdb rate limited, backing off",
				logging.String("op", op),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff))
			continue
		}
		if status != http.StatusOK {
			c.count(func(s *Stats) { s.Errors++ })
			return &RequestError{Op: op, StatusCode: status, Attempts: attempt, Err: fmt.Errorf("unexpected response %s", snippet(body))}
		}
		c.limiter.OnSuccess()
		if err := json.Unmarshal(body, out); err != nil {
			c.count(func(s *Stats) { s.Errors++ })
			return &RequestError{Op: op, StatusCode: status, Attempts: attempt, Err: fmt.Errorf("decode tmdb response: %w", err)}
		}
		return nil
	}
}

func (c *Client) send(ctx context.Context, endpoint string) (int, []byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, nil, latency, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, latency, nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	if text == "" {
		return "(empty body)"
	}
	return text
}
