package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
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
	"cinelex/internal/services"
)

const (
	defaultBaseURL     = "https://api.opensubtitles.com/api/v1"
	defaultUserAgent   = "cinelex v0.1"
	defaultHTTPTimeout = 45 * time.Second
	defaultRPS         = 5
	maxPayloadBytes    = 16 << 20
)

// Client wraps the OpenSubtitles REST API.
type Client struct {
	apiKey     string
	userAgent  string
	username   string
	password   string
	baseURL    *url.URL
	http       *http.Client
	logger     *slog.Logger
	maxRetries int

	login    *ratelimit.Limiter
	search   *ratelimit.Limiter
	download *ratelimit.Limiter

	mu         sync.Mutex
	token      string
	remaining  int
	quotaKnown bool
}

// Option configures a Client.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	logger      *slog.Logger
	limiterOpts []ratelimit.Option
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLimiterOptions applies opts to each per-endpoint limiter.
func WithLimiterOptions(opts ...ratelimit.Option) Option {
	return func(o *options) { o.limiterOpts = append(o.limiterOpts, opts...) }
}

// New creates a Client from the supplied configuration.
func New(cfg config.OpenSubtitles, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: opensubtitles api key is required", services.ErrConfiguration)
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: parse base url: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	httpClient := o.httpClient
	if httpClient == nil {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	return &Client{
		apiKey:     apiKey,
		userAgent:  userAgent,
		username:   strings.TrimSpace(cfg.Username),
		password:   cfg.Password,
		baseURL:    baseURL,
		http:       httpClient,
		logger:     logging.NewComponentLogger(o.logger, "opensubtitles"),
		maxRetries: max(cfg.MaxRetries, 0),
		login:      ratelimit.New("opensubtitles_login", rps, o.limiterOpts...),
		search:     ratelimit.New("opensubtitles_search", rps, o.limiterOpts...),
		download:   ratelimit.New("opensubtitles_download", rps, o.limiterOpts...),
		token:      strings.TrimSpace(cfg.UserToken),
	}, nil
}

// Limiters returns the per-endpoint limiters for status reporting.
func (c *Client) Limiters() []*ratelimit.Limiter {
	return []*ratelimit.Limiter{c.login, c.search, c.download}
}

// RemainingDownloads reports the last known download quota.
func (c *Client) RemainingDownloads() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining, c.quotaKnown
}

func (c *Client) setQuota(remaining int) {
	c.mu.Lock()
	c.remaining = remaining
	c.quotaKnown = true
	c.mu.Unlock()
}

// HasCredentials reports whether Login can run.
func (c *Client) HasCredentials() bool {
	return c.username != "" && c.password != ""
}

// Login exchanges the configured username and password for a session token
// and records the account's allowed downloads.
func (c *Client) Login(ctx context.Context) (LoginResult, error) {
	if !c.HasCredentials() {
		return LoginResult{}, fmt.Errorf("%w: opensubtitles username and password are required", services.ErrConfiguration)
	}
	body, err := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	if err != nil {
		return LoginResult{}, fmt.Errorf("opensubtitles: encode login: %w", err)
	}
	var payload loginResponse
	if err := c.do(ctx, c.login, "login", http.MethodPost, c.baseURL.JoinPath("login"), body, &payload); err != nil {
		return LoginResult{}, err
	}
	if payload.Token == "" {
		return LoginResult{}, services.Wrap(services.ErrRequest, "opensubtitles", "login", "response missing token", nil)
	}
	c.mu.Lock()
	c.token = payload.Token
	c.mu.Unlock()
	c.setQuota(payload.User.AllowedDownloads)
	c.logger.Info("opensubtitles login succeeded", logging.Int("allowed_downloads", payload.User.AllowedDownloads))
	return LoginResult{Token: payload.Token, AllowedDownloads: payload.User.AllowedDownloads}, nil
}

// Search lists subtitle files for a movie, most downloaded first.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	endpoint := c.baseURL.JoinPath("subtitles")
	params := url.Values{}
	if req.TMDBID > 0 {
		params.Set("tmdb_id", strconv.FormatInt(req.TMDBID, 10))
		params.Set("type", "movie")
	}
	if q := strings.TrimSpace(req.Query); q != "" {
		params.Set("query", q)
	}
	if len(req.Languages) > 0 {
		params.Set("languages", strings.Join(req.Languages, ","))
	}
	if len(params) == 0 {
		return SearchResponse{}, fmt.Errorf("%w: search needs a tmdb id or query", services.ErrValidation)
	}
	params.Set("order_by", "download_count")
	params.Set("order_direction", "desc")
	endpoint.RawQuery = params.Encode()

	var payload searchResponse
	if err := c.do(ctx, c.search, "search", http.MethodGet, endpoint, nil, &payload); err != nil {
		return SearchResponse{}, err
	}

	candidates := make([]Candidate, 0, len(payload.Data))
	for _, entry := range payload.Data {
		attrs := entry.Attributes
		if attrs.Language == "" || len(attrs.Files) == 0 || attrs.Files[0].FileID == 0 {
			continue
		}
		candidate := Candidate{
			SubtitleID:        entry.ID,
			FileID:            attrs.Files[0].FileID,
			FileName:          attrs.Files[0].FileName,
			Language:          attrs.Language,
			Release:           attrs.Release,
			DownloadCount:     attrs.DownloadCount,
			Votes:             attrs.Votes,
			Ratings:           attrs.Ratings,
			HD:                attrs.HD,
			HearingImpaired:   attrs.HearingImpaired,
			FromTrusted:       attrs.FromTrusted,
			MachineTranslated: attrs.MachineTranslated,
			AITranslated:      attrs.AITranslated,
			FeatureTitle:      attrs.FeatureDetails.Title,
			FeatureYear:       attrs.FeatureDetails.Year,
		}
		if t, err := time.Parse(time.RFC3339, attrs.UploadDate); err == nil {
			candidate.UploadDate = t.UTC()
		}
		candidates = append(candidates, candidate)
	}
	c.logger.Debug("subtitle search completed",
		logging.Int64("tmdb_id", req.TMDBID),
		logging.Int("results", len(candidates)))
	return SearchResponse{Candidates: candidates, Total: payload.TotalCount}, nil
}

// Download resolves a temporary link for fileID and fetches the payload.
// A known quota of zero fails fast with services.ErrQuotaExhausted.
func (c *Client) Download(ctx context.Context, fileID int64, opts DownloadOptions) (DownloadResult, error) {
	if fileID <= 0 {
		return DownloadResult{}, fmt.Errorf("%w: invalid file id %d", services.ErrValidation, fileID)
	}
	if remaining, known := c.RemainingDownloads(); known && remaining <= 0 {
		return DownloadResult{}, fmt.Errorf("opensubtitles download: %w", services.ErrQuotaExhausted)
	}
	request := map[string]any{"file_id": fileID}
	if format := strings.TrimSpace(opts.Format); format != "" {
		request["sub_format"] = format
	}
	body, err := json.Marshal(request)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: encode download request: %w", err)
	}

	endpoint := c.baseURL.JoinPath("download")
	var info downloadResponse
	if err := c.do(ctx, c.download, "download", http.MethodPost, endpoint, body, &info); err != nil {
		return DownloadResult{}, err
	}
	c.setQuota(info.Remaining)
	if info.Link == "" {
		return DownloadResult{}, services.Wrap(services.ErrRequest, "opensubtitles", "download", "response missing link", nil)
	}
	link, err := endpoint.Parse(info.Link)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: parse download url: %w", err)
	}

	data, err := c.fetchLink(ctx, link.String())
	if err != nil {
		return DownloadResult{}, err
	}
	c.logger.Debug("subtitle downloaded",
		logging.Int64("file_id", fileID),
		logging.Int("size_bytes", len(data)),
		logging.Int("remaining", info.Remaining))
	return DownloadResult{
		Data:      data,
		FileName:  info.FileName,
		Remaining: info.Remaining,
		ResetTime: info.ResetTime,
	}, nil
}

func (c *Client) fetchLink(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: build link request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrRequest, "opensubtitles", "fetch", "subtitle payload", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, services.Wrap(services.ErrRequest, "opensubtitles", "fetch",
			fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(snippet))), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: read subtitle data: %w", err)
	}
	return data, nil
}

// do sends one API request through limiter, retrying 429 responses.
func (c *Client) do(ctx context.Context, limiter *ratelimit.Limiter, op, method string, endpoint *url.URL, body []byte, out any) error {
	for attempt := 1; ; attempt++ {
		if err := limiter.Acquire(ctx); err != nil {
			return err
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
		if err != nil {
			return fmt.Errorf("opensubtitles: build %s request: %w", op, err)
		}
		c.applyHeaders(req)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return services.Wrap(services.ErrRequest, "opensubtitles", op, "request failed", err)
		}
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("opensubtitles: read %s response: %w", op, readErr)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			backoff := limiter.OnRateLimited()
			if attempt > c.maxRetries {
				return services.Wrap(services.ErrRequest, "opensubtitles", op,
					fmt.Sprintf("rate limited after %d attempts", attempt), nil)
			}
			logging.WarnWithContext(c.logger, "opensubtitles rate limited, retrying", "opensubtitles_rate_limited",
				logging.String("op", op),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff),
				logging.String(logging.FieldErrorHint, "wait for rate limits to reset"),
				logging.String(logging.FieldImpact, "subtitle acquisition slowed"))
			continue
		case op == "download" && resp.StatusCode == http.StatusNotAcceptable:
			c.setQuota(0)
			return fmt.Errorf("opensubtitles download: %s: %w", strings.TrimSpace(string(payload)), services.ErrQuotaExhausted)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "opensubtitles", op, resp.Status, nil)
		case resp.StatusCode >= 400:
			return services.Wrap(services.ErrRequest, "opensubtitles", op,
				fmt.Sprintf("%s: %s", resp.Status, truncate(string(payload), 300)), nil)
		}

		limiter.OnSuccess()
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("opensubtitles: decode %s response: %w", op, err)
		}
		return nil
	}
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

// IsQuotaExhausted reports whether err means no downloads remain.
func IsQuotaExhausted(err error) bool {
	return errors.Is(err, services.ErrQuotaExhausted)
}
