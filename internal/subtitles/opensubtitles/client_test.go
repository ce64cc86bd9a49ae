package opensubtitles_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cinelex/internal/config"
	"cinelex/internal/ratelimit"
	"cinelex/internal/services"
	"cinelex/internal/subtitles/opensubtitles"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func newClient(t *testing.T, baseURL string) *opensubtitles.Client {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	client, err := opensubtitles.New(config.OpenSubtitles{
		APIKey:     "key",
		UserAgent:  "cinelex-test",
		Username:   "user",
		Password:   "pass",
		BaseURL:    baseURL,
		MaxRetries: 3,
	}, opensubtitles.WithLimiterOptions(ratelimit.WithClock(clock.Now), ratelimit.WithSleeper(clock.Sleep)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := opensubtitles.New(config.OpenSubtitles{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoginThenSearchUsesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != "key" || r.Header.Get("User-Agent") != "cinelex-test" {
			t.Errorf("missing client headers on %s", r.URL.Path)
		}
		switch r.URL.Path {
		case "/login":
			var creds map[string]string
			_ = json.NewDecoder(r.Body).Decode(&creds)
			if creds["username"] != "user" || creds["password"] != "pass" {
				t.Errorf("unexpected credentials %v", creds)
			}
			_, _ = w.Write([]byte(`{"token":"tok","user":{"allowed_downloads":20}}`))
		case "/subtitles":
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
			}
			q := r.URL.Query()
			if q.Get("tmdb_id") != "550" || q.Get("languages") != "en" || q.Get("order_by") != "download_count" {
				t.Errorf("unexpected search query %q", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"total_count":3,"data":[
{"id":"1","attributes":{"language":"en","release":"Fight.Club.1999.1080p","download_count":900,"votes":4,"ratings":8.5,"hd":true,"from_trusted":true,"upload_date":"2020-01-02T03:04:05Z","files":[{"file_id":11,"file_name":"fc.srt"}]}},
{"id":"2","attributes":{"language":"en","release":"no files","files":[]}},
{"id":"3","attributes":{"language":"en","release":"Fight.Club.AI","ai_translated":true,"files":[{"file_id":33,"file_name":"fc.ai.srt"}]}}
]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	client := newClient(t, server.URL)
	ctx := context.Background()

	login, err := client.Login(ctx)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.AllowedDownloads != 20 {
		t.Fatalf("unexpected login result %+v", login)
	}
	if remaining, known := client.RemainingDownloads(); !known || remaining != 20 {
		t.Fatalf("expected quota 20, got %d known=%v", remaining, known)
	}

	resp, err := client.Search(ctx, opensubtitles.SearchRequest{TMDBID: 550, Languages: []string{"en"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Candidates) != 2 || resp.Total != 3 {
		t.Fatalf("expected 2 usable candidates, got %+v", resp)
	}
	first := resp.Candidates[0]
	if first.FileID != 11 || first.FileName != "fc.srt" || !first.HD || !first.FromTrusted || first.Votes != 4 {
		t.Fatalf("unexpected candidate %+v", first)
	}
	if first.UploadDate.IsZero() {
		t.Fatal("expected upload date parsed")
	}
	if !resp.Candidates[1].AITranslated {
		t.Fatalf("expected ai flag preserved, got %+v", resp.Candidates[1])
	}
}

func TestDownloadFetchesLinkAndTracksQuota(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["file_id"] != float64(11) {
				t.Errorf("unexpected download body %v", body)
			}
			fmt.Fprintf(w, `{"link":"%s/files/11","file_name":"fc.srt","requests":1,"remaining":4}`, server.URL)
		case "/files/11":
			_, _ = w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nHello\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	client := newClient(t, server.URL)

	result, err := client.Download(context.Background(), 11, opensubtitles.DownloadOptions{})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if result.FileName != "fc.srt" || result.Remaining != 4 || len(result.Data) == 0 {
		t.Fatalf("unexpected download result %+v", result)
	}
	if remaining, known := client.RemainingDownloads(); !known || remaining != 4 {
		t.Fatalf("expected quota 4, got %d known=%v", remaining, known)
	}
}

func TestDownloadStopsWhenQuotaExhausted(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"message":"You have downloaded your allowed 20 subtitles for 24h"}`))
	}))
	t.Cleanup(server.Close)
	client := newClient(t, server.URL)
	ctx := context.Background()

	if _, err := client.Download(ctx, 11, opensubtitles.DownloadOptions{}); !errors.Is(err, services.ErrQuotaExhausted) {
		t.Fatalf("expected quota exhausted, got %v", err)
	}
	if _, err := client.Download(ctx, 12, opensubtitles.DownloadOptions{}); !opensubtitles.IsQuotaExhausted(err) {
		t.Fatalf("expected quota exhausted on second call, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected known zero quota to skip the request, got %d calls", calls.Load())
	}
}

func TestSearchRetriesRateLimited(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"total_count":0,"data":[]}`))
	}))
	t.Cleanup(server.Close)
	client := newClient(t, server.URL)

	if _, err := client.Search(context.Background(), opensubtitles.SearchRequest{TMDBID: 1}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
}

func TestSearchServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)
	client := newClient(t, server.URL)

	_, err := client.Search(context.Background(), opensubtitles.SearchRequest{TMDBID: 1})
	if err == nil || services.Classify(err) != services.OutcomeRetryable {
		t.Fatalf("expected retryable error, got %v", err)
	}
}
