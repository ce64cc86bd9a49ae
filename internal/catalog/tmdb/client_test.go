package tmdb_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cinelex/internal/catalog/tmdb"
	"cinelex/internal/config"
	"cinelex/internal/ratelimit"
	"cinelex/internal/services"
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

func newClient(t *testing.T, server *httptest.Server, retries int) (*tmdb.Client, *ratelimit.Limiter) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	limiter := ratelimit.New("tmdb", 40, ratelimit.WithClock(clock.Now), ratelimit.WithSleeper(clock.Sleep))
	cfg := config.TMDB{
		APIKey:         "key",
		BaseURL:        server.URL,
		Language:       "en-US",
		MaxRetries:     retries,
		TimeoutSeconds: 5,
	}
	client, err := tmdb.New(cfg, tmdb.WithLimiter(limiter))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client, limiter
}

func detailsJSON(id int64, release string) string {
	return fmt.Sprintf(`{"id":%d,"title":"Movie %d","original_title":"Movie %d","overview":"o","release_date":%q,
"poster_path":"/p%d.jpg","backdrop_path":"","runtime":101,"vote_average":7.5,"vote_count":%d,"original_language":"en",
"genres":[{"id":1,"name":"Drama"},{"id":2,"name":"Crime"}],
"credits":{"crew":[{"name":"Ann Director","job":"Director"},{"name":"Sam Writer","job":"Writer"},{"name":"Bo Co","job":"director"}]}}`,
		id, id, id, release, id, id*10)
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := tmdb.New(config.TMDB{BaseURL: "https://example.com"}); err == nil {
		t.Fatal("expected error when api key missing")
	}
}

func TestQuarters(t *testing.T) {
	got := tmdb.Quarters(2021)
	want := []tmdb.DateRange{
		{From: "2021-01-01", To: "2021-03-31"},
		{From: "2021-04-01", To: "2021-06-30"},
		{From: "2021-07-01", To: "2021-09-30"},
		{From: "2021-10-01", To: "2021-12-31"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected 4 quarters, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("quarter %d: want %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestFetchRejectsYearOutOfRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL.Path)
	}))
	t.Cleanup(server.Close)
	client, _ := newClient(t, server, 5)

	for _, year := range []int{1899, time.Now().Year() + 1} {
		var errs []error
		for _, err := range client.Fetch(context.Background(), year, "en", 0) {
			errs = append(errs, err)
		}
		if len(errs) != 1 || !errors.Is(errs[0], services.ErrValidation) {
			t.Fatalf("year %d: expected a single validation error, got %v", year, errs)
		}
	}
}

func TestFetchCapsResultsAcrossQuarters(t *testing.T) {
	var mu sync.Mutex
	var windows []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("api_key") != "key" {
			t.Errorf("missing api_key: %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/discover/movie":
			if q.Get("with_original_language") != "en" || q.Get("sort_by") != "popularity.desc" || q.Get("primary_release_year") != "2020" {
				t.Errorf("unexpected discover query %q", r.URL.RawQuery)
			}
			mu.Lock()
			windows = append(windows, q.Get("release_date.gte"))
			quarter := len(windows)
			mu.Unlock()
			base := quarter * 10
			fmt.Fprintf(w, `{"page":1,"total_pages":1,"total_results":2,"results":[{"id":%d},{"id":%d}]}`, base+1, base+2)
		case strings.HasPrefix(r.URL.Path, "/movie/"):
			if q.Get("append_to_response") != "credits" {
				t.Errorf("expected credits appended, got %q", r.URL.RawQuery)
			}
			var id int64
			_, _ = fmt.Sscanf(r.URL.Path, "/movie/%d", &id)
			_, _ = w.Write([]byte(detailsJSON(id, "2020-02-03")))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	client, _ := newClient(t, server, 5)

	var records []tmdb.Record
	for rec, err := range client.Fetch(context.Background(), 2020, "en", 5) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		records = append(records, rec)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(records))
	}
	wantWindows := []string{"2020-01-01", "2020-04-01", "2020-07-01"}
	if strings.Join(windows, ",") != strings.Join(wantWindows, ",") {
		t.Fatalf("expected windows %v, got %v", wantWindows, windows)
	}

	first := records[0]
	if first.TMDBID != 11 || first.Author != "Ann Director, Bo Co" {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if first.PosterURL != "https://image.tmdb.org/t/p/original/p11.jpg" || first.BackdropURL != "" {
		t.Fatalf("unexpected image urls: %q %q", first.PosterURL, first.BackdropURL)
	}
	if len(first.Genres) != 2 || first.Genres[0] != "Drama" || first.Language != "en" {
		t.Fatalf("unexpected genres or language: %+v", first)
	}
	if first.ReleaseDate.Format("2006-01-02") != "2020-02-03" {
		t.Fatalf("unexpected release date %v", first.ReleaseDate)
	}
	if stats := client.Stats(); stats.Records != 5 || stats.Requests != 8 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestFetchStopsRequestingOnceCapIsReached(t *testing.T) {
	var discovers atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/discover/movie":
			n := discovers.Add(1)
			base := n * 10
			fmt.Fprintf(w, `{"page":1,"total_pages":3,"total_results":6,"results":[{"id":%d},{"id":%d}]}`, base+1, base+2)
		case strings.HasPrefix(r.URL.Path, "/movie/"):
			var id int64
			_, _ = fmt.Sscanf(r.URL.Path, "/movie/%d", &id)
			_, _ = w.Write([]byte(detailsJSON(id, "2020-02-03")))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	client, _ := newClient(t, server, 5)

	count := 0
	for _, err := range client.Fetch(context.Background(), 2020, "en", 2) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 records, got %d", count)
	}
	if n := discovers.Load(); n != 1 {
		t.Fatalf("expected a single discover request, got %d", n)
	}
	if stats := client.Stats(); stats.Requests != 3 {
		t.Fatalf("expected 3 requests, got %+v", stats)
	}
}

func TestFetchSkipsRecordsWithoutReleaseDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/discover/movie":
			if r.URL.Query().Get("release_date.gte") != "2020-01-01" {
				_, _ = w.Write([]byte(`{"page":1,"total_pages":0,"results":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"page":1,"total_pages":1,"results":[{"id":1},{"id":2}]}`))
		case r.URL.Path == "/movie/1":
			_, _ = w.Write([]byte(detailsJSON(1, "")))
		case r.URL.Path == "/movie/2":
			_, _ = w.Write([]byte(detailsJSON(2, "2020-03-01")))
		}
	}))
	t.Cleanup(server.Close)
	client, _ := newClient(t, server, 5)

	var ok []int64
	var skipped []int64
	for rec, err := range client.Fetch(context.Background(), 2020, "en", 0) {
		var recErr *tmdb.RecordError
		switch {
		case err == nil:
			ok = append(ok, rec.TMDBID)
		case errors.As(err, &recErr):
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation cause, got %v", err)
			}
			skipped = append(skipped, recErr.TMDBID)
		default:
			t.Fatalf("unexpected fatal error: %v", err)
		}
	}
	if len(ok) != 1 || ok[0] != 2 || len(skipped) != 1 || skipped[0] != 1 {
		t.Fatalf("expected movie 1 skipped and 2 kept, got ok=%v skipped=%v", ok, skipped)
	}
}

func TestFetchContinuesAfterPageFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/discover/movie":
			q := r.URL.Query()
			switch {
			case q.Get("release_date.gte") == "2020-01-01" && q.Get("page") == "1":
				_, _ = w.Write([]byte(`{"page":1,"total_pages":2,"results":[{"id":1}]}`))
			case q.Get("release_date.gte") == "2020-01-01":
				w.WriteHeader(http.StatusInternalServerError)
			case q.Get("release_date.gte") == "2020-04-01":
				_, _ = w.Write([]byte(`{"page":1,"total_pages":1,"results":[{"id":2}]}`))
			default:
				_, _ = w.Write([]byte(`{"page":1,"total_pages":1,"results":[]}`))
			}
		default:
			var id int64
			_, _ = fmt.Sscanf(r.URL.Path, "/movie/%d", &id)
			_, _ = w.Write([]byte(detailsJSON(id, "2020-05-05")))
		}
	}))
	t.Cleanup(server.Close)
	client, _ := newClient(t, server, 5)

	var ids []int64
	var pageErrs int
	for rec, err := range client.Fetch(context.Background(), 2020, "en", 0) {
		var pageErr *tmdb.PageError
		if errors.As(err, &pageErr) {
			pageErrs++
			if pageErr.Page != 2 {
				t.Fatalf("expected failure on page 2, got %d", pageErr.Page)
			}
			var reqErr *tmdb.RequestError
			if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusInternalServerError {
				t.Fatalf("expected RequestError with 500, got %v", err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, rec.TMDBID)
	}
	if pageErrs != 1 || len(ids) != 2 {
		t.Fatalf("expected one page error and two records, got %d / %v", pageErrs, ids)
	}
}

func TestFetchStopsAtPageCeiling(t *testing.T) {
	var q1Pages atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("release_date.gte") == "2020-01-01" {
			q1Pages.Add(1)
			_, _ = w.Write([]byte(`{"page":1,"total_pages":900,"results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"page":1,"total_pages":0,"results":[]}`))
	}))
	t.Cleanup(server.Close)
	client, _ := newClient(t, server, 5)

	for _, err := range client.Fetch(context.Background(), 2020, "en", 0) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := q1Pages.Load(); got != 500 {
		t.Fatalf("expected 500 discover pages, got %d", got)
	}
}

func TestGetDetailsRetriesRateLimited(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(detailsJSON(550, "1999-10-15")))
	}))
	t.Cleanup(server.Close)
	client, limiter := newClient(t, server, 5)

	rec, err := client.GetDetails(context.Background(), 550)
	if err != nil {
		t.Fatalf("GetDetails returned error: %v", err)
	}
	if rec.TMDBID != 550 || rec.VoteCount != 5500 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if snap := limiter.Snapshot(); snap.Consecutive429Count != 0 || !snap.BackoffUntil.IsZero() {
		t.Fatalf("expected success to clear backoff, got %+v", snap)
	}
	if stats := client.Stats(); stats.RateLimited != 2 || stats.Requests != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestGetDetailsExhaustsRetries(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)
	client, _ := newClient(t, server, 2)

	_, err := client.GetDetails(context.Background(), 550)
	var reqErr *tmdb.RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected RequestError with 429, got %v", err)
	}
	if !errors.Is(err, services.ErrRequest) || services.Classify(err) != services.OutcomeRetryable {
		t.Fatalf("expected retryable request error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected initial call plus 2 retries, got %d", calls.Load())
	}
}

func TestGetDetailsValidationIsHardFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(detailsJSON(7, "not-a-date")))
	}))
	t.Cleanup(server.Close)
	client, _ := newClient(t, server, 5)

	if _, err := client.GetDetails(context.Background(), 7); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
