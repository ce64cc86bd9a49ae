package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cinelex/internal/services"
	"cinelex/internal/store"
	"cinelex/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedMovie(t, s, 1, "Heat", 10, "1995-12-15")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := store.OpenPath(context.Background(), cfg.DatabasePath())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	count, err := reopened.CountMovies(context.Background())
	if err != nil {
		t.Fatalf("CountMovies: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 movie after reopen, got %d", count)
	}
}

func TestUpsertMovieIsLastWriteWins(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.SeedMovie(t, s, 603, "The Matrix", 100, "1999-03-31")
	difficulty := 0.42
	if err := s.SaveAnalysis(ctx, &store.AnalysisResult{
		MovieID: first.ID, Kind: store.KindMovie, AnalysisVersion: "1", ProfileJSON: "{}",
	}, &difficulty); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	second := &store.Movie{TMDBID: 603, Title: "The Matrix (Remastered)", VoteCount: 250, Genres: []string{"Action", "Sci-Fi"}}
	if _, err := s.UpsertMovie(ctx, second); err != nil {
		t.Fatalf("UpsertMovie: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same row id, got %d and %d", first.ID, second.ID)
	}

	count, _ := s.CountMovies(ctx)
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
	got, err := s.GetMovieByTMDBID(ctx, 603)
	if err != nil {
		t.Fatalf("GetMovieByTMDBID: %v", err)
	}
	if got.Title != "The Matrix (Remastered)" || got.VoteCount != 250 || len(got.Genres) != 2 {
		t.Fatalf("expected second write to win, got %+v", got)
	}
	if got.ReleaseDate != nil {
		t.Fatalf("expected release date overwritten with null, got %v", got.ReleaseDate)
	}
	if got.Difficulty == nil || *got.Difficulty != 0.42 {
		t.Fatalf("expected ingestion to leave difficulty untouched, got %v", got.Difficulty)
	}
}

func TestGetMovieNotFound(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := s.GetMovie(context.Background(), 99); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertSubtitleDuplicateIsNoop(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	movie := testsupport.SeedMovie(t, s, 1, "Alien", 5, "1979-05-25")

	first := testsupport.SeedSubtitle(t, s, movie.ID, "en", "abc")
	dup, created, err := s.InsertSubtitle(ctx, &store.Subtitle{
		MovieID: movie.ID, Language: "en", Source: "opensubtitles", Format: "srt", ContentHash: "abc", StoragePath: "other",
	})
	if err != nil {
		t.Fatalf("InsertSubtitle duplicate: %v", err)
	}
	if created || dup.ID != first.ID {
		t.Fatalf("expected existing row %d, got created=%v id=%d", first.ID, created, dup.ID)
	}

	if err := s.DeactivateSubtitle(ctx, first.ID); err != nil {
		t.Fatalf("DeactivateSubtitle: %v", err)
	}
	again, created, err := s.InsertSubtitle(ctx, &store.Subtitle{
		MovieID: movie.ID, Language: "en", Source: "opensubtitles", Format: "srt", ContentHash: "abc", StoragePath: "new",
	})
	if err != nil {
		t.Fatalf("InsertSubtitle after deactivate: %v", err)
	}
	if !created || again.ID == first.ID {
		t.Fatalf("expected a new active row once the old one is inactive")
	}
}

func TestClaimOrderingAndEligibility(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	popular := testsupport.SeedMovie(t, s, 1, "Popular", 5000, "2020-01-01")
	niche := testsupport.SeedMovie(t, s, 2, "Niche", 10, "2020-01-01")
	nicheSub := testsupport.SeedSubtitle(t, s, niche.ID, "en", "n1")
	popularSub := testsupport.SeedSubtitle(t, s, popular.ID, "en", "p1")

	items, err := s.ClaimSubtitles(ctx, store.ClaimParams{Limit: 10, Now: now, MaxAttempts: 10, StaleAfter: time.Hour})
	if err != nil {
		t.Fatalf("ClaimSubtitles: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 claimed items, got %d", len(items))
	}
	if items[0].ID != popularSub.ID || items[1].ID != nicheSub.ID {
		t.Fatalf("expected most voted movie first, got %d then %d", items[0].ID, items[1].ID)
	}
	for _, item := range items {
		if item.ProcessingStatus != store.ProcessingInProgress || item.ProcessingAttempts != 1 {
			t.Fatalf("unexpected claimed state: %+v", item.Subtitle)
		}
	}

	fresh, err := s.ClaimSubtitles(ctx, store.ClaimParams{Limit: 10, Now: now.Add(10 * time.Minute), MaxAttempts: 10, StaleAfter: time.Hour})
	if err != nil {
		t.Fatalf("ClaimSubtitles fresh: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("expected in-flight claims to be invisible, got %d", len(fresh))
	}

	stale, err := s.ClaimSubtitles(ctx, store.ClaimParams{Limit: 10, Now: now.Add(2 * time.Hour), MaxAttempts: 10, StaleAfter: time.Hour})
	if err != nil {
		t.Fatalf("ClaimSubtitles stale: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected stale claims to be reclaimable, got %d", len(stale))
	}
	if stale[0].ProcessingAttempts != 2 {
		t.Fatalf("expected attempts to increment on reclaim, got %d", stale[0].ProcessingAttempts)
	}
}

func TestFailedItemsExcludedAtMaxAttempts(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	movie := testsupport.SeedMovie(t, s, 1, "Retry", 1, "2020-01-01")
	sub := testsupport.SeedSubtitle(t, s, movie.ID, "en", "r1")
	queue := store.NewWorkQueue(s, 10, time.Hour)

	now := time.Now()
	for attempt := 1; attempt <= 10; attempt++ {
		items, err := queue.ClaimBatch(ctx, 5, now)
		if err != nil {
			t.Fatalf("ClaimBatch attempt %d: %v", attempt, err)
		}
		if len(items) != 1 {
			t.Fatalf("attempt %d: expected failed item to be reclaimable, got %d", attempt, len(items))
		}
		if err := queue.Fail(ctx, sub.ID, fmt.Sprintf("boom %d", attempt)); err != nil {
			t.Fatalf("Fail: %v", err)
		}
	}

	items, err := queue.ClaimBatch(ctx, 5, now)
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected item at 10 attempts to be excluded, got %d", len(items))
	}
	got, _ := s.GetSubtitle(ctx, sub.ID)
	if got.ProcessingStatus != store.ProcessingFailed || got.ProcessingError != "boom 10" {
		t.Fatalf("unexpected final state: %+v", got)
	}
}

func TestCompleteRequiresClaim(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	movie := testsupport.SeedMovie(t, s, 1, "Unclaimed", 1, "")
	sub := testsupport.SeedSubtitle(t, s, movie.ID, "en", "u1")
	err := s.CompleteSubtitle(context.Background(), sub.ID)
	if !errors.Is(err, services.ErrConcurrencyConflict) {
		t.Fatalf("expected concurrency conflict, got %v", err)
	}
}

func TestInactiveSubtitlesAreNeverClaimed(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	movie := testsupport.SeedMovie(t, s, 1, "Inactive", 1, "")
	sub := testsupport.SeedSubtitle(t, s, movie.ID, "en", "i1")
	if err := s.DeactivateSubtitle(ctx, sub.ID); err != nil {
		t.Fatalf("DeactivateSubtitle: %v", err)
	}
	items, err := store.NewWorkQueue(s, 10, time.Hour).ClaimBatch(ctx, 5, time.Now())
	if err != nil {
		t.Fatalf("ClaimBatch: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected inactive subtitle to be skipped, got %d", len(items))
	}
}

func TestConcurrentClaimsNeverOverlap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	primary := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	const total = 60
	want := map[int64]bool{}
	for i := 0; i < total; i++ {
		movie := testsupport.SeedMovie(t, primary, int64(i+1), fmt.Sprintf("Movie %d", i), i, "2021-01-01")
		sub := testsupport.SeedSubtitle(t, primary, movie.ID, "en", fmt.Sprintf("h%d", i))
		want[sub.ID] = true
	}

	// A second handle on the same file stands in for another worker process.
	secondary, err := store.OpenPath(ctx, filepath.Clean(cfg.DatabasePath()))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer secondary.Close()
	stores := []*store.Store{primary, secondary}

	var (
		mu      sync.Mutex
		claimed = map[int64]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			queue := store.NewWorkQueue(stores[worker%len(stores)], 10, time.Hour)
			for {
				items, err := queue.ClaimBatch(ctx, 4, time.Now())
				if err != nil {
					t.Errorf("worker %d ClaimBatch: %v", worker, err)
					return
				}
				if len(items) == 0 {
					return
				}
				mu.Lock()
				for _, item := range items {
					claimed[item.ID]++
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(claimed) != total {
		t.Fatalf("expected union of claims to cover %d items, got %d", total, len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("subtitle %d claimed %d times", id, n)
		}
		if !want[id] {
			t.Fatalf("claimed unknown subtitle %d", id)
		}
	}
}

func TestSyncJobDispatchOrderAndFinish(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for i, priority := range []int{2, 0, 1} {
		job := &store.SyncJob{ID: fmt.Sprintf("job-%d", i), JobKey: fmt.Sprintf("year_sync_%d_en", 2020+i), Year: 2020 + i, Language: "en", Priority: priority}
		if err := s.InsertSyncJob(ctx, job); err != nil {
			t.Fatalf("InsertSyncJob: %v", err)
		}
	}

	var order []int
	for {
		job, err := s.ClaimNextSyncJob(ctx, time.Now())
		if err != nil {
			t.Fatalf("ClaimNextSyncJob: %v", err)
		}
		if job == nil {
			break
		}
		if job.Status != store.SyncInProgress || job.LastAttempt == nil {
			t.Fatalf("unexpected claimed job: %+v", job)
		}
		order = append(order, job.Priority)
		if err := s.UpdateSyncProgress(ctx, job.ID, 3, 1); err != nil {
			t.Fatalf("UpdateSyncProgress: %v", err)
		}
		if err := s.FinishSyncJob(ctx, job.ID, store.SyncCompleted, 4, 1, ""); err != nil {
			t.Fatalf("FinishSyncJob: %v", err)
		}
		if err := s.FinishSyncJob(ctx, job.ID, store.SyncFailed, 4, 1, "late"); !errors.Is(err, services.ErrConcurrencyConflict) {
			t.Fatalf("expected terminal job to reject a second finish, got %v", err)
		}
	}
	if fmt.Sprint(order) != "[0 1 2]" {
		t.Fatalf("expected ascending priority dispatch, got %v", order)
	}

	done, err := s.ListSyncJobs(ctx, store.SyncJobFilter{Statuses: []store.SyncStatus{store.SyncCompleted}})
	if err != nil {
		t.Fatalf("ListSyncJobs: %v", err)
	}
	if len(done) != 3 || done[0].ProcessedCount != 4 || done[0].FailedCount != 1 {
		t.Fatalf("unexpected completed jobs: %+v", done)
	}
}

func TestScheduleRetrySupersedesOnce(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job := &store.SyncJob{ID: "orig", JobKey: "year_sync_2020_en", Year: 2020, Language: "en", Priority: 4}
	if err := s.InsertSyncJob(ctx, job); err != nil {
		t.Fatalf("InsertSyncJob: %v", err)
	}
	if _, err := s.ClaimNextSyncJob(ctx, time.Now()); err != nil {
		t.Fatalf("ClaimNextSyncJob: %v", err)
	}
	if err := s.FinishSyncJob(ctx, "orig", store.SyncFailed, 0, 0, "tmdb down"); err != nil {
		t.Fatalf("FinishSyncJob: %v", err)
	}

	candidates, err := s.RetryCandidates(ctx, 3)
	if err != nil || len(candidates) != 1 {
		t.Fatalf("expected one retry candidate, got %v (%v)", candidates, err)
	}

	retry := &store.SyncJob{ID: "retry-1", JobKey: job.JobKey, Year: 2020, Language: "en", Priority: 5, Attempts: 1}
	if err := s.ScheduleRetry(ctx, "orig", retry); err != nil {
		t.Fatalf("ScheduleRetry: %v", err)
	}
	if err := s.ScheduleRetry(ctx, "orig", &store.SyncJob{ID: "retry-2", JobKey: job.JobKey, Year: 2020, Language: "en"}); !errors.Is(err, services.ErrConcurrencyConflict) {
		t.Fatalf("expected second retry to conflict, got %v", err)
	}
	if _, err := s.GetSyncJob(ctx, "retry-2"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected rolled back retry to be absent, got %v", err)
	}

	orig, _ := s.GetSyncJob(ctx, "orig")
	if !orig.Superseded || orig.Status != store.SyncFailed {
		t.Fatalf("expected original to stay FAILED and be superseded: %+v", orig)
	}
	created, _ := s.GetSyncJob(ctx, "retry-1")
	if created.Status != store.SyncPending || created.RetryOf != "orig" || created.Attempts != 1 {
		t.Fatalf("unexpected retry job: %+v", created)
	}
	candidates, _ = s.RetryCandidates(ctx, 3)
	if len(candidates) != 0 {
		t.Fatalf("expected superseded job to leave the retry set, got %d", len(candidates))
	}
}

func TestSaveAnalysisDemotesPrevious(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	movie := testsupport.SeedMovie(t, s, 1, "Her", 1, "2013-12-18")

	for i, profile := range []string{`{"v":1}`, `{"v":2}`} {
		difficulty := float64(i) + 0.5
		if err := s.SaveAnalysis(ctx, &store.AnalysisResult{
			MovieID: movie.ID, Kind: store.KindMovie, AnalysisVersion: "1", ProfileJSON: profile,
		}, &difficulty); err != nil {
			t.Fatalf("SaveAnalysis %d: %v", i, err)
		}
	}

	latest, err := s.LatestAnalysis(ctx, movie.ID)
	if err != nil {
		t.Fatalf("LatestAnalysis: %v", err)
	}
	if latest.ProfileJSON != `{"v":2}` || !latest.IsLatest {
		t.Fatalf("unexpected latest analysis: %+v", latest)
	}
	if n, _ := s.CountAnalyses(ctx, movie.ID); n != 2 {
		t.Fatalf("expected history to be kept, got %d rows", n)
	}
	got, _ := s.GetMovie(ctx, movie.ID)
	if got.Difficulty == nil || *got.Difficulty != 1.5 {
		t.Fatalf("expected movie difficulty from latest analysis, got %v", got.Difficulty)
	}

	if err := s.SaveAnalysis(ctx, &store.AnalysisResult{MovieID: movie.ID, Kind: "podcast", ProfileJSON: "{}"}, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected unknown kind to be rejected, got %v", err)
	}
}

func TestMissingSubtitleListings(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	old := testsupport.SeedMovie(t, s, 1, "Old", 900, "1990-01-01")
	recent := testsupport.SeedMovie(t, s, 2, "Recent", 50, "2023-05-01")
	middle := testsupport.SeedMovie(t, s, 3, "Middle", 300, "2005-07-01")
	covered := testsupport.SeedMovie(t, s, 4, "Covered", 1000, "2010-01-01")
	undated := testsupport.SeedMovie(t, s, 5, "Undated", 10, "")
	testsupport.SeedSubtitle(t, s, covered.ID, "en", "c1")

	var seen []int64
	var cursor *store.MissingCursor
	for {
		page, next, err := s.MoviesMissingSubtitles(ctx, "en", 2, cursor)
		if err != nil {
			t.Fatalf("MoviesMissingSubtitles: %v", err)
		}
		for _, m := range page {
			seen = append(seen, m.ID)
		}
		if next == nil {
			break
		}
		cursor = next
	}
	want := []int64{recent.ID, middle.ID, old.ID, undated.ID}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Fatalf("expected release date desc %v, got %v", want, seen)
	}

	page, err := s.MissingSubtitlesPage(ctx, "en", 1, 3)
	if err != nil {
		t.Fatalf("MissingSubtitlesPage: %v", err)
	}
	if page.Total != 4 || len(page.Movies) != 3 {
		t.Fatalf("unexpected page: total=%d len=%d", page.Total, len(page.Movies))
	}
	if page.Movies[0].ID != old.ID || page.Movies[1].ID != middle.ID || page.Movies[2].ID != recent.ID {
		t.Fatalf("expected vote count desc ordering, got %+v", page.Movies)
	}

	other, err := s.MissingSubtitlesPage(ctx, "fr", 1, 10)
	if err != nil {
		t.Fatalf("MissingSubtitlesPage fr: %v", err)
	}
	if other.Total != 5 {
		t.Fatalf("expected all movies missing french subtitles, got %d", other.Total)
	}
}

func TestSummaryCounts(t *testing.T) {
	s := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	movie := testsupport.SeedMovie(t, s, 1, "Count", 1, "")
	testsupport.SeedSubtitle(t, s, movie.ID, "en", "x")
	if err := s.InsertSyncJob(ctx, &store.SyncJob{ID: "j", JobKey: "k", Year: 2020, Language: "en"}); err != nil {
		t.Fatalf("InsertSyncJob: %v", err)
	}
	summary, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Movies != 1 || summary.SyncJobs[store.SyncPending] != 1 || summary.Subtitles[store.ProcessingPending] != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
