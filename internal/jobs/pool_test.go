package jobs_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cinelex/internal/jobs"
	"cinelex/internal/services"
)

func waitForState(t *testing.T, pool *jobs.Pool, id string, want ...jobs.State) jobs.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, ok := pool.Status(id)
		if !ok {
			t.Fatalf("job %s unknown", id)
		}
		for _, w := range want {
			if st.State == w {
				return st
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	st, _ := pool.Status(id)
	t.Fatalf("job %s stuck in %s", id, st.State)
	return st
}

func startPool(t *testing.T, workers int, opts ...jobs.Option) *jobs.Pool {
	t.Helper()
	pool := jobs.NewPool(workers, nil, opts...)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return pool
}

func TestJobFinishesWithMetadata(t *testing.T) {
	pool := startPool(t, 2)
	id, err := pool.Enqueue("acquire", func(ctx context.Context) (map[string]any, error) {
		if _, ok := services.JobIDFromContext(ctx); !ok {
			return nil, errors.New("missing job id")
		}
		return map[string]any{"successful": 3}, nil
	}, time.Second)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	st := waitForState(t, pool, id, jobs.StateFinished, jobs.StateFailed)
	if st.State != jobs.StateFinished {
		t.Fatalf("expected finished, got %s (%s)", st.State, st.Error)
	}
	if st.StartedAt == nil || st.EndedAt == nil || st.EndedAt.Before(*st.StartedAt) {
		t.Fatalf("unexpected timestamps %+v", st)
	}
	if st.Metadata["successful"] != 3 || st.Name != "acquire" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestJobFailuresAreRecorded(t *testing.T) {
	pool := startPool(t, 1)
	cases := map[string]jobs.Func{
		"error": func(context.Context) (map[string]any, error) { return nil, errors.New("boom") },
		"panic": func(context.Context) (map[string]any, error) { panic("kaboom") },
		"timeout": func(ctx context.Context) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	for name, fn := range cases {
		id, err := pool.Enqueue(name, fn, 20*time.Millisecond)
		if err != nil {
			t.Fatalf("Enqueue %s: %v", name, err)
		}
		st := waitForState(t, pool, id, jobs.StateFinished, jobs.StateFailed)
		if st.State != jobs.StateFailed || st.Error == "" {
			t.Fatalf("%s: expected failure, got %+v", name, st)
		}
	}
}

func TestPanicMessageIsKept(t *testing.T) {
	pool := startPool(t, 1)
	id, _ := pool.Enqueue("panic", func(context.Context) (map[string]any, error) { panic("kaboom") }, 0)
	st := waitForState(t, pool, id, jobs.StateFailed)
	if !strings.Contains(st.Error, "kaboom") {
		t.Fatalf("expected panic value in error, got %q", st.Error)
	}
}

func TestQueuedUntilStarted(t *testing.T) {
	pool := jobs.NewPool(1, nil)
	id, err := pool.Enqueue("process", func(context.Context) (map[string]any, error) { return nil, nil }, 0)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if st, _ := pool.Status(id); st.State != jobs.StateQueued || st.StartedAt != nil {
		t.Fatalf("expected queued status, got %+v", st)
	}
	pool.Start(context.Background())
	waitForState(t, pool, id, jobs.StateFinished)
	pool.Stop()
}

func TestEnqueueRejections(t *testing.T) {
	pool := jobs.NewPool(1, nil, jobs.WithQueueSize(1))
	noop := func(context.Context) (map[string]any, error) { return nil, nil }
	if _, err := pool.Enqueue("nil", nil, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for nil body, got %v", err)
	}
	if _, err := pool.Enqueue("first", noop, 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := pool.Enqueue("second", noop, 0); !errors.Is(err, jobs.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	pool.Start(context.Background())
	pool.Stop()
	if _, err := pool.Enqueue("late", noop, 0); !errors.Is(err, jobs.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, ok := pool.Status("missing"); ok {
		t.Fatal("expected unknown id to report false")
	}
}

type stateRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *stateRecorder) ObserveJob(_ string, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func TestObserverSeesTransitions(t *testing.T) {
	rec := &stateRecorder{}
	pool := jobs.NewPool(1, nil, jobs.WithObserver(rec))
	pool.Start(context.Background())
	id, _ := pool.Enqueue("sync", func(context.Context) (map[string]any, error) { return nil, nil }, 0)
	waitForState(t, pool, id, jobs.StateFinished)
	pool.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []string{"queued", "started", "finished"}
	if strings.Join(rec.states, ",") != strings.Join(want, ",") {
		t.Fatalf("states = %v, want %v", rec.states, want)
	}
}

func TestRetentionDropsOldestCompleted(t *testing.T) {
	pool := startPool(t, 1, jobs.WithRetention(2))
	noop := func(context.Context) (map[string]any, error) { return nil, nil }
	var ids []string
	for range 3 {
		id, err := pool.Enqueue("noop", noop, 0)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		waitForState(t, pool, id, jobs.StateFinished)
		ids = append(ids, id)
	}
	if _, ok := pool.Status(ids[0]); ok {
		t.Fatal("expected oldest status pruned")
	}
	if len(pool.List()) != 2 {
		t.Fatalf("expected 2 remembered jobs, got %d", len(pool.List()))
	}
}
