package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cinelex/internal/logging"
	"cinelex/internal/services"
)

// State is the lifecycle position of a job.
type State string

const (
	StateQueued   State = "queued"
	StateStarted  State = "started"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

const (
	defaultQueueSize = 64
	defaultRetention = 200
)

var (
	// ErrQueueFull is returned when the pending queue is at capacity.
	ErrQueueFull = errors.New("job queue full")
	// ErrClosed is returned by Enqueue after Stop.
	ErrClosed = errors.New("job pool closed")
)

// Func is the body of a job. The returned metadata is kept on the status.
type Func func(ctx context.Context) (map[string]any, error)

// Status describes one job.
type Status struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	State      State          `json:"state"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Observer is notified on every state change.
type Observer interface {
	ObserveJob(name string, state string)
}

type task struct {
	id      string
	name    string
	fn      Func
	timeout time.Duration
}

// Pool executes jobs on a fixed number of workers.
type Pool struct {
	workers   int
	retention int
	logger    *slog.Logger
	observer  Observer
	now       func() time.Time

	queue chan task

	mu       sync.Mutex
	statuses map[string]*Status
	closed   bool
	started  bool

	wg sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithQueueSize bounds the number of queued jobs.
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.queue = make(chan task, n)
		}
	}
}

// WithRetention bounds how many completed statuses are remembered.
func WithRetention(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.retention = n
		}
	}
}

// WithObserver reports job state changes to o.
func WithObserver(o Observer) Option {
	return func(p *Pool) { p.observer = o }
}

// NewPool constructs a pool; call Start to begin executing jobs.
func NewPool(workers int, logger *slog.Logger, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		workers:   workers,
		retention: defaultRetention,
		logger:    logging.NewComponentLogger(logger, "jobs"),
		now:       time.Now,
		queue:     make(chan task, defaultQueueSize),
		statuses:  make(map[string]*Status),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start launches the workers. Job contexts derive from ctx.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for range p.workers {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop refuses new jobs, lets queued jobs drain, and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

// Enqueue schedules fn under name. A positive timeout bounds its run time.
func (p *Pool) Enqueue(name string, fn Func, timeout time.Duration) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("%w: job %q has no body", services.ErrValidation, name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	t := task{id: uuid.NewString(), name: name, fn: fn, timeout: timeout}
	select {
	case p.queue <- t:
	default:
		return "", ErrQueueFull
	}
	p.statuses[t.id] = &Status{ID: t.id, Name: name, State: StateQueued, EnqueuedAt: p.now()}
	p.prune()
	p.notify(name, StateQueued)
	return t.id, nil
}

// Status returns a copy of the job's status.
func (p *Pool) Status(id string) (Status, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.statuses[id]
	if !ok {
		return Status{}, false
	}
	return copyStatus(st), true
}

// List returns every remembered status, newest first.
func (p *Pool) List() []Status {
	p.mu.Lock()
	out := make([]Status, 0, len(p.statuses))
	for _, st := range p.statuses {
		out = append(out, copyStatus(st))
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.After(out[j].EnqueuedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for t := range p.queue {
		p.run(ctx, t)
	}
}

func (p *Pool) run(parent context.Context, t task) {
	ctx := services.WithJobID(parent, t.id)
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, p.logger).With(logging.String("job", t.name))

	p.transition(t.id, func(st *Status) {
		started := p.now()
		st.State = StateStarted
		st.StartedAt = &started
	})
	p.notify(t.name, StateStarted)
	logger.Info("job started")

	metadata, err := p.call(ctx, t.fn)

	state := StateFinished
	if err != nil {
		state = StateFailed
	}
	p.transition(t.id, func(st *Status) {
		ended := p.now()
		st.State = state
		st.EndedAt = &ended
		st.Metadata = metadata
		if err != nil {
			st.Error = err.Error()
		}
	})
	p.notify(t.name, state)
	if err != nil {
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "background run did not complete"),
		)
		return
	}
	logger.Info("job finished")
}

func (p *Pool) call(ctx context.Context, fn Func) (metadata map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (p *Pool) transition(id string, fn func(*Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.statuses[id]; ok {
		fn(st)
	}
}

func (p *Pool) notify(name string, state State) {
	if p.observer != nil {
		p.observer.ObserveJob(name, string(state))
	}
}

// prune drops the oldest completed statuses beyond the retention limit.
// Callers hold p.mu.
func (p *Pool) prune() {
	if len(p.statuses) <= p.retention {
		return
	}
	var done []*Status
	for _, st := range p.statuses {
		if st.State == StateFinished || st.State == StateFailed {
			done = append(done, st)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].EnqueuedAt.Before(done[j].EnqueuedAt) })
	for _, st := range done {
		if len(p.statuses) <= p.retention {
			return
		}
		delete(p.statuses, st.ID)
	}
}

func copyStatus(st *Status) Status {
	out := *st
	if st.Metadata != nil {
		out.Metadata = make(map[string]any, len(st.Metadata))
		for k, v := range st.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
