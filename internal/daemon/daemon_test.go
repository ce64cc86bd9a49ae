package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cinelex/internal/config"
	"cinelex/internal/daemon"
	"cinelex/internal/testsupport"
)

// newFakeTMDB answers every request with an empty discover page so the sync
// runner can run without network access.
func newFakeTMDB(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":1,"results":[],"total_pages":0,"total_results":0}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *daemon.Components) {
	t.Helper()
	tmdbSrv := newFakeTMDB(t)
	opts = append([]testsupport.ConfigOption{testsupport.WithTMDB(tmdbSrv.URL, "key")}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	return newDaemonWithConfig(t, cfg)
}

func newDaemonWithConfig(t *testing.T, cfg *config.Config) (*daemon.Daemon, *daemon.Components) {
	t.Helper()
	components, err := daemon.Wire(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	d, err := daemon.New(components)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d, components
}

func TestDaemonStartStop(t *testing.T) {
	d, components := newDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.APIAddress == "" {
		t.Fatalf("expected running daemon with api address, got %+v", status)
	}
	if !status.Lanes["sync"] || status.Lanes["acquisition"] {
		t.Fatalf("unexpected lanes %v", status.Lanes)
	}
	if !daemon.DaemonRunning(components.Config) {
		t.Fatal("expected lock to be held")
	}

	if err := d.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected second start to fail, got %v", err)
	}

	d.Stop()
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if daemon.DaemonRunning(components.Config) {
		t.Fatal("expected lock released")
	}
}

func TestSecondDaemonCannotTakeLock(t *testing.T) {
	first, components := newDaemon(t)
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer first.Stop()

	second, _ := newDaemonWithConfig(t, components.Config)
	if err := second.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func TestWireRejectsUnknownBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Storage.Backend = "tape"
	if _, err := daemon.Wire(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestWireRequiresTMDBKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.TMDB.APIKey = ""
	if _, err := daemon.Wire(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected configuration error for missing tmdb key")
	}
}
