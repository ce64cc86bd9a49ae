package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cinelex/internal/analysis"
	"cinelex/internal/config"
	"cinelex/internal/jobs"
	"cinelex/internal/logging"
	"cinelex/internal/search"
	"cinelex/internal/services"
	"cinelex/internal/store"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sync", srv.handleSync)
	mux.HandleFunc("GET /api/sync/jobs", srv.handleSyncJobs)
	mux.HandleFunc("GET /api/sync/jobs/{id}", srv.handleSyncJob)
	mux.HandleFunc("GET /api/search", srv.handleSearch)
	mux.HandleFunc("GET /api/subtitles/missing", srv.handleMissing)
	mux.HandleFunc("POST /api/subtitles/acquire", srv.handleAcquire)
	mux.HandleFunc("POST /api/subtitles/process", srv.handleProcess)
	mux.HandleFunc("GET /api/jobs", srv.handleJobs)
	mux.HandleFunc("GET /api/jobs/{id}", srv.handleJob)
	mux.HandleFunc("GET /api/movies/{id}", srv.handleMovie)
	mux.HandleFunc("GET /api/movies/{id}/subtitles", srv.handleMovieSubtitles)
	mux.HandleFunc("POST /api/movies/{id}/subtitles", srv.handleUploadSubtitle)
	mux.HandleFunc("GET /api/movies/{id}/analysis", srv.handleAnalysis)
	mux.HandleFunc("POST /api/analyze", srv.handleAnalyze)
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.Handle("GET /metrics", d.c.Metrics.Handler())

	srv.handler = requestIDMiddleware(authMiddleware(cfg.API.Token, mux))
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.server = nil
	}
	s.listener = nil
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler exposes the API routes, including authentication.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

type syncAccepted struct {
	JobIDs []string `json:"job_ids"`
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	ids, err := s.daemon.c.EnqueueSync(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, syncAccepted{JobIDs: ids})
}

type syncJobsResponse struct {
	Jobs []store.SyncJob `json:"jobs"`
}

func (s *apiServer) handleSyncJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := store.SyncJobFilter{}
	for _, value := range query["status"] {
		if trimmed := strings.ToUpper(strings.TrimSpace(value)); trimmed != "" {
			filter.Statuses = append(filter.Statuses, store.SyncStatus(trimmed))
		}
	}
	var err error
	if filter.Year, err = intParam(query.Get("year"), 0); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if filter.Limit, err = intParam(query.Get("limit"), 100); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	list, err := s.daemon.c.Syncer.ListJobs(r.Context(), filter)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, syncJobsResponse{Jobs: list})
}

func (s *apiServer) handleSyncJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.c.Syncer.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

type searchResponse struct {
	Query   string             `json:"query"`
	Results []search.SearchHit `json:"results"`
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	hits, err := s.daemon.c.Search.Search(r.Context(), q)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, searchResponse{Query: q, Results: hits})
}

func (s *apiServer) handleMissing(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	language := strings.ToLower(strings.TrimSpace(query.Get("language")))
	if language == "" {
		language = s.daemon.cfg.Acquisition.Language
	}
	page, err := intParam(query.Get("page"), 1)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	pageSize, err := intParam(query.Get("page_size"), 20)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if pageSize > 100 {
		pageSize = 100
	}
	result, err := s.daemon.c.Store.MissingSubtitlesPage(r.Context(), language, page, pageSize)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type jobAccepted struct {
	JobID string `json:"job_id"`
}

func (s *apiServer) handleAcquire(w http.ResponseWriter, r *http.Request) {
	var req AcquireRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	id, err := s.daemon.EnqueueAcquisition(req.Language, req.MaxDownloads)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, jobAccepted{JobID: id})
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	id, err := s.daemon.EnqueueProcessing(req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, jobAccepted{JobID: id})
}

type jobsResponse struct {
	Jobs []jobs.Status `json:"jobs"`
}

func (s *apiServer) handleJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, jobsResponse{Jobs: s.daemon.Jobs()})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	status, ok := s.daemon.Job(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

type movieResponse struct {
	Movie         *store.Movie `json:"movie"`
	AnalysisCount int          `json:"analysis_count"`
}

func (s *apiServer) handleMovie(w http.ResponseWriter, r *http.Request) {
	movieID, ok := s.movieID(w, r)
	if !ok {
		return
	}
	movie, err := s.daemon.c.Store.GetMovie(r.Context(), movieID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	count, err := s.daemon.c.Store.CountAnalyses(r.Context(), movieID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, movieResponse{Movie: movie, AnalysisCount: count})
}

type subtitlesResponse struct {
	MovieID   int64            `json:"movie_id"`
	Subtitles []store.Subtitle `json:"subtitles"`
}

func (s *apiServer) handleMovieSubtitles(w http.ResponseWriter, r *http.Request) {
	movieID, ok := s.movieID(w, r)
	if !ok {
		return
	}
	if _, err := s.daemon.c.Store.GetMovie(r.Context(), movieID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	subs, err := s.daemon.c.Store.ListSubtitles(r.Context(), movieID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, subtitlesResponse{MovieID: movieID, Subtitles: subs})
}

type uploadResponse struct {
	Subtitle *store.Subtitle `json:"subtitle"`
	Created  bool            `json:"created"`
}

// handleUploadSubtitle accepts a multipart form with a "file" part and an
// optional "language" field.
func (s *apiServer) handleUploadSubtitle(w http.ResponseWriter, r *http.Request) {
	movieID, ok := s.movieID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "subtitle file too large")
			return
		}
		s.writeFailure(w, r, fmt.Errorf("%w: parse upload: %v", services.ErrValidation, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeFailure(w, r, fmt.Errorf("%w: file part is required", services.ErrValidation))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeFailure(w, r, fmt.Errorf("read upload: %w", err))
		return
	}
	sub, created, err := s.daemon.c.UploadSubtitle(r.Context(), movieID, r.FormValue("language"), header.Filename, data)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, uploadResponse{Subtitle: sub, Created: created})
}

type analysisResponse struct {
	Analysis *store.AnalysisResult      `json:"analysis"`
	Profile  analysis.LinguisticProfile `json:"profile"`
}

func (s *apiServer) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	movieID, ok := s.movieID(w, r)
	if !ok {
		return
	}
	result, err := s.daemon.c.Store.LatestAnalysis(r.Context(), movieID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	profile, err := analysis.Decode(result.AnalysisVersion, []byte(result.ProfileJSON))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, analysisResponse{Analysis: result, Profile: profile})
}

// handleAnalyze profiles ad-hoc text without storing anything.
func (s *apiServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	profile, err := s.daemon.c.Analyzer.Analyze(r.Context(), req.Text)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *apiServer) movieID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid movie id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid integer %q", services.ErrValidation, raw)
	}
	return v, nil
}

// statusForError maps the error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfiguration), errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err))
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags each request context with a correlation id,
// reusing a well-formed inbound X-Request-ID.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}
