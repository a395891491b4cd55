package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tideway/internal/api"
	"tideway/internal/config"
	"tideway/internal/logging"
	"tideway/internal/queue"
	"tideway/internal/tidal"
)

const maxRequestBody = 4 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("GET /api/status", srv.handleStatus)

	mux.HandleFunc("GET /api/queue", srv.handleQueueList)
	mux.HandleFunc("POST /api/queue", srv.handleQueueAdd)
	mux.HandleFunc("DELETE /api/queue", srv.handleQueueClear)
	mux.HandleFunc("DELETE /api/queue/{id}", srv.handleQueueRemove)
	mux.HandleFunc("POST /api/queue/retry", srv.handleRetryFailed)
	mux.HandleFunc("POST /api/queue/retry/{id}", srv.handleRetrySingle)
	mux.HandleFunc("DELETE /api/completed", srv.handleClearCompleted)
	mux.HandleFunc("DELETE /api/failed", srv.handleClearFailed)
	mux.HandleFunc("GET /api/progress", srv.handleProgress)

	mux.HandleFunc("GET /api/search/{kind}", srv.handleSearch)
	mux.HandleFunc("GET /api/album/{id}/tracks", srv.handleAlbumTracks)
	mux.HandleFunc("GET /api/artist/{id}", srv.handleArtist)
	mux.HandleFunc("GET /api/endpoints", srv.handleEndpoints)

	mux.HandleFunc("GET /api/download/stream/{id}", srv.handleStreamURL)
	mux.HandleFunc("GET /api/download/file/{id}", srv.handleDownloadFile)
	mux.HandleFunc("GET /api/download/state/{id}", srv.handleDownloadState)
	mux.HandleFunc("DELETE /api/download/state/{id}", srv.handleForgetDownload)
	mux.HandleFunc("GET /api/history", srv.handleHistory)

	mux.HandleFunc("POST /api/notify/test", srv.handleNotifyTest)

	srv.handler = requestIDMiddleware(authMiddleware(cfg.Paths.APIToken, mux))
	return srv
}

// Serve runs the API server until ctx is cancelled.
func (d *Daemon) Serve(ctx context.Context) error {
	return d.api.serve(ctx)
}

func (s *apiServer) serve(ctx context.Context) error {
	if s.bind == "" {
		<-ctx.Done()
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

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleQueueList(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(s.queue().State()))
}

func (s *apiServer) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	requests, err := api.DecodeTrackRequests(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fallback := s.daemon.DefaultQuality()
	items := make([]queue.Item, 0, len(requests))
	for _, req := range requests {
		item, err := req.ToItem(fallback)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		items = append(items, item)
	}
	result := s.queue().AddMany(items)
	s.requestLog(r).Info("tracks enqueued",
		logging.Int("added", result.Added),
		logging.Int("skipped", result.Skipped),
	)
	s.writeJSON(w, http.StatusOK, api.AddResponse{Added: result.Added, Skipped: result.Skipped})
}

func (s *apiServer) handleQueueClear(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: s.queue().ClearQueue()})
}

func (s *apiServer) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.ResultResponse{OK: s.queue().Remove(id)})
}

func (s *apiServer) handleRetryFailed(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: s.queue().RetryFailed()})
}

func (s *apiServer) handleRetrySingle(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.ResultResponse{OK: s.queue().RetrySingle(id)})
}

func (s *apiServer) handleClearCompleted(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: s.queue().ClearCompleted()})
}

func (s *apiServer) handleClearFailed(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: s.queue().ClearFailed()})
}

func (s *apiServer) handleProgress(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromActive(s.queue().ActiveProgress()))
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	catalog := s.daemon.deps.Catalog
	switch r.PathValue("kind") {
	case "tracks":
		items, _ := catalog.SearchTracks(r.Context(), query)
		s.writeJSON(w, http.StatusOK, api.SearchTracksResponse{Items: nonNil(items)})
	case "albums":
		items, _ := catalog.SearchAlbums(r.Context(), query)
		s.writeJSON(w, http.StatusOK, api.SearchAlbumsResponse{Items: nonNil(items)})
	case "artists":
		items, _ := catalog.SearchArtists(r.Context(), query)
		s.writeJSON(w, http.StatusOK, api.SearchArtistsResponse{Items: nonNil(items)})
	default:
		s.writeError(w, http.StatusNotFound, "unknown search kind")
	}
}

func (s *apiServer) handleAlbumTracks(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	tracks, found := s.daemon.deps.Catalog.AlbumTracks(r.Context(), id)
	if !found {
		s.writeError(w, http.StatusNotFound, "album not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemsResponse[tidal.Track]{Items: nonNil(tracks)})
}

func (s *apiServer) handleArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	page, found := s.daemon.deps.Catalog.GetArtist(r.Context(), id)
	if !found {
		s.writeError(w, http.StatusNotFound, "artist not found")
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *apiServer) handleEndpoints(w http.ResponseWriter, _ *http.Request) {
	router := s.daemon.deps.Router
	s.writeJSON(w, http.StatusOK, api.FromEndpoints(router.Endpoints(), router.History()))
}

func (s *apiServer) handleStreamURL(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	quality := s.daemon.DefaultQuality()
	if raw := r.URL.Query().Get("quality"); raw != "" {
		parsed, valid := queue.ParseQuality(raw)
		if !valid {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown quality %q", raw))
			return
		}
		quality = parsed
	}
	stream, err := s.daemon.deps.Catalog.ResolveStream(r.Context(), id, string(quality))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, tidal.ErrNoStreamURL) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.StreamURLResponse{
		StreamURL: stream.URL,
		TrackID:   id,
		Quality:   stream.Quality,
		Endpoint:  stream.Endpoint.Name,
	})
}

func (s *apiServer) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	path, found := s.daemon.CompletedFile(r.Context(), id)
	if !found {
		s.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	// Large files outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	http.ServeFile(w, r, path)
}

func (s *apiServer) handleDownloadState(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	state, err := s.daemon.DownloadState(r.Context(), id)
	if err != nil {
		s.requestLog(r).Warn("download state lookup degraded", logging.TrackID(id), logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *apiServer) handleForgetDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	removed, err := s.daemon.ForgetDownload(r.Context(), id)
	if err != nil {
		s.requestLog(r).Warn("forget download failed", logging.TrackID(id), logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "forget download failed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ResultResponse{OK: removed})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.daemon.RecentDownloads(r.Context(), limit)
	if err != nil {
		s.requestLog(r).Warn("history listing failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "history listing failed")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Items: entries})
}

func (s *apiServer) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, api.NotifyResponse{Sent: false, Message: fmt.Sprintf("%s: %v", message, err)})
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotifyResponse{Sent: sent, Message: message})
}

func (s *apiServer) queue() *queue.Manager {
	return s.daemon.deps.Queue
}

func (s *apiServer) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}

func (s *apiServer) requestLog(r *http.Request) *slog.Logger {
	return logging.WithContext(r.Context(), s.log())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
