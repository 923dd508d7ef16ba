package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"campuscal/internal/api"
	"campuscal/internal/calendar"
	"campuscal/internal/clock"
	"campuscal/internal/config"
	"campuscal/internal/ics"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/store"
)

const (
	viewCacheTTL   = 30 * time.Second
	maxUploadBytes = 10 << 20
	maxExportBytes = 4 << 20
)

// Views is the calendar service as seen by the HTTP layer.
type Views interface {
	List(ctx context.Context) (calendar.ListView, error)
	Week(ctx context.Context) (calendar.WeekView, error)
	LinkURL(ctx context.Context, rawURL string) (calendar.LinkResult, error)
	Upload(ctx context.Context, fileName string, r io.Reader) (calendar.LinkResult, error)
	Forget() error
	Source() (store.Source, error)
}

// Server exposes the views as a JSON API.
type Server struct {
	cfg    *config.Config
	views  Views
	clock  clock.Clock
	router *mux.Router

	// Views are cached briefly so page reloads do not hit the events API
	// every time. Only successful views are cached. gen is bumped by
	// Invalidate; a view built under an older gen is not stored.
	cacheMu   sync.RWMutex
	gen       uint64
	listCache *cached[calendar.ListView]
	weekCache *cached[calendar.WeekView]
}

type cached[T any] struct {
	view      T
	updatedAt time.Time
}

func NewServer(cfg *config.Config, views Views, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	s := &Server{
		cfg:    cfg,
		views:  views,
		clock:  clk,
		router: mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the router, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/events", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/week", s.handleWeek).Methods(http.MethodGet)

	r.HandleFunc("/api/source", s.handleSource).Methods(http.MethodGet)
	r.HandleFunc("/api/source", s.handleForget).Methods(http.MethodDelete)
	r.HandleFunc("/api/source/url", s.handleLinkURL).Methods(http.MethodPost)
	r.HandleFunc("/api/source/upload", s.handleUpload).Methods(http.MethodPost)

	r.HandleFunc("/api/export", s.handleExport).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// basicAuthEnabled reports whether both credentials are set.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every route except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="campuscal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Refresh rebuilds both views and stores the successful ones in the cache.
func (s *Server) Refresh(ctx context.Context) error {
	var errs []error
	gen := s.generation()
	if lv, err := s.views.List(ctx); err == nil {
		s.storeList(lv, gen)
	} else {
		errs = append(errs, err)
	}
	if wv, err := s.views.Week(ctx); err == nil {
		s.storeWeek(wv, gen)
	} else {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Invalidate drops cached views; called whenever the source changes.
func (s *Server) Invalidate() {
	s.cacheMu.Lock()
	s.gen++
	s.listCache = nil
	s.weekCache = nil
	s.cacheMu.Unlock()
}

func (s *Server) generation() uint64 {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.gen
}

func (s *Server) storeList(v calendar.ListView, gen uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.gen {
		return
	}
	s.listCache = &cached[calendar.ListView]{view: v, updatedAt: s.clock.Now()}
}

func (s *Server) storeWeek(v calendar.WeekView, gen uint64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.gen {
		return
	}
	s.weekCache = &cached[calendar.WeekView]{view: v, updatedAt: s.clock.Now()}
}

func fresh[T any](c *cached[T], now time.Time) bool {
	return c != nil && now.Sub(c.updatedAt) < viewCacheTTL
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.cacheMu.RLock()
	c, gen := s.listCache, s.gen
	s.cacheMu.RUnlock()
	if fresh(c, s.clock.Now()) {
		writeJSON(w, http.StatusOK, c.view)
		return
	}

	view, err := s.views.List(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), view)
		return
	}
	s.storeList(view, gen)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	s.cacheMu.RLock()
	c, gen := s.weekCache, s.gen
	s.cacheMu.RUnlock()
	if fresh(c, s.clock.Now()) {
		writeJSON(w, http.StatusOK, c.view)
		return
	}

	view, err := s.views.Week(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), view)
		return
	}
	s.storeWeek(view, gen)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSource(w http.ResponseWriter, _ *http.Request) {
	src, err := s.views.Source()
	if err != nil && !errors.Is(err, store.ErrCorruptEvents) {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleForget(w http.ResponseWriter, _ *http.Request) {
	if err := s.views.Forget(); err != nil {
		appLog.Error("forget calendar failed", err)
		writeError(w, http.StatusInternalServerError, "failed to forget calendar")
		return
	}
	s.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

type linkRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleLinkURL(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.views.LinkURL(r.Context(), req.URL)
	if err != nil && errors.Is(err, api.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The link is remembered even if the first fetch failed.
	s.Invalidate()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "please upload an ICS file")
		return
	}
	defer f.Close()

	res, err := s.views.Upload(r.Context(), hdr.Filename, f)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.Invalidate()
	writeJSON(w, http.StatusOK, res)
}

type exportRequest struct {
	Events []model.DisplayEvent `json:"events"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxExportBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "no events selected")
		return
	}

	doc := ics.Export(req.Events, s.clock.Now())
	w.Header().Set("Content-Type", ics.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+ics.ExportFileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
	appLog.Info("exported events", "count", len(req.Events))
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrTransport), errors.Is(err, api.ErrResponseShape):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrCorruptEvents):
		// The bad payload was cleared and the view still renders.
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
