package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"relcal/internal/agenda"
	"relcal/internal/config"
	"relcal/internal/engine"
	appLog "relcal/internal/log"
	"relcal/internal/message"
	"relcal/internal/settings"
)

// Server is the settings surface: it reads and writes the two toggles,
// notifies the engine, and reports on the last pass.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux

	// /api/agenda is cached briefly so a page reload does not refetch
	// every feed.
	agendaMu    sync.RWMutex
	agendaCache *agendaCache
}

// Deps are the collaborators a Server talks to. Status and Agenda may be
// nil, in which case their endpoints report 503.
type Deps struct {
	Store  settings.Store
	Bus    *message.Bus
	Status func() *engine.Result
	Agenda func(ctx context.Context) ([]agenda.Item, error)
}

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean "off".
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="relcal", charset="UTF-8"`)
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

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
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
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/message", s.handleMessage)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/agenda", s.handleAgenda)

	// Everything else is the embedded popup page.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleSettings serves the two toggles.
//
// GET returns {"enableExtension":bool,"showYearsForLongPeriods":bool}.
// PUT/POST accepts the same shape (either key may be omitted), saves it,
// then sends updateSettings so open pages re-render.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		values, err := s.deps.Store.Get(ctx, settings.Keys...)
		if err != nil {
			appLog.Error("settings read failed", err)
			writeError(w, http.StatusServiceUnavailable, "settings unavailable")
			return
		}
		writeJSON(w, http.StatusOK, settings.FromValues(values).Values())

	case http.MethodPut, http.MethodPost:
		var in map[string]any
		if err := decodeJSON(r.Body, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		update := make(map[string]any, len(settings.Keys))
		for k, v := range in {
			if !isKnownKey(k) {
				writeError(w, http.StatusBadRequest, "unknown setting "+k)
				return
			}
			b, ok := v.(bool)
			if !ok {
				writeError(w, http.StatusBadRequest, k+" must be a boolean")
				return
			}
			update[k] = b
		}
		if len(update) == 0 {
			writeError(w, http.StatusBadRequest, "no settings given")
			return
		}

		if err := s.deps.Store.Set(ctx, update); err != nil {
			appLog.Error("settings write failed", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		s.notify()

		values, err := s.deps.Store.Get(ctx, settings.Keys...)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "settings unavailable")
			return
		}
		writeJSON(w, http.StatusOK, settings.FromValues(values).Values())

	default:
		w.Header().Set("Allow", "GET, PUT, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleMessage accepts a raw {"action": ...} message for clients that
// save settings themselves.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var m message.Message
	if err := decodeJSON(r.Body, &m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if s.deps.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "no engine attached")
		return
	}
	switch err := s.deps.Bus.Send(m); {
	case errors.Is(err, message.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, message.ErrBusFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

// notify tells the engine settings changed. A missing or full bus is not
// fatal; the file watcher and the periodic tick catch up.
func (s *Server) notify() {
	if s.deps.Bus == nil {
		return
	}
	if err := s.deps.Bus.Send(message.Message{Action: message.ActionUpdateSettings}); err != nil {
		appLog.Warn("settings update not delivered", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Status == nil {
		writeError(w, http.StatusServiceUnavailable, "no engine attached")
		return
	}
	last := s.deps.Status()
	if last == nil {
		writeJSON(w, http.StatusOK, map[string]any{"passes": 0})
		return
	}
	writeJSON(w, http.StatusOK, last)
}

type agendaItemDTO struct {
	Label    string    `json:"label"`
	Feed     string    `json:"feed"`
	UID      string    `json:"uid"`
	Summary  string    `json:"summary"`
	Location string    `json:"location,omitempty"`
	AllDay   bool      `json:"all_day"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type agendaCache struct {
	items     []agendaItemDTO
	updatedAt time.Time
}

// handleAgenda returns the labelled ICS agenda.
func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agenda == nil {
		writeError(w, http.StatusServiceUnavailable, "no agenda configured")
		return
	}

	const agendaCacheTTL = 30 * time.Second
	s.agendaMu.RLock()
	ac := s.agendaCache
	s.agendaMu.RUnlock()
	if ac != nil && time.Since(ac.updatedAt) < agendaCacheTTL {
		writeJSON(w, http.StatusOK, ac.items)
		return
	}

	items, err := s.deps.Agenda(r.Context())
	if err != nil {
		appLog.Error("agenda failed", err)
		writeError(w, http.StatusInternalServerError, "failed to build agenda")
		return
	}
	dtos := make([]agendaItemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, agendaItemDTO{
			Label:    it.Label,
			Feed:     it.FeedID,
			UID:      it.UID,
			Summary:  it.Summary,
			Location: it.Location,
			AllDay:   it.AllDay,
			Start:    it.Start,
			End:      it.End,
		})
	}

	s.agendaMu.Lock()
	s.agendaCache = &agendaCache{items: dtos, updatedAt: time.Now()}
	s.agendaMu.Unlock()

	writeJSON(w, http.StatusOK, dtos)
}

// staticFileServer serves the embedded popup page.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unknown /api/* paths must 404 as JSON clients expect, not HTML.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func isKnownKey(k string) bool {
	for _, known := range settings.Keys {
		if k == known {
			return true
		}
	}
	return false
}

func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(body, 1<<16))
	return dec.Decode(v)
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
