package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	waLog "go.mau.fi/whatsmeow/util/log"

	"profilewatch/internal/data/store"
	"profilewatch/internal/profile"
	"profilewatch/internal/service/monitor"
	"profilewatch/internal/utils/jid"
)

// Contacts is the contact lookup used by the API.
type Contacts interface {
	Get(ctx context.Context, phone string) (*store.Contact, error)
	GetAll(ctx context.Context) ([]*store.Contact, error)
}

// History reads recorded changes and presence samples.
type History interface {
	Get(ctx context.Context, phone string) (profile.Baseline, bool, error)
	AvatarHistory(ctx context.Context, phone string) ([]profile.AvatarChange, error)
	StatusHistory(ctx context.Context, phone string) ([]profile.StatusChange, error)
	PresenceLog(ctx context.Context, phone string, limit int) ([]profile.PresenceSample, error)
}

// Checker runs an on-demand pass.
type Checker interface {
	Check(ctx context.Context, phone string) (*monitor.Result, error)
}

// Deps bundles what the server reads from.
type Deps struct {
	Contacts  Contacts
	History   History
	Checker   Checker
	Stats     func(ctx context.Context) (*store.Stats, error)
	Connected func() bool
	Metrics   http.Handler
}

const defaultPresenceLimit = 100

// Server is the read-only status API plus an on-demand check endpoint.
type Server struct {
	deps   Deps
	log    waLog.Logger
	router *chi.Mux
	http   *http.Server
}

// New builds the router.
func New(deps Deps, log waLog.Logger) *Server {
	s := &Server{deps: deps, log: log.Sub("API")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	r.Route("/contacts", func(r chi.Router) {
		r.Get("/", s.handleListContacts)
		r.Route("/{phone}", func(r chi.Router) {
			r.Get("/", s.handleGetContact)
			r.Get("/avatars", s.handleAvatarHistory)
			r.Get("/status", s.handleStatusHistory)
			r.Get("/presence", s.handlePresence)
			r.Post("/check", s.handleCheck)
		})
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("Status API listening on %s", ln.Addr())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthView{Status: "ok"}
	if s.deps.Connected != nil {
		resp.Connected = s.deps.Connected()
	}
	if s.deps.Stats != nil {
		stats, err := s.deps.Stats(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		resp.Stats = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.deps.Contacts.GetAll(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]contactView, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, newContactView(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	phone, ok := s.phoneParam(w, r)
	if !ok {
		return
	}
	c, err := s.deps.Contacts.Get(r.Context(), phone)
	if err != nil {
		s.fail(w, err)
		return
	}
	view := contactDetailView{contactView: newContactView(c)}
	base, found, err := s.deps.History.Get(r.Context(), phone)
	if err != nil {
		s.fail(w, err)
		return
	}
	if found {
		b := newBaselineView(base)
		view.Baseline = &b
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAvatarHistory(w http.ResponseWriter, r *http.Request) {
	phone, ok := s.trackedPhone(w, r)
	if !ok {
		return
	}
	changes, err := s.deps.History.AvatarHistory(r.Context(), phone)
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]avatarChangeView, 0, len(changes))
	for _, c := range changes {
		views = append(views, newAvatarChangeView(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	phone, ok := s.trackedPhone(w, r)
	if !ok {
		return
	}
	changes, err := s.deps.History.StatusHistory(r.Context(), phone)
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]statusChangeView, 0, len(changes))
	for _, c := range changes {
		views = append(views, newStatusChangeView(c))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	phone, ok := s.trackedPhone(w, r)
	if !ok {
		return
	}
	limit := defaultPresenceLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	samples, err := s.deps.History.PresenceLog(r.Context(), phone, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]presenceView, 0, len(samples))
	for _, p := range samples {
		views = append(views, presenceView{Signal: p.Signal.String(), At: p.At})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.Checker == nil {
		http.Error(w, "checks are not available", http.StatusServiceUnavailable)
		return
	}
	phone, ok := s.phoneParam(w, r)
	if !ok {
		return
	}
	res, err := s.deps.Checker.Check(r.Context(), phone)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCheckView(res))
}

func (s *Server) phoneParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	phone, err := jid.NormalizePhone(chi.URLParam(r, "phone"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return phone, true
}

// trackedPhone also answers 404 for untracked numbers, which would otherwise
// just produce empty lists.
func (s *Server) trackedPhone(w http.ResponseWriter, r *http.Request) (string, bool) {
	phone, ok := s.phoneParam(w, r)
	if !ok {
		return "", false
	}
	if _, err := s.deps.Contacts.Get(r.Context(), phone); err != nil {
		s.fail(w, err)
		return "", false
	}
	return phone, true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrContactNotTracked):
		http.Error(w, err.Error(), http.StatusNotFound)
	case profile.IsNetwork(err):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		s.log.Errorf("Request failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
