// Package web serves the operator JSON API: week status, on-demand evaluation,
// manual booking and slot cache inspection, behind a single admin login.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/pitch-scheduler/internal/application/orchestrator"
	"github.com/example/pitch-scheduler/internal/application/slotcache"
	"github.com/example/pitch-scheduler/internal/domain/booking"
	"github.com/example/pitch-scheduler/internal/internaltypes"
	"github.com/example/pitch-scheduler/internal/telemetry"
)

// Booker is the orchestrator surface the API drives.
type Booker interface {
	Evaluate(ctx context.Context, week booking.WeekID) orchestrator.Outcome
	ManualBook(ctx context.Context, req orchestrator.ManualRequest) (orchestrator.Outcome, error)
	Status(ctx context.Context, week booking.WeekID) (orchestrator.WeekStatus, error)
}

type SlotReader interface {
	Snapshot(ctx context.Context, category booking.Category) (slotcache.Entry, bool)
	Refresh(ctx context.Context, category booking.Category) slotcache.Lookup
}

// RefresherControl is optional; without it the refresher endpoints answer 404.
type RefresherControl interface {
	Status() slotcache.RefresherStatus
	Trigger()
}

type Deps struct {
	Booker    Booker
	Slots     SlotReader
	Refresher RefresherControl
}

type Server struct {
	addr      string
	sessions  *SessionManager
	adminHash []byte
	deps      Deps
	loc       *time.Location
	logger    zerolog.Logger
	now       func() time.Time
}

// New builds the API server. An empty adminHash disables login, which leaves
// only /healthz and /metrics usable.
func New(addr string, sessions *SessionManager, adminHash string, deps Deps, loc *time.Location, logger zerolog.Logger) *Server {
	if loc == nil {
		loc = time.Local
	}
	return &Server{
		addr:      addr,
		sessions:  sessions,
		adminHash: []byte(adminHash),
		deps:      deps,
		loc:       loc,
		logger:    logger.With().Str("component", "web").Logger(),
		now:       time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", telemetry.Handler())
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/weeks/{week}/status", s.handleStatus)
		r.Post("/weeks/{week}/evaluate", s.handleEvaluate)
		r.Post("/bookings/manual", s.handleManual)
		r.Get("/slots/{category}", s.handleSlots)
		r.Post("/slots/{category}/refresh", s.handleRefreshSlots)
		r.Get("/refresher", s.handleRefresherStatus)
		r.Post("/refresher/trigger", s.handleRefresherTrigger)
	})
	return r
}

// ListenAndServe runs until ctx is cancelled and then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		telemetry.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.IsAdmin(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if len(s.adminHash) == 0 {
		writeError(w, http.StatusServiceUnavailable, "login_disabled")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.authenticate(req.Password); err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("failed admin login")
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err := s.sessions.SetAdmin(w, r); err != nil {
		s.logger.Error().Err(err).Msg("encode session")
		writeError(w, http.StatusInternalServerError, "session_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) authenticate(password string) error {
	if err := bcrypt.CompareHashAndPassword(s.adminHash, []byte(password)); err != nil {
		return fmt.Errorf("admin login: %w", internaltypes.ErrUnauthorized)
	}
	return nil
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// weekParam accepts an ISO week ("2025-W04") or "current".
func (s *Server) weekParam(r *http.Request) (booking.WeekID, error) {
	raw := chi.URLParam(r, "week")
	if strings.EqualFold(raw, "current") {
		return booking.WeekOf(s.now().In(s.loc)), nil
	}
	return booking.ParseWeekID(raw)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	week, err := s.weekParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_week")
		return
	}
	st, err := s.deps.Booker.Status(r.Context(), week)
	if err != nil {
		s.logger.Error().Err(err).Str("week", week.String()).Msg("week status")
		writeError(w, http.StatusInternalServerError, "status_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type outcomeResponse struct {
	orchestrator.Outcome
	Error string `json:"error,omitempty"`
}

func respondOutcome(w http.ResponseWriter, out orchestrator.Outcome) {
	resp := outcomeResponse{Outcome: out}
	if err := out.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	week, err := s.weekParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_week")
		return
	}
	respondOutcome(w, s.deps.Booker.Evaluate(r.Context(), week))
}

type manualRequest struct {
	Week        string           `json:"week"`
	Date        string           `json:"date"`
	Time        string           `json:"time"`
	Category    string           `json:"category"`
	PlayerCount int              `json:"player_count"`
	Price       *decimal.Decimal `json:"price"`
}

func (s *Server) decodeManual(w http.ResponseWriter, r *http.Request) (orchestrator.ManualRequest, error) {
	var body manualRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		return orchestrator.ManualRequest{}, err
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(body.Date), s.loc)
	if err != nil {
		return orchestrator.ManualRequest{}, err
	}
	tod, err := booking.ParseTimeOfDay(body.Time)
	if err != nil {
		return orchestrator.ManualRequest{}, err
	}
	req := orchestrator.ManualRequest{Date: date, Time: tod, PlayerCount: body.PlayerCount, Price: body.Price}
	if body.Category != "" {
		if req.Category, err = booking.ParseCategory(body.Category); err != nil {
			return req, err
		}
	}
	if body.Week != "" {
		if req.Week, err = booking.ParseWeekID(body.Week); err != nil {
			return req, err
		}
	}
	return req, nil
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeManual(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "detail": err.Error()})
		return
	}
	out, err := s.deps.Booker.ManualBook(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "detail": err.Error()})
		return
	}
	respondOutcome(w, out)
}

func categoryParam(r *http.Request) (booking.Category, error) {
	return booking.ParseCategory(chi.URLParam(r, "category"))
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	c, err := categoryParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_category")
		return
	}
	e, ok := s.deps.Slots.Snapshot(r.Context(), c)
	if !ok {
		writeError(w, http.StatusNotFound, "no_snapshot")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type lookupResponse struct {
	Category   booking.Category `json:"category"`
	Slots      []booking.Slot   `json:"slots"`
	CapturedAt time.Time        `json:"captured_at"`
	Refreshed  bool             `json:"refreshed"`
	Stale      bool             `json:"stale"`
	Error      string           `json:"error,omitempty"`
}

func (s *Server) handleRefreshSlots(w http.ResponseWriter, r *http.Request) {
	c, err := categoryParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_category")
		return
	}
	l := s.deps.Slots.Refresh(r.Context(), c)
	resp := lookupResponse{Category: c, Slots: l.Slots, CapturedAt: l.CapturedAt, Refreshed: l.Refreshed, Stale: l.Stale}
	status := http.StatusOK
	if l.Err != nil {
		resp.Error = l.Err.Error()
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleRefresherStatus(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Refresher == nil {
		writeError(w, http.StatusNotFound, "refresher_disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Refresher.Status())
}

func (s *Server) handleRefresherTrigger(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Refresher == nil {
		writeError(w, http.StatusNotFound, "refresher_disabled")
		return
	}
	s.deps.Refresher.Trigger()
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
