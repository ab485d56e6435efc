// Package httpapi exposes the session operations over HTTP. It owns routing,
// CORS, request body limits, rate limiting and the mapping from error kinds
// to status codes; all session semantics live in package session.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/whisper/odds/internal/metrics"
	"github.com/whisper/odds/internal/protocol"
	"github.com/whisper/odds/internal/ratelimit"
	"github.com/whisper/odds/internal/session"
)

// Sessions is the subset of session.Manager the API needs.
type Sessions interface {
	Create(ctx context.Context, req protocol.CreateRequest) (string, error)
	Get(ctx context.Context, sessionID string) (protocol.SessionView, error)
	Submit(ctx context.Context, sessionID string, body []byte) (int, error)
}

// Limiter throttles requests per identifier.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server. Limiter and Health may be nil.
type Options struct {
	MaxBodyBytes int64
	Limiter      Limiter
	CreateRule   ratelimit.Rule
	SubmitRule   ratelimit.Rule
	Health       Pinger
}

// Server routes the odds API.
type Server struct {
	sessions  Sessions
	opts      Options
	router    chi.Router
	startedAt time.Time
}

type ctxKey int

const requestIDKey ctxKey = iota

// NewServer builds the router for the given session service.
func NewServer(sessions Sessions, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 16 << 10
	}
	s := &Server{
		sessions:  sessions,
		opts:      opts,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(cors)
	r.Use(instrument)
	r.Use(recoverJSON)

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Post("/api/create", s.handleCreate)
	r.Get("/api/session/{id}", s.handleGetSession)
	r.Post("/api/session/{id}/submit", s.handleSubmit)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	s.router = r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.opts.CreateRule) {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	req, err := protocol.DecodeCreate(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.sessions.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Printf("[http] %s created session=%s maxX=%d", reqID(r), id, req.MaxX)
	writeJSON(w, http.StatusOK, protocol.CreateResponse{SessionID: id})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, s.opts.SubmitRule) {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	pick, err := s.sessions.Submit(r.Context(), id, body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Printf("[http] %s locked session=%s", reqID(r), id)
	writeJSON(w, http.StatusOK, protocol.SubmitResponse{OK: true, Pick: pick})
}

// handleHealth reports ok when the backing store answers a ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
		Error  string `json:"error,omitempty"`
	}{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Truncate(time.Second).String(),
	}

	status := http.StatusOK
	if s.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Health.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			resp.Status = "unavailable"
			resp.Error = err.Error()
		}
	}
	writeJSON(w, status, resp)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// allow applies rule to the client address. It writes a 429 and returns
// false when the client is over the limit.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, rule ratelimit.Rule) bool {
	if s.opts.Limiter == nil || rule.Limit <= 0 {
		return true
	}
	addr := clientAddr(r)
	ok, _ := s.opts.Limiter.Allow(r.Context(), addr, rule)
	if ok {
		return true
	}

	metrics.RateLimited.WithLabelValues(rule.Name()).Inc()
	if d := s.opts.Limiter.RetryAfter(r.Context(), addr, rule); d > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(d.Round(time.Second).Seconds())))
	}
	log.Printf("[http] %s rate limited rule=%s addr=%s", reqID(r), rule.Name(), addr)
	writeJSON(w, http.StatusTooManyRequests, protocol.ErrorResponse{Error: "Too many requests"})
	return false
}

// readBody reads the request body up to the configured limit.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, protocol.ErrorResponse{Error: "Payload too large"})
			return nil, false
		}
		writeError(w, r, protocol.InvalidPayload())
		return nil, false
	}
	return body, true
}

// statusFor maps an error kind to its HTTP status and client message.
func statusFor(err error) (int, protocol.ErrorResponse) {
	switch {
	case errors.Is(err, protocol.ErrInvalidPayload),
		errors.Is(err, protocol.ErrInvalidRange),
		errors.Is(err, protocol.ErrMissingField):
		return http.StatusBadRequest, protocol.ErrorResponse{Error: err.Error()}
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, protocol.ErrorResponse{Error: "Not found"}
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict, protocol.ErrorResponse{Error: "locked"}
	default:
		return http.StatusInternalServerError, protocol.ErrorResponse{Error: "Server error", Detail: err.Error()}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[http] %s %s %s failed: %v", reqID(r), r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] encode response: %v", err)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: "Not found"})
}

// clientAddr strips the port from RemoteAddr. RealIP has already replaced it
// with the forwarded address when one was sent.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func reqID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// requestID tags each request with an X-Request-ID, keeping a caller-supplied
// one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors reflects the request origin on every response and answers preflight
// requests for any path.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if origin != "*" {
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// instrument records request count and latency by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// recoverJSON turns a handler panic into a 500 JSON response.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Printf("[http] %s panic: %v", reqID(r), rec)
				writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{
					Error:  "Server error",
					Detail: "internal error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
