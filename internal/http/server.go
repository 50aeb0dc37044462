// Package http serves the ledger JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"khata/internal/auth"
	"khata/internal/cache"
	applog "khata/internal/log"
	"khata/internal/middleware/ratelimit"
	"khata/internal/middleware/security"
	"khata/internal/middleware/trace"
	"khata/internal/services"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Deps are the collaborators the handlers call.
type Deps struct {
	Ledger    *services.LedgerService
	Dashboard *services.DashboardService
	Reports   *services.ReportService
	// Pinger backs /readyz; usually the repository.
	Pinger   interface{ Ping(context.Context) error }
	Verifier *auth.Verifier
	Logger   *applog.Logger
}

// Options tune the middleware stack.
type Options struct {
	RateLimitPerMinute int
	TrustedProxies     []string
	// Janitor, when set, is stopped on shutdown.
	Janitor *cache.Janitor
}

type Server struct {
	http.Server
	deps        Deps
	rateLimiter *ratelimit.Limiter
	clientIP    *security.ClientIP
	tracer      *trace.Middleware
	janitor     *cache.Janitor

	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	clientIP, err := security.NewClientIP(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		deps:     deps,
		clientIP: clientIP,
		tracer:   trace.NewMiddleware(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		janitor: opts.Janitor,
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/sales", s.handleListSales)
	api.HandleFunc("POST /api/v1/sales", s.handleCreateSale)
	api.HandleFunc("GET /api/v1/sales/{id}", s.handleGetSale)
	api.HandleFunc("PUT /api/v1/sales/{id}", s.handleUpdateSale)
	api.HandleFunc("DELETE /api/v1/sales/{id}", s.handleDeleteSale)

	api.HandleFunc("GET /api/v1/expenses", s.handleListExpenses)
	api.HandleFunc("POST /api/v1/expenses", s.handleCreateExpense)
	api.HandleFunc("GET /api/v1/expenses/{id}", s.handleGetExpense)
	api.HandleFunc("PUT /api/v1/expenses/{id}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /api/v1/expenses/{id}", s.handleDeleteExpense)

	api.HandleFunc("GET /api/v1/dashboard", s.handleDashboard)
	api.HandleFunc("GET /api/v1/reports/monthly", s.handleMonthlyReport)
	api.HandleFunc("GET /api/v1/reports/export.xlsx", s.handleExportWorkbook)
	api.HandleFunc("GET /api/v1/reports/summary.pdf", s.handleExportPDF)

	api.HandleFunc("GET /api/v1/profile", s.handleGetProfile)
	api.HandleFunc("PUT /api/v1/profile", s.handleUpdateProfile)

	protected := s.deps.Verifier.Middleware(s.onAuthError)(
		s.rateLimiter.Middleware(s.rateKey, s.onRateLimited)(api))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/v1/", protected)

	var h http.Handler = mux
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = applog.AccessLog(s.clientIP.Extract)(h)
	h = applog.RequestIDMiddleware(trace.FromRequest)(h)
	h = applog.Middleware(s.deps.Logger)(h)
	h = s.tracer.Middleware(h)
	return h
}

// rateKey buckets authenticated callers by owner.
func (s *Server) rateKey(r *http.Request) string {
	if owner := auth.OwnerFromContext(r.Context()); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + s.clientIP.Extract(r)
}

func (s *Server) onAuthError(w http.ResponseWriter, r *http.Request, err error) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth).
		WarnContext(r.Context(), "Rejected request", applog.FieldError, err.Error())
	w.Header().Set("WWW-Authenticate", `Bearer realm="khata"`)
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).
		WarnContext(r.Context(), "Rate limit exceeded", applog.FieldClientIP, s.clientIP.Extract(r))
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "Readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		if s.janitor != nil {
			s.janitor.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
