// Package http exposes the trigger surface (cron endpoints, on-demand
// sends) and the thin CRUD glue the dashboard app consumes.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/ConnecteDigital/connect-financeiro/internal/auth"
	"github.com/ConnecteDigital/connect-financeiro/internal/core"
	"github.com/ConnecteDigital/connect-financeiro/internal/dispatch"
	applog "github.com/ConnecteDigital/connect-financeiro/internal/log"
	"github.com/ConnecteDigital/connect-financeiro/internal/storage"
)

// ReportService is the dispatcher as the handlers see it.
type ReportService interface {
	RunBatch(ctx context.Context, kind core.PeriodKind) (dispatch.Summary, error)
	SendNow(ctx context.Context, userID string, kind core.PeriodKind, ref *time.Time) (dispatch.DeliveryOutcome, error)
}

// Store is the persistence surface the CRUD handlers need.
type Store interface {
	FindTransactions(ctx context.Context, userID string, start, end time.Time) ([]core.Transaction, error)
	ListTransactions(ctx context.Context, userID string, filter storage.ListTransactionsFilter) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	UpsertUser(ctx context.Context, u core.User) (core.User, error)
	ListReportsSent(ctx context.Context, userID string, limit int) ([]dispatch.ReportSent, error)
}

type Server struct {
	http.Server
	reports     ReportService
	store       Store
	verifier    auth.Verifier
	cronSecret  []byte
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, reports ReportService, store Store, verifier auth.Verifier, cronSecret string) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		reports:     reports,
		store:       store,
		verifier:    verifier,
		cronSecret:  []byte(cronSecret),
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("/api/cron/weekly-reports", s.withSecurityHeaders(s.handleCronReports(core.Weekly)))
	mux.HandleFunc("/api/cron/monthly-reports", s.withSecurityHeaders(s.handleCronReports(core.Monthly)))

	mux.HandleFunc("/api/reports/send", s.withSecurityHeaders(s.withAuth(s.handleSendReport)))
	mux.HandleFunc("/api/reports", s.withSecurityHeaders(s.withAuth(s.handleGetReport)))
	mux.HandleFunc("/api/transactions", s.withSecurityHeaders(s.withAuth(s.handleTransactions)))
	mux.HandleFunc("/api/categories", s.withSecurityHeaders(s.withAuth(s.handleCategories)))
	mux.HandleFunc("/api/dashboard", s.withSecurityHeaders(s.withAuth(s.handleDashboard)))

	return s
}

// Shutdown stops the cleanup goroutine before shutting the listener down.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request
// logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldClientIP, clientIP,
			applog.FieldUserAgent, r.Header.Get("User-Agent"))

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldComponent, applog.ComponentHTTP,
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, duration.Milliseconds(),
			applog.FieldClientIP, clientIP)
	}
}

// withAuth resolves the bearer token through the identity gateway and
// mirrors the identity into the local user store.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			errorJSON(w, http.StatusUnauthorized, "Não autorizado")
			return
		}

		id, err := s.verifier.Verify(r.Context(), token)
		if errors.Is(err, auth.ErrUnauthorized) {
			errorJSON(w, http.StatusUnauthorized, "Não autorizado")
			return
		}
		if err != nil {
			slog.ErrorContext(r.Context(), "Auth gateway error",
				applog.FieldComponent, applog.ComponentAuth,
				applog.FieldError, err.Error())
			errorJSON(w, http.StatusBadGateway, "Serviço de autenticação indisponível")
			return
		}

		user, err := s.store.UpsertUser(r.Context(), core.User{
			ID:       id.UserID,
			Name:     id.Name,
			Email:    id.Email,
			WhatsApp: id.WhatsApp,
		})
		if err != nil {
			slog.ErrorContext(r.Context(), "User mirror failed",
				applog.FieldComponent, applog.ComponentAuth,
				applog.FieldUserID, id.UserID,
				applog.FieldError, err.Error())
			errorJSON(w, http.StatusInternalServerError, "Erro interno")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, user)
		next(w, r.WithContext(ctx))
	}
}

// authorizedCron verifies the shared cron secret in constant time.
func (s *Server) authorizedCron(r *http.Request) bool {
	token := bearerToken(r)
	if token == "" || len(s.cronSecret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), s.cronSecret) == 1
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	identityKey  contextKey = "identity"
)

// currentUser returns the authenticated user placed by withAuth.
func currentUser(r *http.Request) core.User {
	u, _ := r.Context().Value(identityKey).(core.User)
	return u
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
