package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"expendables/internal/cache"
	"expendables/internal/services"
)

type Server struct {
	http.Server
	svc          *services.LedgerService
	rateLimiter  *rateLimiter
	summaryCache *cache.Cache[summaryResponse]
}

// NewServer wires all routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc *services.LedgerService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		svc:          svc,
		rateLimiter:  newRateLimiter(),
		summaryCache: cache.New[summaryResponse](24, 30*time.Second),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /months/{key}", s.with(s.handleGetMonth))
	mux.HandleFunc("PUT /months/{key}/salary", s.with(s.handleSetSalary))
	mux.HandleFunc("POST /months/{key}/recalculate", s.with(s.handleRecalculate))
	mux.HandleFunc("GET /months/{key}/summary", s.with(s.handleMonthSummary))
	mux.HandleFunc("GET /months/{key}/expenses", s.with(s.handleListExpenses))
	mux.HandleFunc("POST /months/{key}/expenses", s.with(s.handleAddExpense))
	mux.HandleFunc("DELETE /months/{key}/expenses/{id}", s.with(s.handleDeleteExpense))

	mux.HandleFunc("GET /obligations", s.with(s.handleListObligations))
	mux.HandleFunc("POST /obligations", s.with(s.handleCreateObligation))
	mux.HandleFunc("PATCH /obligations/{id}", s.with(s.handleUpdateObligation))
	mux.HandleFunc("POST /obligations/{id}/toggle-paid/{key}", s.with(s.handleTogglePaid))

	mux.HandleFunc("GET /savings", s.with(s.handleListSavings))
	mux.HandleFunc("POST /savings", s.with(s.handleCreateSaving))
	mux.HandleFunc("PATCH /savings/{id}", s.with(s.handleUpdateSaving))

	mux.HandleFunc("GET /cards", s.with(s.handleListCards))
	mux.HandleFunc("POST /cards", s.with(s.handleCreateCard))
	mux.HandleFunc("PATCH /cards/{id}", s.with(s.handleUpdateCard))
	mux.HandleFunc("PUT /cards/{id}/bills/{key}", s.with(s.handleSetBill))
	mux.HandleFunc("POST /cards/{id}/bills/{key}/payments", s.with(s.handlePayBill))

	return s
}

// Shutdown stops the HTTP server and the rate limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.stop()
	return s.Server.Shutdown(ctx)
}

// with adds request id, request logging, security headers and mutation
// rate limiting around a handler.
func (s *Server) with(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if isMutation(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		// Any successful mutation can shift derived totals, so cached
		// summaries for every month are stale.
		if isMutation(r.Method) && rw.statusCode < 400 {
			s.summaryCache.Purge()
		}

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter captures the status code for the completion log line.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// rateLimiter allows 60 mutating requests per client per minute.
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

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now
	return client.requests <= 60
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
		close(rl.stopCleanup)
	})
}
