package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mkobayashi/screenflow/internal/config"
	"github.com/mkobayashi/screenflow/internal/engine"
	"github.com/mkobayashi/screenflow/internal/server/middleware"
	"github.com/mkobayashi/screenflow/internal/server/ratelimit"
	"github.com/mkobayashi/screenflow/internal/store"
)

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	store        store.Store
	orchestrator *engine.Orchestrator
	validate     *validator.Validate
	rateLimiter  *ratelimit.Limiter
	jwtService   *JWTService
	logger       *slog.Logger
	closeStore   func()
}

// Config holds server configuration
type Config struct {
	Port         int
	Store        store.Store
	Orchestrator *engine.Orchestrator
	Logger       *slog.Logger

	// CloseStore releases the store's resources on shutdown. Optional.
	CloseStore func()
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("server config: store is required")
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("server config: orchestrator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		validate:     validator.New(),
		logger:       logger,
		closeStore:   cfg.CloseStore,
	}

	// Initialize rate limiter
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	s.jwtService = NewJWTService(jwtConfig)

	// Setup router
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
	protected := http.NewServeMux()
	protected.HandleFunc("POST /conversations/{id}/messages", s.handleCandidateMessage)
	protected.HandleFunc("POST /conversations/{id}/reengage", s.handleReengage)
	protected.HandleFunc("GET /conversations/{id}", s.handleGetConversation)
	protected.HandleFunc("GET /conversations/{id}/messages", s.handleListMessages)
	protected.HandleFunc("GET /conversations/{id}/questions", s.handleListQuestions)
	mux.Handle("/conversations/", auth(protected))

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // a turn can wait on several model calls
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.logger.Info("server_starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server_error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	s.logger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.closeStore != nil {
		s.closeStore()
	}
	s.logger.Info("server_stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract client identifier (IP address)
		clientID := s.extractClientID(r)

		// Check rate limit
		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)

		if !allowed {
			// Set rate limit headers
			s.setRateLimitHeaders(w, info)
			// Return 429 Too Many Requests
			s.rateLimitResponse(w, info)
			return
		}

		// Set rate limit headers for successful requests
		s.setRateLimitHeaders(w, info)
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"elapsed_ms", float64(time.Since(start))/float64(time.Millisecond),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("json_encode_failed", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// For MVP, this uses the IP address from RemoteAddr.
// In the future, this could use X-Forwarded-For header (only from trusted proxies).
func (s *Server) extractClientID(r *http.Request) string {
	// Get IP from RemoteAddr (format: "IP:port")
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If parsing fails, use the whole RemoteAddr
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.logger.Warn("rate_limit_exceeded",
		"limit", info.Limit,
		"remaining", info.Remaining,
		"reset_at", info.ResetTime.Format(time.RFC3339),
	)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
