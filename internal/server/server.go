// Package server provides the local message service the copilot asks for
// outreach suggestions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/feed-copilot/internal/llm"
	"github.com/jonathan/feed-copilot/internal/server/ratelimit"
	"go.uber.org/zap"
)

// Generator produces text from a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error)
}

// Config holds server configuration
type Config struct {
	Port              int
	RateLimit         ratelimit.Config
	GenerationTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	generator   Generator
	validate    *validator.Validate
	rateLimiter *ratelimit.Limiter
	timeout     time.Duration
	logger      *zap.Logger
}

// New creates a new server instance
func New(cfg Config, generator Generator, logger *zap.Logger) (*Server, error) {
	if generator == nil {
		return nil, errors.New("server requires a generator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = time.Minute
	}

	s := &Server{
		generator:   generator,
		validate:    validator.New(),
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		timeout:     cfg.GenerationTimeout,
		logger:      logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /messages", s.handleMessages)
	return s.withRateLimit(s.withLogging(s.withCORS(mux)))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	defer s.rateLimiter.Stop()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their budget with 429
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := s.rateLimiter.Allow(clientID(r), r.Method, r.URL.Path)
		setRateLimitHeaders(w, info)
		if !info.Allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
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
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// clientID is the caller's IP, or RemoteAddr when it has no port.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":   "rate_limit_exceeded",
		"message": "Rate limit exceeded. Please try again later.",
		"limit":   info.Limit,
	}
	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Round(time.Second).Seconds())
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.logger.Warn("rate limit exceeded",
		zap.Int("limit", info.Limit),
		zap.Duration("retry_after", info.RetryAfter))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
