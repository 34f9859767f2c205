package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carterbates/ledgerhook/service/db"
	"github.com/carterbates/ledgerhook/service/ingest"
	"github.com/carterbates/ledgerhook/service/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestor accepts transaction webhook submissions.
type Ingestor interface {
	Submit(ctx context.Context, params db.CreateTransactionParams) (*ingest.Result, error)
}

// TransactionReader reads transactions for the status query endpoint.
type TransactionReader interface {
	GetTransaction(ctx context.Context, transactionID string) (*db.Transaction, error)
	ListTransactions(ctx context.Context, limit int32) ([]*db.Transaction, error)
}

// Server represents the HTTP server for the transaction ingestion service.
type Server struct {
	addr     string
	ingestor Ingestor
	store    TransactionReader
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, ingestor Ingestor, store TransactionReader, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		ingestor: ingestor,
		store:    store,
		metrics:  m,
		logger:   logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Webhook and status query routes
	mux.Handle("POST /v1/webhooks/transactions", s.instrument("submit_transaction",
		handleSubmitTransaction(s.ingestor, s.logger)))
	mux.Handle("GET /v1/transactions/{transaction_id}", s.instrument("get_transaction",
		handleGetTransaction(s.store, s.logger)))
	mux.Handle("GET /v1/transactions", s.instrument("list_transactions",
		handleListTransactions(s.store, s.logger)))

	// Health check endpoint. The {$} pattern keeps it from becoming a catch-all.
	mux.Handle("GET /{$}", handleHealth())

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// instrument wraps a handler with HTTP metrics when a collector is configured.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass through to next handler
		next.ServeHTTP(w, r)
	})
}
