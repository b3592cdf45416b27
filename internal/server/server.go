package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"p2p-ledger/internal/accountclient"
	"p2p-ledger/internal/config"
	"p2p-ledger/internal/handler"
	"p2p-ledger/internal/repository"
	"p2p-ledger/internal/service"
	"p2p-ledger/internal/worker"
)

// Server represents one of the two HTTP services
type Server struct {
	router *mux.Router
	server *http.Server
	db     *sql.DB
	logger *slog.Logger
	port   string

	// background work owned by the server, stopped before the DB closes
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAccountServer assembles the account service: balances, atomic
// transfers and the transfer journal.
func NewAccountServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := openDB(cfg, logger)
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(db, logger)
	accountService := service.NewAccountService(store, logger)
	accountHandler := handler.NewAccountHandler(accountService)

	s := newServer(db, logger)
	accountHandler.Register(s.router)
	return s, nil
}

// NewPaymentServer assembles the payment service. It owns the payments
// table and reaches balances through the account service at
// cfg.AccountServiceURL.
func NewPaymentServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := openDB(cfg, logger)
	if err != nil {
		return nil, err
	}

	payments := repository.NewPaymentRepository(db, logger)
	accounts := accountclient.New(cfg.AccountServiceURL, cfg.AccountServiceTimeout, logger)
	paymentService := service.NewPaymentService(payments, accounts, logger)
	paymentHandler := handler.NewPaymentHandler(paymentService)

	s := newServer(db, logger)
	paymentHandler.Register(s.router)

	reconciler := worker.NewReconciler(payments, accounts, logger,
		cfg.ReconcileInterval, cfg.ReconcileStuckAfter, cfg.ReconcileBatchSize)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		reconciler.Run(ctx)
	}()

	return s, nil
}

func openDB(cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Successfully connected to database", "host", cfg.DBHost, "database", cfg.DBName)
	return db, nil
}

func newServer(db *sql.DB, logger *slog.Logger) *Server {
	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	return &Server{
		router: router,
		db:     db,
		logger: logger,
	}
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start listens on port and serves in the background. Port "0" picks a
// free port; the chosen one is returned.
func (s *Server) Start(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains HTTP requests, stops background work, then closes the DB.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}

	if s.db != nil {
		s.db.Close()
	}
	return err
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// StartAccountServer builds and starts the account service.
func StartAccountServer(cfg *config.Config) (*Server, string, error) {
	return start(cfg, NewAccountServer)
}

// StartPaymentServer builds and starts the payment service.
func StartPaymentServer(cfg *config.Config) (*Server, string, error) {
	return start(cfg, NewPaymentServer)
}

func start(cfg *config.Config, build func(*config.Config, *slog.Logger) (*Server, error)) (*Server, string, error) {
	server, err := build(cfg, newLogger(cfg))
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(context.Background())
		return nil, "", err
	}

	return server, port, nil
}

// newLogger discards output when the port is "0", which only tests use.
func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.ServerPort == "0" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
