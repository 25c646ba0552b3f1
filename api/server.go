// Package api exposes the assistant over HTTP.
//
// Endpoints:
//
//	GET    /health                          liveness probe
//	GET    /ready                           readiness probe (pings the database)
//	GET    /api/conversations               list conversations
//	POST   /api/conversations               create a conversation
//	GET    /api/conversations/{id}/messages conversation transcript
//	DELETE /api/conversations/{id}          delete a conversation
//	POST   /api/chat                        run one turn, JSON response
//	POST   /api/chat/stream                 run one turn, SSE stream
//	POST   /api/search                      query the document index directly
//	GET    /api/shipments/{tracking}        shipment lookup without the model
//
// Handlers depend on small interfaces defined here so tests can swap in
// fakes without a database or a model.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartageio/cartage/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header clients (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout must cover a full turn plus streaming flushes.
	WriteTimeout = 120 * time.Second

	// IdleTimeout bounds keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the assistant's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health       *HealthHandler
	conversation *ConversationHandler
	chat         *ChatHandler
	search       *SearchHandler
	shipment     *ShipmentHandler
}

// Deps carries everything the server's handlers need.
type Deps struct {
	Pool          *pgxpool.Pool
	Conversations ConversationStore
	Turns         TurnRunner
	Searcher      Searcher
	Shipments     ShipmentReader
	Logger        log.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:          mux,
		logger:       logger,
		health:       NewHealthHandler(deps.Pool, logger),
		conversation: NewConversationHandler(deps.Conversations, logger),
		chat:         NewChatHandler(deps.Turns, logger),
		search:       NewSearchHandler(deps.Searcher, logger),
		shipment:     NewShipmentHandler(deps.Shipments, logger),
	}

	s.health.RegisterRoutes(mux)
	s.conversation.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.search.RegisterRoutes(mux)
	s.shipment.RegisterRoutes(mux)

	return s
}

// Handler returns the server's handler with middleware applied.
// Middleware order: recovery wraps logging wraps the mux.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
