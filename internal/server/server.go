package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/muurk/airscout/internal/coordinator"
	"github.com/muurk/airscout/internal/logging"
)

// shutdownTimeout bounds how long Shutdown waits for open connections
const shutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Host string
	Port int
}

// Addr returns host:port
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Devices is the view of the coordinator the server needs.
// *coordinator.Coordinator implements it.
type Devices interface {
	Snapshot() *coordinator.Snapshot
	Subscribe() (<-chan *coordinator.Snapshot, func())
	Resolve(ctx context.Context, name string) error
	Refresh(ctx context.Context, name string) error
}

// Server exposes the device map over HTTP and WebSocket
type Server struct {
	config     *Config
	devices    Devices
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
	closing     bool
}

// New creates a new Server. Metrics are served from gatherer; a nil
// gatherer disables /metrics.
func New(config *Config, devices Devices, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		config:      config,
		devices:     devices,
		router:      mux.NewRouter(),
		activeConns: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.routes(gatherer)
	s.httpServer = &http.Server{
		Addr:              config.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	// Registered on the root router so a wrong method answers 405; a
	// PathPrefix subrouter reports 404 instead.
	s.router.HandleFunc("/api/devices", s.listDevices).Methods(http.MethodGet)
	s.router.HandleFunc("/api/devices/{name}", s.getDevice).Methods(http.MethodGet)
	s.router.HandleFunc("/api/devices/{name}/resolve", s.resolveDevice).Methods(http.MethodPost)
	s.router.HandleFunc("/api/devices/{name}/refresh", s.refreshDevice).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	logging.Info("Server listening for connections",
		zap.String("addr", listener.Addr().String()),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	err := s.httpServer.Shutdown(ctx)

	// Hijacked websocket connections are not tracked by http.Server
	s.mu.Lock()
	s.closing = true
	for addr, conn := range s.activeConns {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()
	return err
}

// GetActiveConnections returns the number of open WebSocket connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// track registers a websocket connection; it reports false during shutdown
func (s *Server) track(addr string, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.activeConns[addr] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(addr string) {
	s.mu.Lock()
	delete(s.activeConns, addr)
	s.mu.Unlock()
	s.wg.Done()
}
