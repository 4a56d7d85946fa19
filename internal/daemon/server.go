package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/config"
	"github.com/ovidiomatos/waweb/internal/gateway"
)

// Server is the HTTP front of the daemon: the websocket endpoint the
// browser connects to plus a liveness probe.
type Server struct {
	httpServer *http.Server
	listenAddr string
	logger     *zap.Logger

	mu        sync.Mutex
	boundAddr string
}

// NewServer creates the HTTP server serving /ws and /healthz.
func NewServer(p Params, gw *gateway.Gateway, logger *zap.Logger) *Server {
	addr := p.ListenAddr
	if addr == "" {
		addr = config.DefaultListenAddr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		listenAddr: addr,
		logger:     logger,
	}
}

// Start begins serving. Blocks until stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()
	s.logger.Info("http server listening", zap.String("addr", s.boundAddr))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once Start has created the listener,
// empty before that. Useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown error", zap.Error(err))
	}
}
