package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"riskgate/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	serverReadTimeout  = 120 * time.Second
	serverWriteTimeout = 10 * time.Second
	shutdownGrace      = 5 * time.Second
)

// Server exposes the dispatcher over a WebSocket endpoint. Each connection
// is a strict request/reply channel: frames are read, handled and answered
// one at a time, in order, with no pipelining.
type Server struct {
	addr       string
	dispatcher *Dispatcher
	metrics    *infra.Metrics
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer creates a gateway server bound to addr.
func NewServer(addr string, dispatcher *Dispatcher, metrics *infra.Metrics) *Server {
	s := &Server{
		addr:       addr,
		dispatcher: dispatcher,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Gateway listening", slog.String("addr", s.addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// handleWS upgrades the connection and runs its request/reply loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	s.metrics.IncrementConnections()
	defer s.metrics.DecrementConnections()
	slog.Info("Client connected", slog.String("remote", conn.RemoteAddr().String()))

	for {
		conn.SetReadDeadline(time.Now().Add(serverReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("Client read failed", slog.Any("error", err))
			}
			return
		}

		// One frame, one reply. The dispatcher contains all failures, so
		// the loop survives any single command.
		resp := s.dispatcher.Handle(r.Context(), raw)

		conn.SetWriteDeadline(time.Now().Add(serverWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, resp); err != nil {
			slog.Warn("Client write failed", slog.Any("error", err))
			return
		}
	}
}
