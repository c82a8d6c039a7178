package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server exposes the websocket endpoint dashboard sessions connect to. It
// runs beside the API on its own listener.
type Server struct {
	manager *Manager
	logger  *slog.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(logger *slog.Logger, manager *Manager, port int) *Server {
	server := &Server{
		manager: manager,
		logger:  logger.With("module", "notify_server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard origin is enforced upstream.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.handleWS)

	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Start blocks serving websocket upgrades until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting notification server", "addr", s.httpServer.Addr)

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown drains sessions and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.manager.Shutdown()

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)

		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)

		return
	}

	session := &Session{
		ID:     uuid.New().String(),
		UserID: userID,
		WS:     conn,
	}

	if !s.manager.Register(session) {
		_ = conn.Close()

		return
	}

	s.logger.Info("Session connected", "session_id", session.ID, "user_id", userID)

	// Sessions are push-only; the read loop exists to notice the close.
	go func() {
		defer func() {
			s.manager.Unregister(session.ID)
			_ = conn.Close()
			s.logger.Info("Session disconnected", "session_id", session.ID, "user_id", userID)
		}()

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()
}
