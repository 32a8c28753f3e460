// Package server exposes the assistant over a websocket endpoint. Each
// connection speaks a small JSON message protocol; queries and feedback are
// persisted through the session store so the web client and the CLI share
// history.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/memora-ai/memora/internal/models"
	"github.com/memora-ai/memora/pkg/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

// Message is the JSON envelope for both directions.
//
// Client to server types: "query", "feedback", "new_session",
// "switch_session", "sessions", "history".
// Server to client types: "response", "status", "error", "session_created",
// "sessions", "history".
type Message struct {
	Type      string      `json:"type"`
	Content   string      `json:"content,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Feedback  string      `json:"feedback,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Answerer produces a grounded answer with its supporting sources.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, []models.SearchResult)
}

// Sessions is the slice of the session store the server needs.
type Sessions interface {
	CreateSession(ctx context.Context, title, userID string) (uuid.UUID, error)
	ActiveSession(ctx context.Context, userID string) (*models.Session, error)
	SwitchSession(ctx context.Context, id uuid.UUID, userID string) error
	AddMessage(ctx context.Context, sessionID uuid.UUID, role models.Role, content string, sources []models.SearchResult, feedback models.Feedback) error
	Messages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
	UpdateMessageFeedback(ctx context.Context, sessionID uuid.UUID, content string, feedback models.Feedback) error
	Sessions(ctx context.Context, userID string) ([]models.Session, error)
}

type Config struct {
	Addr string
}

type WSServer struct {
	config    Config
	assistant Answerer
	sessions  Sessions
	logger    *slog.Logger
}

func New(config Config, assistant Answerer, sessions Sessions, logger *slog.Logger) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WSServer{
		config:    config,
		assistant: assistant,
		sessions:  sessions,
		logger:    logger,
	}
}

// Handler returns the HTTP mux with the websocket and health endpoints.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *WSServer) ListenAndServe() error {
	s.logger.Info("starting websocket server", "addr", s.config.Addr)
	return http.ListenAndServe(s.config.Addr, s.Handler())
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Error("error reading message", "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.send(conn, Message{Type: "error", Content: "invalid message"})
			continue
		}

		// Messages on one connection are handled in order; a query must be
		// persisted before the feedback that follows it.
		s.handleMessage(r.Context(), conn, msg)
	}
}

func (s *WSServer) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	switch msg.Type {
	case "query":
		s.handleQuery(ctx, conn, msg)
	case "feedback":
		s.handleFeedback(ctx, conn, msg)
	case "new_session":
		s.handleNewSession(ctx, conn, msg)
	case "switch_session":
		s.handleSwitchSession(ctx, conn, msg)
	case "sessions":
		s.handleSessions(ctx, conn)
	case "history":
		s.handleHistory(ctx, conn, msg)
	default:
		s.send(conn, Message{Type: "error", Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (s *WSServer) handleQuery(ctx context.Context, conn *websocket.Conn, msg Message) {
	if msg.Content == "" {
		s.send(conn, Message{Type: "error", Content: "empty query"})
		return
	}

	sessionID, err := s.ensureSession(ctx)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: fmt.Sprintf("session error: %v", err)})
		return
	}

	if err := s.sessions.AddMessage(ctx, sessionID, models.RoleUser, msg.Content, nil, ""); err != nil {
		s.send(conn, Message{Type: "error", Content: fmt.Sprintf("failed to save message: %v", err)})
		return
	}

	answer, sources := s.assistant.Answer(ctx, msg.Content)

	if err := s.sessions.AddMessage(ctx, sessionID, models.RoleAssistant, answer, sources, ""); err != nil {
		s.logger.Error("failed to save assistant message", "error", err)
	}

	s.send(conn, Message{
		Type:      "response",
		Content:   answer,
		SessionID: sessionID.String(),
		Data:      sources,
	})
}

func (s *WSServer) handleFeedback(ctx context.Context, conn *websocket.Conn, msg Message) {
	sessionID, err := s.sessionID(ctx, msg.SessionID)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: err.Error()})
		return
	}

	err = s.sessions.UpdateMessageFeedback(ctx, sessionID, msg.Content, models.Feedback(msg.Feedback))
	if err != nil {
		s.send(conn, Message{Type: "error", Content: fmt.Sprintf("failed to record feedback: %v", err)})
		return
	}

	s.send(conn, Message{Type: "status", Content: "feedback recorded", SessionID: sessionID.String()})
}

func (s *WSServer) handleNewSession(ctx context.Context, conn *websocket.Conn, msg Message) {
	id, err := s.sessions.CreateSession(ctx, msg.Content, session.DefaultUserID)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: fmt.Sprintf("failed to create session: %v", err)})
		return
	}
	s.send(conn, Message{Type: "session_created", SessionID: id.String()})
}

func (s *WSServer) handleSwitchSession(ctx context.Context, conn *websocket.Conn, msg Message) {
	id, err := uuid.Parse(msg.SessionID)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: "invalid session id"})
		return
	}

	if err := s.sessions.SwitchSession(ctx, id, session.DefaultUserID); err != nil {
		s.send(conn, Message{Type: "error", Content: fmt.Sprintf("failed to switch session: %v", err)})
		return
	}
	s.send(conn, Message{Type: "status", Content: "session switched", SessionID: msg.SessionID})
}

func (s *WSServer) handleSessions(ctx context.Context, conn *websocket.Conn) {
	sessions, err := s.sessions.Sessions(ctx, session.DefaultUserID)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: fmt.Sprintf("failed to list sessions: %v", err)})
		return
	}
	s.send(conn, Message{Type: "sessions", Data: sessions})
}

func (s *WSServer) handleHistory(ctx context.Context, conn *websocket.Conn, msg Message) {
	sessionID, err := s.sessionID(ctx, msg.SessionID)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: err.Error()})
		return
	}

	messages, err := s.sessions.Messages(ctx, sessionID)
	if err != nil {
		s.send(conn, Message{Type: "error", Content: fmt.Sprintf("failed to load history: %v", err)})
		return
	}
	s.send(conn, Message{Type: "history", SessionID: sessionID.String(), Data: messages})
}

// ensureSession returns the active session, creating one when none exists.
func (s *WSServer) ensureSession(ctx context.Context) (uuid.UUID, error) {
	active, err := s.sessions.ActiveSession(ctx, session.DefaultUserID)
	if err == nil {
		return active.ID, nil
	}
	return s.sessions.CreateSession(ctx, "", session.DefaultUserID)
}

// sessionID resolves an explicit session id, falling back to the active one.
func (s *WSServer) sessionID(ctx context.Context, raw string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid session id")
		}
		return id, nil
	}

	active, err := s.sessions.ActiveSession(ctx, session.DefaultUserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("no active session")
	}
	return active.ID, nil
}

func (s *WSServer) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Error("error sending message", "error", err)
	}
}
