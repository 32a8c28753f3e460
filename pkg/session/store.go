// Package session persists chat sessions and messages in Postgres.
//
// Invariants enforced here: at most one active session per user, at most
// MaxSessionsPerUser sessions per user (oldest by updated_at evicted first),
// and at most MaxMessagesPerSession messages per session (oldest by
// created_at pruned first). Each operation runs inside a single transaction
// so concurrent calls cannot observe two active sessions or race the
// eviction counts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memora-ai/memora/internal/models"
)

// DefaultUserID is used when callers do not distinguish users.
const DefaultUserID = "default_user"

type Config struct {
	MaxSessionsPerUser    int
	MaxMessagesPerSession int
}

// Store manages session persistence. It is safe for concurrent use.
type Store struct {
	config Config
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, config Config, logger *slog.Logger) *Store {
	if config.MaxSessionsPerUser == 0 {
		config.MaxSessionsPerUser = 10
	}
	if config.MaxMessagesPerSession == 0 {
		config.MaxMessagesPerSession = 50
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		config: config,
		pool:   pool,
		logger: logger,
	}
}

// CreateSession inserts a new active session for the user, deactivating all
// others. When the user already holds the maximum number of sessions, the
// oldest by updated_at are evicted first so the store holds exactly the
// maximum after the insert. An empty title defaults to a timestamp string.
func (s *Store) CreateSession(ctx context.Context, title, userID string) (uuid.UUID, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	if title == "" {
		title = "Chat " + time.Now().Format("01/02 15:04")
	}
	id := uuid.New()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	err = tx.QueryRow(ctx,
		"SELECT count(*) FROM chat_sessions WHERE user_id = $1", userID,
	).Scan(&count)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	if count >= s.config.MaxSessionsPerUser {
		_, err = tx.Exec(ctx, `
			DELETE FROM chat_sessions
			WHERE user_id = $1 AND id IN (
				SELECT id FROM chat_sessions
				WHERE user_id = $1
				ORDER BY updated_at ASC
				LIMIT $2
			)`, userID, count-s.config.MaxSessionsPerUser+1)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to evict old sessions: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		"UPDATE chat_sessions SET is_active = false WHERE user_id = $1", userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to deactivate sessions: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_sessions (id, title, user_id, is_active)
		VALUES ($1, $2, $3, true)`, id, title, userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("created chat session", "id", id, "user_id", userID)
	return id, nil
}

// ActiveSession returns the user's currently active session, or
// ErrSessionNotFound when none is active.
func (s *Store) ActiveSession(ctx context.Context, userID string) (*models.Session, error) {
	if userID == "" {
		userID = DefaultUserID
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id, title, created_at, updated_at, user_id, is_active
		FROM chat_sessions
		WHERE user_id = $1 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1`, userID)

	var sess models.Session
	err := row.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &sess.UserID, &sess.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	return &sess, nil
}

// SwitchSession makes the target session the user's only active one. The
// whole operation is a no-op returning ErrSessionNotFound when the session
// does not exist or belongs to another user.
func (s *Store) SwitchSession(ctx context.Context, id uuid.UUID, userID string) error {
	if userID == "" {
		userID = DefaultUserID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"UPDATE chat_sessions SET is_active = false WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate sessions: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE chat_sessions
		SET is_active = true, updated_at = now()
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to activate session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AddMessage appends a message to the session, bumps the session's
// updated_at, and prunes the oldest messages beyond the configured maximum.
func (s *Store) AddMessage(ctx context.Context, sessionID uuid.UUID, role models.Role, content string, sources []models.SearchResult, feedback models.Feedback) error {
	if role != models.RoleUser && role != models.RoleAssistant {
		return fmt.Errorf("invalid message role %q", role)
	}
	if feedback != "" && feedback != models.FeedbackPositive && feedback != models.FeedbackNegative {
		return fmt.Errorf("invalid feedback %q", feedback)
	}

	var sourcesJSON []byte
	if len(sources) > 0 {
		var err error
		sourcesJSON, err = json.Marshal(sources)
		if err != nil {
			return fmt.Errorf("failed to marshal sources: %w", err)
		}
	}

	var feedbackVal *string
	if feedback != "" {
		fb := string(feedback)
		feedbackVal = &fb
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (session_id, role, content, sources, feedback)
		VALUES ($1, $2, $3, $4, $5)`,
		sessionID, string(role), content, sourcesJSON, feedbackVal)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.Exec(ctx,
		"UPDATE chat_sessions SET updated_at = now() WHERE id = $1", sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session timestamp: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx,
		"SELECT count(*) FROM chat_messages WHERE session_id = $1", sessionID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count messages: %w", err)
	}

	if count > s.config.MaxMessagesPerSession {
		_, err = tx.Exec(ctx, `
			DELETE FROM chat_messages
			WHERE session_id = $1 AND id IN (
				SELECT id FROM chat_messages
				WHERE session_id = $1
				ORDER BY created_at ASC, id ASC
				LIMIT $2
			)`, sessionID, count-s.config.MaxMessagesPerSession)
		if err != nil {
			return fmt.Errorf("failed to prune old messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Messages returns the session's messages, oldest first.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, sources, feedback, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		var sourcesJSON []byte
		var feedback *string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &sourcesJSON, &feedback, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = models.Role(role)
		if feedback != nil {
			msg.Feedback = models.Feedback(*feedback)
		}
		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &msg.Sources); err != nil {
				s.logger.Warn("failed to unmarshal message sources", "message_id", msg.ID, "error", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return messages, nil
}

// UpdateMessageFeedback sets feedback on the most recently created assistant
// message in the session whose content matches exactly. Matching is by
// content, not message id: when two assistant messages have identical text
// only the newest is updated, last write wins. Returns ErrNoMatch when
// nothing matches.
func (s *Store) UpdateMessageFeedback(ctx context.Context, sessionID uuid.UUID, content string, feedback models.Feedback) error {
	if feedback != models.FeedbackPositive && feedback != models.FeedbackNegative {
		return fmt.Errorf("invalid feedback %q", feedback)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE chat_messages
		SET feedback = $1
		WHERE id = (
			SELECT id FROM chat_messages
			WHERE session_id = $2 AND content = $3 AND role = 'assistant'
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)`, string(feedback), sessionID, content)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoMatch
	}

	s.logger.Info("recorded message feedback", "session_id", sessionID, "feedback", feedback)
	return nil
}

// DeleteSession removes the session and, via cascade, its messages. Scoped
// to the owning user; deleting the active session can leave the user with no
// active session until the next CreateSession.
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID, userID string) error {
	if userID == "" {
		userID = DefaultUserID
	}

	tag, err := s.pool.Exec(ctx,
		"DELETE FROM chat_sessions WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	s.logger.Info("deleted chat session", "id", id, "user_id", userID)
	return nil
}

// Sessions lists the user's sessions newest-updated first, each with a live
// message count.
func (s *Store) Sessions(ctx context.Context, userID string) ([]models.Session, error) {
	if userID == "" {
		userID = DefaultUserID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.title, s.created_at, s.updated_at, s.user_id, s.is_active,
		       (SELECT count(*) FROM chat_messages m WHERE m.session_id = s.id) AS message_count
		FROM chat_sessions s
		WHERE s.user_id = $1
		ORDER BY s.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt, &sess.UserID, &sess.IsActive, &sess.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}

	return sessions, nil
}
