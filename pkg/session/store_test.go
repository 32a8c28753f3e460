package session

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-ai/memora/db"
	"github.com/memora-ai/memora/internal/log"
	"github.com/memora-ai/memora/internal/models"
)

// setupStore connects to the database named by TEST_DATABASE_URL and returns
// a store over empty tables. Tests are skipped when the variable is unset.
func setupStore(t *testing.T, cfg Config) *Store {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, db.Migrate(dbURL, log.NewNop()))

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE chat_sessions CASCADE")
	require.NoError(t, err)

	return New(pool, cfg, log.NewNop())
}

func TestAddMessageValidation(t *testing.T) {
	// Role and feedback checks run before any database work.
	store := New(nil, Config{}, log.NewNop())

	err := store.AddMessage(context.Background(), uuid.New(), "system", "hi", nil, "")
	assert.Error(t, err)

	err = store.AddMessage(context.Background(), uuid.New(), models.RoleUser, "hi", nil, "meh")
	assert.Error(t, err)
}

func TestUpdateMessageFeedbackValidation(t *testing.T) {
	store := New(nil, Config{}, log.NewNop())

	err := store.UpdateMessageFeedback(context.Background(), uuid.New(), "answer", "meh")
	assert.Error(t, err)
}

func TestCreateSessionActivation(t *testing.T) {
	store := setupStore(t, Config{})
	ctx := context.Background()

	first, err := store.CreateSession(ctx, "first", "")
	require.NoError(t, err)

	second, err := store.CreateSession(ctx, "second", "")
	require.NoError(t, err)

	active, err := store.ActiveSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, second, active.ID)
	assert.NotEqual(t, first, active.ID)

	sessions, err := store.Sessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	// Exactly one session is active.
	activeCount := 0
	for _, s := range sessions {
		if s.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestCreateSessionDefaultTitle(t *testing.T) {
	store := setupStore(t, Config{})
	ctx := context.Background()

	_, err := store.CreateSession(ctx, "", "")
	require.NoError(t, err)

	active, err := store.ActiveSession(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, active.Title, "Chat ")
}

func TestSessionEviction(t *testing.T) {
	store := setupStore(t, Config{MaxSessionsPerUser: 3})
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := store.CreateSession(ctx, fmt.Sprintf("chat-%d", i), "")
		require.NoError(t, err)
	}

	sessions, err := store.Sessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	// The stalest session was evicted to make room.
	titles := make([]string, len(sessions))
	for i, s := range sessions {
		titles[i] = s.Title
	}
	assert.NotContains(t, titles, "chat-1")
	assert.Contains(t, titles, "chat-4")
}

func TestSessionsAreScopedPerUser(t *testing.T) {
	store := setupStore(t, Config{})
	ctx := context.Background()

	_, err := store.CreateSession(ctx, "mine", "alice")
	require.NoError(t, err)
	theirs, err := store.CreateSession(ctx, "theirs", "bob")
	require.NoError(t, err)

	sessions, err := store.Sessions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "mine", sessions[0].Title)

	// A user cannot switch to or delete another user's session.
	assert.ErrorIs(t, store.SwitchSession(ctx, theirs, "alice"), ErrSessionNotFound)
	assert.ErrorIs(t, store.DeleteSession(ctx, theirs, "alice"), ErrSessionNotFound)
}

func TestActiveSessionNotFound(t *testing.T) {
	store := setupStore(t, Config{})

	_, err := store.ActiveSession(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSwitchSession(t *testing.T) {
	store := setupStore(t, Config{})
	ctx := context.Background()

	first, err := store.CreateSession(ctx, "first", "")
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "second", "")
	require.NoError(t, err)

	require.NoError(t, store.SwitchSession(ctx, first, ""))

	active, err := store.ActiveSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first, active.ID)

	// Switching to an unknown session leaves the current one active.
	err = store.SwitchSession(ctx, uuid.New(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	active, err = store.ActiveSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, first, active.ID)
}

func TestAddMessageAndPrune(t *testing.T) {
	store := setupStore(t, Config{MaxMessagesPerSession: 5})
	ctx := context.Background()

	id, err := store.CreateSession(ctx, "chat", "")
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		require.NoError(t, store.AddMessage(ctx, id, models.RoleUser, fmt.Sprintf("msg-%d", i), nil, ""))
	}

	messages, err := store.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 5)

	// Oldest messages go first, order stays chronological.
	assert.Equal(t, "msg-3", messages[0].Content)
	assert.Equal(t, "msg-7", messages[4].Content)
}

func TestAddMessageStoresSources(t *testing.T) {
	store := setupStore(t, Config{})
	ctx := context.Background()

	id, err := store.CreateSession(ctx, "chat", "")
	require.NoError(t, err)

	sources := []models.SearchResult{
		{Content: "chunk text", Source: "doc.md", Title: "Doc", Similarity: 0.9, Rank: 1},
	}
	require.NoError(t, store.AddMessage(ctx, id, models.RoleAssistant, "answer", sources, ""))

	messages, err := store.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Len(t, messages[0].Sources, 1)
	assert.Equal(t, "doc.md", messages[0].Sources[0].Source)
	assert.Equal(t, 0.9, messages[0].Sources[0].Similarity)
}

func TestUpdateMessageFeedback(t *testing.T) {
	store := setupStore(t, Config{})
	ctx := context.Background()

	id, err := store.CreateSession(ctx, "chat", "")
	require.NoError(t, err)

	require.NoError(t, store.AddMessage(ctx, id, models.RoleUser, "same text", nil, ""))
	require.NoError(t, store.AddMessage(ctx, id, models.RoleAssistant, "same text", nil, ""))
	require.NoError(t, store.AddMessage(ctx, id, models.RoleAssistant, "same text", nil, ""))

	require.NoError(t, store.UpdateMessageFeedback(ctx, id, "same text", models.FeedbackPositive))

	messages, err := store.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// Only the newest assistant message with that content is updated; the
	// user message is never touched.
	assert.Empty(t, messages[0].Feedback)
	assert.Empty(t, messages[1].Feedback)
	assert.Equal(t, models.FeedbackPositive, messages[2].Feedback)

	// Last write wins.
	require.NoError(t, store.UpdateMessageFeedback(ctx, id, "same text", models.FeedbackNegative))
	messages, err = store.Messages(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackNegative, messages[2].Feedback)

	err = store.UpdateMessageFeedback(ctx, id, "never said this", models.FeedbackPositive)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestDeleteSessionCascade(t *testing.T) {
	store := setupStore(t, Config{})
	ctx := context.Background()

	id, err := store.CreateSession(ctx, "chat", "")
	require.NoError(t, err)
	require.NoError(t, store.AddMessage(ctx, id, models.RoleUser, "hello", nil, ""))

	require.NoError(t, store.DeleteSession(ctx, id, ""))

	messages, err := store.Messages(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, messages)

	assert.ErrorIs(t, store.DeleteSession(ctx, id, ""), ErrSessionNotFound)
}

func TestSessionsMessageCount(t *testing.T) {
	store := setupStore(t, Config{})
	ctx := context.Background()

	id, err := store.CreateSession(ctx, "chat", "")
	require.NoError(t, err)
	require.NoError(t, store.AddMessage(ctx, id, models.RoleUser, "q", nil, ""))
	require.NoError(t, store.AddMessage(ctx, id, models.RoleAssistant, "a", nil, ""))

	sessions, err := store.Sessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].MessageCount)
}
