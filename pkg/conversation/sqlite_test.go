package conversation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/parley/pkg/models"
)

func mustNewStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conv_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := mustNewStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "Trip planning")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, created.Messages)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trip planning", got.Title)
	assert.NotNil(t, got.Messages)
	assert.Empty(t, got.Messages)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestGetNotFound(t *testing.T) {
	s := mustNewStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOldestFirst(t *testing.T) {
	s := mustNewStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	empty, err := s.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	first, err := s.Create(ctx, "first")
	require.NoError(t, err)
	second, err := s.Create(ctx, "second")
	require.NoError(t, err)

	convs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, second.ID, convs[1].ID)
}

func TestUpdateTitle(t *testing.T) {
	s := mustNewStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "old")
	require.NoError(t, err)

	updated, err := s.UpdateTitle(ctx, conv.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.False(t, updated.UpdatedAt.Before(conv.UpdatedAt))

	_, err = s.UpdateTitle(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := mustNewStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "doomed")
	require.NoError(t, err)
	_, err = s.AppendMessages(ctx, conv.ID, models.Message{Role: models.RoleUser, Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, conv.ID))

	_, err = s.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, conv.ID), ErrNotFound)

	msgs, err := s.messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAppendMessages(t *testing.T) {
	s := mustNewStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

	conv, err := s.Create(ctx, "chat")
	require.NoError(t, err)

	got, err := s.AppendMessages(ctx, conv.ID,
		models.Message{Role: models.RoleUser, Content: "my email is a@b.com", Timestamp: at},
		models.Message{Role: models.RoleAssistant, Content: "noted"},
	)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)

	assert.Equal(t, models.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "my email is a@b.com", got.Messages[0].Content, "conversation history keeps raw text")
	assert.True(t, at.Equal(got.Messages[0].Timestamp))
	assert.Equal(t, models.RoleAssistant, got.Messages[1].Role)
	assert.False(t, got.Messages[1].Timestamp.IsZero())

	_, err = s.AppendMessages(ctx, conv.ID, models.Message{Role: models.RoleUser, Content: "again"})
	require.NoError(t, err)

	got, err = s.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "again", got.Messages[2].Content)

	_, err = s.AppendMessages(ctx, "missing", models.Message{Role: models.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}
