package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-service/internal/apperrors"
	"github.com/fathima-sithara/realtime-service/internal/models"
)

func TestPairKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("a", "b"), PairKey("b", "a"))
	assert.Equal(t, "a:b", PairKey("b", "a"))
	assert.NotEqual(t, PairKey("a", "b"), PairKey("a", "c"))
}

func TestResolveIdempotentUnderConcurrency(t *testing.T) {
	repo := NewMemoryConversationRepo(NewMemoryStore())
	ctx := context.Background()

	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "u1", "u2"
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := repo.Resolve(ctx, a, b)
			if err == nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i], "concurrent resolves must converge on one conversation")
	}
}

func TestResolvePopulatesParticipants(t *testing.T) {
	repo := NewMemoryConversationRepo(NewMemoryStore())
	conv, err := repo.Resolve(context.Background(), "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1:u2", conv.ParticipantsKey)
	assert.ElementsMatch(t, []string{"u1", "u2"}, conv.Participants)
	assert.True(t, conv.HasParticipant("u1"))
	assert.False(t, conv.HasParticipant("u3"))
}

func TestFindByParticipantsNotFound(t *testing.T) {
	repo := NewMemoryConversationRepo(NewMemoryStore())
	_, err := repo.FindByParticipants(context.Background(), "u1", "u2")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMarkReadScenarios(t *testing.T) {
	store := NewMemoryStore()
	msgs := NewMemoryMessageRepo(store)
	ctx := context.Background()

	m, err := msgs.Insert(ctx, &models.Message{
		ConversationID: "c1", SenderID: "u1", ReceiverID: "u2",
		Text: "hi", IsDelivered: true,
	})
	require.NoError(t, err)

	now := time.Now().UTC()

	// wrong receiver: no transition
	res, err := msgs.MarkRead(ctx, m.ID, "u1", now)
	require.NoError(t, err)
	assert.Nil(t, res)

	// receiver: transitions once
	res, err = msgs.MarkRead(ctx, m.ID, "u2", now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.IsRead)
	require.NotNil(t, res.ReadAt)

	// second attempt is a no-op and keeps the original stamp
	res2, err := msgs.MarkRead(ctx, m.ID, "u2", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, res2)
	stored, err := msgs.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, *res.ReadAt, *stored.ReadAt)
}

func TestMarkAllReadCountsAndNoops(t *testing.T) {
	store := NewMemoryStore()
	msgs := NewMemoryMessageRepo(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := msgs.Insert(ctx, &models.Message{
			ConversationID: "c1", SenderID: "u1", ReceiverID: "u2", Text: "x",
		})
		require.NoError(t, err)
	}
	// one message in the other direction stays untouched
	_, err := msgs.Insert(ctx, &models.Message{
		ConversationID: "c1", SenderID: "u2", ReceiverID: "u1", Text: "y",
	})
	require.NoError(t, err)

	n, err := msgs.MarkAllRead(ctx, "c1", "u2", time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = msgs.MarkAllRead(ctx, "c1", "u2", time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "repeat invocation finds nothing to flip")

	n, err = msgs.MarkAllRead(ctx, "missing", "u2", time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestListByConversationOrder(t *testing.T) {
	store := NewMemoryStore()
	msgs := NewMemoryMessageRepo(store)
	ctx := context.Background()

	for _, text := range []string{"1", "2", "3"} {
		_, err := msgs.Insert(ctx, &models.Message{
			ConversationID: "c1", SenderID: "u1", ReceiverID: "u2", Text: text,
		})
		require.NoError(t, err)
	}

	out, err := msgs.ListByConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "1", out[0].Text)
	assert.Equal(t, "3", out[2].Text)
}

func TestUserPresencePersistence(t *testing.T) {
	store := NewMemoryStore()
	store.SeedUser(&models.User{ID: "u1", Username: "alice"})
	store.SeedUser(&models.User{ID: "u2", Username: "bob"})
	users := NewMemoryUserRepo(store)
	ctx := context.Background()

	require.NoError(t, users.SetOnline(ctx, "u1"))
	others, err := users.ListOthers(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, "alice", others[0].Username)
	assert.True(t, others[0].IsOnline)

	seen := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, users.SetOffline(ctx, "u1", seen))
	others, err = users.ListOthers(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, others[0].IsOnline)
	assert.Equal(t, seen, others[0].LastSeen)
}
