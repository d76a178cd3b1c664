package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/hub"
	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"github.com/fathima-sithara/realtime-service/internal/repository"
)

type staticValidator struct{}

func (staticValidator) Validate(token string) (string, error) { return token, nil }

func newTestHandler(t *testing.T) (*Handler, *hub.Hub) {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := repository.NewMemoryStore()
	registry := hub.New(log)
	svc := chat.NewService(
		repository.NewMemoryConversationRepo(store),
		repository.NewMemoryMessageRepo(store),
		log,
	)
	pm := presence.NewManager(repository.NewMemoryUserRepo(store), registry, log)
	return NewHandler(staticValidator{}, registry, pm, svc, Options{}, log), registry
}

func envelope(t *testing.T, eventType string, payload any) protocol.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return protocol.Envelope{Type: eventType, Payload: raw}
}

func pull(t *testing.T, c *hub.Client) []protocol.Envelope {
	t.Helper()
	var out []protocol.Envelope
	for {
		select {
		case p := <-c.Outbox():
			var env protocol.Envelope
			require.NoError(t, json.Unmarshal(p, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestDispatchSendRoutesToBothChannels(t *testing.T) {
	h, registry := newTestHandler(t)

	sender := hub.NewClient("u1")
	receiver := hub.NewClient("u2")
	registry.Register(sender)
	registry.Register(receiver)

	h.dispatch(sender, envelope(t, protocol.EventMessageSend,
		protocol.SendPayload{ReceiverID: "u2", Message: "hi"}))

	recvFrames := pull(t, receiver)
	require.Len(t, recvFrames, 1)
	assert.Equal(t, protocol.EventMessageNew, recvFrames[0].Type)

	senderFrames := pull(t, sender)
	require.Len(t, senderFrames, 1)
	assert.Equal(t, protocol.EventMessageSent, senderFrames[0].Type)

	var got models.Message
	require.NoError(t, json.Unmarshal(recvFrames[0].Payload, &got))
	assert.Equal(t, "hi", got.Text)
	assert.True(t, got.IsDelivered)
}

func TestDispatchErrorStaysLocal(t *testing.T) {
	h, registry := newTestHandler(t)

	sender := hub.NewClient("u1")
	receiver := hub.NewClient("u2")
	registry.Register(sender)
	registry.Register(receiver)

	h.dispatch(sender, envelope(t, protocol.EventMessageSend,
		protocol.SendPayload{ReceiverID: "u2", Message: ""}))

	assert.Empty(t, pull(t, receiver), "validation failures never reach the peer")

	frames := pull(t, sender)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventError, frames[0].Type)
}

func TestDispatchUnknownEvent(t *testing.T) {
	h, registry := newTestHandler(t)

	sender := hub.NewClient("u1")
	registry.Register(sender)

	h.dispatch(sender, protocol.Envelope{Type: "message:edit"})

	frames := pull(t, sender)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventError, frames[0].Type)
}

func TestDispatchTypingTagsSender(t *testing.T) {
	h, registry := newTestHandler(t)

	sender := hub.NewClient("u1")
	receiver := hub.NewClient("u2")
	registry.Register(sender)
	registry.Register(receiver)

	h.dispatch(sender, envelope(t, protocol.EventTypingStart,
		protocol.TypingPayload{ReceiverID: "u2"}))

	frames := pull(t, receiver)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventTypingStart, frames[0].Type)
	var ev protocol.TypingEvent
	require.NoError(t, json.Unmarshal(frames[0].Payload, &ev))
	assert.Equal(t, "u1", ev.SenderID)
	assert.Empty(t, pull(t, sender), "typing produces no ack")
}
