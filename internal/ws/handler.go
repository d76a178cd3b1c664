package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/realtime-service/internal/apperrors"
	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/hub"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
)

// dispatchTimeout bounds each persistence step. Detached from the
// connection's lifetime: a send accepted into the ledger completes even if
// the sender disconnects mid-flight.
const dispatchTimeout = 10 * time.Second

type Options struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteDeadline   time.Duration
	MaxMessageSize  int64
	RateLimitPerSec int
}

// Handler runs the per-connection lifecycle: handshake auth, session
// registration, the read loop dispatching into the routing service, and
// teardown.
type Handler struct {
	validator auth.Validator
	registry  *hub.Hub
	presence  *presence.Manager
	service   *chat.Service
	opts      Options
	log       *zap.SugaredLogger
}

func NewHandler(v auth.Validator, registry *hub.Hub, pm *presence.Manager, svc *chat.Service, opts Options, log *zap.SugaredLogger) *Handler {
	return &Handler{validator: v, registry: registry, presence: pm, service: svc, opts: opts, log: log}
}

// Handle is mounted behind websocket.New. The credential check happens
// before any session state exists; a refused connection leaves no trace.
func (h *Handler) Handle(conn *websocket.Conn) {
	userID, err := h.validator.Validate(conn.Query("token"))
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage,
			protocol.Encode(protocol.EventError, protocol.ErrorEvent{Message: "authentication failed"}))
		_ = conn.Close()
		return
	}

	client := hub.NewClient(userID)
	if first := h.registry.Register(client); first {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		h.presence.WentOnline(ctx, userID)
		cancel()
	}
	h.log.Infow("user connected", "user_id", userID)

	go h.writePump(conn, client)
	h.readPump(conn, client)

	last := h.registry.Deregister(client)
	client.Close()
	if last {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		h.presence.WentOffline(ctx, userID)
		cancel()
	}
	h.log.Infow("user disconnected", "user_id", userID)
}

func (h *Handler) readPump(conn *websocket.Conn, client *hub.Client) {
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(h.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.opts.RateLimitPerSec), h.opts.RateLimitPerSec)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !limiter.Allow() {
			h.fail(client, "rate limit exceeded")
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.fail(client, "malformed event")
			continue
		}
		h.dispatch(client, env)
	}
}

// dispatch routes one inbound envelope. Errors become an error event on the
// originating connection only; they never reach the peer and never close
// the connection.
func (h *Handler) dispatch(client *hub.Client, env protocol.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	var (
		effects []chat.Effect
		err     error
	)
	switch env.Type {
	case protocol.EventMessageSend:
		var p protocol.SendPayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			effects, err = h.service.Send(ctx, client.UserID, p)
		}
	case protocol.EventTypingStart, protocol.EventTypingStop:
		var p protocol.TypingPayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			effects, err = h.service.Typing(client.UserID, env.Type, p)
		}
	case protocol.EventMessageRead:
		var p protocol.ReadPayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			effects, err = h.service.MarkRead(ctx, client.UserID, p)
		}
	case protocol.EventMessagesReadAll:
		var p protocol.ReadAllPayload
		if err = unmarshalPayload(env.Payload, &p); err == nil {
			effects, err = h.service.MarkAllRead(ctx, client.UserID, p)
		}
	default:
		err = errors.New("unknown event type")
	}

	if err != nil {
		h.fail(client, errorMessage(err))
		return
	}
	for _, e := range effects {
		h.registry.SendToUser(e.Channel, e.Frame())
	}
}

func (h *Handler) fail(client *hub.Client, msg string) {
	metrics.EventErrors.Inc()
	client.Deliver(protocol.Encode(protocol.EventError, protocol.ErrorEvent{Message: msg}))
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", apperrors.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed payload", apperrors.ErrValidation)
	}
	return nil
}

// errorMessage maps the error taxonomy to client-facing text without
// leaking storage internals.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return err.Error()
	case errors.Is(err, apperrors.ErrForbidden):
		return "not allowed"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not found"
	case errors.Is(err, apperrors.ErrPersistence):
		return "temporary storage failure, please retry"
	default:
		return "internal error"
	}
}
