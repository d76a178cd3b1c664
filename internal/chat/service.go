package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/apperrors"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/models"
	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"github.com/fathima-sithara/realtime-service/internal/repository"
)

// Effect is one outbound delivery produced by a dispatch: a payload
// addressed to a user channel. The transport layer turns effects into
// frames; the service itself never touches a socket.
type Effect struct {
	Channel string
	Event   string
	Payload any
}

// Frame encodes the effect into its wire form.
func (e Effect) Frame() []byte {
	return protocol.Encode(e.Event, e.Payload)
}

// Publisher emits accepted messages to downstream consumers. Best-effort;
// routing never fails because of it.
type Publisher interface {
	PublishMessageSent(ctx context.Context, m *models.Message) error
}

// Service is the routing engine: it validates inbound events, persists
// through the resolver and ledger, and returns the deliveries to make.
type Service struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	publisher     Publisher
	log           *zap.SugaredLogger
}

func NewService(conversations repository.ConversationRepository, messages repository.MessageRepository, log *zap.SugaredLogger) *Service {
	return &Service{conversations: conversations, messages: messages, log: log}
}

// SetPublisher attaches an optional downstream event publisher.
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

// Send resolves the pair's conversation, appends the message to the ledger
// and returns the delivery to the receiver plus the ack to the sender.
func (s *Service) Send(ctx context.Context, senderID string, p protocol.SendPayload) ([]Effect, error) {
	if p.ReceiverID == "" {
		return nil, fmt.Errorf("%w: receiverId is required", apperrors.ErrValidation)
	}
	text := strings.TrimSpace(p.Message)
	if text == "" {
		return nil, fmt.Errorf("%w: message is empty", apperrors.ErrValidation)
	}
	if len(p.Message) > models.MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d characters", apperrors.ErrValidation, models.MaxMessageLength)
	}

	conv, err := s.conversations.Resolve(ctx, senderID, p.ReceiverID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     p.ReceiverID,
		Text:           p.Message,
		IsDelivered:    true,
	}
	msg, err = s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}

	s.updateLastMessage(ctx, conv.ID, msg)

	if s.publisher != nil {
		if err := s.publisher.PublishMessageSent(ctx, msg); err != nil {
			s.log.Warnw("publish message event", "message_id", msg.ID, "error", err)
		}
	}
	metrics.MessagesRouted.Inc()

	return []Effect{
		{Channel: p.ReceiverID, Event: protocol.EventMessageNew, Payload: msg},
		{Channel: senderID, Event: protocol.EventMessageSent, Payload: msg},
	}, nil
}

// updateLastMessage keeps the conversation's listing cache in step with the
// last accepted message. The append already succeeded, so a failed cache
// write is retried rather than dropped.
func (s *Service) updateLastMessage(ctx context.Context, conversationID string, msg *models.Message) {
	op := func() error {
		return s.conversations.UpdateLastMessage(ctx, conversationID, msg.Text, msg.CreatedAt)
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		s.log.Errorw("last-message cache update failed", "conversation_id", conversationID, "error", err)
	}
}

// Typing forwards a typing indicator to the receiver, tagged with the
// sender. eventType is typing:start or typing:stop.
func (s *Service) Typing(senderID, eventType string, p protocol.TypingPayload) ([]Effect, error) {
	if p.ReceiverID == "" {
		return nil, fmt.Errorf("%w: receiverId is required", apperrors.ErrValidation)
	}
	return []Effect{
		{Channel: p.ReceiverID, Event: eventType, Payload: protocol.TypingEvent{SenderID: senderID}},
	}, nil
}

// MarkRead flips one message to read on behalf of its receiver and notifies
// the sender. Re-reading an already-read message is a silent no-op.
func (s *Service) MarkRead(ctx context.Context, requesterID string, p protocol.ReadPayload) ([]Effect, error) {
	if p.MessageID == "" {
		return nil, fmt.Errorf("%w: messageId is required", apperrors.ErrValidation)
	}

	now := time.Now().UTC()
	msg, err := s.messages.MarkRead(ctx, p.MessageID, requesterID, now)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		// Nothing transitioned: classify against the current record.
		existing, err := s.messages.FindByID(ctx, p.MessageID)
		if err != nil {
			return nil, err
		}
		if existing.ReceiverID != requesterID {
			return nil, fmt.Errorf("%w: only the receiver may mark a message read", apperrors.ErrForbidden)
		}
		// Already read: idempotent, keep the original stamp, no events.
		return nil, nil
	}

	return []Effect{
		{Channel: msg.SenderID, Event: protocol.EventMessageRead, Payload: protocol.ReadEvent{
			MessageID: msg.ID,
			ReadAt:    msg.ReadAt.Format(time.RFC3339Nano),
		}},
	}, nil
}

// MarkAllRead flips every unread message the given sender addressed to the
// requester. Missing conversation or zero unread messages are no-ops.
func (s *Service) MarkAllRead(ctx context.Context, requesterID string, p protocol.ReadAllPayload) ([]Effect, error) {
	if p.SenderID == "" {
		return nil, fmt.Errorf("%w: senderId is required", apperrors.ErrValidation)
	}

	conv, err := s.conversations.FindByParticipants(ctx, requesterID, p.SenderID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	n, err := s.messages.MarkAllRead(ctx, conv.ID, requesterID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	return []Effect{
		{Channel: p.SenderID, Event: protocol.EventMessagesReadAll, Payload: protocol.ReadAllEvent{ReceiverID: requesterID}},
	}, nil
}

// History lists a conversation's messages in ascending time order,
// resolving the conversation first so a pair's thread exists after the
// first fetch, matching the listing API contract.
func (s *Service) History(ctx context.Context, userID, peerID string) ([]*models.Message, error) {
	conv, err := s.conversations.Resolve(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(ctx, conv.ID)
}
