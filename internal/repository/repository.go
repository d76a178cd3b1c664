package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/models"
)

// ConversationRepository resolves and reads the one-per-pair conversation
// records. Resolve must be idempotent under concurrent invocation: two
// near-simultaneous calls for the same pair return the same conversation.
type ConversationRepository interface {
	Resolve(ctx context.Context, userA, userB string) (*models.Conversation, error)
	FindByParticipants(ctx context.Context, userA, userB string) (*models.Conversation, error)
	UpdateLastMessage(ctx context.Context, conversationID, text string, at time.Time) error
}

// MessageRepository is the append side of the message ledger.
type MessageRepository interface {
	Insert(ctx context.Context, m *models.Message) (*models.Message, error)
	FindByID(ctx context.Context, id string) (*models.Message, error)
	// MarkRead flips a single unread message addressed to receiverID.
	// Returns the updated message, or nil when no unread message matched
	// (caller distinguishes not-found / wrong receiver / already read).
	MarkRead(ctx context.Context, id, receiverID string, at time.Time) (*models.Message, error)
	// MarkAllRead flips every unread message addressed to receiverID in the
	// conversation, stamping one shared readAt. Returns the number flipped.
	MarkAllRead(ctx context.Context, conversationID, receiverID string, at time.Time) (int64, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error)
}

// UserRepository covers the presence writes and the listing read this
// service needs; user lifecycle belongs to the account service.
type UserRepository interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
	ListOthers(ctx context.Context, userID string) ([]*models.User, error)
}

// PairKey normalizes an unordered user pair into the unique conversation key.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
