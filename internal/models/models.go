package models

import "time"

// MaxMessageLength bounds the text of a single direct message.
const MaxMessageLength = 500

// User is owned by the account service; this service only flips its
// presence fields on connect/disconnect.
type User struct {
	ID       string    `bson:"_id,omitempty" json:"id"`
	Username string    `bson:"username" json:"username"`
	Email    string    `bson:"email" json:"email"`
	IsOnline bool      `bson:"is_online" json:"isOnline"`
	LastSeen time.Time `bson:"last_seen" json:"lastSeen"`
}

// Conversation is the single thread between exactly two users. ParticipantsKey
// is the order-independent pair key ("min:max") carrying the uniqueness
// constraint; Participants keeps the raw pair for membership checks.
type Conversation struct {
	ID              string    `bson:"_id,omitempty" json:"id"`
	ParticipantsKey string    `bson:"participants_key" json:"-"`
	Participants    []string  `bson:"participants" json:"participants"`
	LastMessage     string    `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	LastMessageAt   time.Time `bson:"last_message_at,omitempty" json:"lastMessageAt,omitempty"`
	CreatedAt       time.Time `bson:"created_at" json:"createdAt"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message is immutable once appended except for the read transition.
// IsDelivered means "accepted into the ledger and handed to routing",
// not that the receiver was online.
type Message struct {
	ID             string     `bson:"_id,omitempty" json:"id"`
	ConversationID string     `bson:"conversation_id" json:"conversationId"`
	SenderID       string     `bson:"sender_id" json:"senderId"`
	ReceiverID     string     `bson:"receiver_id" json:"receiverId"`
	Text           string     `bson:"message" json:"message"`
	IsDelivered    bool       `bson:"is_delivered" json:"isDelivered"`
	IsRead         bool       `bson:"is_read" json:"isRead"`
	ReadAt         *time.Time `bson:"read_at,omitempty" json:"readAt,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"createdAt"`
}

// UserSummary is the /users listing row: account fields plus presence and
// the last-message cache of the conversation with the caller.
type UserSummary struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	IsOnline        bool      `json:"isOnline"`
	LastSeen        time.Time `json:"lastSeen"`
	LastMessage     string    `json:"lastMessage,omitempty"`
	LastMessageTime time.Time `json:"lastMessageTime,omitempty"`
}
