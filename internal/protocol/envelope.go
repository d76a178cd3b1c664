package protocol

import "encoding/json"

// Inbound event types. typing:* and the read events share their names with
// the corresponding outbound notifications.
const (
	EventMessageSend     = "message:send"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventMessageRead     = "message:read"
	EventMessagesReadAll = "messages:read-all"
)

// Outbound-only event types.
const (
	EventMessageNew  = "message:new"
	EventMessageSent = "message:sent"
	EventUserOnline  = "user:online"
	EventUserOffline = "user:offline"
	EventError       = "error"
)

// Envelope is the wire format for every websocket frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps a payload into an envelope frame. Marshal errors cannot
// happen for the fixed payload types used here, so they map to a nil frame
// the hub simply drops.
func Encode(eventType string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	out, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return nil
	}
	return out
}

// SendPayload is the message:send inbound body.
type SendPayload struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
}

// TypingPayload is the typing:start / typing:stop inbound body.
type TypingPayload struct {
	ReceiverID string `json:"receiverId"`
}

// ReadPayload is the message:read inbound body.
type ReadPayload struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

// ReadAllPayload is the messages:read-all inbound body.
type ReadAllPayload struct {
	SenderID string `json:"senderId"`
}

// TypingEvent is the outbound typing body, tagged with the sender.
type TypingEvent struct {
	SenderID string `json:"senderId"`
}

// ReadEvent notifies a sender their message was read.
type ReadEvent struct {
	MessageID string `json:"messageId"`
	ReadAt    string `json:"readAt"`
}

// ReadAllEvent notifies a sender their conversation was fully read.
type ReadAllEvent struct {
	ReceiverID string `json:"receiverId"`
}

// PresenceEvent is the user:online / user:offline body.
type PresenceEvent struct {
	UserID string `json:"userId"`
}

// ErrorEvent is delivered to the originating connection only.
type ErrorEvent struct {
	Message string `json:"message"`
}
