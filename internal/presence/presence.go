package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/protocol"
	"github.com/fathima-sithara/realtime-service/internal/repository"
)

// Broadcaster is the slice of the session registry presence needs.
type Broadcaster interface {
	BroadcastExcept(exceptID string, payload []byte)
}

// Manager flips the persisted online flag and announces transitions to
// other connected users. Callers invoke it only on first-session and
// last-session boundaries; the session registry owns that reference count.
type Manager struct {
	users repository.UserRepository
	reg   Broadcaster
	log   *zap.SugaredLogger
}

func NewManager(users repository.UserRepository, reg Broadcaster, log *zap.SugaredLogger) *Manager {
	return &Manager{users: users, reg: reg, log: log}
}

// WentOnline records the user as online and announces it. The broadcast is
// best-effort; a persistence failure is logged, not surfaced, since the
// session itself is already established.
func (m *Manager) WentOnline(ctx context.Context, userID string) {
	if err := m.users.SetOnline(ctx, userID); err != nil {
		m.log.Warnw("persist online status", "user_id", userID, "error", err)
	}
	m.reg.BroadcastExcept(userID, protocol.Encode(protocol.EventUserOnline, protocol.PresenceEvent{UserID: userID}))
}

// WentOffline stamps last-seen and announces the user offline.
func (m *Manager) WentOffline(ctx context.Context, userID string) {
	if err := m.users.SetOffline(ctx, userID, time.Now().UTC()); err != nil {
		m.log.Warnw("persist offline status", "user_id", userID, "error", err)
	}
	m.reg.BroadcastExcept(userID, protocol.Encode(protocol.EventUserOffline, protocol.PresenceEvent{UserID: userID}))
}
