package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-service/internal/apperrors"
	"github.com/fathima-sithara/realtime-service/internal/models"
)

// MemoryStore backs the repositories with in-process maps. It serves the
// "memory" storage driver and the unit tests; the locking mirrors the
// guarantees the Mongo implementation gets from its indexes.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]*models.User
	conversations map[string]*models.Conversation // pair key -> conversation
	messages      map[string]*models.Message
	order         []string // message ids in insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*models.User),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
	}
}

// SeedUser registers a user record, standing in for the account service.
func (s *MemoryStore) SeedUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// MemoryConversationRepo implements ConversationRepository over MemoryStore.
type MemoryConversationRepo struct{ store *MemoryStore }

func NewMemoryConversationRepo(s *MemoryStore) *MemoryConversationRepo {
	return &MemoryConversationRepo{store: s}
}

func (r *MemoryConversationRepo) Resolve(_ context.Context, userA, userB string) (*models.Conversation, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	key := PairKey(userA, userB)
	if conv, ok := s.conversations[key]; ok {
		cp := *conv
		return &cp, nil
	}
	conv := &models.Conversation{
		ID:              uuid.NewString(),
		ParticipantsKey: key,
		Participants:    []string{userA, userB},
		CreatedAt:       time.Now().UTC(),
	}
	s.conversations[key] = conv
	cp := *conv
	return &cp, nil
}

func (r *MemoryConversationRepo) FindByParticipants(_ context.Context, userA, userB string) (*models.Conversation, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[PairKey(userA, userB)]; ok {
		cp := *conv
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *MemoryConversationRepo) UpdateLastMessage(_ context.Context, conversationID, text string, at time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.ID == conversationID {
			conv.LastMessage = text
			conv.LastMessageAt = at
			return nil
		}
	}
	return apperrors.ErrNotFound
}

// MemoryMessageRepo implements MessageRepository over MemoryStore.
type MemoryMessageRepo struct{ store *MemoryStore }

func NewMemoryMessageRepo(s *MemoryStore) *MemoryMessageRepo {
	return &MemoryMessageRepo{store: s}
}

func (r *MemoryMessageRepo) Insert(_ context.Context, m *models.Message) (*models.Message, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	cp := *m
	s.messages[m.ID] = &cp
	s.order = append(s.order, m.ID)
	return m, nil
}

func (r *MemoryMessageRepo) FindByID(_ context.Context, id string) (*models.Message, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *MemoryMessageRepo) MarkRead(_ context.Context, id, receiverID string, at time.Time) (*models.Message, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.ReceiverID != receiverID || m.IsRead {
		return nil, nil
	}
	m.IsRead = true
	t := at
	m.ReadAt = &t
	cp := *m
	return &cp, nil
}

func (r *MemoryMessageRepo) MarkAllRead(_ context.Context, conversationID, receiverID string, at time.Time) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.ReceiverID == receiverID && !m.IsRead {
			m.IsRead = true
			t := at
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (r *MemoryMessageRepo) ListByConversation(_ context.Context, conversationID string) ([]*models.Message, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Message
	for _, id := range s.order {
		m := s.messages[id]
		if m.ConversationID == conversationID {
			cp := *m
			out = append(out, &cp)
		}
	}
	// insertion order already breaks created_at ties
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MemoryUserRepo implements UserRepository over MemoryStore.
type MemoryUserRepo struct{ store *MemoryStore }

func NewMemoryUserRepo(s *MemoryStore) *MemoryUserRepo {
	return &MemoryUserRepo{store: s}
}

func (r *MemoryUserRepo) SetOnline(_ context.Context, userID string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		u = &models.User{ID: userID}
		s.users[userID] = u
	}
	u.IsOnline = true
	u.LastSeen = time.Now().UTC()
	return nil
}

func (r *MemoryUserRepo) SetOffline(_ context.Context, userID string, lastSeen time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		u = &models.User{ID: userID}
		s.users[userID] = u
	}
	u.IsOnline = false
	u.LastSeen = lastSeen
	return nil
}

func (r *MemoryUserRepo) ListOthers(_ context.Context, userID string) ([]*models.User, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.users {
		if u.ID == userID {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
