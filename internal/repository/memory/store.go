// Package memory keeps channels, messages and users in process memory.
// It backs STORE_DRIVER=memory and the service and API tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/repository"
)

// Store is the shared state behind the three repositories. One mutex
// covers everything so ListForUser sees channels and messages consistently.
type Store struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]models.Channel
	order    []uuid.UUID
	messages map[uuid.UUID][]models.Message
	users    map[uuid.UUID]models.User
}

func New() *Store {
	return &Store{
		channels: make(map[uuid.UUID]models.Channel),
		messages: make(map[uuid.UUID][]models.Message),
		users:    make(map[uuid.UUID]models.User),
	}
}

func (s *Store) Channels() *ChannelStore { return &ChannelStore{s: s} }
func (s *Store) Messages() *MessageStore { return &MessageStore{s: s} }
func (s *Store) Users() *UserStore       { return &UserStore{s: s} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type ChannelStore struct{ s *Store }

var _ repository.ChannelRepository = (*ChannelStore)(nil)

func (c *ChannelStore) Create(_ context.Context, ch models.Channel) (*models.Channel, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	out := c.s.insertLocked(ch)
	return &out, nil
}

func (s *Store) insertLocked(ch models.Channel) models.Channel {
	ch.MemberIDs = append([]uuid.UUID(nil), ch.MemberIDs...)
	s.channels[ch.ID] = ch
	s.order = append(s.order, ch.ID)
	return cloneChannel(ch)
}

func (c *ChannelStore) GetByID(_ context.Context, channelID uuid.UUID) (*models.Channel, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	ch, ok := c.s.channels[channelID]
	if !ok {
		return nil, nil
	}
	out := cloneChannel(ch)
	return &out, nil
}

func (c *ChannelStore) FindDM(_ context.Context, name string, memberIDs []uuid.UUID) (*models.Channel, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.findDMLocked(name, memberIDs), nil
}

// findDMLocked walks channels in creation order so the oldest match wins,
// the same tie-break the SQL adapters use.
func (s *Store) findDMLocked(name string, memberIDs []uuid.UUID) *models.Channel {
	for _, id := range s.order {
		ch := s.channels[id]
		if ch.IsDM && ch.Name == name && repository.SameMembers(ch.MemberIDs, memberIDs) {
			out := cloneChannel(ch)
			return &out
		}
	}
	return nil
}

func (c *ChannelStore) CreateOrGetDM(_ context.Context, ch models.Channel) (*models.Channel, bool, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if existing := c.s.findDMLocked(ch.Name, ch.MemberIDs); existing != nil {
		return existing, false, nil
	}
	out := c.s.insertLocked(ch)
	return &out, true, nil
}

func (c *ChannelStore) ListForUser(_ context.Context, userID uuid.UUID) ([]models.ChannelSummary, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	out := make([]models.ChannelSummary, 0)
	for _, id := range c.s.order {
		ch := c.s.channels[id]
		if !contains(ch.MemberIDs, userID) {
			continue
		}
		sum := models.ChannelSummary{Channel: cloneChannel(ch)}
		for _, msg := range c.s.messages[id] {
			if sum.LastMessageAt == nil || msg.CreatedAt.After(*sum.LastMessageAt) {
				at := msg.CreatedAt
				sum.LastMessageAt = &at
			}
		}
		out = append(out, sum)
	}
	// Same ordering as the SQL adapters: created_at, insertion breaks ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type MessageStore struct{ s *Store }

var _ repository.MessageRepository = (*MessageStore)(nil)

func (m *MessageStore) Append(_ context.Context, msg models.Message) (*models.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.messages[msg.ChannelID] = append(m.s.messages[msg.ChannelID], msg)
	return &msg, nil
}

func (m *MessageStore) History(_ context.Context, channelID uuid.UUID, page models.Page) ([]models.Message, error) {
	m.s.mu.RLock()
	all := m.s.messages[channelID]
	out := make([]models.Message, 0, len(all))
	for _, msg := range all {
		if page.Before != "" && msg.ID >= page.Before {
			continue
		}
		out = append(out, msg)
	}
	m.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[len(out)-page.Limit:]
	}
	return out, nil
}

func (m *MessageStore) Count(_ context.Context, channelID uuid.UUID) (int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return len(m.s.messages[channelID]), nil
}

type UserStore struct{ s *Store }

var _ repository.UserRepository = (*UserStore)(nil)

func (u *UserStore) Create(_ context.Context, user models.User) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	u.s.users[user.ID] = user
	return &user, nil
}

func (u *UserStore) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (u *UserStore) ListByIDs(_ context.Context, ids []uuid.UUID) ([]models.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := u.s.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func cloneChannel(ch models.Channel) models.Channel {
	ch.MemberIDs = append([]uuid.UUID(nil), ch.MemberIDs...)
	return ch
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
