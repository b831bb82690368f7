// Package chat implements the channel directory, the message store and the
// send-message protocol that joins persistence to realtime delivery.
package chat

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/observ"
	"github.com/lalith-99/agencychat/internal/repository"
)

// Broadcaster fans a stored message out to the sessions joined to its
// channel and reports how many sessions it reached.
type Broadcaster interface {
	Publish(ctx context.Context, channelID uuid.UUID, msg models.MessageSummary) (int, error)
}

type Service struct {
	channels    repository.ChannelRepository
	messages    repository.MessageRepository
	users       repository.UserRepository
	broadcaster Broadcaster
	logger      *zap.Logger

	now       func() time.Time
	idGen     func(time.Time) string
	channelID func() uuid.UUID
}

// NewService wires the service. broadcaster may be nil, in which case sends
// are persisted but never delivered live.
func NewService(
	channels repository.ChannelRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	broadcaster Broadcaster,
	logger *zap.Logger,
) *Service {
	return &Service{
		channels:    channels,
		messages:    messages,
		users:       users,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
		idGen:       newMessageIDGenerator(),
		channelID:   uuid.New,
	}
}

// newMessageIDGenerator returns a ULID source. Monotonic entropy keeps ids
// minted in the same millisecond increasing; it is not goroutine safe on
// its own, hence the mutex.
func newMessageIDGenerator() func(time.Time) string {
	var mu sync.Mutex
	entropy := ulid.Monotonic(rand.Reader, 0)
	return func(t time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		id, err := ulid.New(ulid.Timestamp(t), entropy)
		if err != nil {
			// Monotonic overflow within one millisecond.
			return ulid.Make().String()
		}
		return id.String()
	}
}

// timestamp is the server-assigned creation time: UTC, truncated to the
// microsecond precision every store keeps.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// ---------------------------------------------------------------
// Channel directory
// ---------------------------------------------------------------

func (s *Service) ListChannelsForUser(ctx context.Context, userID uuid.UUID) ([]models.ChannelSummary, error) {
	if userID == uuid.Nil {
		return nil, invalid("user_id", "is required")
	}
	channels, err := s.channels.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// CreateOrGetChannel creates a group channel, or returns the existing DM
// with the same name and exact member set. created is false on a DM hit.
func (s *Service) CreateOrGetChannel(ctx context.Context, req CreateChannelRequest) (*models.Channel, bool, error) {
	req, err := req.Validate()
	if err != nil {
		return nil, false, err
	}

	ch := models.Channel{
		ID:        s.channelID(),
		Name:      req.Name,
		IsDM:      req.IsDM,
		CreatedBy: req.CreatedBy,
		MemberIDs: req.MemberIDs,
		CreatedAt: s.timestamp(),
	}

	if !ch.IsDM {
		created, err := s.channels.Create(ctx, ch)
		if err != nil {
			return nil, false, fmt.Errorf("create channel: %w", err)
		}
		return created, true, nil
	}

	got, created, err := s.channels.CreateOrGetDM(ctx, ch)
	if err != nil {
		return nil, false, fmt.Errorf("create or get dm: %w", err)
	}
	if created {
		s.logger.Info("dm channel created",
			zap.String("channel_id", got.ID.String()),
			zap.String("name", got.Name),
		)
	}
	return got, created, nil
}

// GetMembers returns the member summaries in join order. Members missing
// from the user directory are left out.
func (s *Service) GetMembers(ctx context.Context, channelID uuid.UUID) ([]models.MemberSummary, error) {
	ch, err := s.getChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	users, err := s.users.ListByIDs(ctx, ch.MemberIDs)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	if len(users) < len(ch.MemberIDs) {
		s.logger.Debug("channel members missing from user directory",
			zap.String("channel_id", channelID.String()),
			zap.Int("members", len(ch.MemberIDs)),
			zap.Int("found", len(users)),
		)
	}

	out := make([]models.MemberSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

func (s *Service) getChannel(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	if channelID == uuid.Nil {
		return nil, ErrNotFound
	}
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return nil, ErrNotFound
	}
	return ch, nil
}

// ---------------------------------------------------------------
// Message store
// ---------------------------------------------------------------

// Append stores a message with a server-assigned id and timestamp.
// Nothing is written when validation fails or the channel is unknown.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.getChannel(ctx, req.ChannelID); err != nil {
		return nil, err
	}

	createdAt := s.timestamp()
	msg := models.Message{
		ID:              s.idGen(createdAt),
		ChannelID:       req.ChannelID,
		UserID:          req.UserID,
		Content:         req.Content,
		ParentMessageID: req.ParentMessageID,
		Name:            req.Name,
		CreatedAt:       createdAt,
	}

	stored, err := s.messages.Append(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	observ.MessagesAppended.Inc()
	return stored, nil
}

// History returns a channel's messages oldest first. The zero page is the
// full history; a channel with no messages (or no such channel) yields an
// empty slice.
func (s *Service) History(ctx context.Context, channelID uuid.UUID, page models.Page) ([]models.Message, error) {
	if channelID == uuid.Nil {
		return nil, invalid("channel_id", "is required")
	}
	if page.Limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}
	if page.Limit > MaxPageLimit {
		page.Limit = MaxPageLimit
	}

	msgs, err := s.messages.History(ctx, channelID, page)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}
