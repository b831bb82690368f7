package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/observ"
)

// Event names on the wire.
const (
	EventJoin           = "join"
	EventLeave          = "leave"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventError          = "error"
)

var ErrUnknownSession = errors.New("unknown session")

// Envelope is every socket frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps data in an envelope for event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// RoomName is the room a channel's messages are published to.
func RoomName(channelID uuid.UUID) string {
	return "channel_" + channelID.String()
}

// Hub tracks connected sessions and delivers published messages to the
// ones joined to a channel's room.
//
// Sessions live only in this process. Room membership lives in the
// RoomRegistry; members the registry reports that are not connected here
// are skipped.
type Hub struct {
	registry RoomRegistry
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]Session
}

func NewHub(registry RoomRegistry, logger *zap.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		sessions: make(map[string]Session),
	}
}

// Connect registers a session with no room subscriptions.
func (h *Hub) Connect(s Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()

	observ.WSSessions.Inc()
	h.logger.Debug("session connected", zap.String("session_id", s.ID()))
}

func (h *Hub) session(sessionID string) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[sessionID]
	return s, ok
}

// Join subscribes a session to the channel's room. No membership check is
// made against the channel.
func (h *Hub) Join(ctx context.Context, sessionID string, channelID uuid.UUID) error {
	if _, ok := h.session(sessionID); !ok {
		return ErrUnknownSession
	}
	if err := h.registry.Join(ctx, RoomName(channelID), sessionID); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return nil
}

func (h *Hub) Leave(ctx context.Context, sessionID string, channelID uuid.UUID) error {
	if _, ok := h.session(sessionID); !ok {
		return ErrUnknownSession
	}
	if err := h.registry.Leave(ctx, RoomName(channelID), sessionID); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	return nil
}

// Publish sends msg as a receive_message event to every local session in
// the channel's room. Delivery is best effort and at most once: failed
// sessions are reported in the joined error and never retried.
func (h *Hub) Publish(ctx context.Context, channelID uuid.UUID, msg models.MessageSummary) (int, error) {
	payload, err := Encode(EventReceiveMessage, msg)
	if err != nil {
		return 0, err
	}

	members, err := h.registry.MembersOf(ctx, RoomName(channelID))
	if err != nil {
		return 0, fmt.Errorf("room members: %w", err)
	}

	var (
		delivered int
		errs      []error
	)
	for _, id := range members {
		s, ok := h.session(id)
		if !ok {
			continue
		}
		if err := s.Send(payload); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		delivered++
	}

	observ.BroadcastDeliveries.Add(float64(delivered))
	observ.BroadcastFailures.Add(float64(len(errs)))
	return delivered, errors.Join(errs...)
}

// SendTo delivers one frame to a single session.
func (h *Hub) SendTo(sessionID string, payload []byte) error {
	s, ok := h.session(sessionID)
	if !ok {
		return ErrUnknownSession
	}
	return s.Send(payload)
}

// Disconnect forgets the session and discards all its subscriptions.
func (h *Hub) Disconnect(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	_, ok := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	if ok {
		observ.WSSessions.Dec()
		h.logger.Debug("session disconnected", zap.String("session_id", sessionID))
	}
	if err := h.registry.Drop(ctx, sessionID); err != nil {
		return fmt.Errorf("drop subscriptions: %w", err)
	}
	return nil
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close closes every session that can be closed. Each session's own read
// loop then runs Disconnect.
func (h *Hub) Close() {
	h.mu.RLock()
	sessions := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if c, ok := s.(interface{ CloseWith(int, string) }); ok {
			c.CloseWith(1001, "server shutting down")
		}
	}
}
