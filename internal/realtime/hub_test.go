package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/models"
)

type fakeSession struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, payload)
	return nil
}

func (s *fakeSession) received() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Envelope, 0, len(s.frames))
	for _, f := range s.frames {
		var env Envelope
		_ = json.Unmarshal(f, &env)
		out = append(out, env)
	}
	return out
}

func newTestHub(t *testing.T, sessions ...*fakeSession) *Hub {
	t.Helper()
	h := NewHub(NewMemoryRegistry(), zap.NewNop())
	for _, s := range sessions {
		h.Connect(s)
	}
	return h
}

func summary(channelID uuid.UUID, content string) models.MessageSummary {
	return models.MessageSummary{
		ID:        "01J0000000000000000000000A",
		ChannelID: channelID,
		UserID:    uuid.New(),
		Content:   content,
		CreatedAt: time.Date(2025, 7, 2, 10, 0, 0, 0, time.UTC),
		Name:      "Ann",
	}
}

func TestPublishReachesOnlyJoinedSessions(t *testing.T) {
	ctx := context.Background()
	joined := &fakeSession{id: "joined"}
	stranger := &fakeSession{id: "stranger"}
	leaver := &fakeSession{id: "leaver"}
	h := newTestHub(t, joined, stranger, leaver)
	channelID := uuid.New()

	for _, id := range []string{"joined", "leaver"} {
		if err := h.Join(ctx, id, channelID); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.Leave(ctx, "leaver", channelID); err != nil {
		t.Fatal(err)
	}

	delivered, err := h.Publish(ctx, channelID, summary(channelID, "hello"))
	if err != nil || delivered != 1 {
		t.Fatalf("Publish = %d, %v; want 1, nil", delivered, err)
	}

	got := joined.received()
	if len(got) != 1 || got[0].Event != EventReceiveMessage {
		t.Fatalf("joined session got %+v", got)
	}
	var msg models.MessageSummary
	if err := json.Unmarshal(got[0].Data, &msg); err != nil || msg.Content != "hello" || msg.ChannelID != channelID {
		t.Fatalf("payload = %+v, %v", msg, err)
	}
	if len(stranger.received()) != 0 || len(leaver.received()) != 0 {
		t.Fatal("sessions outside the room must not receive the message")
	}
}

func TestPublishIsPerRoom(t *testing.T) {
	ctx := context.Background()
	s := &fakeSession{id: "s"}
	h := newTestHub(t, s)
	a, b := uuid.New(), uuid.New()
	_ = h.Join(ctx, "s", a)

	if n, _ := h.Publish(ctx, b, summary(b, "elsewhere")); n != 0 {
		t.Fatalf("delivered %d to another room", n)
	}
	if len(s.received()) != 0 {
		t.Fatal("message leaked across rooms")
	}
}

func TestPublishCollectsSessionFailures(t *testing.T) {
	ctx := context.Background()
	ok := &fakeSession{id: "ok"}
	broken := &fakeSession{id: "broken", err: ErrSendBufferFull}
	h := newTestHub(t, ok, broken)
	channelID := uuid.New()
	_ = h.Join(ctx, "ok", channelID)
	_ = h.Join(ctx, "broken", channelID)

	delivered, err := h.Publish(ctx, channelID, summary(channelID, "hi"))
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if !errors.Is(err, ErrSendBufferFull) {
		t.Fatalf("expected joined send error, got %v", err)
	}
	if len(ok.received()) != 1 {
		t.Fatal("a failing peer must not block delivery to the others")
	}
}

func TestJoinUnknownSession(t *testing.T) {
	h := newTestHub(t)
	if err := h.Join(context.Background(), "ghost", uuid.New()); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Join: expected ErrUnknownSession, got %v", err)
	}
	if err := h.Leave(context.Background(), "ghost", uuid.New()); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("Leave: expected ErrUnknownSession, got %v", err)
	}
}

func TestDisconnectDiscardsSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := &fakeSession{id: "s"}
	reg := NewMemoryRegistry()
	h := NewHub(reg, zap.NewNop())
	h.Connect(s)
	a, b := uuid.New(), uuid.New()
	_ = h.Join(ctx, "s", a)
	_ = h.Join(ctx, "s", b)

	if err := h.Disconnect(ctx, "s"); err != nil {
		t.Fatal(err)
	}
	if h.SessionCount() != 0 {
		t.Fatal("session still tracked")
	}
	for _, ch := range []uuid.UUID{a, b} {
		if members, _ := reg.MembersOf(ctx, RoomName(ch)); len(members) != 0 {
			t.Fatalf("room %s still has %v", RoomName(ch), members)
		}
	}

	// Reconnecting with the same id starts with no rooms.
	h.Connect(s)
	if n, _ := h.Publish(ctx, a, summary(a, "after")); n != 0 {
		t.Fatal("subscriptions survived a disconnect")
	}
}

func TestRoomName(t *testing.T) {
	id := uuid.MustParse("6f1c2a8e-4b1d-4d8e-9a51-0f1d2c3b4a59")
	if got := RoomName(id); got != "channel_6f1c2a8e-4b1d-4d8e-9a51-0f1d2c3b4a59" {
		t.Fatalf("RoomName = %s", got)
	}
}

func TestMemoryRegistryLeaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()
	_ = reg.Join(ctx, "room", "s1")
	_ = reg.Join(ctx, "room", "s2")
	_ = reg.Leave(ctx, "room", "s1")
	_ = reg.Leave(ctx, "room", "s1")
	_ = reg.Leave(ctx, "other", "s1")

	members, _ := reg.MembersOf(ctx, "room")
	if len(members) != 1 || members[0] != "s2" {
		t.Fatalf("members = %v", members)
	}
}
