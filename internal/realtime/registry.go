package realtime

import (
	"context"
	"sort"
	"sync"
)

// RoomRegistry records which sessions are subscribed to which rooms.
// The Hub owns the live sessions; the registry only holds ids, so it can
// live in process memory or in an external store.
type RoomRegistry interface {
	Join(ctx context.Context, room, sessionID string) error
	Leave(ctx context.Context, room, sessionID string) error
	MembersOf(ctx context.Context, room string) ([]string, error)

	// Drop removes every subscription held by sessionID.
	Drop(ctx context.Context, sessionID string) error
}

// MemoryRegistry is the single-instance registry.
type MemoryRegistry struct {
	mu           sync.RWMutex
	rooms        map[string]map[string]struct{} // room -> session ids
	sessionRooms map[string]map[string]struct{} // session id -> rooms
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		rooms:        make(map[string]map[string]struct{}),
		sessionRooms: make(map[string]map[string]struct{}),
	}
}

var _ RoomRegistry = (*MemoryRegistry)(nil)

func (r *MemoryRegistry) Join(_ context.Context, room, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[sessionID] = struct{}{}

	joined := r.sessionRooms[sessionID]
	if joined == nil {
		joined = make(map[string]struct{})
		r.sessionRooms[sessionID] = joined
	}
	joined[room] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Leave(_ context.Context, room, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, sessionID)
	return nil
}

func (r *MemoryRegistry) leaveLocked(room, sessionID string) {
	if members := r.rooms[room]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if joined := r.sessionRooms[sessionID]; joined != nil {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.sessionRooms, sessionID)
		}
	}
}

// MembersOf returns the room's session ids in sorted order.
func (r *MemoryRegistry) MembersOf(_ context.Context, room string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRegistry) Drop(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.sessionRooms[sessionID] {
		r.leaveLocked(room, sessionID)
	}
	delete(r.sessionRooms, sessionID)
	return nil
}
