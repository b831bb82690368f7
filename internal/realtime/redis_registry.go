package realtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRegistryTTL bounds how long subscriptions survive an instance that
// died without dropping its sessions.
const DefaultRegistryTTL = 24 * time.Hour

// RedisRegistry keeps room membership in Redis sets:
//
//	rooms:<room>         -> session ids
//	sessions:<session>   -> rooms
//
// Both keys get their TTL refreshed on every join. Only membership moves
// to Redis; delivery still happens in the process holding the socket.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry parses url, pings the server and returns a registry.
func NewRedisRegistry(ctx context.Context, url string) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisRegistryFromClient(client, "agencychat:", DefaultRegistryTTL), nil
}

func NewRedisRegistryFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

var _ RoomRegistry = (*RedisRegistry)(nil)

func (r *RedisRegistry) roomKey(room string) string {
	return r.prefix + "rooms:" + room
}

func (r *RedisRegistry) sessionKey(sessionID string) string {
	return r.prefix + "sessions:" + sessionID
}

func (r *RedisRegistry) Join(ctx context.Context, room, sessionID string) error {
	roomKey, sessionKey := r.roomKey(room), r.sessionKey(sessionID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, roomKey, sessionID)
		pipe.SAdd(ctx, sessionKey, room)
		pipe.Expire(ctx, roomKey, r.ttl)
		pipe.Expire(ctx, sessionKey, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis join %s: %w", room, err)
	}
	return nil
}

func (r *RedisRegistry) Leave(ctx context.Context, room, sessionID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, r.roomKey(room), sessionID)
		pipe.SRem(ctx, r.sessionKey(sessionID), room)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis leave %s: %w", room, err)
	}
	return nil
}

func (r *RedisRegistry) MembersOf(ctx context.Context, room string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.roomKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis members of %s: %w", room, err)
	}
	sort.Strings(members)
	return members, nil
}

func (r *RedisRegistry) Drop(ctx context.Context, sessionID string) error {
	sessionKey := r.sessionKey(sessionID)
	rooms, err := r.client.SMembers(ctx, sessionKey).Result()
	if err != nil {
		return fmt.Errorf("redis drop %s: %w", sessionID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, room := range rooms {
			pipe.SRem(ctx, r.roomKey(room), sessionID)
		}
		pipe.Del(ctx, sessionKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis drop %s: %w", sessionID, err)
	}
	return nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
