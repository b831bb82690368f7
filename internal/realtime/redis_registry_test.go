package realtime

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("redis integration test skipped in -short mode")
	}
	if err := testcontainers.SkipIfDockerNotAvailable(); err != nil {
		t.Skip("docker not available for testcontainers")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRegistry(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	reg := NewRedisRegistryFromClient(client, "test:", time.Minute)

	for _, sid := range []string{"s1", "s2"} {
		if err := reg.Join(ctx, "channel_a", sid); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.Join(ctx, "channel_b", "s1"); err != nil {
		t.Fatal(err)
	}

	members, err := reg.MembersOf(ctx, "channel_a")
	if err != nil || len(members) != 2 || members[0] != "s1" || members[1] != "s2" {
		t.Fatalf("MembersOf = %v, %v", members, err)
	}

	if ttl := client.TTL(ctx, "test:rooms:channel_a").Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("room ttl = %v", ttl)
	}

	if err := reg.Leave(ctx, "channel_a", "s2"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Drop(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	for _, room := range []string{"channel_a", "channel_b"} {
		if members, _ := reg.MembersOf(ctx, room); len(members) != 0 {
			t.Fatalf("%s still has %v", room, members)
		}
	}
	if n := client.Exists(ctx, "test:sessions:s1").Val(); n != 0 {
		t.Fatal("session key not removed")
	}
}

func TestHubOverRedisSkipsRemoteSessions(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	reg := NewRedisRegistryFromClient(client, "hub:", time.Minute)
	local := &fakeSession{id: "local"}
	h := NewHub(reg, zap.NewNop())
	h.Connect(local)
	channelID := uuid.New()

	if err := h.Join(ctx, "local", channelID); err != nil {
		t.Fatal(err)
	}
	// A session held by another instance.
	if err := reg.Join(ctx, RoomName(channelID), "remote"); err != nil {
		t.Fatal(err)
	}

	delivered, err := h.Publish(ctx, channelID, summary(channelID, "hi"))
	if err != nil || delivered != 1 {
		t.Fatalf("Publish = %d, %v; want 1, nil", delivered, err)
	}
	if len(local.received()) != 1 {
		t.Fatal("local session missed the message")
	}
}
