package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/db"
	"github.com/lalith-99/agencychat/internal/models"
)

// setupPostgres starts a throwaway Postgres, applies the migrations and
// returns the pool owner. Skipped under -short or without Docker.
func setupPostgres(t *testing.T) *db.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in -short mode")
	}
	if err := testcontainers.SkipIfDockerNotAvailable(); err != nil {
		t.Skip("docker not available for testcontainers")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "agencychat",
				"POSTGRES_PASSWORD": "agencychat",
				"POSTGRES_DB":       "agencychat",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	url := fmt.Sprintf("postgres://agencychat:agencychat@%s:%s/agencychat?sslmode=disable", host, port.Port())

	database, err := db.New(ctx, url, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(database.Close)

	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// A second run must be a no-op.
	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	return database
}

func TestPostgresStores(t *testing.T) {
	database := setupPostgres(t)
	ctx := context.Background()
	channels := NewChannelStore(database.Pool())
	messages := NewMessageStore(database.Pool())
	users := NewUserStore(database.Pool())

	ann := models.User{ID: uuid.New(), Name: "Ann", Email: "ann@example.com", UserType: "employee", Department: "design", CreatedAt: time.Now().UTC()}
	bob := models.User{ID: uuid.New(), Name: "Bob", Email: "bob@example.com", UserType: "client", CreatedAt: time.Now().UTC()}
	for _, u := range []models.User{ann, bob} {
		if _, err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	t.Run("users", func(t *testing.T) {
		got, err := users.ListByIDs(ctx, []uuid.UUID{bob.ID, uuid.New(), ann.ID})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].ID != bob.ID || got[1].ID != ann.ID {
			t.Fatalf("ListByIDs = %+v", got)
		}
		missing, err := users.GetByID(ctx, uuid.New())
		if err != nil || missing != nil {
			t.Fatalf("GetByID(unknown) = %v, %v", missing, err)
		}
	})

	base := time.Now().UTC().Truncate(time.Microsecond)
	group := models.Channel{ID: uuid.New(), Name: "design", CreatedBy: ann.ID, MemberIDs: []uuid.UUID{bob.ID, ann.ID}, CreatedAt: base}
	if _, err := channels.Create(ctx, group); err != nil {
		t.Fatalf("create channel: %v", err)
	}

	t.Run("channel members keep join order", func(t *testing.T) {
		got, err := channels.GetByID(ctx, group.ID)
		if err != nil || got == nil {
			t.Fatalf("GetByID: %v %v", got, err)
		}
		if len(got.MemberIDs) != 2 || got.MemberIDs[0] != bob.ID || got.MemberIDs[1] != ann.ID {
			t.Fatalf("members = %v", got.MemberIDs)
		}
	})

	t.Run("history", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := messages.Append(ctx, models.Message{
				ID:        fmt.Sprintf("01HX%022d", i),
				ChannelID: group.ID,
				UserID:    ann.ID,
				Content:   fmt.Sprintf("msg %d", i),
				Name:      ann.Name,
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
			if err != nil {
				t.Fatal(err)
			}
		}
		all, err := messages.History(ctx, group.ID, models.Page{})
		if err != nil || len(all) != 3 || all[0].Content != "msg 0" || all[2].Content != "msg 2" {
			t.Fatalf("History = %+v, %v", all, err)
		}
		newest, err := messages.History(ctx, group.ID, models.Page{Limit: 1})
		if err != nil || len(newest) != 1 || newest[0].Content != "msg 2" {
			t.Fatalf("History(limit 1) = %+v, %v", newest, err)
		}
		if n, err := messages.Count(ctx, group.ID); err != nil || n != 3 {
			t.Fatalf("Count = %d, %v", n, err)
		}
	})

	t.Run("list for user", func(t *testing.T) {
		list, err := channels.ListForUser(ctx, bob.ID)
		if err != nil || len(list) != 1 || list[0].ID != group.ID {
			t.Fatalf("ListForUser = %+v, %v", list, err)
		}
		if list[0].LastMessageAt == nil || !list[0].LastMessageAt.Equal(base.Add(2*time.Second)) {
			t.Fatalf("last message = %v", list[0].LastMessageAt)
		}
	})

	t.Run("concurrent dm creation yields one channel", func(t *testing.T) {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
			ids     = map[uuid.UUID]bool{}
		)
		for i := 0; i < 8; i++ {
			members := []uuid.UUID{ann.ID, bob.ID}
			if i%2 == 1 {
				members = []uuid.UUID{bob.ID, ann.ID}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				ch, ok, err := channels.CreateOrGetDM(ctx, models.Channel{
					ID: uuid.New(), Name: "ann-bob", IsDM: true, CreatedBy: members[0], MemberIDs: members, CreatedAt: time.Now().UTC(),
				})
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				ids[ch.ID] = true
				if ok {
					created++
				}
			}()
		}
		wg.Wait()
		if created != 1 || len(ids) != 1 {
			t.Fatalf("created=%d distinct=%d", created, len(ids))
		}
	})
}
