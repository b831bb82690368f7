package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/agencychat/internal/models"
)

// ErrStoreUnavailable marks failures where the database could not be reached
// at all (refused connection, dropped socket, closed pool). Adapters wrap
// the driver error with it so the HTTP layer can answer 503 instead of 500.
//
// Everything else (constraint violations, bad SQL) propagates unchanged.
var ErrStoreUnavailable = errors.New("store unavailable")

// Why context.Context as the first parameter on every method?
//
//   - Every method here does I/O against Postgres or SQLite.
//   - If the HTTP request is cancelled, the query is cancelled too.
//   - Socket handlers derive a short timeout per event from it.

// Not-found convention: single-row lookups return (nil, nil) when the row
// does not exist. The service layer turns that into chat.ErrNotFound.

// ChannelRepository defines the contract for channel data operations.
type ChannelRepository interface {
	// Create inserts a channel and its members (in MemberIDs order).
	// ID and CreatedAt must already be set by the caller.
	Create(ctx context.Context, ch models.Channel) (*models.Channel, error)

	// GetByID returns a single channel with its members. Returns nil, nil if not found.
	GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error)

	// FindDM returns the DM channel with this name whose member set equals
	// memberIDs exactly (order-independent). Returns nil, nil if none.
	FindDM(ctx context.Context, name string, memberIDs []uuid.UUID) (*models.Channel, error)

	// CreateOrGetDM atomically looks up an existing DM matching ch.Name and
	// ch.MemberIDs, creating ch when there is none. The bool reports whether
	// a new channel was created.
	CreateOrGetDM(ctx context.Context, ch models.Channel) (*models.Channel, bool, error)

	// ListForUser returns every channel userID belongs to, oldest channel
	// first, annotated with the timestamp of its latest message.
	// Returns empty slice (not nil) so JSON serializes to [] not null.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ChannelSummary, error)
}

// MessageRepository handles chat message persistence. It is append-only.
type MessageRepository interface {
	// Append stores a fully populated message (ID and CreatedAt included).
	Append(ctx context.Context, msg models.Message) (*models.Message, error)

	// History returns a channel's messages oldest first, windowed by page.
	// The zero page returns the whole history.
	History(ctx context.Context, channelID uuid.UUID, page models.Page) ([]models.Message, error)

	// Count returns how many messages a channel holds.
	Count(ctx context.Context, channelID uuid.UUID) (int, error)
}

// UserRepository is the read side of the user directory, plus Create so
// the directory can be populated through the API.
type UserRepository interface {
	Create(ctx context.Context, u models.User) (*models.User, error)

	// GetByID returns a user. Returns nil, nil if not found.
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// ListByIDs returns the users in ids order. Unknown ids are skipped.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.User, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}
