package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an entry in the user directory. The chat core only reads it to
// render member lists and to fill in a message author's display name.
//
// UserType and Department come straight from the agency's directory
// ("employee", "client", "admin" ...). We don't interpret them here.
type User struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	UserType   string    `json:"user_type"`
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

// MemberSummary is the shape returned by GET /channels/:id/members.
type MemberSummary struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	UserType   string    `json:"user_type"`
	Department string    `json:"department"`
}

// Summary projects a User onto the member list shape.
func (u User) Summary() MemberSummary {
	return MemberSummary{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		UserType:   u.UserType,
		Department: u.Department,
	}
}

// Channel is a conversation container: either a named group channel or a
// direct message between exactly two users.
//
// Why MemberIDs on the struct (and not a separate ChannelMember type)?
//   - Membership is fixed at creation for DMs and never edited afterwards,
//     so there is no lifecycle of its own to model.
//   - The order matters: it is the join order, which is what the members
//     endpoint returns.
type Channel struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	IsDM      bool        `json:"is_dm"`
	CreatedBy uuid.UUID   `json:"created_by"`
	MemberIDs []uuid.UUID `json:"member_ids"`
	CreatedAt time.Time   `json:"created_at"`
}

// ChannelSummary is one row of a user's channel list.
// LastMessageAt is nil when the channel has no messages yet.
type ChannelSummary struct {
	Channel
	LastMessageAt *time.Time `json:"last_message"`
}

// Message is a single chat message. Messages are immutable once stored.
//
// Why a string ID (ULID) and not bigserial?
//   - The ID is assigned by the service, not the database, so every store
//     backend (Postgres, SQLite, memory) produces the same identity scheme.
//   - ULIDs sort lexicographically in creation order, which gives history a
//     stable tie-breaker when two messages share a timestamp.
//
// Name is the author's display name, denormalized at send time so history
// renders without a join against the user directory.
type Message struct {
	ID              string    `json:"id"`
	ChannelID       uuid.UUID `json:"channel_id"`
	UserID          uuid.UUID `json:"user_id"`
	Content         string    `json:"content"`
	ParentMessageID *string   `json:"parent_message_id"`
	Name            string    `json:"name"`
	CreatedAt       time.Time `json:"created_at"`
}

// UnknownAuthor is what history shows when a message was stored without a
// display name.
const UnknownAuthor = "Unknown"

// MessageSummary is the wire format shared by the history endpoint and the
// receive_message socket event.
type MessageSummary struct {
	ID              string    `json:"id"`
	ChannelID       uuid.UUID `json:"channel_id"`
	UserID          uuid.UUID `json:"user_id"`
	Content         string    `json:"content"`
	ParentMessageID *string   `json:"parent_message_id"`
	CreatedAt       time.Time `json:"created_at"`
	Name            string    `json:"name"`
}

// Summary converts a stored message into its wire format.
func (m Message) Summary() MessageSummary {
	name := m.Name
	if name == "" {
		name = UnknownAuthor
	}
	return MessageSummary{
		ID:              m.ID,
		ChannelID:       m.ChannelID,
		UserID:          m.UserID,
		Content:         m.Content,
		ParentMessageID: m.ParentMessageID,
		CreatedAt:       m.CreatedAt,
		Name:            name,
	}
}

// Page selects a window of channel history.
//
// The zero Page means "everything, oldest first". Before, when set, keeps
// only messages whose ID sorts before it. Limit > 0 keeps only the newest
// Limit of those. The result is always ordered oldest first.
type Page struct {
	Limit  int
	Before string
}
