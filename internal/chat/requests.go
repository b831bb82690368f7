package chat

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/agencychat/internal/repository"
)

// MaxPageLimit caps an explicit history page.
const MaxPageLimit = 500

type CreateChannelRequest struct {
	Name      string
	IsDM      bool
	MemberIDs []uuid.UUID
	CreatedBy uuid.UUID
}

// Validate checks required fields and returns the request with surrounding
// whitespace trimmed from the name and duplicate member ids removed (first
// occurrence wins).
func (r CreateChannelRequest) Validate() (CreateChannelRequest, error) {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return r, invalid("name", "is required")
	}
	if r.CreatedBy == uuid.Nil {
		return r, invalid("created_by", "is required")
	}
	if len(r.MemberIDs) == 0 {
		return r, invalid("member_ids", "must not be empty")
	}

	for _, id := range r.MemberIDs {
		if id == uuid.Nil {
			return r, invalid("member_ids", "contains an empty id")
		}
	}
	members := uniqueIDs(r.MemberIDs)
	if r.IsDM && len(members) != 2 {
		return r, invalid("member_ids", "a direct message needs exactly two distinct members")
	}
	r.MemberIDs = members
	return r, nil
}

type AppendRequest struct {
	ChannelID       uuid.UUID
	UserID          uuid.UUID
	Content         string
	ParentMessageID *string
	Name            string
}

func (r AppendRequest) Validate() error {
	if r.ChannelID == uuid.Nil {
		return invalid("channel_id", "is required")
	}
	return r.validateAuthorAndContent()
}

// SendRequest is a message on its way to a channel. Either ChannelID is
// set, or DirectTo lists the other party (or both parties) of a DM that is
// looked up, or created on first contact.
type SendRequest struct {
	ChannelID       uuid.UUID
	UserID          uuid.UUID
	Content         string
	ParentMessageID *string
	Name            string

	DirectTo    []uuid.UUID
	ChannelName string
}

func (r SendRequest) Validate() error {
	if r.ChannelID == uuid.Nil && len(r.DirectTo) == 0 {
		return invalid("channel_id", "is required")
	}
	return r.appendRequest(r.ChannelID).validateAuthorAndContent()
}

func (r SendRequest) appendRequest(channelID uuid.UUID) AppendRequest {
	return AppendRequest{
		ChannelID:       channelID,
		UserID:          r.UserID,
		Content:         r.Content,
		ParentMessageID: r.ParentMessageID,
		Name:            r.Name,
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (r AppendRequest) validateAuthorAndContent() error {
	if r.UserID == uuid.Nil {
		return invalid("user_id", "is required")
	}
	if strings.TrimSpace(r.Content) == "" {
		return invalid("content", "is required")
	}
	if r.ParentMessageID != nil && strings.TrimSpace(*r.ParentMessageID) == "" {
		return invalid("parent_message_id", "must not be blank when present")
	}
	return nil
}

// DMName is the name given to a DM opened without an explicit channel name.
// It depends only on the member set.
func DMName(members []uuid.UUID) string {
	sorted := repository.SortedMembers(members)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = id.String()
	}
	return "dm:" + strings.Join(parts, ":")
}
