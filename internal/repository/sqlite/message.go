package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/repository"
)

type MessageStore struct {
	db *sql.DB
}

var _ repository.MessageRepository = (*MessageStore)(nil)

func (s *MessageStore) Append(ctx context.Context, msg models.Message) (*models.Message, error) {
	var parent sql.NullString
	if msg.ParentMessageID != nil {
		parent = sql.NullString{String: *msg.ParentMessageID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, user_id, content, parent_message_id, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ChannelID.String(),
		msg.UserID.String(),
		msg.Content,
		parent,
		msg.Name,
		toMicros(msg.CreatedAt),
	)
	if err != nil {
		return nil, wrap("insert message", err)
	}
	return &msg, nil
}

func (s *MessageStore) History(ctx context.Context, channelID uuid.UUID, page models.Page) ([]models.Message, error) {
	conds := []string{"channel_id = ?"}
	args := []any{channelID.String()}
	if page.Before != "" {
		conds = append(conds, "id < ?")
		args = append(args, page.Before)
	}

	inner := `
		SELECT id, channel_id, user_id, content, parent_message_id, name, created_at
		FROM messages
		WHERE ` + strings.Join(conds, " AND ")

	query := inner + ` ORDER BY created_at, id`
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query = `SELECT * FROM (` + inner + ` ORDER BY created_at DESC, id DESC LIMIT ?) ORDER BY created_at, id`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list messages", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg           models.Message
			channel, user string
			parent        sql.NullString
			createdAt     int64
		)
		if err := rows.Scan(&msg.ID, &channel, &user, &msg.Content, &parent, &msg.Name, &createdAt); err != nil {
			return nil, wrap("scan message", err)
		}
		if msg.ChannelID, err = uuid.Parse(channel); err != nil {
			return nil, fmt.Errorf("parse channel id %q: %w", channel, err)
		}
		if msg.UserID, err = uuid.Parse(user); err != nil {
			return nil, fmt.Errorf("parse user id %q: %w", user, err)
		}
		if parent.Valid {
			p := parent.String
			msg.ParentMessageID = &p
		}
		msg.CreatedAt = fromMicros(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate messages", err)
	}
	return messages, nil
}

func (s *MessageStore) Count(ctx context.Context, channelID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE channel_id = ?`, channelID.String()).Scan(&n)
	if err != nil {
		return 0, wrap("count messages", err)
	}
	return n, nil
}
