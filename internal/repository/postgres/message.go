package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/repository"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

var _ repository.MessageRepository = (*MessageStore)(nil)

func (s *MessageStore) Append(ctx context.Context, msg models.Message) (*models.Message, error) {
	// The ID (ULID) and created_at come from the service, so a plain INSERT
	// is enough. Concurrent appends to one channel are ordered by whatever
	// timestamps they were assigned; Postgres adds no extra locking.
	query := `
		INSERT INTO messages (id, channel_id, user_id, content, parent_message_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		msg.ID,
		msg.ChannelID,
		msg.UserID,
		msg.Content,
		msg.ParentMessageID,
		msg.Name,
		msg.CreatedAt,
	)
	if err != nil {
		return nil, wrap("insert message", err)
	}
	return &msg, nil
}

func (s *MessageStore) History(ctx context.Context, channelID uuid.UUID, page models.Page) ([]models.Message, error) {
	// Two shapes of the same query:
	//
	// zero page    → the whole channel, oldest first, no limit at all.
	// limit/before → take the newest `limit` rows older than the cursor
	//              (ORDER BY ... DESC LIMIT n) and flip them back to
	//              oldest-first in the outer query.
	conds := []string{"channel_id = $1"}
	args := []any{channelID}
	if page.Before != "" {
		args = append(args, page.Before)
		conds = append(conds, fmt.Sprintf("id < $%d", len(args)))
	}

	inner := `
		SELECT id, channel_id, user_id, content, parent_message_id, name, created_at
		FROM messages
		WHERE ` + strings.Join(conds, " AND ")

	var query string
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query = `
			SELECT * FROM (` + inner + `
				ORDER BY created_at DESC, id DESC
				LIMIT ` + fmt.Sprintf("$%d", len(args)) + `
			) newest
			ORDER BY created_at, id`
	} else {
		query = inner + `
			ORDER BY created_at, id`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap("list messages", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ChannelID,
			&msg.UserID,
			&msg.Content,
			&msg.ParentMessageID,
			&msg.Name,
			&msg.CreatedAt,
		); err != nil {
			return nil, wrap("scan message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate messages", err)
	}

	return messages, nil
}

func (s *MessageStore) Count(ctx context.Context, channelID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM messages WHERE channel_id = $1`, channelID).Scan(&n)
	if err != nil {
		return 0, wrap("count messages", err)
	}
	return n, nil
}
