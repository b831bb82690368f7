package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/repository"
)

type ChannelStore struct {
	db *sql.DB
}

var _ repository.ChannelRepository = (*ChannelStore)(nil)

func (s *ChannelStore) Create(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap("begin create channel", err)
	}
	defer tx.Rollback()

	if err := insertChannel(ctx, tx, ch); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap("commit channel", err)
	}
	return &ch, nil
}

// insertChannel stores the row plus its members. seq records insertion
// order so channels created in the same microsecond still list stably.
func insertChannel(ctx context.Context, q queryer, ch models.Channel) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO channels (id, name, is_dm, created_by, created_at, seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM channels))`,
		ch.ID.String(), ch.Name, ch.IsDM, ch.CreatedBy.String(), toMicros(ch.CreatedAt),
	)
	if err != nil {
		return wrap("insert channel", err)
	}

	for i, userID := range ch.MemberIDs {
		_, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO channel_members (channel_id, user_id, position, joined_at)
			VALUES (?, ?, ?, ?)`,
			ch.ID.String(), userID.String(), i, toMicros(ch.CreatedAt),
		)
		if err != nil {
			return wrap("insert channel member", err)
		}
	}
	return nil
}

func (s *ChannelStore) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	return getChannel(ctx, s.db, channelID)
}

func (s *ChannelStore) FindDM(ctx context.Context, name string, memberIDs []uuid.UUID) (*models.Channel, error) {
	return findDM(ctx, s.db, name, memberIDs)
}

// findDM narrows by name in SQL and compares member sets in Go; DM
// candidates with one name are few, and SQLite has no array comparison.
func findDM(ctx context.Context, q queryer, name string, memberIDs []uuid.UUID) (*models.Channel, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id FROM channels
		WHERE is_dm = 1 AND name = ?
		ORDER BY created_at, seq`, name)
	if err != nil {
		return nil, wrap("find dm candidates", err)
	}
	var candidates []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, wrap("scan dm candidate", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse channel id %q: %w", raw, err)
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate dm candidates", err)
	}

	for _, id := range candidates {
		members, err := loadMembers(ctx, q, id)
		if err != nil {
			return nil, err
		}
		if repository.SameMembers(members, memberIDs) {
			return getChannel(ctx, q, id)
		}
	}
	return nil, nil
}

func (s *ChannelStore) CreateOrGetDM(ctx context.Context, ch models.Channel) (*models.Channel, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, wrap("begin dm lookup", err)
	}
	defer tx.Rollback()

	existing, err := findDM(ctx, tx, ch.Name, ch.MemberIDs)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, tx.Commit()
	}

	if err := insertChannel(ctx, tx, ch); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, wrap("commit dm channel", err)
	}
	return &ch, true, nil
}

func (s *ChannelStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ChannelSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.is_dm, c.created_by, c.created_at,
		       (SELECT MAX(m.created_at) FROM messages m WHERE m.channel_id = c.id)
		FROM channels c
		JOIN channel_members cm ON cm.channel_id = c.id
		WHERE cm.user_id = ?
		ORDER BY c.created_at, c.seq`, userID.String())
	if err != nil {
		return nil, wrap("list channels", err)
	}

	channels := make([]models.ChannelSummary, 0)
	for rows.Next() {
		var (
			sum  models.ChannelSummary
			last sql.NullInt64
		)
		if err := scanChannel(rows, &sum.Channel, &last); err != nil {
			rows.Close()
			return nil, err
		}
		if last.Valid {
			at := fromMicros(last.Int64)
			sum.LastMessageAt = &at
		}
		channels = append(channels, sum)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate channels", err)
	}

	// Members are loaded after the cursor is closed; the pool has a single
	// connection and an open cursor would hold it.
	for i := range channels {
		if channels[i].MemberIDs, err = loadMembers(ctx, s.db, channels[i].ID); err != nil {
			return nil, err
		}
	}
	return channels, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner, ch *models.Channel, extra ...any) error {
	var (
		id, createdBy string
		createdAt     int64
	)
	dest := append([]any{&id, &ch.Name, &ch.IsDM, &createdBy, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return wrap("scan channel", err)
	}
	var err error
	if ch.ID, err = uuid.Parse(id); err != nil {
		return fmt.Errorf("parse channel id %q: %w", id, err)
	}
	if ch.CreatedBy, err = uuid.Parse(createdBy); err != nil {
		return fmt.Errorf("parse created_by %q: %w", createdBy, err)
	}
	ch.CreatedAt = fromMicros(createdAt)
	return nil
}

func getChannel(ctx context.Context, q queryer, id uuid.UUID) (*models.Channel, error) {
	var ch models.Channel
	row := q.QueryRowContext(ctx, `
		SELECT id, name, is_dm, created_by, created_at
		FROM channels WHERE id = ?`, id.String())
	if err := scanChannel(row, &ch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	members, err := loadMembers(ctx, q, id)
	if err != nil {
		return nil, err
	}
	ch.MemberIDs = members
	return &ch, nil
}

func loadMembers(ctx context.Context, q queryer, channelID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id FROM channel_members
		WHERE channel_id = ?
		ORDER BY position`, channelID.String())
	if err != nil {
		return nil, wrap("load members", err)
	}
	defer rows.Close()

	members := make([]uuid.UUID, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, wrap("scan member", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse member id %q: %w", raw, err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate members", err)
	}
	return members, nil
}
