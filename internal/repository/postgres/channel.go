package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/repository"
)

type ChannelStore struct {
	pool *pgxpool.Pool
}

func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

var _ repository.ChannelRepository = (*ChannelStore)(nil)

func (s *ChannelStore) Create(ctx context.Context, ch models.Channel) (*models.Channel, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, wrap("begin create channel", err)
	}
	defer tx.Rollback(ctx)

	if err := insertChannel(ctx, tx, ch); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, wrap("commit channel", err)
	}
	return &ch, nil
}

// insertChannel writes the channel row and one channel_members row per
// member. position keeps the join order stable even when joined_at ties.
func insertChannel(ctx context.Context, q querier, ch models.Channel) error {
	_, err := q.Exec(ctx, `
		INSERT INTO channels (id, name, is_dm, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ch.ID, ch.Name, ch.IsDM, ch.CreatedBy, ch.CreatedAt,
	)
	if err != nil {
		return wrap("insert channel", err)
	}

	for i, userID := range ch.MemberIDs {
		_, err := q.Exec(ctx, `
			INSERT INTO channel_members (channel_id, user_id, position, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (channel_id, user_id) DO NOTHING`,
			ch.ID, userID, i, ch.CreatedAt,
		)
		if err != nil {
			return wrap("insert channel member", err)
		}
	}
	return nil
}

func (s *ChannelStore) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := getChannel(ctx, s.pool, channelID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}

func (s *ChannelStore) FindDM(ctx context.Context, name string, memberIDs []uuid.UUID) (*models.Channel, error) {
	return s.findDM(ctx, s.pool, name, memberIDs)
}

// findDM compares the channel's member array against the caller's, both in
// uuid order. uuid ordering in Postgres is bytewise, which matches the
// lexical order of the canonical string form that SortedMembers uses.
func (s *ChannelStore) findDM(ctx context.Context, q querier, name string, memberIDs []uuid.UUID) (*models.Channel, error) {
	query := `
		SELECT c.id
		FROM channels c
		WHERE c.is_dm
		  AND c.name = $1
		  AND ARRAY(SELECT m.user_id::text FROM channel_members m
		            WHERE m.channel_id = c.id ORDER BY m.user_id) = $2::text[]
		ORDER BY c.created_at, c.id
		LIMIT 1`

	sorted := repository.SortedMembers(memberIDs)
	want := make([]string, len(sorted))
	for i, id := range sorted {
		want[i] = id.String()
	}

	var id uuid.UUID
	err := q.QueryRow(ctx, query, name, want).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrap("find dm channel", err)
	}

	return getChannel(ctx, q, id)
}

func (s *ChannelStore) CreateOrGetDM(ctx context.Context, ch models.Channel) (*models.Channel, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, wrap("begin dm lookup", err)
	}
	defer tx.Rollback(ctx)

	// Two users opening the same DM at the same moment would otherwise both
	// miss the lookup and both insert. The transaction-scoped advisory lock
	// serialises creators of the same (name, member set) only.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		repository.DMLockKey(ch.Name, ch.MemberIDs)); err != nil {
		return nil, false, wrap("lock dm key", err)
	}

	existing, err := s.findDM(ctx, tx, ch.Name, ch.MemberIDs)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, tx.Commit(ctx)
	}

	if err := insertChannel(ctx, tx, ch); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, wrap("commit dm channel", err)
	}
	return &ch, true, nil
}

func (s *ChannelStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.ChannelSummary, error) {
	query := `
		SELECT c.id, c.name, c.is_dm, c.created_by, c.created_at,
		       ARRAY(SELECT m.user_id::text FROM channel_members m
		             WHERE m.channel_id = c.id ORDER BY m.position),
		       (SELECT max(msg.created_at) FROM messages msg WHERE msg.channel_id = c.id)
		FROM channels c
		JOIN channel_members cm ON cm.channel_id = c.id
		WHERE cm.user_id = $1
		ORDER BY c.created_at, c.id`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, wrap("list channels", err)
	}
	defer rows.Close()

	channels := make([]models.ChannelSummary, 0)
	for rows.Next() {
		var (
			sum     models.ChannelSummary
			members []string
			last    *time.Time
		)
		if err := rows.Scan(
			&sum.ID,
			&sum.Name,
			&sum.IsDM,
			&sum.CreatedBy,
			&sum.CreatedAt,
			&members,
			&last,
		); err != nil {
			return nil, wrap("scan channel", err)
		}
		if sum.MemberIDs, err = parseIDs(members); err != nil {
			return nil, err
		}
		sum.LastMessageAt = last
		channels = append(channels, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate channels", err)
	}

	return channels, nil
}

func getChannel(ctx context.Context, q querier, id uuid.UUID) (*models.Channel, error) {
	var (
		ch      models.Channel
		members []string
	)
	err := q.QueryRow(ctx, `
		SELECT c.id, c.name, c.is_dm, c.created_by, c.created_at,
		       ARRAY(SELECT m.user_id::text FROM channel_members m
		             WHERE m.channel_id = c.id ORDER BY m.position)
		FROM channels c
		WHERE c.id = $1`, id).Scan(
		&ch.ID,
		&ch.Name,
		&ch.IsDM,
		&ch.CreatedBy,
		&ch.CreatedAt,
		&members,
	)
	if err != nil {
		return nil, wrap("load channel", err)
	}
	if ch.MemberIDs, err = parseIDs(members); err != nil {
		return nil, err
	}
	return &ch, nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse member id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
