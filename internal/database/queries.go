package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	userColumns = "id, local_token, nickname, utm_source, utm_medium, utm_campaign, utm_content, utm_term, created_at, last_seen_at"
	roomColumns = "id, room_key, creator_id, message_count, visit_count, created_at, last_activity_at"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var source, medium, campaign, content, term sql.NullString
	err := row.Scan(
		&u.Id,
		&u.LocalToken,
		&u.Nickname,
		&source,
		&medium,
		&campaign,
		&content,
		&term,
		&u.CreatedAt,
		&u.LastSeenAt,
	)
	u.Attribution.Source = source.String
	u.Attribution.Medium = medium.String
	u.Attribution.Campaign = campaign.String
	u.Attribution.Content = content.String
	u.Attribution.Term = term.String
	return u, err
}

func scanRoom(row rowScanner) (Room, error) {
	var r Room
	err := row.Scan(
		&r.Id,
		&r.Key,
		&r.CreatorId,
		&r.MessageCount,
		&r.VisitCount,
		&r.CreatedAt,
		&r.LastActivityAt,
	)
	return r, err
}

func (db *PgStore) UpsertUser(ctx context.Context, params UpsertUserParams) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users ("+userColumns+") "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) "+
			"ON CONFLICT (local_token) DO UPDATE SET "+
			"nickname = EXCLUDED.nickname, "+
			"last_seen_at = EXCLUDED.last_seen_at, "+
			"utm_source = COALESCE(EXCLUDED.utm_source, users.utm_source), "+
			"utm_medium = COALESCE(EXCLUDED.utm_medium, users.utm_medium), "+
			"utm_campaign = COALESCE(EXCLUDED.utm_campaign, users.utm_campaign), "+
			"utm_content = COALESCE(EXCLUDED.utm_content, users.utm_content), "+
			"utm_term = COALESCE(EXCLUDED.utm_term, users.utm_term) "+
			"RETURNING "+userColumns,
		uuid.New(),
		params.LocalToken,
		params.Nickname,
		nullString(params.Attribution.Source),
		nullString(params.Attribution.Medium),
		nullString(params.Attribution.Campaign),
		nullString(params.Attribution.Content),
		nullString(params.Attribution.Term),
		params.SeenAt,
	)

	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (db *PgStore) UpsertRoom(ctx context.Context, params UpsertRoomParams) (Room, error) {
	// The no-op update on the source path makes RETURNING yield the
	// existing row instead of nothing.
	onConflict := "ON CONFLICT (room_key) DO UPDATE SET room_key = EXCLUDED.room_key "
	visits := 0
	if params.IsDestination {
		onConflict = "ON CONFLICT (room_key) DO UPDATE SET " +
			"visit_count = rooms.visit_count + 1, " +
			"last_activity_at = EXCLUDED.last_activity_at "
		visits = 1
	}

	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO rooms ("+roomColumns+") "+
			"VALUES ($1, $2, $3, 0, $4, $5, $5) "+
			onConflict+
			"RETURNING "+roomColumns,
		uuid.New(),
		params.Key,
		params.CreatorId,
		visits,
		params.At,
	)

	r, err := scanRoom(row)
	if err != nil {
		return Room{}, fmt.Errorf("upsert room: %w", err)
	}
	return r, nil
}

func (db *PgStore) GetRoomByKey(ctx context.Context, key string) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE room_key = $1 LIMIT 1",
		key,
	)

	r, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, fmt.Errorf("get room: %w", err)
	}
	return r, nil
}

func (db *PgStore) CreateTransition(ctx context.Context, params CreateTransitionParams) (Transition, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO transitions (id, user_id, from_room_id, to_room_id, transition_type, duration_seconds, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"RETURNING id, user_id, from_room_id, to_room_id, transition_type, duration_seconds, created_at",
		uuid.New(),
		params.UserId,
		params.FromRoomId,
		params.ToRoomId,
		string(params.Type),
		params.DurationSeconds,
		params.CreatedAt,
	)

	var t Transition
	err := row.Scan(
		&t.Id,
		&t.UserId,
		&t.FromRoomId,
		&t.ToRoomId,
		&t.Type,
		&t.DurationSeconds,
		&t.CreatedAt,
	)
	if err != nil {
		return Transition{}, fmt.Errorf("insert transition: %w", err)
	}
	return t, nil
}

func (db *PgStore) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, user_id, body, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, room_id, user_id, body, created_at",
		params.RoomId,
		params.UserId,
		params.Content,
		params.CreatedAt,
	)

	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.UserId,
		&msg.Content,
		&msg.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (db *PgStore) IncrementMessageCount(ctx context.Context, roomId uuid.UUID, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE rooms SET message_count = message_count + 1, last_activity_at = $2 WHERE id = $1",
		roomId,
		at,
	)
	if err != nil {
		return fmt.Errorf("increment message count: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment message count: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PgStore) ListMessages(ctx context.Context, roomId uuid.UUID, limit int) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT m.id, m.room_id, m.user_id, u.nickname, m.body, m.created_at "+
			"FROM messages AS m JOIN users AS u ON u.id = m.user_id "+
			"WHERE m.room_id = $1 ORDER BY m.created_at ASC, m.id ASC LIMIT $2",
		roomId,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.SenderNickname, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (db *PgStore) RandomRoomKey(ctx context.Context, excludeKey string) (string, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT room_key FROM rooms WHERE room_key <> $1 ORDER BY random() LIMIT 1",
		excludeKey,
	)

	var key string
	if err := row.Scan(&key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("random room: %w", err)
	}
	return key, nil
}

func (db *PgStore) RoomActivitySince(ctx context.Context, since time.Time) ([]RoomActivity, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT
				r.id,
				r.room_key,
				r.created_at,
				COUNT(*) AS total_visits,
				COUNT(DISTINCT t.user_id) AS unique_users,
				COALESCE(SUM(t.duration_seconds), 0) AS total_dwell,
				MAX(t.created_at) AS last_activity
		FROM transitions t
		JOIN rooms r ON r.id = t.to_room_id
		WHERE t.created_at >= $1
		GROUP BY r.id, r.room_key, r.created_at
		ORDER BY MIN(t.created_at) ASC, r.id ASC;
`, since)
	if err != nil {
		return nil, fmt.Errorf("room activity: %w", err)
	}
	defer rows.Close()

	activity := make([]RoomActivity, 0)
	for rows.Next() {
		var a RoomActivity
		err := rows.Scan(
			&a.RoomId,
			&a.RoomKey,
			&a.RoomCreatedAt,
			&a.TotalVisits,
			&a.UniqueUsers,
			&a.TotalDwellSeconds,
			&a.LastActivity,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		activity = append(activity, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return activity, nil
}
