package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/nodechat/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type gormUser struct {
	ID          uuid.UUID `gorm:"type:text;primaryKey"`
	LocalToken  string    `gorm:"uniqueIndex;not null"`
	Nickname    string    `gorm:"not null"`
	UtmSource   string
	UtmMedium   string
	UtmCampaign string
	UtmContent  string
	UtmTerm     string
	CreatedAt   time.Time `gorm:"not null"`
	LastSeenAt  time.Time `gorm:"not null"`
}

func (gormUser) TableName() string { return "users" }

type gormRoom struct {
	ID             uuid.UUID     `gorm:"type:text;primaryKey"`
	RoomKey        string        `gorm:"uniqueIndex;not null"`
	CreatorID      uuid.NullUUID `gorm:"type:text"`
	MessageCount   int           `gorm:"not null"`
	VisitCount     int           `gorm:"not null"`
	CreatedAt      time.Time     `gorm:"not null"`
	LastActivityAt time.Time     `gorm:"not null"`
}

func (gormRoom) TableName() string { return "rooms" }

type gormTransition struct {
	ID              uuid.UUID     `gorm:"type:text;primaryKey"`
	UserID          uuid.UUID     `gorm:"type:text;not null;index"`
	FromRoomID      uuid.NullUUID `gorm:"type:text"`
	ToRoomID        uuid.UUID     `gorm:"type:text;not null;index"`
	TransitionType  string        `gorm:"not null"`
	DurationSeconds int           `gorm:"not null"`
	CreatedAt       time.Time     `gorm:"not null;index"`
}

func (gormTransition) TableName() string { return "transitions" }

type gormMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	RoomID    uuid.UUID `gorm:"type:text;not null;index:idx_messages_room_created,priority:1"`
	UserID    uuid.UUID `gorm:"type:text;not null"`
	Body      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_room_created,priority:2"`
}

func (gormMessage) TableName() string { return "messages" }

// GormStore persists to SQLite through gorm. Upserts rely on the unique
// indexes on local_token and room_key.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	err = db.AutoMigrate(&gormUser{}, &gormRoom{}, &gormTransition{}, &gormMessage{})
	if err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &GormStore{db: db}, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (u gormUser) toUser() User {
	user := User{
		Id:         u.ID,
		LocalToken: u.LocalToken,
		Nickname:   u.Nickname,
		CreatedAt:  u.CreatedAt,
		LastSeenAt: u.LastSeenAt,
	}
	user.Attribution.Source = u.UtmSource
	user.Attribution.Medium = u.UtmMedium
	user.Attribution.Campaign = u.UtmCampaign
	user.Attribution.Content = u.UtmContent
	user.Attribution.Term = u.UtmTerm
	return user
}

func (r gormRoom) toRoom() Room {
	return Room{
		Id:             r.ID,
		Key:            r.RoomKey,
		CreatorId:      r.CreatorID,
		MessageCount:   r.MessageCount,
		VisitCount:     r.VisitCount,
		CreatedAt:      r.CreatedAt,
		LastActivityAt: r.LastActivityAt,
	}
}

func keepIfEmpty(column string) clause.Expr {
	return gorm.Expr(fmt.Sprintf("COALESCE(NULLIF(excluded.%[1]s, ''), users.%[1]s)", column))
}

func (s *GormStore) UpsertUser(ctx context.Context, params UpsertUserParams) (User, error) {
	seen := params.SeenAt.UTC()
	row := gormUser{
		ID:          uuid.New(),
		LocalToken:  params.LocalToken,
		Nickname:    params.Nickname,
		UtmSource:   params.Attribution.Source,
		UtmMedium:   params.Attribution.Medium,
		UtmCampaign: params.Attribution.Campaign,
		UtmContent:  params.Attribution.Content,
		UtmTerm:     params.Attribution.Term,
		CreatedAt:   seen,
		LastSeenAt:  seen,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "local_token"}},
		DoUpdates: clause.Assignments(map[string]any{
			"nickname":     params.Nickname,
			"last_seen_at": seen,
			"utm_source":   keepIfEmpty("utm_source"),
			"utm_medium":   keepIfEmpty("utm_medium"),
			"utm_campaign": keepIfEmpty("utm_campaign"),
			"utm_content":  keepIfEmpty("utm_content"),
			"utm_term":     keepIfEmpty("utm_term"),
		}),
	}).Create(&row).Error
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}

	var stored gormUser
	if err := s.db.WithContext(ctx).Where("local_token = ?", params.LocalToken).First(&stored).Error; err != nil {
		return User{}, fmt.Errorf("reload user: %w", err)
	}
	return stored.toUser(), nil
}

func (s *GormStore) UpsertRoom(ctx context.Context, params UpsertRoomParams) (Room, error) {
	at := params.At.UTC()
	row := gormRoom{
		ID:             uuid.New(),
		RoomKey:        params.Key,
		CreatorID:      params.CreatorId,
		CreatedAt:      at,
		LastActivityAt: at,
	}

	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_key"}},
		DoNothing: true,
	}
	if params.IsDestination {
		row.VisitCount = 1
		conflict = clause.OnConflict{
			Columns: []clause.Column{{Name: "room_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"visit_count":      gorm.Expr("rooms.visit_count + 1"),
				"last_activity_at": at,
			}),
		}
	}

	if err := s.db.WithContext(ctx).Clauses(conflict).Create(&row).Error; err != nil {
		return Room{}, fmt.Errorf("upsert room: %w", err)
	}

	var stored gormRoom
	if err := s.db.WithContext(ctx).Where("room_key = ?", params.Key).First(&stored).Error; err != nil {
		return Room{}, fmt.Errorf("reload room: %w", err)
	}
	return stored.toRoom(), nil
}

func (s *GormStore) GetRoomByKey(ctx context.Context, key string) (Room, error) {
	var row gormRoom
	err := s.db.WithContext(ctx).Where("room_key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Room{}, ErrNotFound
		}
		return Room{}, fmt.Errorf("get room: %w", err)
	}
	return row.toRoom(), nil
}

func (s *GormStore) CreateTransition(ctx context.Context, params CreateTransitionParams) (Transition, error) {
	row := gormTransition{
		ID:              uuid.New(),
		UserID:          params.UserId,
		FromRoomID:      params.FromRoomId,
		ToRoomID:        params.ToRoomId,
		TransitionType:  string(params.Type),
		DurationSeconds: params.DurationSeconds,
		CreatedAt:       params.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Transition{}, fmt.Errorf("insert transition: %w", err)
	}
	return row.toTransition(), nil
}

func (t gormTransition) toTransition() Transition {
	return Transition{
		Id:              t.ID,
		UserId:          t.UserID,
		FromRoomId:      t.FromRoomID,
		ToRoomId:        t.ToRoomID,
		Type:            types.TransitionType(t.TransitionType),
		DurationSeconds: t.DurationSeconds,
		CreatedAt:       t.CreatedAt,
	}
}

func (s *GormStore) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	row := gormMessage{
		RoomID:    params.RoomId,
		UserID:    params.UserId,
		Body:      params.Content,
		CreatedAt: params.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return Message{
		Id:        row.ID,
		RoomId:    row.RoomID,
		UserId:    row.UserID,
		Content:   row.Body,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *GormStore) IncrementMessageCount(ctx context.Context, roomId uuid.UUID, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&gormRoom{}).Where("id = ?", roomId).Updates(map[string]any{
		"message_count":    gorm.Expr("message_count + 1"),
		"last_activity_at": at.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("increment message count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListMessages(ctx context.Context, roomId uuid.UUID, limit int) ([]Message, error) {
	var rows []struct {
		ID        int64
		RoomID    uuid.UUID
		UserID    uuid.UUID
		Nickname  string
		Body      string
		CreatedAt time.Time
	}

	err := s.db.WithContext(ctx).
		Table("messages").
		Select("messages.id, messages.room_id, messages.user_id, users.nickname, messages.body, messages.created_at").
		Joins("JOIN users ON users.id = messages.user_id").
		Where("messages.room_id = ?", roomId).
		Order("messages.created_at ASC, messages.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, Message{
			Id:             r.ID,
			RoomId:         r.RoomID,
			UserId:         r.UserID,
			SenderNickname: r.Nickname,
			Content:        r.Body,
			CreatedAt:      r.CreatedAt,
		})
	}
	return messages, nil
}

func (s *GormStore) RandomRoomKey(ctx context.Context, excludeKey string) (string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&gormRoom{}).
		Where("room_key <> ?", excludeKey).
		Order("RANDOM()").
		Limit(1).
		Pluck("room_key", &keys).Error
	if err != nil {
		return "", fmt.Errorf("random room: %w", err)
	}
	if len(keys) == 0 {
		return "", ErrNotFound
	}
	return keys[0], nil
}

func (s *GormStore) RoomActivitySince(ctx context.Context, since time.Time) ([]RoomActivity, error) {
	var rows []gormTransition
	err := s.db.WithContext(ctx).
		Where("created_at >= ?", since.UTC()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}

	transitions := make([]Transition, 0, len(rows))
	ids := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]struct{})
	for _, r := range rows {
		transitions = append(transitions, r.toTransition())
		if _, ok := seen[r.ToRoomID]; !ok {
			seen[r.ToRoomID] = struct{}{}
			ids = append(ids, r.ToRoomID)
		}
	}

	rooms := make(map[uuid.UUID]Room, len(ids))
	if len(ids) > 0 {
		var roomRows []gormRoom
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&roomRows).Error; err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		for _, r := range roomRows {
			rooms[r.ID] = r.toRoom()
		}
	}

	return aggregateActivity(transitions, rooms), nil
}
