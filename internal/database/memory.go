package database

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/nodechat/internal/types"
)

// MemStore keeps everything in process memory behind a single mutex, which
// makes every method atomic. After Close every Store method returns
// ErrClosed.
type MemStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*User
	usersByTok  map[string]uuid.UUID
	rooms       map[uuid.UUID]*Room
	roomsByKey  map[string]uuid.UUID
	roomOrder   []uuid.UUID
	transitions []Transition
	messages    map[uuid.UUID][]Message
	nextMsgId   int64
	closed      bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:      make(map[uuid.UUID]*User),
		usersByTok: make(map[string]uuid.UUID),
		rooms:      make(map[uuid.UUID]*Room),
		roomsByKey: make(map[string]uuid.UUID),
		messages:   make(map[uuid.UUID][]Message),
	}
}

func (s *MemStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *MemStore) UpsertUser(_ context.Context, params UpsertUserParams) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return User{}, ErrClosed
	}

	id, ok := s.usersByTok[params.LocalToken]
	if !ok {
		id = uuid.New()
		s.users[id] = &User{
			Id:         id,
			LocalToken: params.LocalToken,
			CreatedAt:  params.SeenAt,
		}
		s.usersByTok[params.LocalToken] = id
	}

	u := s.users[id]
	u.Nickname = params.Nickname
	u.LastSeenAt = params.SeenAt
	mergeAttribution(&u.Attribution, params.Attribution)

	return *u, nil
}

func (s *MemStore) UpsertRoom(_ context.Context, params UpsertRoomParams) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Room{}, ErrClosed
	}

	id, ok := s.roomsByKey[params.Key]
	if !ok {
		id = uuid.New()
		s.rooms[id] = &Room{
			Id:             id,
			Key:            params.Key,
			CreatorId:      params.CreatorId,
			CreatedAt:      params.At,
			LastActivityAt: params.At,
		}
		s.roomsByKey[params.Key] = id
		s.roomOrder = append(s.roomOrder, id)
	}

	r := s.rooms[id]
	if params.IsDestination {
		r.VisitCount++
		r.LastActivityAt = params.At
	}

	return *r, nil
}

func (s *MemStore) GetRoomByKey(_ context.Context, key string) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Room{}, ErrClosed
	}

	id, ok := s.roomsByKey[key]
	if !ok {
		return Room{}, ErrNotFound
	}
	return *s.rooms[id], nil
}

func (s *MemStore) CreateTransition(_ context.Context, params CreateTransitionParams) (Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Transition{}, ErrClosed
	}

	t := Transition{
		Id:              uuid.New(),
		UserId:          params.UserId,
		FromRoomId:      params.FromRoomId,
		ToRoomId:        params.ToRoomId,
		Type:            params.Type,
		DurationSeconds: params.DurationSeconds,
		CreatedAt:       params.CreatedAt,
	}
	s.transitions = append(s.transitions, t)

	return t, nil
}

func (s *MemStore) CreateMessage(_ context.Context, params CreateMessageParams) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Message{}, ErrClosed
	}

	if _, ok := s.rooms[params.RoomId]; !ok {
		return Message{}, ErrNotFound
	}

	s.nextMsgId++
	msg := Message{
		Id:        s.nextMsgId,
		RoomId:    params.RoomId,
		UserId:    params.UserId,
		Content:   params.Content,
		CreatedAt: params.CreatedAt,
	}
	s.messages[params.RoomId] = append(s.messages[params.RoomId], msg)

	return msg, nil
}

func (s *MemStore) IncrementMessageCount(_ context.Context, roomId uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	r, ok := s.rooms[roomId]
	if !ok {
		return ErrNotFound
	}
	r.MessageCount++
	r.LastActivityAt = at

	return nil
}

func (s *MemStore) ListMessages(_ context.Context, roomId uuid.UUID, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	msgs := make([]Message, len(s.messages[roomId]))
	copy(msgs, s.messages[roomId])

	// insertion order breaks ties
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}

	for i := range msgs {
		if u, ok := s.users[msgs[i].UserId]; ok {
			msgs[i].SenderNickname = u.Nickname
		}
	}

	return msgs, nil
}

func (s *MemStore) RandomRoomKey(_ context.Context, excludeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	candidates := make([]string, 0, len(s.roomOrder))
	for _, id := range s.roomOrder {
		if key := s.rooms[id].Key; key != excludeKey {
			candidates = append(candidates, key)
		}
	}

	if len(candidates) == 0 {
		return "", ErrNotFound
	}

	return candidates[rand.Intn(len(candidates))], nil
}

func (s *MemStore) RoomActivitySince(_ context.Context, since time.Time) ([]RoomActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	var window []Transition
	for _, t := range s.transitions {
		if !t.CreatedAt.Before(since) {
			window = append(window, t)
		}
	}

	sort.SliceStable(window, func(i, j int) bool {
		return window[i].CreatedAt.Before(window[j].CreatedAt)
	})

	rooms := make(map[uuid.UUID]Room, len(s.rooms))
	for id, r := range s.rooms {
		rooms[id] = *r
	}

	return aggregateActivity(window, rooms), nil
}

// Transitions returns a copy of the transition log in append order.
func (s *MemStore) Transitions() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

// UserCount reports how many distinct identities exist.
func (s *MemStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.users)
}

// RoomCount reports how many rooms exist.
func (s *MemStore) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.rooms)
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// mergeAttribution overwrites dst fields with the non-empty fields of src.
func mergeAttribution(dst *types.Attribution, src types.Attribution) {
	if src.Source != "" {
		dst.Source = src.Source
	}
	if src.Medium != "" {
		dst.Medium = src.Medium
	}
	if src.Campaign != "" {
		dst.Campaign = src.Campaign
	}
	if src.Content != "" {
		dst.Content = src.Content
	}
	if src.Term != "" {
		dst.Term = src.Term
	}
}
