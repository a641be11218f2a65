package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockStore) UpsertUser(ctx context.Context, params UpsertUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStore) UpsertRoom(ctx context.Context, params UpsertRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStore) GetRoomByKey(ctx context.Context, key string) (Room, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockStore) CreateTransition(ctx context.Context, params CreateTransitionParams) (Transition, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Transition), args.Error(1)
}
func (m *MockStore) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockStore) IncrementMessageCount(ctx context.Context, roomId uuid.UUID, at time.Time) error {
	args := m.Called(ctx, roomId, at)
	return args.Error(0)
}
func (m *MockStore) ListMessages(ctx context.Context, roomId uuid.UUID, limit int) ([]Message, error) {
	args := m.Called(ctx, roomId, limit)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockStore) RandomRoomKey(ctx context.Context, excludeKey string) (string, error) {
	args := m.Called(ctx, excludeKey)
	return args.String(0), args.Error(1)
}
func (m *MockStore) RoomActivitySince(ctx context.Context, since time.Time) ([]RoomActivity, error) {
	args := m.Called(ctx, since)
	if activity, ok := args.Get(0).([]RoomActivity); ok {
		return activity, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
