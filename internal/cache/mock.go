package cache

import (
	"context"

	"github.com/npezzotti/nodechat/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) ([]types.HotRoom, bool, error) {
	args := m.Called(ctx, key)
	rooms, _ := args.Get(0).([]types.HotRoom)
	return rooms, args.Bool(1), args.Error(2)
}
func (m *MockCache) Set(ctx context.Context, key string, rooms []types.HotRoom) error {
	args := m.Called(ctx, key, rooms)
	return args.Error(0)
}
