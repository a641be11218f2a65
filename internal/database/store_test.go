package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/nodechat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testStoreBehavior runs the checks every backend has to pass.
func testStoreBehavior(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("upsert user is idempotent by token", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first, err := s.UpsertUser(ctx, UpsertUserParams{
			LocalToken:  "tok-1",
			Nickname:    "alice",
			Attribution: types.Attribution{Source: "newsletter", Campaign: "spring"},
			SeenAt:      baseTime,
		})
		require.NoError(t, err)

		second, err := s.UpsertUser(ctx, UpsertUserParams{
			LocalToken:  "tok-1",
			Nickname:    "alicia",
			Attribution: types.Attribution{Source: "twitter"},
			SeenAt:      baseTime.Add(time.Minute),
		})
		require.NoError(t, err)

		assert.Equal(t, first.Id, second.Id, "expected same identity for same token")
		assert.Equal(t, "alicia", second.Nickname)
		assert.Equal(t, "twitter", second.Attribution.Source)
		assert.Equal(t, "spring", second.Attribution.Campaign, "expected empty attribution field to keep prior value")
		assert.True(t, second.LastSeenAt.Equal(baseTime.Add(time.Minute)))
		assert.True(t, second.CreatedAt.Equal(baseTime))
	})

	t.Run("upsert room counts only destinations", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		creator := uuid.New()
		r, err := s.UpsertRoom(ctx, UpsertRoomParams{
			Key:           "lobby",
			IsDestination: false,
			CreatorId:     uuid.NullUUID{UUID: creator, Valid: true},
			At:            baseTime,
		})
		require.NoError(t, err)
		assert.Equal(t, 0, r.VisitCount)
		assert.Equal(t, creator, r.CreatorId.UUID)

		for i := 1; i <= 3; i++ {
			r2, err := s.UpsertRoom(ctx, UpsertRoomParams{
				Key:           "lobby",
				IsDestination: true,
				CreatorId:     uuid.NullUUID{UUID: uuid.New(), Valid: true},
				At:            baseTime.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
			assert.Equal(t, r.Id, r2.Id)
			assert.Equal(t, i, r2.VisitCount)
			assert.Equal(t, creator, r2.CreatorId.UUID, "expected creator to be fixed at creation")
		}

		got, err := s.GetRoomByKey(ctx, "lobby")
		require.NoError(t, err)
		assert.Equal(t, 3, got.VisitCount)
		assert.True(t, got.LastActivityAt.Equal(baseTime.Add(3*time.Minute)))
	})

	t.Run("get missing room", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRoomByKey(context.Background(), "nowhere")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("history returns oldest messages ascending", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u, err := s.UpsertUser(ctx, UpsertUserParams{LocalToken: "tok", Nickname: "bob", SeenAt: baseTime})
		require.NoError(t, err)
		r, err := s.UpsertRoom(ctx, UpsertRoomParams{Key: "den", IsDestination: true, At: baseTime})
		require.NoError(t, err)

		for i := 0; i < 60; i++ {
			_, err := s.CreateMessage(ctx, CreateMessageParams{
				RoomId:    r.Id,
				UserId:    u.Id,
				Content:   fmt.Sprintf("msg %d", i),
				CreatedAt: baseTime.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
			require.NoError(t, s.IncrementMessageCount(ctx, r.Id, baseTime.Add(time.Duration(i)*time.Second)))
		}

		// the window is the first 50 ever posted, not the latest 50
		msgs, err := s.ListMessages(ctx, r.Id, 50)
		require.NoError(t, err)
		require.Len(t, msgs, 50)
		assert.Equal(t, "msg 0", msgs[0].Content)
		assert.Equal(t, "msg 49", msgs[49].Content)
		assert.Equal(t, "bob", msgs[0].SenderNickname)
		for i := 1; i < len(msgs); i++ {
			assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
		}

		room, err := s.GetRoomByKey(ctx, "den")
		require.NoError(t, err)
		assert.Equal(t, 60, room.MessageCount)
	})

	t.Run("same timestamp messages keep insertion order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		u, err := s.UpsertUser(ctx, UpsertUserParams{LocalToken: "tok", Nickname: "bob", SeenAt: baseTime})
		require.NoError(t, err)
		r, err := s.UpsertRoom(ctx, UpsertRoomParams{Key: "den", IsDestination: true, At: baseTime})
		require.NoError(t, err)

		for _, text := range []string{"a", "b", "c"} {
			_, err := s.CreateMessage(ctx, CreateMessageParams{RoomId: r.Id, UserId: u.Id, Content: text, CreatedAt: baseTime})
			require.NoError(t, err)
		}

		msgs, err := s.ListMessages(ctx, r.Id, 50)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	})

	t.Run("increment unknown room", func(t *testing.T) {
		s := newStore(t)
		err := s.IncrementMessageCount(context.Background(), uuid.New(), baseTime)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("random room excludes key", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.RandomRoomKey(ctx, "")
		assert.ErrorIs(t, err, ErrNotFound, "expected no candidates in empty store")

		_, err = s.UpsertRoom(ctx, UpsertRoomParams{Key: "only", At: baseTime})
		require.NoError(t, err)
		_, err = s.RandomRoomKey(ctx, "only")
		assert.ErrorIs(t, err, ErrNotFound, "expected no candidates besides excluded key")

		_, err = s.UpsertRoom(ctx, UpsertRoomParams{Key: "other", At: baseTime})
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			key, err := s.RandomRoomKey(ctx, "only")
			require.NoError(t, err)
			assert.Equal(t, "other", key)
		}
	})

	t.Run("room activity aggregates window", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		alice, err := s.UpsertUser(ctx, UpsertUserParams{LocalToken: "a", Nickname: "alice", SeenAt: baseTime})
		require.NoError(t, err)
		bob, err := s.UpsertUser(ctx, UpsertUserParams{LocalToken: "b", Nickname: "bob", SeenAt: baseTime})
		require.NoError(t, err)

		a, err := s.UpsertRoom(ctx, UpsertRoomParams{Key: "a", IsDestination: true, At: baseTime})
		require.NoError(t, err)
		b, err := s.UpsertRoom(ctx, UpsertRoomParams{Key: "b", IsDestination: true, At: baseTime})
		require.NoError(t, err)

		record := func(user uuid.UUID, to uuid.UUID, dwell int, at time.Time) {
			_, err := s.CreateTransition(ctx, CreateTransitionParams{
				UserId:          user,
				ToRoomId:        to,
				Type:            types.TransitionGoCommand,
				DurationSeconds: dwell,
				CreatedAt:       at,
			})
			require.NoError(t, err)
		}

		// outside the window
		record(alice.Id, b.Id, 999, baseTime.Add(-48*time.Hour))

		record(alice.Id, b.Id, 10, baseTime.Add(time.Minute))
		record(alice.Id, a.Id, 20, baseTime.Add(2*time.Minute))
		record(bob.Id, b.Id, 30, baseTime.Add(3*time.Minute))
		record(alice.Id, b.Id, 40, baseTime.Add(4*time.Minute))

		activity, err := s.RoomActivitySince(ctx, baseTime.Add(-24*time.Hour))
		require.NoError(t, err)
		require.Len(t, activity, 2)

		assert.Equal(t, "b", activity[0].RoomKey, "expected groups in order of first transition")
		assert.Equal(t, 3, activity[0].TotalVisits)
		assert.Equal(t, 2, activity[0].UniqueUsers)
		assert.Equal(t, 80, activity[0].TotalDwellSeconds)
		assert.True(t, activity[0].LastActivity.Equal(baseTime.Add(4*time.Minute)))
		assert.True(t, activity[0].RoomCreatedAt.Equal(baseTime))

		assert.Equal(t, "a", activity[1].RoomKey)
		assert.Equal(t, 1, activity[1].TotalVisits)
		assert.Equal(t, 1, activity[1].UniqueUsers)
		assert.Equal(t, 20, activity[1].TotalDwellSeconds)
	})

	t.Run("concurrent destination upserts create one room", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 25
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpsertRoom(ctx, UpsertRoomParams{Key: "rush", IsDestination: true, At: baseTime})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.NoError(t, err)
		}
		room, err := s.GetRoomByKey(ctx, "rush")
		require.NoError(t, err)
		assert.Equal(t, n, room.VisitCount)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
