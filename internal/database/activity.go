package database

import (
	"github.com/google/uuid"
)

// aggregateActivity groups transitions, which must already be filtered to
// the window and sorted by creation, by destination room. Groups keep the
// order in which their first transition appears.
func aggregateActivity(transitions []Transition, rooms map[uuid.UUID]Room) []RoomActivity {
	var (
		order  []uuid.UUID
		groups = make(map[uuid.UUID]*RoomActivity)
		users  = make(map[uuid.UUID]map[uuid.UUID]struct{})
	)

	for _, t := range transitions {
		g, ok := groups[t.ToRoomId]
		if !ok {
			room, ok := rooms[t.ToRoomId]
			if !ok {
				continue
			}
			g = &RoomActivity{
				RoomId:        room.Id,
				RoomKey:       room.Key,
				RoomCreatedAt: room.CreatedAt,
			}
			groups[t.ToRoomId] = g
			users[t.ToRoomId] = make(map[uuid.UUID]struct{})
			order = append(order, t.ToRoomId)
		}

		g.TotalVisits++
		g.TotalDwellSeconds += t.DurationSeconds
		users[t.ToRoomId][t.UserId] = struct{}{}
		if t.CreatedAt.After(g.LastActivity) {
			g.LastActivity = t.CreatedAt
		}
	}

	activity := make([]RoomActivity, 0, len(order))
	for _, id := range order {
		g := groups[id]
		g.UniqueUsers = len(users[id])
		activity = append(activity, *g)
	}

	return activity
}
