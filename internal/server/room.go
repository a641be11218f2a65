package server

import "sync"

// roomGroups is the fan-out registry from room key to the clients currently
// in that room. A client belongs to at most one group.
type roomGroups struct {
	mu      sync.RWMutex
	members map[string]map[*Client]struct{}
}

func newRoomGroups() *roomGroups {
	return &roomGroups{members: make(map[string]map[*Client]struct{})}
}

// move detaches c from the group at from and attaches it to the group at to
// in one step. An empty key means no group. It reports whether the
// destination group was created and whether the source group was emptied.
func (g *roomGroups) move(c *Client, from, to string) (created, emptied bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from != "" && from != to {
		emptied = g.removeLocked(c, from)
	}

	if to == "" {
		return created, emptied
	}

	group, ok := g.members[to]
	if !ok {
		group = make(map[*Client]struct{})
		g.members[to] = group
		created = true
	}
	group[c] = struct{}{}

	return created, emptied
}

// remove detaches c from key and reports whether the group became empty.
func (g *roomGroups) remove(c *Client, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.removeLocked(c, key)
}

func (g *roomGroups) removeLocked(c *Client, key string) bool {
	group, ok := g.members[key]
	if !ok {
		return false
	}

	delete(group, c)
	if len(group) == 0 {
		delete(g.members, key)
		return true
	}
	return false
}

func (g *roomGroups) clients(key string) []*Client {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Client, 0, len(g.members[key]))
	for c := range g.members[key] {
		out = append(out, c)
	}
	return out
}

func (g *roomGroups) count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.members)
}
