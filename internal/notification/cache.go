package notification

import (
	"context"
	"sort"
	"sync"
)

type entry struct {
	n Notification

	// pending is set while a read mark is in flight so a concurrent refresh
	// does not flip the item back to unread.
	pending bool
}

// Cache holds each user's notifications keyed by id. Read marks are applied
// locally first and reverted if the backend rejects them.
type Cache struct {
	mu    sync.Mutex
	users map[string]map[string]*entry
}

func NewCache() *Cache {
	return &Cache{users: make(map[string]map[string]*entry)}
}

// Merge replaces userID's view with items from the server, keeping read
// marks that are still in flight. The result is newest first.
func (c *Cache) Merge(userID string, items []Notification) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.users[userID]
	next := make(map[string]*entry, len(items))
	for _, n := range items {
		e := &entry{n: n}
		if old, ok := prev[n.ID]; ok && old.pending {
			e.pending = true
			e.n.Read = true
		}
		next[n.ID] = e
	}
	c.users[userID] = next
	return snapshot(next)
}

func (c *Cache) List(userID string) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshot(c.users[userID])
}

func (c *Cache) Get(userID, id string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.users[userID][id]
	if !ok {
		return Notification{}, false
	}
	return e.n, true
}

// MarkRead flags the notification read, then calls commit. When commit
// fails the previous state is restored and the error returned. Unknown ids
// still call commit but nothing is cached.
func (c *Cache) MarkRead(ctx context.Context, userID, id string, commit func(context.Context) error) error {
	c.mu.Lock()
	e, ok := c.users[userID][id]
	var wasRead bool
	if ok {
		if e.n.Read && !e.pending {
			c.mu.Unlock()
			return nil
		}
		wasRead = e.n.Read
		e.n.Read = true
		e.pending = true
	}
	c.mu.Unlock()

	err := commit(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	// The entry may have been replaced by a Merge in the meantime.
	if cur, found := c.users[userID][id]; found {
		cur.pending = false
		switch {
		case err == nil:
			cur.n.Read = true
		case ok:
			cur.n.Read = wasRead
		}
	}
	return err
}

func Unread(items []Notification) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}

func snapshot(m map[string]*entry) []Notification {
	out := make([]Notification, 0, len(m))
	for _, e := range m {
		out = append(out, e.n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
