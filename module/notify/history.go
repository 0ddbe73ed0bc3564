package notify

import (
	"context"
	"sort"
	"sync"
)

// History is the durable notification store behind the feed cache.
// Implementations must apply the owner filter themselves: MarkRead may
// only flip entries owned by ownerID, whatever ids the caller passes.
type History interface {
	// Insert persists one notification.
	Insert(ctx context.Context, n *Notification) error

	// Page returns up to limit entries owned by ownerID, newest-first,
	// strictly older than beforeID ("" = from the newest).
	Page(ctx context.Context, ownerID string, limit int, beforeID string) ([]*Notification, error)

	// MarkRead durably flips the owner's unread entries among ids and
	// returns exactly the ids that changed. Unknown, foreign or
	// already-read ids are skipped, not echoed back.
	MarkRead(ctx context.Context, ownerID string, ids []string) ([]string, error)
}

// MemoryHistory is the in-process twin of the Mongo store, used by tests
// and by dev mode when no Mongo is configured.
type MemoryHistory struct {
	mu     sync.Mutex
	byUser map[string][]*Notification // ascending id order
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{byUser: make(map[string][]*Notification)}
}

func (m *MemoryHistory) Insert(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byUser[n.OwnerID]
	cp := n.clone()
	// inserts are id-ordered in practice; keep the slice sorted anyway
	i := sort.Search(len(list), func(i int) bool { return list[i].ID >= cp.ID })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = cp
	m.byUser[n.OwnerID] = list
	return nil
}

func (m *MemoryHistory) Page(_ context.Context, ownerID string, limit int, beforeID string) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byUser[ownerID]
	out := make([]*Notification, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		if beforeID != "" && list[i].ID >= beforeID {
			continue
		}
		out = append(out, list[i].clone())
	}
	return out, nil
}

func (m *MemoryHistory) MarkRead(_ context.Context, ownerID string, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var changed []string
	for _, n := range m.byUser[ownerID] {
		if n.Read {
			continue
		}
		if _, ok := want[n.ID]; ok {
			n.Read = true
			changed = append(changed, n.ID)
		}
	}
	return changed, nil
}
