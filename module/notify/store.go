package notify

import (
	"context"
	"sync"
	"time"

	"NotifyGate/tools/ids"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// FeedSnapshot is what a freshly subscribed connection receives.
type FeedSnapshot struct {
	Items  []*Notification `json:"items"`
	Unread int             `json:"unread"`
}

// Page is one slice of durable history.
type Page struct {
	Items      []*Notification `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Store fronts durable History with a bounded per-owner feed cache.
// The cache exists only while the owner has at least one live connection
// (Retain/Release); an append to an owner with no loaded feed writes
// durable state only, and the feed is rebuilt from history on the next
// connect.
//
// All mutations for one owner serialize on that owner's lock; the durable
// round trip happens inside it, so the cache is updated only after the
// write is confirmed. Different owners never contend.
type Store struct {
	hist    History
	feedCap int

	mu     sync.Mutex
	owners map[string]*ownerState
}

type ownerState struct {
	mu   sync.Mutex
	feed *Feed
	refs int // guarded by Store.mu, not ownerState.mu
}

func NewStore(hist History, feedCap int) *Store {
	if feedCap <= 0 {
		feedCap = 50
	}
	return &Store{
		hist:    hist,
		feedCap: feedCap,
		owners:  make(map[string]*ownerState),
	}
}

func (s *Store) owner(ownerID string) *ownerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.owners[ownerID]
	if o == nil {
		o = &ownerState{}
		s.owners[ownerID] = o
	}
	return o
}

// Append durably creates a notification, then updates the owner's cached
// feed if one is loaded. On a store failure nothing is cached and the
// error propagates to the triggering business caller.
func (s *Store) Append(ctx context.Context, ownerID, kind string, data map[string]any) (*Notification, error) {
	n := &Notification{
		ID:        ids.GenerateString(),
		OwnerID:   ownerID,
		Kind:      kind,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	o := s.owner(ownerID)
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := s.hist.Insert(ctx, n); err != nil {
		return nil, err
	}
	if o.feed != nil {
		o.feed.Push(n.clone())
	}
	return n, nil
}

// ListPage reads durable history, newest-first, independent of the
// bounded feed.
func (s *Store) ListPage(ctx context.Context, ownerID string, limit int, cursor string) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	beforeID, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	items, err := s.hist.Page(ctx, ownerID, limit, beforeID)
	if err != nil {
		return nil, err
	}
	page := &Page{Items: items}
	if len(items) == limit {
		page.NextCursor = encodeCursor(items[len(items)-1].ID)
	}
	return page, nil
}

// MarkRead flips the owner's unread entries among ids, durably and in the
// cached feed, and returns exactly the ids that changed; not-found,
// foreign and already-read ids are skipped. An empty id set
// short-circuits without a store round trip.
func (s *Store) MarkRead(ctx context.Context, ownerID string, idList []string) ([]string, error) {
	if len(idList) == 0 {
		return nil, nil
	}

	o := s.owner(ownerID)
	o.mu.Lock()
	defer o.mu.Unlock()

	changed, err := s.hist.MarkRead(ctx, ownerID, idList)
	if err != nil {
		return nil, err
	}
	if o.feed != nil && len(changed) > 0 {
		want := make(map[string]struct{}, len(changed))
		for _, id := range changed {
			want[id] = struct{}{}
		}
		o.feed.MarkRead(want)
	}
	return changed, nil
}

// Retain pins the owner's feed for one connection, lazily loading it from
// durable history on the first subscriber, and returns a snapshot for
// reconnect reconciliation.
func (s *Store) Retain(ctx context.Context, ownerID string) (*FeedSnapshot, error) {
	// pin first so a concurrent Release cannot drop the state mid-load
	s.mu.Lock()
	o := s.owners[ownerID]
	if o == nil {
		o = &ownerState{}
		s.owners[ownerID] = o
	}
	o.refs++
	s.mu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.feed == nil {
		items, err := s.hist.Page(ctx, ownerID, s.feedCap, "")
		if err != nil {
			s.unpin(ownerID, o)
			return nil, err
		}
		f := NewFeed(s.feedCap)
		// history is newest-first; the ring wants oldest-first
		for i := len(items) - 1; i >= 0; i-- {
			f.Push(items[i])
		}
		o.feed = f
	}
	return &FeedSnapshot{Items: o.feed.Items(), Unread: o.feed.Unread()}, nil
}

// Release drops one pin; the last release discards the cache.
func (s *Store) Release(ownerID string) {
	s.mu.Lock()
	o := s.owners[ownerID]
	s.mu.Unlock()
	if o == nil {
		return
	}
	s.unpin(ownerID, o)
}

// unpin decrements o's refcount under Store.mu, removing the state (and
// with it the cached feed) from the map when the last pin drops. A removed
// state can never be revived: Retain increments refs under the same lock,
// so refs>0 blocks removal and a later Retain builds a fresh state.
func (s *Store) unpin(ownerID string, o *ownerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.refs > 0 {
		o.refs--
	}
	if o.refs == 0 && s.owners[ownerID] == o {
		delete(s.owners, ownerID)
	}
}

// Snapshot returns the cached feed without pinning, nil when not loaded.
func (s *Store) Snapshot(ownerID string) *FeedSnapshot {
	s.mu.Lock()
	o := s.owners[ownerID]
	s.mu.Unlock()
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.feed == nil {
		return nil
	}
	return &FeedSnapshot{Items: o.feed.Items(), Unread: o.feed.Unread()}
}
