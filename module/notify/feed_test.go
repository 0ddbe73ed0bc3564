package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkNotif(id string) *Notification {
	return &Notification{ID: id, OwnerID: "u1", Kind: KindSystem}
}

func feedIDs(f *Feed) []string {
	items := f.Items()
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

func TestFeedCapEvictsOldest(t *testing.T) {
	const capN = 5
	f := NewFeed(capN)

	// capN+1 appends on an empty feed
	for i := 1; i <= capN+1; i++ {
		f.Push(mkNotif(fmt.Sprintf("%02d", i)))
	}

	require.Equal(t, capN, f.Len())
	// newest-first, the oldest ("01") evicted
	assert.Equal(t, []string{"06", "05", "04", "03", "02"}, feedIDs(f))
	assert.Equal(t, capN, f.Unread())
}

func TestFeedEvictionIgnoresReadState(t *testing.T) {
	f := NewFeed(2)
	f.Push(mkNotif("a"))
	f.Push(mkNotif("b"))

	// mark the oldest read; eviction is still by recency only
	f.MarkRead(map[string]struct{}{"a": {}})
	evicted := f.Push(mkNotif("c"))

	require.NotNil(t, evicted)
	assert.Equal(t, "a", evicted.ID)
	assert.Equal(t, []string{"c", "b"}, feedIDs(f))
}

func TestFeedUnreadMatchesRecount(t *testing.T) {
	f := NewFeed(4)
	for _, id := range []string{"a", "b", "c", "d"} {
		f.Push(mkNotif(id))
	}

	recount := func() int {
		n := 0
		for _, item := range f.Items() {
			if !item.Read {
				n++
			}
		}
		return n
	}

	assert.Equal(t, recount(), f.Unread())

	changed := f.MarkRead(map[string]struct{}{"b": {}, "d": {}})
	assert.Equal(t, 2, changed)
	assert.Equal(t, recount(), f.Unread())

	// idempotent: same set again flips nothing
	changed = f.MarkRead(map[string]struct{}{"b": {}, "d": {}})
	assert.Equal(t, 0, changed)
	assert.Equal(t, recount(), f.Unread())

	// eviction of an unread entry keeps the counter honest
	for _, id := range []string{"e", "f", "g", "h", "i"} {
		f.Push(mkNotif(id))
	}
	assert.Equal(t, recount(), f.Unread())
}

func TestFeedMarkReadEvictedID(t *testing.T) {
	f := NewFeed(2)
	f.Push(mkNotif("a"))
	f.Push(mkNotif("b"))
	f.Push(mkNotif("c")) // evicts "a"

	assert.Equal(t, []string{"c", "b"}, feedIDs(f))
	// marking the evicted id must not error and not count
	changed := f.MarkRead(map[string]struct{}{"a": {}})
	assert.Equal(t, 0, changed)
	assert.Equal(t, 2, f.Unread())
}

func TestFeedZeroCapDefaults(t *testing.T) {
	f := NewFeed(0)
	assert.Equal(t, 50, f.Cap())
}
