package notify

// Feed is a fixed-capacity ring buffer over an owner's most recent
// notifications. Insertion is O(1); at capacity the oldest entry is
// evicted regardless of its read state. The unread counter is maintained
// on every mutation and always equals the recomputed count over the ring.
type Feed struct {
	buf    []*Notification
	start  int // index of the oldest entry
	size   int
	unread int
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = 50
	}
	return &Feed{buf: make([]*Notification, capacity)}
}

func (f *Feed) Cap() int    { return len(f.buf) }
func (f *Feed) Len() int    { return f.size }
func (f *Feed) Unread() int { return f.unread }

// Push inserts the newest entry, evicting the oldest when full.
// Returns the evicted entry, nil when there was room.
func (f *Feed) Push(n *Notification) *Notification {
	var evicted *Notification
	if f.size == len(f.buf) {
		evicted = f.buf[f.start]
		f.buf[f.start] = nil
		f.start = (f.start + 1) % len(f.buf)
		f.size--
		if evicted != nil && !evicted.Read {
			f.unread--
		}
	}
	idx := (f.start + f.size) % len(f.buf)
	f.buf[idx] = n
	f.size++
	if !n.Read {
		f.unread++
	}
	return evicted
}

// Items returns the entries newest-first.
func (f *Feed) Items() []*Notification {
	out := make([]*Notification, 0, f.size)
	for i := f.size - 1; i >= 0; i-- {
		out = append(out, f.buf[(f.start+i)%len(f.buf)])
	}
	return out
}

// MarkRead flips the given ids to read and returns how many actually
// changed. Ids not present (evicted or foreign) are skipped; flipping an
// already-read id does not count.
func (f *Feed) MarkRead(ids map[string]struct{}) int {
	if len(ids) == 0 {
		return 0
	}
	changed := 0
	for i := 0; i < f.size; i++ {
		n := f.buf[(f.start+i)%len(f.buf)]
		if n == nil || n.Read {
			continue
		}
		if _, ok := ids[n.ID]; ok {
			n.Read = true
			f.unread--
			changed++
		}
	}
	return changed
}
