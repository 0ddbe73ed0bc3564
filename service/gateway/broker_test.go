package gateway

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(principalID string, queue int) *Client {
	// no websocket: tests exercise the queue side only
	return NewClient(principalID, nil, queue)
}

func drain(t *testing.T, c *Client, n int) [][]byte {
	t.Helper()
	out := make([][]byte, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case p := <-c.send:
			out = append(out, p)
		case <-timeout:
			t.Fatalf("only drained %d of %d payloads", len(out), n)
		}
	}
	return out
}

func TestPrivateScopeReachesAllOwnerConnections(t *testing.T) {
	b := NewBroker(4, 64)
	defer b.Close()

	tabA := newTestClient("u1", 16)
	tabB := newTestClient("u1", 16)
	other := newTestClient("u2", 16)
	b.SubscribePrivate(tabA, "u1")
	b.SubscribePrivate(tabB, "u1")
	b.SubscribePrivate(other, "u2")

	b.PublishPrivate("u1", []byte("hello"))

	assert.Equal(t, []byte("hello"), drain(t, tabA, 1)[0])
	assert.Equal(t, []byte("hello"), drain(t, tabB, 1)[0])

	select {
	case p := <-other.send:
		t.Fatalf("u2 received u1's private event: %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublicScopeIsSeparateFromPrivate(t *testing.T) {
	b := NewBroker(4, 64)
	defer b.Close()

	guest := newTestClient("", 16)
	user := newTestClient("u1", 16)
	b.SubscribePublic(guest)
	b.SubscribePrivate(user, "u1")

	b.PublishPublic([]byte("presence"))
	b.PublishPrivate("u1", []byte("private"))

	assert.Equal(t, []byte("presence"), drain(t, guest, 1)[0])
	assert.Equal(t, []byte("private"), drain(t, user, 1)[0])

	select {
	case p := <-guest.send:
		t.Fatalf("guest received private data: %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPerScopeOrderingPreserved(t *testing.T) {
	b := NewBroker(8, 256)
	defer b.Close()

	c := newTestClient("u1", 256)
	b.SubscribePrivate(c, "u1")

	const total = 200
	for i := 0; i < total; i++ {
		b.PublishPrivate("u1", []byte(fmt.Sprintf("%03d", i)))
	}

	got := drain(t, c, total)
	for i, p := range got {
		require.Equal(t, fmt.Sprintf("%03d", i), string(p), "events must arrive in publish order")
	}
}

func TestSlowConsumerIsDroppedNotBlocked(t *testing.T) {
	b := NewBroker(1, 64)
	defer b.Close()

	dropped := make(chan *Client, 1)
	b.Dropped = func(c *Client) {
		dropped <- c
		c.Close()
	}

	slow := newTestClient("u1", 1) // room for a single payload
	fast := newTestClient("u2", 16)
	b.SubscribePrivate(slow, "u1")
	b.SubscribePrivate(fast, "u2")

	b.PublishPrivate("u1", []byte("one"))
	b.PublishPrivate("u1", []byte("two")) // overflows the queue

	select {
	case c := <-dropped:
		assert.Equal(t, slow.ConnID, c.ConnID)
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer was never dropped")
	}

	// the broker keeps serving everyone else
	b.PublishPrivate("u2", []byte("still-alive"))
	assert.Equal(t, []byte("still-alive"), drain(t, fast, 1)[0])

	// and the dropped connection is gone from its scope
	b.PublishPrivate("u1", []byte("after-drop"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateClosed, slow.State())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroker(2, 16)
	defer b.Close()

	c := newTestClient("u1", 4)
	b.SubscribePrivate(c, "u1")
	b.SubscribePublic(c)

	b.Unsubscribe(c)
	b.Unsubscribe(c)

	b.PublishPrivate("u1", []byte("x"))
	b.PublishPublic([]byte("y"))
	select {
	case p := <-c.send:
		t.Fatalf("unsubscribed connection received %q", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := NewBroker(2, 16)

	c := newTestClient("u1", 4)
	b.SubscribePrivate(c, "u1")

	b.Close()
	b.Close() // idempotent

	// a publisher racing shutdown must be dropped, never panic
	b.PublishPrivate("u1", []byte("late"))
	b.PublishPublic([]byte("late"))
}

func TestPresenceUpdateFrameShape(t *testing.T) {
	raw := BuildPresenceUpdate([]string{"u1", "u2"})

	var f Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, FramePresenceUpdate, f.Type)

	var data struct {
		Online []string `json:"online"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, []string{"u1", "u2"}, data.Online)
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	_, err := ParseFrame([]byte("not json"))
	require.Error(t, err)

	_, err = ParseFrame([]byte(`{"data":{}}`))
	require.Error(t, err, "frame without type must be rejected")

	f, err := ParseFrame([]byte(`{"type":"mark_read","data":{"ids":["a","b"]}}`))
	require.NoError(t, err)
	p, err := f.MarkRead()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, p.IDs)
}
