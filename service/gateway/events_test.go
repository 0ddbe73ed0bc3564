package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"NotifyGate/module/notify"
	"NotifyGate/service/natsx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBusTestServer(t *testing.T, hist notify.History) (*Server, *notify.Store) {
	t.Helper()
	store := notify.NewStore(hist, 50)
	srv := NewServer(ServerConf{NodeID: "gw_a", JWT: wsTestJWT}, store, nil, nil)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestIngressAppendsAndFansOut(t *testing.T) {
	srv, store := newBusTestServer(t, notify.NewMemoryHistory())

	c := newTestClient("u1", 16)
	srv.broker.SubscribePrivate(c, "u1")

	data, _ := json.Marshal(map[string]any{
		"owner_id": "u1",
		"kind":     notify.KindOrder,
		"data":     map[string]any{"order_id": "o-7"},
	})
	err := srv.handleIngress(context.Background(), natsx.Message{Subject: subjectIngress, Data: data})
	require.NoError(t, err)

	// durable write first
	page, err := store.ListPage(context.Background(), "u1", 10, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, notify.KindOrder, page.Items[0].Kind)

	// then fan-out to the live connection
	f, err := ParseFrame(drain(t, c, 1)[0])
	require.NoError(t, err)
	assert.Equal(t, FrameNotificationNew, f.Type)
}

// downHistory refuses every durable operation.
type downHistory struct{}

func (downHistory) Insert(context.Context, *notify.Notification) error {
	return fmt.Errorf("store down")
}

func (downHistory) Page(context.Context, string, int, string) ([]*notify.Notification, error) {
	return nil, fmt.Errorf("store down")
}

func (downHistory) MarkRead(context.Context, string, []string) ([]string, error) {
	return nil, fmt.Errorf("store down")
}

func TestIngressStoreFailureAsksForRedelivery(t *testing.T) {
	srv, _ := newBusTestServer(t, downHistory{})

	data, _ := json.Marshal(map[string]any{"owner_id": "u1", "kind": notify.KindOrder})
	err := srv.handleIngress(context.Background(), natsx.Message{Subject: subjectIngress, Data: data})
	require.Error(t, err, "a failed append must surface so the delivery is retried")
}

func TestIngressPoisonMessagesAreDropped(t *testing.T) {
	srv, store := newBusTestServer(t, notify.NewMemoryHistory())

	for _, raw := range [][]byte{
		[]byte("not json"),
		[]byte(`{"kind":"order.created"}`),
		[]byte(`{"owner_id":"u1"}`),
	} {
		// nil keeps the broker from redelivering garbage forever
		require.NoError(t, srv.handleIngress(context.Background(), natsx.Message{Subject: subjectIngress, Data: raw}))
	}

	page, err := store.ListPage(context.Background(), "u1", 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestRelaySkipsOwnNode(t *testing.T) {
	srv, _ := newBusTestServer(t, notify.NewMemoryHistory())

	guest := newTestClient("", 16)
	srv.broker.SubscribePublic(guest)

	own, _ := json.Marshal(relayEvent{NodeID: "gw_a", PrincipalID: "u1", Online: true})
	require.NoError(t, srv.handleRelay(context.Background(), natsx.Message{Subject: subjectRelay, Data: own}))

	select {
	case p := <-guest.send:
		t.Fatalf("own-node relay must not rebroadcast, got %q", p)
	case <-time.After(50 * time.Millisecond):
	}

	foreign, _ := json.Marshal(relayEvent{NodeID: "gw_b", PrincipalID: "u2", Online: true})
	require.NoError(t, srv.handleRelay(context.Background(), natsx.Message{Subject: subjectRelay, Data: foreign}))

	f, err := ParseFrame(drain(t, guest, 1)[0])
	require.NoError(t, err)
	assert.Equal(t, FramePresenceUpdate, f.Type)
}
