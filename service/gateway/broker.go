package gateway

import (
	"sync"

	"NotifyGate/logger"
)

const publicScope = "public"

// Broker fans events out to subscribed connections. Two scope kinds:
// a private scope per principal (presence plus that principal's
// notifications) and one public scope carrying only the aggregate online
// set. Delivery is best-effort; a connection missing at publish time
// reconciles via the feed snapshot and history paging on reconnect.
type Broker struct {
	mu      sync.RWMutex
	private map[string]map[string]*Client // principal -> conn_id -> client
	public  map[string]*Client            // conn_id -> client

	fanout *Fanout

	// Dropped is invoked off the broker lock for connections evicted by
	// queue overflow; the gateway closes them for full cleanup.
	Dropped func(*Client)
}

func NewBroker(workers, queue int) *Broker {
	b := &Broker{
		private: make(map[string]map[string]*Client),
		public:  make(map[string]*Client),
	}
	b.fanout = NewFanout(workers, queue, b.dropSlow)
	return b
}

// SubscribePrivate attaches the connection to its principal's scope.
func (b *Broker) SubscribePrivate(c *Client, principalID string) {
	if c == nil || principalID == "" {
		return
	}
	b.mu.Lock()
	m := b.private[principalID]
	if m == nil {
		m = make(map[string]*Client)
		b.private[principalID] = m
	}
	m[c.ConnID] = c
	b.mu.Unlock()
}

// SubscribePublic attaches the connection to the aggregate presence feed.
func (b *Broker) SubscribePublic(c *Client) {
	if c == nil {
		return
	}
	b.mu.Lock()
	b.public[c.ConnID] = c
	b.mu.Unlock()
}

// Unsubscribe detaches the connection from every scope; repeated calls
// are a no-op.
func (b *Broker) Unsubscribe(c *Client) {
	if c == nil {
		return
	}
	b.mu.Lock()
	delete(b.public, c.ConnID)
	if c.PrincipalID != "" {
		if m := b.private[c.PrincipalID]; m != nil {
			delete(m, c.ConnID)
			if len(m) == 0 {
				delete(b.private, c.PrincipalID)
			}
		}
	}
	b.mu.Unlock()
}

// PublishPrivate delivers to every connection of one principal, in
// publish order per connection.
func (b *Broker) PublishPrivate(principalID string, payload []byte) {
	b.mu.RLock()
	m := b.private[principalID]
	conns := make([]*Client, 0, len(m))
	for _, c := range m {
		conns = append(conns, c)
	}
	b.mu.RUnlock()
	b.fanout.Broadcast("p:"+principalID, conns, payload)
}

// PublishPublic delivers to every public subscriber.
func (b *Broker) PublishPublic(payload []byte) {
	b.mu.RLock()
	conns := make([]*Client, 0, len(b.public))
	for _, c := range b.public {
		conns = append(conns, c)
	}
	b.mu.RUnlock()
	b.fanout.Broadcast(publicScope, conns, payload)
}

// SendTo delivers to a single connection (initial snapshots).
func (b *Broker) SendTo(c *Client, payload []byte) {
	if !c.TrySend(payload) {
		b.dropSlow(c)
	}
}

func (b *Broker) dropSlow(c *Client) {
	logger.Warnf("[broker] dropping slow consumer conn=%s principal=%s", c.ConnID, c.PrincipalID)
	b.Unsubscribe(c)
	if b.Dropped != nil {
		b.Dropped(c)
	} else {
		c.Close()
	}
}

// Close stops the fanout workers.
func (b *Broker) Close() { b.fanout.Close() }
