package gateway

import (
	"context"
	"time"

	"NotifyGate/logger"
	"NotifyGate/module/notify"
	"NotifyGate/module/presence"
	"NotifyGate/service/natsx"
	"NotifyGate/service/storage"
	"NotifyGate/tools/safe"
	sec "NotifyGate/tools/security"
)

type ServerConf struct {
	NodeID        string
	SendQueueSize int
	FanoutWorkers int
	JWT           sec.Options
	AllowGuests   bool
}

func (c *ServerConf) norm() {
	if c.NodeID == "" {
		c.NodeID = "gateway_01"
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 8
	}
}

// Server owns the gateway side: the presence registry, the delivery
// broker and the hooks tying them to the notification store, the Redis
// mirror and the NATS relay. Mirror and bus are optional; absent they
// degrade to single-node behavior.
type Server struct {
	conf ServerConf

	registry *presence.Registry
	store    *notify.Store
	broker   *Broker
	mirror   *storage.PresenceMirror
	bus      *natsx.Manager
}

func NewServer(conf ServerConf, store *notify.Store, mirror *storage.PresenceMirror, bus *natsx.Manager) *Server {
	conf.norm()
	s := &Server{
		conf:   conf,
		store:  store,
		mirror: mirror,
		bus:    bus,
	}
	s.broker = NewBroker(conf.FanoutWorkers, 1024)
	s.registry = presence.NewRegistry(presence.Hooks{
		OnOnline:  func(p string) { s.presenceChanged(p, true) },
		OnOffline: func(p string) { s.presenceChanged(p, false) },
	})
	return s
}

func (s *Server) Registry() *presence.Registry { return s.registry }
func (s *Server) Broker() *Broker              { return s.broker }
func (s *Server) Store() *notify.Store         { return s.store }
func (s *Server) NodeID() string               { return s.conf.NodeID }

// presenceChanged handles a local 0→1 or 1→0 flip: mirror it, push a
// fresh public snapshot locally and relay the flip to the other nodes.
func (s *Server) presenceChanged(principalID string, online bool) {
	safe.Go("presence-changed", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		var err error
		if online {
			_, err = s.mirror.Connect(ctx, principalID)
		} else {
			_, err = s.mirror.Disconnect(ctx, principalID)
		}
		if err != nil {
			logger.Warnf("[gateway] presence mirror: %v", err)
		}

		s.BroadcastPresence(ctx)
		s.relayPresence(ctx, principalID, online)
	})
}

// OnlineSnapshot prefers the cluster-wide mirror and falls back to the
// local registry when Redis is absent or unreachable.
func (s *Server) OnlineSnapshot(ctx context.Context) []string {
	if s.mirror != nil {
		if online, err := s.mirror.ListOnline(ctx); err == nil && online != nil {
			return online
		} else if err != nil {
			logger.Warnf("[gateway] mirror snapshot: %v", err)
		}
	}
	return s.registry.ListOnline()
}

// BroadcastPresence pushes the current online set to public subscribers.
func (s *Server) BroadcastPresence(ctx context.Context) {
	s.broker.PublishPublic(BuildPresenceUpdate(s.OnlineSnapshot(ctx)))
}

// NotifyNew fans a freshly appended notification out to the owner.
func (s *Server) NotifyNew(n *notify.Notification) {
	s.broker.PublishPrivate(n.OwnerID, BuildNotificationNew(n))
}

// NotifyRead echoes a read-state change to all of the owner's
// connections so every open tab converges.
func (s *Server) NotifyRead(ownerID string, ids []string) {
	s.broker.PublishPrivate(ownerID, BuildNotificationRead(ids))
}

// Close tears the broker down; live websockets close via their own
// read/write loops.
func (s *Server) Close() {
	s.broker.Close()
}
