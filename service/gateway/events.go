package gateway

import (
	"context"
	"encoding/json"
	"time"

	"NotifyGate/logger"
	"NotifyGate/service/natsx"
	"NotifyGate/tools/errs"

	"github.com/mitchellh/mapstructure"
)

// Bus routes. Ingress carries business events from the marketplace app
// and is JetStream-backed: a store failure NAKs the delivery so the event
// is retried instead of silently dropped. The relay is Core fire-and-forget
// between gateway nodes.
const (
	BizNotifyIngress = "notify_ingress"
	BizPresenceRelay = "presence_relay"

	subjectIngress = "notify.ingress"
	subjectRelay   = "presence.relay"
)

// IngressEvent is the bus shape of one business event.
type IngressEvent struct {
	OwnerID string         `mapstructure:"owner_id" json:"owner_id"`
	Kind    string         `mapstructure:"kind" json:"kind"`
	Data    map[string]any `mapstructure:"data" json:"data"`
}

type relayEvent struct {
	NodeID      string `json:"node_id"`
	PrincipalID string `json:"principal_id"`
	Online      bool   `json:"online"`
}

// RegisterBusRoutes declares the subjects this service uses.
func RegisterBusRoutes(m *natsx.Manager) error {
	if err := m.RegisterRoute(natsx.Route{
		Biz:     BizNotifyIngress,
		Subject: subjectIngress,
		Mode:    natsx.JetStreamPush,
		Queue:   "notifygate",
		Durable: "notifygate-ingress",
	}); err != nil {
		return err
	}
	return m.RegisterRoute(natsx.Route{
		Biz:     BizPresenceRelay,
		Subject: subjectRelay,
		Mode:    natsx.Core,
		// broadcast: every node rebroadcasts its own public snapshot
	})
}

// StartBus wires the subscriptions. No-op when the bus is absent.
func (s *Server) StartBus() error {
	if s.bus == nil {
		return nil
	}

	if err := s.bus.Subscribe(BizNotifyIngress, s.handleIngress); err != nil {
		return err
	}
	return s.bus.Subscribe(BizPresenceRelay, s.handleRelay)
}

// handleIngress appends a bus-delivered business event and fans it out.
// The returned error NAKs the JetStream delivery on store failure.
func (s *Server) handleIngress(ctx context.Context, msg natsx.Message) error {
	var raw map[string]any
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		logger.Infof("[bus] bad ingress payload: %v", err)
		return nil // poison message, do not redeliver
	}
	var ev IngressEvent
	if err := mapstructure.Decode(raw, &ev); err != nil {
		logger.Infof("[bus] bad ingress shape: %v", err)
		return nil
	}
	if ev.OwnerID == "" || ev.Kind == "" {
		logger.Infof("[bus] ingress missing owner_id/kind, dropped")
		return nil
	}

	appendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := s.store.Append(appendCtx, ev.OwnerID, ev.Kind, ev.Data)
	if err != nil {
		logger.Errorf("[bus] append owner=%s err=%v", ev.OwnerID, err)
		return errs.WrapMsg(err, "ingress append")
	}
	s.NotifyNew(n)
	return nil
}

// handleRelay rebroadcasts the cluster snapshot when another node flips.
func (s *Server) handleRelay(ctx context.Context, msg natsx.Message) error {
	var ev relayEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.Infof("[bus] bad relay payload: %v", err)
		return nil
	}
	if ev.NodeID == s.conf.NodeID {
		return nil // local flip already broadcast
	}
	snapCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.BroadcastPresence(snapCtx)
	return nil
}

// relayPresence tells the other nodes about a local flip; best-effort.
func (s *Server) relayPresence(ctx context.Context, principalID string, online bool) {
	if s.bus == nil {
		return
	}
	data, _ := json.Marshal(relayEvent{
		NodeID:      s.conf.NodeID,
		PrincipalID: principalID,
		Online:      online,
	})
	if err := s.bus.Publish(ctx, BizPresenceRelay, data, nil); err != nil {
		logger.Warnf("[bus] relay publish: %v", err)
	}
}
