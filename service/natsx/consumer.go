package natsx

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

type Consumer struct {
	c   *Client
	mws []Middleware
}

func NewConsumer(c *Client, mws ...Middleware) *Consumer {
	return &Consumer{c: c, mws: mws}
}

// Subscribe starts a Core or JetStream Push subscription. JetStream
// deliveries are acked only when the handler returns nil.
func (cs *Consumer) Subscribe(biz string, h Handler) error {
	r, ok := cs.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	h = Chain(h, cs.mws...)

	switch r.Mode {
	case Core:
		var (
			sub *nats.Subscription
			err error
		)
		cb := func(m *nats.Msg) {
			_ = h(context.Background(), Message{
				Subject: m.Subject,
				Data:    append([]byte(nil), m.Data...),
				Header:  headerToMap(m.Header),
			})
		}
		if r.Queue == "" {
			sub, err = cs.c.nc.Subscribe(r.Subject, cb)
		} else {
			sub, err = cs.c.nc.QueueSubscribe(r.Subject, r.Queue, cb)
		}
		if err != nil {
			return err
		}
		_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
		cs.c.mu.Lock()
		cs.c.subs[biz] = sub
		cs.c.mu.Unlock()
		return nil

	case JetStreamPush:
		if err := cs.c.ensureJS(); err != nil {
			return err
		}
		opts := []nats.SubOpt{
			nats.ManualAck(),
			nats.AckWait(r.AckWait),
			nats.MaxAckPending(r.MaxAckPending),
		}
		if r.Durable != "" {
			opts = append(opts, nats.Durable(r.Durable))
		}

		cb := func(m *nats.Msg) {
			msg := Message{
				Subject: m.Subject,
				Data:    append([]byte(nil), m.Data...),
				Header:  headerToMap(m.Header),
			}
			if err := h(context.Background(), msg); err == nil {
				_ = m.Ack()
			} else {
				_ = m.Nak()
			}
		}

		var (
			sub *nats.Subscription
			err error
		)
		if r.Queue == "" {
			sub, err = cs.c.js.Subscribe(r.Subject, cb, opts...)
		} else {
			sub, err = cs.c.js.QueueSubscribe(r.Subject, r.Queue, cb, opts...)
		}
		if err != nil {
			return err
		}
		cs.c.mu.Lock()
		cs.c.subs[biz] = sub
		cs.c.mu.Unlock()
		return nil

	default:
		return errors.New("unsupported mode")
	}
}
