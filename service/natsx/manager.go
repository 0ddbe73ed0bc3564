package natsx

import (
	"context"
	"fmt"
)

// Manager is the single facade the rest of the service talks to.
type Manager struct {
	client   *Client
	producer *Producer
	consumer *Consumer
}

func NewManager(cfg Config, middlewares ...Middleware) (*Manager, error) {
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{
		client:   c,
		producer: NewProducer(c),
		consumer: NewConsumer(c, middlewares...),
	}, nil
}

func (m *Manager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *Manager) RegisterRoute(r Route) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.client.RegisterRoute(r)
}

func (m *Manager) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	if m == nil || m.producer == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.producer.Publish(ctx, biz, data, hdr)
}

func (m *Manager) Subscribe(biz string, h Handler) error {
	if m == nil || m.consumer == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.consumer.Subscribe(biz, h)
}
