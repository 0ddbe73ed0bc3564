package natsx

import (
	"context"
	"fmt"
)

type Producer struct{ c *Client }

func NewProducer(c *Client) *Producer { return &Producer{c: c} }

// Publish sends by registered biz route.
func (p *Producer) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	r, ok := p.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	switch r.Mode {
	case Core:
		return p.c.sendCore(r.Subject, data, hdr)
	case JetStreamPush:
		return p.c.sendJS(r.Subject, data, hdr)
	default:
		return fmt.Errorf("unsupported mode")
	}
}
