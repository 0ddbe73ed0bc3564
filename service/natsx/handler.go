package natsx

import "context"

// Message is the unified message object handed to handlers.
type Message struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// Handler processes one message; a non-nil error NAKs JetStream deliveries
// so the broker redelivers.
type Handler func(ctx context.Context, msg Message) error

// Middleware wraps handlers (logging, metrics, retry).
type Middleware func(Handler) Handler

// Chain composes middlewares around a handler.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
