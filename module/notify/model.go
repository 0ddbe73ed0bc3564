package notify

import (
	"time"
)

// Kind names the business event that produced a notification.
// The payload data stays opaque to this service.
const (
	KindOrder   = "order"
	KindMessage = "message"
	KindSystem  = "system"
)

// Notification is one durable entry in an owner's history. IDs are
// snowflake strings; newer ids sort greater, which drives both feed order
// and cursor pagination.
type Notification struct {
	ID        string         `bson:"_id" json:"id"`
	OwnerID   string         `bson:"owner_id" json:"owner_id"`
	Kind      string         `bson:"kind" json:"kind"`
	Data      map[string]any `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
	Read      bool           `bson:"read" json:"read"`
}

func (n *Notification) clone() *Notification {
	c := *n
	return &c
}
