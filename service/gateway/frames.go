package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"NotifyGate/module/notify"
)

// Wire protocol: one JSON frame per websocket text message.

// server -> client
const (
	FramePresenceUpdate   = "presence:update"
	FrameNotificationNew  = "notification:new"
	FrameNotificationRead = "notification:read"
	FrameFeedSnapshot     = "feed:snapshot"
	FramePong             = "pong"
)

// client -> server
const (
	FrameMarkRead = "mark_read"
	FramePing     = "ping"
)

type Frame struct {
	Type string          `json:"type"`
	Ts   int64           `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return f, nil
}

type MarkReadPayload struct {
	IDs []string `json:"ids"`
}

func (f *Frame) MarkRead() (*MarkReadPayload, error) {
	p := &MarkReadPayload{}
	if err := json.Unmarshal(f.Data, p); err != nil {
		return nil, fmt.Errorf("unmarshal mark_read: %w", err)
	}
	return p, nil
}

func buildFrame(typ string, data any) []byte {
	var raw json.RawMessage
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	out, _ := json.Marshal(Frame{Type: typ, Ts: time.Now().UnixMilli(), Data: raw})
	return out
}

func BuildPresenceUpdate(online []string) []byte {
	if online == nil {
		online = []string{}
	}
	return buildFrame(FramePresenceUpdate, map[string]any{"online": online})
}

func BuildNotificationNew(n *notify.Notification) []byte {
	return buildFrame(FrameNotificationNew, n)
}

func BuildNotificationRead(ids []string) []byte {
	return buildFrame(FrameNotificationRead, map[string]any{"ids": ids})
}

func BuildFeedSnapshot(snap *notify.FeedSnapshot) []byte {
	return buildFrame(FrameFeedSnapshot, snap)
}

func BuildPong() []byte {
	return buildFrame(FramePong, nil)
}
