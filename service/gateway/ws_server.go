package gateway

import (
	"context"
	"net"
	"net/http"
	"time"

	"NotifyGate/logger"
	"NotifyGate/tools/errs"
	"NotifyGate/tools/safe"
	sec "NotifyGate/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const maxFrameSize = 64 * 1024

// HandleWS is the session entry point. Credentials are checked before the
// upgrade: a bad token is refused with 401 and no state is ever created.
// Guests (guest=1, no token) get the public presence feed only.
func (s *Server) HandleWS(c *gin.Context) {
	token := c.Query("token")
	guest := c.Query("guest") == "1"

	var principalID string
	switch {
	case token != "":
		claims, err := sec.Verify(s.conf.JWT, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, errs.ErrTokenInvalid.WithDetail(err.Error()))
			return
		}
		principalID = claims.PrincipalID()
	case guest && s.conf.AllowGuests:
		// public-only session
	default:
		c.JSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[gateway] upgrade failed: %v", err)
		return
	}

	client := NewClient(principalID, ws, s.conf.SendQueueSize)
	client.setState(StateAuthenticated)

	// Registration order keeps partial state unobservable: the feed pin
	// has no external effect, so a failure there closes the socket before
	// the registry or broker ever saw the connection.
	var snapshotFrame []byte
	if principalID != "" {
		loadCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		snap, err := s.store.Retain(loadCtx, principalID)
		cancel()
		if err != nil {
			logger.Errorf("[gateway] feed load principal=%s err=%v", principalID, err)
			_ = ws.Close()
			return
		}
		snapshotFrame = BuildFeedSnapshot(snap)

		s.registry.Connect(principalID, client.ConnID)
		s.broker.SubscribePrivate(client, principalID)
	}
	s.broker.SubscribePublic(client)
	client.setState(StateSubscribed)

	// Cleanup runs on every exit path, abnormal termination included.
	defer func() {
		s.broker.Unsubscribe(client)
		if principalID != "" {
			s.registry.Disconnect(principalID, client.ConnID)
			s.store.Release(principalID)
		}
		client.Close()
	}()

	safe.Go("ws-writer", client.WritePump)

	// Initial reconciliation: the client needs no replay, just the
	// current snapshot of both feeds.
	if snapshotFrame != nil {
		s.broker.SendTo(client, snapshotFrame)
	}
	snapCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	s.broker.SendTo(client, BuildPresenceUpdate(s.OnlineSnapshot(snapCtx)))
	cancel()

	s.readLoop(client)
}

func (s *Server) readLoop(client *Client) {
	ws := client.ws
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debug("[gateway] peer closed")
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[gateway] read timeout conn=%s", client.ConnID)
			} else {
				logger.Infof("[gateway] read err conn=%s err=%v", client.ConnID, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			// malformed input is logged, never connection-fatal
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[gateway] bad frame conn=%s err=%v sample=%q", client.ConnID, perr, sample)
			continue
		}

		s.handleClientFrame(client, frame)
	}
}

func (s *Server) handleClientFrame(client *Client, frame *Frame) {
	switch frame.Type {
	case FramePing:
		s.broker.SendTo(client, BuildPong())

	case FrameMarkRead:
		if client.PrincipalID == "" {
			logger.Infof("[gateway] mark_read from guest conn=%s ignored", client.ConnID)
			return
		}
		payload, err := frame.MarkRead()
		if err != nil {
			logger.Infof("[gateway] bad mark_read conn=%s err=%v", client.ConnID, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		changed, err := s.store.MarkRead(ctx, client.PrincipalID, payload.IDs)
		cancel()
		if err != nil {
			logger.Errorf("[gateway] mark_read principal=%s err=%v", client.PrincipalID, err)
			return
		}
		// echo only what actually flipped, skipped ids stay out of the frame
		if len(changed) > 0 {
			s.NotifyRead(client.PrincipalID, changed)
		}

	default:
		logger.Infof("[gateway] unknown frame type=%s conn=%s", frame.Type, client.ConnID)
	}
}
