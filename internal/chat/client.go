package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echochat/internal/logger"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
)

// Client is the middleman between one websocket connection and the hub.
// userID 0 means the handshake carried no identity: the connection is
// anonymous, receives broadcasts, and never appears in the presence set.
type Client struct {
	hub      *Hub
	receipts *ReadReceiptCoordinator

	id     string
	userID int

	conn *websocket.Conn
	send chan []byte
}

func newClient(hub *Hub, receipts *ReadReceiptCoordinator, conn *websocket.Conn, userID int) *Client {
	return &Client{
		hub:      hub,
		receipts: receipts,
		id:       uuid.NewString(),
		userID:   userID,
		conn:     conn,
		send:     make(chan []byte, 256),
	}
}

// readPump pumps inbound frames off the websocket. Whatever kills the read
// loop (network error, explicit close, missed pongs) funnels into the same
// unregister path, exactly once from this side.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		c.handleFrame(raw)
	}
}

// handleFrame dispatches one client frame. The channel is fire-and-forget:
// bad frames and rejected events are logged and swallowed, never answered.
func (c *Client) handleFrame(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.Warn("unparseable frame", zap.String("conn_id", c.id), zap.Error(err))
		return
	}

	switch frame.Type {
	case EventMarkRead:
		var payload MarkReadPayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			logger.Warn("bad mark-read payload", zap.String("conn_id", c.id), zap.Error(err))
			return
		}
		// The claimed receiver must be the authenticated peer on this
		// connection; anonymous connections can't claim anything.
		if c.userID == 0 || payload.ReceiverID != c.userID {
			logger.Warn("mark-read identity mismatch",
				zap.String("conn_id", c.id),
				zap.Int("conn_user", c.userID),
				zap.Int("claimed", payload.ReceiverID))
			return
		}
		outcome := c.receipts.MarkAsRead(context.Background(), payload.MessageID, payload.ReceiverID)
		if outcome != OutcomeOK {
			logger.Warn("mark-read rejected",
				zap.Int("message_id", payload.MessageID),
				zap.String("outcome", outcome.String()))
		}
	default:
		logger.Warn("unknown event type", zap.String("conn_id", c.id), zap.String("type", frame.Type))
	}
}

// writePump pumps frames from the hub to the websocket connection and keeps
// the keepalive pings flowing.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped us.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush anything else already queued in the same write.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
