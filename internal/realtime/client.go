package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/NWB-044/movietime-gather/internal/identity"
	"github.com/NWB-044/movietime-gather/internal/session"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
	// joinWait bounds how long a fresh connection may sit without a join.
	joinWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Config holds transport tuning.
type Config struct {
	// SendBuffer is the bounded outbound queue per connection; a connection
	// that falls this far behind is forcibly dropped.
	SendBuffer int
	// ValidateMedia gates select_media refs against the catalog before they
	// reach the engine. Nil disables the check.
	ValidateMedia func(mediaRef string) bool
}

// Client is one WebSocket connection bound to a session participant. It
// implements session.Sink: the engine pushes ordered events into the send
// queue, the write pump drains it.
type Client struct {
	participantID uuid.UUID
	sess          *session.Session
	conn          *websocket.Conn
	send          chan WSMessage
	quit          chan struct{}
	closeOnce     sync.Once
	validateMedia func(string) bool
	logger        *zap.Logger
}

// Deliver implements session.Sink. It never blocks: a full queue reports
// failure so the engine can drop this participant instead of stalling the
// write path.
func (c *Client) Deliver(out session.Outbound) bool {
	select {
	case c.send <- fromOutbound(out):
		return true
	default:
		return false
	}
}

// Kick implements session.Sink; the engine calls it to force-close the
// connection. Must not block (it runs under the session lock).
func (c *Client) Kick(reason string) {
	c.shutdown()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.quit) })
}

// unicast queues a frame outside the engine's event order (rejections,
// resume prompts). Best-effort: a full queue drops it.
func (c *Client) unicast(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

// ServeWs handles the WebSocket upgrade and runs the connection. The first
// frame must be a join carrying the participant token; after that the
// client receives its snapshot (or a resume prompt) and the live stream.
func ServeWs(manager *session.Manager, tokens *identity.TokenService, store identity.Store, cfg Config, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		claims, ok := awaitJoin(conn, tokens, store, c, logger)
		if !ok {
			_ = conn.Close()
			return
		}
		sess, ok := manager.Get(claims.SessionID)
		if !ok {
			_ = conn.WriteJSON(rejection("session_closed", "session not found"))
			_ = conn.Close()
			return
		}

		client := &Client{
			participantID: claims.ParticipantID,
			sess:          sess,
			conn:          conn,
			send:          make(chan WSMessage, cfg.SendBuffer),
			quit:          make(chan struct{}),
			validateMedia: cfg.ValidateMedia,
			logger:        logger,
		}
		resumed, err := sess.Join(claims.ParticipantID, claims.Role, claims.DisplayName, client)
		if err != nil {
			_ = conn.WriteJSON(rejection(session.ReasonCode(err), err.Error()))
			_ = conn.Close()
			return
		}
		if resumed {
			client.unicast(encode(EventResumeRequired, nil))
		}

		go client.writePump()
		client.readPump()
	}
}

// awaitJoin reads and validates the initial join frame.
func awaitJoin(conn *websocket.Conn, tokens *identity.TokenService, store identity.Store, c *gin.Context, logger *zap.Logger) (*identity.Claims, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(joinWait))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Event != EventJoin {
		return nil, false
	}
	var join JoinPayload
	if err := json.Unmarshal(msg.Data, &join); err != nil {
		return nil, false
	}
	claims, err := tokens.Validate(join.Token)
	if err != nil {
		_ = conn.WriteJSON(rejection("unauthorized", "invalid token"))
		return nil, false
	}
	// Tokens are only honored while their identity record is live; records
	// age out with the store TTL or are deleted on session teardown.
	rec, err := store.Find(c.Request.Context(), claims.ParticipantID)
	if err != nil {
		logger.Warn("identity store lookup failed", zap.Error(err))
		_ = conn.WriteJSON(rejection("internal", "identity store unavailable"))
		return nil, false
	}
	if rec == nil {
		_ = conn.WriteJSON(rejection("unauthorized", "unknown participant"))
		return nil, false
	}
	return claims, true
}

func (c *Client) readPump() {
	defer func() {
		c.sess.MarkDisconnected(c.participantID, c)
		c.shutdown()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case EventCommand:
			var cmd CommandPayload
			if err := json.Unmarshal(msg.Data, &cmd); err != nil {
				c.unicast(rejection("invalid_state", "malformed command"))
				continue
			}
			if err := c.dispatch(cmd); err != nil {
				c.unicast(rejection(session.ReasonCode(err), err.Error()))
			}
		case EventChat:
			var chat ChatPayload
			if err := json.Unmarshal(msg.Data, &chat); err != nil {
				continue
			}
			if err := c.sess.SendChat(c.participantID, chat.Body); err != nil {
				c.unicast(rejection(session.ReasonCode(err), err.Error()))
			}
		case EventResumeFrom:
			var p SeqPayload
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				continue
			}
			if err := c.sess.ResumeFrom(c.participantID, p.Seq, c); err != nil {
				c.unicast(rejection(session.ReasonCode(err), err.Error()))
			}
		case EventAck:
			var p SeqPayload
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				continue
			}
			c.sess.Ack(c.participantID, p.Seq)
		default:
			// ignore
		}
	}
}

func (c *Client) dispatch(cmd CommandPayload) error {
	switch cmd.Kind {
	case CommandSelectMedia:
		if c.validateMedia != nil && !c.validateMedia(cmd.MediaRef) {
			return session.ErrInvalidState
		}
		return c.sess.SelectMedia(c.participantID, cmd.MediaRef)
	case CommandPlay:
		return c.sess.Play(c.participantID)
	case CommandPause:
		return c.sess.Pause(c.participantID)
	case CommandStop:
		return c.sess.Stop(c.participantID)
	case CommandSeek:
		return c.sess.Seek(c.participantID, cmd.DeltaSeconds)
	case CommandSetAutoPlay:
		return c.sess.SetAutoPlay(c.participantID, cmd.Enabled)
	default:
		return session.ErrInvalidState
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
