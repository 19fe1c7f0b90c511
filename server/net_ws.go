package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/IamMikeHelsel/2DG-sub000/identity"
	"github.com/IamMikeHelsel/2DG-sub000/protocol"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 16
	sendQueueSize  = 64
)

// ClientConn 一个 WebSocket 连接；实现 Session，发送非阻塞
type ClientConn struct {
	ws      *websocket.Conn
	codec   protocol.Codec
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	metrics *RoomMetrics
}

func NewClientConn(ws *websocket.Conn, codec protocol.Codec, metrics *RoomMetrics) *ClientConn {
	if metrics == nil {
		metrics = &RoomMetrics{}
	}
	return &ClientConn{
		ws:      ws,
		codec:   codec,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		metrics: metrics,
	}
}

// Send 编码后压入队列（非阻塞，满则丢弃，防止阻塞 Tick）
func (c *ClientConn) Send(msg protocol.Outbound) {
	b, err := c.codec.Encode(msg)
	if err != nil {
		Log.Warnw("encode outbound failed", "kind", msg.Kind(), "err", err)
		return
	}
	c.enqueue(b)
}

func (c *ClientConn) enqueue(b []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- b:
	default:
		c.metrics.IncSendDropped()
	}
}

// Close 先发送 kicked 通知（reason 非空时），再让写协程发送关闭帧；可重复调用
func (c *ClientConn) Close(reason string) {
	c.once.Do(func() {
		if reason != "" {
			c.Send(kickedNotice(reason))
		}
		close(c.done)
	})
}

func (c *ClientConn) frameType() int {
	if c.codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (c *ClientConn) write(b []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(c.frameType(), b)
}

// writePump 独立协程，负责从 send 队列写出到 WS
func (c *ClientConn) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case b := <-c.send:
			if err := c.write(b); err != nil {
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

// flush 关闭前写出已排队的消息（包括 kicked 通知）
func (c *ClientConn) flush() {
	for {
		select {
		case b := <-c.send:
			if err := c.write(b); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump 读取客户端消息，解码后交给房间；超出洪泛限制的帧直接丢弃
func (c *ClientConn) readPump(room *Room, playerID string) {
	// 读泵退出即断线：清理房间状态并结束写协程
	defer func() {
		room.Leave(playerID)
		c.Close("")
	}()
	tun := room.Tunables()
	flood := rate.NewLimiter(rate.Limit(tun.FloodRate), tun.FloodBurst)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugw("read error", "room", room.ID, "player", playerID, "err", err)
			}
			return
		}
		if !flood.Allow() {
			c.metrics.IncFloodDropped()
			continue
		}
		msg, err := c.codec.Decode(payload)
		if err != nil {
			Log.Debugw("drop malformed message", "room", room.ID, "player", playerID, "err", err)
			continue
		}
		room.Dispatch(playerID, msg)
	}
}

// Verifier 校验连接令牌并返回玩家名（identity.Service 实现）
type Verifier interface {
	Verify(token string) (string, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 允许所有来源（生产环境需严格限制）
		return true
	},
}

// WSHandler WebSocket 接入：/ws?room=room-1&name=alice 或 &token=<jwt>，可选 &codec=msgpack
type WSHandler struct {
	Manager      *RoomManager
	DefaultRoom  string
	Verifier     Verifier
	RequireToken bool
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID := q.Get("room")
	if roomID == "" {
		roomID = h.DefaultRoom
	}
	name, status, err := h.playerName(q.Get("token"), q.Get("name"))
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	room, err := h.Manager.GetOrCreateRoom(roomID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "err", err)
		return
	}
	client := NewClientConn(ws, protocol.ForName(q.Get("codec")), room.metrics)
	go client.writePump()

	p, err := room.Join(name, client)
	if err != nil {
		Log.Infow("join rejected", "room", roomID, "name", name, "err", err)
		client.Close(err.Error())
		return
	}
	go client.readPump(room, p.ID)
}

// playerName 令牌优先；未要求令牌时接受合法的 name 参数
func (h *WSHandler) playerName(token, name string) (string, int, error) {
	if token != "" && h.Verifier != nil {
		n, err := h.Verifier.Verify(token)
		if err != nil {
			return "", http.StatusUnauthorized, err
		}
		return n, 0, nil
	}
	if h.RequireToken {
		return "", http.StatusUnauthorized, identity.ErrInvalidToken
	}
	if err := identity.ValidateName(name); err != nil {
		return "", http.StatusBadRequest, err
	}
	return name, 0, nil
}
