package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 连接建立时客户端还不属于任何房间；create_room / join_room /
// reconnect_player 成功后由 Hub 调用 bind 绑定座位。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	connID string

	mu       sync.RWMutex
	roomCode string
	playerID string

	send chan []byte
}

// NewClient 创建 Client 实例。connID 是本次连接的唯一引用。
func NewClient(hub *Hub, conn *websocket.Conn, connID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		connID: connID,
		send:   make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine。
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// bind 把客户端绑定到房间座位；由 Hub 在加入/重连成功后调用。
func (c *Client) bind(roomCode string, playerID string) {
	c.mu.Lock()
	c.roomCode = roomCode
	c.playerID = playerID
	c.mu.Unlock()
}

// unbind 解除座位绑定；由 Hub 在离开/被踢后调用。
func (c *Client) unbind() {
	c.mu.Lock()
	c.roomCode = ""
	c.playerID = ""
	c.mu.Unlock()
}

// RoomCode 返回客户端当前绑定的房间码，未绑定时为空串。
func (c *Client) RoomCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode
}

// PlayerID 返回客户端当前绑定的玩家 ID，未绑定时为空串。
func (c *Client) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// ConnID 返回本次连接的唯一引用。
func (c *Client) ConnID() string { return c.connID }

// CloseConn 强制关闭底层 WebSocket 连接。
func (c *Client) CloseConn() { c.conn.Close() }

// ReadPump 把消息从 WebSocket 连接泵送到 Hub 的处理通道。
// 在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithField("conn_id", c.connID).Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithField("conn_id", c.connID).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithField("conn_id", c.connID)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break
		}

		if messageType != websocket.TextMessage {
			logrus.WithField("conn_id", c.connID).Debugf("Received non-text message type: %d", messageType)
			continue
		}

		commandMsg := HubMessage{
			Type:    "command",
			Client:  c,
			RawData: message,
		}
		select {
		case c.hub.messageChan <- commandMsg:
		default:
			logrus.WithField("conn_id", c.connID).Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 把消息从 send 通道泵送到 WebSocket 连接，并定期发送 Ping。
// 在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithField("conn_id", c.connID).Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭（注销时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithField("conn_id", c.connID).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithField("conn_id", c.connID).WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
