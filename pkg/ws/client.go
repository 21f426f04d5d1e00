package ws

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client WebSocket 客户端连接
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient 创建客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// ID 连接标识，推送通道上报时作为 reporterId
func (c *Client) ID() string {
	return c.id
}

// Register 注册客户端
func (c *Client) Register() {
	c.hub.register <- c
}

// Unregister 注销客户端
func (c *Client) Unregister() {
	c.hub.unregister <- c
}

// Send 向该连接发送结构化消息
func (c *Client) Send(msgType string, data interface{}) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		c.hub.logger.Error("Failed to marshal client message", zap.Error(err))
		return
	}
	select {
	case c.send <- payload:
	default:
		// 缓冲满则丢弃
	}
}

// ReadPump 读取并分发客户端消息
func (c *Client) ReadPump() {
	defer func() {
		c.Unregister()
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var msg envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.logger.Warn("Failed to parse client message",
				zap.String("client_id", c.id),
				zap.Error(err))
			continue
		}

		switch msg.Type {
		case MsgTypeJoinBus:
			busNumber := parseJoinBus(msg.Data)
			if busNumber == "" {
				c.Send(MsgTypeError, map[string]string{"message": "joinBus requires a busNumber"})
				continue
			}
			c.hub.Join(c, busNumber)

		case MsgTypeLocationUpdate:
			if c.hub.onLocation != nil {
				c.hub.onLocation(c, msg.Data)
			}

		default:
			c.hub.logger.Debug("Ignoring unknown message type",
				zap.String("client_id", c.id),
				zap.String("type", msg.Type))
		}
	}
}

// WritePump 发送消息
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}

// parseJoinBus 解析 joinBus 载荷
// 兼容两种形式：裸字符串 "01" 和对象 {"busNumber":"01"}
func parseJoinBus(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		BusNumber string `json:"busNumber"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return strings.TrimSpace(obj.BusNumber)
	}
	return ""
}
