package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/pkg/ws"
)

// StreamCallbacks 推送通道事件回调
type StreamCallbacks struct {
	OnRecord     func(record Record) // 收到房间内的位置推送
	OnConnect    func()              // 连接成功
	OnDisconnect func(err error)     // 断开连接
	OnFallback   func()              // 重试耗尽，永久回退到轮询
}

// StreamClient 观察端推送通道客户端
// 断开后自动重连，次数有上限：重试耗尽后只通知回退，不再无限重试
type StreamClient struct {
	logger    *zap.Logger
	url       string
	busNumber string
	callbacks StreamCallbacks

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	stopCh    chan struct{}
	stopOnce  sync.Once

	maxAttempts    int
	reconnectDelay time.Duration
}

// NewStreamClient 创建推送通道客户端
func NewStreamClient(logger *zap.Logger, url, busNumber string, maxAttempts int, reconnectDelay time.Duration) *StreamClient {
	return &StreamClient{
		logger:         logger,
		url:            url,
		busNumber:      busNumber,
		stopCh:         make(chan struct{}),
		maxAttempts:    maxAttempts,
		reconnectDelay: reconnectDelay,
	}
}

// SetCallbacks 设置回调函数
func (c *StreamClient) SetCallbacks(callbacks StreamCallbacks) {
	c.callbacks = callbacks
}

// IsConnected 检查连接状态
func (c *StreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Start 启动连接与自动重连
func (c *StreamClient) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop 关闭连接
func (c *StreamClient) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *StreamClient) run(ctx context.Context) {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		err := c.connect(ctx)
		if err == nil {
			// 连接成功过就重置重试计数
			attempts = 0
			err = c.readLoop()
		}

		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		if c.callbacks.OnDisconnect != nil {
			c.callbacks.OnDisconnect(err)
		}

		attempts++
		if attempts >= c.maxAttempts {
			c.logger.Warn("Stream reconnect attempts exhausted, falling back to polling",
				zap.String("bus_number", c.busNumber),
				zap.Int("attempts", attempts))
			if c.callbacks.OnFallback != nil {
				c.callbacks.OnFallback()
			}
			return
		}

		c.logger.Debug("Stream reconnecting",
			zap.String("bus_number", c.busNumber),
			zap.Int("attempt", attempts))

		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *StreamClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}

	// 订阅目标车辆的房间
	join := ws.Message{
		Type: ws.MsgTypeJoinBus,
		Data: map[string]string{"busNumber": c.busNumber},
	}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return fmt.Errorf("join bus: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("Stream connected",
		zap.String("bus_number", c.busNumber))

	if c.callbacks.OnConnect != nil {
		c.callbacks.OnConnect()
	}
	return nil
}

func (c *StreamClient) readLoop() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	for {
		select {
		case <-c.stopCh:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("Failed to parse stream message", zap.Error(err))
			continue
		}

		if msg.Type != ws.MsgTypeBusLocation {
			continue
		}

		var record Record
		if err := json.Unmarshal(msg.Data, &record); err != nil {
			c.logger.Warn("Failed to parse bus location", zap.Error(err))
			continue
		}

		if c.callbacks.OnRecord != nil {
			c.callbacks.OnRecord(record)
		}
	}
}
