package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// MessageType WebSocket 消息类型
const (
	MsgTypeJoinBus        = "joinBus"        // 客户端订阅某辆车
	MsgTypeLocationUpdate = "locationUpdate" // 追踪器上报位置
	MsgTypeBusLocation    = "busLocation"    // 服务端向房间推送位置
	MsgTypeError          = "error"          // 错误消息
)

// Message WebSocket 出站消息结构
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// envelope 入站消息，Data 延迟解析
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinRequest struct {
	client    *Client
	busNumber string
}

type publishRequest struct {
	busNumber string
	message   []byte
}

// LocationHandler 推送通道上报回调
// 由上层接入 Ingest，hub 自身不做校验和落库
type LocationHandler func(client *Client, data json.RawMessage)

// Hub WebSocket 连接管理中心
// 按 busNumber 分房间：位置只推给订阅了该车的连接，绝不全量广播
type Hub struct {
	logger     *zap.Logger
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	publish    chan publishRequest
	mu         sync.RWMutex

	onLocation LocationHandler
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		publish:    make(chan publishRequest, 256),
	}
}

// SetLocationHandler 设置位置上报回调
func (h *Hub) SetLocationHandler(handler LocationHandler) {
	h.onLocation = handler
}

// Run 运行 Hub
// 房间成员变更和广播都在这个 goroutine 里处理，单车广播顺序即 publish 调用顺序
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("WebSocket client connected",
				zap.String("client_id", client.id),
				zap.Int("total_clients", h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.leaveAllLocked(client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket client disconnected",
				zap.String("client_id", client.id),
				zap.Int("total_clients", h.ClientCount()))

		case req := <-h.join:
			h.mu.Lock()
			if _, ok := h.clients[req.client]; ok {
				room := h.rooms[req.busNumber]
				if room == nil {
					room = make(map[*Client]bool)
					h.rooms[req.busNumber] = room
				}
				// 重复 join 幂等
				room[req.client] = true
			}
			h.mu.Unlock()
			h.logger.Debug("Client joined bus room",
				zap.String("client_id", req.client.id),
				zap.String("bus_number", req.busNumber))

		case req := <-h.publish:
			h.mu.RLock()
			room := h.rooms[req.busNumber]
			for client := range room {
				select {
				case client.send <- req.message:
				default:
					// 慢消费者，丢弃本条（at-most-once，无重放）
					h.logger.Warn("Dropping message for slow client",
						zap.String("client_id", client.id),
						zap.String("bus_number", req.busNumber))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// leaveAllLocked 把连接从所有房间移除，调用方持有写锁
func (h *Hub) leaveAllLocked(client *Client) {
	for busNumber, room := range h.rooms {
		if room[client] {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, busNumber)
			}
		}
	}
}

// Join 订阅某辆车的位置推送
func (h *Hub) Join(client *Client, busNumber string) {
	h.join <- joinRequest{client: client, busNumber: busNumber}
}

// PublishLocation 向订阅了该车的连接推送位置
// 实现 service.Publisher；落库结果不影响推送
func (h *Hub) PublishLocation(busNumber string, payload interface{}) {
	msg := Message{
		Type: MsgTypeBusLocation,
		Data: payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal bus location", zap.Error(err))
		return
	}

	h.publish <- publishRequest{busNumber: busNumber, message: data}
}

// ClientCount 获取客户端数量
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize 获取某辆车的订阅数
func (h *Hub) RoomSize(busNumber string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[busNumber])
}
