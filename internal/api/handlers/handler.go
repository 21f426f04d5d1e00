package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/repository"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/service"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger       *zap.Logger
	busStore     repository.BusStore
	trackerStore repository.TrackerStore
	ingest       *service.Ingest
	cache        *service.SnapshotCache
	wsHub        *ws.Hub
	databaseMode string // postgres / memory
	upgrader     websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	busStore repository.BusStore,
	trackerStore repository.TrackerStore,
	ingest *service.Ingest,
	cache *service.SnapshotCache,
	wsHub *ws.Hub,
	databaseMode string,
) *Handler {
	h := &Handler{
		logger:       logger,
		busStore:     busStore,
		trackerStore: trackerStore,
		ingest:       ingest,
		cache:        cache,
		wsHub:        wsHub,
		databaseMode: databaseMode,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}

	// 推送通道上报走和 REST 相同的接收路径
	wsHub.SetLocationHandler(h.handleLocationMessage)

	return h
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// API 路由
	api := r.Group("/api")
	{
		// 位置上报与查询
		api.POST("/trackers", h.CreateTracker)
		api.GET("/trackers", h.ListSnapshots)
		api.GET("/trackers/history/:busNumber", h.GetTrackerHistory)
		api.GET("/trackers/:busNumber", h.GetLatestTrackers)

		// 车辆元数据
		api.GET("/buses", h.ListBuses)
		api.GET("/buses/:busNumber", h.GetBus)
		api.POST("/buses", h.CreateBus)
		api.PATCH("/buses/:busNumber", h.UpdateBus)

		// 健康检查
		api.GET("/status", h.Status)
	}

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	// 启动读写协程
	go client.ReadPump()
	go client.WritePump()
}

// handleLocationMessage 推送通道位置上报
// 校验失败只回给上报方 error 消息，不影响其它连接
func (h *Handler) handleLocationMessage(client *ws.Client, data json.RawMessage) {
	var report service.Report
	if err := json.Unmarshal(data, &report); err != nil {
		client.Send(ws.MsgTypeError, gin.H{"message": "invalid locationUpdate payload"})
		return
	}
	report.ReporterID = client.ID()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := h.ingest.Accept(ctx, &report)
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		client.Send(ws.MsgTypeError, gin.H{"message": vErr.Error()})
		return
	}
	// 落库失败已在 ingest 里记录，推送路径不回传 5xx
}

// Status 健康检查
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"database":  h.databaseMode,
		"wsClients": h.wsHub.ClientCount(),
	})
}
