package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/service"
)

// CreateTracker 接收位置上报
// POST /api/trackers
func (h *Handler) CreateTracker(c *gin.Context) {
	var report service.Report
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "fail",
			"message": err.Error(),
		})
		return
	}
	if report.ReporterID == "" {
		report.ReporterID = c.ClientIP()
	}

	tracker, err := h.ingest.Accept(c.Request.Context(), &report)
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "fail",
				"message": vErr.Error(),
			})
			return
		}

		// 落库失败：记录已广播，但请求方需要知道持久化没成功
		h.logger.Error("Tracker accepted but not persisted", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to save tracker data",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   gin.H{"tracker": tracker},
	})
}

// GetLatestTrackers 获取车辆最新 N 条位置
// GET /api/trackers/:busNumber?limit=N
func (h *Handler) GetLatestTrackers(c *gin.Context) {
	busNumber := c.Param("busNumber")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}

	trackers, err := h.trackerStore.LatestByBus(c.Request.Context(), busNumber, limit)
	if err != nil {
		h.logger.Error("Failed to list trackers", zap.Error(err), zap.String("bus_number", busNumber))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to list trackers",
		})
		return
	}

	// 无记录是明确的"暂无数据"，不是错误
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": len(trackers),
		"data":    gin.H{"trackers": trackers},
	})
}

// GetTrackerHistory 获取时间区间内的位置记录
// GET /api/trackers/history/:busNumber?startDate=...&endDate=...
func (h *Handler) GetTrackerHistory(c *gin.Context) {
	busNumber := c.Param("busNumber")

	end := time.Now()
	start := end.Add(-24 * time.Hour)

	if v := c.Query("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "fail",
				"message": "startDate must be RFC3339",
			})
			return
		}
		start = t
	}
	if v := c.Query("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "fail",
				"message": "endDate must be RFC3339",
			})
			return
		}
		end = t
	}

	trackers, err := h.trackerStore.HistoryByBus(c.Request.Context(), busNumber, start, end)
	if err != nil {
		h.logger.Error("Failed to query tracker history", zap.Error(err), zap.String("bus_number", busNumber))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to query tracker history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": len(trackers),
		"data":    gin.H{"trackers": trackers},
	})
}

// ListSnapshots 获取全部车辆最新快照（列表页一次拉全量）
// GET /api/trackers
func (h *Handler) ListSnapshots(c *gin.Context) {
	snapshots := h.cache.All()
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": len(snapshots),
		"data":    gin.H{"snapshots": snapshots},
	})
}
