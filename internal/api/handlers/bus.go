package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/models"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/repository"
)

// ListBuses 获取车辆列表
// GET /api/buses
func (h *Handler) ListBuses(c *gin.Context) {
	buses, err := h.busStore.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list buses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to list buses",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": len(buses),
		"data":    gin.H{"buses": buses},
	})
}

// GetBus 获取车辆详情
// GET /api/buses/:busNumber
func (h *Handler) GetBus(c *gin.Context) {
	busNumber := c.Param("busNumber")

	bus, err := h.busStore.GetByNumber(c.Request.Context(), busNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "fail",
				"message": "Bus not found",
			})
			return
		}
		h.logger.Error("Failed to get bus", zap.Error(err), zap.String("bus_number", busNumber))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to get bus",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"bus": bus},
	})
}

// CreateBus 创建车辆
// POST /api/buses
func (h *Handler) CreateBus(c *gin.Context) {
	var bus models.Bus
	if err := c.ShouldBindJSON(&bus); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "fail",
			"message": err.Error(),
		})
		return
	}
	if bus.BusNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "fail",
			"message": "busNumber is required",
		})
		return
	}

	if err := h.busStore.Create(c.Request.Context(), &bus); err != nil {
		h.logger.Error("Failed to create bus", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to create bus",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   gin.H{"bus": bus},
	})
}

// UpdateBus 更新车辆元数据
// PATCH /api/buses/:busNumber
func (h *Handler) UpdateBus(c *gin.Context) {
	busNumber := c.Param("busNumber")

	existing, err := h.busStore.GetByNumber(c.Request.Context(), busNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "fail",
				"message": "Bus not found",
			})
			return
		}
		h.logger.Error("Failed to get bus", zap.Error(err), zap.String("bus_number", busNumber))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to get bus",
		})
		return
	}

	var patch struct {
		Route         *string `json:"route"`
		DriverName    *string `json:"driverName"`
		ContactNumber *string `json:"contactNumber"`
		CurrentStatus *string `json:"currentStatus"`
	}
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "fail",
			"message": err.Error(),
		})
		return
	}

	if patch.Route != nil {
		existing.Route = *patch.Route
	}
	if patch.DriverName != nil {
		existing.DriverName = *patch.DriverName
	}
	if patch.ContactNumber != nil {
		existing.ContactNumber = *patch.ContactNumber
	}
	if patch.CurrentStatus != nil {
		existing.CurrentStatus = *patch.CurrentStatus
	}

	if err := h.busStore.Update(c.Request.Context(), existing); err != nil {
		h.logger.Error("Failed to update bus", zap.Error(err), zap.String("bus_number", busNumber))
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to update bus",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"bus": existing},
	})
}
