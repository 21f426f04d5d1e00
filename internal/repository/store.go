package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/models"
)

// ErrNotFound 查询对象不存在
var ErrNotFound = errors.New("not found")

// TrackerStore 位置记录存储
// 核心逻辑只依赖该接口，durable (pgx) 与 in-memory 两套实现启动时二选一
type TrackerStore interface {
	// Create 追加一条位置记录
	Create(ctx context.Context, tracker *models.Tracker) error
	// LatestByBus 返回最新 limit 条记录，按时间倒序
	LatestByBus(ctx context.Context, busNumber string, limit int) ([]*models.Tracker, error)
	// HistoryByBus 返回时间区间内的记录，按时间正序
	HistoryByBus(ctx context.Context, busNumber string, start, end time.Time) ([]*models.Tracker, error)
}

// BusStore 车辆元数据存储
type BusStore interface {
	Create(ctx context.Context, bus *models.Bus) error
	GetByNumber(ctx context.Context, busNumber string) (*models.Bus, error)
	List(ctx context.Context) ([]*models.Bus, error)
	Update(ctx context.Context, bus *models.Bus) error
}
