package service

import (
	"sync"
	"time"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/models"
)

// SnapshotCache 每辆车的最新位置快照
// 覆盖按到达顺序进行，不看记录时间戳：服务端不做重排序
type SnapshotCache struct {
	mu        sync.RWMutex
	snapshots map[string]*models.Snapshot
}

// NewSnapshotCache 创建快照缓存
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		snapshots: make(map[string]*models.Snapshot),
	}
}

// Upsert 覆盖车辆快照
func (c *SnapshotCache) Upsert(tracker *models.Tracker) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record := *tracker
	c.snapshots[tracker.BusNumber] = &models.Snapshot{
		BusNumber: tracker.BusNumber,
		Latest:    &record,
		UpdatedAt: time.Now(),
	}
}

// Get 获取车辆快照
func (c *SnapshotCache) Get(busNumber string) (*models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[busNumber]
	if !ok {
		return nil, false
	}
	// 返回副本
	record := *snap.Latest
	return &models.Snapshot{
		BusNumber: snap.BusNumber,
		Latest:    &record,
		UpdatedAt: snap.UpdatedAt,
	}, true
}

// All 获取全部车辆快照
func (c *SnapshotCache) All() map[string]*models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshots := make(map[string]*models.Snapshot, len(c.snapshots))
	for busNumber, snap := range c.snapshots {
		record := *snap.Latest
		snapshots[busNumber] = &models.Snapshot{
			BusNumber: snap.BusNumber,
			Latest:    &record,
			UpdatedAt: snap.UpdatedAt,
		}
	}
	return snapshots
}
