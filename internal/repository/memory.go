package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/models"
)

// MemoryTrackerStore 内存位置记录存储
// 数据库不可达时的降级实现，语义与 TrackerRepository 一致
type MemoryTrackerStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string][]*models.Tracker // bus_number -> 按到达顺序追加
}

// NewMemoryTrackerStore 创建内存位置存储
func NewMemoryTrackerStore() *MemoryTrackerStore {
	return &MemoryTrackerStore{
		nextID:  1,
		records: make(map[string][]*models.Tracker),
	}
}

// Create 追加位置记录
func (s *MemoryTrackerStore) Create(_ context.Context, tracker *models.Tracker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracker.ID = s.nextID
	s.nextID++

	// 存副本，入库后外部修改不影响存储
	stored := *tracker
	s.records[tracker.BusNumber] = append(s.records[tracker.BusNumber], &stored)
	return nil
}

// LatestByBus 获取最新 limit 条记录（时间倒序）
func (s *MemoryTrackerStore) LatestByBus(_ context.Context, busNumber string, limit int) ([]*models.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.records[busNumber]
	sorted := make([]*models.Tracker, len(all))
	copy(sorted, all)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RecordedAt.Equal(sorted[j].RecordedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].RecordedAt.After(sorted[j].RecordedAt)
	})

	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}
	return copyTrackers(sorted), nil
}

// HistoryByBus 获取时间区间内的记录（时间正序）
func (s *MemoryTrackerStore) HistoryByBus(_ context.Context, busNumber string, start, end time.Time) ([]*models.Tracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Tracker
	for _, t := range s.records[busNumber] {
		if t.RecordedAt.Before(start) || t.RecordedAt.After(end) {
			continue
		}
		result = append(result, t)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt.Before(result[j].RecordedAt)
	})
	return copyTrackers(result), nil
}

func copyTrackers(in []*models.Tracker) []*models.Tracker {
	out := make([]*models.Tracker, len(in))
	for i, t := range in {
		c := *t
		out[i] = &c
	}
	return out
}

// MemoryBusStore 内存车辆元数据存储
type MemoryBusStore struct {
	mu     sync.RWMutex
	nextID int64
	buses  map[string]*models.Bus
}

// NewMemoryBusStore 创建内存车辆存储
func NewMemoryBusStore() *MemoryBusStore {
	return &MemoryBusStore{
		nextID: 1,
		buses:  make(map[string]*models.Bus),
	}
}

// Create 创建车辆
func (s *MemoryBusStore) Create(_ context.Context, bus *models.Bus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bus.CurrentStatus == "" {
		bus.CurrentStatus = "active"
	}
	bus.ID = s.nextID
	s.nextID++
	now := time.Now()
	bus.CreatedAt = now
	bus.UpdatedAt = now

	stored := *bus
	s.buses[bus.BusNumber] = &stored
	return nil
}

// GetByNumber 按车牌号获取车辆
func (s *MemoryBusStore) GetByNumber(_ context.Context, busNumber string) (*models.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bus, ok := s.buses[busNumber]
	if !ok {
		return nil, ErrNotFound
	}
	c := *bus
	return &c, nil
}

// List 获取所有车辆（按车牌号排序）
func (s *MemoryBusStore) List(_ context.Context) ([]*models.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buses := make([]*models.Bus, 0, len(s.buses))
	for _, bus := range s.buses {
		c := *bus
		buses = append(buses, &c)
	}
	sort.Slice(buses, func(i, j int) bool {
		return buses[i].BusNumber < buses[j].BusNumber
	})
	return buses, nil
}

// Update 更新车辆元数据
func (s *MemoryBusStore) Update(_ context.Context, bus *models.Bus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.buses[bus.BusNumber]
	if !ok {
		return ErrNotFound
	}

	existing.Route = bus.Route
	existing.DriverName = bus.DriverName
	existing.ContactNumber = bus.ContactNumber
	existing.CurrentStatus = bus.CurrentStatus
	existing.UpdatedAt = time.Now()
	bus.ID = existing.ID
	bus.UpdatedAt = existing.UpdatedAt
	return nil
}
