package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/models"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/repository"
)

// ValidationError 字段校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Coord 经纬度坐标值
// 兼容旧客户端：接受 JSON 数字和数字字符串（"16.70"），其余一律拒绝
type Coord struct {
	Value float64
	Set   bool
}

// UnmarshalJSON 实现宽松数值解析
func (c *Coord) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return fmt.Errorf("parse coordinate %q: %w", str, err)
		}
		c.Value = v
		c.Set = true
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("parse coordinate: %w", err)
	}
	c.Value = v
	c.Set = true
	return nil
}

// MarshalJSON 按数字输出
func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value)
}

// Report 位置上报载荷，REST 与推送通道共用
type Report struct {
	BusNumber  string     `json:"busNumber"`
	Latitude   *Coord     `json:"latitude"`
	Longitude  *Coord     `json:"longitude"`
	Speed      *float64   `json:"speed"`
	Direction  *float64   `json:"direction"`
	Timestamp  *time.Time `json:"timestamp"`
	ReporterID string     `json:"-"`
}

// Publisher 接受记录后的实时广播出口
type Publisher interface {
	PublishLocation(busNumber string, payload interface{})
}

// Ingest 上报接收服务
// 两个入口（REST、推送通道）都走同一条校验/落库/广播路径
type Ingest struct {
	logger    *zap.Logger
	store     repository.TrackerStore
	cache     *SnapshotCache
	publisher Publisher
}

// NewIngest 创建上报服务
func NewIngest(logger *zap.Logger, store repository.TrackerStore, cache *SnapshotCache, publisher Publisher) *Ingest {
	return &Ingest{
		logger:    logger,
		store:     store,
		cache:     cache,
		publisher: publisher,
	}
}

// Accept 校验并接收一条位置上报
// 校验失败返回 *ValidationError，不落库也不广播。
// 校验通过后必广播且只广播一次；落库失败不阻塞广播，错误返回给调用方决定是否上抛。
func (s *Ingest) Accept(ctx context.Context, report *Report) (*models.Tracker, error) {
	if err := validateReport(report); err != nil {
		return nil, err
	}

	recordedAt := time.Now()
	if report.Timestamp != nil && !report.Timestamp.IsZero() {
		// 模拟器/回填客户端自带时间戳，按原样接受
		recordedAt = *report.Timestamp
	}

	tracker := &models.Tracker{
		BusNumber:  report.BusNumber,
		Latitude:   report.Latitude.Value,
		Longitude:  report.Longitude.Value,
		Speed:      report.Speed,
		Direction:  report.Direction,
		ReporterID: report.ReporterID,
		RecordedAt: recordedAt,
	}

	storeErr := s.store.Create(ctx, tracker)
	if storeErr != nil {
		// 实时可见性优先于持久化
		s.logger.Error("Failed to persist tracker, publishing anyway",
			zap.Error(storeErr),
			zap.String("bus_number", tracker.BusNumber))
	}

	s.cache.Upsert(tracker)
	s.publisher.PublishLocation(tracker.BusNumber, tracker)

	if storeErr != nil {
		return tracker, fmt.Errorf("store tracker: %w", storeErr)
	}
	return tracker, nil
}

// Snapshot 获取车辆最新快照
func (s *Ingest) Snapshot(busNumber string) (*models.Snapshot, bool) {
	return s.cache.Get(busNumber)
}

func validateReport(report *Report) error {
	if strings.TrimSpace(report.BusNumber) == "" {
		return &ValidationError{Field: "busNumber", Message: "busNumber is required"}
	}
	if report.Latitude == nil || !report.Latitude.Set {
		return &ValidationError{Field: "latitude", Message: "latitude is required"}
	}
	if report.Longitude == nil || !report.Longitude.Set {
		return &ValidationError{Field: "longitude", Message: "longitude is required"}
	}
	if !isFinite(report.Latitude.Value) {
		return &ValidationError{Field: "latitude", Message: "latitude must be a finite number"}
	}
	if !isFinite(report.Longitude.Value) {
		return &ValidationError{Field: "longitude", Message: "longitude must be a finite number"}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
