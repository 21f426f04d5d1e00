package models

import "time"

// Bus 公交车辆信息
type Bus struct {
	ID            int64     `json:"id" db:"id"`
	BusNumber     string    `json:"busNumber" db:"bus_number"`
	Route         string    `json:"route" db:"route"`
	DriverName    string    `json:"driverName,omitempty" db:"driver_name"`
	ContactNumber string    `json:"contactNumber,omitempty" db:"contact_number"`
	CurrentStatus string    `json:"currentStatus" db:"current_status"` // active, inactive, maintenance
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// Tracker 位置上报记录（只追加，入库后不再修改）
type Tracker struct {
	ID         int64     `json:"id" db:"id"`
	BusNumber  string    `json:"busNumber" db:"bus_number"`
	Latitude   float64   `json:"latitude" db:"latitude"`
	Longitude  float64   `json:"longitude" db:"longitude"`
	Speed      *float64  `json:"speed,omitempty" db:"speed"`         // km/h
	Direction  *float64  `json:"direction,omitempty" db:"direction"` // 航向角 (度)
	ReporterID string    `json:"reporterId,omitempty" db:"reporter_id"`
	RecordedAt time.Time `json:"timestamp" db:"recorded_at"`
}

// Snapshot 单车最新位置快照
// 以到达顺序覆盖：迟到但后到的记录仍然覆盖旧快照
type Snapshot struct {
	BusNumber string    `json:"busNumber"`
	Latest    *Tracker  `json:"latest"`
	UpdatedAt time.Time `json:"updatedAt"`
}
