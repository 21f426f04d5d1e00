package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/models"
)

// TrackerRepository 位置记录仓库 (PostgreSQL)
type TrackerRepository struct {
	db *DB
}

// NewTrackerRepository 创建位置记录仓库
func NewTrackerRepository(db *DB) *TrackerRepository {
	return &TrackerRepository{db: db}
}

// Create 创建位置记录
func (r *TrackerRepository) Create(ctx context.Context, tracker *models.Tracker) error {
	query := `
		INSERT INTO trackers (bus_number, latitude, longitude, speed, direction, reporter_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		tracker.BusNumber,
		tracker.Latitude,
		tracker.Longitude,
		tracker.Speed,
		tracker.Direction,
		tracker.ReporterID,
		tracker.RecordedAt,
	).Scan(&tracker.ID)

	if err != nil {
		return fmt.Errorf("insert tracker: %w", err)
	}
	return nil
}

// LatestByBus 获取车辆最新 limit 条位置记录（时间倒序）
func (r *TrackerRepository) LatestByBus(ctx context.Context, busNumber string, limit int) ([]*models.Tracker, error) {
	query := `
		SELECT id, bus_number, latitude, longitude, speed, direction, reporter_id, recorded_at
		FROM trackers WHERE bus_number = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, busNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("query latest trackers: %w", err)
	}
	defer rows.Close()

	return scanTrackers(rows)
}

func scanTrackers(rows pgx.Rows) ([]*models.Tracker, error) {
	var trackers []*models.Tracker
	for rows.Next() {
		t := &models.Tracker{}
		err := rows.Scan(
			&t.ID,
			&t.BusNumber,
			&t.Latitude,
			&t.Longitude,
			&t.Speed,
			&t.Direction,
			&t.ReporterID,
			&t.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tracker: %w", err)
		}
		trackers = append(trackers, t)
	}
	return trackers, nil
}

// HistoryByBus 获取时间区间内的位置记录（时间正序）
func (r *TrackerRepository) HistoryByBus(ctx context.Context, busNumber string, start, end time.Time) ([]*models.Tracker, error) {
	query := `
		SELECT id, bus_number, latitude, longitude, speed, direction, reporter_id, recorded_at
		FROM trackers WHERE bus_number = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at
	`
	rows, err := r.db.Pool.Query(ctx, query, busNumber, start, end)
	if err != nil {
		return nil, fmt.Errorf("query tracker history: %w", err)
	}
	defer rows.Close()

	return scanTrackers(rows)
}
