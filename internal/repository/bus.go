package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/models"
)

// BusRepository 车辆元数据仓库 (PostgreSQL)
type BusRepository struct {
	db *DB
}

// NewBusRepository 创建车辆仓库
func NewBusRepository(db *DB) *BusRepository {
	return &BusRepository{db: db}
}

// Create 创建车辆
func (r *BusRepository) Create(ctx context.Context, bus *models.Bus) error {
	if bus.CurrentStatus == "" {
		bus.CurrentStatus = "active"
	}
	query := `
		INSERT INTO buses (bus_number, route, driver_name, contact_number, current_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		bus.BusNumber,
		bus.Route,
		bus.DriverName,
		bus.ContactNumber,
		bus.CurrentStatus,
	).Scan(&bus.ID, &bus.CreatedAt, &bus.UpdatedAt)

	if err != nil {
		return fmt.Errorf("insert bus: %w", err)
	}
	return nil
}

// GetByNumber 按车牌号获取车辆
func (r *BusRepository) GetByNumber(ctx context.Context, busNumber string) (*models.Bus, error) {
	query := `
		SELECT id, bus_number, route, driver_name, contact_number, current_status, created_at, updated_at
		FROM buses WHERE bus_number = $1
	`
	bus := &models.Bus{}
	err := r.db.Pool.QueryRow(ctx, query, busNumber).Scan(
		&bus.ID,
		&bus.BusNumber,
		&bus.Route,
		&bus.DriverName,
		&bus.ContactNumber,
		&bus.CurrentStatus,
		&bus.CreatedAt,
		&bus.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get bus: %w", err)
	}
	return bus, nil
}

// List 获取所有车辆
func (r *BusRepository) List(ctx context.Context) ([]*models.Bus, error) {
	query := `
		SELECT id, bus_number, route, driver_name, contact_number, current_status, created_at, updated_at
		FROM buses ORDER BY bus_number
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list buses: %w", err)
	}
	defer rows.Close()

	var buses []*models.Bus
	for rows.Next() {
		bus := &models.Bus{}
		err := rows.Scan(
			&bus.ID,
			&bus.BusNumber,
			&bus.Route,
			&bus.DriverName,
			&bus.ContactNumber,
			&bus.CurrentStatus,
			&bus.CreatedAt,
			&bus.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bus: %w", err)
		}
		buses = append(buses, bus)
	}

	return buses, nil
}

// Update 更新车辆元数据
func (r *BusRepository) Update(ctx context.Context, bus *models.Bus) error {
	bus.UpdatedAt = time.Now()
	query := `
		UPDATE buses SET route = $1, driver_name = $2, contact_number = $3, current_status = $4, updated_at = $5
		WHERE bus_number = $6
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		bus.Route,
		bus.DriverName,
		bus.ContactNumber,
		bus.CurrentStatus,
		bus.UpdatedAt,
		bus.BusNumber,
	)
	if err != nil {
		return fmt.Errorf("update bus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
