package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/pkg/ws"
)

// Waypoint 路线上的一个点
type Waypoint struct {
	Latitude  float64
	Longitude float64
}

// DefaultRoute 校园环线演示路线
func DefaultRoute() []Waypoint {
	return []Waypoint{
		{16.7050, 77.9420},
		{16.7083, 77.9447},
		{16.7122, 77.9515},
		{16.7098, 77.9561},
		{16.7031, 77.9533},
		{16.6987, 77.9468},
	}
}

// Simulator 模拟追踪器
// 沿固定路线循环行驶，按固定间隔通过推送通道上报位置
type Simulator struct {
	logger    *zap.Logger
	url       string
	busNumber string
	route     []Waypoint
	interval  time.Duration
	speed     float64 // km/h

	maxAttempts    int
	reconnectDelay time.Duration
}

// New 创建模拟器
func New(logger *zap.Logger, url, busNumber string, route []Waypoint, interval time.Duration, speed float64) *Simulator {
	if len(route) == 0 {
		route = DefaultRoute()
	}
	return &Simulator{
		logger:         logger,
		url:            url,
		busNumber:      busNumber,
		route:          route,
		interval:       interval,
		speed:          speed,
		maxAttempts:    5,
		reconnectDelay: 1500 * time.Millisecond,
	}
}

// Run 运行模拟器直到 ctx 结束或重连耗尽
func (s *Simulator) Run(ctx context.Context) error {
	attempts := 0
	step := 0

	for {
		conn, err := s.connect(ctx)
		if err != nil {
			attempts++
			if attempts >= s.maxAttempts {
				return fmt.Errorf("connect simulator: %w", err)
			}
			s.logger.Warn("Simulator reconnecting",
				zap.Int("attempt", attempts),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.reconnectDelay):
			}
			continue
		}
		attempts = 0

		err = s.report(ctx, conn, &step)
		conn.Close()
		if err == nil {
			return nil
		}
		s.logger.Warn("Simulator connection lost", zap.Error(err))
	}
}

func (s *Simulator) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	s.logger.Info("Simulator connected",
		zap.String("bus_number", s.busNumber))
	return conn, nil
}

// report 沿路线逐点上报，连接出错返回以触发重连
func (s *Simulator) report(ctx context.Context, conn *websocket.Conn, step *int) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			from := s.route[*step%len(s.route)]
			to := s.route[(*step+1)%len(s.route)]
			direction := bearing(from, to)

			msg := ws.Message{
				Type: ws.MsgTypeLocationUpdate,
				Data: map[string]interface{}{
					"busNumber": s.busNumber,
					"latitude":  from.Latitude,
					"longitude": from.Longitude,
					"speed":     s.speed,
					"direction": direction,
				},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return fmt.Errorf("send location: %w", err)
			}

			s.logger.Debug("Simulator reported position",
				zap.String("bus_number", s.busNumber),
				zap.Float64("latitude", from.Latitude),
				zap.Float64("longitude", from.Longitude))

			*step++
		}
	}
}

// bearing 两点间的航向角（度，0=正北）
func bearing(from, to Waypoint) float64 {
	lat1 := from.Latitude * math.Pi / 180
	lat2 := to.Latitude * math.Pi / 180
	dLng := (to.Longitude - from.Longitude) * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
