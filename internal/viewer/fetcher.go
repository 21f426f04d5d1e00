package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Fetcher 初始批量拉取和轮询兜底共用的数据源
type Fetcher interface {
	LatestByBus(ctx context.Context, busNumber string, limit int) ([]Record, error)
}

// HTTPFetcher 走 REST 接口的数据源
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher 创建 REST 数据源
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// LatestByBus 拉取车辆最新 limit 条记录
// 超时由调用方的 ctx 控制，请求挂住不会卡死观察端的刷新节奏
func (f *HTTPFetcher) LatestByBus(ctx context.Context, busNumber string, limit int) ([]Record, error) {
	url := fmt.Sprintf("%s/api/trackers/%s?limit=%d", f.baseURL, busNumber, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch trackers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch trackers: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
		Data   struct {
			Trackers []Record `json:"trackers"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode trackers: %w", err)
	}

	return body.Data.Trackers, nil
}

// Snapshots 拉取全部车辆的最新快照（列表视图用）
func (f *HTTPFetcher) Snapshots(ctx context.Context) (map[string]Record, error) {
	url := f.baseURL + "/api/trackers"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshots: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshots: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
		Data   struct {
			Snapshots map[string]struct {
				Latest Record `json:"latest"`
			} `json:"snapshots"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode snapshots: %w", err)
	}

	records := make(map[string]Record, len(body.Data.Snapshots))
	for busNumber, snap := range body.Data.Snapshots {
		records[busNumber] = snap.Latest
	}
	return records, nil
}

// FixedDataset 固定演示数据集
// 演示/离线模式的数据源：不连任何通道，每次返回同一组记录
type FixedDataset struct {
	records []Record
}

// NewFixedDataset 创建固定数据源
func NewFixedDataset(records []Record) *FixedDataset {
	return &FixedDataset{records: records}
}

// DemoDataset 内置的演示数据
func DemoDataset() *FixedDataset {
	now := time.Now()
	speed := 28.0
	return NewFixedDataset([]Record{
		{BusNumber: "01", Latitude: 16.7050, Longitude: 77.9420, Speed: &speed, Timestamp: now.Add(-30 * time.Second).Format(time.RFC3339)},
		{BusNumber: "02", Latitude: 16.7122, Longitude: 77.9515, Timestamp: now.Add(-4 * time.Minute).Format(time.RFC3339)},
		{BusNumber: "03", Latitude: 16.6987, Longitude: 77.9368, Timestamp: now.Add(-2 * time.Hour).Format(time.RFC3339)},
	})
}

// LatestByBus 返回该车的演示记录
func (f *FixedDataset) LatestByBus(_ context.Context, busNumber string, limit int) ([]Record, error) {
	var result []Record
	for _, r := range f.records {
		if r.BusNumber == busNumber {
			result = append(result, r)
		}
	}
	SortLatestFirst(result)
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}
