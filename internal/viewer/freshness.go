package viewer

import (
	"fmt"
	"sort"
	"time"
)

// 展示状态常量
const (
	StateLoading       = "loading"         // 初始加载中
	StateActive        = "active"          // 有新鲜数据
	StateStale         = "stale"           // 数据过旧
	StateNoData        = "no_data"         // 该车没有任何记录
	StateOffline       = "offline"         // 推送通道不可用，轮询兜底中
	StateInvalidData   = "invalid_data"    // 时间戳解析失败
	StateTimeSyncIssue = "time_sync_issue" // 时间戳在未来（时钟偏移）
	StateError         = "error"           // 加载超时或不可恢复错误
)

// Record 观察端视角的一条位置记录
// 时间戳保留原始字符串：上游数据可能带着解析不了的值，排序和状态判定要能容错
type Record struct {
	BusNumber string   `json:"busNumber"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     *float64 `json:"speed,omitempty"`
	Direction *float64 `json:"direction,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// When 解析记录时间戳
func (r *Record) When() (time.Time, bool) {
	return parseWhen(r.Timestamp)
}

func parseWhen(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SortLatestFirst 按时间倒序排序，时间戳无法解析的记录视为最旧排在末尾
func SortLatestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, iok := records[i].When()
		tj, jok := records[j].When()
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		return ti.After(tj)
	})
}

// FormatElapsed 把距现在的时长转成展示文本
func FormatElapsed(elapsed time.Duration) string {
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%d min ago", int(elapsed.Minutes()))
	default:
		return fmt.Sprintf("%d hours ago", int(elapsed.Hours()))
	}
}

// Resolve 根据记录时间戳判定展示状态和文本
// staleAfter 之内算 active；未来时间戳是时钟偏移，记录保留但不算活跃
func Resolve(record *Record, now time.Time, staleAfter time.Duration) (string, string) {
	when, ok := record.When()
	if !ok {
		return StateInvalidData, "Invalid timestamp"
	}
	if when.After(now) {
		return StateTimeSyncIssue, "Time sync issue"
	}

	elapsed := now.Sub(when)
	text := FormatElapsed(elapsed)
	if elapsed > staleAfter {
		return StateStale, text
	}
	return StateActive, text
}
