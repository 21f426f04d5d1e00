package viewer

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeFetcher struct {
	mu      sync.Mutex
	records []Record
	err     error
	calls   int
}

func (f *fakeFetcher) set(records []Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func (f *fakeFetcher) LatestByBus(_ context.Context, _ string, _ int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out, nil
}

func testOptions() Options {
	return Options{
		PollInterval:      30 * time.Millisecond,
		BackgroundRefresh: time.Hour,
		LoadingTimeout:    200 * time.Millisecond,
		FetchTimeout:      100 * time.Millisecond,
		StaleAfter:        5 * time.Minute,
		BatchSize:         10,
	}
}

func waitForState(t *testing.T, e *Engine, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %q, still %q", want, e.State())
		case <-time.After(5 * time.Millisecond):
			if e.State() == want {
				return
			}
		}
	}
}

func TestEngineLoadingToActive(t *testing.T) {
	fetcher := &fakeFetcher{records: []Record{
		{BusNumber: "01", Latitude: 16.7, Longitude: 77.9, Timestamp: time.Now().Add(-10 * time.Second).Format(time.RFC3339)},
	}}
	e := NewEngine(zap.NewNop(), "01", fetcher, nil, testOptions())
	e.Start(context.Background())
	defer e.Close()

	waitForState(t, e, StateActive)
	if e.Display() != "just now" {
		t.Errorf("display = %q, want %q", e.Display(), "just now")
	}
}

func TestEngineLoadingToNoData(t *testing.T) {
	fetcher := &fakeFetcher{}
	e := NewEngine(zap.NewNop(), "01", fetcher, nil, testOptions())
	e.Start(context.Background())
	defer e.Close()

	waitForState(t, e, StateNoData)
}

func TestEngineLoadingTimeout(t *testing.T) {
	// 拉取一直失败，加载超时后必须退出 loading，不能无限转圈
	fetcher := &fakeFetcher{err: context.DeadlineExceeded}
	opts := testOptions()
	opts.LoadingTimeout = 50 * time.Millisecond
	e := NewEngine(zap.NewNop(), "01", fetcher, nil, opts)
	e.Start(context.Background())
	defer e.Close()

	waitForState(t, e, StateError)
	if e.Display() != "Loading timed out" {
		t.Errorf("display = %q", e.Display())
	}
}

func TestEnginePollingPicksUpNewData(t *testing.T) {
	// 没有推送通道：轮询周期到了要自己拉新数据并刷新展示
	fetcher := &fakeFetcher{records: []Record{
		{BusNumber: "01", Latitude: 1, Longitude: 1, Timestamp: time.Now().Add(-10 * time.Second).Format(time.RFC3339)},
	}}
	e := NewEngine(zap.NewNop(), "01", fetcher, nil, testOptions())
	e.Start(context.Background())
	defer e.Close()

	waitForState(t, e, StateActive)

	fetcher.set([]Record{
		{BusNumber: "01", Latitude: 2, Longitude: 2, Timestamp: time.Now().Format(time.RFC3339)},
	})

	deadline := time.After(2 * time.Second)
	for {
		record := e.Current()
		if record != nil && record.Latitude == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("polling never picked up the new record")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEngineFutureTimestamp(t *testing.T) {
	fetcher := &fakeFetcher{records: []Record{
		{BusNumber: "01", Latitude: 1, Longitude: 1, Timestamp: time.Now().Add(time.Minute).Format(time.RFC3339)},
	}}
	e := NewEngine(zap.NewNop(), "01", fetcher, nil, testOptions())
	e.Start(context.Background())
	defer e.Close()

	waitForState(t, e, StateTimeSyncIssue)

	// 记录保留，只是不算活跃
	if e.Current() == nil {
		t.Error("record with future timestamp must be kept")
	}
}

func TestEngineStaleRecord(t *testing.T) {
	fetcher := &fakeFetcher{records: []Record{
		{BusNumber: "01", Latitude: 1, Longitude: 1, Timestamp: time.Now().Add(-2 * time.Hour).Format(time.RFC3339)},
	}}
	e := NewEngine(zap.NewNop(), "01", fetcher, nil, testOptions())
	e.Start(context.Background())
	defer e.Close()

	waitForState(t, e, StateStale)
	if e.Display() != "2 hours ago" {
		t.Errorf("display = %q, want %q", e.Display(), "2 hours ago")
	}
}

func TestEngineGuestModeNeverConnects(t *testing.T) {
	e := NewEngine(zap.NewNop(), "02", DemoDataset(), nil, testOptions())
	e.Start(context.Background())
	defer e.Close()

	waitForState(t, e, StateActive)
	if e.TransportConnected() {
		t.Error("guest mode must not report a connected transport")
	}
	record := e.Current()
	if record == nil || record.BusNumber != "02" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestEngineStateChangeHook(t *testing.T) {
	fetcher := &fakeFetcher{records: []Record{
		{BusNumber: "01", Latitude: 1, Longitude: 1, Timestamp: time.Now().Format(time.RFC3339)},
	}}
	e := NewEngine(zap.NewNop(), "01", fetcher, nil, testOptions())

	var mu sync.Mutex
	var transitions []string
	e.SetStateChangeHook(func(from, to string) {
		mu.Lock()
		transitions = append(transitions, from+">"+to)
		mu.Unlock()
	})

	e.Start(context.Background())
	defer e.Close()

	waitForState(t, e, StateActive)

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) == 0 || transitions[0] != StateLoading+">"+StateActive {
		t.Errorf("transitions = %v", transitions)
	}
}
