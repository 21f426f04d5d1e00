package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// 状态机事件常量
const (
	EventRecordsArrived   = "records_arrived"
	EventNoRecords        = "no_records"
	EventLoadingTimeout   = "loading_timeout"
	EventWentStale        = "went_stale"
	EventTransportLost    = "transport_lost"
	EventInvalidTimestamp = "invalid_timestamp"
	EventClockSkew        = "clock_skew"
	EventFailure          = "failure"
)

// Options 观察端刷新策略
type Options struct {
	PollInterval      time.Duration // 通道断开时的轮询间隔
	BackgroundRefresh time.Duration // 无条件后台对账间隔（推送是 at-most-once，这是唯一的正确性兜底）
	LoadingTimeout    time.Duration // 初始加载超时
	FetchTimeout      time.Duration // 单次拉取超时
	StaleAfter        time.Duration // 超过该时长视为过旧
	BatchSize         int           // 初始批量拉取条数
}

// DefaultOptions 地图页默认策略
func DefaultOptions() Options {
	return Options{
		PollInterval:      10 * time.Second,
		BackgroundRefresh: 120 * time.Second,
		LoadingTimeout:    15 * time.Second,
		FetchTimeout:      10 * time.Second,
		StaleAfter:        5 * time.Minute,
		BatchSize:         10,
	}
}

// Engine 单辆车的观察端对账引擎
// 推送优先：通道在线时靠推送事件刷新，断开后退化为固定间隔轮询；
// 后台对账不看通道状态，始终低频跑，补回丢掉的推送
type Engine struct {
	logger    *zap.Logger
	busNumber string
	fetcher   Fetcher
	stream    *StreamClient // nil 表示演示模式，完全不连通道
	opts      Options

	mu          sync.RWMutex
	fsm         *fsm.FSM
	current     *Record
	display     string
	transportUp bool

	updates chan Record
	connCh  chan bool
	cancel  context.CancelFunc

	onChange func(from, to string)
}

// NewEngine 创建对账引擎
func NewEngine(logger *zap.Logger, busNumber string, fetcher Fetcher, stream *StreamClient, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}

	e := &Engine{
		logger:    logger,
		busNumber: busNumber,
		fetcher:   fetcher,
		stream:    stream,
		opts:      opts,
		updates:   make(chan Record, 16),
		connCh:    make(chan bool, 4),
	}

	e.fsm = fsm.NewFSM(
		StateLoading,
		fsm.Events{
			{Name: EventRecordsArrived, Src: []string{StateLoading, StateActive, StateStale, StateOffline, StateNoData, StateInvalidData, StateTimeSyncIssue}, Dst: StateActive},
			{Name: EventNoRecords, Src: []string{StateLoading}, Dst: StateNoData},
			{Name: EventLoadingTimeout, Src: []string{StateLoading}, Dst: StateError},
			{Name: EventWentStale, Src: []string{StateActive}, Dst: StateStale},
			{Name: EventTransportLost, Src: []string{StateActive, StateStale}, Dst: StateOffline},
			{Name: EventInvalidTimestamp, Src: []string{StateLoading, StateActive, StateStale, StateOffline}, Dst: StateInvalidData},
			{Name: EventClockSkew, Src: []string{StateLoading, StateActive, StateStale, StateOffline, StateNoData, StateInvalidData}, Dst: StateTimeSyncIssue},
			{Name: EventFailure, Src: []string{StateLoading, StateActive, StateStale, StateOffline, StateNoData, StateInvalidData, StateTimeSyncIssue}, Dst: StateError},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, ev *fsm.Event) {
				if ev.Src != ev.Dst && e.onChange != nil {
					e.onChange(ev.Src, ev.Dst)
				}
			},
		},
	)

	return e
}

// SetStateChangeHook 状态切换回调（界面层/测试用）
func (e *Engine) SetStateChangeHook(hook func(from, to string)) {
	e.onChange = hook
}

// Start 启动引擎
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	if e.stream != nil {
		e.stream.SetCallbacks(StreamCallbacks{
			OnRecord: func(record Record) {
				select {
				case e.updates <- record:
				default:
					// 引擎处理不过来时丢最新一条，下次后台对账补回
				}
			},
			OnConnect: func() {
				e.notifyTransport(true)
			},
			OnDisconnect: func(error) {
				e.notifyTransport(false)
			},
			OnFallback: func() {
				e.notifyTransport(false)
			},
		})
		e.stream.Start(ctx)
	}

	go e.run(ctx)
}

// Close 停止引擎，释放定时器和通道
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.stream != nil {
		e.stream.Stop()
	}
}

// State 当前展示状态
func (e *Engine) State() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fsm.Current()
}

// Display 当前展示文本
func (e *Engine) Display() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.display
}

// Current 当前记录
func (e *Engine) Current() *Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil
	}
	record := *e.current
	return &record
}

// TransportConnected 推送通道是否在线
func (e *Engine) TransportConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transportUp
}

func (e *Engine) run(ctx context.Context) {
	loadingTimer := time.NewTimer(e.opts.LoadingTimeout)
	defer loadingTimer.Stop()

	poll := time.NewTicker(e.opts.PollInterval)
	defer poll.Stop()

	background := time.NewTicker(e.opts.BackgroundRefresh)
	defer background.Stop()

	// 打开视图先批量拉一次
	e.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case record := <-e.updates:
			e.apply(ctx, &record)

		case up := <-e.connCh:
			e.setTransport(ctx, up)

		case <-loadingTimer.C:
			e.mu.Lock()
			if e.fsm.Current() == StateLoading {
				e.fsm.Event(ctx, EventLoadingTimeout)
				e.display = "Loading timed out"
				e.logger.Warn("Viewer loading timed out",
					zap.String("bus_number", e.busNumber))
			}
			e.mu.Unlock()

		case <-poll.C:
			// 通道在线时推送就是事实来源，只重算展示状态，不额外轮询
			if e.TransportConnected() {
				e.reresolve(ctx)
			} else {
				e.refresh(ctx)
			}

		case <-background.C:
			// 无条件对账
			e.refresh(ctx)
		}
	}
}

// refresh 拉取最新批次并套用最新一条
func (e *Engine) refresh(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	defer cancel()

	records, err := e.fetcher.LatestByBus(fetchCtx, e.busNumber, e.opts.BatchSize)
	if err != nil {
		// 拉取失败本地消化：loading 超时定时器或下个周期兜底
		e.logger.Warn("Viewer fetch failed",
			zap.String("bus_number", e.busNumber),
			zap.Error(err))
		return
	}

	if len(records) == 0 {
		e.mu.Lock()
		if e.fsm.Can(EventNoRecords) {
			e.fsm.Event(ctx, EventNoRecords)
			e.display = "No data available"
		}
		e.mu.Unlock()
		return
	}

	SortLatestFirst(records)
	e.apply(ctx, &records[0])
}

// apply 套用一条记录并驱动状态机
func (e *Engine) apply(ctx context.Context, record *Record) {
	status, text := Resolve(record, time.Now(), e.opts.StaleAfter)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.current = record
	e.display = text

	switch status {
	case StateInvalidData:
		if e.fsm.Can(EventInvalidTimestamp) {
			e.fsm.Event(ctx, EventInvalidTimestamp)
		}
	case StateTimeSyncIssue:
		// 未来时间戳：记录保留但不算活跃
		if e.fsm.Can(EventClockSkew) {
			e.fsm.Event(ctx, EventClockSkew)
		}
	case StateStale:
		if e.fsm.Can(EventRecordsArrived) {
			e.fsm.Event(ctx, EventRecordsArrived)
		}
		if e.fsm.Can(EventWentStale) {
			e.fsm.Event(ctx, EventWentStale)
		}
	default:
		if e.fsm.Can(EventRecordsArrived) {
			e.fsm.Event(ctx, EventRecordsArrived)
		}
	}
}

// reresolve 不拉新数据，按当前时间重算状态（active 会随时间流逝退化为 stale）
func (e *Engine) reresolve(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return
	}

	status, text := Resolve(e.current, time.Now(), e.opts.StaleAfter)
	e.display = text

	if status == StateStale && e.fsm.Can(EventWentStale) {
		e.fsm.Event(ctx, EventWentStale)
	}
}

// notifyTransport 回调线程向 run loop 传递通道状态，引擎停了也不阻塞
func (e *Engine) notifyTransport(up bool) {
	select {
	case e.connCh <- up:
	default:
	}
}

func (e *Engine) setTransport(ctx context.Context, up bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.transportUp = up
	if !up && e.fsm.Can(EventTransportLost) {
		e.fsm.Event(ctx, EventTransportLost)
	}
}
