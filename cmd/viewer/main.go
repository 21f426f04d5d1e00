package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/config"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/viewer"
)

// 终端版实时视图：和网页地图共用同一套对账引擎
func main() {
	var (
		serverURL = flag.String("server", "http://localhost:5000", "tracking server base url")
		wsURL     = flag.String("ws", "ws://localhost:5000/ws", "tracking server websocket url")
		busNumber = flag.String("bus", "01", "bus number to watch")
		listMode  = flag.Bool("list", false, "list mode: poll all bus snapshots instead of watching one bus")
		guest     = flag.Bool("guest", false, "guest mode: no server, fixed demo dataset")
		debug     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if *debug || cfg.Debug {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 信号即停
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	if *listMode {
		runList(ctx, cfg, *serverURL)
		return
	}

	opts := viewer.Options{
		PollInterval:      cfg.PollIntervalMap,
		BackgroundRefresh: cfg.BackgroundRefresh,
		LoadingTimeout:    cfg.LoadingTimeout,
		FetchTimeout:      cfg.FetchTimeout,
		StaleAfter:        5 * time.Minute,
		BatchSize:         10,
	}

	var (
		fetcher viewer.Fetcher
		stream  *viewer.StreamClient
	)
	if *guest || cfg.GuestMode {
		// 演示模式：不连通道，固定数据集
		fetcher = viewer.DemoDataset()
	} else {
		fetcher = viewer.NewHTTPFetcher(*serverURL)
		stream = viewer.NewStreamClient(logger, *wsURL, *busNumber, cfg.ReconnectAttempts, cfg.ReconnectDelay)
	}

	engine := viewer.NewEngine(logger, *busNumber, fetcher, stream, opts)
	engine.SetStateChangeHook(func(from, to string) {
		fmt.Printf("[%s] %s -> %s\n", *busNumber, from, to)
	})
	engine.Start(ctx)
	defer engine.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			record := engine.Current()
			if record == nil {
				fmt.Printf("[%s] %-16s %s\n", *busNumber, engine.State(), engine.Display())
				continue
			}
			fmt.Printf("[%s] %-16s %s (%.4f, %.4f)\n",
				*busNumber, engine.State(), engine.Display(), record.Latitude, record.Longitude)
		}
	}
}

// runList 列表视图：低频轮询全量快照，一行一辆车
func runList(ctx context.Context, cfg *config.Config, serverURL string) {
	fetcher := viewer.NewHTTPFetcher(serverURL)

	ticker := time.NewTicker(cfg.PollIntervalList)
	defer ticker.Stop()

	printSnapshots(ctx, cfg, fetcher)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printSnapshots(ctx, cfg, fetcher)
		}
	}
}

func printSnapshots(ctx context.Context, cfg *config.Config, fetcher *viewer.HTTPFetcher) {
	fetchCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()

	snapshots, err := fetcher.Snapshots(fetchCtx)
	if err != nil {
		fmt.Printf("fetch snapshots: %v\n", err)
		return
	}
	if len(snapshots) == 0 {
		fmt.Println("no buses reporting")
		return
	}

	busNumbers := make([]string, 0, len(snapshots))
	for busNumber := range snapshots {
		busNumbers = append(busNumbers, busNumber)
	}
	sort.Strings(busNumbers)

	now := time.Now()
	for _, busNumber := range busNumbers {
		record := snapshots[busNumber]
		status, text := viewer.Resolve(&record, now, 5*time.Minute)
		fmt.Printf("[%s] %-16s %s (%.4f, %.4f)\n",
			busNumber, status, text, record.Latitude, record.Longitude)
	}
}
