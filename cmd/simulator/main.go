package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/sim"
)

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:5000/ws", "tracking server websocket url")
		busNumber = flag.String("bus", "01", "bus number to simulate")
		interval  = flag.Duration("interval", 3*time.Second, "report interval")
		speed     = flag.Float64("speed", 30, "simulated speed in km/h")
		debug     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	var logger *zap.Logger
	if *debug {
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

	simulator := sim.New(logger, *serverURL, *busNumber, sim.DefaultRoute(), *interval, *speed)

	logger.Info("Starting simulator",
		zap.String("server", *serverURL),
		zap.String("bus_number", *busNumber))

	if err := simulator.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}
}
