package viewer

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestStreamFallsBackAfterBoundedRetries(t *testing.T) {
	// 没有服务端在听：每次拨号都失败，重试必须有界并以回退收场
	client := NewStreamClient(zap.NewNop(), "ws://127.0.0.1:1/ws", "01", 3, 10*time.Millisecond)

	fallback := make(chan struct{})
	disconnects := 0
	client.SetCallbacks(StreamCallbacks{
		OnDisconnect: func(error) { disconnects++ },
		OnFallback:   func() { close(fallback) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	select {
	case <-fallback:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never gave up retrying")
	}

	if disconnects != 3 {
		t.Errorf("disconnect callbacks = %d, want 3", disconnects)
	}
	if client.IsConnected() {
		t.Error("client must not report connected")
	}
}

func TestStreamStopIsIdempotent(t *testing.T) {
	client := NewStreamClient(zap.NewNop(), "ws://127.0.0.1:1/ws", "01", 1, time.Millisecond)
	client.Stop()
	client.Stop()
}
