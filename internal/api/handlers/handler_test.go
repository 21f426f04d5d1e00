package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/repository"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/internal/service"
	"github.com/rajeshkumar8523/ICB-Tracking-Website-sub000/pkg/ws"
)

type testEnv struct {
	server *httptest.Server
	hub    *ws.Hub
	stores struct {
		tracker *repository.MemoryTrackerStore
		bus     *repository.MemoryBusStore
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{}
	env.stores.tracker = repository.NewMemoryTrackerStore()
	env.stores.bus = repository.NewMemoryBusStore()

	logger := zap.NewNop()
	env.hub = ws.NewHub(logger)
	go env.hub.Run()

	cache := service.NewSnapshotCache()
	ingest := service.NewIngest(logger, env.stores.tracker, cache, env.hub)

	handler := NewHandler(logger, env.stores.bus, env.stores.tracker, ingest, cache, env.hub, "memory")

	router := gin.New()
	handler.RegisterRoutes(router)

	env.server = httptest.NewServer(router)
	t.Cleanup(env.server.Close)
	return env
}

func (env *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
}

func (env *testEnv) postJSON(t *testing.T, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(env.server.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var parsed map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatal(err)
	}
	return resp, parsed
}

func (env *testEnv) getJSON(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var parsed map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatal(err)
	}
	return resp, parsed
}

func waitForRoom(t *testing.T, hub *ws.Hub, busNumber string, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for hub.RoomSize(busNumber) != want {
		select {
		case <-deadline:
			t.Fatalf("room %q never reached size %d", busNumber, want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCreateAndFetchTracker(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postJSON(t, "/api/trackers", `{"busNumber":"01","latitude":16.70,"longitude":77.94,"speed":25}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if body["status"] != "success" {
		t.Fatalf("body = %v", body)
	}

	resp, body = env.getJSON(t, "/api/trackers/01?limit=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	trackers := body["data"].(map[string]interface{})["trackers"].([]interface{})
	if len(trackers) != 1 {
		t.Fatalf("got %d trackers, want 1", len(trackers))
	}
	first := trackers[0].(map[string]interface{})
	if first["latitude"].(float64) != 16.70 || first["longitude"].(float64) != 77.94 {
		t.Errorf("unexpected tracker: %v", first)
	}
}

func TestCreateTrackerValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing latitude", `{"busNumber":"01","longitude":77.94}`},
		{"missing bus number", `{"latitude":16.70,"longitude":77.94}`},
		{"non-numeric latitude", `{"busNumber":"01","latitude":"north","longitude":77.94}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.postJSON(t, "/api/trackers", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if body["status"] != "fail" {
				t.Errorf("body = %v", body)
			}
		})
	}

	// 校验失败不产生存储记录
	trackers, _ := env.stores.tracker.LatestByBus(nil, "01", 10)
	if len(trackers) != 0 {
		t.Errorf("got %d stored records, want 0", len(trackers))
	}
}

func TestTrackerHistoryRange(t *testing.T) {
	env := newTestEnv(t)

	base := time.Now().Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		env.postJSON(t, "/api/trackers", `{"busNumber":"01","latitude":16.70,"longitude":77.94,"timestamp":"`+ts+`"}`)
	}

	start := base.Add(30 * time.Minute).Format(time.RFC3339)
	end := base.Add(150 * time.Minute).Format(time.RFC3339)
	resp, body := env.getJSON(t, "/api/trackers/history/01?startDate="+start+"&endDate="+end)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	trackers := body["data"].(map[string]interface{})["trackers"].([]interface{})
	if len(trackers) != 2 {
		t.Fatalf("got %d trackers, want 2", len(trackers))
	}

	resp, _ = env.getJSON(t, "/api/trackers/history/01?startDate=yesterday")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad startDate: status = %d, want 400", resp.StatusCode)
	}
}

func TestRestToWebSocketRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ws.Message{Type: ws.MsgTypeJoinBus, Data: "01"}); err != nil {
		t.Fatal(err)
	}
	waitForRoom(t, env.hub, "01", 1)

	// REST 上报要实时送达订阅了这辆车的连接
	env.postJSON(t, "/api/trackers", `{"busNumber":"01","latitude":16.70,"longitude":77.94}`)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != ws.MsgTypeBusLocation {
		t.Fatalf("type = %q, want busLocation", msg.Type)
	}

	var loc struct {
		BusNumber string  `json:"busNumber"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(msg.Data, &loc); err != nil {
		t.Fatal(err)
	}
	if loc.BusNumber != "01" || loc.Latitude != 16.70 || loc.Longitude != 77.94 {
		t.Errorf("unexpected event: %+v", loc)
	}
}

func TestWebSocketLocationUpdateIngested(t *testing.T) {
	env := newTestEnv(t)

	reporter, _, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reporter.Close()

	watcher, _, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	if err := watcher.WriteJSON(ws.Message{Type: ws.MsgTypeJoinBus, Data: map[string]string{"busNumber": "05"}}); err != nil {
		t.Fatal(err)
	}
	waitForRoom(t, env.hub, "05", 1)

	// 推送通道上报和 REST 走同一条接收路径
	update := ws.Message{
		Type: ws.MsgTypeLocationUpdate,
		Data: map[string]interface{}{"busNumber": "05", "latitude": 16.71, "longitude": 77.95},
	}
	if err := reporter.WriteJSON(update); err != nil {
		t.Fatal(err)
	}

	watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := watcher.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != ws.MsgTypeBusLocation {
		t.Fatalf("type = %q, want busLocation", msg.Type)
	}

	// 落库也要发生，reporterId 标记为上报连接
	deadline := time.After(2 * time.Second)
	for {
		trackers, _ := env.stores.tracker.LatestByBus(nil, "05", 1)
		if len(trackers) == 1 {
			if trackers[0].ReporterID == "" {
				t.Error("expected reporterId from the push connection")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("tracker never persisted")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWebSocketInvalidUpdateRejected(t *testing.T) {
	env := newTestEnv(t)

	reporter, _, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reporter.Close()

	update := ws.Message{
		Type: ws.MsgTypeLocationUpdate,
		Data: map[string]interface{}{"busNumber": "05", "longitude": 77.95},
	}
	if err := reporter.WriteJSON(update); err != nil {
		t.Fatal(err)
	}

	// 校验失败只回给上报方 error 消息
	reporter.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
	}
	if err := reporter.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != ws.MsgTypeError {
		t.Fatalf("type = %q, want error", msg.Type)
	}

	trackers, _ := env.stores.tracker.LatestByBus(nil, "05", 10)
	if len(trackers) != 0 {
		t.Errorf("got %d stored records, want 0", len(trackers))
	}
}

func TestBusCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postJSON(t, "/api/buses", `{"busNumber":"01","route":"Campus - Station","driverName":"R. Kumar"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	resp, body := env.getJSON(t, "/api/buses/01")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	bus := body["data"].(map[string]interface{})["bus"].(map[string]interface{})
	if bus["route"] != "Campus - Station" {
		t.Errorf("route = %v", bus["route"])
	}

	resp, _ = env.getJSON(t, "/api/buses/404")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPatch, env.server.URL+"/api/buses/01", strings.NewReader(`{"currentStatus":"maintenance"}`))
	req.Header.Set("Content-Type", "application/json")
	patchResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer patchResp.Body.Close()
	if patchResp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, want 200", patchResp.StatusCode)
	}

	_, body = env.getJSON(t, "/api/buses/01")
	bus = body["data"].(map[string]interface{})["bus"].(map[string]interface{})
	if bus["currentStatus"] != "maintenance" {
		t.Errorf("currentStatus = %v", bus["currentStatus"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.getJSON(t, "/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" || body["database"] != "memory" {
		t.Errorf("body = %v", body)
	}
}

func TestSnapshotListing(t *testing.T) {
	env := newTestEnv(t)

	env.postJSON(t, "/api/trackers", `{"busNumber":"01","latitude":1,"longitude":1}`)
	env.postJSON(t, "/api/trackers", `{"busNumber":"02","latitude":2,"longitude":2}`)
	env.postJSON(t, "/api/trackers", `{"busNumber":"01","latitude":3,"longitude":3}`)

	resp, body := env.getJSON(t, "/api/trackers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	snapshots := body["data"].(map[string]interface{})["snapshots"].(map[string]interface{})
	if len(snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snapshots))
	}
	latest := snapshots["01"].(map[string]interface{})["latest"].(map[string]interface{})
	if latest["latitude"].(float64) != 3 {
		t.Errorf("snapshot for 01 not overwritten by last arrival: %v", latest)
	}
}
