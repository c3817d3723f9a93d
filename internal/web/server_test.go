package web

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *Server) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		IntervalMs:  5000,
		HeartbeatMs: 900000,
		OpenAboveF:  80,
		CloseBelowF: 77,
		Broker:      "tcp://192.168.1.200:1883",
		Prefix:      "greenhouse",
		HTTPAddr:    ":80",
	}
	tr := status.NewTracker(start, "boot-1", cfg)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "greenhouse_cycles_total 0\n")
	})
	srv := New(":0", tr, metrics)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, srv
}

func getStatus(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.Record(status.Cycle{
		State:   logic.State{HatchOpen: true, HatchPosition: 100, FanOn: true},
		FanOn:   true,
		Counter: 4,
		Counts:  logic.Counts{Opens: 1, Cycles: 5},
		Sample:  logic.Sample{Humidity: 40, TempC: 27.2, TempF: 81, LightRaw: 300},
	})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var sj status.StatusJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))

	assert.Equal(t, "OPEN", sj.Status.Hatch.State)
	assert.Equal(t, 100, sj.Status.Hatch.Position)
	assert.True(t, sj.Status.Fan.Output)
	assert.Equal(t, 4, sj.Status.Counter)
	assert.Equal(t, 1, sj.Status.Counts.Opens)
	assert.True(t, sj.Status.MQTT.Connected)
	assert.Equal(t, "tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	require.NotNil(t, sj.Status.Sample)
	assert.Equal(t, 81.0, sj.Status.Sample.TemperatureF)
	assert.Equal(t, 30, sj.Status.Sample.LightLevel)
	assert.Equal(t, int64(5000), sj.Status.Config.IntervalMs)
	assert.Equal(t, "boot-1", sj.Status.BootID)
}

func TestJSONBeforeFirstCycle(t *testing.T) {
	ts, _, _ := newTestServer(t)

	sj := getStatus(t, ts.URL)
	assert.Equal(t, "CLOSED", sj.Status.Hatch.State)
	assert.False(t, sj.Status.SensorOK)
	assert.Nil(t, sj.Status.Sample)
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getStatus(t, ts.URL)
	require.NotNil(t, sj.Status.Network)
	assert.Equal(t, "192.168.1.42", sj.Status.Network.IP)
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.Record(status.Cycle{
		State:  logic.State{HatchPosition: 10},
		Sample: logic.Sample{Humidity: 45, TempC: 25, TempF: 77.5, LightRaw: 800},
	})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "CLOSED")
	assert.Contains(t, string(body), "77.5")
	assert.Contains(t, string(body), "boot-1")
}

func TestHTMLSensorFailure(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.Record(status.Cycle{Marker: logic.MarkerSensorFailure})

	resp, err := http.Get(ts.URL + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "SENSOR_READ_FAILED")
	assert.Contains(t, string(body), "no reading yet")
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 404, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "greenhouse_cycles_total")
}

func TestMetricsUnroutedWhenNil(t *testing.T) {
	tr := status.NewTracker(time.Now(), "", status.Config{})
	ts := httptest.NewServer(New(":0", tr, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 404, resp.StatusCode)
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	sj1 := getStatus(t, ts.URL)
	assert.Equal(t, 0, sj1.Status.Counts.Cycles)

	tr.Record(status.Cycle{
		State:  logic.State{HatchOpen: true, HatchPosition: 100, FanOn: true},
		Counts: logic.Counts{Opens: 1, Cycles: 1},
		Sample: logic.Sample{TempF: 85},
	})
	tr.SetMQTTConnected(true)

	sj2 := getStatus(t, ts.URL)
	assert.Equal(t, "OPEN", sj2.Status.Hatch.State)
	assert.Equal(t, 1, sj2.Status.Counts.Cycles)
	assert.True(t, sj2.Status.MQTT.Connected)
}

func readStatus(t *testing.T, conn *websocket.Conn) status.StatusJSON {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(data, &sj))
	return sj
}

func TestWebsocketStreamsSnapshots(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readStatus(t, conn)
	assert.Equal(t, "CLOSED", first.Status.Hatch.State)

	tr.Record(status.Cycle{
		State:   logic.State{HatchOpen: true, HatchPosition: 100, FanOn: true},
		Counter: 9,
		Sample:  logic.Sample{TempF: 82},
	})

	next := readStatus(t, conn)
	assert.Equal(t, "OPEN", next.Status.Hatch.State)
	assert.Equal(t, 9, next.Status.Counter)
}

func TestWebsocketClosedOnShutdown(t *testing.T) {
	ts, _, srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readStatus(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestJSONUnencodableSample(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.Record(status.Cycle{
		Sample: logic.Sample{Humidity: 40, TempC: 27, TempF: 81, HeatIndexF: math.Inf(1)},
	})

	resp, err := http.Get(ts.URL + "/index.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
