package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/monitor"
	"github.com/sweeney/gpio-monitor/internal/sse"
	"github.com/sweeney/gpio-monitor/internal/status"
)

type fixture struct {
	ts      *httptest.Server
	srv     *Server
	mon     *monitor.Monitor
	reader  *gpio.FakeReader
	store   *config.MemoryStore
	broker  *sse.Broker
	tracker *status.Tracker
}

func newFixture(t *testing.T, lines ...int) *fixture {
	t.Helper()
	cfg := config.Default()
	for _, l := range lines {
		require.NoError(t, cfg.AddLine(l))
	}

	reader := gpio.NewFakeReader()
	for _, l := range gpio.DefaultLines {
		reader.Set(l, 0)
	}
	store := config.NewMemoryStore(cfg)
	broker := sse.NewBroker(sse.DefaultQueueSize)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := status.NewTracker(start, status.Config{
		PollMs:     100,
		Driver:     "gpiocdev",
		ConfigPath: config.DefaultPath,
		Broker:     "tcp://192.168.1.200:1883",
		HTTPAddr:   ":8787",
	})
	inv := gpio.Inventory{Available: gpio.DefaultLines, Reserved: gpio.ReservedFunctions}
	mon := monitor.New(store, reader, inv, monitor.Sinks{broker, tracker}, monitor.Options{
		Sleep: func(time.Duration) {},
	})
	require.NoError(t, mon.Reload())

	srv := New(":0", mon, broker, tracker)
	srv.keepAlive = 20 * time.Millisecond
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{ts: ts, srv: srv, mon: mon, reader: reader, store: store, broker: broker, tracker: tracker}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, f.ts.URL+path, strings.NewReader(body))
	} else {
		req, err = http.NewRequest(method, f.ts.URL+path, nil)
	}
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestListPins(t *testing.T) {
	f := newFixture(t, 17, 4)
	require.NoError(t, f.mon.SetDebounce(17, 3, 7))

	resp, err := http.Get(f.ts.URL + "/api/pins")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var pins PinsJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pins))

	assert.Equal(t, []int{4, 17}, pins.Monitored)
	assert.Len(t, pins.Available, len(gpio.DefaultLines))
	assert.Equal(t, "SDA1 (I2C)", pins.Reserved[2])
	assert.Equal(t, map[int]int{4: 0, 17: 0}, pins.States)
	assert.Equal(t, 3, pins.Config[17].DebounceLow)
	assert.Equal(t, 7, pins.Config[17].DebounceHigh)
	assert.NotContains(t, pins.Config, 4, "lines without options are omitted")
}

func TestPinState(t *testing.T) {
	f := newFixture(t, 17)

	resp, body := f.do(t, "GET", "/api/pins/17/state", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 17, body["pin"])
	assert.EqualValues(t, 0, body["state"])

	resp, body = f.do(t, "GET", "/api/pins/5/state", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Pin 5 not monitored", body["error"])

	resp, body = f.do(t, "GET", "/api/pins/abc/state", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid pin number", body["error"])
}

func TestAddPin(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "POST", "/api/pins/17", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Added GPIO 17 to monitoring", body["message"])
	assert.Equal(t, []interface{}{float64(17)}, body["monitored"])

	stored, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, []int{17}, stored.Lines, "change is persisted")

	_, ok := f.mon.VirtualState(17)
	assert.True(t, ok, "line is initialized before the response")

	resp, _ = f.do(t, "POST", "/api/pins/17", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = f.do(t, "POST", "/api/pins/99", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "POST", "/api/pins/x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddReservedPin(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, "POST", "/api/pins/14", "")
	assert.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
	assert.Contains(t, body["error"], "TXD0")
	assert.Empty(t, f.mon.Config().Lines)

	resp, body = f.do(t, "POST", "/api/pins/14?confirm=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GPIO 14 has special function: TXD0 (UART)", body["warning"])
	assert.Equal(t, []int{14}, f.mon.Config().Lines)
}

func TestRemoveAndClearPins(t *testing.T) {
	f := newFixture(t, 4, 17)

	resp, body := f.do(t, "DELETE", "/api/pins/4", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Removed GPIO 4 from monitoring", body["message"])
	_, ok := f.mon.VirtualState(4)
	assert.False(t, ok)

	resp, _ = f.do(t, "DELETE", "/api/pins/4", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, "DELETE", "/api/pins", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Cleared all monitored pins", body["message"])
	assert.Empty(t, f.mon.Config().Lines)
}

func TestSetPull(t *testing.T) {
	f := newFixture(t, 17)

	resp, body := f.do(t, "PUT", "/api/pins/17/pull", `{"mode":"up"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Set GPIO 17 to pull-up", body["message"])
	assert.Equal(t, gpio.BiasUp, f.mon.Config().OptionsFor(17).Bias)

	resp, body = f.do(t, "PUT", "/api/pins/17/pull", `{"mode":"none"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Removed pull resistor for GPIO 17", body["message"])

	resp, _ = f.do(t, "PUT", "/api/pins/17/pull", `{"mode":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "PUT", "/api/pins/17/pull", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, "PUT", "/api/pins/5/pull", `{"mode":"up"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDebounceEndpoints(t *testing.T) {
	f := newFixture(t, 17)

	resp, body := f.do(t, "PUT", "/api/pins/17/debounce", `{"low":3,"high":7}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Set GPIO 17 debouncing: LOW=3/10, HIGH=7/10", body["message"])

	tests := []struct {
		name string
		body string
	}{
		{"missing high", `{"low":3}`},
		{"string value", `{"low":"3","high":7}`},
		{"fraction", `{"low":3.5,"high":7}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, "PUT", "/api/pins/17/debounce", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "Both 'low' and 'high' must be integers", body["error"])
		})
	}

	resp, _ = f.do(t, "PUT", "/api/pins/17/debounce", `{"low":0,"high":7}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 3, f.mon.Config().OptionsFor(17).DebounceLow, "rejected change is not applied")

	resp, body = f.do(t, "DELETE", "/api/pins/17/debounce", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Removed debouncing from GPIO 17", body["message"])

	resp, body = f.do(t, "DELETE", "/api/pins/17/debounce", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GPIO 17 does not have debouncing configured", body["message"])
}

func TestInvertedEndpoints(t *testing.T) {
	f := newFixture(t, 17)

	resp, body := f.do(t, "PUT", "/api/pins/17/inverted", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Set GPIO 17 to inverted logic", body["message"])
	got, _ := f.mon.VirtualState(17)
	assert.Equal(t, 1, got, "physical 0 reads as 1 when inverted")

	resp, body = f.do(t, "DELETE", "/api/pins/17/inverted", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Removed inverted logic from GPIO 17", body["message"])

	resp, body = f.do(t, "DELETE", "/api/pins/17/inverted", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GPIO 17 does not have inverted logic configured", body["message"])

	resp, _ = f.do(t, "PUT", "/api/pins/5/inverted", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStoreFailureIsInternalError(t *testing.T) {
	f := newFixture(t, 17)
	f.store.SaveErr = assert.AnError

	resp, _ := f.do(t, "PUT", "/api/pins/17/inverted", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestPreflight(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, "OPTIONS", "/api/pins/17", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, 17)
	f.tracker.SetMQTTConnected(true)

	for _, path := range []string{"/api/status", "/index.json"} {
		resp, err := http.Get(f.ts.URL + path)
		require.NoError(t, err)

		var sj status.StatusJSON
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&sj))
		resp.Body.Close()

		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Equal(t, []int{17}, sj.Status.Monitored, path)
		require.Len(t, sj.Status.Lines, 1)
		require.NotNil(t, sj.Status.Lines[0].State)
		assert.Equal(t, 0, *sj.Status.Lines[0].State)
		assert.True(t, sj.Status.MQTT.Connected)
		assert.Equal(t, "gpiocdev", sj.Status.Config.Driver)
	}
}

func TestStatusEndpointWithoutTracker(t *testing.T) {
	f := newFixture(t)
	srv := New(":0", f.mon, f.broker, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "dashboard renders without a tracker")
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, 14, 17)
	require.NoError(t, f.mon.SetDebounce(17, 2, 9))

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(f.ts.URL + path)
		require.NoError(t, err)
		buf := new(strings.Builder)
		_, err = bufio.NewReader(resp.Body).WriteTo(buf)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
		page := buf.String()
		assert.Contains(t, page, `id="state-17"`)
		assert.Contains(t, page, "L2/H9")
		assert.Contains(t, page, "TXD0 (UART)")
		assert.Contains(t, page, `new EventSource("/events")`)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/nonexistent")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// sseReader reads named events and comments from a stream.
type sseReader struct {
	sc *bufio.Scanner
}

// next returns the next event name and data, or "comment" and its text.
func (r *sseReader) next(t *testing.T) (string, string) {
	t.Helper()
	var name, data string
	for r.sc.Scan() {
		line := r.sc.Text()
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, ": "):
			return "comment", strings.TrimPrefix(line, ": ")
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended: %v", r.sc.Err())
	return "", ""
}

func openStream(t *testing.T, f *fixture) (*sseReader, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, "GET", f.ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	return &sseReader{sc: bufio.NewScanner(resp.Body)}, func() {
		cancel()
		resp.Body.Close()
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, 17)
	stream, closeStream := openStream(t, f)
	defer closeStream()

	name, data := stream.next(t)
	require.Equal(t, "init", name)
	var first InitJSON
	require.NoError(t, json.Unmarshal([]byte(data), &first))
	assert.Equal(t, map[int]int{17: 0}, first.Pins)
	assert.Equal(t, []int{17}, first.Monitored)
	assert.NotZero(t, first.Timestamp)

	f.reader.Set(17, 1)
	events := f.mon.Tick()
	require.Len(t, events, 1)

	for {
		name, data = stream.next(t)
		if name != "comment" {
			break
		}
	}
	assert.Equal(t, "gpio_change", name)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.EqualValues(t, 17, got["pin"])
	assert.EqualValues(t, 1, got["state"])
	assert.EqualValues(t, 0, got["previous"])
	assert.NotContains(t, got, "confidence", "unfiltered events carry no confidence")
}

func TestEventStreamHeartbeat(t *testing.T) {
	f := newFixture(t)
	stream, closeStream := openStream(t, f)
	defer closeStream()

	name, _ := stream.next(t)
	require.Equal(t, "init", name)

	name, text := stream.next(t)
	assert.Equal(t, "comment", name)
	assert.Equal(t, "heartbeat", text)
}

func TestEventStreamUnsubscribesOnDisconnect(t *testing.T) {
	f := newFixture(t)
	stream, closeStream := openStream(t, f)
	stream.next(t)
	require.Equal(t, 1, f.broker.Len())

	closeStream()
	require.Eventually(t, func() bool { return f.broker.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestShutdownEndsStreams(t *testing.T) {
	f := newFixture(t)
	stream, closeStream := openStream(t, f)
	defer closeStream()
	stream.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.srv.Shutdown(ctx))

	require.Eventually(t, func() bool { return f.broker.Len() == 0 }, time.Second, 10*time.Millisecond)
}
