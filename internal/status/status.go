// Package status provides a thread-safe status tracker for the gpio-monitor
// daemon. It receives every confirmed transition as a sink and is read by
// the HTTP status endpoint and the MQTT lifecycle events.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/gpio-monitor/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	WatchMs     int64
	HeartbeatMs int64
	Driver      string
	ConfigPath  string
	Broker      string
	HTTPAddr    string
}

// Line is the tracked state of one monitored line.
type Line struct {
	State      int
	Known      bool // false until the line has been initialized
	Rises      int
	Falls      int
	LastChange time.Time
	Confidence string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Lines         map[int]Line
	Monitored     []int
	EventCount    int
	LastEvent     *logic.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Lines:     make(map[int]Line),
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Publish records a confirmed transition. It never fails.
func (t *Tracker) Publish(e logic.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.snap.Lines[e.Pin]
	l.State = e.State
	l.Known = true
	if e.State == 1 {
		l.Rises++
	} else {
		l.Falls++
	}
	l.LastChange = e.Timestamp
	l.Confidence = e.Confidence
	t.snap.Lines[e.Pin] = l
	t.snap.EventCount++
	last := e
	t.snap.LastEvent = &last
	return nil
}

// Update sets the monitored lines and their current states. Lines no
// longer monitored are forgotten together with their counters.
func (t *Tracker) Update(states map[int]int, monitored []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keep := make(map[int]bool, len(monitored))
	for _, line := range monitored {
		keep[line] = true
		l := t.snap.Lines[line]
		if s, ok := states[line]; ok {
			l.State = s
			l.Known = true
		} else {
			l.Known = false
		}
		t.snap.Lines[line] = l
	}
	for line := range t.snap.Lines {
		if !keep[line] {
			delete(t.snap.Lines, line)
		}
	}
	t.snap.Monitored = append([]int(nil), monitored...)
	sort.Ints(t.snap.Monitored)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Lines = make(map[int]Line, len(t.snap.Lines))
	for k, v := range t.snap.Lines {
		s.Lines[k] = v
	}
	s.Monitored = append([]int(nil), t.snap.Monitored...)
	if t.snap.LastEvent != nil {
		last := *t.snap.LastEvent
		s.LastEvent = &last
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
