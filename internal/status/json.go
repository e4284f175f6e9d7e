package status

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/sweeney/gpio-monitor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Monitored     []int        `json:"monitored"`
	Lines         []LineJSON   `json:"pins"`
	EventCount    int          `json:"event_count"`
	LastEvent     *logic.Event `json:"last_event,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// LineJSON is the JSON representation of one line.
type LineJSON struct {
	Pin        int    `json:"pin"`
	State      *int   `json:"state"` // null until initialized
	Rises      int    `json:"rises"`
	Falls      int    `json:"falls"`
	LastChange string `json:"last_change,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	WatchMs     int64  `json:"watch_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Driver      string `json:"driver"`
	ConfigPath  string `json:"config_path"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildLines(snap Snapshot) []LineJSON {
	pins := make([]int, 0, len(snap.Lines))
	for pin := range snap.Lines {
		pins = append(pins, pin)
	}
	sort.Ints(pins)

	out := make([]LineJSON, 0, len(pins))
	for _, pin := range pins {
		l := snap.Lines[pin]
		lj := LineJSON{Pin: pin, Rises: l.Rises, Falls: l.Falls, Confidence: l.Confidence}
		if l.Known {
			s := l.State
			lj.State = &s
		}
		if !l.LastChange.IsZero() {
			lj.LastChange = l.LastChange.UTC().Format(time.RFC3339)
		}
		out = append(out, lj)
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	monitored := snap.Monitored
	if monitored == nil {
		monitored = []int{}
	}
	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Monitored:     monitored,
		Lines:         buildLines(snap),
		EventCount:    snap.EventCount,
		LastEvent:     snap.LastEvent,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			WatchMs:     snap.Config.WatchMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Driver:      snap.Config.Driver,
			ConfigPath:  snap.Config.ConfigPath,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
