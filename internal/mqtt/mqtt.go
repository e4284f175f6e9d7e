// Package mqtt publishes line state changes and daemon lifecycle events to
// an MQTT broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/gpio-monitor/internal/logic"
)

// DefaultTopic is the default topic prefix.
const DefaultTopic = "gpio-monitor"

// Topics derives the topic names from a prefix.
type Topics struct {
	Base string
}

// Events is the topic for every confirmed transition.
func (t Topics) Events() string {
	return t.base() + "/events"
}

// State is the retained topic holding the latest state of one line.
func (t Topics) State(pin int) string {
	return fmt.Sprintf("%s/pins/%d/state", t.base(), pin)
}

// System is the topic for lifecycle events (startup, shutdown, heartbeat).
func (t Topics) System() string {
	return t.base() + "/system"
}

func (t Topics) base() string {
	if t.Base == "" {
		return DefaultTopic
	}
	return t.Base
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a line event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the message published on the events topic.
type Payload struct {
	GPIO GPIOPayload `json:"gpio"`
}

// GPIOPayload contains the transition details.
type GPIOPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Pin        int    `json:"pin"`
	State      int    `json:"state"`
	Previous   *int   `json:"previous,omitempty"`
	Confidence string `json:"confidence,omitempty"`
}

// FormatPayload creates the JSON payload for a line event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		GPIO: GPIOPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:      event.Type,
			Pin:        event.Pin,
			State:      event.State,
			Previous:   event.Previous,
			Confidence: event.Confidence,
		},
	}
	return json.Marshal(payload)
}

// StatePayload is the retained per-line message.
type StatePayload struct {
	Pin       int    `json:"pin"`
	State     int    `json:"state"`
	Timestamp string `json:"timestamp"`
}

// FormatStatePayload creates the retained state payload for a line event.
func FormatStatePayload(event logic.Event) ([]byte, error) {
	return json.Marshal(StatePayload{
		Pin:       event.Pin,
		State:     event.State,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
