// Package logic contains the pure debounce logic for GPIO line state tracking.
// This package has NO external dependencies (no GPIO, network, OS, or time.Sleep).
// Time is always injectable via time.Time values.
package logic

import (
	"encoding/json"
	"fmt"
	"time"
)

// Window is the number of samples collected before a filtered transition
// is decided.
const Window = 10

// Threshold bounds.
const (
	MinThreshold = 1
	MaxThreshold = 10
)

// EventChange is the event type published for confirmed transitions.
const EventChange = "gpio_change"

// Thresholds are the per-direction debounce settings of a line.
// Low governs transitions into 0, High transitions into 1. Zero means absent.
type Thresholds struct {
	Low  int
	High int
}

// Enabled reports whether any filtering is configured.
func (t Thresholds) Enabled() bool {
	return t.Low > 0 || t.High > 0
}

// For returns the threshold governing a transition into target, or 0.
func (t Thresholds) For(target int) int {
	if target == 0 {
		return t.Low
	}
	return t.High
}

// Pending is an in-flight debounce window for one line.
type Pending struct {
	Samples []int
	From    int
	To      int
}

// Transition is a confirmed change of a line's physical state.
type Transition struct {
	From int
	To   int
	// Confidence is the number of window samples equal to To.
	// Zero for unfiltered transitions.
	Confidence int
}

// Filtered reports whether the transition went through a debounce window.
func (t Transition) Filtered() bool {
	return t.Confidence > 0
}

// ConfidenceString formats the confidence as "k/10", or "" when unfiltered.
func (t Transition) ConfidenceString() string {
	if !t.Filtered() {
		return ""
	}
	return fmt.Sprintf("%d/%d", t.Confidence, Window)
}

// Event is a reported state change of a line. State and Previous are
// reported values (inversion applied).
type Event struct {
	Type       string
	Pin        int
	State      int
	Previous   *int
	Timestamp  time.Time
	Confidence string
}

type eventJSON struct {
	Pin        int    `json:"pin"`
	State      int    `json:"state"`
	Previous   *int   `json:"previous,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Time       string `json:"time"`
	Confidence string `json:"confidence,omitempty"`
}

// MarshalJSON renders the event payload: epoch milliseconds plus a local
// wall-clock string for display.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		Pin:        e.Pin,
		State:      e.State,
		Previous:   e.Previous,
		Timestamp:  e.Timestamp.UnixMilli(),
		Time:       e.Timestamp.Local().Format("15:04:05.000"),
		Confidence: e.Confidence,
	})
}
