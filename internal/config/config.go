// Package config holds the monitoring configuration: which lines are watched
// and their per-line options, the JSON file store that persists it, and the
// optional daemon settings file.
package config

import (
	"sort"

	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/logic"
)

// DefaultPath is where the daemon and the control CLI keep the configuration.
const DefaultPath = "/etc/gpio-monitor/config.json"

// DefaultPort is the HTTP port used when the configuration does not set one.
const DefaultPort = 8787

// LineOptions is the per-line configuration.
type LineOptions struct {
	Bias         gpio.Bias `json:"pull,omitempty"`
	Inverted     bool      `json:"inverted,omitempty"`
	DebounceLow  int       `json:"debounce_low,omitempty"`
	DebounceHigh int       `json:"debounce_high,omitempty"`
}

// Thresholds returns the debounce settings in the form the debouncer uses.
func (o LineOptions) Thresholds() logic.Thresholds {
	return logic.Thresholds{Low: o.DebounceLow, High: o.DebounceHigh}
}

// IsZero reports whether no option is set.
func (o LineOptions) IsZero() bool {
	return o == LineOptions{}
}

// Config is the monitoring configuration.
// Options may hold entries for lines that are not monitored; they are ignored.
type Config struct {
	Port    int                 `json:"port,omitempty"`
	Lines   []int               `json:"monitored_pins"`
	Options map[int]LineOptions `json:"pin_config"`
}

// Default returns an empty configuration.
func Default() Config {
	return Config{
		Port:    DefaultPort,
		Lines:   []int{},
		Options: map[int]LineOptions{},
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := Config{
		Port:    c.Port,
		Lines:   append([]int{}, c.Lines...),
		Options: make(map[int]LineOptions, len(c.Options)),
	}
	for k, v := range c.Options {
		out.Options[k] = v
	}
	return out
}

// Monitors reports whether the line is monitored.
func (c Config) Monitors(line int) bool {
	i := sort.SearchInts(c.Lines, line)
	return i < len(c.Lines) && c.Lines[i] == line
}

// OptionsFor returns the options of a line (zero value when unset).
func (c Config) OptionsFor(line int) LineOptions {
	return c.Options[line]
}

// Normalize sorts and de-duplicates the monitored lines, drops negative ids,
// and clears thresholds outside [1, 10] and unknown bias values.
func (c *Config) Normalize() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Options == nil {
		c.Options = map[int]LineOptions{}
	}

	lines := make([]int, 0, len(c.Lines))
	seen := make(map[int]bool, len(c.Lines))
	for _, l := range c.Lines {
		if l < 0 || seen[l] {
			continue
		}
		seen[l] = true
		lines = append(lines, l)
	}
	sort.Ints(lines)
	c.Lines = lines

	for line, o := range c.Options {
		if ValidateThreshold(o.DebounceLow) != nil {
			o.DebounceLow = 0
		}
		if ValidateThreshold(o.DebounceHigh) != nil {
			o.DebounceHigh = 0
		}
		if o.Bias != gpio.BiasUp && o.Bias != gpio.BiasDown {
			o.Bias = gpio.BiasNone
		}
		c.Options[line] = o
	}
}
