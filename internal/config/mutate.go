package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/logic"
)

// Validation errors returned by the mutators.
var (
	ErrInvalidLine      = errors.New("invalid line number")
	ErrInvalidThreshold = fmt.Errorf("thresholds must be between %d and %d", logic.MinThreshold, logic.MaxThreshold)
	ErrInvalidBias      = gpio.ErrInvalidBias
	ErrInvalidPort      = errors.New("port must be between 1 and 65535")
	ErrAlreadyMonitored = errors.New("line already monitored")
	ErrNotMonitored     = errors.New("line not monitored")
)

// ValidateThreshold checks a debounce threshold.
func ValidateThreshold(v int) error {
	if v < logic.MinThreshold || v > logic.MaxThreshold {
		return fmt.Errorf("%w: got %d", ErrInvalidThreshold, v)
	}
	return nil
}

func (c *Config) requireMonitored(line int) error {
	if !c.Monitors(line) {
		return fmt.Errorf("GPIO %d: %w", line, ErrNotMonitored)
	}
	return nil
}

func (c *Config) update(line int, fn func(*LineOptions)) {
	if c.Options == nil {
		c.Options = map[int]LineOptions{}
	}
	o := c.Options[line]
	fn(&o)
	if o.IsZero() {
		delete(c.Options, line)
		return
	}
	c.Options[line] = o
}

// AddLine starts monitoring a line.
func (c *Config) AddLine(line int) error {
	if line < 0 {
		return fmt.Errorf("GPIO %d: %w", line, ErrInvalidLine)
	}
	if c.Monitors(line) {
		return fmt.Errorf("GPIO %d: %w", line, ErrAlreadyMonitored)
	}
	c.Lines = append(c.Lines, line)
	sort.Ints(c.Lines)
	return nil
}

// RemoveLine stops monitoring a line and prunes its options.
func (c *Config) RemoveLine(line int) error {
	if err := c.requireMonitored(line); err != nil {
		return err
	}
	i := sort.SearchInts(c.Lines, line)
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	delete(c.Options, line)
	return nil
}

// ClearLines stops monitoring every line and drops all options.
func (c *Config) ClearLines() {
	c.Lines = []int{}
	c.Options = map[int]LineOptions{}
}

// SetBias sets the pull resistor of a monitored line. BiasNone clears it.
func (c *Config) SetBias(line int, b gpio.Bias) error {
	if b != gpio.BiasNone && b != gpio.BiasUp && b != gpio.BiasDown {
		return fmt.Errorf("%w: %q", ErrInvalidBias, string(b))
	}
	if err := c.requireMonitored(line); err != nil {
		return err
	}
	c.update(line, func(o *LineOptions) { o.Bias = b })
	return nil
}

// SetDebounce sets both debounce thresholds of a monitored line.
func (c *Config) SetDebounce(line, low, high int) error {
	if err := ValidateThreshold(low); err != nil {
		return err
	}
	if err := ValidateThreshold(high); err != nil {
		return err
	}
	if err := c.requireMonitored(line); err != nil {
		return err
	}
	c.update(line, func(o *LineOptions) {
		o.DebounceLow = low
		o.DebounceHigh = high
	})
	return nil
}

// ClearDebounce removes debouncing from a monitored line. It reports whether
// any threshold was configured.
func (c *Config) ClearDebounce(line int) (bool, error) {
	if err := c.requireMonitored(line); err != nil {
		return false, err
	}
	had := c.Options[line].Thresholds().Enabled()
	c.update(line, func(o *LineOptions) {
		o.DebounceLow = 0
		o.DebounceHigh = 0
	})
	return had, nil
}

// SetInverted flips the reported polarity of a monitored line.
func (c *Config) SetInverted(line int) error {
	if err := c.requireMonitored(line); err != nil {
		return err
	}
	c.update(line, func(o *LineOptions) { o.Inverted = true })
	return nil
}

// ClearInverted restores normal polarity. It reports whether the line was
// inverted.
func (c *Config) ClearInverted(line int) (bool, error) {
	if err := c.requireMonitored(line); err != nil {
		return false, err
	}
	had := c.Options[line].Inverted
	c.update(line, func(o *LineOptions) { o.Inverted = false })
	return had, nil
}

// SetPort sets the HTTP port.
func (c *Config) SetPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, port)
	}
	c.Port = port
	return nil
}
