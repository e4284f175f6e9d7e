package monitor

import (
	"errors"
	"fmt"
	"log"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/gpio"
)

var (
	// ErrUnavailable is returned when a line is not present on this board.
	ErrUnavailable = errors.New("line not available")
	// ErrReserved is returned when adding a line with a special function
	// without confirmation.
	ErrReserved = errors.New("line has a reserved function, confirmation required")
)

// edit applies fn to the stored configuration, persists it and reloads.
func (m *Monitor) edit(fn func(c *config.Config) error) error {
	m.editMu.Lock()
	defer m.editMu.Unlock()

	cfg, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	if err := m.store.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	if err := m.Reload(); err != nil {
		log.Printf("edit: %v", err)
	}
	return nil
}

// AddLine starts monitoring a line. Lines with a reserved function need
// confirm set.
func (m *Monitor) AddLine(line int, confirm bool) error {
	if line < 0 {
		return fmt.Errorf("GPIO %d: %w", line, config.ErrInvalidLine)
	}
	if !m.inv.IsAvailable(line) {
		return fmt.Errorf("GPIO %d: %w", line, ErrUnavailable)
	}
	if fn, ok := gpio.ReservedFunctions[line]; ok && !confirm {
		return fmt.Errorf("GPIO %d (%s): %w", line, fn, ErrReserved)
	}
	return m.edit(func(c *config.Config) error { return c.AddLine(line) })
}

// RemoveLine stops monitoring a line.
func (m *Monitor) RemoveLine(line int) error {
	return m.edit(func(c *config.Config) error { return c.RemoveLine(line) })
}

// ClearLines stops monitoring every line.
func (m *Monitor) ClearLines() error {
	return m.edit(func(c *config.Config) error {
		c.ClearLines()
		return nil
	})
}

// SetBias sets the pull resistor of a line: "up", "down" or "none".
func (m *Monitor) SetBias(line int, mode string) error {
	b, err := gpio.ParseBias(mode)
	if err != nil {
		return err
	}
	return m.edit(func(c *config.Config) error { return c.SetBias(line, b) })
}

// SetDebounce sets the per-direction debounce thresholds of a line.
func (m *Monitor) SetDebounce(line, low, high int) error {
	return m.edit(func(c *config.Config) error { return c.SetDebounce(line, low, high) })
}

// ClearDebounce removes debouncing from a line and reports whether any was
// configured.
func (m *Monitor) ClearDebounce(line int) (bool, error) {
	var had bool
	err := m.edit(func(c *config.Config) error {
		var err error
		had, err = c.ClearDebounce(line)
		return err
	})
	return had, err
}

// SetInverted inverts the reported value of a line.
func (m *Monitor) SetInverted(line int) error {
	return m.edit(func(c *config.Config) error { return c.SetInverted(line) })
}

// ClearInverted restores normal polarity and reports whether the line was
// inverted.
func (m *Monitor) ClearInverted(line int) (bool, error) {
	var had bool
	err := m.edit(func(c *config.Config) error {
		var err error
		had, err = c.ClearInverted(line)
		return err
	})
	return had, err
}
