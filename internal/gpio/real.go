//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
// Lines are requested on first read and kept open until released.
type RealReader struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*requestedLine
}

type requestedLine struct {
	line *gpiocdev.Line
	bias Bias
}

// NewRealReader opens the named GPIO chip.
func NewRealReader(chip string) (*RealReader, error) {
	if chip == "" {
		chip = DefaultChip
	}
	c, err := gpiocdev.NewChip(chip, gpiocdev.WithConsumer("gpio-monitor"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealReader{
		chip:  c,
		lines: make(map[int]*requestedLine),
	}, nil
}

// requestOptions leaves the bias as-is when none is configured.
func requestOptions(b Bias) []gpiocdev.LineReqOption {
	switch b {
	case BiasUp:
		return []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	case BiasDown:
		return []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	}
	return []gpiocdev.LineReqOption{gpiocdev.AsInput}
}

// configOptions disables the bias when it is cleared on a requested line.
func configOptions(b Bias) []gpiocdev.LineConfigOption {
	switch b {
	case BiasUp:
		return []gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	case BiasDown:
		return []gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	}
	return []gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithBiasDisabled}
}

// Read returns the raw value of a line, requesting it as input with the
// given bias or reconfiguring it if the bias changed since the last read.
func (r *RealReader) Read(line int, bias Bias) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rl, ok := r.lines[line]
	if !ok {
		l, err := r.chip.RequestLine(line, requestOptions(bias)...)
		if err != nil {
			return 0, fmt.Errorf("request line %d: %w", line, err)
		}
		rl = &requestedLine{line: l, bias: bias}
		r.lines[line] = rl
	} else if rl.bias != bias {
		if err := rl.line.Reconfigure(configOptions(bias)...); err != nil {
			return 0, fmt.Errorf("reconfigure line %d: %w", line, err)
		}
		rl.bias = bias
	}

	v, err := rl.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read line %d: %w", line, err)
	}
	return v, nil
}

// Lines returns the offsets of all lines on the chip.
func (r *RealReader) Lines() ([]int, error) {
	r.mu.Lock()
	n := r.chip.Lines()
	r.mu.Unlock()
	lines := make([]int, n)
	for i := range lines {
		lines[i] = i
	}
	return lines, nil
}

// Release closes a line that is no longer monitored.
func (r *RealReader) Release(line int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.lines[line]
	if !ok {
		return nil
	}
	delete(r.lines, line)
	if err := rl.line.Close(); err != nil {
		return fmt.Errorf("close line %d: %w", line, err)
	}
	return nil
}

// Close releases GPIO resources.
// Requested lines are reconfigured to input with pull-down (matching Pi boot
// defaults) before closing to ensure clean state for system shutdown/reboot.
func (r *RealReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for offset, rl := range r.lines {
		if err := rl.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line %d: %w", offset, err))
		}
		if err := rl.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", offset, err))
		}
	}
	r.lines = make(map[int]*requestedLine)
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
