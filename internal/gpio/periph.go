package gpio

import (
	"fmt"
	"sort"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphReader reads lines through the periph.io pin registry, addressing
// them by BCM number ("GPIO17").
type PeriphReader struct {
	mu   sync.Mutex
	pins map[int]pgpio.PinIO
}

// NewPeriphReader initialises the periph host drivers.
func NewPeriphReader() (*PeriphReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphReader{pins: make(map[int]pgpio.PinIO)}, nil
}

func periphPull(b Bias) pgpio.Pull {
	switch b {
	case BiasUp:
		return pgpio.PullUp
	case BiasDown:
		return pgpio.PullDown
	}
	return pgpio.PullNoChange
}

func (r *PeriphReader) pin(line int) (pgpio.PinIO, error) {
	if p, ok := r.pins[line]; ok {
		return p, nil
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", line))
	if p == nil {
		return nil, fmt.Errorf("line %d: no such pin", line)
	}
	r.pins[line] = p
	return p, nil
}

// Read configures the pin as input with the requested pull and samples it.
func (r *PeriphReader) Read(line int, bias Bias) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pin(line)
	if err != nil {
		return 0, err
	}
	if err := p.In(periphPull(bias), pgpio.NoEdge); err != nil {
		return 0, fmt.Errorf("line %d: set input: %w", line, err)
	}
	if p.Read() == pgpio.High {
		return High, nil
	}
	return Low, nil
}

// Lines returns the numbers of all GPIO pins known to the registry.
func (r *PeriphReader) Lines() ([]int, error) {
	var lines []int
	seen := make(map[int]bool)
	for _, p := range gpioreg.All() {
		n := p.Number()
		if n < 0 || seen[n] {
			continue
		}
		seen[n] = true
		lines = append(lines, n)
	}
	sort.Ints(lines)
	return lines, nil
}

// Release forgets the cached pin handle.
func (r *PeriphReader) Release(line int) error {
	r.mu.Lock()
	delete(r.pins, line)
	r.mu.Unlock()
	return nil
}

// Close is a no-op; periph keeps no per-process handles that need closing.
func (r *PeriphReader) Close() error {
	r.mu.Lock()
	r.pins = make(map[int]pgpio.PinIO)
	r.mu.Unlock()
	return nil
}
