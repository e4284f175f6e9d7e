// Package gpio provides GPIO input reading with hardware abstraction.
// The real implementations use the Linux GPIO character device or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Raw line levels.
const (
	Low  = 0
	High = 1
)

// Bias is the pull resistor hint applied when sampling a line.
type Bias string

const (
	BiasNone Bias = ""
	BiasUp   Bias = "up"
	BiasDown Bias = "down"
)

// ErrInvalidBias is returned by ParseBias for unknown modes.
var ErrInvalidBias = errors.New("bias must be 'up', 'down', or 'none'")

// ParseBias converts a user supplied mode into a Bias.
// "none" clears the bias.
func ParseBias(mode string) (Bias, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "up":
		return BiasUp, nil
	case "down":
		return BiasDown, nil
	case "none":
		return BiasNone, nil
	}
	return BiasNone, fmt.Errorf("%w: %q", ErrInvalidBias, mode)
}

func (b Bias) String() string {
	if b == BiasNone {
		return "none"
	}
	return "pull-" + string(b)
}

// Reader samples single GPIO lines.
type Reader interface {
	// Read returns the raw level (Low or High) of a line.
	// Any failure, including a timeout, is returned as an error.
	Read(line int, bias Bias) (int, error)

	// Close releases GPIO resources.
	Close() error
}

// Lister is implemented by readers that can enumerate the lines present
// on the hardware.
type Lister interface {
	Lines() ([]int, error)
}

// Releaser is implemented by readers that hold per-line resources.
type Releaser interface {
	Release(line int) error
}

// DefaultLines is used when hardware discovery is unavailable
// (BCM GPIO2..GPIO27 on a Raspberry Pi header).
var DefaultLines = func() []int {
	lines := make([]int, 0, 26)
	for l := 2; l <= 27; l++ {
		lines = append(lines, l)
	}
	return lines
}()

// ReservedFunctions lists lines (BCM numbering) with an alternate hardware
// function. Monitoring them is allowed but may not work while the function
// is in use.
var ReservedFunctions = map[int]string{
	0:  "ID_SD (HAT EEPROM)",
	1:  "ID_SC (HAT EEPROM)",
	2:  "SDA1 (I2C)",
	3:  "SCL1 (I2C)",
	14: "TXD0 (UART)",
	15: "RXD0 (UART)",
}

// Inventory is the static line metadata of the host.
type Inventory struct {
	Available []int
	Reserved  map[int]string
}

// IsAvailable reports whether the line was found on the hardware.
func (inv Inventory) IsAvailable(line int) bool {
	i := sort.SearchInts(inv.Available, line)
	return i < len(inv.Available) && inv.Available[i] == line
}

// Discover builds the inventory from the reader when it can list its lines,
// falling back to DefaultLines.
func Discover(r Reader) (Inventory, error) {
	inv := Inventory{Reserved: ReservedFunctions}
	l, ok := r.(Lister)
	if !ok {
		inv.Available = append([]int(nil), DefaultLines...)
		return inv, nil
	}
	lines, err := l.Lines()
	if err != nil || len(lines) == 0 {
		inv.Available = append([]int(nil), DefaultLines...)
		if err == nil {
			err = errors.New("no lines reported")
		}
		return inv, fmt.Errorf("discover lines: %w", err)
	}
	sorted := append([]int(nil), lines...)
	sort.Ints(sorted)
	inv.Available = sorted
	return inv, nil
}
