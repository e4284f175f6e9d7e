package gpio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Fail is a scripted sample that makes Read return ErrFakeRead.
const Fail = -1

// ErrFakeRead is returned for scripted failures.
var ErrFakeRead = errors.New("fake read failure")

// FakeReader is a test double that returns scripted per-line values.
// It is safe for concurrent use.
type FakeReader struct {
	mu sync.Mutex

	// samples holds the scripted values per line. Each call to Read consumes
	// the next value; when exhausted the last value is returned repeatedly.
	samples map[int][]int
	index   map[int]int

	// Available is returned by Lines. Nil means discovery is unsupported.
	Available []int

	// ReadError, if set, is returned by every Read.
	ReadError error

	// Reads counts reads per line.
	Reads map[int]int

	// Biases records the bias of the last read per line.
	Biases map[int]Bias

	// Released records lines passed to Release.
	Released []int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeReader creates a FakeReader with no scripted lines.
func NewFakeReader() *FakeReader {
	return &FakeReader{
		samples: make(map[int][]int),
		index:   make(map[int]int),
		Reads:   make(map[int]int),
		Biases:  make(map[int]Bias),
	}
}

// Script appends values to the line's sample queue.
func (f *FakeReader) Script(line int, values ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index[line] >= len(f.samples[line]) && len(f.samples[line]) > 0 {
		// Exhausted: drop the repeating tail so the new values come next.
		f.samples[line] = nil
		f.index[line] = 0
	}
	f.samples[line] = append(f.samples[line], values...)
}

// Set replaces the line's script with a single repeating value.
func (f *FakeReader) Set(line, value int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[line] = []int{value}
	f.index[line] = 0
}

// Read returns the next scripted value for the line.
func (f *FakeReader) Read(line int, bias Bias) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Reads[line]++
	f.Biases[line] = bias

	if f.ReadError != nil {
		return 0, f.ReadError
	}

	s := f.samples[line]
	if len(s) == 0 {
		return 0, fmt.Errorf("line %d: no samples configured", line)
	}

	i := f.index[line]
	if i >= len(s) {
		i = len(s) - 1
	} else {
		f.index[line] = i + 1
	}

	if s[i] == Fail {
		return 0, fmt.Errorf("line %d: %w", line, ErrFakeRead)
	}
	return s[i], nil
}

// Remaining reports how many scripted values are left unread for the line.
func (f *FakeReader) Remaining(line int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.samples[line]) - f.index[line]
	if n < 0 {
		return 0
	}
	return n
}

// ReadCount returns how many times the line was read.
func (f *FakeReader) ReadCount(line int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reads[line]
}

// LastBias returns the bias passed on the most recent read of the line.
func (f *FakeReader) LastBias(line int) Bias {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Biases[line]
}

// Lines returns Available, or an error when it is nil.
func (f *FakeReader) Lines() ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Available == nil {
		return nil, errors.New("fake: discovery disabled")
	}
	lines := append([]int(nil), f.Available...)
	sort.Ints(lines)
	return lines, nil
}

// Release records the released line.
func (f *FakeReader) Release(line int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Released = append(f.Released, line)
	return nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
