package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultReadTimeout bounds a single line read.
const DefaultReadTimeout = 150 * time.Millisecond

// ErrTimeout is returned when a read does not complete in time.
var ErrTimeout = errors.New("gpio: read timeout")

// TimeoutReader bounds every Read of the wrapped reader.
// A read that outlives the timeout keeps running in the background; until it
// returns, later reads of the same line wait for it instead of starting
// another one, so a hung line holds at most one goroutine.
type TimeoutReader struct {
	inner   Reader
	timeout time.Duration

	mu       sync.Mutex
	inflight map[int]*pendingRead
}

// WithTimeout wraps r so that no Read blocks longer than d.
func WithTimeout(r Reader, d time.Duration) *TimeoutReader {
	if d <= 0 {
		d = DefaultReadTimeout
	}
	return &TimeoutReader{inner: r, timeout: d, inflight: make(map[int]*pendingRead)}
}

// pendingRead is a read in progress. value and err are valid once done is
// closed.
type pendingRead struct {
	done  chan struct{}
	value int
	err   error
}

// Read samples the line, giving up after the configured timeout.
func (t *TimeoutReader) Read(line int, bias Bias) (int, error) {
	t.mu.Lock()
	p, ok := t.inflight[line]
	if !ok {
		p = &pendingRead{done: make(chan struct{})}
		t.inflight[line] = p
		go t.run(line, bias, p)
	}
	t.mu.Unlock()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.value, p.err
	case <-timer.C:
		return 0, fmt.Errorf("line %d: %w", line, ErrTimeout)
	}
}

func (t *TimeoutReader) run(line int, bias Bias, p *pendingRead) {
	p.value, p.err = t.inner.Read(line, bias)
	t.mu.Lock()
	if t.inflight[line] == p {
		delete(t.inflight, line)
	}
	t.mu.Unlock()
	close(p.done)
}

// Lines delegates to the wrapped reader when it can list lines.
func (t *TimeoutReader) Lines() ([]int, error) {
	if l, ok := t.inner.(Lister); ok {
		return l.Lines()
	}
	return nil, errors.New("gpio: line discovery not supported")
}

// Release delegates to the wrapped reader when it holds per-line resources.
func (t *TimeoutReader) Release(line int) error {
	if r, ok := t.inner.(Releaser); ok {
		return r.Release(line)
	}
	return nil
}

// Close closes the wrapped reader.
func (t *TimeoutReader) Close() error {
	return t.inner.Close()
}
