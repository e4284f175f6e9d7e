// Package monitor samples the configured GPIO lines, debounces them and
// publishes confirmed state changes. It also owns configuration reloads and
// the mutation operations used by the HTTP API.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/logic"
)

// Line initialization parameters for debounced lines.
const (
	InitReads     = 10
	MinValidReads = 6
)

// Default loop timing.
const (
	DefaultPoll   = 100 * time.Millisecond
	DefaultSettle = 100 * time.Millisecond
	DefaultWatch  = time.Second
)

// Store loads and persists the configuration.
type Store interface {
	Load() (config.Config, error)
	Save(cfg config.Config) error
	ModTime() (time.Time, error)
}

// Sink receives confirmed state changes.
type Sink interface {
	Publish(event logic.Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(event logic.Event) error

// Publish calls f.
func (f SinkFunc) Publish(event logic.Event) error {
	return f(event)
}

// Sinks fans an event out to several sinks. Every sink is called even when
// an earlier one fails.
type Sinks []Sink

// Publish delivers the event to every sink and joins their errors.
func (s Sinks) Publish(event logic.Event) error {
	var errs []error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Publish(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options tunes a Monitor. Zero values select the defaults.
type Options struct {
	Poll   time.Duration
	Settle time.Duration
	Now    func() time.Time
	Sleep  func(time.Duration)
}

// Monitor tracks the state of the monitored lines.
type Monitor struct {
	store  Store
	reader gpio.Reader
	sink   Sink
	inv    gpio.Inventory

	poll   time.Duration
	settle time.Duration
	now    func() time.Time
	sleep  func(time.Duration)

	// mu guards everything below it.
	mu       sync.Mutex
	cfg      config.Config
	physical map[int]int
	debounce *logic.Debouncer
	lastMod  time.Time
	failing  map[int]bool // lines whose last read failed

	reloadMu sync.Mutex
	editMu   sync.Mutex
}

// New creates a Monitor with an empty configuration. Call Reload to load the
// stored one.
func New(store Store, reader gpio.Reader, inv gpio.Inventory, sink Sink, opts Options) *Monitor {
	if opts.Poll <= 0 {
		opts.Poll = DefaultPoll
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if sink == nil {
		sink = Sinks(nil)
	}
	return &Monitor{
		store:    store,
		reader:   reader,
		sink:     sink,
		inv:      inv,
		poll:     opts.Poll,
		settle:   opts.Settle,
		now:      opts.Now,
		sleep:    opts.Sleep,
		cfg:      config.Default(),
		physical: make(map[int]int),
		debounce: logic.NewDebouncer(),
		failing:  make(map[int]bool),
	}
}

// InitializeLine seeds the physical state of a monitored line.
// Debounced lines take InitReads reads one poll interval apart and use the
// majority of at least MinValidReads successful reads. Other lines use a
// single read. On failure the line stays uninitialized.
func (m *Monitor) InitializeLine(line int) error {
	m.mu.Lock()
	if !m.cfg.Monitors(line) {
		m.mu.Unlock()
		return fmt.Errorf("GPIO %d: %w", line, config.ErrNotMonitored)
	}
	opts := m.cfg.OptionsFor(line)
	m.mu.Unlock()

	var state int
	if opts.Thresholds().Enabled() {
		samples := make([]int, 0, InitReads)
		for i := 0; i < InitReads; i++ {
			if i > 0 {
				m.sleep(m.poll)
			}
			v, err := m.reader.Read(line, opts.Bias)
			if err != nil {
				continue
			}
			samples = append(samples, v)
		}
		if len(samples) < MinValidReads {
			return fmt.Errorf("GPIO %d: only %d/%d valid reads", line, len(samples), InitReads)
		}
		state = logic.Majority(samples)
	} else {
		v, err := m.reader.Read(line, opts.Bias)
		if err != nil {
			return fmt.Errorf("GPIO %d: %w", line, err)
		}
		state = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.Monitors(line) {
		// Removed while we were reading.
		return nil
	}
	m.physical[line] = state
	m.debounce.Discard(line)
	return nil
}

type sample struct {
	line int
	bias gpio.Bias
	raw  int
}

// Tick runs one sampling cycle over every initialized line and returns the
// events it published. Read failures skip the line for this cycle.
func (m *Monitor) Tick() []logic.Event {
	m.mu.Lock()
	samples := make([]sample, 0, len(m.physical))
	for _, line := range m.cfg.Lines {
		if _, ok := m.physical[line]; !ok {
			continue
		}
		samples = append(samples, sample{line: line, bias: m.cfg.OptionsFor(line).Bias})
	}
	m.mu.Unlock()

	failed := make(map[int]error)
	read := samples[:0]
	for _, s := range samples {
		v, err := m.reader.Read(s.line, s.bias)
		if err != nil {
			failed[s.line] = err
			continue
		}
		s.raw = v
		read = append(read, s)
	}

	var events []logic.Event
	m.mu.Lock()
	// Only changes between failing and reading are logged.
	for line, err := range failed {
		if !m.failing[line] {
			m.failing[line] = true
			log.Printf("gpio read error: GPIO %d: %v", line, err)
		}
	}
	for _, s := range read {
		if m.failing[s.line] {
			delete(m.failing, s.line)
			log.Printf("gpio: GPIO %d readable again", s.line)
		}
	}
	now := m.now()
	for _, s := range read {
		current, ok := m.physical[s.line]
		if !ok {
			continue
		}
		opts := m.cfg.OptionsFor(s.line)
		tr, ok := m.debounce.Observe(s.line, current, s.raw, opts.Thresholds())
		if !ok {
			continue
		}
		m.physical[s.line] = tr.To
		events = append(events, newEvent(s.line, tr, opts.Inverted, now))
	}
	m.mu.Unlock()

	for _, e := range events {
		log.Printf("event: pin=%d state=%d previous=%d confidence=%q", e.Pin, e.State, *e.Previous, e.Confidence)
		if err := m.sink.Publish(e); err != nil {
			log.Printf("publish error: %v", err)
		}
	}
	return events
}

func newEvent(line int, tr logic.Transition, inverted bool, now time.Time) logic.Event {
	prev := virtual(tr.From, inverted)
	return logic.Event{
		Type:       logic.EventChange,
		Pin:        line,
		State:      virtual(tr.To, inverted),
		Previous:   &prev,
		Timestamp:  now,
		Confidence: tr.ConfidenceString(),
	}
}

func virtual(physical int, inverted bool) int {
	if inverted {
		return physical ^ 1
	}
	return physical
}

// Run calls Tick on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			m.Tick()
		}
	}
}

// VirtualState returns the reported state of a line (inversion applied).
func (m *Monitor) VirtualState(line int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.physical[line]
	if !ok {
		return 0, false
	}
	return virtual(p, m.cfg.OptionsFor(line).Inverted), true
}

// States returns the reported state of every initialized line.
func (m *Monitor) States() map[int]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]int, len(m.physical))
	for line, p := range m.physical {
		out[line] = virtual(p, m.cfg.OptionsFor(line).Inverted)
	}
	return out
}

// Config returns a copy of the active configuration.
func (m *Monitor) Config() config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Clone()
}

// Inventory returns the discovered lines.
func (m *Monitor) Inventory() gpio.Inventory {
	return m.inv
}

// Pending returns a copy of a line's open debounce window.
func (m *Monitor) Pending(line int) (logic.Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debounce.Pending(line)
}
