package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/gpio"
)

// Reload loads the stored configuration and reconciles the state table with
// it. Lines no longer monitored lose their state and pending window. Newly
// monitored available lines are initialized. Lines monitored before and
// after keep their state. A load error installs the empty configuration and
// is returned after reconciling.
func (m *Monitor) Reload() error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	mod, err := m.store.ModTime()
	if err != nil {
		log.Printf("reload: %v", err)
	}
	cfg, loadErr := m.store.Load()
	if loadErr != nil {
		log.Printf("reload: %v (using empty configuration)", loadErr)
		cfg = config.Default()
	}
	cfg.Normalize()

	m.mu.Lock()
	old := m.cfg
	m.cfg = cfg
	m.lastMod = mod

	var removed []int
	for _, line := range old.Lines {
		if cfg.Monitors(line) {
			continue
		}
		delete(m.physical, line)
		delete(m.failing, line)
		m.debounce.Discard(line)
		removed = append(removed, line)
	}

	var added []int
	for _, line := range cfg.Lines {
		if _, ok := m.physical[line]; ok {
			continue
		}
		if !m.inv.IsAvailable(line) {
			log.Printf("reload: GPIO %d not available, skipping", line)
			continue
		}
		added = append(added, line)
	}
	m.mu.Unlock()

	if rel, ok := m.reader.(gpio.Releaser); ok {
		for _, line := range removed {
			if err := rel.Release(line); err != nil {
				log.Printf("reload: release GPIO %d: %v", line, err)
			}
		}
	}

	for _, line := range added {
		if err := m.InitializeLine(line); err != nil {
			log.Printf("reload: init failed: %v", err)
		}
	}

	log.Printf("reload: monitoring %v", cfg.Lines)
	if loadErr != nil {
		return fmt.Errorf("reload: %w", loadErr)
	}
	return nil
}

// Watch polls the store's modification time on every tick and reloads,
// after the settle delay, when it changes. It returns when ctx is
// cancelled.
func (m *Monitor) Watch(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			mod, err := m.store.ModTime()
			if err != nil {
				log.Printf("watch: %v", err)
				continue
			}
			m.mu.Lock()
			changed := !mod.Equal(m.lastMod)
			m.mu.Unlock()
			if !changed {
				continue
			}
			log.Printf("watch: configuration changed, reloading")
			m.sleep(m.settle)
			if err := m.Reload(); err != nil {
				log.Printf("watch: %v", err)
			}
		}
	}
}
