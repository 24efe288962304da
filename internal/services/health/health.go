// Package health tracks consecutive subsystem failures and opens a
// cooldown once a threshold is crossed, so a wedged subsystem backs off
// instead of spinning.
package health

import (
	"log"
	"sync"
	"time"
)

type subsystemState struct {
	failures      int
	cooldownUntil time.Time
}

// Monitor tracks failure counts per subsystem name.
type Monitor struct {
	mu         sync.Mutex
	threshold  int
	cooldown   time.Duration
	subsystems map[string]*subsystemState

	now func() time.Time
}

// NewMonitor creates a monitor with the given failure threshold and
// cooldown duration.
func NewMonitor(threshold int, cooldown time.Duration) *Monitor {
	if threshold < 1 {
		threshold = 1
	}
	return &Monitor{
		threshold:  threshold,
		cooldown:   cooldown,
		subsystems: make(map[string]*subsystemState),
		now:        time.Now,
	}
}

// RecordFailure counts a consecutive failure. Crossing the threshold
// opens the cooldown and resets the count.
func (m *Monitor) RecordFailure(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(name)
	s.failures++
	if s.failures >= m.threshold {
		s.cooldownUntil = m.now().Add(m.cooldown)
		s.failures = 0
		log.Printf("⚠️ Subsystem %s hit failure threshold, cooling down for %v", name, m.cooldown)
	}
}

// RecordSuccess resets the consecutive failure count.
func (m *Monitor) RecordSuccess(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(name).failures = 0
}

// InCooldown reports whether the subsystem is suspended and for how much
// longer.
func (m *Monitor) InCooldown(name string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(name)
	remaining := s.cooldownUntil.Sub(m.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

func (m *Monitor) get(name string) *subsystemState {
	s, ok := m.subsystems[name]
	if !ok {
		s = &subsystemState{}
		m.subsystems[name] = s
	}
	return s
}
