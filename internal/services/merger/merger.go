// Package merger arbitrates between concurrent DMX sources per universe,
// HTP-free: exactly one source wins a universe at a time, by priority.
package merger

import (
	"log"
	"sync"
	"time"

	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/internal/services/ingest"
)

// DefaultTimeout is how long a source may stay silent before it is
// considered lost and evicted. E1.31 calls this the data-loss timeout.
const DefaultTimeout = 2500 * time.Millisecond

type sourceEntry struct {
	frame    *ingest.Frame
	lastSeen time.Time
}

type universeState struct {
	sources map[string]*sourceEntry
	winner  string
}

// Merger tracks active sources per universe and picks a single winner.
type Merger struct {
	mu sync.Mutex

	timeout   time.Duration
	universes map[uint16]*universeState
	metrics   *metrics.Metrics

	now func() time.Time
}

// New creates a merger with the given data-loss timeout.
func New(timeout time.Duration, m *metrics.Metrics) *Merger {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Merger{
		timeout:   timeout,
		universes: make(map[uint16]*universeState),
		metrics:   m,
		now:       time.Now,
	}
}

// Ingest records a frame from a source and re-arbitrates its universe.
// It returns the frame and true when the frame's source is the current
// winner, meaning the data should flow downstream. Frames from losing
// sources are absorbed silently.
func (m *Merger) Ingest(frame *ingest.Frame) (*ingest.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	us, ok := m.universes[frame.Universe]
	if !ok {
		us = &universeState{sources: make(map[string]*sourceEntry)}
		m.universes[frame.Universe] = us
	}

	entry, known := us.sources[frame.SourceID]
	if !known {
		entry = &sourceEntry{}
		us.sources[frame.SourceID] = entry
	}
	entry.frame = frame
	entry.lastSeen = now

	m.expireLocked(frame.Universe, us, now)
	m.arbitrateLocked(frame.Universe, us)

	if us.winner == frame.SourceID {
		return frame, true
	}
	return nil, false
}

// ExpireStale evicts sources across all universes that have gone silent.
// Run it periodically so a lost winner doesn't linger until the next frame
// happens to arrive.
func (m *Merger) ExpireStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for universe, us := range m.universes {
		m.expireLocked(universe, us, now)
		m.arbitrateLocked(universe, us)
		if len(us.sources) == 0 {
			delete(m.universes, universe)
		}
	}
}

// Winner reports the winning source for a universe, if any.
func (m *Merger) Winner(universe uint16) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	us, ok := m.universes[universe]
	if !ok || us.winner == "" {
		return "", false
	}
	return us.winner, true
}

// SourceCount reports the number of live sources for a universe.
func (m *Merger) SourceCount(universe uint16) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	us, ok := m.universes[universe]
	if !ok {
		return 0
	}
	return len(us.sources)
}

func (m *Merger) expireLocked(universe uint16, us *universeState, now time.Time) {
	for id, entry := range us.sources {
		if now.Sub(entry.lastSeen) <= m.timeout {
			continue
		}
		delete(us.sources, id)
		m.metrics.MergeSourceExpired.Inc()
		log.Printf("🔄 Source %s on universe %d timed out", id, universe)
		if us.winner == id {
			us.winner = ""
		}
	}
}

// arbitrateLocked re-picks the winner. The incumbent keeps the universe
// unless a challenger has strictly higher priority, so equal-priority
// sources don't flap.
func (m *Merger) arbitrateLocked(universe uint16, us *universeState) {
	incumbent := us.sources[us.winner]

	best := us.winner
	var bestPriority uint8
	if incumbent != nil {
		bestPriority = incumbent.frame.Priority
	} else {
		best = ""
	}

	for id, entry := range us.sources {
		if best == "" || entry.frame.Priority > bestPriority {
			best = id
			bestPriority = entry.frame.Priority
		}
	}

	if best != us.winner {
		if best == "" {
			log.Printf("🔄 Universe %d has no active sources", universe)
		} else {
			log.Printf("🔄 Universe %d winner: %s (%s priority %d, %d source(s))",
				universe, best, us.sources[best].frame.Protocol, bestPriority, len(us.sources))
		}
		us.winner = best
		m.metrics.MergeWinnerChanges.Inc()
	}
}
