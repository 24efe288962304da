// Package poller periodically checks device liveness: paced UDP probes,
// offline flagging after consecutive failures, and cooldown when the
// whole subsystem misbehaves.
package poller

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/internal/services/health"
	"github.com/bbernstein/lumenbridge-go/internal/services/protocol"
	"github.com/bbernstein/lumenbridge-go/internal/services/ratelimit"
	"github.com/bbernstein/lumenbridge-go/internal/store"
)

const subsystemName = "poller"

// Config holds poller configuration.
type Config struct {
	Enabled          bool
	Interval         time.Duration
	Timeout          time.Duration
	OfflineThreshold int
	RatePerSecond    float64
	RateBurst        float64
	BatchSize        int
	DryRun           bool
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Second,
		Timeout:          1500 * time.Millisecond,
		OfflineThreshold: 3,
		RatePerSecond:    5,
		RateBurst:        5,
		BatchSize:        10,
	}
}

// Service runs the poll loop.
type Service struct {
	cfg      Config
	store    *store.Store
	registry *protocol.Registry
	monitor  *health.Monitor
	metrics  *metrics.Metrics
	bucket   *ratelimit.Bucket

	cursorMu sync.Mutex
	cursor   int

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runMu   sync.Mutex
	running bool
}

// New creates the poller service.
func New(cfg Config, st *store.Store, registry *protocol.Registry, monitor *health.Monitor, m *metrics.Metrics) *Service {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.OfflineThreshold < 1 {
		cfg.OfflineThreshold = 1
	}
	return &Service{
		cfg:      cfg,
		store:    st,
		registry: registry,
		monitor:  monitor,
		metrics:  m,
		bucket:   ratelimit.NewBucket(cfg.RatePerSecond, cfg.RateBurst),
	}
}

// Start launches the poll loop. No-op when polling is disabled or the
// bridge runs dry.
func (s *Service) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	if !s.cfg.Enabled || s.cfg.DryRun {
		log.Printf("📡 Device polling disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
	s.running = true
	log.Printf("✅ Poller started (interval %v, batch %d)", s.cfg.Interval, s.cfg.BatchSize)
}

// Stop cancels the loop and waits for in-flight polls.
func (s *Service) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	s.wg.Wait()
	log.Printf("✅ Poller stopped")
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		if remaining, cooling := s.monitor.InCooldown(subsystemName); cooling {
			log.Printf("⚠️ Poller in cooldown for another %v", remaining.Round(time.Second))
			if !sleepCtx(ctx, remaining) {
				return
			}
			continue
		}

		if err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("⚠️ Poll cycle failed: %v", err)
			s.monitor.RecordFailure(subsystemName)
		} else {
			s.monitor.RecordSuccess(subsystemName)
		}

		if !sleepCtx(ctx, s.cfg.Interval) {
			return
		}
	}
}

// RunCycle polls one batch of targets, rotating through the full target
// list across cycles.
func (s *Service) RunCycle(ctx context.Context) error {
	targets, err := s.store.PollTargets(ctx, s.registry.PollableProtocols())
	if err != nil {
		return fmt.Errorf("failed to load poll targets: %w", err)
	}
	if len(targets) == 0 {
		return nil
	}

	batch := s.nextBatch(targets)

	var wg sync.WaitGroup
	for _, target := range batch {
		wg.Add(1)
		go func(target store.PollTarget) {
			defer wg.Done()
			if err := s.bucket.Acquire(ctx); err != nil {
				return
			}
			s.pollOne(ctx, target)
		}(target)
	}
	wg.Wait()
	return ctx.Err()
}

// nextBatch selects up to BatchSize targets starting at the rotating
// cursor, so every device is eventually covered.
func (s *Service) nextBatch(targets []store.PollTarget) []store.PollTarget {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()

	n := len(targets)
	size := s.cfg.BatchSize
	if size > n {
		size = n
	}

	batch := make([]store.PollTarget, 0, size)
	for i := 0; i < size; i++ {
		batch = append(batch, targets[(s.cursor+i)%n])
	}
	s.cursor = (s.cursor + size) % n
	return batch
}

func (s *Service) pollOne(ctx context.Context, target store.PollTarget) {
	handler, err := s.registry.Get(target.Protocol)
	if err != nil {
		return
	}

	device := &models.Device{
		ID: target.DeviceID, IP: target.IP,
		Protocol: target.Protocol, Port: target.Port,
	}
	request, err := handler.BuildPollRequest(device)
	if err != nil {
		s.recordFailure(ctx, target)
		return
	}

	s.metrics.Polls.WithLabelValues(target.Protocol).Inc()

	response, err := s.exchange(target.IP, protocol.DevicePort(handler, device), request)
	if err != nil {
		s.recordFailure(ctx, target)
		return
	}

	parsed := handler.ParsePollResponse(response)
	if parsed == nil {
		s.metrics.InvalidPayloads.WithLabelValues(target.Protocol).Inc()
		s.recordFailure(ctx, target)
		return
	}

	if err := s.store.RecordPollSuccess(ctx, target.DeviceID, parsed); err != nil {
		log.Printf("⚠️ Failed to record poll success for %s: %v", target.DeviceID, err)
	}
}

// exchange sends the probe on an ephemeral connected socket and waits for
// one response datagram.
func (s *Service) exchange(ip string, port int, request []byte) ([]byte, error) {
	conn, err := net.Dial("udp4", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		return nil, err
	}
	if _, err := conn.Write(request); err != nil {
		return nil, err
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *Service) recordFailure(ctx context.Context, target store.PollTarget) {
	s.metrics.PollFailures.WithLabelValues(target.Protocol).Inc()
	if err := s.store.RecordPollFailure(ctx, target.DeviceID, s.cfg.OfflineThreshold); err != nil {
		log.Printf("⚠️ Failed to record poll failure for %s: %v", target.DeviceID, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
