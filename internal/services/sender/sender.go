// Package sender drains per-device state queues onto the network: rate
// limiting, retries with backoff, and dead-letter capture for payloads
// that cannot be delivered.
package sender

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/internal/services/protocol"
	"github.com/bbernstein/lumenbridge-go/internal/services/ratelimit"
	"github.com/bbernstein/lumenbridge-go/internal/state"
	"github.com/bbernstein/lumenbridge-go/internal/store"
)

// Config holds sender configuration.
type Config struct {
	WorkerCount       int
	MaxSendRate       float64
	SendBurst         float64
	BackoffBase       time.Duration
	BackoffFactor     float64
	BackoffMax        time.Duration
	MaxAttempts       int
	QueuePollInterval time.Duration
	// IdleWait replaces QueuePollInterval after a pass that found no
	// work; a wake signal cuts either wait short.
	IdleWait       time.Duration
	CommandSpacing time.Duration
	ShutdownGrace  time.Duration
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{
		WorkerCount:       4,
		MaxSendRate:       10,
		SendBurst:         5,
		BackoffBase:       100 * time.Millisecond,
		BackoffFactor:     2.0,
		BackoffMax:        5 * time.Second,
		MaxAttempts:       3,
		QueuePollInterval: 50 * time.Millisecond,
		IdleWait:          250 * time.Millisecond,
		CommandSpacing:    10 * time.Millisecond,
		ShutdownGrace:     5 * time.Second,
	}
}

// Service is the sender worker pool. Each worker owns a stable subset of
// device ids, so one device's updates are never sent concurrently.
type Service struct {
	cfg       Config
	store     *store.Store
	registry  *protocol.Registry
	transport Transport
	metrics   *metrics.Metrics

	bucketMu sync.Mutex
	buckets  map[string]*ratelimit.Bucket

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	runMu    sync.Mutex
	running  bool
}

// New creates the sender service.
func New(cfg Config, st *store.Store, registry *protocol.Registry, transport Transport, m *metrics.Metrics) *Service {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = cfg.QueuePollInterval
	}
	return &Service{
		cfg:       cfg,
		store:     st,
		registry:  registry,
		transport: transport,
		metrics:   m,
		buckets:   make(map[string]*ratelimit.Bucket),
	}
}

// Start launches the worker pool.
func (s *Service) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.running = true
	log.Printf("✅ Sender started with %d workers", s.cfg.WorkerCount)
}

// Stop cancels the workers and waits up to the shutdown grace period.
// Undrained queue entries stay in the store and survive restart.
func (s *Service) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		log.Printf("⚠️ Sender shutdown grace expired with workers still busy")
	}
	log.Printf("✅ Sender stopped")
}

func (s *Service) worker(ctx context.Context, index int) {
	defer s.wg.Done()

	for {
		busy := s.dispatchPending(ctx, index)

		wait := s.cfg.IdleWait
		if busy {
			wait = s.cfg.QueuePollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.store.Wake():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// dispatchPending drains every pending device owned by this worker. It
// reports whether any update was popped, so an idle worker can back off
// to the longer idle wait.
func (s *Service) dispatchPending(ctx context.Context, index int) bool {
	ids, err := s.store.PendingDeviceIDs(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("⚠️ Failed to list pending devices: %v", err)
		}
		return false
	}

	busy := false
	for _, id := range ids {
		if int(ownerHash(id))%s.cfg.WorkerCount != index {
			continue
		}
		if s.drainDevice(ctx, id) > 0 {
			busy = true
		}
		if ctx.Err() != nil {
			break
		}
	}
	return busy
}

func (s *Service) drainDevice(ctx context.Context, deviceID string) int {
	popped := 0
	for ctx.Err() == nil {
		update, err := s.store.PopNextFor(ctx, deviceID)
		if err != nil {
			log.Printf("⚠️ Failed to pop update for %s: %v", deviceID, err)
			return popped
		}
		if update == nil {
			return popped
		}
		popped++
		s.deliver(ctx, update)
	}
	return popped
}

func (s *Service) deliver(ctx context.Context, update *state.Update) {
	device, err := s.store.Device(ctx, update.DeviceID)
	if err != nil {
		log.Printf("⚠️ Failed to resolve device %s: %v", update.DeviceID, err)
		return
	}
	if device == nil || !device.Enabled || device.Offline {
		s.deadLetter(ctx, update, store.ReasonDeviceUnavailable, 0)
		return
	}
	if device.IP == "" {
		s.deadLetter(ctx, update, store.ReasonMissingIP, 0)
		return
	}

	handler, err := s.registry.Get(device.Protocol)
	if err != nil {
		s.deadLetter(ctx, update, store.ReasonUnsupportedProtocol, 0)
		return
	}

	if err := s.bucket(device.ID).Acquire(ctx); err != nil {
		// Shutdown mid-wait; the update was already popped, put it back
		// through the dead-letter path would be wrong — re-enqueue.
		if reErr := s.store.EnqueueState(context.Background(), *update); reErr != nil {
			log.Printf("⚠️ Failed to re-enqueue update for %s: %v", update.DeviceID, reErr)
		}
		return
	}

	datagrams, err := handler.WrapCommand(device, update.Payload)
	if err != nil {
		if errors.Is(err, protocol.ErrEncode) {
			s.deadLetter(ctx, update, store.ReasonEncodeError, 0)
		} else {
			log.Printf("⚠️ Wrap failed for %s: %v", update.DeviceID, err)
		}
		return
	}

	s.sendWithRetry(ctx, device, handler, update, datagrams)
}

func (s *Service) sendWithRetry(ctx context.Context, device *models.Device, handler protocol.Handler, update *state.Update, datagrams [][]byte) {
	port := protocol.DevicePort(handler, device)

	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		err := s.transport.Send(device.IP, port, datagrams, s.cfg.CommandSpacing)
		if err == nil {
			s.metrics.Sends.WithLabelValues(device.Protocol).Inc()
			s.metrics.SendDuration.Observe(time.Since(start).Seconds())
			if update.ContextID != "" {
				log.Printf("🎭 [%s] sent %d datagram(s) to %s (%s)", update.ContextID, len(datagrams), device.ID, device.Protocol)
			}
			return
		}

		s.metrics.SendFailures.WithLabelValues(device.Protocol).Inc()
		log.Printf("⚠️ Send attempt %d/%d to %s failed: %v", attempt+1, s.cfg.MaxAttempts, device.ID, err)

		if attempt+1 < s.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.backoff(attempt + 1)):
			}
		}
	}

	s.deadLetter(ctx, update, store.ReasonSendFailed, s.cfg.MaxAttempts)
}

// backoff computes min(backoffMax, base * factor^attempts) with ±10%
// jitter.
func (s *Service) backoff(attempts int) time.Duration {
	delay := float64(s.cfg.BackoffBase) * math.Pow(s.cfg.BackoffFactor, float64(attempts))
	if delay > float64(s.cfg.BackoffMax) {
		delay = float64(s.cfg.BackoffMax)
	}
	jitter := 1 + (rand.Float64()*0.2 - 0.1)
	return time.Duration(delay * jitter)
}

func (s *Service) deadLetter(ctx context.Context, update *state.Update, reason string, attempts int) {
	if err := s.store.DeadLetter(ctx, update.DeviceID, update.Payload, reason, attempts); err != nil {
		log.Printf("⚠️ Failed to dead-letter update for %s: %v", update.DeviceID, err)
		return
	}
	s.metrics.DeadLetters.WithLabelValues(reason).Inc()
	log.Printf("⚠️ Dead-lettered update for %s: %s", update.DeviceID, reason)
}

func (s *Service) bucket(deviceID string) *ratelimit.Bucket {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	b, ok := s.buckets[deviceID]
	if !ok {
		b = ratelimit.NewBucket(s.cfg.MaxSendRate, s.cfg.SendBurst)
		s.buckets[deviceID] = b
	}
	return b
}

func ownerHash(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}
