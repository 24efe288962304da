package mapping

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/internal/services/capability"
	"github.com/bbernstein/lumenbridge-go/internal/services/ingest"
	"github.com/bbernstein/lumenbridge-go/internal/services/pubsub"
	"github.com/bbernstein/lumenbridge-go/internal/state"
	"github.com/bbernstein/lumenbridge-go/internal/store"
)

// Config holds mapping engine configuration.
type Config struct {
	Debounce        time.Duration
	TraceContextIDs bool
	TraceSampleRate float64
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{
		Debounce:        20 * time.Millisecond,
		TraceSampleRate: 0.01,
	}
}

// Engine turns winning DMX frames into debounced device state updates.
type Engine struct {
	store   *store.Store
	bus     *pubsub.Bus
	caps    *capability.Resolver
	metrics *metrics.Metrics
	cfg     Config

	// snapshot is swapped atomically on reload; readers see old or new,
	// never partial.
	mu       sync.RWMutex
	snapshot map[uint16][]*Compiled
	devices  map[string]*models.Device

	pendingMu   sync.Mutex
	lastPayload map[string]state.Payload
	pending     map[string]*pendingUpdate

	subs     []*pubsub.Subscriber
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	runMu    sync.Mutex
}

type pendingUpdate struct {
	timer  *time.Timer
	update state.Update
}

// NewEngine creates the mapping engine.
func NewEngine(cfg Config, st *store.Store, bus *pubsub.Bus, caps *capability.Resolver, m *metrics.Metrics) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	return &Engine{
		store:       st,
		bus:         bus,
		caps:        caps,
		metrics:     m,
		cfg:         cfg,
		snapshot:    make(map[uint16][]*Compiled),
		devices:     make(map[string]*models.Device),
		lastPayload: make(map[string]state.Payload),
		pending:     make(map[string]*pendingUpdate),
		stopChan:    make(chan struct{}),
	}
}

// Start loads the initial snapshot and subscribes to mapping change events.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return nil
	}

	if err := e.Reload(ctx); err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}

	for _, topic := range []pubsub.Topic{
		pubsub.TopicMappingCreated,
		pubsub.TopicMappingUpdated,
		pubsub.TopicMappingDeleted,
	} {
		sub := e.bus.Subscribe(topic, 8)
		e.subs = append(e.subs, sub)
		e.wg.Add(1)
		go e.watchReload(sub)
	}

	e.running = true
	log.Printf("✅ Mapping engine started (debounce %v)", e.cfg.Debounce)
	return nil
}

// Stop cancels subscriptions and flushes pending debounced updates so
// nothing observed is lost across restart.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return
	}
	e.running = false

	for _, sub := range e.subs {
		sub.Unsubscribe()
	}
	e.subs = nil
	close(e.stopChan)
	e.wg.Wait()

	e.flushAll()
	log.Printf("✅ Mapping engine stopped")
}

func (e *Engine) watchReload(sub *pubsub.Subscriber) {
	defer e.wg.Done()
	for {
		select {
		case _, ok := <-sub.Channel:
			if !ok {
				return
			}
			if err := e.Reload(context.Background()); err != nil {
				log.Printf("⚠️ Mapping reload failed: %v", err)
			}
		case <-e.stopChan:
			return
		}
	}
}

// Reload rebuilds the compiled snapshot from the store. Invalid records
// are skipped with a warning; the rest keep working.
func (e *Engine) Reload(ctx context.Context) error {
	records, err := e.store.Mappings(ctx)
	if err != nil {
		return err
	}
	deviceList, err := e.store.Devices(ctx)
	if err != nil {
		return err
	}

	snapshot := make(map[uint16][]*Compiled)
	skipped := 0
	for i := range records {
		compiled, err := Compile(&records[i])
		if err != nil {
			log.Printf("⚠️ Skipping mapping %s: %v", records[i].ID, err)
			skipped++
			continue
		}
		snapshot[compiled.Universe] = append(snapshot[compiled.Universe], compiled)
	}

	devices := make(map[string]*models.Device, len(deviceList))
	for i := range deviceList {
		devices[deviceList[i].ID] = &deviceList[i]
	}

	e.mu.Lock()
	e.snapshot = snapshot
	e.devices = devices
	e.mu.Unlock()

	log.Printf("🔄 Mapping snapshot rebuilt: %d mappings across %d universes (%d skipped)",
		len(records)-skipped, len(snapshot), skipped)
	return nil
}

// HandleFrame processes a winning universe frame: expands every mapping,
// drops unchanged payloads, and debounces the rest per device.
func (e *Engine) HandleFrame(frame *ingest.Frame) {
	e.mu.RLock()
	mappings := e.snapshot[frame.Universe]
	devices := e.devices
	e.mu.RUnlock()

	if len(mappings) == 0 {
		return
	}

	contextID := e.traceID(frame)

	for _, m := range mappings {
		caps := e.caps.For(devices[m.DeviceID])
		payload, ok := m.Apply(&frame.Data, caps)
		if !ok {
			continue
		}
		e.schedule(m.DeviceID, payload, contextID)
	}
}

// schedule applies change detection and (re)starts the per-device
// debounce timer. Last write wins within the window.
func (e *Engine) schedule(deviceID string, payload state.Payload, contextID string) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	if last, ok := e.lastPayload[deviceID]; ok && last.Equal(payload) {
		e.metrics.UpdatesDeduped.Inc()
		return
	}
	e.lastPayload[deviceID] = payload

	update := state.Update{DeviceID: deviceID, Payload: payload, ContextID: contextID}

	if p, ok := e.pending[deviceID]; ok {
		p.update = update
		p.timer.Reset(e.cfg.Debounce)
		return
	}

	p := &pendingUpdate{update: update}
	p.timer = time.AfterFunc(e.cfg.Debounce, func() {
		e.flush(deviceID)
	})
	e.pending[deviceID] = p
}

func (e *Engine) flush(deviceID string) {
	e.pendingMu.Lock()
	p, ok := e.pending[deviceID]
	if ok {
		delete(e.pending, deviceID)
	}
	e.pendingMu.Unlock()
	if !ok {
		return
	}
	e.enqueue(p.update)
}

func (e *Engine) flushAll() {
	e.pendingMu.Lock()
	updates := make([]state.Update, 0, len(e.pending))
	for id, p := range e.pending {
		p.timer.Stop()
		updates = append(updates, p.update)
		delete(e.pending, id)
	}
	e.pendingMu.Unlock()

	for _, u := range updates {
		e.enqueue(u)
	}
}

func (e *Engine) enqueue(update state.Update) {
	if err := e.store.EnqueueState(context.Background(), update); err != nil {
		log.Printf("⚠️ Failed to enqueue state for %s: %v", update.DeviceID, err)
		return
	}
	e.metrics.UpdatesEnqueued.Inc()
}

// traceID attaches a sampled correlation id to a frame's updates.
func (e *Engine) traceID(frame *ingest.Frame) string {
	if !e.cfg.TraceContextIDs || rand.Float64() >= e.cfg.TraceSampleRate {
		return ""
	}
	return fmt.Sprintf("dmx-%s-%d-%d-%s", frame.Protocol, frame.Universe, frame.Sequence, uuid.NewString())
}
