// Package store exposes the persistence operations the bridge core consumes:
// mapping lookup, device discovery and poll bookkeeping, the pending update
// queue, and dead-letter capture.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/database/repositories"
	"github.com/bbernstein/lumenbridge-go/internal/state"
)

// Dead-letter reasons.
const (
	ReasonMissingIP           = "missing_ip"
	ReasonDeviceUnavailable   = "device_unavailable"
	ReasonSendFailed          = "send_failed_after_retries"
	ReasonUnsupportedProtocol = "unsupported_protocol"
	ReasonEncodeError         = "encode_error"
)

// DiscoveryResult is a normalised discovery response for any protocol.
type DiscoveryResult struct {
	DeviceID     string
	IP           string
	Protocol     string
	Port         int
	Model        *string
	Label        *string
	Firmware     *string
	Capabilities *string // JSON
}

// PollTarget identifies a device due for a liveness poll.
type PollTarget struct {
	DeviceID string
	IP       string
	Protocol string
	Port     int
}

// Store is the persistence façade over the repositories. It is the single
// writer boundary for device runtime state.
type Store struct {
	devices     *repositories.DeviceRepository
	mappings    *repositories.MappingRepository
	queue       *repositories.QueueRepository
	deadLetters *repositories.DeadLetterRepository

	// wake is signalled on enqueue so sender workers can skip their
	// idle wait.
	wake chan struct{}
}

// New creates a Store over a connected database.
func New(db *gorm.DB) *Store {
	return &Store{
		devices:     repositories.NewDeviceRepository(db),
		mappings:    repositories.NewMappingRepository(db),
		queue:       repositories.NewQueueRepository(db),
		deadLetters: repositories.NewDeadLetterRepository(db),
		wake:        make(chan struct{}, 1),
	}
}

// Migrate creates or updates the schema for all bridge tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Device{},
		&models.Mapping{},
		&models.QueuedState{},
		&models.DeadLetter{},
	)
}

// Wake returns a channel signalled whenever a state update is enqueued.
func (s *Store) Wake() <-chan struct{} {
	return s.wake
}

// Mappings returns all persisted mapping records.
func (s *Store) Mappings(ctx context.Context) ([]models.Mapping, error) {
	return s.mappings.FindAll(ctx)
}

// MappingRepo exposes mapping creation/update for callers that manage
// records (tests, the management surface).
func (s *Store) MappingRepo() *repositories.MappingRepository {
	return s.mappings
}

// Devices returns all devices.
func (s *Store) Devices(ctx context.Context) ([]models.Device, error) {
	return s.devices.FindAll(ctx)
}

// Device returns one device by id, or nil.
func (s *Store) Device(ctx context.Context, id string) (*models.Device, error) {
	return s.devices.FindByID(ctx, id)
}

// DeviceRepo exposes the underlying device repository.
func (s *Store) DeviceRepo() *repositories.DeviceRepository {
	return s.devices
}

// RecordDiscovery upserts a discovered device, preserving user-owned fields.
func (s *Store) RecordDiscovery(ctx context.Context, result DiscoveryResult) error {
	return s.devices.RecordDiscovery(ctx, repositories.DiscoveryUpdate{
		ID:           result.DeviceID,
		IP:           result.IP,
		Protocol:     result.Protocol,
		Port:         result.Port,
		Model:        result.Model,
		Label:        result.Label,
		Firmware:     result.Firmware,
		Capabilities: result.Capabilities,
	})
}

// MarkStale flags discovered devices not seen within the window as offline.
func (s *Store) MarkStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.devices.MarkStale(ctx, olderThan)
}

// RecordPollSuccess stores a normalised poll state and clears offline status.
func (s *Store) RecordPollSuccess(ctx context.Context, id string, pollState map[string]interface{}) error {
	raw, err := json.Marshal(pollState)
	if err != nil {
		return fmt.Errorf("marshal poll state: %w", err)
	}
	return s.devices.RecordPollSuccess(ctx, id, string(raw))
}

// RecordPollFailure counts a failed poll, transitioning the device to
// offline at the threshold.
func (s *Store) RecordPollFailure(ctx context.Context, id string, offlineThreshold int) error {
	return s.devices.RecordPollFailure(ctx, id, offlineThreshold)
}

// PollTargets returns devices eligible for polling with one of the given
// protocols.
func (s *Store) PollTargets(ctx context.Context, protocols []string) ([]PollTarget, error) {
	devices, err := s.devices.PollTargets(ctx, protocols)
	if err != nil {
		return nil, err
	}
	targets := make([]PollTarget, 0, len(devices))
	for _, d := range devices {
		targets = append(targets, PollTarget{
			DeviceID: d.ID,
			IP:       d.IP,
			Protocol: d.Protocol,
			Port:     d.Port,
		})
	}
	return targets, nil
}

// ManualProbeTargets returns manual devices eligible for unicast discovery
// probes.
func (s *Store) ManualProbeTargets(ctx context.Context) ([]models.Device, error) {
	return s.devices.ManualProbeTargets(ctx)
}

// EnqueueState appends a device state update to the queue and wakes any
// waiting sender worker.
func (s *Store) EnqueueState(ctx context.Context, update state.Update) error {
	raw, err := json.Marshal(update.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var contextID *string
	if update.ContextID != "" {
		contextID = &update.ContextID
	}

	if err := s.queue.Enqueue(ctx, update.DeviceID, string(raw), contextID); err != nil {
		return err
	}

	select {
	case s.wake <- struct{}{}:
	default:
		// A wake signal is already pending.
	}
	return nil
}

// PendingDeviceIDs returns device ids with queued updates.
func (s *Store) PendingDeviceIDs(ctx context.Context) ([]string, error) {
	return s.queue.PendingDeviceIDs(ctx)
}

// PopNextFor removes and returns the oldest queued update for a device, or
// nil when its queue is empty.
func (s *Store) PopNextFor(ctx context.Context, deviceID string) (*state.Update, error) {
	row, err := s.queue.PopNextFor(ctx, deviceID)
	if err != nil || row == nil {
		return nil, err
	}

	var payload state.Payload
	if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal queued payload: %w", err)
	}

	update := &state.Update{
		DeviceID: row.DeviceID,
		Payload:  payload,
	}
	if row.ContextID != nil {
		update.ContextID = *row.ContextID
	}
	return update, nil
}

// DeadLetter parks an undeliverable payload for inspection.
func (s *Store) DeadLetter(ctx context.Context, deviceID string, payload state.Payload, reason string, attempts int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	return s.deadLetters.Add(ctx, deviceID, string(raw), reason, attempts)
}

// DeadLetters returns all parked payloads, newest first.
func (s *Store) DeadLetters(ctx context.Context) ([]models.DeadLetter, error) {
	return s.deadLetters.FindAll(ctx)
}
