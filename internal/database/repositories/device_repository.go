package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
)

// DeviceRepository handles device data access.
type DeviceRepository struct {
	db *gorm.DB
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// FindAll returns all devices.
func (r *DeviceRepository) FindAll(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	result := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&devices)
	return devices, result.Error
}

// FindByID returns a device by id, or nil if not found.
func (r *DeviceRepository) FindByID(ctx context.Context, id string) (*models.Device, error) {
	var device models.Device
	result := r.db.WithContext(ctx).First(&device, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &device, nil
}

// DiscoveryUpdate carries the fields a discovery response may provide.
type DiscoveryUpdate struct {
	ID           string
	IP           string
	Protocol     string
	Port         int
	Model        *string
	Label        *string
	Firmware     *string
	Capabilities *string
}

// RecordDiscovery upserts a device from a discovery response. Idempotent by
// device id. Rediscovery never touches user-owned fields (enabled, name,
// manual, configured); it only refreshes network identity and metadata.
func (r *DeviceRepository) RecordDiscovery(ctx context.Context, upd DiscoveryUpdate) error {
	now := time.Now()

	var device models.Device
	result := r.db.WithContext(ctx).First(&device, "id = ?", upd.ID)

	if result.Error == gorm.ErrRecordNotFound {
		device = models.Device{
			ID:         upd.ID,
			IP:         upd.IP,
			Protocol:   upd.Protocol,
			Port:       upd.Port,
			Enabled:    true,
			Discovered: true,
			Model:      upd.Model,
			Label:      upd.Label,
			Firmware:   upd.Firmware,
			FirstSeen:  &now,
			LastSeen:   &now,
		}
		if upd.Capabilities != nil {
			device.Capabilities = upd.Capabilities
		}
		return r.db.WithContext(ctx).Create(&device).Error
	} else if result.Error != nil {
		return result.Error
	}

	updates := map[string]interface{}{
		"discovered": true,
		"last_seen":  now,
	}
	if upd.IP != "" {
		updates["ip"] = upd.IP
	}
	if device.Port == 0 && upd.Port != 0 {
		updates["port"] = upd.Port
	}
	if upd.Model != nil {
		updates["model"] = *upd.Model
	}
	if upd.Label != nil {
		updates["label"] = *upd.Label
	}
	if upd.Firmware != nil {
		updates["firmware"] = *upd.Firmware
	}
	// Catalog capabilities only fill in; user-configured devices keep theirs.
	if upd.Capabilities != nil && (!device.Configured || device.Capabilities == nil) {
		updates["capabilities"] = *upd.Capabilities
	}
	if device.FirstSeen == nil {
		updates["first_seen"] = now
	}

	return r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", upd.ID).
		Updates(updates).Error
}

// MarkStale flags discovered devices not seen within the window as offline.
// Manual devices are excluded; their liveness is the poller's job.
func (r *DeviceRepository) MarkStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("discovered = ? AND manual = ? AND offline = ? AND last_seen < ?", true, false, false, cutoff).
		Update("offline", true)
	return result.RowsAffected, result.Error
}

// RecordPollSuccess clears the offline flag and failure count and stores the
// normalised poll state.
func (r *DeviceRepository) RecordPollSuccess(ctx context.Context, id string, stateJSON string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"offline":               false,
			"poll_failure_count":    0,
			"poll_last_success_at":  now,
			"poll_state":            stateJSON,
			"last_seen":             now,
		}).Error
}

// RecordPollFailure increments the failure count and transitions the device
// to offline once the threshold is reached.
func (r *DeviceRepository) RecordPollFailure(ctx context.Context, id string, offlineThreshold int) error {
	now := time.Now()

	var device models.Device
	result := r.db.WithContext(ctx).First(&device, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil
		}
		return result.Error
	}

	failures := device.PollFailureCount + 1
	updates := map[string]interface{}{
		"poll_failure_count":   failures,
		"poll_last_failure_at": now,
	}
	if failures >= offlineThreshold {
		updates["offline"] = true
	}

	return r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// PollTargets returns enabled devices with an IP whose protocol is one of the
// given pollable protocols.
func (r *DeviceRepository) PollTargets(ctx context.Context, protocols []string) ([]models.Device, error) {
	var devices []models.Device
	result := r.db.WithContext(ctx).
		Where("enabled = ? AND ip != '' AND protocol IN ?", true, protocols).
		Order("id ASC").
		Find(&devices)
	return devices, result.Error
}

// ManualProbeTargets returns manual devices with a known IP, for optional
// unicast discovery probes.
func (r *DeviceRepository) ManualProbeTargets(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	result := r.db.WithContext(ctx).
		Where("manual = ? AND ip != ''", true).
		Order("id ASC").
		Find(&devices)
	return devices, result.Error
}
