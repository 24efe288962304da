package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
)

// QueueRepository handles the pending state-update queue.
type QueueRepository struct {
	db *gorm.DB
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue appends a state update for a device.
func (r *QueueRepository) Enqueue(ctx context.Context, deviceID, payloadJSON string, contextID *string) error {
	row := models.QueuedState{
		DeviceID:  deviceID,
		Payload:   payloadJSON,
		ContextID: contextID,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// PendingDeviceIDs returns the distinct device ids with queued updates.
func (r *QueueRepository) PendingDeviceIDs(ctx context.Context) ([]string, error) {
	var ids []string
	result := r.db.WithContext(ctx).
		Model(&models.QueuedState{}).
		Distinct("device_id").
		Order("device_id ASC").
		Pluck("device_id", &ids)
	return ids, result.Error
}

// PopNextFor removes and returns the oldest queued update for a device,
// or nil when the device's queue is empty.
func (r *QueueRepository) PopNextFor(ctx context.Context, deviceID string) (*models.QueuedState, error) {
	var row models.QueuedState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("device_id = ?", deviceID).
			Order("id ASC").
			First(&row)
		if result.Error != nil {
			return result.Error
		}
		return tx.Delete(&models.QueuedState{}, row.ID).Error
	})
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// CountPending returns the total number of queued updates.
func (r *QueueRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&models.QueuedState{}).
		Count(&count)
	return count, result.Error
}
