package repositories

import (
	"context"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
)

// DeadLetterRepository handles undeliverable payloads.
type DeadLetterRepository struct {
	db *gorm.DB
}

// NewDeadLetterRepository creates a new DeadLetterRepository.
func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// Add appends a dead letter. The table is append-only; pruning is handled by
// an external retention job.
func (r *DeadLetterRepository) Add(ctx context.Context, deviceID, payloadJSON, reason string, attempts int) error {
	row := models.DeadLetter{
		ID:       cuid.New(),
		DeviceID: deviceID,
		Payload:  payloadJSON,
		Reason:   reason,
		Attempts: attempts,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// FindAll returns all dead letters, newest first.
func (r *DeadLetterRepository) FindAll(ctx context.Context) ([]models.DeadLetter, error) {
	var letters []models.DeadLetter
	result := r.db.WithContext(ctx).
		Order("first_seen DESC").
		Find(&letters)
	return letters, result.Error
}

// CountByReason returns the number of dead letters per reason.
func (r *DeadLetterRepository) CountByReason(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Reason string
		Count  int64
	}
	var rows []row
	result := r.db.WithContext(ctx).
		Model(&models.DeadLetter{}).
		Select("reason, count(*) as count").
		Group("reason").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Reason] = r.Count
	}
	return counts, nil
}
