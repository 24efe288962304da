package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
)

// ErrMappingOverlap is returned when a new mapping's channel range intersects
// an existing one and not all participants allow overlap.
var ErrMappingOverlap = errors.New("mapping overlaps an existing range")

// MappingRepository handles mapping data access.
type MappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new MappingRepository.
func NewMappingRepository(db *gorm.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// FindAll returns all mappings ordered by universe and channel.
func (r *MappingRepository) FindAll(ctx context.Context) ([]models.Mapping, error) {
	var mappings []models.Mapping
	result := r.db.WithContext(ctx).
		Order("universe ASC, channel ASC").
		Find(&mappings)
	return mappings, result.Error
}

// FindByUniverse returns all mappings for one universe.
func (r *MappingRepository) FindByUniverse(ctx context.Context, universe int) ([]models.Mapping, error) {
	var mappings []models.Mapping
	result := r.db.WithContext(ctx).
		Where("universe = ?", universe).
		Order("channel ASC").
		Find(&mappings)
	return mappings, result.Error
}

// Create validates and inserts a mapping. Two mappings whose
// [channel, channel+length) ranges intersect within a universe may coexist
// only if every participant sets allow_overlap.
func (r *MappingRepository) Create(ctx context.Context, m *models.Mapping) error {
	if err := validateRecord(m); err != nil {
		return err
	}
	if err := r.checkOverlap(ctx, m, ""); err != nil {
		return err
	}

	if m.ID == "" {
		m.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// Update validates and saves an existing mapping.
func (r *MappingRepository) Update(ctx context.Context, m *models.Mapping) error {
	if err := validateRecord(m); err != nil {
		return err
	}
	if err := r.checkOverlap(ctx, m, m.ID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(m).Error
}

// Delete removes a mapping by id.
func (r *MappingRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Mapping{}, "id = ?", id).Error
}

// validateRecord enforces the structural invariants of a mapping row.
func validateRecord(m *models.Mapping) error {
	if m.Channel < 1 || m.Channel > 512 {
		return fmt.Errorf("channel %d out of range 1..512", m.Channel)
	}
	if m.Length < 1 {
		return fmt.Errorf("length %d must be >= 1", m.Length)
	}
	if m.Channel+m.Length-1 > 512 {
		return fmt.Errorf("range [%d,%d) exceeds universe size", m.Channel, m.Channel+m.Length)
	}
	switch m.MappingType {
	case "discrete":
		if m.Field == nil || *m.Field == "" {
			return errors.New("discrete mapping requires a field")
		}
		if m.Length != 1 {
			return errors.New("discrete mapping requires length == 1")
		}
	case "range":
		// Range length sufficiency for the resolved mode is checked at
		// compile time, where templates are expanded.
	default:
		return fmt.Errorf("unknown mapping type %q", m.MappingType)
	}
	if m.Gamma != nil && (*m.Gamma < 0.1 || *m.Gamma > 5.0) {
		return fmt.Errorf("gamma %v out of range [0.1, 5.0]", *m.Gamma)
	}
	if m.Dimmer != nil && (*m.Dimmer < 0.0 || *m.Dimmer > 1.0) {
		return fmt.Errorf("dimmer %v out of range [0.0, 1.0]", *m.Dimmer)
	}
	return nil
}

// checkOverlap rejects intersecting ranges in the same universe unless every
// participating mapping allows overlap. excludeID skips the row being updated.
func (r *MappingRepository) checkOverlap(ctx context.Context, m *models.Mapping, excludeID string) error {
	var existing []models.Mapping
	query := r.db.WithContext(ctx).Where("universe = ?", m.Universe)
	if excludeID != "" {
		query = query.Where("id != ?", excludeID)
	}
	if err := query.Find(&existing).Error; err != nil {
		return err
	}

	newStart, newEnd := m.Channel, m.Channel+m.Length
	for _, other := range existing {
		otherStart, otherEnd := other.Channel, other.Channel+other.Length
		if newStart < otherEnd && otherStart < newEnd {
			if !m.AllowOverlap || !other.AllowOverlap {
				return fmt.Errorf("%w: [%d,%d) intersects mapping %s [%d,%d)",
					ErrMappingOverlap, newStart, newEnd, other.ID, otherStart, otherEnd)
			}
		}
	}
	return nil
}
