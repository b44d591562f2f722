package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"peacepad-signaling/internal/domain"
	"peacepad-signaling/internal/repository"
)

// GormCallRepository is the GORM implementation of repository.CallRepository.
type GormCallRepository struct {
	db *gorm.DB
}

// NewGormCallRepository creates a GormCallRepository.
func NewGormCallRepository(db *gorm.DB) *GormCallRepository {
	if db == nil {
		panic("database connection cannot be nil for GormCallRepository")
	}
	return &GormCallRepository{db: db}
}

// Create inserts a new call row.
func (r *GormCallRepository) Create(ctx context.Context, call *domain.Call) error {
	if err := r.db.WithContext(ctx).Create(call).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create call (id: %s): %w", call.ID, err)
	}
	return nil
}

// FindByID loads one call.
func (r *GormCallRepository) FindByID(ctx context.Context, id string) (*domain.Call, error) {
	var call domain.Call
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&call).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrCallNotFound
		}
		return nil, fmt.Errorf("gorm: find call by id '%s': %w", id, err)
	}
	return &call, nil
}

// CompareAndUpdate writes the transition fields of next in a single guarded
// UPDATE so that two racing transitions cannot both apply.
func (r *GormCallRepository) CompareAndUpdate(ctx context.Context, expected domain.CallStatus, next *domain.Call) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Call{}).
		Where("id = ? AND status = ?", next.ID, expected).
		Updates(map[string]interface{}{
			"status":         next.Status,
			"started_at":     next.StartedAt,
			"ended_at":       next.EndedAt,
			"duration":       next.Duration,
			"decline_reason": next.DeclineReason,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: update call %s (%s -> %s): %w", next.ID, expected, next.Status, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Nothing matched: either the call is gone or its status moved on.
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Call{}).Where("id = ?", next.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("gorm: count call %s after guarded update: %w", next.ID, err)
	}
	if count == 0 {
		return repository.ErrCallNotFound
	}
	return repository.ErrStateConflict
}

// ListForParticipant returns the participant's call history, newest first.
func (r *GormCallRepository) ListForParticipant(ctx context.Context, participantID string, filter domain.HistoryFilter, limit int) ([]domain.Call, error) {
	q := r.db.WithContext(ctx).Model(&domain.Call{})
	switch filter {
	case domain.HistoryMissed:
		q = q.Where("receiver_id = ? AND status = ?", participantID, domain.CallStatusMissed)
	case domain.HistoryReceived:
		q = q.Where("receiver_id = ?", participantID)
	case domain.HistoryOutgoing:
		q = q.Where("caller_id = ?", participantID)
	default:
		q = q.Where("caller_id = ? OR receiver_id = ?", participantID, participantID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var calls []domain.Call
	if err := q.Order("created_at DESC").Find(&calls).Error; err != nil {
		return nil, fmt.Errorf("gorm: list calls for participant '%s' (filter %s): %w", participantID, filter, err)
	}
	return calls, nil
}
