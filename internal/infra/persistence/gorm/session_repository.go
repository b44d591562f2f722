package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"peacepad-signaling/internal/domain"
	"peacepad-signaling/internal/repository"
)

// GormSessionRepository is the GORM implementation of repository.SessionRepository.
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a GormSessionRepository.
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormSessionRepository")
	}
	return &GormSessionRepository{db: db}
}

// Create inserts a new active session.
func (r *GormSessionRepository) Create(ctx context.Context, session *domain.CallSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create session (code: %s): %w", session.SessionCode, err)
	}
	return nil
}

// FindByCode returns the newest session that used code.
func (r *GormSessionRepository) FindByCode(ctx context.Context, code string) (*domain.CallSession, error) {
	var session domain.CallSession
	err := r.db.WithContext(ctx).Where("session_code = ?", code).Order("id DESC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("gorm: find session by code '%s': %w", code, err)
	}
	return &session, nil
}

// IsCodeActive checks the active-code unique column.
func (r *GormSessionRepository) IsCodeActive(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.CallSession{}).Where("active_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count active sessions by code '%s': %w", code, err)
	}
	return count > 0, nil
}

// End deactivates the session and releases its code for reuse.
func (r *GormSessionRepository) End(ctx context.Context, session *domain.CallSession) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&domain.CallSession{}).
		Where("active_code = ? AND is_active = ?", session.SessionCode, true).
		Updates(map[string]interface{}{
			"is_active":   false,
			"ended_at":    now,
			"active_code": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: end session (code: %s): %w", session.SessionCode, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}
	session.IsActive = false
	session.EndedAt = &now
	session.ActiveCode = nil
	return nil
}
