package repository

import (
	"context"

	"peacepad-signaling/internal/domain"
)

// SessionRepository stores multi-party call sessions.
type SessionRepository interface {
	// Create inserts an active session. A code already held by another active
	// session yields ErrDuplicateEntry.
	Create(ctx context.Context, session *domain.CallSession) error

	// FindByCode returns the most recent session with this code, active or not.
	FindByCode(ctx context.Context, code string) (*domain.CallSession, error)

	// IsCodeActive reports whether an active session currently holds code.
	IsCodeActive(ctx context.Context, code string) (bool, error)

	// End marks the active session with this code inactive and stamps EndedAt.
	// Returns ErrSessionNotFound if no active session holds the code.
	End(ctx context.Context, session *domain.CallSession) error
}
