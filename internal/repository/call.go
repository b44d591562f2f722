package repository

import (
	"context"

	"peacepad-signaling/internal/domain"
)

// CallRepository stores direct calls.
type CallRepository interface {
	// Create inserts a new call. The caller assigns the ID.
	Create(ctx context.Context, call *domain.Call) error

	// FindByID returns ErrCallNotFound when no call has this id.
	FindByID(ctx context.Context, id string) (*domain.Call, error)

	// CompareAndUpdate applies the changed fields of next only if the stored
	// status still equals expected. It returns ErrStateConflict when the row
	// exists but its status moved on, and ErrCallNotFound when it does not exist.
	CompareAndUpdate(ctx context.Context, expected domain.CallStatus, next *domain.Call) error

	// ListForParticipant returns the participant's calls, newest first.
	ListForParticipant(ctx context.Context, participantID string, filter domain.HistoryFilter, limit int) ([]domain.Call, error)
}
