package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// PresenceRepository is a testify mock of repository.PresenceRepository.
type PresenceRepository struct {
	mock.Mock
}

func (m *PresenceRepository) MarkOnline(ctx context.Context, participantID string) error {
	return m.Called(ctx, participantID).Error(0)
}

func (m *PresenceRepository) MarkOffline(ctx context.Context, participantID string) error {
	return m.Called(ctx, participantID).Error(0)
}

func (m *PresenceRepository) ListOnline(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var ids []string
	if v := args.Get(0); v != nil {
		ids = v.([]string)
	}
	return ids, args.Error(1)
}
