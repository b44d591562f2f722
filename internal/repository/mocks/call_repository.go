package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"peacepad-signaling/internal/domain"
)

// CallRepository is a testify mock of repository.CallRepository.
type CallRepository struct {
	mock.Mock
}

func (m *CallRepository) Create(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *CallRepository) FindByID(ctx context.Context, id string) (*domain.Call, error) {
	args := m.Called(ctx, id)
	var call *domain.Call
	if v := args.Get(0); v != nil {
		call = v.(*domain.Call)
	}
	return call, args.Error(1)
}

func (m *CallRepository) CompareAndUpdate(ctx context.Context, expected domain.CallStatus, next *domain.Call) error {
	args := m.Called(ctx, expected, next)
	return args.Error(0)
}

func (m *CallRepository) ListForParticipant(ctx context.Context, participantID string, filter domain.HistoryFilter, limit int) ([]domain.Call, error) {
	args := m.Called(ctx, participantID, filter, limit)
	var calls []domain.Call
	if v := args.Get(0); v != nil {
		calls = v.([]domain.Call)
	}
	return calls, args.Error(1)
}
