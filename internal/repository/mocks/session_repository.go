package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"peacepad-signaling/internal/domain"
)

// SessionRepository is a testify mock of repository.SessionRepository.
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) Create(ctx context.Context, session *domain.CallSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *SessionRepository) FindByCode(ctx context.Context, code string) (*domain.CallSession, error) {
	args := m.Called(ctx, code)
	var s *domain.CallSession
	if v := args.Get(0); v != nil {
		s = v.(*domain.CallSession)
	}
	return s, args.Error(1)
}

func (m *SessionRepository) IsCodeActive(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *SessionRepository) End(ctx context.Context, session *domain.CallSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}
