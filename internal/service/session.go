package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/domain"
	"peacepad-signaling/internal/repository"
)

const sessionCodeLength = 6

var sessionCodeSpace = big.NewInt(1_000_000)

// SessionService manages multi-party call sessions addressed by a 6-digit code.
type SessionService struct {
	sessionRepo repository.SessionRepository
	notifier    SessionNotifier
	codeGen     func() (string, error)
}

// NewSessionService creates a SessionService. notifier may be nil.
func NewSessionService(sessionRepo repository.SessionRepository, notifier SessionNotifier) *SessionService {
	if sessionRepo == nil {
		panic("SessionRepository cannot be nil for SessionService")
	}
	return &SessionService{
		sessionRepo: sessionRepo,
		notifier:    notifier,
		codeGen:     randomSessionCode,
	}
}

// SetCodeGenerator replaces the random code source.
func (s *SessionService) SetCodeGenerator(gen func() (string, error)) {
	s.codeGen = gen
}

// Create opens a new active session hosted by hostID under a fresh code that
// no other active session holds.
func (s *SessionService) Create(ctx context.Context, hostID string, kind domain.CallKind) (*domain.CallSession, error) {
	logCtx := logrus.WithFields(logrus.Fields{"host_id": hostID, "call_kind": kind})

	// 1. validate before touching the store
	if hostID == "" {
		return nil, validationError("host is required")
	}
	if !kind.Valid() {
		return nil, validationError("callKind must be %q or %q", domain.CallKindAudio, domain.CallKindVideo)
	}

	// 2. draw fresh codes until one is free
	const maxAttempts = 10
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := s.codeGen()
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate session code")
			return nil, ErrInternalServer
		}

		exists, err := s.sessionRepo.IsCodeActive(ctx, code)
		if err != nil {
			logCtx.WithError(err).Error("Failed to check session code")
			return nil, ErrInternalServer
		}
		if exists {
			logCtx.WithField("attempt", attempt+1).Debug("Session code collision, retrying")
			continue
		}

		// 3. insert; the unique index on active_code settles concurrent creates
		session := domain.NewCallSession(code, hostID, kind)
		err = s.sessionRepo.Create(ctx, session)
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// lost a race for the code between the check and the insert
			logCtx.WithField("attempt", attempt+1).Debug("Session code taken concurrently, retrying")
			continue
		}
		if err != nil {
			logCtx.WithError(err).Error("Failed to save new session")
			return nil, ErrInternalServer
		}

		logCtx.WithField("session_code", code).Info("Session created")
		return session, nil
	}

	logCtx.Errorf("Failed to find a free session code after %d attempts", maxAttempts)
	return nil, ErrInternalServer
}

// Lookup returns the session for code. An ended session is returned together
// with ErrSessionInactive.
func (s *SessionService) Lookup(ctx context.Context, code string) (*domain.CallSession, error) {
	if !ValidSessionCode(code) {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessionRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		logrus.WithError(err).WithField("session_code", code).Error("Failed to look up session")
		return nil, ErrInternalServer
	}
	if !session.IsActive {
		return session, ErrSessionInactive
	}
	return session, nil
}

// End closes an active session. Only its host may end it; live members are
// told through the notifier.
func (s *SessionService) End(ctx context.Context, code, by string) (*domain.CallSession, error) {
	logCtx := logrus.WithFields(logrus.Fields{"session_code": code, "by": by})

	// 1. must be active and ours
	session, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.HostID != by {
		return nil, ErrForbidden
	}

	// 2. mark inactive and release the code
	if err := s.sessionRepo.End(ctx, session); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionInactive
		}
		logCtx.WithError(err).Error("Failed to end session")
		return nil, ErrInternalServer
	}

	// 3. tell live members
	if s.notifier != nil {
		s.notifier.NotifySessionEnded(session)
	}
	logCtx.Info("Session ended")
	return session, nil
}

// ValidSessionCode reports whether code is exactly six ASCII digits.
func ValidSessionCode(code string) bool {
	if len(code) != sessionCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func randomSessionCode() (string, error) {
	n, err := rand.Int(rand.Reader, sessionCodeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate random session code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
