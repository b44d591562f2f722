package gormpersistence_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"peacepad-signaling/internal/domain"
	gormpersistence "peacepad-signaling/internal/infra/persistence/gorm"
	"peacepad-signaling/internal/infra/setup"
	"peacepad-signaling/internal/repository"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := setup.InitDB(setup.DBOptions{
		Driver: setup.DriverSQLite,
		Name:   filepath.Join(t.TempDir(), "calls.db"),
	})
	require.NoError(t, err)
	require.NoError(t, setup.MigrateDB(db))
	return db
}

func ringingCall(id, caller, receiver string) *domain.Call {
	return &domain.Call{
		ID:         id,
		CallerID:   caller,
		ReceiverID: receiver,
		CallKind:   domain.CallKindVideo,
		Status:     domain.CallStatusRinging,
	}
}

func TestGormCallRepository_CreateAndFind(t *testing.T) {
	repo := gormpersistence.NewGormCallRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, ringingCall("c1", "u1", "u2")))

	got, err := repo.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusRinging, got.Status)
	assert.Equal(t, "u1", got.CallerID)
	assert.Nil(t, got.StartedAt)

	_, err = repo.FindByID(ctx, "missing")
	assert.True(t, errors.Is(err, repository.ErrCallNotFound))

	err = repo.Create(ctx, ringingCall("c1", "u1", "u2"))
	assert.True(t, errors.Is(err, repository.ErrDuplicateEntry))
}

func TestGormCallRepository_CompareAndUpdate(t *testing.T) {
	repo := gormpersistence.NewGormCallRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, ringingCall("c1", "u1", "u2")))

	now := time.Now().UTC().Truncate(time.Millisecond)
	next := ringingCall("c1", "u1", "u2")
	next.Status = domain.CallStatusActive
	next.StartedAt = &now
	require.NoError(t, repo.CompareAndUpdate(ctx, domain.CallStatusRinging, next))

	got, err := repo.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatusActive, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.WithinDuration(t, now, *got.StartedAt, time.Millisecond)

	// Same guard again: the row is no longer ringing.
	err = repo.CompareAndUpdate(ctx, domain.CallStatusRinging, next)
	assert.True(t, errors.Is(err, repository.ErrStateConflict))

	missing := ringingCall("nope", "u1", "u2")
	err = repo.CompareAndUpdate(ctx, domain.CallStatusRinging, missing)
	assert.True(t, errors.Is(err, repository.ErrCallNotFound))
}

func TestGormCallRepository_RacingTransitionsHaveOneWinner(t *testing.T) {
	repo := gormpersistence.NewGormCallRepository(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, ringingCall("race", "u1", "u2")))

	reason := domain.DefaultDeclineReason
	zero := domain.ZeroDuration
	now := time.Now().UTC()

	accept := ringingCall("race", "u1", "u2")
	accept.Status = domain.CallStatusActive
	accept.StartedAt = &now

	decline := ringingCall("race", "u1", "u2")
	decline.Status = domain.CallStatusDeclined
	decline.EndedAt = &now
	decline.Duration = &zero
	decline.DeclineReason = &reason

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, next := range []*domain.Call{accept, decline} {
		wg.Add(1)
		go func(i int, next *domain.Call) {
			defer wg.Done()
			results[i] = repo.CompareAndUpdate(ctx, domain.CallStatusRinging, next)
		}(i, next)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, repository.ErrStateConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	got, err := repo.FindByID(ctx, "race")
	require.NoError(t, err)
	assert.Contains(t, []domain.CallStatus{domain.CallStatusActive, domain.CallStatusDeclined}, got.Status)
}

func TestGormCallRepository_ListForParticipant(t *testing.T) {
	db := openTestDB(t)
	repo := gormpersistence.NewGormCallRepository(db)
	ctx := context.Background()

	outgoing := ringingCall("out", "me", "other")
	received := ringingCall("in", "other", "me")
	received.Status = domain.CallStatusEnded
	missed := ringingCall("missed", "other", "me")
	missed.Status = domain.CallStatusMissed
	unrelated := ringingCall("x", "a", "b")
	for _, c := range []*domain.Call{outgoing, received, missed, unrelated} {
		require.NoError(t, repo.Create(ctx, c))
	}

	ids := func(filter domain.HistoryFilter) []string {
		calls, err := repo.ListForParticipant(ctx, "me", filter, 50)
		require.NoError(t, err)
		out := make([]string, 0, len(calls))
		for _, c := range calls {
			out = append(out, c.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"out", "in", "missed"}, ids(domain.HistoryAll))
	assert.ElementsMatch(t, []string{"missed"}, ids(domain.HistoryMissed))
	assert.ElementsMatch(t, []string{"in", "missed"}, ids(domain.HistoryReceived))
	assert.ElementsMatch(t, []string{"out"}, ids(domain.HistoryOutgoing))
}

func TestGormSessionRepository_ActiveCodeUniqueness(t *testing.T) {
	repo := gormpersistence.NewGormSessionRepository(openTestDB(t))
	ctx := context.Background()

	first := domain.NewCallSession("123456", "host", domain.CallKindAudio)
	require.NoError(t, repo.Create(ctx, first))

	active, err := repo.IsCodeActive(ctx, "123456")
	require.NoError(t, err)
	assert.True(t, active)

	// A second active session cannot take the same code.
	err = repo.Create(ctx, domain.NewCallSession("123456", "other", domain.CallKindVideo))
	assert.True(t, errors.Is(err, repository.ErrDuplicateEntry))

	require.NoError(t, repo.End(ctx, first))
	assert.False(t, first.IsActive)
	assert.NotNil(t, first.EndedAt)

	active, err = repo.IsCodeActive(ctx, "123456")
	require.NoError(t, err)
	assert.False(t, active)

	// Ending twice finds no active session.
	assert.True(t, errors.Is(repo.End(ctx, first), repository.ErrSessionNotFound))

	// Once ended, the code may be reused and lookups see the newest session.
	second := domain.NewCallSession("123456", "other", domain.CallKindVideo)
	require.NoError(t, repo.Create(ctx, second))

	got, err := repo.FindByCode(ctx, "123456")
	require.NoError(t, err)
	assert.Equal(t, "other", got.HostID)
	assert.True(t, got.IsActive)

	_, err = repo.FindByCode(ctx, "999999")
	assert.True(t, errors.Is(err, repository.ErrSessionNotFound))
}
