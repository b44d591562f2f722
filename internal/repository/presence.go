package repository

import "context"

// PresenceRepository mirrors which participants hold a live channel.
// It is informational; routing decisions use the in-process registry.
type PresenceRepository interface {
	MarkOnline(ctx context.Context, participantID string) error
	MarkOffline(ctx context.Context, participantID string) error
	ListOnline(ctx context.Context) ([]string, error)
}
