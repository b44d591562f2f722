package domain

import "time"

// CallSession is a multi-party call room addressed by a short numeric code.
// Who is currently in the room is not stored here; the hub derives it from
// live connections.
type CallSession struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	SessionCode string `gorm:"size:6;index;not null" json:"sessionCode"`
	// ActiveCode mirrors SessionCode while the session is active and is NULL
	// afterwards, so the unique index only constrains active sessions.
	ActiveCode *string    `gorm:"size:6;uniqueIndex" json:"-"`
	HostID     string     `gorm:"size:64;index;not null" json:"hostId"`
	CallKind   CallKind   `gorm:"size:10;not null" json:"callKind"`
	IsActive   bool       `gorm:"index;not null" json:"isActive"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

// NewCallSession builds an active session for host with the given code.
func NewCallSession(code, hostID string, kind CallKind) *CallSession {
	active := code
	return &CallSession{
		SessionCode: code,
		ActiveCode:  &active,
		HostID:      hostID,
		CallKind:    kind,
		IsActive:    true,
	}
}
