package domain

import (
	"strconv"
	"time"
)

// CallKind is the media kind requested for a call or session.
type CallKind string

const (
	CallKindAudio CallKind = "audio"
	CallKindVideo CallKind = "video"
)

// Valid reports whether k is a supported call kind.
func (k CallKind) Valid() bool {
	return k == CallKindAudio || k == CallKindVideo
}

// CallStatus is a state of the direct call state machine:
//
//	ringing -> active | declined | missed
//	active  -> ended
type CallStatus string

const (
	CallStatusRinging  CallStatus = "ringing"
	CallStatusActive   CallStatus = "active"
	CallStatusDeclined CallStatus = "declined"
	CallStatusMissed   CallStatus = "missed"
	CallStatusEnded    CallStatus = "ended"
)

// Terminal reports whether no further transition is possible from s.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusDeclined, CallStatusMissed, CallStatusEnded:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows s -> next.
func (s CallStatus) CanTransition(next CallStatus) bool {
	switch s {
	case CallStatusRinging:
		return next == CallStatusActive || next == CallStatusDeclined || next == CallStatusMissed
	case CallStatusActive:
		return next == CallStatusEnded
	}
	return false
}

// DefaultDeclineReason is stored when a receiver declines without a reason.
const DefaultDeclineReason = "Call declined"

// ZeroDuration is the duration stored by every terminal transition except active -> ended.
const ZeroDuration = "0"

// Call is a persisted direct (one-to-one) ringing call.
type Call struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	CallerID      string     `gorm:"size:64;index;not null" json:"callerId"`
	ReceiverID    string     `gorm:"size:64;index;not null" json:"receiverId"`
	PartnershipID *string    `gorm:"size:64;index" json:"partnershipId,omitempty"`
	CallKind      CallKind   `gorm:"size:10;not null" json:"callKind"`
	Status        CallStatus `gorm:"size:16;index;not null" json:"status"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	Duration      *string    `gorm:"size:20" json:"duration,omitempty"` // whole seconds, decimal
	DeclineReason *string    `gorm:"size:255" json:"declineReason,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// IsParty reports whether participantID is the caller or the receiver.
func (c *Call) IsParty(participantID string) bool {
	return participantID != "" && (participantID == c.CallerID || participantID == c.ReceiverID)
}

// OtherParty returns the participant on the other end of the call from participantID.
func (c *Call) OtherParty(participantID string) string {
	if participantID == c.CallerID {
		return c.ReceiverID
	}
	return c.CallerID
}

// CallDuration returns floor((endedAt-startedAt)/1000) seconds as a decimal string.
// A negative span (clock skew) is clamped to zero.
func CallDuration(startedAt, endedAt time.Time) string {
	ms := endedAt.Sub(startedAt).Milliseconds()
	if ms < 0 {
		return ZeroDuration
	}
	return strconv.FormatInt(ms/1000, 10)
}

// HistoryFilter selects which calls a participant's history returns.
type HistoryFilter string

const (
	HistoryAll      HistoryFilter = "all"
	HistoryMissed   HistoryFilter = "missed"
	HistoryReceived HistoryFilter = "received"
	HistoryOutgoing HistoryFilter = "outgoing"
)

// Valid reports whether f is a known filter.
func (f HistoryFilter) Valid() bool {
	switch f {
	case HistoryAll, HistoryMissed, HistoryReceived, HistoryOutgoing:
		return true
	}
	return false
}
