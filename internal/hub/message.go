package hub

import (
	"encoding/json"
	"errors"
	"fmt"

	"peacepad-signaling/internal/domain"
)

// Kind is the type tag of a signaling envelope.
type Kind string

// Kinds a participant may send.
const (
	KindJoinSession  Kind = "join-session"
	KindLeaveSession Kind = "leave-session"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	KindCallStart    Kind = "call-start"
	KindCallEnd      Kind = "call-end"
)

// Kinds only the server sends.
const (
	KindSessionUsers Kind = "session-users"
	KindPeerJoined   Kind = "peer-joined"
	KindPeerLeft     Kind = "peer-left"
	KindSessionEnded Kind = "session-ended"
	KindIncomingCall Kind = "incoming-call"
	KindCallEnded    Kind = "call-ended"
	KindCallState    Kind = "call-state"
)

// InboundKinds lists every kind the router accepts from a participant.
var InboundKinds = []Kind{
	KindJoinSession, KindLeaveSession,
	KindOffer, KindAnswer, KindICECandidate,
	KindCallStart, KindCallEnd,
}

// OutboundKinds lists every kind the router delivers to a participant.
var OutboundKinds = []Kind{
	KindSessionUsers, KindPeerJoined, KindPeerLeft, KindSessionEnded,
	KindOffer, KindAnswer, KindICECandidate,
	KindIncomingCall, KindCallEnded, KindCallState,
}

// Envelope is the JSON frame exchanged over the realtime channel.
// Payload is relayed without inspection for negotiation kinds.
type Envelope struct {
	Type    Kind            `json:"type"`
	To      string          `json:"to,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinSessionPayload struct {
	Code string `json:"code"`
}

type SessionUsersPayload struct {
	Code     string          `json:"code"`
	Users    []string        `json:"users"`
	CallKind domain.CallKind `json:"callKind"`
}

// SessionEventPayload accompanies peer-joined, peer-left and session-ended.
type SessionEventPayload struct {
	Code string `json:"code"`
}

type CallStartPayload struct {
	CallKind domain.CallKind `json:"callKind"`
}

var errMissingType = errors.New("envelope has no type")

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, errMissingType
	}
	return env, nil
}

// EncodeEnvelope builds an outbound frame. payload may be nil, a
// json.RawMessage relayed as is, or any value that marshals to JSON.
func EncodeEnvelope(kind Kind, from, to string, payload interface{}) ([]byte, error) {
	env := Envelope{Type: kind, From: from, To: to}
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		env.Payload = p
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
