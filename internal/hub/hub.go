package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/domain"
	"peacepad-signaling/internal/repository"
)

// Package-level websocket limits shared by Client.
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP offers with many
	// candidates run to several kilobytes.
	maxMessageSize = 64 * 1024

	presenceTimeout = 2 * time.Second

	// A join whose session ends mid-lookup is retried once against the
	// directory before being dropped.
	joinAttempts = 2
)

type routeFunc func(ctx context.Context, from string, ch Channel, env Envelope)

type presenceEvent struct {
	participantID string
	online        bool
}

// Hub is the signaling router. It owns the connection registry and the live
// session membership derived from it; nothing about membership is persisted.
type Hub struct {
	registry *Registry
	sessions repository.SessionRepository
	presence repository.PresenceRepository

	membersMu sync.Mutex
	members   map[string]map[string]struct{} // session code -> participant ids
	memberOf  map[string]string              // participant id -> session code
	endings   map[string]uint64              // session code -> sessions ended under it

	routes map[Kind]routeFunc

	events   chan presenceEvent
	quit     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a Hub. presence may be nil, in which case connect and
// disconnect are not mirrored anywhere.
func NewHub(registry *Registry, sessions repository.SessionRepository, presence repository.PresenceRepository) *Hub {
	if registry == nil {
		panic("Registry cannot be nil for Hub")
	}
	if sessions == nil {
		panic("SessionRepository cannot be nil for Hub")
	}
	h := &Hub{
		registry: registry,
		sessions: sessions,
		presence: presence,
		members:  make(map[string]map[string]struct{}),
		memberOf: make(map[string]string),
		endings:  make(map[string]uint64),
		events:   make(chan presenceEvent, 512),
		quit:     make(chan struct{}),
	}
	h.routes = map[Kind]routeFunc{
		KindJoinSession:  h.handleJoinSession,
		KindLeaveSession: h.handleLeaveSession,
		KindOffer:        h.relay,
		KindAnswer:       h.relay,
		KindICECandidate: h.relay,
		KindCallStart:    h.handleCallStart,
		KindCallEnd:      h.handleCallEnd,
	}
	return h
}

// Run mirrors presence changes into the presence store until Stop is called.
// It should run in its own goroutine.
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	for {
		select {
		case ev := <-h.events:
			h.mirrorPresence(ev)
		case <-h.quit:
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop ends Run. Live channels are left to the HTTP server shutdown.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

func (h *Hub) Registry() *Registry { return h.registry }

// Connect registers ch as participantID's live channel. A previous channel
// for the same participant is closed and leaves its session.
func (h *Hub) Connect(participantID string, ch Channel) {
	logCtx := logrus.WithFields(logrus.Fields{"participant_id": participantID, "action": "connect"})
	if replaced := h.registry.Register(participantID, ch); replaced != nil {
		h.leaveSession(participantID)
		replaced.Close()
		logCtx.Info("Replaced existing connection")
	}
	h.queuePresence(participantID, true)
	logCtx.Info("Client registered to Hub")
}

// Disconnect removes ch if it is still participantID's live channel and
// tells the rest of its session.
func (h *Hub) Disconnect(participantID string, ch Channel) {
	logCtx := logrus.WithFields(logrus.Fields{"participant_id": participantID, "action": "disconnect"})
	if h.registry.Unregister(participantID, ch) {
		h.leaveSession(participantID)
		h.queuePresence(participantID, false)
		logCtx.Info("Client unregistered from Hub")
	} else {
		logCtx.Debug("Stale connection closed")
	}
	ch.Close()
}

// Route handles one inbound frame read from participant from's channel ch.
// Frames from a channel that is no longer registered for from, malformed
// frames and unknown kinds are logged and dropped.
func (h *Hub) Route(ctx context.Context, from string, ch Channel, frame []byte) {
	logCtx := logrus.WithField("participant_id", from)
	if !h.isLive(from, ch) {
		logCtx.Debug("Dropping frame from replaced connection")
		return
	}
	env, err := DecodeEnvelope(frame)
	if err != nil {
		logCtx.WithError(err).Warn("Dropping malformed signaling frame")
		return
	}
	route, ok := h.routes[env.Type]
	if !ok {
		logCtx.WithField("type", env.Type).Warn("Dropping signaling frame of unknown type")
		return
	}
	route(ctx, from, ch, env)
}

// Members returns the participants currently in session code, sorted.
func (h *Hub) Members(code string) []string {
	h.membersMu.Lock()
	defer h.membersMu.Unlock()
	return h.membersLocked(code, "")
}

// NotifyCall sends the call's current state to participantID. It reports
// false when the participant has no live channel.
func (h *Hub) NotifyCall(participantID string, call *domain.Call) bool {
	frame, err := EncodeEnvelope(KindCallState, call.OtherParty(participantID), participantID, call)
	if err != nil {
		logrus.WithError(err).WithField("call_id", call.ID).Error("Failed to encode call-state")
		return false
	}
	return h.registry.Send(participantID, frame)
}

// NotifySessionEnded tells every live member that the session has ended and
// clears its membership, so a later session issued the same code starts
// empty. Peer connections already set up are left to the participants.
func (h *Hub) NotifySessionEnded(session *domain.CallSession) {
	h.membersMu.Lock()
	defer h.membersMu.Unlock()
	recipients := h.membersLocked(session.SessionCode, "")
	h.broadcastLocked(recipients, KindSessionEnded, session.HostID, SessionEventPayload{Code: session.SessionCode})

	// forget the ended membership and invalidate joins still looking it up
	for _, id := range recipients {
		delete(h.memberOf, id)
	}
	delete(h.members, session.SessionCode)
	h.endings[session.SessionCode]++

	logrus.WithFields(logrus.Fields{
		"session_code":    session.SessionCode,
		"recipient_count": len(recipients),
	}).Info("Session end broadcast")
}

// --- route handlers ---

// handleJoinSession snapshots the members already in the session and adds the
// newcomer under one lock. The newcomer receives the snapshot and waits; each
// incumbent receives peer-joined and makes the offer.
func (h *Hub) handleJoinSession(ctx context.Context, from string, ch Channel, env Envelope) {
	logCtx := logrus.WithFields(logrus.Fields{"participant_id": from, "operation": "joinSession"})

	var p JoinSessionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Code == "" {
		logCtx.Warn("Dropping join-session without a session code")
		return
	}
	logCtx = logCtx.WithField("session_code", p.Code)

	for attempt := 1; attempt <= joinAttempts; attempt++ {
		// the directory lookup runs outside membersMu; the epoch tells us
		// afterwards whether the session ended in the meantime
		epoch := h.endingEpoch(p.Code)
		session, ok := h.activeSession(ctx, logCtx, p.Code)
		if !ok {
			return
		}
		if h.joinIfCurrent(from, ch, session, epoch, logCtx) {
			return
		}
		logCtx.WithField("attempt", attempt).Info("Session ended during join lookup")
	}
	logCtx.Warn("Dropping join-session, session kept ending during lookup")
}

// activeSession resolves code to an active session, logging why it could not.
func (h *Hub) activeSession(ctx context.Context, logCtx *logrus.Entry, code string) (*domain.CallSession, bool) {
	session, err := h.sessions.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			logCtx.Warn("Dropping join-session for unknown session")
		} else {
			logCtx.WithError(err).Error("Failed to look up session for join")
		}
		return nil, false
	}
	if !session.IsActive {
		logCtx.Warn("Dropping join-session for ended session")
		return nil, false
	}
	return session, true
}

// joinIfCurrent adds from to session unless the session ended after epoch was
// read. It reports false only in that case so the caller can look again.
func (h *Hub) joinIfCurrent(from string, ch Channel, session *domain.CallSession, epoch uint64, logCtx *logrus.Entry) bool {
	code := session.SessionCode

	h.membersMu.Lock()
	defer h.membersMu.Unlock()

	if h.endings[code] != epoch {
		return false
	}
	// a reconnect that raced this frame already cleaned up after ch
	if !h.isLive(from, ch) {
		logCtx.Debug("Dropping join-session from replaced connection")
		return true
	}

	// leave the previous session first
	if current, ok := h.memberOf[from]; ok && current != code {
		oldCode, remaining := h.removeMemberLocked(from)
		h.broadcastLocked(remaining, KindPeerLeft, from, SessionEventPayload{Code: oldCode})
	}

	existing := h.membersLocked(code, from)
	rejoin := h.memberOf[from] == code
	h.addMemberLocked(code, from)

	// snapshot for the newcomer
	snapshot, err := EncodeEnvelope(KindSessionUsers, "", from, SessionUsersPayload{
		Code:     code,
		Users:    existing,
		CallKind: session.CallKind,
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to encode session-users")
		return true
	}
	h.registry.Send(from, snapshot)

	// incumbents offer to the newcomer
	if !rejoin {
		h.broadcastLocked(existing, KindPeerJoined, from, SessionEventPayload{Code: code})
	}
	logCtx.WithField("existing_count", len(existing)).Info("Participant joined session")
	return true
}

func (h *Hub) handleLeaveSession(_ context.Context, from string, _ Channel, _ Envelope) {
	h.leaveSession(from)
}

// relay forwards offer, answer and ice-candidate frames to env.To unchanged
// apart from the from stamp.
func (h *Hub) relay(_ context.Context, from string, _ Channel, env Envelope) {
	logCtx := logrus.WithFields(logrus.Fields{"participant_id": from, "type": env.Type, "to": env.To})
	if env.To == "" {
		logCtx.Warn("Dropping relay frame without recipient")
		return
	}
	frame, err := EncodeEnvelope(env.Type, from, env.To, env.Payload)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to re-encode relay frame")
		return
	}
	if !h.registry.Send(env.To, frame) {
		logCtx.Debug("Recipient offline, relay frame dropped")
	}
}

func (h *Hub) handleCallStart(_ context.Context, from string, _ Channel, env Envelope) {
	logCtx := logrus.WithFields(logrus.Fields{"participant_id": from, "to": env.To})
	if env.To == "" {
		logCtx.Warn("Dropping call-start without recipient")
		return
	}
	var p CallStartPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			logCtx.WithError(err).Warn("Dropping call-start with malformed payload")
			return
		}
	}
	if p.CallKind == "" {
		p.CallKind = domain.CallKindVideo
	}
	if !p.CallKind.Valid() {
		logCtx.WithField("call_kind", p.CallKind).Warn("Dropping call-start with unknown call kind")
		return
	}
	h.sendTo(env.To, KindIncomingCall, from, p)
}

func (h *Hub) handleCallEnd(_ context.Context, from string, _ Channel, env Envelope) {
	if env.To == "" {
		logrus.WithField("participant_id", from).Warn("Dropping call-end without recipient")
		return
	}
	h.sendTo(env.To, KindCallEnded, from, nil)
}

// --- membership helpers ---

// isLive reports whether ch is still the registered channel for participantID.
func (h *Hub) isLive(participantID string, ch Channel) bool {
	current, ok := h.registry.Lookup(participantID)
	return ok && current == ch
}

func (h *Hub) endingEpoch(code string) uint64 {
	h.membersMu.Lock()
	defer h.membersMu.Unlock()
	return h.endings[code]
}

func (h *Hub) leaveSession(participantID string) {
	h.membersMu.Lock()
	defer h.membersMu.Unlock()
	code, remaining := h.removeMemberLocked(participantID)
	if code == "" {
		return
	}
	h.broadcastLocked(remaining, KindPeerLeft, participantID, SessionEventPayload{Code: code})
	logrus.WithFields(logrus.Fields{
		"participant_id": participantID,
		"session_code":   code,
		"remaining":      len(remaining),
	}).Info("Participant left session")
}

func (h *Hub) addMemberLocked(code, participantID string) {
	set, ok := h.members[code]
	if !ok {
		set = make(map[string]struct{})
		h.members[code] = set
	}
	set[participantID] = struct{}{}
	h.memberOf[participantID] = code
}

// removeMemberLocked drops participantID from its session and returns the
// session code and the members left behind.
func (h *Hub) removeMemberLocked(participantID string) (string, []string) {
	code, ok := h.memberOf[participantID]
	if !ok {
		return "", nil
	}
	delete(h.memberOf, participantID)
	if set, ok := h.members[code]; ok {
		delete(set, participantID)
		if len(set) == 0 {
			delete(h.members, code)
		}
	}
	return code, h.membersLocked(code, "")
}

func (h *Hub) membersLocked(code, exclude string) []string {
	set := h.members[code]
	ids := make([]string, 0, len(set))
	for id := range set {
		if id != exclude {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// broadcastLocked sends one frame per recipient; a full or missing channel
// only skips that recipient.
func (h *Hub) broadcastLocked(recipients []string, kind Kind, from string, payload interface{}) {
	for _, id := range recipients {
		h.sendTo(id, kind, from, payload)
	}
}

func (h *Hub) sendTo(to string, kind Kind, from string, payload interface{}) bool {
	frame, err := EncodeEnvelope(kind, from, to, payload)
	if err != nil {
		logrus.WithError(err).WithField("type", kind).Error("Failed to encode signaling frame")
		return false
	}
	if !h.registry.Send(to, frame) {
		logrus.WithFields(logrus.Fields{"type": kind, "to": to}).Debug("Recipient unavailable, frame dropped")
		return false
	}
	return true
}

// --- presence mirror ---

func (h *Hub) queuePresence(participantID string, online bool) {
	if h.presence == nil {
		return
	}
	select {
	case h.events <- presenceEvent{participantID: participantID, online: online}:
	default:
		logrus.WithField("participant_id", participantID).Warn("Hub presence queue full, dropping presence update")
	}
}

func (h *Hub) mirrorPresence(ev presenceEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	var err error
	if ev.online {
		err = h.presence.MarkOnline(ctx, ev.participantID)
	} else {
		err = h.presence.MarkOffline(ctx, ev.participantID)
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"participant_id": ev.participantID,
			"online":         ev.online,
		}).Warn("Failed to mirror presence")
	}
}
