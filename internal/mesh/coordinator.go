// Package mesh is the participant side of a multi-party session: it turns
// router events into exactly one peer connection per remote participant.
package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"peacepad-signaling/internal/hub"
)

// PeerConn is one negotiated connection to a remote participant. Offers,
// answers and candidates are opaque JSON.
type PeerConn interface {
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	AcceptAnswer(answer json.RawMessage) error
	AddCandidate(candidate json.RawMessage) error
	Close() error
}

// PeerFactory constructs peer connections. onCandidate is called for every
// local candidate discovered for that peer.
type PeerFactory interface {
	NewPeer(peerID string, onCandidate func(candidate json.RawMessage)) (PeerConn, error)
}

// Signaler sends an envelope to the router.
type Signaler interface {
	Signal(env hub.Envelope) error
}

var ErrNotInSession = errors.New("mesh: not in a session")

// Coordinator keeps one participant's side of a full-mesh session. A
// newcomer waits for offers from the members it finds; members offer to every
// peer that joins after them.
type Coordinator struct {
	self     string
	factory  PeerFactory
	signaler Signaler

	mu         sync.Mutex
	code       string
	mediaReady bool
	peers      map[string]PeerConn
	pending    PendingPeers
	offers     PendingOffers
	candidates map[string][]json.RawMessage // remote candidates that beat the remote description
	described  map[string]bool              // peers whose remote description is applied
}

func NewCoordinator(self string, factory PeerFactory, signaler Signaler) *Coordinator {
	if factory == nil {
		panic("PeerFactory cannot be nil for Coordinator")
	}
	if signaler == nil {
		panic("Signaler cannot be nil for Coordinator")
	}
	return &Coordinator{
		self:       self,
		factory:    factory,
		signaler:   signaler,
		peers:      make(map[string]PeerConn),
		candidates: make(map[string][]json.RawMessage),
		described:  make(map[string]bool),
	}
}

// Join asks the router to add this participant to session code.
func (c *Coordinator) Join(code string) error {
	payload, err := json.Marshal(hub.JoinSessionPayload{Code: code})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.code = code
	c.mu.Unlock()
	return c.signaler.Signal(hub.Envelope{Type: hub.KindJoinSession, Payload: payload})
}

// Leave tells the router this participant left and closes every peer.
func (c *Coordinator) Leave() error {
	c.mu.Lock()
	if c.code == "" {
		c.mu.Unlock()
		return ErrNotInSession
	}
	c.code = ""
	c.resetLocked()
	c.mu.Unlock()
	return c.signaler.Signal(hub.Envelope{Type: hub.KindLeaveSession})
}

// MediaReady marks local media as acquired and builds one peer connection per
// queued peer, in the order they were announced.
func (c *Coordinator) MediaReady(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mediaReady {
		return nil
	}
	c.mediaReady = true

	var errs []error
	for _, p := range c.pending.Drain() {
		if err := c.connectLocked(ctx, p.PeerID, p.ShouldCreateOffer); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleEnvelope applies one frame received from the router.
func (c *Coordinator) HandleEnvelope(ctx context.Context, env hub.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Type {
	case hub.KindSessionUsers:
		var p hub.SessionUsersPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("mesh: decode session-users: %w", err)
		}
		var errs []error
		for _, id := range p.Users {
			// newcomer waits for the incumbents' offers
			if err := c.addPeerLocked(ctx, id, false); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)

	case hub.KindPeerJoined:
		return c.addPeerLocked(ctx, env.From, true)

	case hub.KindOffer:
		return c.handleOfferLocked(ctx, env.From, env.Payload)

	case hub.KindAnswer:
		pc, ok := c.peers[env.From]
		if !ok {
			logrus.WithFields(logrus.Fields{"self": c.self, "peer_id": env.From}).Warn("Answer from unknown peer dropped")
			return nil
		}
		if err := pc.AcceptAnswer(env.Payload); err != nil {
			return err
		}
		c.flushCandidatesLocked(env.From, pc)
		return nil

	case hub.KindICECandidate:
		pc, ok := c.peers[env.From]
		if !ok || !c.described[env.From] {
			c.candidates[env.From] = append(c.candidates[env.From], env.Payload)
			return nil
		}
		return pc.AddCandidate(env.Payload)

	case hub.KindPeerLeft:
		c.dropPeerLocked(env.From)
		return nil

	case hub.KindSessionEnded:
		logrus.WithField("self", c.self).Info("Session ended by host")
		return nil
	}
	return nil
}

// Peers returns the ids of the peers with a constructed connection, sorted.
func (c *Coordinator) Peers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.peers))
	for id := range c.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pending reports how many peers and cached offers are still waiting.
func (c *Coordinator) Pending() (peers, offers int) {
	return c.pending.Len(), c.offers.Len()
}

// Close closes every peer connection.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// --- private helpers ---

func (c *Coordinator) addPeerLocked(ctx context.Context, peerID string, shouldOffer bool) error {
	if peerID == "" || peerID == c.self {
		return nil
	}
	if _, exists := c.peers[peerID]; exists {
		return nil
	}
	if !c.mediaReady {
		c.pending.Push(PendingPeer{PeerID: peerID, ShouldCreateOffer: shouldOffer})
		return nil
	}
	return c.connectLocked(ctx, peerID, shouldOffer)
}

func (c *Coordinator) handleOfferLocked(ctx context.Context, from string, offer json.RawMessage) error {
	if from == "" {
		return nil
	}
	if pc, ok := c.peers[from]; ok {
		return c.answerLocked(ctx, from, pc, offer)
	}
	c.offers.Put(from, offer)
	if c.mediaReady {
		return c.connectLocked(ctx, from, false)
	}
	c.pending.Push(PendingPeer{PeerID: from})
	return nil
}

// connectLocked constructs the connection for peerID. A cached offer from
// that peer is answered instead of creating a competing offer.
func (c *Coordinator) connectLocked(ctx context.Context, peerID string, shouldOffer bool) error {
	if _, exists := c.peers[peerID]; exists {
		return nil
	}
	logCtx := logrus.WithFields(logrus.Fields{"self": c.self, "peer_id": peerID})

	pc, err := c.factory.NewPeer(peerID, func(candidate json.RawMessage) {
		if err := c.signaler.Signal(hub.Envelope{Type: hub.KindICECandidate, To: peerID, Payload: candidate}); err != nil {
			logCtx.WithError(err).Warn("Failed to send local candidate")
		}
	})
	if err != nil {
		return fmt.Errorf("mesh: create peer %s: %w", peerID, err)
	}
	c.peers[peerID] = pc

	if offer, ok := c.offers.Take(peerID); ok {
		logCtx.Debug("Answering cached offer")
		return c.answerLocked(ctx, peerID, pc, offer)
	}
	if !shouldOffer {
		return nil
	}

	offer, err := pc.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("mesh: create offer for %s: %w", peerID, err)
	}
	logCtx.Debug("Sending offer")
	return c.signaler.Signal(hub.Envelope{Type: hub.KindOffer, To: peerID, Payload: offer})
}

func (c *Coordinator) answerLocked(ctx context.Context, peerID string, pc PeerConn, offer json.RawMessage) error {
	answer, err := pc.AcceptOffer(ctx, offer)
	if err != nil {
		return fmt.Errorf("mesh: answer offer from %s: %w", peerID, err)
	}
	c.flushCandidatesLocked(peerID, pc)
	return c.signaler.Signal(hub.Envelope{Type: hub.KindAnswer, To: peerID, Payload: answer})
}

// flushCandidatesLocked marks peerID's remote description as applied and
// hands it the candidates buffered until then.
func (c *Coordinator) flushCandidatesLocked(peerID string, pc PeerConn) {
	c.described[peerID] = true
	for _, cand := range c.candidates[peerID] {
		if err := pc.AddCandidate(cand); err != nil {
			logrus.WithError(err).WithField("peer_id", peerID).Warn("Failed to apply early candidate")
		}
	}
	delete(c.candidates, peerID)
}

func (c *Coordinator) dropPeerLocked(peerID string) {
	if pc, ok := c.peers[peerID]; ok {
		if err := pc.Close(); err != nil {
			logrus.WithError(err).WithField("peer_id", peerID).Debug("Peer close error")
		}
		delete(c.peers, peerID)
	}
	c.pending.Remove(peerID)
	c.offers.Take(peerID)
	delete(c.candidates, peerID)
	delete(c.described, peerID)
}

func (c *Coordinator) resetLocked() {
	for id := range c.peers {
		c.dropPeerLocked(id)
	}
	c.pending.Drain()
	for _, id := range c.offers.Peers() {
		c.offers.Take(id)
	}
	c.candidates = make(map[string][]json.RawMessage)
	c.described = make(map[string]bool)
}
