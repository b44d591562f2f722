package mesh_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"peacepad-signaling/internal/hub"
	"peacepad-signaling/internal/mesh"
)

type fakePeer struct {
	self, peerID string

	mu             sync.Mutex
	offersCreated  int
	acceptedOffers []string
	answers        int
	candidates     int
	closed         bool
}

func (p *fakePeer) CreateOffer(context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offersCreated++
	return json.Marshal(map[string]string{"sdp": fmt.Sprintf("offer:%s->%s", p.self, p.peerID)})
}

func (p *fakePeer) AcceptOffer(_ context.Context, offer json.RawMessage) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var o map[string]string
	if err := json.Unmarshal(offer, &o); err != nil {
		return nil, err
	}
	p.acceptedOffers = append(p.acceptedOffers, o["sdp"])
	return json.Marshal(map[string]string{"sdp": fmt.Sprintf("answer:%s->%s", p.self, p.peerID)})
}

func (p *fakePeer) AcceptAnswer(json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers++
	return nil
}

func (p *fakePeer) AddCandidate(json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates++
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// negotiated reports whether this side finished an offer/answer exchange.
func (p *fakePeer) negotiated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answers == 1 || len(p.acceptedOffers) == 1
}

type fakeFactory struct {
	self  string
	mu    sync.Mutex
	peers map[string][]*fakePeer
}

func newFakeFactory(self string) *fakeFactory {
	return &fakeFactory{self: self, peers: make(map[string][]*fakePeer)}
}

func (f *fakeFactory) NewPeer(peerID string, _ func(json.RawMessage)) (mesh.PeerConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePeer{self: f.self, peerID: peerID}
	f.peers[peerID] = append(f.peers[peerID], p)
	return p, nil
}

// only returns the single peer built for peerID, or nil.
func (f *fakeFactory) only(peerID string) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers[peerID]) != 1 {
		return nil
	}
	return f.peers[peerID][0]
}

func (f *fakeFactory) built(peerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers[peerID])
}

type recordingSignaler struct {
	mu   sync.Mutex
	sent []hub.Envelope
}

func (s *recordingSignaler) Signal(env hub.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	return nil
}

func (s *recordingSignaler) ofKind(kind hub.Kind) []hub.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []hub.Envelope
	for _, env := range s.sent {
		if env.Type == kind {
			out = append(out, env)
		}
	}
	return out
}
