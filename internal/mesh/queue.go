package mesh

import (
	"encoding/json"
	"sync"
)

// PendingPeer is a peer announced before local media was ready.
type PendingPeer struct {
	PeerID            string
	ShouldCreateOffer bool
}

// PendingPeers is a FIFO of peers waiting for local media. Each entry is
// handed out exactly once by Drain.
type PendingPeers struct {
	mu    sync.Mutex
	items []PendingPeer
}

// Push queues p unless the peer is already waiting. It reports whether p was queued.
func (q *PendingPeers) Push(p PendingPeer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.PeerID == p.PeerID {
			return false
		}
	}
	q.items = append(q.items, p)
	return true
}

// Drain empties the queue and returns its entries in arrival order.
func (q *PendingPeers) Drain() []PendingPeer {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Remove drops peerID from the queue, e.g. when it leaves before media is ready.
func (q *PendingPeers) Remove(peerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.PeerID == peerID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *PendingPeers) Contains(peerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.PeerID == peerID {
			return true
		}
	}
	return false
}

func (q *PendingPeers) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PendingOffers caches remote offers that arrived before a local connection
// object for the sender existed. Take evicts, so each offer is consumed once.
type PendingOffers struct {
	mu     sync.Mutex
	order  []string
	offers map[string]json.RawMessage
}

// Put caches offer for peerID. A newer offer from the same peer replaces the
// older one and keeps its place in line.
func (q *PendingOffers) Put(peerID string, offer json.RawMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.offers == nil {
		q.offers = make(map[string]json.RawMessage)
	}
	if _, ok := q.offers[peerID]; !ok {
		q.order = append(q.order, peerID)
	}
	q.offers[peerID] = offer
}

// Take returns and evicts the cached offer for peerID.
func (q *PendingOffers) Take(peerID string) (json.RawMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	offer, ok := q.offers[peerID]
	if !ok {
		return nil, false
	}
	delete(q.offers, peerID)
	for i, id := range q.order {
		if id == peerID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return offer, true
}

// Peers lists the peers with a cached offer, oldest first.
func (q *PendingOffers) Peers() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.order...)
}

func (q *PendingOffers) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.offers)
}
