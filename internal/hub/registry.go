package hub

import (
	"sort"
	"sync"
)

// Channel is one participant's live bidirectional connection as seen by the
// router. Send must not block; it reports whether the frame was queued.
type Channel interface {
	Send(frame []byte) bool
	Close()
}

// Registry maps a participant id to its single live channel.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Channel)}
}

// Register binds ch to id and returns the channel it replaced, if any.
func (r *Registry) Register(id string, ch Channel) Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[id]
	r.conns[id] = ch
	if prev == ch {
		return nil
	}
	return prev
}

// Lookup returns the live channel for id.
func (r *Registry) Lookup(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.conns[id]
	return ch, ok
}

// Unregister removes id only while it is still bound to ch, so a late close
// of a replaced channel cannot evict its successor.
func (r *Registry) Unregister(id string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[id]; ok && cur == ch {
		delete(r.conns, id)
		return true
	}
	return false
}

// Send queues frame on id's channel. Offline participants are silently skipped.
func (r *Registry) Send(id string, frame []byte) bool {
	ch, ok := r.Lookup(id)
	if !ok {
		return false
	}
	return ch.Send(frame)
}

// Online returns the connected participant ids in sorted order.
func (r *Registry) Online() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
