package hub_test

import (
	"encoding/json"
	"sync"

	"peacepad-signaling/internal/hub"
)

// fakeChannel records decoded frames in memory.
type fakeChannel struct {
	mu     sync.Mutex
	frames []hub.Envelope
	closed bool
}

func newFakeChannel() *fakeChannel { return &fakeChannel{} }

func (f *fakeChannel) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	var env hub.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		panic(err)
	}
	f.frames = append(f.frames, env)
	return true
}

func (f *fakeChannel) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) envelopes() []hub.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hub.Envelope(nil), f.frames...)
}

func (f *fakeChannel) kinds() []hub.Kind {
	var kinds []hub.Kind
	for _, env := range f.envelopes() {
		kinds = append(kinds, env.Type)
	}
	return kinds
}

func (f *fakeChannel) ofKind(kind hub.Kind) []hub.Envelope {
	var out []hub.Envelope
	for _, env := range f.envelopes() {
		if env.Type == kind {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeChannel) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}
