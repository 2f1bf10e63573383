// Package convowindow implements the Context Window (spec §4.C): a
// fixed-capacity, per-channel ring of the most recent messages included
// with a batch so the semantic analyzer can disambiguate short messages
// using surrounding conversation.
package convowindow

import (
	"sync"

	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/platform"
)

// Capacity is the fixed ring size per channel (spec §3, §4.C: K=10).
const Capacity = 10

type ring struct {
	mu   sync.Mutex
	buf  [Capacity]domain.ContextMessage
	size int
	next int // index the next Push writes to
}

func (r *ring) push(m domain.ContextMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = m
	r.next = (r.next + 1) % Capacity
	if r.size < Capacity {
		r.size++
	}
}

// snapshot returns the ring's contents oldest-first. It allocates a fresh
// slice so the caller can never observe a later mutation (spec §4.C: "No
// external mutation of the returned snapshot").
func (r *ring) snapshot() []domain.ContextMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ContextMessage, r.size)
	start := (r.next - r.size + Capacity) % Capacity
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(start+i)%Capacity]
	}
	return out
}

// Window holds one ring per channel, created lazily.
type Window struct {
	mu       sync.RWMutex
	channels map[platform.ChannelID]*ring
}

// NewWindow returns an empty Context Window.
func NewWindow() *Window {
	return &Window{channels: make(map[platform.ChannelID]*ring)}
}

func (w *Window) ring(id platform.ChannelID) *ring {
	w.mu.RLock()
	r, ok := w.channels[id]
	w.mu.RUnlock()
	if ok {
		return r
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := w.channels[id]; ok {
		return r
	}
	r = &ring{}
	w.channels[id] = r
	return r
}

// Push appends message to channelID's ring, evicting the oldest entry
// once the ring is at Capacity (FIFO eviction, spec §4.C).
func (w *Window) Push(channelID platform.ChannelID, message domain.ContextMessage) {
	w.ring(channelID).push(message)
}

// Snapshot returns an immutable copy of channelID's ring, size <= Capacity
// (spec P9).
func (w *Window) Snapshot(channelID platform.ChannelID) []domain.ContextMessage {
	return w.ring(channelID).snapshot()
}
