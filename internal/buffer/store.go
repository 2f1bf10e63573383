// Package buffer implements the Buffered Message Store (spec §4.B): a
// per-guild double-buffered queue that accumulates prefilter-passed
// messages until a count or age threshold fires, then hands a
// consistent, non-blocking snapshot to the flush caller.
package buffer

import (
	"sync"
	"time"

	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/platform"
)

// FlushTrigger reports why (if at all) an Append call crossed a flush
// threshold.
type FlushTrigger int

const (
	TriggerNone FlushTrigger = iota
	TriggerCountThreshold
	TriggerTimeout
)

// HardCap bounds how many messages Retain will keep; beyond it, the
// oldest excess messages are dropped (spec §4.B, §7.3).
const HardCap = 1000

// Batch is a flushed set of messages handed to the caller; it owns the
// messages exclusively until Retain (on failure) or discard (on success).
type Batch struct {
	Messages []domain.BufferedMessage
}

// guildBuffer is one guild's double buffer. primary selects which of buf[0]
// and buf[1] is currently accepting Appends; the other is empty, since a
// flush hands its messages out as a Batch and resets the slot. The mutex
// guards only the short critical sections below —
// never a suspension point like a network call.
type guildBuffer struct {
	mu         sync.Mutex
	buf        [2][]domain.BufferedMessage
	primary    int
	lastFlush  time.Time
}

// Store holds one guildBuffer per guild, created lazily.
type Store struct {
	mu     sync.RWMutex
	guilds map[platform.GuildID]*guildBuffer
}

// NewStore returns an empty Buffered Message Store.
func NewStore() *Store {
	return &Store{guilds: make(map[platform.GuildID]*guildBuffer)}
}

func (s *Store) guild(id platform.GuildID) *guildBuffer {
	s.mu.RLock()
	g, ok := s.guilds[id]
	s.mu.RUnlock()
	if ok {
		return g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.guilds[id]; ok {
		return g
	}
	g = &guildBuffer{lastFlush: time.Now()}
	s.guilds[id] = g
	return g
}

// Append adds msg to guild's current primary buffer. O(1), never blocks
// on the network (spec §4.B). The returned trigger tells the caller
// whether a flush should be scheduled; Timeout triggers are discovered by
// the separate periodic sweep via TryFlush, not by Append.
func (s *Store) Append(guildID platform.GuildID, msg domain.BufferedMessage, bufferThreshold int) FlushTrigger {
	g := s.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	g.buf[g.primary] = append(g.buf[g.primary], msg)
	if len(g.buf[g.primary]) >= bufferThreshold {
		return TriggerCountThreshold
	}
	return TriggerNone
}

// TryFlush swaps the primary buffer if guild has messages and either now
// has reached the timeout since the last flush or force is true (used for
// a count-threshold-triggered flush called right after Append). The
// swapped-out buffer is returned as a Batch; new Appends continue to land
// in the (now) new primary while the batch is in flight.
func (s *Store) TryFlush(guildID platform.GuildID, now time.Time, bufferTimeoutSecs int, force bool) (*Batch, bool) {
	g := s.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.buf[g.primary]) == 0 {
		return nil, false
	}
	timedOut := now.Sub(g.lastFlush) >= time.Duration(bufferTimeoutSecs)*time.Second
	if !force && !timedOut {
		return nil, false
	}

	flushed := g.buf[g.primary]
	g.buf[g.primary] = nil
	g.primary = 1 - g.primary
	g.lastFlush = now

	return &Batch{Messages: flushed}, true
}

// Retain returns a failed batch's messages to the head of the current
// primary buffer for retry, preserving order. If doing so would exceed
// HardCap, the oldest excess messages are dropped and the number dropped
// is returned for the caller to log (spec §4.B, §7.3).
func (s *Store) Retain(guildID platform.GuildID, batch *Batch) (dropped int) {
	if batch == nil || len(batch.Messages) == 0 {
		return 0
	}
	g := s.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	combined := append(append([]domain.BufferedMessage{}, batch.Messages...), g.buf[g.primary]...)
	if len(combined) > HardCap {
		dropped = len(combined) - HardCap
		combined = combined[dropped:]
	}
	g.buf[g.primary] = combined
	return dropped
}

// Len returns the current primary buffer's length for guild, for tests
// and metrics.
func (s *Store) Len(guildID platform.GuildID) int {
	g := s.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.buf[g.primary])
}

// Guilds returns every guild with a buffer allocated so far, for the
// periodic timeout sweep (spec §4.I) to iterate.
func (s *Store) Guilds() []platform.GuildID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]platform.GuildID, 0, len(s.guilds))
	for id := range s.guilds {
		out = append(out, id)
	}
	return out
}
