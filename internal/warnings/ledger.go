// Package warnings implements the Warning Ledger (spec §4.E): a per-
// (guild,user) sanction-escalation state machine with 24h decay.
package warnings

import (
	"sync"
	"time"

	"github.com/adred-dev/warden/internal/platform"
)

// Level is a step on the sanction ladder, ordered None < Warn <
// ShortTimeout < LongTimeout < Kick < Ban.
type Level int

const (
	None Level = iota
	Warn
	ShortTimeout
	LongTimeout
	Kick
	Ban
)

func (l Level) String() string {
	switch l {
	case Warn:
		return "warn"
	case ShortTimeout:
		return "short_timeout"
	case LongTimeout:
		return "long_timeout"
	case Kick:
		return "kick"
	case Ban:
		return "ban"
	default:
		return "none"
	}
}

// SanctionDuration returns the timeout duration for ShortTimeout (10m) and
// LongTimeout (1h); zero for levels with no timeout duration.
func (l Level) SanctionDuration() time.Duration {
	switch l {
	case ShortTimeout:
		return 10 * time.Minute
	case LongTimeout:
		return time.Hour
	default:
		return 0
	}
}

func nextLevel(l Level) Level {
	if l >= Ban {
		return Ban
	}
	return l + 1
}

func prevLevel(l Level) Level {
	if l <= None {
		return None
	}
	return l - 1
}

// RecentViolationsCap bounds the per-record recent-violations log.
const RecentViolationsCap = 20

// ViolationLogEntry is one entry in a record's bounded recent-violations
// log, kept for moderator review and escalation audit.
type ViolationLogEntry struct {
	MessageID platform.MessageID
	Reason    string
	At        time.Time
}

// Record is the persistent state for one (guild,user) pair.
type Record struct {
	Level           Level
	KickedBefore    bool
	LastViolationAt time.Time
	RecentViolations []ViolationLogEntry

	lastDecayAt time.Time
}

func (r *Record) snapshot() Record {
	out := *r
	out.RecentViolations = append([]ViolationLogEntry(nil), r.RecentViolations...)
	return out
}

// Clock abstracts time.Now so decay can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Ledger is the process-wide (guild,user) -> Record map, guarded by a
// single mutex for all keys.
type Ledger struct {
	clock Clock
	mu    sync.Mutex
	rows  map[platform.GuildUser]*Record
}

// NewLedger returns an empty Warning Ledger using the real wall clock.
func NewLedger() *Ledger {
	return NewLedgerWithClock(realClock{})
}

// NewLedgerWithClock returns an empty Warning Ledger using clock, for tests
// that need to simulate 24h decay windows without sleeping.
func NewLedgerWithClock(clock Clock) *Ledger {
	return &Ledger{clock: clock, rows: make(map[platform.GuildUser]*Record)}
}

func (l *Ledger) row(key platform.GuildUser) *Record {
	r, ok := l.rows[key]
	if !ok {
		r = &Record{}
		l.rows[key] = r
	}
	return r
}

// applyDecay brings r's level down by one step for every full 24h that
// has elapsed since the last decay step, without dropping below None
// (spec invariant 2, P4). KickedBefore never decays; it is cleared only
// by an explicit Clear. Ban is terminal (invariant 3) and never decays,
// regardless of how much time has elapsed since the last violation.
func (l *Ledger) applyDecay(r *Record, now time.Time) {
	if r.Level == None || r.Level == Ban {
		return
	}
	for r.Level > None && now.Sub(r.lastDecayAt) >= 24*time.Hour {
		r.Level = prevLevel(r.Level)
		r.lastDecayAt = r.lastDecayAt.Add(24 * time.Hour)
	}
}

// RecordViolation advances (guild,user)'s level on a new confirmed
// violation (spec §4.E transitions) and returns the resulting level.
//
// Decay is applied first so a violation arriving long after the last one
// starts from the correctly decayed level, then the new violation resets
// the decay clock — this is what keeps invariant 1 true: a 24h window
// containing a new violation never decreases level, because the decay
// clock restarts at that violation.
func (l *Ledger) RecordViolation(guild platform.GuildID, user platform.UserID, reason string, messageID platform.MessageID) Level {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := platform.GuildUser{Guild: guild, User: user}
	r := l.row(key)
	now := l.clock.Now()
	l.applyDecay(r, now)

	if r.KickedBefore {
		r.Level = Ban
	} else {
		r.Level = nextLevel(r.Level)
		if r.Level == Kick {
			r.KickedBefore = true
		}
	}

	r.LastViolationAt = now
	r.lastDecayAt = now
	r.RecentViolations = append(r.RecentViolations, ViolationLogEntry{
		MessageID: messageID,
		Reason:    reason,
		At:        now,
	})
	if len(r.RecentViolations) > RecentViolationsCap {
		r.RecentViolations = r.RecentViolations[len(r.RecentViolations)-RecentViolationsCap:]
	}

	return r.Level
}

// MarkKicked records that (guild,user) has been kicked, independent of
// the normal record_violation path (e.g. a moderator manually kicks).
// Ban becomes terminal for this user until an explicit Clear.
func (l *Ledger) MarkKicked(guild platform.GuildID, user platform.UserID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.row(platform.GuildUser{Guild: guild, User: user})
	r.KickedBefore = true
}

// Get returns (guild,user)'s current record after applying any owed
// decay, and whether a record exists at all (a never-violated user
// implicitly has level None but Get reports ok=false for it).
func (l *Ledger) Get(guild platform.GuildID, user platform.UserID) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := platform.GuildUser{Guild: guild, User: user}
	r, ok := l.rows[key]
	if !ok {
		return Record{}, false
	}
	l.applyDecay(r, l.clock.Now())
	return r.snapshot(), true
}

// Clear resets (guild,user) to None with KickedBefore cleared. Idempotent.
func (l *Ledger) Clear(guild platform.GuildID, user platform.UserID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rows, platform.GuildUser{Guild: guild, User: user})
}

// DecayTick sweeps every tracked (guild,user) and applies any owed decay.
// Intended to be driven by a single background timer (spec §4.E); exact
// cadence does not matter for correctness, only that it eventually runs.
func (l *Ledger) DecayTick(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, r := range l.rows {
		l.applyDecay(r, now)
		if r.Level == None && !r.KickedBefore {
			delete(l.rows, key)
		}
	}
}
