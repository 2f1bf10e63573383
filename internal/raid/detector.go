// Package raid implements the Raid Detector (spec §4.F): per-guild sliding
// windows over member joins and message-hash repeats, independent of the
// moderation pipeline's per-message decisions.
package raid

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/adred-dev/warden/internal/platform"
)

// HashMessage derives the 64-bit content hash used for MessageFlood
// detection, salted with the guild's rules salt so the same content hashes
// differently under different salts (spec §4.F). Guilds that share a salt
// get equal hashes for equal content.
func HashMessage(salt, content string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(salt))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return h.Sum64()
}

// Trigger identifies which signal raised raid mode.
type Trigger int

const (
	TriggerNone Trigger = iota
	TriggerMassJoin
	TriggerMessageFlood
)

func (t Trigger) String() string {
	switch t {
	case TriggerMassJoin:
		return "mass_join"
	case TriggerMessageFlood:
		return "message_flood"
	default:
		return "none"
	}
}

const (
	joinWindow        = 60 * time.Second
	joinThreshold     = 5
	newAccountAge     = 7 * 24 * time.Hour
	floodWindow       = 30 * time.Second
	floodThreshold    = 10
	floodMinDistinct  = 2
	activeDuration    = 10 * time.Minute
)

// State is a snapshot of one guild's raid status.
type State struct {
	Active     bool
	Trigger    Trigger
	TriggeredAt time.Time
	ExpiresAt  time.Time
}

type joinEntry struct {
	at         time.Time
	user       platform.UserID
	accountAge time.Duration
}

type hashEntry struct {
	at   time.Time
	user platform.UserID
}

type guildWindows struct {
	mu sync.Mutex

	joins []joinEntry
	hits  map[uint64][]hashEntry

	state State
}

// Detector tracks raid windows per guild and publishes transitions through
// onStart/onEnd. Both callbacks may be nil.
type Detector struct {
	mu     sync.Mutex
	guilds map[platform.GuildID]*guildWindows

	onStart func(guild platform.GuildID, s State)
	onEnd   func(guild platform.GuildID)
}

// New returns an empty Detector. onStart is called (outside the guild's
// lock) whenever a guild transitions into or refreshes raid mode; onEnd is
// called when a guild leaves raid mode, whether by sweep or manual disable.
func New(onStart func(platform.GuildID, State), onEnd func(platform.GuildID)) *Detector {
	return &Detector{
		guilds:  make(map[platform.GuildID]*guildWindows),
		onStart: onStart,
		onEnd:   onEnd,
	}
}

func (d *Detector) guild(id platform.GuildID) *guildWindows {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.guilds[id]
	if !ok {
		g = &guildWindows{hits: make(map[uint64][]hashEntry)}
		d.guilds[id] = g
	}
	return g
}

// RecordJoin registers a new-member event and evaluates MassJoin.
// accountCreatedAt is the joining user's account-creation timestamp, used
// to compute account age at join time.
func (d *Detector) RecordJoin(guildID platform.GuildID, user platform.UserID, accountCreatedAt time.Time, now time.Time) {
	g := d.guild(guildID)
	g.mu.Lock()
	g.joins = append(g.joins, joinEntry{at: now, user: user, accountAge: now.Sub(accountCreatedAt)})
	g.joins = dropOlderJoins(g.joins, now)

	count := 0
	for _, j := range g.joins {
		if j.accountAge < newAccountAge {
			count++
		}
	}
	trigger := count >= joinThreshold
	var snap State
	fired := false
	if trigger {
		snap, fired = g.activate(TriggerMassJoin, now)
	}
	g.mu.Unlock()

	if fired {
		d.fireStart(guildID, snap)
	}
}

// RecordMessage registers a message's content hash and evaluates
// MessageFlood. salt should be derived from the guild's configuration so
// hashes are not comparable across guilds.
func (d *Detector) RecordMessage(guildID platform.GuildID, hash uint64, author platform.UserID, now time.Time) {
	g := d.guild(guildID)
	g.mu.Lock()
	entries := append(g.hits[hash], hashEntry{at: now, user: author})
	entries = dropOlderHits(entries, now)
	g.hits[hash] = entries

	distinct := map[platform.UserID]struct{}{}
	for _, e := range entries {
		distinct[e.user] = struct{}{}
	}
	trigger := len(entries) >= floodThreshold && len(distinct) >= floodMinDistinct
	var snap State
	fired := false
	if trigger {
		snap, fired = g.activate(TriggerMessageFlood, now)
	}
	g.mu.Unlock()

	if fired {
		d.fireStart(guildID, snap)
	}
}

// activate sets the guild into (or refreshes) raid mode. Returns the new
// state and whether RecordJoin/RecordMessage should fire the start
// callback. That flag is true for a fresh activation and for a refresh
// alike: further triggers while active refresh expires_at and fire again
// (the event is "raid mode observed active", moderators may want the
// repeated signal).
func (g *guildWindows) activate(trigger Trigger, now time.Time) (State, bool) {
	if !g.state.Active {
		g.state = State{Active: true, Trigger: trigger, TriggeredAt: now, ExpiresAt: now.Add(activeDuration)}
	} else {
		g.state.ExpiresAt = now.Add(activeDuration)
	}
	return g.state, true
}

func (d *Detector) fireStart(guildID platform.GuildID, s State) {
	if d.onStart != nil {
		d.onStart(guildID, s)
	}
}

// Get returns guildID's current raid state.
func (d *Detector) Get(guildID platform.GuildID) State {
	g := d.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Disable immediately deactivates guildID's raid mode and publishes
// RaidModeEnded, regardless of expires_at.
func (d *Detector) Disable(guildID platform.GuildID) {
	g := d.guild(guildID)
	g.mu.Lock()
	wasActive := g.state.Active
	g.state = State{}
	g.mu.Unlock()

	if wasActive && d.onEnd != nil {
		d.onEnd(guildID)
	}
}

// Sweep deactivates any guild whose raid mode has passed its expiry and
// publishes RaidModeEnded for each. Intended to be driven by a single
// background timer (spec §4.F, §4.I).
func (d *Detector) Sweep(now time.Time) {
	d.mu.Lock()
	ids := make([]platform.GuildID, 0, len(d.guilds))
	for id := range d.guilds {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		g := d.guild(id)
		g.mu.Lock()
		expired := g.state.Active && !now.Before(g.state.ExpiresAt)
		if expired {
			g.state = State{}
		}
		g.mu.Unlock()

		if expired && d.onEnd != nil {
			d.onEnd(id)
		}
	}
}

func dropOlderJoins(entries []joinEntry, now time.Time) []joinEntry {
	cutoff := now.Add(-joinWindow)
	out := entries[:0:0]
	for _, e := range entries {
		if e.at.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func dropOlderHits(entries []hashEntry, now time.Time) []hashEntry {
	cutoff := now.Add(-floodWindow)
	out := entries[:0:0]
	for _, e := range entries {
		if e.at.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}
