// Package eventbus implements the Event Bus (spec §4.H): a per-guild,
// multi-producer/multi-consumer broadcast. Sends never block on slow
// consumers; a consumer that falls behind is told how many events it
// missed instead of being disconnected.
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adred-dev/warden/internal/metrics"
	"github.com/adred-dev/warden/internal/platform"
)

// Kind identifies an event's payload shape.
type Kind int

const (
	Violation Kind = iota
	MetricsUpdate
	ConfigUpdate
	HealthUpdate
	RaidModeStarted
	RaidModeEnded
	Ping
	Pong
)

// Event is one message published on a guild's channel.
type Event struct {
	Kind    Kind
	Guild   platform.GuildID
	Payload any
	At      time.Time
}

// Delivered wraps an Event with the number of events the subscriber missed
// immediately before it, because its buffer was full (spec: "lagged by N").
type Delivered struct {
	Event    Event
	LaggedBy int64
}

// MaxSubscribersPerUser is the connection cap per (guild,user) (spec §4.H).
const MaxSubscribersPerUser = 5

// subscriberBuffer is the channel depth before a subscriber is considered
// lagging and starts missing events.
const subscriberBuffer = 64

// ErrSubscriberCapReached is returned by Subscribe when user already has
// MaxSubscribersPerUser active subscriptions on guild.
var ErrSubscriberCapReached = errors.New("eventbus: subscriber cap reached for this guild and user")

type subscriber struct {
	id      uint64
	user    platform.UserID
	ch      chan Delivered
	dropped int64 // atomic
}

type guildHub struct {
	mu        sync.Mutex
	subs      map[uint64]*subscriber
	byUser    map[platform.UserID]int
	nextID    uint64
}

// Bus is the process-wide GuildId -> broadcast hub registry.
type Bus struct {
	mu     sync.RWMutex
	guilds map[platform.GuildID]*guildHub

	forwardersMu sync.RWMutex
	forwarders   []func(Event)
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{guilds: make(map[platform.GuildID]*guildHub)}
}

// AddForwarder registers fn to be called, best-effort and non-blocking
// from the caller's perspective, for every event Publish sees. Used to
// attach an external transport (e.g. NATSBridge.Forward) without the Bus
// itself depending on that transport's availability.
func (b *Bus) AddForwarder(fn func(Event)) {
	b.forwardersMu.Lock()
	defer b.forwardersMu.Unlock()
	b.forwarders = append(b.forwarders, fn)
}

func (b *Bus) hub(guild platform.GuildID) *guildHub {
	b.mu.RLock()
	h, ok := b.guilds[guild]
	b.mu.RUnlock()
	if ok {
		return h
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.guilds[guild]; ok {
		return h
	}
	h = &guildHub{subs: make(map[uint64]*subscriber), byUser: make(map[platform.UserID]int)}
	b.guilds[guild] = h
	return h
}

// Subscription is a live subscriber handle. Receive from Events() to read
// published events; call Close when done.
type Subscription struct {
	bus   *Bus
	guild platform.GuildID
	sub   *subscriber
}

// Events returns the channel events are delivered on.
func (s *Subscription) Events() <-chan Delivered { return s.sub.ch }

// Close unregisters the subscription, freeing its slot in the per-user cap.
func (s *Subscription) Close() {
	h := s.bus.hub(s.guild)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.sub.id]; !ok {
		return
	}
	delete(h.subs, s.sub.id)
	h.byUser[s.sub.user]--
	if h.byUser[s.sub.user] <= 0 {
		delete(h.byUser, s.sub.user)
	}
	metrics.EventBusSubscribers.WithLabelValues(s.guild.String()).Set(float64(len(h.subs)))
	close(s.sub.ch)
}

// Subscribe registers a new subscriber for guild on behalf of user.
// Cross-guild delivery is impossible by construction: a subscription only
// ever receives events published to its own guild (spec P7).
func (b *Bus) Subscribe(guild platform.GuildID, user platform.UserID) (*Subscription, error) {
	h := b.hub(guild)
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byUser[user] >= MaxSubscribersPerUser {
		return nil, ErrSubscriberCapReached
	}

	h.nextID++
	sub := &subscriber{id: h.nextID, user: user, ch: make(chan Delivered, subscriberBuffer)}
	h.subs[sub.id] = sub
	h.byUser[user]++
	metrics.EventBusSubscribers.WithLabelValues(guild.String()).Set(float64(len(h.subs)))

	return &Subscription{bus: b, guild: guild, sub: sub}, nil
}

// Publish broadcasts event to every current subscriber of event.Guild.
// Sends are non-blocking: for a subscriber whose buffer is full, the
// oldest buffered event is evicted to make room for this one and the
// eviction is added to its lag counter, which is reported (and reset) on
// the next delivery that finds room without evicting.
func (b *Bus) Publish(event Event) {
	b.forwardersMu.RLock()
	forwarders := b.forwarders
	b.forwardersMu.RUnlock()
	for _, fn := range forwarders {
		go fn(event)
	}

	h := b.hub(event.Guild)
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		lagged := atomic.SwapInt64(&s.dropped, 0)
		d := Delivered{Event: event, LaggedBy: lagged}
		select {
		case s.ch <- d:
			continue
		default:
		}

		// Buffer is full: evict the oldest buffered entry so the
		// subscriber catches up to the freshest state instead of
		// draining a stale backlog (spec §5: "drops the oldest for
		// that subscriber, never blocks the pipeline").
		select {
		case <-s.ch:
			atomic.AddInt64(&s.dropped, lagged+1)
		default:
		}
		select {
		case s.ch <- d:
		default:
			// Another goroutine raced us and refilled the slot; this
			// event is dropped instead, which is still bounded lag.
			atomic.AddInt64(&s.dropped, 1)
		}
	}
}

// SubscriberCount returns the number of active subscriptions for guild,
// for metrics and tests.
func (b *Bus) SubscriberCount(guild platform.GuildID) int {
	h := b.hub(guild)
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
