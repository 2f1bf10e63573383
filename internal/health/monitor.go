// Package health implements the process-health signal SPEC_FULL.md §12
// adds on top of spec.md: a monitor that samples host CPU/memory (so a
// sustained analyzer or SDK outage, spec S4, can be correlated with
// resource exhaustion before it's surfaced as a generic "detection
// error") and tracks consecutive transient-failure streaks per
// collaborator, publishing HealthUpdate on the Event Bus and optionally
// alerting an external channel distinct from the in-chat Notify action.
package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/adred-dev/warden/internal/eventbus"
	"github.com/adred-dev/warden/internal/metrics"
	"github.com/adred-dev/warden/internal/platform"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Collaborator names the out-of-core dependency a failure streak is
// attributed to.
type Collaborator string

const (
	CollaboratorAnalyzer Collaborator = "analyzer"
	CollaboratorGateway   Collaborator = "gateway"
	CollaboratorStore     Collaborator = "config_store"
)

// degradedThreshold is the number of consecutive transient failures
// before a collaborator is reported degraded (spec §7.8: "persistently
// failing" store writes surface via HealthUpdate; the same rule is
// applied uniformly to every out-of-core collaborator).
const degradedThreshold = 3

// Sample is one host resource measurement.
type Sample struct {
	CPUPercent  float64
	MemoryMB    float64
	Goroutines  int
	AllocatedCPUs float64
	Timestamp   time.Time
}

// Monitor samples host resources on an interval and tracks per-collaborator
// failure streaks, publishing HealthUpdate events on bus.
type Monitor struct {
	bus    *eventbus.Bus
	logger zerolog.Logger
	alerter Alerter

	mu       sync.Mutex
	streaks  map[Collaborator]int
	degraded map[Collaborator]bool
}

// New returns a Monitor. alerter may be nil, in which case HealthUpdate
// events are still published on bus but no external alert is sent.
func New(bus *eventbus.Bus, alerter Alerter, logger zerolog.Logger) *Monitor {
	return &Monitor{
		bus:      bus,
		logger:   logger.With().Str("component", "health").Logger(),
		alerter:  alerter,
		streaks:  make(map[Collaborator]int),
		degraded: make(map[Collaborator]bool),
	}
}

// RecordSuccess resets c's failure streak, clearing degraded status if it
// was set (the pipeline "continues to operate" once a collaborator
// recovers, spec §7.5).
func (m *Monitor) RecordSuccess(c Collaborator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaks[c] = 0
	if m.degraded[c] {
		m.degraded[c] = false
		metrics.HealthDegradedCollaborators.WithLabelValues(string(c)).Set(0)
		m.publish(0, c, false)
	}
}

// RecordFailure increments c's failure streak. Once degradedThreshold
// consecutive failures accumulate, a HealthUpdate is published (at least
// once per spec S4) and an alert is fired.
func (m *Monitor) RecordFailure(guild platform.GuildID, c Collaborator, err error) {
	m.mu.Lock()
	m.streaks[c]++
	streak := m.streaks[c]
	alreadyDegraded := m.degraded[c]
	if streak >= degradedThreshold && !alreadyDegraded {
		m.degraded[c] = true
	}
	becameDegraded := m.degraded[c] && !alreadyDegraded
	m.mu.Unlock()

	if becameDegraded {
		metrics.HealthDegradedCollaborators.WithLabelValues(string(c)).Set(1)
		m.publish(guild, c, true)
		m.logger.Warn().Str("collaborator", string(c)).Int("consecutive_failures", streak).Err(err).
			Msg("collaborator marked degraded")
		if m.alerter != nil {
			m.alerter.Alert(LevelWarning, "collaborator degraded: "+string(c), map[string]any{
				"collaborator":         string(c),
				"consecutive_failures": streak,
			})
		}
	}
}

// Update is the payload carried by a HealthUpdate event.
type Update struct {
	Collaborator Collaborator
	Degraded     bool
	At           time.Time
}

func (m *Monitor) publish(guild platform.GuildID, c Collaborator, degraded bool) {
	m.bus.Publish(eventbus.Event{
		Kind:    eventbus.HealthUpdate,
		Guild:   guild,
		Payload: Update{Collaborator: c, Degraded: degraded, At: time.Now()},
		At:      time.Now(),
	})
}

// Run samples host CPU and memory on interval until ctx is cancelled.
// automaxprocs (imported for its side effect in cmd/warden) has already
// sized GOMAXPROCS before this loop starts; Run only observes usage.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	pct, err := cpu.Percent(0, false)
	cpuPercent := 0.0
	if err == nil && len(pct) > 0 {
		cpuPercent = pct[0]
	} else if err != nil {
		m.logger.Debug().Err(err).Msg("cpu sample failed")
	}

	var memMB float64
	if vm, err := mem.VirtualMemory(); err == nil {
		memMB = float64(vm.Used) / (1024 * 1024)
	}

	s := Sample{
		CPUPercent:    cpuPercent,
		MemoryMB:      memMB,
		Goroutines:    runtime.NumGoroutine(),
		AllocatedCPUs: float64(runtime.GOMAXPROCS(0)),
		Timestamp:     time.Now(),
	}
	m.logger.Debug().Float64("cpu_percent", s.CPUPercent).Float64("memory_mb", s.MemoryMB).
		Int("goroutines", s.Goroutines).Msg("host sample")
}
