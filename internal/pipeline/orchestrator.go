// Package pipeline implements the Pipeline Orchestrator (spec §4.I): it
// composes the prefilter, buffer, context window, analyzer, warning
// ledger, raid detector, config cache, event bus, and action executor into
// the end-to-end message flow, plus the background timers that drive
// flush, decay, and raid-expiry sweeps.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/adred-dev/warden/internal/actions"
	"github.com/adred-dev/warden/internal/analyzer"
	"github.com/adred-dev/warden/internal/buffer"
	"github.com/adred-dev/warden/internal/convowindow"
	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/eventbus"
	"github.com/adred-dev/warden/internal/guildconfig"
	"github.com/adred-dev/warden/internal/health"
	"github.com/adred-dev/warden/internal/metrics"
	"github.com/adred-dev/warden/internal/patterns"
	"github.com/adred-dev/warden/internal/platform"
	"github.com/adred-dev/warden/internal/raid"
	"github.com/adred-dev/warden/internal/sdkiface"
	"github.com/adred-dev/warden/internal/warnings"
	"github.com/rs/zerolog"
)

// maxAnalyzerAttempts bounds retries for a single batch before it is
// dropped (spec §4.D: "Maximum 5 attempts per batch").
const maxAnalyzerAttempts = 5

// AnalyzerClient is the subset of analyzer.Client the pipeline depends on;
// satisfied by *analyzer.Client in production and by a fake in tests.
type AnalyzerClient interface {
	Analyze(ctx context.Context, batch domain.AnalysisBatch) (domain.AnalysisResult, error)
}

// Pipeline wires components A-J together and implements sdkiface.InboundHandler.
type Pipeline struct {
	matcher  *patterns.Matcher
	buf      *buffer.Store
	window   *convowindow.Window
	client   AnalyzerClient
	ledger   *warnings.Ledger
	raid     *raid.Detector
	config   *guildconfig.Cache
	bus      *eventbus.Bus
	executor *actions.Executor
	health   *health.Monitor

	logger zerolog.Logger

	// flush schedules a guild's flush_task to run asynchronously, never
	// blocking the caller (on_message_pass must stay O(1)).
	flush func(guildID platform.GuildID)
}

// New returns a Pipeline. flushDispatch decouples flush scheduling from
// the caller (spec §4.I: "schedule a flush task"); pass a function that
// runs its argument on a worker pool or a plain `go`.
func New(
	matcher *patterns.Matcher,
	buf *buffer.Store,
	window *convowindow.Window,
	client AnalyzerClient,
	ledger *warnings.Ledger,
	raidDetector *raid.Detector,
	config *guildconfig.Cache,
	bus *eventbus.Bus,
	executor *actions.Executor,
	healthMonitor *health.Monitor,
	logger zerolog.Logger,
	flushDispatch func(func()),
) *Pipeline {
	p := &Pipeline{
		matcher: matcher, buf: buf, window: window, client: client,
		ledger: ledger, raid: raidDetector, config: config, bus: bus, executor: executor, health: healthMonitor,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
	p.flush = func(guildID platform.GuildID) {
		flushDispatch(func() { p.flushTask(context.Background(), guildID) })
	}
	return p
}

// HandleMessage is the on_message entry point (spec §4.I).
func (p *Pipeline) HandleMessage(ctx context.Context, msg sdkiface.InboundMessage) {
	metrics.MessagesIngested.Inc()
	cfg := p.config.Get(ctx, msg.GuildID)

	buffered := domain.BufferedMessage{
		MessageID: msg.MessageID, ChannelID: msg.ChannelID, GuildID: msg.GuildID,
		AuthorID: msg.AuthorID, Content: msg.Content, ReceivedAt: msg.ReceivedAt,
	}
	p.window.Push(msg.ChannelID, domain.FromBuffered(buffered, msg.ReplyToUser))
	p.raid.RecordMessage(msg.GuildID, raid.HashMessage(cfg.RulesText, msg.Content), msg.AuthorID, msg.ReceivedAt)

	result := p.matcher.Evaluate(msg.Content)
	if result.Matched {
		metrics.PrefilterMatches.WithLabelValues(result.Tag.String()).Inc()
		v := domain.Violation{
			MessageID: msg.MessageID, ChannelID: msg.ChannelID, GuildID: msg.GuildID, UserID: msg.AuthorID,
			Reason:     "matched pattern: " + result.PatternName,
			Severity:   result.Severity,
			Layer:      domain.LayerRegex,
			DetectedAt: time.Now(),
			ContentHash: domain.HashContent(msg.Content),
		}
		p.dispatchViolation(ctx, v, cfg)
		return
	}

	p.onMessagePass(msg.GuildID, buffered, cfg)
}

// HandleMemberJoin is driven independently of the message path (spec §4.F).
func (p *Pipeline) HandleMemberJoin(ctx context.Context, join sdkiface.MemberJoin) {
	p.raid.RecordJoin(join.GuildID, join.UserID, join.AccountCreatedAt, join.JoinedAt)
}

func (p *Pipeline) onMessagePass(guildID platform.GuildID, msg domain.BufferedMessage, cfg domain.GuildConfig) {
	trigger := p.buf.Append(guildID, msg, cfg.BufferThreshold)
	metrics.BufferDepth.WithLabelValues(guildID.String()).Set(float64(p.buf.Len(guildID)))
	if trigger == buffer.TriggerCountThreshold {
		p.flush(guildID)
	}
}

// flushTask is flush_task(guild) (spec §4.I).
func (p *Pipeline) flushTask(ctx context.Context, guildID platform.GuildID) {
	cfg := p.config.Get(ctx, guildID)
	batch, ok := p.buf.TryFlush(guildID, time.Now(), cfg.BufferTimeoutSecs, true)
	if !ok {
		return
	}
	metrics.BufferDepth.WithLabelValues(guildID.String()).Set(float64(p.buf.Len(guildID)))
	p.analyzeBatch(ctx, guildID, domain.AnalysisBatch{
		GuildID:  guildID,
		Messages: batch.Messages,
		Context:  p.contextFor(batch.Messages),
		Rules:    cfg.RulesText,
		Attempt:  0,
	}, cfg)
}

func (p *Pipeline) contextFor(messages []domain.BufferedMessage) map[platform.ChannelID][]domain.ContextMessage {
	out := make(map[platform.ChannelID][]domain.ContextMessage)
	seen := map[platform.ChannelID]bool{}
	for _, m := range messages {
		if seen[m.ChannelID] {
			continue
		}
		seen[m.ChannelID] = true
		out[m.ChannelID] = p.window.Snapshot(m.ChannelID)
	}
	return out
}

func (p *Pipeline) analyzeBatch(ctx context.Context, guildID platform.GuildID, batch domain.AnalysisBatch, cfg domain.GuildConfig) {
	start := time.Now()
	result, err := p.client.Analyze(ctx, batch)
	metrics.AnalyzerLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "transient"
		if _, ok := err.(*analyzer.PermanentError); ok {
			outcome = "permanent"
		}
		metrics.AnalyzerRequestsTotal.WithLabelValues(outcome).Inc()
		p.handleAnalyzeError(guildID, batch, cfg, err)
		return
	}
	metrics.AnalyzerRequestsTotal.WithLabelValues("ok").Inc()
	p.health.RecordSuccess(health.CollaboratorAnalyzer)

	if result.Harassment != nil {
		p.logger.Info().Uint64("guild", uint64(guildID)).Msg("coordinated harassment reported by analyzer")
	}
	if result.EscalatingUser != nil {
		p.logger.Info().Uint64("guild", uint64(guildID)).Uint64("user", uint64(*result.EscalatingUser)).Msg("escalating user reported by analyzer")
	}

	kept := make([]domain.Violation, 0, len(result.Violations))
	for _, v := range result.Violations {
		if v.Severity < cfg.SeverityThreshold {
			continue
		}
		v.ChannelID = channelOfMessage(batch.Messages, v.MessageID)
		kept = append(kept, v)
	}

	// Ordering guarantee: within a single flush, violations are processed
	// in message_id order (spec §4.I).
	sort.Slice(kept, func(i, j int) bool { return kept[i].MessageID < kept[j].MessageID })

	for _, v := range kept {
		p.dispatchViolation(ctx, v, cfg)
	}
}

func (p *Pipeline) handleAnalyzeError(guildID platform.GuildID, batch domain.AnalysisBatch, cfg domain.GuildConfig, err error) {
	switch err.(type) {
	case *analyzer.PermanentError:
		p.health.RecordFailure(guildID, health.CollaboratorAnalyzer, err)
		p.logger.Warn().Err(err).Uint64("guild", uint64(guildID)).Int("dropped", len(batch.Messages)).
			Msg("analyzer rejected batch permanently, dropping and continuing regex-only")
		return
	case *analyzer.TransientError:
		p.health.RecordFailure(guildID, health.CollaboratorAnalyzer, err)
		if batch.Attempt+1 >= maxAnalyzerAttempts {
			p.logger.Warn().Err(err).Uint64("guild", uint64(guildID)).Int("dropped", len(batch.Messages)).
				Msg("analyzer batch exhausted retry attempts, dropping")
			return
		}
		dropped := p.buf.Retain(guildID, &buffer.Batch{Messages: batch.Messages})
		if dropped > 0 {
			p.logger.Warn().Uint64("guild", uint64(guildID)).Int("dropped", dropped).
				Msg("buffer hard cap exceeded while retaining failed batch")
		}
		delay := backoffDelay(batch.Attempt)
		nextAttempt := batch.Attempt + 1
		time.AfterFunc(delay, func() {
			p.retryBatch(guildID, nextAttempt, cfg)
		})
	default:
		p.logger.Error().Err(err).Uint64("guild", uint64(guildID)).Msg("unexpected analyzer error")
	}
}

func (p *Pipeline) retryBatch(guildID platform.GuildID, attempt int, cfg domain.GuildConfig) {
	batch, ok := p.buf.TryFlush(guildID, time.Now(), cfg.BufferTimeoutSecs, true)
	if !ok {
		return
	}
	p.analyzeBatch(context.Background(), guildID, domain.AnalysisBatch{
		GuildID:  guildID,
		Messages: batch.Messages,
		Context:  p.contextFor(batch.Messages),
		Rules:    cfg.RulesText,
		Attempt:  attempt,
	}, cfg)
}

// backoffDelay implements the 1,2,4,8,...,60s schedule (spec §4.D).
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	return d
}

func (p *Pipeline) dispatchViolation(ctx context.Context, v domain.Violation, cfg domain.GuildConfig) {
	metrics.ViolationsByLayerAndBand.WithLabelValues(string(v.Layer), string(v.Band())).Inc()

	level := p.ledger.RecordViolation(v.GuildID, v.UserID, v.Reason, v.MessageID)
	metrics.WarningLevelTransitions.WithLabelValues(level.String()).Inc()
	if level == warnings.Kick || level == warnings.Ban {
		p.ledger.MarkKicked(v.GuildID, v.UserID)
	}

	if err := p.executor.Execute(ctx, v, level, cfg); err != nil {
		p.logger.Error().Err(err).Uint64("guild", uint64(v.GuildID)).Msg("action executor reported errors")
	}

	p.bus.Publish(eventbus.Event{Kind: eventbus.Violation, Guild: v.GuildID, Payload: v, At: time.Now()})
}

func channelOfMessage(messages []domain.BufferedMessage, id platform.MessageID) platform.ChannelID {
	for _, m := range messages {
		if m.MessageID == id {
			return m.ChannelID
		}
	}
	return 0
}

// RunBackgroundTimers starts the buffer-timeout sweep, warning decay, and
// raid-expiry sweep loops (spec §4.I). It blocks until ctx is cancelled.
func (p *Pipeline) RunBackgroundTimers(ctx context.Context, bufferSweep, warningDecay, raidSweep time.Duration) {
	bufferTicker := time.NewTicker(bufferSweep)
	decayTicker := time.NewTicker(warningDecay)
	raidTicker := time.NewTicker(raidSweep)
	defer bufferTicker.Stop()
	defer decayTicker.Stop()
	defer raidTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-bufferTicker.C:
			p.sweepBuffers(ctx)
		case <-decayTicker.C:
			p.ledger.DecayTick(time.Now())
		case <-raidTicker.C:
			p.raid.Sweep(time.Now())
		}
	}
}

func (p *Pipeline) sweepBuffers(ctx context.Context) {
	for _, guildID := range p.buf.Guilds() {
		cfg := p.config.Get(ctx, guildID)
		batch, ok := p.buf.TryFlush(guildID, time.Now(), cfg.BufferTimeoutSecs, false)
		if !ok {
			continue
		}
		p.analyzeBatch(ctx, guildID, domain.AnalysisBatch{
			GuildID:  guildID,
			Messages: batch.Messages,
			Context:  p.contextFor(batch.Messages),
			Rules:    cfg.RulesText,
			Attempt:  0,
		}, cfg)
	}
}

// RaidEventPublisher builds the onStart/onEnd callbacks raid.New expects,
// publishing RaidModeStarted/RaidModeEnded on bus. Construct the
// raid.Detector with these before wiring it into Pipeline's constructor,
// since the Detector's callbacks are fixed at construction time.
func RaidEventPublisher(bus *eventbus.Bus) (onStart func(platform.GuildID, raid.State), onEnd func(platform.GuildID)) {
	onStart = func(guild platform.GuildID, s raid.State) {
		metrics.RaidTriggersTotal.WithLabelValues(s.Trigger.String()).Inc()
		bus.Publish(eventbus.Event{Kind: eventbus.RaidModeStarted, Guild: guild, Payload: s, At: time.Now()})
	}
	onEnd = func(guild platform.GuildID) {
		bus.Publish(eventbus.Event{Kind: eventbus.RaidModeEnded, Guild: guild, Payload: nil, At: time.Now()})
	}
	return onStart, onEnd
}
