// Command warden runs the chat-moderation pipeline as a single process
// (spec §1, SPEC_FULL.md §0: no multi-instance coordination).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adred-dev/warden/internal/actions"
	"github.com/adred-dev/warden/internal/analyzer"
	"github.com/adred-dev/warden/internal/buffer"
	"github.com/adred-dev/warden/internal/convowindow"
	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/eventbus"
	"github.com/adred-dev/warden/internal/gateway"
	"github.com/adred-dev/warden/internal/guildconfig"
	"github.com/adred-dev/warden/internal/health"
	"github.com/adred-dev/warden/internal/kafkaingest"
	"github.com/adred-dev/warden/internal/metrics"
	"github.com/adred-dev/warden/internal/patterns"
	"github.com/adred-dev/warden/internal/pipeline"
	"github.com/adred-dev/warden/internal/platform"
	"github.com/adred-dev/warden/internal/raid"
	"github.com/adred-dev/warden/internal/sdkiface"
	"github.com/adred-dev/warden/internal/warnings"
	_ "go.uber.org/automaxprocs"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootLogger := platform.NewLogger("info", "pretty")

	cfg, err := platform.LoadConfig(&bootLogger)
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	logger := platform.NewLogger(cfg.LogLevel, cfg.LogFormat)

	matcher := patterns.NewMatcher()
	if sources, err := patterns.LoadSourcesFromFile(cfg.PatternSourcePath); err != nil {
		logger.Warn().Err(err).Str("path", cfg.PatternSourcePath).Msg("pattern source unreadable, starting with empty set")
	} else if err := matcher.Update(sources); err != nil {
		logger.Fatal().Err(err).Msg("initial pattern set failed to compile")
	}

	bus := eventbus.New()
	if cfg.NATSURL != "" {
		bridge, err := eventbus.DialNATSBridge(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats bridge unavailable, continuing on in-process bus only")
		} else {
			bus.AddForwarder(bridge.Forward)
			defer bridge.Close()
		}
	}

	defaults := domain.GuildConfig{
		SeverityThreshold: cfg.DefaultSeverityThresh,
		BufferTimeoutSecs: cfg.DefaultBufferTimeoutSec,
		BufferThreshold:   cfg.DefaultBufferThreshold,
	}
	if cfg.DefaultModRole != 0 {
		r := platform.RoleID(cfg.DefaultModRole)
		defaults.ModRole = &r
	}
	if cfg.DefaultModChannel != 0 {
		c := platform.ChannelID(cfg.DefaultModChannel)
		defaults.ModChannel = &c
	}

	configStore := guildconfig.NewMemStore()
	configCache := guildconfig.New(configStore, defaults, logger)

	analyzerClient := analyzer.NewClient(analyzer.Config{
		Endpoint:       cfg.AnalyzerEndpoint,
		APIKey:         cfg.AnalyzerAPIKey,
		RequestsPerMin: float64(cfg.AnalyzerRPM),
		Timeout:        cfg.AnalyzerTimeout,
	}, logger)

	ledger := warnings.NewLedger()
	raidOnStart, raidOnEnd := pipeline.RaidEventPublisher(bus)
	raidDetector := raid.New(raidOnStart, raidOnEnd)

	signer := gateway.NewTokenSigner(cfg.JWTSigningKey, 15*time.Minute)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// gateway.Adapter needs an InboundHandler at construction time, and
	// Pipeline needs the adapter (as its sdkiface.Platform) at its own
	// construction time. handoff breaks the cycle: it forwards to
	// Pipeline once built, which happens before gw.Run is ever called.
	var handoff inboundHandoff

	buf := buffer.NewStore()
	window := convowindow.NewWindow()

	// In kafka ingest mode, the gateway connection carries outbound
	// actions only; inbound events come from the Kafka consumer instead,
	// so the gateway is built with a no-op inbound handler to avoid
	// dispatching the same message twice.
	var gatewayInbound sdkiface.InboundHandler = &handoff
	if cfg.IngestTransport == "kafka" {
		gatewayInbound = noopInboundHandler{}
	}
	gw := gateway.New(cfg.GatewayAddr, signer, gatewayInbound, logger)

	healthMonitor := health.New(bus, health.NewSlackAlerter(cfg.SlackAlertWebhook), logger)

	p := pipeline.New(matcher, buf, window, analyzerClient, ledger, raidDetector, configCache, bus, actions.New(gw, logger), healthMonitor, logger,
		func(fn func()) { go fn() })
	handoff.target = p

	go gw.Run(ctx)
	if cfg.IngestTransport == "kafka" {
		consumer, err := kafkaingest.New(kafkaingest.Config{
			Brokers:       cfg.KafkaBrokers,
			ConsumerGroup: cfg.KafkaConsumerGroup,
			Topic:         cfg.KafkaTopic,
		}, &handoff, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start kafka ingest consumer")
		}
		go consumer.Run(ctx)
	}
	go p.RunBackgroundTimers(ctx, cfg.BufferSweepInterval, cfg.WarningDecayInterval, cfg.RaidSweepInterval)
	go healthMonitor.Run(ctx, cfg.HealthSampleInterval)

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	logger.Info().Str("gateway_addr", cfg.GatewayAddr).Str("metrics_addr", cfg.MetricsAddr).
		Str("ingest_transport", cfg.IngestTransport).Msg("warden started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// inboundHandoff breaks the gateway/pipeline construction cycle: the
// gateway adapter is built first and needs a live sdkiface.InboundHandler
// immediately, but the real handler (the Pipeline) isn't built until
// after the adapter so the adapter can be passed in as its
// sdkiface.Platform. target is set once, before gw.Run is started.
type inboundHandoff struct {
	target sdkiface.InboundHandler
}

func (h *inboundHandoff) HandleMessage(ctx context.Context, msg sdkiface.InboundMessage) {
	h.target.HandleMessage(ctx, msg)
}

func (h *inboundHandoff) HandleMemberJoin(ctx context.Context, join sdkiface.MemberJoin) {
	h.target.HandleMemberJoin(ctx, join)
}

// noopInboundHandler discards frames the gateway adapter still reads off
// its own socket while kafka is the selected ingest transport, so a
// platform event is never dispatched to the pipeline twice.
type noopInboundHandler struct{}

func (noopInboundHandler) HandleMessage(context.Context, sdkiface.InboundMessage)  {}
func (noopInboundHandler) HandleMemberJoin(context.Context, sdkiface.MemberJoin) {}
