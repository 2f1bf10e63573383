package platform

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds process-wide configuration, loaded once at startup from
// environment variables (optionally via a .env file in development).
// These are the "environment-derived defaults" spec.md §3 and §6 refer to:
// the Config Cache falls back to them whenever a guild's store-backed
// config can't be loaded, so a get(guild) call never fails the caller.
type Config struct {
	// Chat platform ingest transport: "gateway" (default, direct websocket
	// dial) or "kafka" (consume platform events relayed onto a topic).
	IngestTransport string `env:"WARDEN_INGEST_TRANSPORT" envDefault:"gateway"`

	// Chat platform / gateway adapter
	GatewayAddr   string `env:"WARDEN_GATEWAY_ADDR" envDefault:"wss://gateway.example.invalid/v1"`
	PlatformToken string `env:"WARDEN_PLATFORM_TOKEN"`
	JWTSigningKey string `env:"WARDEN_JWT_SIGNING_KEY"`

	// Kafka ingest transport, consulted only when IngestTransport=="kafka"
	KafkaBrokers       []string `env:"WARDEN_KAFKA_BROKERS" envSeparator:","`
	KafkaConsumerGroup string   `env:"WARDEN_KAFKA_CONSUMER_GROUP" envDefault:"warden"`
	KafkaTopic         string   `env:"WARDEN_KAFKA_TOPIC" envDefault:"chat-events"`

	// Semantic analyzer (external LLM API)
	AnalyzerEndpoint string `env:"WARDEN_ANALYZER_ENDPOINT" envDefault:"https://analyzer.example.invalid/v1/classify"`
	AnalyzerAPIKey   string `env:"WARDEN_ANALYZER_API_KEY"`
	AnalyzerRPM      int    `env:"WARDEN_ANALYZER_RPM" envDefault:"60"`
	AnalyzerTimeout  time.Duration `env:"WARDEN_ANALYZER_TIMEOUT" envDefault:"30s"`

	// Event bus transport
	NATSURL string `env:"WARDEN_NATS_URL" envDefault:""`

	// Defaults consulted by the Config Cache on a store miss (spec §3, §6)
	DefaultModChannel       uint64  `env:"WARDEN_DEFAULT_MOD_CHANNEL" envDefault:"0"`
	DefaultModRole          uint64  `env:"WARDEN_DEFAULT_MOD_ROLE" envDefault:"0"`
	DefaultSeverityThresh   float64 `env:"WARDEN_DEFAULT_SEVERITY_THRESHOLD" envDefault:"0.5"`
	DefaultBufferThreshold  int     `env:"WARDEN_DEFAULT_BUFFER_THRESHOLD" envDefault:"10"`
	DefaultBufferTimeoutSec int     `env:"WARDEN_DEFAULT_BUFFER_TIMEOUT_SECS" envDefault:"30"`

	// Pattern source (spec §6 "pattern list source")
	PatternSourcePath string `env:"WARDEN_PATTERN_SOURCE" envDefault:"patterns.yaml"`

	// Warning decay / raid / buffer sweep cadences
	WarningDecayInterval time.Duration `env:"WARDEN_WARNING_DECAY_INTERVAL" envDefault:"10m"`
	RaidSweepInterval    time.Duration `env:"WARDEN_RAID_SWEEP_INTERVAL" envDefault:"30s"`
	BufferSweepInterval  time.Duration `env:"WARDEN_BUFFER_SWEEP_INTERVAL" envDefault:"5s"`

	// Health monitor
	HealthSampleInterval time.Duration `env:"WARDEN_HEALTH_INTERVAL" envDefault:"15s"`
	SlackAlertWebhook    string        `env:"WARDEN_SLACK_ALERT_WEBHOOK" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics
	MetricsAddr string `env:"WARDEN_METRICS_ADDR" envDefault:":9090"`
}

// LoadConfig reads configuration from the environment (and an optional
// .env file), then validates it. Invalid configuration is fatal at
// startup per spec §7.1; the caller is expected to log and exit on error.
func LoadConfig(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configuration values that would put a component into an
// undefined state (spec §7.1: bad values are fatal at startup, not patched
// over silently).
func (c *Config) Validate() error {
	if c.AnalyzerRPM < 1 {
		return fmt.Errorf("WARDEN_ANALYZER_RPM must be > 0, got %d", c.AnalyzerRPM)
	}
	if c.DefaultSeverityThresh < 0 || c.DefaultSeverityThresh > 1 {
		return fmt.Errorf("WARDEN_DEFAULT_SEVERITY_THRESHOLD must be in [0,1], got %.2f", c.DefaultSeverityThresh)
	}
	if c.DefaultBufferThreshold < 1 {
		return fmt.Errorf("WARDEN_DEFAULT_BUFFER_THRESHOLD must be >= 1, got %d", c.DefaultBufferThreshold)
	}
	if c.DefaultBufferTimeoutSec < 1 {
		return fmt.Errorf("WARDEN_DEFAULT_BUFFER_TIMEOUT_SECS must be >= 1, got %d", c.DefaultBufferTimeoutSec)
	}
	if c.AnalyzerTimeout <= 0 {
		return fmt.Errorf("WARDEN_ANALYZER_TIMEOUT must be > 0")
	}
	switch c.IngestTransport {
	case "gateway":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("WARDEN_KAFKA_BROKERS must be set when WARDEN_INGEST_TRANSPORT=kafka")
		}
	default:
		return fmt.Errorf("WARDEN_INGEST_TRANSPORT must be %q or %q, got %q", "gateway", "kafka", c.IngestTransport)
	}
	return nil
}
