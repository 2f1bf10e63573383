package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adred-dev/warden/internal/platform"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// wireEvent is the JSON shape published on a guild's NATS subject,
// tagged by `type` (spec §6 "Wire-level event bus").
type wireEvent struct {
	Type    string    `json:"type"`
	Guild   uint64    `json:"guild_id"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

func kindName(k Kind) string {
	switch k {
	case Violation:
		return "Violation"
	case MetricsUpdate:
		return "MetricsUpdate"
	case ConfigUpdate:
		return "ConfigUpdate"
	case HealthUpdate:
		return "HealthUpdate"
	case RaidModeStarted:
		return "RaidModeStarted"
	case RaidModeEnded:
		return "RaidModeEnded"
	case Ping:
		return "Ping"
	case Pong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// subject returns the per-guild NATS subject an event is published to
// (SPEC_FULL.md §11: "warden.events.<guild_id>").
func subject(guild platform.GuildID) string {
	return fmt.Sprintf("warden.events.%d", uint64(guild))
}

// NATSBridge forwards every Bus publish to a NATS subject so external
// (cross-process) subscribers can observe the same events the in-process
// Bus delivers. It is a pure fan-out add-on: the Bus itself never depends
// on NATS being reachable, matching spec §4.H's "senders never block on
// slow consumers" even when the external transport is unavailable.
type NATSBridge struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

// DialNATSBridge connects to url. A connection failure is non-fatal: the
// caller gets an error but warden keeps operating on the in-process Bus
// alone (spec §7.8-style "never fail the calling path" applied to this
// optional transport).
func DialNATSBridge(url string, logger zerolog.Logger) (*NATSBridge, error) {
	conn, err := nats.Connect(url, nats.Name("warden"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect nats: %w", err)
	}
	return &NATSBridge{conn: conn, logger: logger.With().Str("component", "eventbus_nats").Logger()}, nil
}

// Forward publishes e to its guild's NATS subject. Register it with
// Bus.AddForwarder so every Publish call is mirrored to NATS without the
// Bus itself depending on the connection's health.
func (n *NATSBridge) Forward(e Event) {
	w := wireEvent{Type: kindName(e.Kind), Guild: uint64(e.Guild), Payload: e.Payload, At: e.At}
	data, err := json.Marshal(w)
	if err != nil {
		n.logger.Warn().Err(err).Msg("failed to marshal event for nats forwarding")
		return
	}
	if err := n.conn.Publish(subject(e.Guild), data); err != nil {
		n.logger.Warn().Err(err).Uint64("guild", uint64(e.Guild)).Msg("nats publish failed")
	}
}

// Close closes the underlying NATS connection (without draining it).
func (n *NATSBridge) Close() {
	n.conn.Close()
}
