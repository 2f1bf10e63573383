package health

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Level is the severity of an ops alert. Distinct from domain.SeverityBand:
// this classifies operational health, not content-policy severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alerter sends an operational notification to an external channel. This
// is distinct from the in-chat Notify action (spec §4.J): alerts here are
// ops-facing ("analyzer degraded"), never moderator-facing content
// reports.
type Alerter interface {
	Alert(level Level, message string, fields map[string]any)
}

// SlackAlerter posts to an incoming webhook, matching the teacher's
// Slack-alerting shape (module, color, fields) but trimmed to warden's
// health-only use.
type SlackAlerter struct {
	webhookURL string
	client     *http.Client
}

// NewSlackAlerter returns a SlackAlerter. If webhookURL is empty, Alert is
// a no-op (unconfigured deployments simply don't alert).
func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{webhookURL: webhookURL, client: &http.Client{Timeout: 5 * time.Second}}
}

func (s *SlackAlerter) Alert(level Level, message string, fields map[string]any) {
	if s.webhookURL == "" {
		return
	}

	attachFields := make([]map[string]any, 0, len(fields))
	for k, v := range fields {
		attachFields = append(attachFields, map[string]any{
			"title": k,
			"value": fmt.Sprintf("%v", v),
			"short": true,
		})
	}

	payload := map[string]any{
		"text": fmt.Sprintf("[%s] %s", level, message),
		"attachments": []map[string]any{
			{"color": colorFor(level), "fields": attachFields, "ts": time.Now().Unix()},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	// Best-effort: a failed alert must never propagate to the pipeline
	// (spec §7 propagation policy extends to this ops side-channel too).
	_, _ = s.client.Post(s.webhookURL, "application/json", bytes.NewReader(body))
}

func colorFor(level Level) string {
	switch level {
	case LevelCritical:
		return "danger"
	case LevelWarning:
		return "warning"
	default:
		return "good"
	}
}
