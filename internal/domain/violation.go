package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/adred-dev/warden/internal/platform"
)

// Layer identifies which pipeline stage produced a Violation.
type Layer string

const (
	LayerRegex    Layer = "regex"
	LayerSemantic Layer = "semantic"
)

// SeverityBand is the coarse categorization of a severity score (spec P5).
type SeverityBand string

const (
	BandLow    SeverityBand = "low"
	BandMedium SeverityBand = "medium"
	BandHigh   SeverityBand = "high"
)

// Band classifies a clamped severity score into Low/Medium/High.
// Low<0.4, Medium in [0.4,0.7), High>=0.7 (spec §3, P5).
func Band(severity float64) SeverityBand {
	switch {
	case severity >= 0.7:
		return BandHigh
	case severity >= 0.4:
		return BandMedium
	default:
		return BandLow
	}
}

// ClampSeverity forces a severity score into [0,1] (spec §4.D response
// parsing: "Severity is clamped to [0,1]").
func ClampSeverity(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}

// Violation is a single confirmed content-policy breach, either from the
// regex prefilter or the semantic analyzer. Reason is short and
// PII-free; Content is never carried past classification — only its hash.
type Violation struct {
	MessageID   platform.MessageID
	ChannelID   platform.ChannelID
	GuildID     platform.GuildID
	UserID      platform.UserID
	Reason      string
	Severity    float64
	Layer       Layer
	DetectedAt  time.Time
	ContentHash string // hex-encoded SHA-256 of the original content
	RuleCited   string // optional; semantic layer only
}

// Band returns the severity band for this violation.
func (v Violation) Band() SeverityBand { return Band(v.Severity) }

// HashContent returns the hex-encoded SHA-256 digest of content, the only
// form of message content ever retained past classification (spec §1
// Non-goals: "no message-content retention (only hashes)").
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Pseudonym derives a stable, non-reversible per-(guild,user) token. It is
// used anywhere a user must be referenced without exposing their raw
// platform ID: analyzer requests (spec §4.D) and moderator notifications
// (spec §4.J: "never contain ... internal rule identifiers" extends to
// raw user IDs, which a moderator could otherwise correlate with DMs).
func Pseudonym(guild platform.GuildID, user platform.UserID) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", guild, user)))
	return "u_" + hex.EncodeToString(sum[:8])
}
