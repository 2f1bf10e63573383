package domain

import "github.com/adred-dev/warden/internal/platform"

// AnalysisBatch is the unit of work shipped to the Semantic Analyzer
// Client: the buffered messages themselves, a context snapshot keyed by
// channel, and the guild's optional custom rules text.
type AnalysisBatch struct {
	GuildID  platform.GuildID
	Messages []BufferedMessage
	// Context holds, per channel, the up-to-10 messages preceding this
	// batch (spec §4.C, P9: every snapshot used in a batch has size <=10).
	Context map[platform.ChannelID][]ContextMessage
	Rules   string // guild's custom rules text, empty if none configured

	// Attempt tracks retry count for the exponential backoff schedule in
	// spec §4.D (1,2,4,8,...,60s, max 5 attempts).
	Attempt int
}

// CoordinatedHarassment is an optional analyzer finding describing a
// brigading pattern against a single target by multiple participants
// (spec P8: len(participants) >= 2 and target is not among them).
type CoordinatedHarassment struct {
	Target       platform.UserID
	Participants []platform.UserID
	Evidence     []platform.MessageID
}

// Valid reports whether the coordinated-harassment finding satisfies P8.
func (c *CoordinatedHarassment) Valid() bool {
	if c == nil {
		return true // absence is valid
	}
	if len(c.Participants) < 2 {
		return false
	}
	for _, p := range c.Participants {
		if p == c.Target {
			return false
		}
	}
	return true
}

// AnalysisResult is what a successful analyzer call returns: zero or more
// violations plus optional coordinated-harassment and escalating-user
// findings (spec §3, §6 response schema).
type AnalysisResult struct {
	Violations     []Violation
	Harassment     *CoordinatedHarassment
	EscalatingUser *platform.UserID
}
