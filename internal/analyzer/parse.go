package analyzer

import (
	"time"

	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/platform"
	"github.com/rs/zerolog"
)

// parseResponse validates wire against batch and builds an AnalysisResult.
// Unknown JSON fields were already ignored by json.Unmarshal. Any
// violation whose message_id is not in the batch is discarded; severity
// is clamped into [0,1] rather than discarded outright, since a
// classifier reporting e.g. 1.2 almost always means "very severe" rather
// than "malformed" (spec §4.D).
func parseResponse(batch domain.AnalysisBatch, wire analyzeResponse, logger zerolog.Logger) domain.AnalysisResult {
	known := make(map[platform.MessageID]struct{}, len(batch.Messages))
	for _, m := range batch.Messages {
		known[m.MessageID] = struct{}{}
	}

	result := domain.AnalysisResult{}
	for _, v := range wire.Violations {
		mid := platform.MessageID(v.MessageID)
		if _, ok := known[mid]; !ok {
			logger.Warn().Uint64("message_id", v.MessageID).Msg("discarding violation for unknown message_id")
			continue
		}

		violation := domain.Violation{
			MessageID:  mid,
			GuildID:    batch.GuildID,
			Reason:     v.Reason,
			Severity:   domain.ClampSeverity(v.Severity),
			Layer:      domain.LayerSemantic,
			DetectedAt: time.Now(),
		}
		if v.RuleCited != nil {
			violation.RuleCited = *v.RuleCited
		}
		violation.UserID = authorOf(batch, mid)
		violation.ContentHash = domain.HashContent(contentOf(batch, mid))

		result.Violations = append(result.Violations, violation)
	}

	if wire.Harassment != nil {
		h := &domain.CoordinatedHarassment{
			Target: platform.UserID(wire.Harassment.Target),
		}
		for _, p := range wire.Harassment.Participants {
			h.Participants = append(h.Participants, platform.UserID(p))
		}
		for _, e := range wire.Harassment.Evidence {
			h.Evidence = append(h.Evidence, platform.MessageID(e))
		}
		if h.Valid() {
			result.Harassment = h
		} else {
			logger.Warn().Msg("discarding malformed coordinated_harassment report")
		}
	}

	if wire.EscalatingUser != nil {
		u := platform.UserID(*wire.EscalatingUser)
		result.EscalatingUser = &u
	}

	return result
}

func authorOf(batch domain.AnalysisBatch, id platform.MessageID) platform.UserID {
	for _, m := range batch.Messages {
		if m.MessageID == id {
			return m.AuthorID
		}
	}
	return 0
}

func contentOf(batch domain.AnalysisBatch, id platform.MessageID) string {
	for _, m := range batch.Messages {
		if m.MessageID == id {
			return m.Content
		}
	}
	return ""
}
