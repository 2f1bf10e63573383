// Package actions implements the Action Executor (spec §4.J): it turns a
// Violation plus its Warning Ledger sanction into concrete SDK calls,
// retrying transient failures with bounded backoff.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/platform"
	"github.com/adred-dev/warden/internal/sdkiface"
	"github.com/adred-dev/warden/internal/warnings"
	"github.com/rs/zerolog"
)

const (
	maxRetries    = 3
	overallBudget = 60 * time.Second
)

// TransientSDKError marks an SDK call as retryable (rate-limit, timeout,
// 5xx-equivalent). Any other error is treated as permanent and not retried.
type TransientSDKError struct{ Err error }

func (e *TransientSDKError) Error() string { return fmt.Sprintf("transient sdk error: %v", e.Err) }
func (e *TransientSDKError) Unwrap() error { return e.Err }

// Executor drives sdkiface.Platform calls for a confirmed Violation.
type Executor struct {
	platform sdkiface.Platform
	logger   zerolog.Logger
}

// New returns an Executor calling out to platform.
func New(p sdkiface.Platform, logger zerolog.Logger) *Executor {
	return &Executor{platform: p, logger: logger.With().Str("component", "actions").Logger()}
}

// Execute performs the full action sequence for a violation: delete the
// offending message (always), notify the mod channel whenever one is
// configured (mentioning the mod role only when one is configured and
// severity >= 0.7), and apply sanctionLevel's timeout/kick/ban if any.
func (e *Executor) Execute(ctx context.Context, v domain.Violation, sanctionLevel warnings.Level, cfg domain.GuildConfig) error {
	var errs []error

	if err := e.retry(ctx, "delete_message", func(ctx context.Context) error {
		return e.platform.DeleteMessage(ctx, v.ChannelID, v.MessageID)
	}); err != nil {
		errs = append(errs, fmt.Errorf("delete message: %w", err))
	}

	if cfg.ModChannel != nil {
		var mentionRole *platform.RoleID
		if cfg.ModRole != nil && v.Severity >= 0.7 {
			mentionRole = cfg.ModRole
		}
		content := formatNotification(v, mentionRole)
		if err := e.retry(ctx, "notify", func(ctx context.Context) error {
			return e.platform.SendMessage(ctx, *cfg.ModChannel, content, mentionRole)
		}); err != nil {
			errs = append(errs, fmt.Errorf("notify: %w", err))
		}
	}

	if err := e.applySanction(ctx, v, sanctionLevel); err != nil {
		errs = append(errs, fmt.Errorf("sanction: %w", err))
	}

	return errors.Join(errs...)
}

func (e *Executor) applySanction(ctx context.Context, v domain.Violation, level warnings.Level) error {
	switch level {
	case warnings.ShortTimeout, warnings.LongTimeout:
		d := level.SanctionDuration()
		return e.retry(ctx, "timeout", func(ctx context.Context) error {
			return e.platform.ApplyTimeout(ctx, v.GuildID, v.UserID, d)
		})
	case warnings.Kick:
		return e.retry(ctx, "kick", func(ctx context.Context) error {
			return e.platform.KickMember(ctx, v.GuildID, v.UserID)
		})
	case warnings.Ban:
		return e.retry(ctx, "ban", func(ctx context.Context) error {
			return e.platform.BanMember(ctx, v.GuildID, v.UserID)
		})
	default:
		return nil
	}
}

// retry calls fn with bounded exponential backoff: up to maxRetries
// retries (maxRetries+1 attempts total) on a TransientSDKError, capped at
// overallBudget total wall time across all attempts.
func (e *Executor) retry(ctx context.Context, action string, fn func(context.Context) error) error {
	deadline := time.Now().Add(overallBudget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var transient *TransientSDKError
		if !errors.As(err, &transient) {
			return err
		}
		if attempt == maxRetries {
			break
		}

		delay := time.Duration(1<<attempt) * time.Second
		if time.Now().Add(delay).After(deadline) {
			break
		}
		e.logger.Warn().Str("action", action).Int("attempt", attempt+1).Err(err).Msg("transient SDK error, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func formatNotification(v domain.Violation, mentionRole *platform.RoleID) string {
	mention := ""
	if mentionRole != nil {
		mention = fmt.Sprintf("<@&%d> ", uint64(*mentionRole))
	}
	return fmt.Sprintf(
		"%sViolation detected\nreason: %s\nseverity_band: %s\nlayer: %s\ndetected_at: %s\nuser: %s\ncontent_hash: %s",
		mention, v.Reason, v.Band(), v.Layer, v.DetectedAt.UTC().Format(time.RFC3339), domain.Pseudonym(v.GuildID, v.UserID), v.ContentHash,
	)
}
