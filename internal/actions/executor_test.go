package actions

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/platform"
	"github.com/adred-dev/warden/internal/warnings"
	"github.com/rs/zerolog"
)

type call struct {
	name string
}

type fakePlatform struct {
	calls []call

	deleteErr  error
	sendErr    error
	timeoutErr error
	kickErr    error
	banErr     error

	deleteAttempts int32
}

func (f *fakePlatform) DeleteMessage(ctx context.Context, channel platform.ChannelID, message platform.MessageID) error {
	atomic.AddInt32(&f.deleteAttempts, 1)
	f.calls = append(f.calls, call{"delete"})
	return f.deleteErr
}
func (f *fakePlatform) SendMessage(ctx context.Context, channel platform.ChannelID, content string, role *platform.RoleID) error {
	f.calls = append(f.calls, call{"notify"})
	return f.sendErr
}
func (f *fakePlatform) ApplyTimeout(ctx context.Context, guild platform.GuildID, user platform.UserID, d time.Duration) error {
	f.calls = append(f.calls, call{"timeout"})
	return f.timeoutErr
}
func (f *fakePlatform) KickMember(ctx context.Context, guild platform.GuildID, user platform.UserID) error {
	f.calls = append(f.calls, call{"kick"})
	return f.kickErr
}
func (f *fakePlatform) BanMember(ctx context.Context, guild platform.GuildID, user platform.UserID) error {
	f.calls = append(f.calls, call{"ban"})
	return f.banErr
}

func sampleViolation(severity float64) domain.Violation {
	return domain.Violation{
		MessageID: 1, ChannelID: 10, GuildID: 1, UserID: 100,
		Reason: "test", Severity: severity, Layer: domain.LayerRegex,
		DetectedAt: time.Now(), ContentHash: "abc",
	}
}

func TestExecuteAlwaysDeletesMessage(t *testing.T) {
	fp := &fakePlatform{}
	e := New(fp, zerolog.Nop())
	cfg := domain.GuildConfig{}

	e.Execute(context.Background(), sampleViolation(0.3), warnings.None, cfg)
	if len(fp.calls) != 1 || fp.calls[0].name != "delete" {
		t.Fatalf("expected only delete_message call, got %+v", fp.calls)
	}
}

func TestExecuteNotifiesWheneverModChannelConfigured(t *testing.T) {
	fp := &fakePlatform{}
	e := New(fp, zerolog.Nop())
	ch := platform.ChannelID(5)
	cfg := domain.GuildConfig{ModChannel: &ch}

	e.Execute(context.Background(), sampleViolation(0.9), warnings.None, cfg)
	foundNotify := false
	for _, c := range fp.calls {
		if c.name == "notify" {
			foundNotify = true
		}
	}
	if !foundNotify {
		t.Fatal("expected a notify call for any severity with mod_channel configured")
	}
}

func TestExecuteNotifiesBelowMentionThresholdWithoutMention(t *testing.T) {
	fp := &fakePlatform{}
	e := New(fp, zerolog.Nop())
	ch := platform.ChannelID(5)
	role := platform.RoleID(7)
	cfg := domain.GuildConfig{ModChannel: &ch, ModRole: &role}

	e.Execute(context.Background(), sampleViolation(0.5), warnings.None, cfg)
	foundNotify := false
	for _, c := range fp.calls {
		if c.name == "notify" {
			foundNotify = true
		}
	}
	if !foundNotify {
		t.Fatal("expected a notify call below severity 0.7, only the @mod_role mention is gated on severity")
	}
}

func TestExecuteDoesNotNotifyWithoutModChannel(t *testing.T) {
	fp := &fakePlatform{}
	e := New(fp, zerolog.Nop())
	cfg := domain.GuildConfig{}

	e.Execute(context.Background(), sampleViolation(0.9), warnings.None, cfg)
	for _, c := range fp.calls {
		if c.name == "notify" {
			t.Fatal("expected no notify call when no mod_channel is configured")
		}
	}
}

func TestExecuteAppliesSanctionForLevel(t *testing.T) {
	fp := &fakePlatform{}
	e := New(fp, zerolog.Nop())
	cfg := domain.GuildConfig{}

	e.Execute(context.Background(), sampleViolation(0.5), warnings.Kick, cfg)
	foundKick := false
	for _, c := range fp.calls {
		if c.name == "kick" {
			foundKick = true
		}
	}
	if !foundKick {
		t.Fatal("expected a kick call for Kick sanction level")
	}
}

func TestRetryRetriesTransientErrors(t *testing.T) {
	fp := &fakePlatform{deleteErr: &TransientSDKError{Err: errors.New("rate limited")}}
	e := New(fp, zerolog.Nop())
	cfg := domain.GuildConfig{}

	e.Execute(context.Background(), sampleViolation(0.3), warnings.None, cfg)
	if fp.deleteAttempts != maxRetries+1 {
		t.Fatalf("expected %d attempts (maxRetries+1), got %d", maxRetries+1, fp.deleteAttempts)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	fp := &fakePlatform{deleteErr: errors.New("permanent failure")}
	e := New(fp, zerolog.Nop())
	cfg := domain.GuildConfig{}

	e.Execute(context.Background(), sampleViolation(0.3), warnings.None, cfg)
	if fp.deleteAttempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-transient error, got %d", fp.deleteAttempts)
	}
}

func TestFormatNotificationOmitsRawContentAndIncludesMentionWhenConfigured(t *testing.T) {
	v := sampleViolation(0.9)
	role := platform.RoleID(42)
	msg := formatNotification(v, &role)

	if !containsAll(msg, "reason: test", "severity_band: high", "content_hash: abc") {
		t.Fatalf("notification missing expected fields: %s", msg)
	}
	if !containsAll(msg, "<@&42>") {
		t.Fatalf("notification missing the configured role mention: %s", msg)
	}
	if containsAll(msg, "100") {
		t.Fatalf("notification must not leak raw user id: %s", msg)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
