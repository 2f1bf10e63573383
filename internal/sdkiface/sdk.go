// Package sdkiface defines the boundary between warden and the chat
// platform's own client SDK. The SDK itself (connecting to the platform,
// authenticating, receiving gateway events) is out of scope (spec §1
// Non-goals: "integration with any specific real chat platform SDK");
// this package only fixes the shape warden depends on, so any concrete
// SDK binding can satisfy it.
package sdkiface

import (
	"context"
	"time"

	"github.com/adred-dev/warden/internal/platform"
)

// InboundMessage is a chat message as delivered by the platform's event
// stream, before it has been through the prefilter.
type InboundMessage struct {
	MessageID  platform.MessageID
	ChannelID  platform.ChannelID
	GuildID    platform.GuildID
	AuthorID   platform.UserID
	Content    string
	ReplyToUser *platform.UserID
	ReceivedAt time.Time
}

// MemberJoin is a guild member-join event as delivered by the platform.
type MemberJoin struct {
	GuildID           platform.GuildID
	UserID            platform.UserID
	AccountCreatedAt  time.Time
	JoinedAt          time.Time
}

// InboundHandler is implemented by the pipeline orchestrator and driven by
// whichever transport adapter (gateway, ingest) is wired in front of it.
type InboundHandler interface {
	HandleMessage(ctx context.Context, msg InboundMessage)
	HandleMemberJoin(ctx context.Context, join MemberJoin)
}

// Platform is the outbound surface the Action Executor calls into. A real
// deployment implements this against the target platform's actual SDK;
// warden only depends on this interface.
type Platform interface {
	DeleteMessage(ctx context.Context, channel platform.ChannelID, message platform.MessageID) error
	SendMessage(ctx context.Context, channel platform.ChannelID, content string, mentionRole *platform.RoleID) error
	ApplyTimeout(ctx context.Context, guild platform.GuildID, user platform.UserID, duration time.Duration) error
	KickMember(ctx context.Context, guild platform.GuildID, user platform.UserID) error
	BanMember(ctx context.Context, guild platform.GuildID, user platform.UserID) error
}
