package domain

import "github.com/adred-dev/warden/internal/platform"

// GuildConfig holds a guild's moderation settings (spec §3: GuildConfig).
type GuildConfig struct {
	SeverityThreshold float64
	BufferTimeoutSecs int
	BufferThreshold   int
	ModRole           *platform.RoleID
	ModChannel        *platform.ChannelID
	RulesText         string
}
