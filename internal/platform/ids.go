// Package platform holds cross-cutting concerns shared by every component:
// identifiers, process configuration, logging setup, and a structured
// error wrapper type (StageError).
package platform

import "fmt"

// GuildID, ChannelID, UserID, MessageID and RoleID are opaque 64-bit
// identifiers from the chat platform. They are distinct types so a
// ChannelID can never be passed where a UserID is expected.
type (
	GuildID   uint64
	ChannelID uint64
	UserID    uint64
	MessageID uint64
	RoleID    uint64
)

func (g GuildID) String() string   { return fmt.Sprintf("%d", uint64(g)) }
func (c ChannelID) String() string { return fmt.Sprintf("%d", uint64(c)) }
func (u UserID) String() string    { return fmt.Sprintf("%d", uint64(u)) }
func (m MessageID) String() string { return fmt.Sprintf("%d", uint64(m)) }
func (r RoleID) String() string    { return fmt.Sprintf("%d", uint64(r)) }

// GuildUser identifies the (guild, user) pair the Warning Ledger, Event Bus
// subscriber cap, and Raid Detector are keyed on.
type GuildUser struct {
	Guild GuildID
	User  UserID
}
