// Package domain holds the data model shared by every pipeline component:
// messages as they move through the buffer and context window, violations,
// and the analyzer's request/response shapes. Components pass these types
// by value so a message can move from buffer to batch without a second
// owner ever observing a half-written field.
package domain

import (
	"time"

	"github.com/adred-dev/warden/internal/platform"
)

// BufferedMessage is one inbound chat message that survived the prefilter
// and is waiting to be (or has been) shipped to the semantic analyzer.
type BufferedMessage struct {
	MessageID  platform.MessageID
	ChannelID  platform.ChannelID
	GuildID    platform.GuildID
	AuthorID   platform.UserID
	Content    string // bounded UTF-8; never persisted past batch finalization
	ReceivedAt time.Time
}

// ContextMessage is the subset of a BufferedMessage carried in a channel's
// context window, plus the optional user it was a reply to. Context rings
// hold these, not full BufferedMessages, so a context snapshot never grows
// unboundedly even though content is carried for disambiguation.
type ContextMessage struct {
	MessageID   platform.MessageID
	AuthorID    platform.UserID
	Content     string
	ReceivedAt  time.Time
	ReplyToUser *platform.UserID
}

// FromBuffered builds the context-window projection of a buffered message.
func FromBuffered(m BufferedMessage, replyTo *platform.UserID) ContextMessage {
	return ContextMessage{
		MessageID:   m.MessageID,
		AuthorID:    m.AuthorID,
		Content:     m.Content,
		ReceivedAt:  m.ReceivedAt,
		ReplyToUser: replyTo,
	}
}
