// Package platform describes the chat platform the bot talks to: the REST
// operations the core needs, the event payloads it consumes, and the error
// sentinels adapters must map their failures to.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/go-modmail/internal/sysutil"
)

// Sentinel errors returned by Client implementations. Wrap freely; callers
// branch with errors.Is.
var (
	// ErrNotFound reports an unknown user, member or message.
	ErrNotFound = errors.New("platform: not found")
	// ErrUnknownChannel reports that the channel no longer exists.
	ErrUnknownChannel = errors.New("platform: unknown channel")
	// ErrCannotDM reports that the user does not accept DMs from the bot.
	ErrCannotDM = errors.New("platform: cannot send messages to this user")
)

// User is a platform account.
type User struct {
	ID         string
	Username   string
	GlobalName string
	Bot        bool
	CreatedAt  time.Time
}

// DisplayName prefers the global display name over the username.
func (u User) DisplayName() string {
	return sysutil.FirstNonEmpty(u.GlobalName, u.Username)
}

// Member is a user's membership in one guild.
type Member struct {
	GuildID  string
	User     User
	Nick     string
	JoinedAt time.Time
	// RoleName is the member's highest hoisted role, "" if none.
	RoleName string
}

// Attachment is a file attached to an inbound message.
type Attachment struct {
	ID          string
	Filename    string
	URL         string
	ContentType string
	Size        int64
}

// File is an outbound file payload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is a posted message, inbound or as returned by a send.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string // "" for DMs
	Author      User
	Member      *Member // set for guild messages when the gateway provides it
	Content     string
	Attachments []Attachment
	EmbedCount  int
	Timestamp   time.Time
}

// IsDM reports whether the message was sent in a direct-message channel.
func (m *Message) IsDM() bool { return m.GuildID == "" }

// OutgoingMessage is the payload of a send. Only the listed mention
// targets ping; everything else in Content renders without a notification.
type OutgoingMessage struct {
	Content         string
	Files           []File
	MentionEveryone bool // @everyone and @here
	MentionRoles    []string
	MentionUsers    []string
}

// ChannelOptions describes a channel to create or the fields to edit.
type ChannelOptions struct {
	Name       string
	CategoryID string
	Topic      string
}

// Client is the set of platform REST operations the bot core depends on.
type Client interface {
	// DMChannel opens (or returns the existing) DM channel with userID.
	DMChannel(ctx context.Context, userID string) (string, error)
	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (*Message, error)
	EditMessage(ctx context.Context, channelID, messageID, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	CreateChannel(ctx context.Context, guildID string, opts ChannelOptions) (string, error)
	EditChannel(ctx context.Context, channelID string, opts ChannelOptions) error
	DeleteChannel(ctx context.Context, channelID string) error
	User(ctx context.Context, userID string) (*User, error)
	Member(ctx context.Context, guildID, userID string) (*Member, error)
}

// EventHandler receives gateway events. Implementations must not block for
// long; the gateway calls them on its own goroutines.
type EventHandler interface {
	MessageCreate(ctx context.Context, msg *Message)
	MessageUpdate(ctx context.Context, msg *Message)
	MessageDelete(ctx context.Context, channelID, messageID string)
	ChannelDelete(ctx context.Context, channelID string)
}
