// Package platformtest provides an in-memory platform.Client that records
// every outbound call, for use in tests.
package platformtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/go-modmail/internal/platform"
)

// Sent is one recorded SendMessage call.
type Sent struct {
	ChannelID string
	MessageID string
	Msg       platform.OutgoingMessage
}

// Edit is one recorded EditMessage call.
type Edit struct {
	ChannelID, MessageID, Content string
}

// Fake is a concurrency-safe platform.Client. Channels must exist (created
// through CreateChannel or AddChannel) to receive messages; DM channels are
// "dm-<userID>".
type Fake struct {
	mu sync.Mutex
	n  int

	users    map[string]*platform.User
	members  map[string]*platform.Member // guildID/userID
	channels map[string]platform.ChannelOptions
	dmClosed map[string]bool

	sent            []Sent
	edits           []Edit
	deletedMessages []string
	createdChannels []string
	deletedChannels []string
	dmLookups       int

	// CreateChannelErr, when set, fails every CreateChannel.
	CreateChannelErr error
	// SendErr, when it returns non-nil for a channel, fails that send.
	SendErr func(channelID string) error
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		users:    map[string]*platform.User{},
		members:  map[string]*platform.Member{},
		channels: map[string]platform.ChannelOptions{},
		dmClosed: map[string]bool{},
	}
}

func (f *Fake) nextID(prefix string) string {
	f.n++
	return fmt.Sprintf("%s%d", prefix, f.n)
}

// AddUser registers a user.
func (f *Fake) AddUser(u platform.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = &u
}

// AddMember registers a guild member (and its user).
func (f *Fake) AddMember(m platform.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[m.GuildID+"/"+m.User.ID] = &m
	if _, ok := f.users[m.User.ID]; !ok {
		u := m.User
		f.users[u.ID] = &u
	}
}

// AddChannel registers an existing guild channel.
func (f *Fake) AddChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id] = platform.ChannelOptions{Name: id}
}

// RemoveChannel deletes a channel out of band, as a staff member would.
func (f *Fake) RemoveChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
}

// CloseDMs makes sends to userID's DM channel fail with ErrCannotDM.
func (f *Fake) CloseDMs(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dmClosed[userID] = true
}

// HasChannel reports whether the channel exists.
func (f *Fake) HasChannel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.channels[id]
	return ok
}

// Channel returns the options a channel was created or edited with.
func (f *Fake) Channel(id string) (platform.ChannelOptions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.channels[id]
	return o, ok
}

// SentTo returns the messages sent to channelID, in order.
func (f *Fake) SentTo(channelID string) []platform.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []platform.OutgoingMessage
	for _, s := range f.sent {
		if s.ChannelID == channelID {
			out = append(out, s.Msg)
		}
	}
	return out
}

// AllSent returns every recorded send.
func (f *Fake) AllSent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Edits returns recorded message edits.
func (f *Fake) Edits() []Edit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Edit(nil), f.edits...)
}

// DeletedMessages returns "channel/message" keys of deleted messages.
func (f *Fake) DeletedMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletedMessages...)
}

// CreatedChannels returns ids of channels created through the client.
func (f *Fake) CreatedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.createdChannels...)
}

// DeletedChannels returns ids passed to successful DeleteChannel calls.
func (f *Fake) DeletedChannels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletedChannels...)
}

// DMLookups returns how many times DMChannel was called.
func (f *Fake) DMLookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dmLookups
}

// DMChannelID is the DM channel id the fake assigns to userID.
func DMChannelID(userID string) string { return "dm-" + userID }

func (f *Fake) DMChannel(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dmLookups++
	if _, ok := f.users[userID]; !ok {
		return "", fmt.Errorf("dm %s: %w", userID, platform.ErrNotFound)
	}
	return DMChannelID(userID), nil
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.OutgoingMessage) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SendErr != nil {
		if err := f.SendErr(channelID); err != nil {
			return nil, err
		}
	}
	if userID, ok := strings.CutPrefix(channelID, "dm-"); ok {
		if f.dmClosed[userID] {
			return nil, platform.ErrCannotDM
		}
	} else if _, ok := f.channels[channelID]; !ok {
		return nil, platform.ErrUnknownChannel
	}

	id := f.nextID("m")
	f.sent = append(f.sent, Sent{ChannelID: channelID, MessageID: id, Msg: msg})
	out := &platform.Message{ID: id, ChannelID: channelID, Content: msg.Content, Timestamp: time.Now().UTC()}
	for i, file := range msg.Files {
		out.Attachments = append(out.Attachments, platform.Attachment{
			ID:          fmt.Sprintf("%s-%d", id, i),
			Filename:    file.Name,
			URL:         fmt.Sprintf("https://cdn.test/%s/%s/%s", channelID, id, file.Name),
			ContentType: file.ContentType,
			Size:        int64(len(file.Data)),
		})
	}
	return out, nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, Edit{ChannelID: channelID, MessageID: messageID, Content: content})
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedMessages = append(f.deletedMessages, channelID+"/"+messageID)
	return nil
}

func (f *Fake) CreateChannel(_ context.Context, _ string, opts platform.ChannelOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateChannelErr != nil {
		return "", f.CreateChannelErr
	}
	id := f.nextID("ch")
	f.channels[id] = opts
	f.createdChannels = append(f.createdChannels, id)
	return id, nil
}

func (f *Fake) EditChannel(_ context.Context, channelID string, opts platform.ChannelOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.channels[channelID]
	if !ok {
		return platform.ErrUnknownChannel
	}
	if opts.Name != "" {
		cur.Name = opts.Name
	}
	if opts.CategoryID != "" {
		cur.CategoryID = opts.CategoryID
	}
	if opts.Topic != "" {
		cur.Topic = opts.Topic
	}
	f.channels[channelID] = cur
	return nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.channels[channelID]; !ok {
		return platform.ErrUnknownChannel
	}
	delete(f.channels, channelID)
	f.deletedChannels = append(f.deletedChannels, channelID)
	return nil
}

func (f *Fake) User(_ context.Context, userID string) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *Fake) Member(_ context.Context, guildID, userID string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[guildID+"/"+userID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

var _ platform.Client = (*Fake)(nil)
