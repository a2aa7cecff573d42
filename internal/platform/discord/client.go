// Package discord adapts github.com/bwmarrin/discordgo to the platform
// interfaces: REST calls through Client, gateway events through Gateway.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"

	"github.com/tbourn/go-modmail/internal/platform"
)

// Discord JSON error codes mapped to platform sentinels.
const (
	codeUnknownChannel = 10003
	codeUnknownMember  = 10007
	codeUnknownMessage = 10008
	codeUnknownUser    = 10013
	codeCannotDM       = 50007
)

// Client implements platform.Client over a discordgo session.
type Client struct {
	s *discordgo.Session
}

// NewClient wraps an existing session.
func NewClient(s *discordgo.Session) *Client { return &Client{s: s} }

// mapErr translates discordgo REST errors into platform sentinels.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Message != nil {
		switch rest.Message.Code {
		case codeUnknownChannel:
			return fmt.Errorf("%s: %w", op, platform.ErrUnknownChannel)
		case codeUnknownMember, codeUnknownMessage, codeUnknownUser:
			return fmt.Errorf("%s: %w", op, platform.ErrNotFound)
		case codeCannotDM:
			return fmt.Errorf("%s: %w", op, platform.ErrCannotDM)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Client) DMChannel(ctx context.Context, userID string) (string, error) {
	ch, err := c.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapErr("open dm channel", err)
	}
	return ch.ID, nil
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg platform.OutgoingMessage) (*platform.Message, error) {
	data := &discordgo.MessageSend{
		Content:         msg.Content,
		AllowedMentions: allowedMentions(msg),
	}
	for _, f := range msg.Files {
		data.Files = append(data.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	sent, err := c.s.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr("send message", err)
	}
	return toMessage(sent), nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	_, err := c.s.ChannelMessageEdit(channelID, messageID, content, discordgo.WithContext(ctx))
	return mapErr("edit message", err)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return mapErr("delete message", c.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (c *Client) CreateChannel(ctx context.Context, guildID string, opts platform.ChannelOptions) (string, error) {
	ch, err := c.s.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:     opts.Name,
		Type:     discordgo.ChannelTypeGuildText,
		Topic:    opts.Topic,
		ParentID: opts.CategoryID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapErr("create channel", err)
	}
	return ch.ID, nil
}

func (c *Client) EditChannel(ctx context.Context, channelID string, opts platform.ChannelOptions) error {
	_, err := c.s.ChannelEdit(channelID, &discordgo.ChannelEdit{
		Name:     opts.Name,
		Topic:    opts.Topic,
		ParentID: opts.CategoryID,
	}, discordgo.WithContext(ctx))
	return mapErr("edit channel", err)
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.s.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return mapErr("delete channel", err)
}

func (c *Client) User(ctx context.Context, userID string) (*platform.User, error) {
	u, err := c.s.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr("get user", err)
	}
	out := toUser(u)
	return &out, nil
}

func (c *Client) Member(ctx context.Context, guildID, userID string) (*platform.Member, error) {
	m, err := c.s.State.Member(guildID, userID)
	if err != nil || m == nil {
		m, err = c.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, mapErr("get member", err)
		}
	}
	out := toMember(guildID, m)
	out.RoleName = c.hoistedRoleName(ctx, guildID, m.Roles)
	return out, nil
}

// hoistedRoleName returns the name of the highest hoisted role among
// roleIDs, or "" when none is hoisted or roles cannot be listed.
func (c *Client) hoistedRoleName(ctx context.Context, guildID string, roleIDs []string) string {
	if len(roleIDs) == 0 {
		return ""
	}
	var roles []*discordgo.Role
	if g, err := c.s.State.Guild(guildID); err == nil && g != nil && len(g.Roles) > 0 {
		roles = g.Roles
	} else if fetched, err := c.s.GuildRoles(guildID, discordgo.WithContext(ctx)); err == nil {
		roles = fetched
	}
	return hoistedRoleName(roles, roleIDs)
}

func hoistedRoleName(roles []*discordgo.Role, memberRoleIDs []string) string {
	has := make(map[string]struct{}, len(memberRoleIDs))
	for _, id := range memberRoleIDs {
		has[id] = struct{}{}
	}
	var hoisted []*discordgo.Role
	for _, r := range roles {
		if r == nil || !r.Hoist {
			continue
		}
		if _, ok := has[r.ID]; ok {
			hoisted = append(hoisted, r)
		}
	}
	if len(hoisted) == 0 {
		return ""
	}
	sort.Slice(hoisted, func(i, j int) bool { return hoisted[i].Position > hoisted[j].Position })
	return hoisted[0].Name
}

func allowedMentions(msg platform.OutgoingMessage) *discordgo.MessageAllowedMentions {
	am := &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{},
		Roles: msg.MentionRoles,
		Users: msg.MentionUsers,
	}
	if msg.MentionEveryone {
		am.Parse = append(am.Parse, discordgo.AllowedMentionTypeEveryone)
	}
	return am
}

func toUser(u *discordgo.User) platform.User {
	if u == nil {
		return platform.User{}
	}
	out := platform.User{
		ID:         u.ID,
		Username:   u.Username,
		GlobalName: u.GlobalName,
		Bot:        u.Bot,
	}
	if ts, err := discordgo.SnowflakeTimestamp(u.ID); err == nil {
		out.CreatedAt = ts
	}
	return out
}

func toMember(guildID string, m *discordgo.Member) *platform.Member {
	if m == nil {
		return nil
	}
	return &platform.Member{
		GuildID:  guildID,
		User:     toUser(m.User),
		Nick:     m.Nick,
		JoinedAt: m.JoinedAt,
	}
}

func toMessage(m *discordgo.Message) *platform.Message {
	if m == nil {
		return nil
	}
	out := &platform.Message{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		Author:     toUser(m.Author),
		Content:    m.Content,
		EmbedCount: len(m.Embeds),
		Timestamp:  m.Timestamp,
	}
	if m.Member != nil {
		out.Member = toMember(m.GuildID, m.Member)
		if out.Member.User.ID == "" {
			out.Member.User = out.Author
		}
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, platform.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        int64(a.Size),
		})
	}
	return out
}

var _ platform.Client = (*Client)(nil)
