package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-modmail/internal/platform"
)

// Intents the bot needs: guild channels and messages, DMs, message content
// and member lookups for admission checks.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// Gateway owns the session's websocket connection and forwards events to a
// platform.EventHandler. Messages authored by bots, including this one, are
// dropped before they reach the handler.
type Gateway struct {
	s   *discordgo.Session
	ctx context.Context
}

// NewSession creates a discordgo session for a bot token with Intents set.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = Intents
	return s, nil
}

// NewGateway registers h on s. ctx is passed to every handler call and
// should be cancelled on shutdown.
func NewGateway(ctx context.Context, s *discordgo.Session, h platform.EventHandler) *Gateway {
	g := &Gateway{s: s, ctx: ctx}

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord ready")
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil || m.Author == nil || m.Author.Bot {
			return
		}
		h.MessageCreate(g.ctx, toMessage(m.Message))
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageUpdate) {
		// Embed unfurls arrive as updates without an author.
		if m.Message == nil || m.Author == nil || m.Author.Bot {
			return
		}
		h.MessageUpdate(g.ctx, toMessage(m.Message))
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
		if m.Message == nil {
			return
		}
		h.MessageDelete(g.ctx, m.ChannelID, m.ID)
	})
	s.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelDelete) {
		if c.Channel == nil {
			return
		}
		h.ChannelDelete(g.ctx, c.ID)
	})
	return g
}

// Open connects to the gateway.
func (g *Gateway) Open() error {
	if err := g.s.Open(); err != nil {
		return fmt.Errorf("discord gateway: %w", err)
	}
	return nil
}

// Close disconnects from the gateway.
func (g *Gateway) Close() error {
	return g.s.Close()
}
