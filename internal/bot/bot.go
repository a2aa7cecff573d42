// Package bot turns platform events into thread operations. Every event
// that reads or changes thread state runs as a task on the dispatch queue,
// so a user's DMs, staff commands and channel deletions are applied one at
// a time in arrival order.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-modmail/internal/config"
	"github.com/tbourn/go-modmail/internal/domain"
	"github.com/tbourn/go-modmail/internal/platform"
	"github.com/tbourn/go-modmail/internal/queue"
	"github.com/tbourn/go-modmail/internal/services"
)

// maxRelayAttempts bounds how often one DM is relayed after its thread
// turned out to be orphaned.
const maxRelayAttempts = 2

// Bot implements platform.EventHandler for one inbox.
type Bot struct {
	Threads  *services.ThreadService
	Snippets *services.SnippetService
	Blocks   *services.BlockService
	Queue    *queue.Queue
	Client   platform.Client
	Cfg      config.Config
}

var _ platform.EventHandler = (*Bot)(nil)

// New wires a Bot. The platform client and config are taken from threads.
func New(threads *services.ThreadService, snippets *services.SnippetService, blocks *services.BlockService, q *queue.Queue) *Bot {
	return &Bot{
		Threads:  threads,
		Snippets: snippets,
		Blocks:   blocks,
		Queue:    q,
		Client:   threads.Client,
		Cfg:      threads.Cfg,
	}
}

func (b *Bot) inInbox(guildID string) bool {
	return guildID != "" && guildID == b.Cfg.InboxGuildID
}

// MessageCreate routes a new DM or inbox message onto the queue.
func (b *Bot) MessageCreate(_ context.Context, msg *platform.Message) {
	if msg == nil || msg.Author.Bot {
		return
	}
	switch {
	case msg.IsDM():
		b.Queue.Enqueue(func(ctx context.Context) error { return b.handleDM(ctx, msg) })
	case b.inInbox(msg.GuildID):
		b.Queue.Enqueue(func(ctx context.Context) error { return b.handleInbox(ctx, msg) })
	}
}

// MessageUpdate records user edits of relayed DMs and staff edits of
// logged chat messages.
func (b *Bot) MessageUpdate(_ context.Context, msg *platform.Message) {
	if msg == nil || msg.Author.Bot {
		return
	}
	switch {
	case msg.IsDM():
		b.Queue.Enqueue(func(ctx context.Context) error {
			t, err := b.Threads.FindOpenThreadByUserID(ctx, msg.Author.ID)
			if err != nil || t == nil {
				return err
			}
			return b.Threads.NoteUserEdit(ctx, t, msg)
		})
	case b.inInbox(msg.GuildID):
		b.Queue.Enqueue(func(ctx context.Context) error {
			t, err := b.activeThread(ctx, msg.ChannelID)
			if err != nil || t == nil {
				return err
			}
			return b.Threads.UpdateChatMessage(ctx, t, msg)
		})
	}
}

// MessageDelete drops the log row of a deleted staff chat message.
func (b *Bot) MessageDelete(_ context.Context, channelID, messageID string) {
	b.Queue.Enqueue(func(ctx context.Context) error {
		t, err := b.activeThread(ctx, channelID)
		if err != nil || t == nil {
			return err
		}
		return b.Threads.DeleteChatMessage(ctx, t, messageID)
	})
}

// ChannelDelete closes the thread whose channel was deleted by hand.
func (b *Bot) ChannelDelete(_ context.Context, channelID string) {
	b.Queue.Enqueue(func(ctx context.Context) error {
		t, err := b.activeThread(ctx, channelID)
		if err != nil || t == nil {
			return err
		}
		log.Info().Str("thread_id", t.ID).Str("channel_id", channelID).Msg("thread channel deleted")
		_, err = b.Threads.Close(ctx, t, services.CloseOptions{
			Silent:                true,
			SuppressSystemMessage: true,
			Reason:                services.CloseReasonChannelDeleted,
		})
		return err
	})
}

// activeThread returns the OPEN or SUSPENDED thread of channelID.
func (b *Bot) activeThread(ctx context.Context, channelID string) (*domain.Thread, error) {
	t, err := b.Threads.FindByChannelID(ctx, channelID)
	if err != nil || t == nil || t.IsClosed() {
		return nil, err
	}
	return t, nil
}

// handleDM relays an inbound DM, opening a thread when needed. Blocked
// users get the optional blocked reply and nothing else.
func (b *Bot) handleDM(ctx context.Context, msg *platform.Message) error {
	lg := log.With().Str("user_id", msg.Author.ID).Str("message_id", msg.ID).Logger()

	blocked, err := b.Blocks.IsBlocked(ctx, msg.Author.ID)
	if err != nil {
		return err
	}
	if blocked {
		lg.Info().Msg("message from blocked user ignored")
		if reply := b.Cfg.Threads.BlockedReply; reply != "" {
			if _, err := b.Threads.DMs.Send(ctx, msg.Author.ID, platform.OutgoingMessage{Content: reply}); err != nil {
				lg.Warn().Err(err).Msg("blocked reply not delivered")
			}
		}
		return nil
	}

	for attempt := 1; attempt <= maxRelayAttempts; attempt++ {
		t, err := b.Threads.FindOrCreateThreadForUser(ctx, msg.Author, services.CreateOptions{
			Source:  "dm",
			Message: msg,
		})
		if err != nil || t == nil {
			return err
		}
		if err := b.Threads.ReceiveUserReply(ctx, t, msg); err != nil {
			return err
		}
		if !t.IsClosed() {
			return nil
		}
		lg.Info().Str("thread_id", t.ID).Msg("thread was orphaned, relaying to a new thread")
	}
	return nil
}

// handleInbox handles a staff message in the inbox guild: snippets,
// commands, replies and plain chat.
func (b *Bot) handleInbox(ctx context.Context, msg *platform.Message) error {
	t, err := b.activeThread(ctx, msg.ChannelID)
	if err != nil {
		return err
	}
	content := strings.TrimSpace(msg.Content)

	anon, plain, prefix := b.Cfg.SnippetPrefixAnon, b.Cfg.SnippetPrefix, b.Cfg.Prefix
	switch {
	case anon != "" && strings.HasPrefix(content, anon):
		return b.useSnippet(ctx, t, msg, content[len(anon):], true)
	case plain != "" && strings.HasPrefix(content, plain):
		return b.useSnippet(ctx, t, msg, content[len(plain):], false)
	case prefix != "" && strings.HasPrefix(content, prefix):
		return b.handleCommand(ctx, t, msg, content[len(prefix):])
	}

	if t == nil {
		return nil
	}
	if t.IsOpen() && b.Cfg.Threads.AlwaysReply {
		return b.reply(ctx, t, msg, msg.Content, b.Cfg.Threads.AlwaysReplyAnon)
	}
	return b.Threads.SaveChatMessage(ctx, t, msg)
}

// staff resolves the author of an inbox message as a guild member.
func (b *Bot) staff(ctx context.Context, msg *platform.Message) platform.Member {
	m, err := b.Client.Member(ctx, msg.GuildID, msg.Author.ID)
	if err == nil {
		return *m
	}
	if !errors.Is(err, platform.ErrNotFound) {
		log.Debug().Err(err).Str("user_id", msg.Author.ID).Msg("staff lookup failed")
	}
	if msg.Member != nil {
		m := *msg.Member
		m.User = msg.Author
		return m
	}
	return platform.Member{GuildID: msg.GuildID, User: msg.Author}
}

// say answers in the invoking channel: as a logged system message inside
// a thread, as a plain message elsewhere.
func (b *Bot) say(ctx context.Context, t *domain.Thread, channelID, text string) error {
	if t != nil && !t.IsClosed() {
		_, err := b.Threads.PostSystemMessage(ctx, t, text)
		return err
	}
	_, err := b.Client.SendMessage(ctx, channelID, platform.OutgoingMessage{Content: text})
	return err
}

// reply relays text to the thread's user. The staff's own message is
// removed once the reply is mirrored, and kept when delivery failed.
func (b *Bot) reply(ctx context.Context, t *domain.Thread, msg *platform.Message, text string, anonymous bool) error {
	sent, err := b.Threads.ReplyToUser(ctx, t, b.staff(ctx, msg), text, msg.Attachments, anonymous)
	if errors.Is(err, services.ErrEmptyReply) {
		return b.say(ctx, t, msg.ChannelID, "Nothing to send.")
	}
	if err != nil || !sent {
		return err
	}
	if err := b.Client.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil && !errors.Is(err, platform.ErrNotFound) {
		log.Debug().Err(err).Str("message_id", msg.ID).Msg("could not remove reply command")
	}
	return nil
}

// useSnippet renders "name args..." and sends it as a reply. An unknown
// trigger is logged as ordinary chat.
func (b *Bot) useSnippet(ctx context.Context, t *domain.Thread, msg *platform.Message, rest string, anonymous bool) error {
	if t == nil {
		return nil
	}
	args := SplitArgs(rest)
	if len(args) == 0 {
		return b.Threads.SaveChatMessage(ctx, t, msg)
	}
	text, err := b.Snippets.Render(ctx, args[0], args[1:])
	if errors.Is(err, services.ErrSnippetNotFound) {
		return b.Threads.SaveChatMessage(ctx, t, msg)
	}
	if err != nil {
		return err
	}
	if !t.IsOpen() {
		return b.say(ctx, t, msg.ChannelID, "This thread is suspended; unsuspend it to reply.")
	}
	return b.reply(ctx, t, msg, text, anonymous)
}
