package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-modmail/internal/domain"
	"github.com/tbourn/go-modmail/internal/platform"
	"github.com/tbourn/go-modmail/internal/services"
)

// logsPageSize is the number of threads listed per page by !logs.
const logsPageSize = 10

// handleCommand dispatches a prefixed staff command. t is the thread of the
// invoking channel, or nil outside thread channels. Inside a thread every
// command except the reply commands is logged as a COMMAND row first.
func (b *Bot) handleCommand(ctx context.Context, t *domain.Thread, msg *platform.Message, text string) error {
	cmd, rest := splitCommand(text)
	lg := log.With().Str("command", cmd).Str("channel_id", msg.ChannelID).Logger()

	switch cmd {
	case "reply", "r", "anonreply", "ar":
	case "close", "suspend", "unsuspend", "alert", "newthread", "block", "unblock",
		"logs", "id", "edit", "delete", "snippet", "s":
		if t != nil {
			if err := b.Threads.SaveCommandMessage(ctx, t, msg); err != nil {
				return err
			}
		}
	default:
		if t != nil {
			return b.Threads.SaveChatMessage(ctx, t, msg)
		}
		return nil
	}
	lg.Debug().Msg("command")

	switch cmd {
	case "reply", "r":
		return b.cmdReply(ctx, t, msg, rest, false)
	case "anonreply", "ar":
		return b.cmdReply(ctx, t, msg, rest, true)
	case "close":
		return b.cmdClose(ctx, t, msg, SplitArgs(rest))
	case "suspend":
		return b.cmdSuspend(ctx, t, msg, SplitArgs(rest))
	case "unsuspend":
		return b.cmdUnsuspend(ctx, t, msg)
	case "alert":
		return b.cmdAlert(ctx, t, msg, SplitArgs(rest))
	case "newthread":
		return b.cmdNewThread(ctx, t, msg, SplitArgs(rest))
	case "block":
		return b.cmdBlock(ctx, t, msg, SplitArgs(rest))
	case "unblock":
		return b.cmdUnblock(ctx, t, msg, SplitArgs(rest))
	case "logs":
		return b.cmdLogs(ctx, t, msg, SplitArgs(rest))
	case "id":
		if t == nil {
			return nil
		}
		return b.say(ctx, t, msg.ChannelID, t.UserID)
	case "edit":
		return b.cmdEdit(ctx, t, msg, rest)
	case "delete":
		return b.cmdDelete(ctx, t, msg, SplitArgs(rest))
	default:
		return b.cmdSnippet(ctx, t, msg, rest)
	}
}

func (b *Bot) now() time.Time {
	if b.Threads.Now != nil {
		return b.Threads.Now()
	}
	return time.Now().UTC()
}

// humanDelay renders d as a rough English span, e.g. "2 hours".
func (b *Bot) humanDelay(d time.Duration) string {
	now := b.now()
	return strings.TrimSpace(humanize.RelTime(now, now.Add(d), "", ""))
}

func (b *Bot) inDelay(d time.Duration) string { return "in " + b.humanDelay(d) }

func (b *Bot) cmdReply(ctx context.Context, t *domain.Thread, msg *platform.Message, text string, anonymous bool) error {
	if t == nil {
		return nil
	}
	if !t.IsOpen() {
		return b.say(ctx, t, msg.ChannelID, "This thread is suspended; unsuspend it to reply.")
	}
	return b.reply(ctx, t, msg, text, anonymous)
}

func (b *Bot) cmdClose(ctx context.Context, t *domain.Thread, msg *platform.Message, args []string) error {
	if t == nil {
		return nil
	}
	staff := b.staff(ctx, msg)

	silent := false
	var delay time.Duration
	for _, a := range args {
		switch strings.ToLower(a) {
		case "cancel":
			if !t.HasScheduledClose() {
				return b.say(ctx, t, msg.ChannelID, "This thread is not scheduled to close.")
			}
			if err := b.Threads.CancelScheduledClose(ctx, t); err != nil {
				return err
			}
			return b.say(ctx, t, msg.ChannelID, "Cancelled scheduled closing.")
		case "silent", "quiet":
			silent = true
		default:
			d, err := ParseDelay(a)
			if err != nil {
				return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Unknown argument `%s`: %v", a, err))
			}
			delay = d
		}
	}

	if delay > 0 {
		err := b.Threads.ScheduleClose(ctx, t, b.now().Add(delay), staff.User, silent)
		if errors.Is(err, services.ErrInvalidTransition) {
			return b.say(ctx, t, msg.ChannelID, "Only open threads can be scheduled to close.")
		}
		if err != nil {
			return err
		}
		note := fmt.Sprintf("Thread is now scheduled to be closed %s. Use `%sclose cancel` to cancel.", b.inDelay(delay), b.Cfg.Prefix)
		if silent {
			note = fmt.Sprintf("Thread is now scheduled to be closed silently %s. Use `%sclose cancel` to cancel.", b.inDelay(delay), b.Cfg.Prefix)
		}
		return b.say(ctx, t, msg.ChannelID, note)
	}

	url, err := b.Threads.Close(ctx, t, services.CloseOptions{
		Closer: &staff.User,
		Silent: silent,
		Reason: services.CloseReasonCommand,
	})
	if err != nil || url == "" {
		return err
	}
	log.Info().Str("thread_id", t.ID).Str("log_url", url).Msg("thread log ready")

	// Without a log channel the closer is the only one told where the log is.
	if b.Cfg.LogChannelID == "" {
		note := fmt.Sprintf("Logs of thread #%d with %s: <%s>", t.ThreadNumber, t.UserName, url)
		if _, err := b.Threads.DMs.Send(ctx, staff.User.ID, platform.OutgoingMessage{Content: note}); err != nil {
			log.Debug().Err(err).Str("user_id", staff.User.ID).Msg("could not send log link to closer")
		}
	}
	return nil
}

func (b *Bot) cmdSuspend(ctx context.Context, t *domain.Thread, msg *platform.Message, args []string) error {
	if t == nil {
		return nil
	}
	if len(args) > 0 && strings.EqualFold(args[0], "cancel") {
		if !t.HasScheduledSuspend() {
			return b.say(ctx, t, msg.ChannelID, "This thread is not scheduled to be suspended.")
		}
		if err := b.Threads.CancelScheduledSuspend(ctx, t); err != nil {
			return err
		}
		return b.say(ctx, t, msg.ChannelID, "Cancelled scheduled suspension.")
	}
	if !t.IsOpen() {
		return b.say(ctx, t, msg.ChannelID, "This thread is already suspended.")
	}

	if len(args) > 0 {
		d, err := ParseDelay(args[0])
		if err != nil {
			return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Unknown argument `%s`: %v", args[0], err))
		}
		if err := b.Threads.ScheduleSuspend(ctx, t, b.now().Add(d), b.staff(ctx, msg).User); err != nil {
			return err
		}
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Thread will be suspended %s. Use `%ssuspend cancel` to cancel.", b.inDelay(d), b.Cfg.Prefix))
	}

	if err := b.Threads.Suspend(ctx, t); err != nil {
		return err
	}
	return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("**Thread suspended!** This thread will act as closed until unsuspended with `%sunsuspend`", b.Cfg.Prefix))
}

func (b *Bot) cmdUnsuspend(ctx context.Context, t *domain.Thread, msg *platform.Message) error {
	if t == nil {
		return nil
	}
	if !t.IsSuspended() {
		return b.say(ctx, t, msg.ChannelID, "Thread is not suspended.")
	}
	err := b.Threads.Unsuspend(ctx, t)
	if errors.Is(err, services.ErrThreadAlreadyOpen) {
		other, ferr := b.Threads.FindOpenThreadByUserID(ctx, t.UserID)
		if ferr != nil || other == nil {
			return b.say(ctx, t, msg.ChannelID, "Cannot unsuspend: the user already has another open thread.")
		}
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Cannot unsuspend: the user already has an open thread: <#%s>", other.Channel()))
	}
	if err != nil {
		return err
	}
	return b.say(ctx, t, msg.ChannelID, "**Thread unsuspended!**")
}

func (b *Bot) cmdAlert(ctx context.Context, t *domain.Thread, msg *platform.Message, args []string) error {
	if t == nil {
		return nil
	}
	if len(args) > 0 && strings.EqualFold(args[0], "cancel") {
		if err := b.Threads.RemoveAlert(ctx, t, msg.Author.ID); err != nil {
			return err
		}
		return b.say(ctx, t, msg.ChannelID, "Cancelled new message alert.")
	}
	if err := b.Threads.AddAlert(ctx, t, msg.Author.ID); err != nil {
		return err
	}
	return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Pinging <@%s> when this thread gets a new reply.", msg.Author.ID))
}

func (b *Bot) cmdNewThread(ctx context.Context, t *domain.Thread, msg *platform.Message, args []string) error {
	if len(args) == 0 || !isSnowflake(mentionID(args[0])) {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Usage: `%snewthread <user id>`", b.Cfg.Prefix))
	}
	userID := mentionID(args[0])
	user, err := b.Client.User(ctx, userID)
	if errors.Is(err, platform.ErrNotFound) {
		return b.say(ctx, t, msg.ChannelID, "User not found.")
	}
	if err != nil {
		return err
	}
	if user.Bot {
		return b.say(ctx, t, msg.ChannelID, "Can't open a thread with a bot.")
	}

	staff := b.staff(ctx, msg)
	created, err := b.Threads.CreateNewThreadForUser(ctx, *user, services.CreateOptions{
		Quiet:              true,
		IgnoreRequirements: true,
		Source:             "command",
	})
	if errors.Is(err, services.ErrThreadAlreadyOpen) {
		existing, ferr := b.Threads.FindOpenThreadByUserID(ctx, user.ID)
		if ferr != nil {
			return ferr
		}
		if existing != nil {
			return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("There is already an open thread with this user: <#%s>", existing.Channel()))
		}
	}
	if err != nil {
		return err
	}
	if created == nil {
		return b.say(ctx, t, msg.ChannelID, "Thread creation was cancelled.")
	}
	if _, err := b.Threads.PostSystemMessage(ctx, created, "Thread was opened by "+staff.User.Username); err != nil {
		log.Warn().Err(err).Str("thread_id", created.ID).Msg("opened-by note failed")
	}
	return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Thread opened: <#%s>", created.Channel()))
}

// targetUser picks the user a command applies to: an explicit id or mention
// in args[0], otherwise the thread's user. consumed reports whether args[0]
// was used.
func (b *Bot) targetUser(ctx context.Context, t *domain.Thread, args []string) (user *platform.User, consumed bool, err error) {
	if len(args) > 0 {
		if id := mentionID(args[0]); isSnowflake(id) {
			u, err := b.Client.User(ctx, id)
			if errors.Is(err, platform.ErrNotFound) {
				return &platform.User{ID: id}, true, nil
			}
			return u, true, err
		}
	}
	if t == nil {
		return nil, false, nil
	}
	return &platform.User{ID: t.UserID, Username: t.UserName}, false, nil
}

func (b *Bot) cmdBlock(ctx context.Context, t *domain.Thread, msg *platform.Message, args []string) error {
	user, consumed, err := b.targetUser(ctx, t, args)
	if err != nil {
		return err
	}
	if user == nil {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Usage: `%sblock <user id> [duration]`", b.Cfg.Prefix))
	}
	if consumed {
		args = args[1:]
	}
	var d time.Duration
	if len(args) > 0 {
		if d, err = ParseDelay(args[0]); err != nil {
			return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Unknown argument `%s`: %v", args[0], err))
		}
	}
	prev, err := b.Blocks.Get(ctx, user.ID)
	if err != nil {
		return err
	}
	if _, err := b.Blocks.Block(ctx, *user, msg.Author.ID, d); err != nil {
		return err
	}
	log.Info().Str("user_id", user.ID).Str("blocked_by", msg.Author.ID).Dur("duration", d).Msg("user blocked")

	note := fmt.Sprintf("Blocked <@%s> (%s) from modmail indefinitely.", user.ID, user.ID)
	if d > 0 {
		note = fmt.Sprintf("Blocked <@%s> (%s) from modmail for %s.", user.ID, user.ID, b.humanDelay(d))
	}
	if prev != nil {
		note += " " + replacedBlock(prev, b.now())
	}
	return b.say(ctx, t, msg.ChannelID, note)
}

// replacedBlock describes a block that a new one overrides.
func replacedBlock(prev *domain.BlockedUser, now time.Time) string {
	if prev.ExpiresAt == nil {
		return "This replaces an indefinite block."
	}
	return fmt.Sprintf("This replaces a block that would have ended %s.", humanize.RelTime(*prev.ExpiresAt, now, "ago", "from now"))
}

func (b *Bot) cmdUnblock(ctx context.Context, t *domain.Thread, msg *platform.Message, args []string) error {
	user, _, err := b.targetUser(ctx, t, args)
	if err != nil {
		return err
	}
	if user == nil {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Usage: `%sunblock <user id>`", b.Cfg.Prefix))
	}
	ok, err := b.Blocks.Unblock(ctx, user.ID)
	if err != nil {
		return err
	}
	if !ok {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("<@%s> is not blocked.", user.ID))
	}
	return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Unblocked <@%s> (%s) from modmail.", user.ID, user.ID))
}

func (b *Bot) cmdLogs(ctx context.Context, t *domain.Thread, msg *platform.Message, args []string) error {
	user, consumed, err := b.targetUser(ctx, t, args)
	if err != nil {
		return err
	}
	if user == nil {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Usage: `%slogs <user id> [page]`", b.Cfg.Prefix))
	}
	if consumed {
		args = args[1:]
	}
	page := pageArg(args)

	items, total, err := b.Threads.ListPreviousThreads(ctx, user.ID, page, logsPageSize)
	if err != nil {
		return err
	}
	if total == 0 {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("<@%s> has no previous threads.", user.ID))
	}
	pages := int((total + logsPageSize - 1) / logsPageSize)
	if len(items) == 0 {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Page %d is empty; there are %d pages.", page, pages))
	}

	lines := make([]string, 0, len(items)+1)
	lines = append(lines, fmt.Sprintf("**Threads with <@%s>** (page %d/%d, %d total)", user.ID, page, pages, total))
	for i := range items {
		th := &items[i]
		line := fmt.Sprintf("`[%s]` #%d", th.CreatedAt.UTC().Format("2006-01-02 15:04"), th.ThreadNumber)
		switch {
		case th.IsClosed():
			line += " <" + b.Threads.LogURL(th) + ">"
		case th.IsSuspended():
			line += " (suspended) <#" + th.Channel() + ">"
		default:
			line += " (open) <#" + th.Channel() + ">"
		}
		lines = append(lines, line)
	}
	for _, chunk := range services.ChunkMessage(strings.Join(lines, "\n"), b.Cfg.Threads.MessageLimit) {
		if err := b.say(ctx, t, msg.ChannelID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) staffChangeError(ctx context.Context, t *domain.Thread, channelID string, err error) error {
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		return b.say(ctx, t, channelID, "Unknown reply number.")
	case errors.Is(err, services.ErrNotAuthor):
		return b.say(ctx, t, channelID, "You can only change your own replies.")
	case errors.Is(err, services.ErrTooLong):
		return b.say(ctx, t, channelID, "The edited reply is too long.")
	case errors.Is(err, services.ErrEmptyReply):
		return b.say(ctx, t, channelID, "Nothing to send.")
	}
	return err
}

func (b *Bot) cmdEdit(ctx context.Context, t *domain.Thread, msg *platform.Message, rest string) error {
	if t == nil {
		return nil
	}
	num, text := splitCommand(rest)
	n, err := strconv.Atoi(num)
	if err != nil || text == "" {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Usage: `%sedit <number> <text>`", b.Cfg.Prefix))
	}
	err = b.Threads.EditStaffReply(ctx, t, b.staff(ctx, msg), n, text)
	return b.staffChangeError(ctx, t, msg.ChannelID, err)
}

func (b *Bot) cmdDelete(ctx context.Context, t *domain.Thread, msg *platform.Message, args []string) error {
	if t == nil {
		return nil
	}
	if len(args) == 0 {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Usage: `%sdelete <number>`", b.Cfg.Prefix))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Usage: `%sdelete <number>`", b.Cfg.Prefix))
	}
	err = b.Threads.DeleteStaffReply(ctx, t, b.staff(ctx, msg), n)
	return b.staffChangeError(ctx, t, msg.ChannelID, err)
}

// cmdSnippet handles "snippet add|del|list|<name>".
func (b *Bot) cmdSnippet(ctx context.Context, t *domain.Thread, msg *platform.Message, rest string) error {
	sub, rest := splitCommand(rest)
	switch sub {
	case "", "list":
		list, err := b.Snippets.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return b.say(ctx, t, msg.ChannelID, "No snippets yet.")
		}
		names := make([]string, 0, len(list))
		for _, sn := range list {
			names = append(names, "`"+sn.Trigger+"`")
		}
		return b.say(ctx, t, msg.ChannelID, "Available snippets: "+strings.Join(names, ", "))

	case "add":
		trigger, body := splitCommand(rest)
		_, err := b.Snippets.Add(ctx, trigger, body, msg.Author.ID)
		switch {
		case errors.Is(err, services.ErrSnippetExists):
			return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Snippet `%s` already exists.", trigger))
		case errors.Is(err, services.ErrInvalidTrigger), errors.Is(err, services.ErrEmptyReply):
			return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Usage: `%ssnippet add <name> <text>`", b.Cfg.Prefix))
		case err != nil:
			return err
		}
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Snippet `%s` created.", trigger))

	case "del", "delete", "rm":
		trigger, _ := splitCommand(rest)
		err := b.Snippets.Delete(ctx, trigger)
		if errors.Is(err, services.ErrSnippetNotFound) {
			return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Snippet `%s` doesn't exist.", trigger))
		}
		if err != nil {
			return err
		}
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Snippet `%s` deleted.", trigger))

	default:
		sn, err := b.Snippets.Get(ctx, sub)
		if errors.Is(err, services.ErrSnippetNotFound) {
			return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("Snippet `%s` doesn't exist.", sub))
		}
		if err != nil {
			return err
		}
		return b.say(ctx, t, msg.ChannelID, fmt.Sprintf("`%s%s` replies with:\n```\n%s\n```", b.Cfg.SnippetPrefix, sn.Trigger, sn.Body))
	}
}
