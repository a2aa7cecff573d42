package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/tbourn/go-modmail/internal/attachments"
	"github.com/tbourn/go-modmail/internal/domain"
	"github.com/tbourn/go-modmail/internal/hooks"
	"github.com/tbourn/go-modmail/internal/observability"
	"github.com/tbourn/go-modmail/internal/platform"
	"github.com/tbourn/go-modmail/internal/repo"
	"github.com/tbourn/go-modmail/internal/sysutil"
)

const tracerRelay = "services/Relay"

// errOrphaned marks a post to a thread channel that no longer exists. The
// thread has been closed silently by the time it is returned.
var errOrphaned = errors.New("thread channel no longer exists")

// maxAttachmentWorkers bounds concurrent attachment saves per message.
const maxAttachmentWorkers = 4

type preparedAttachment struct {
	att  platform.Attachment
	res  attachments.Result
	file *platform.File
}

// prepareAttachments saves every attachment and, where forward says so,
// fetches it as a file payload. Both run concurrently per attachment.
func (s *ThreadService) prepareAttachments(ctx context.Context, atts []platform.Attachment, forward func(platform.Attachment) bool) []preparedAttachment {
	out := make([]preparedAttachment, len(atts))
	var g errgroup.Group
	g.SetLimit(maxAttachmentWorkers)
	for i, att := range atts {
		out[i].att = att
		g.Go(func() error {
			out[i].res = s.Attachments.Save(ctx, att)
			return nil
		})
		if forward(att) {
			g.Go(func() error {
				f, err := s.Attachments.File(ctx, att)
				if err != nil {
					log.Warn().Err(err).Str("attachment_id", att.ID).Msg("attachment not forwarded as file")
					return nil
				}
				out[i].file = &f
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}

// savedURLs returns the URLs of successfully saved attachments.
func savedURLs(ps []preparedAttachment) datatypes.JSONSlice[string] {
	var urls datatypes.JSONSlice[string]
	for _, p := range ps {
		if !p.res.Failed {
			urls = append(urls, p.res.URL)
		}
	}
	return urls
}

// attachmentLines returns the log line (URL or failure marker) of each
// attachment.
func attachmentLines(ps []preparedAttachment) []string {
	lines := make([]string, 0, len(ps))
	for _, p := range ps {
		lines = append(lines, p.res.Text(p.att))
	}
	return lines
}

// sendChunks sends text in chunks through send. Files travel with the
// last chunk only.
func (s *ThreadService) sendChunks(ctx context.Context, send func(context.Context, platform.OutgoingMessage) (*platform.Message, error), text string, files []platform.File) ([]*platform.Message, error) {
	chunks := ChunkMessage(text, s.Cfg.Threads.MessageLimit)
	sent := make([]*platform.Message, 0, len(chunks))
	for i, c := range chunks {
		msg := platform.OutgoingMessage{Content: c}
		if i == len(chunks)-1 {
			msg.Files = files
		}
		m, err := send(ctx, msg)
		if err != nil {
			return sent, err
		}
		sent = append(sent, m)
	}
	return sent, nil
}

// postToThread posts text to t's channel. A missing channel closes the
// thread silently and yields errOrphaned.
func (s *ThreadService) postToThread(ctx context.Context, t *domain.Thread, text string, files []platform.File) ([]*platform.Message, error) {
	channelID := t.Channel()
	sent, err := s.sendChunks(ctx, func(ctx context.Context, m platform.OutgoingMessage) (*platform.Message, error) {
		if channelID == "" {
			return nil, platform.ErrUnknownChannel
		}
		return s.Client.SendMessage(ctx, channelID, m)
	}, text, files)
	if err == nil {
		return sent, nil
	}
	if !errors.Is(err, platform.ErrUnknownChannel) {
		return sent, fmt.Errorf("post to thread channel: %w", err)
	}

	log.Warn().Str("thread_id", t.ID).Str("channel_id", channelID).Msg("thread channel is gone; closing thread")
	if _, cerr := s.Close(ctx, t, CloseOptions{Silent: true, SuppressSystemMessage: true, Reason: CloseReasonOrphaned}); cerr != nil {
		log.Error().Err(cerr).Str("thread_id", t.ID).Msg("could not close orphaned thread")
	}
	return sent, errOrphaned
}

func (s *ThreadService) sendToUser(ctx context.Context, t *domain.Thread, text string, files []platform.File) ([]*platform.Message, error) {
	return s.sendChunks(ctx, func(ctx context.Context, m platform.OutgoingMessage) (*platform.Message, error) {
		return s.DMs.Send(ctx, t.UserID, m)
	}, text, files)
}

// staffIdentity resolves the role and name shown on a staff reply.
func (s *ThreadService) staffIdentity(staff platform.Member) (role, name string) {
	role = sysutil.FirstNonEmpty(staff.RoleName, s.Cfg.Threads.FallbackRoleName)
	name = staff.User.Username
	if s.Cfg.Threads.UseNicknames && staff.Nick != "" {
		name = staff.Nick
	}
	return role, name
}

// formatReply is the text the user sees.
func formatReply(role, name string, anonymous bool, text string) string {
	if anonymous {
		return fmt.Sprintf("**%s:** %s", role, text)
	}
	return fmt.Sprintf("**(%s) %s:** %s", role, name, text)
}

// formatInboxReply is the staff-side mirror of a reply.
func formatInboxReply(number int, role, name string, anonymous bool, text string) string {
	prefix := ""
	if anonymous {
		prefix = "(Anonymous) "
	}
	return fmt.Sprintf("`[%d]` %s**(%s) %s:** %s", number, prefix, role, name, text)
}

// ReplyToUser relays a staff reply to the user's DMs and logs it.
//
// A failed DM is not an error: it is logged as a COMMAND row, explained
// with a system message in the thread, and reported as sent == false so
// the caller keeps the staff's command message. Store errors are returned.
// A successful reply cancels a pending scheduled close.
func (s *ThreadService) ReplyToUser(ctx context.Context, t *domain.Thread, staff platform.Member, text string, atts []platform.Attachment, anonymous bool) (sent bool, err error) {
	ctx, span := observability.StartSpan(ctx, tracerRelay, "ReplyToUser",
		append(threadAttrs(t), attribute.Bool("anonymous", anonymous), attribute.Int("attachments", len(atts)))...)
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(text) == "" && len(atts) == 0 {
		return false, ErrEmptyReply
	}
	role, name := s.staffIdentity(staff)

	prepared := s.prepareAttachments(ctx, atts, func(platform.Attachment) bool { return true })
	logBody := joinLines(text, attachmentLines(prepared))

	var files []platform.File
	var unforwarded []string
	for _, p := range prepared {
		if p.file != nil {
			files = append(files, *p.file)
		} else {
			unforwarded = append(unforwarded, p.res.Text(p.att))
		}
	}

	dmMsgs, dmErr := s.sendToUser(ctx, t, formatReply(role, name, anonymous, joinLines(text, unforwarded)), files)
	if dmErr != nil {
		observability.MessagesRelayed.WithLabelValues("to_user", "failed").Inc()
		log.Warn().Err(dmErr).Str("thread_id", t.ID).Str("user_id", t.UserID).Msg("reply not delivered")

		row := &domain.ThreadMessage{
			ThreadID:    t.ID,
			MessageType: domain.MessageTypeCommand,
			UserID:      &staff.User.ID,
			UserName:    name,
			RoleName:    &role,
			Body:        logBody,
			IsAnonymous: anonymous,
			Attachments: savedURLs(prepared),
		}
		if err := repo.CreateMessage(ctx, s.DB, row); err != nil {
			return false, err
		}
		note := fmt.Sprintf("Could not send reply to the user. The error given was: `%v`", dmErr)
		if _, err := s.PostSystemMessage(ctx, t, note); err != nil {
			return false, err
		}
		return false, nil
	}

	n, err := repo.AllocateMessageNumber(ctx, s.DB, t.ID)
	if err != nil {
		return true, err
	}
	t.NextMessageNumber = n + 1

	inboxMsgs, postErr := s.postToThread(ctx, t, formatInboxReply(n, role, name, anonymous, logBody), nil)

	first := dmMsgs[0]
	row := &domain.ThreadMessage{
		ThreadID:      t.ID,
		MessageType:   domain.MessageTypeToUser,
		MessageNumber: &n,
		UserID:        &staff.User.ID,
		UserName:      name,
		RoleName:      &role,
		Body:          logBody,
		IsAnonymous:   anonymous,
		Attachments:   savedURLs(prepared),
		DMChannelID:   &first.ChannelID,
		DMMessageID:   &first.ID,
	}
	if len(inboxMsgs) > 0 {
		row.InboxMessageID = &inboxMsgs[0].ID
	}
	if err := repo.CreateMessage(ctx, s.DB, row); err != nil {
		return true, err
	}
	observability.MessagesRelayed.WithLabelValues("to_user", "sent").Inc()

	if postErr != nil {
		if errors.Is(postErr, errOrphaned) {
			return true, nil
		}
		return true, postErr
	}

	if t.HasScheduledClose() {
		if err := s.CancelScheduledClose(ctx, t); err != nil {
			return true, err
		}
		if _, err := s.PostSystemMessage(ctx, t, "Cancelling scheduled closing of this thread due to new reply"); err != nil {
			return true, err
		}
	}
	return true, nil
}

// ReceiveUserReply relays an inbound DM into the thread channel and logs
// it as FROM_USER. Attachments up to the small-attachment limit are
// forwarded as files; the log always records the saved URL.
//
// A redelivered DM (same message id) is ignored. If the thread channel is
// gone, the thread is closed and nothing is logged; callers detect this
// with t.IsClosed() and relay the message again on a new thread.
func (s *ThreadService) ReceiveUserReply(ctx context.Context, t *domain.Thread, msg *platform.Message) (err error) {
	ctx, span := observability.StartSpan(ctx, tracerRelay, "ReceiveUserReply",
		append(threadAttrs(t), attribute.Int("attachments", len(msg.Attachments)))...)
	defer func() { observability.EndSpan(span, err) }()

	if _, err := repo.GetMessageByDMMessageID(ctx, s.DB, msg.ID); err == nil {
		log.Debug().Str("thread_id", t.ID).Str("message_id", msg.ID).Msg("duplicate DM ignored")
		return nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}

	in := hooks.MessageInput{Thread: t, Message: msg}
	cancel, err := s.Hooks.BeforeNewMessageReceived(ctx, in)
	if err != nil {
		return err
	}
	if cancel {
		return nil
	}

	content := msg.Content
	if strings.TrimSpace(content) == "" && msg.EmbedCount > 0 {
		content = EmbedPlaceholder
	}

	cfg := s.Cfg.Threads
	prepared := s.prepareAttachments(ctx, msg.Attachments, func(a platform.Attachment) bool {
		return cfg.RelaySmallAttachmentsAsAttachments && a.Size <= cfg.SmallAttachmentLimit
	})

	var files []platform.File
	var small datatypes.JSONSlice[string]
	var links []string
	for _, p := range prepared {
		if p.file != nil {
			files = append(files, *p.file)
			if !p.res.Failed {
				small = append(small, p.res.URL)
			}
			continue
		}
		links = append(links, p.res.Text(p.att))
	}

	n, err := repo.AllocateMessageNumber(ctx, s.DB, t.ID)
	if err != nil {
		return err
	}
	t.NextMessageNumber = n + 1

	inboxText := fmt.Sprintf("`[%d]` **%s:** %s", n, msg.Author.Username, joinLines(content, links))
	inboxMsgs, postErr := s.postToThread(ctx, t, inboxText, files)
	if errors.Is(postErr, errOrphaned) {
		observability.MessagesRelayed.WithLabelValues("from_user", "failed").Inc()
		return nil
	}

	row := &domain.ThreadMessage{
		ThreadID:         t.ID,
		MessageType:      domain.MessageTypeFromUser,
		MessageNumber:    &n,
		UserID:           &msg.Author.ID,
		UserName:         msg.Author.Username,
		Body:             joinLines(content, attachmentLines(prepared)),
		Attachments:      savedURLs(prepared),
		SmallAttachments: small,
		DMChannelID:      &msg.ChannelID,
		DMMessageID:      &msg.ID,
	}
	if len(inboxMsgs) > 0 {
		row.InboxMessageID = &inboxMsgs[0].ID
	}
	if err := repo.CreateMessage(ctx, s.DB, row); err != nil {
		return err
	}
	s.DMs.Remember(msg.Author.ID, msg.ChannelID)

	if postErr != nil {
		observability.MessagesRelayed.WithLabelValues("from_user", "failed").Inc()
		return postErr
	}
	observability.MessagesRelayed.WithLabelValues("from_user", "sent").Inc()

	if t.HasScheduledClose() {
		if err := s.CancelScheduledClose(ctx, t); err != nil {
			return err
		}
		if _, err := s.PostSystemMessage(ctx, t, "Cancelling scheduled closing of this thread due to new reply"); err != nil {
			return err
		}
	}

	if len(t.AlertIDs) > 0 {
		mentions := make([]string, 0, len(t.AlertIDs))
		for _, id := range t.AlertIDs {
			mentions = append(mentions, "<@"+id+">")
		}
		ping := platform.OutgoingMessage{
			Content:      fmt.Sprintf("%s New message from %s", strings.Join(mentions, " "), msg.Author.Username),
			MentionUsers: append([]string(nil), t.AlertIDs...),
		}
		if _, err := s.Client.SendMessage(ctx, t.Channel(), ping); err != nil {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("alert ping failed")
		}
		if err := s.SetAlert(ctx, t, nil); err != nil {
			return err
		}
	}

	if err := s.Hooks.AfterNewMessageReceived(ctx, in); err != nil {
		log.Error().Err(err).Str("thread_id", t.ID).Msg("after-new-message hook failed")
	}
	return nil
}

// PostSystemMessage posts text to the thread channel and logs it as
// SYSTEM. It returns (nil, nil) if the channel turned out to be gone.
func (s *ThreadService) PostSystemMessage(ctx context.Context, t *domain.Thread, text string) (*platform.Message, error) {
	if text == "" {
		return nil, nil
	}
	sent, err := s.postToThread(ctx, t, text, nil)
	if errors.Is(err, errOrphaned) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row := &domain.ThreadMessage{
		ThreadID:       t.ID,
		MessageType:    domain.MessageTypeSystem,
		Body:           text,
		InboxMessageID: &sent[0].ID,
	}
	if err := repo.CreateMessage(ctx, s.DB, row); err != nil {
		return nil, err
	}
	return sent[0], nil
}

// SendSystemMessageToUser DMs text to the user, mirrors it in the thread
// and logs it as SYSTEM_TO_USER. A delivery failure is returned and
// nothing is logged.
func (s *ThreadService) SendSystemMessageToUser(ctx context.Context, t *domain.Thread, text string) error {
	dmMsgs, err := s.sendToUser(ctx, t, text, nil)
	if err != nil {
		observability.MessagesRelayed.WithLabelValues("to_user", "failed").Inc()
		return fmt.Errorf("send to user: %w", err)
	}
	observability.MessagesRelayed.WithLabelValues("to_user", "sent").Inc()

	inboxMsgs, postErr := s.postToThread(ctx, t, "**[Bot to user]** "+text, nil)
	row := &domain.ThreadMessage{
		ThreadID:    t.ID,
		MessageType: domain.MessageTypeSystemToUser,
		Body:        text,
		DMChannelID: &dmMsgs[0].ChannelID,
		DMMessageID: &dmMsgs[0].ID,
	}
	if len(inboxMsgs) > 0 {
		row.InboxMessageID = &inboxMsgs[0].ID
	}
	if err := repo.CreateMessage(ctx, s.DB, row); err != nil {
		return err
	}
	if postErr != nil && !errors.Is(postErr, errOrphaned) {
		return postErr
	}
	return nil
}

// chatBody is msg's content followed by the URLs of its attachments.
func chatBody(msg *platform.Message) string {
	urls := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		urls = append(urls, a.URL)
	}
	return joinLines(msg.Content, urls)
}

func (s *ThreadService) saveInboxMessage(ctx context.Context, t *domain.Thread, msg *platform.Message, typ domain.MessageType) error {
	name := msg.Author.Username
	if msg.Member != nil && msg.Member.Nick != "" && s.Cfg.Threads.UseNicknames {
		name = msg.Member.Nick
	}
	// Rows keep their write time so the log stays in commit order; the
	// platform's own timestamp is kept alongside.
	row := &domain.ThreadMessage{
		ThreadID:    t.ID,
		MessageType: typ,
		UserID:      &msg.Author.ID,
		UserName:    name,
		Body:        chatBody(msg),
		DMMessageID: &msg.ID,
	}
	if !msg.Timestamp.IsZero() {
		row.Metadata = datatypes.JSONMap{"sent_at": msg.Timestamp.UTC().Format(time.RFC3339Nano)}
	}
	return repo.CreateMessage(ctx, s.DB, row)
}

// SaveChatMessage logs a staff message in the thread channel as CHAT. The
// channel message id is stored in dm_message_id for later edits.
func (s *ThreadService) SaveChatMessage(ctx context.Context, t *domain.Thread, msg *platform.Message) error {
	return s.saveInboxMessage(ctx, t, msg, domain.MessageTypeChat)
}

// SaveCommandMessage logs a command invocation in the thread as COMMAND.
func (s *ThreadService) SaveCommandMessage(ctx context.Context, t *domain.Thread, msg *platform.Message) error {
	return s.saveInboxMessage(ctx, t, msg, domain.MessageTypeCommand)
}

// UpdateChatMessage rewrites the logged body of an edited staff message.
// Unknown messages are ignored.
func (s *ThreadService) UpdateChatMessage(ctx context.Context, t *domain.Thread, msg *platform.Message) error {
	err := repo.UpdateMessageBody(ctx, s.DB, t.ID, msg.ID, chatBody(msg))
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteChatMessage removes the log row of a deleted staff message.
// Unknown messages are ignored.
func (s *ThreadService) DeleteChatMessage(ctx context.Context, t *domain.Thread, messageID string) error {
	err := repo.DeleteMessageByDMMessageID(ctx, s.DB, t.ID, messageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	return err
}

// NoteUserEdit records in the thread that the user edited a relayed DM.
func (s *ThreadService) NoteUserEdit(ctx context.Context, t *domain.Thread, msg *platform.Message) error {
	orig, err := repo.GetMessageByDMMessageID(ctx, s.DB, msg.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if orig.ThreadID != t.ID || orig.MessageType != domain.MessageTypeFromUser {
		return nil
	}
	num := "?"
	if orig.MessageNumber != nil {
		num = fmt.Sprint(*orig.MessageNumber)
	}
	note := fmt.Sprintf("**The user edited message `[%s]`:**\n**Before:** %s\n**After:** %s", num, orig.Body, msg.Content)
	_, err = s.PostSystemMessage(ctx, t, note)
	return err
}

// relayedReply loads the TO_USER row with the given number and checks that
// staff wrote it.
func (s *ThreadService) relayedReply(ctx context.Context, t *domain.Thread, staff platform.Member, number int) (*domain.ThreadMessage, error) {
	row, err := repo.GetMessageByNumber(ctx, s.DB, t.ID, number)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if row.MessageType != domain.MessageTypeToUser || row.DMMessageID == nil || row.DMChannelID == nil {
		return nil, ErrMessageNotFound
	}
	if row.UserID == nil || *row.UserID != staff.User.ID {
		return nil, ErrNotAuthor
	}
	return row, nil
}

// EditStaffReply edits relayed reply number on both sides, updates its
// logged body and appends a REPLY_EDITED row carrying the number and the
// original text in its metadata.
func (s *ThreadService) EditStaffReply(ctx context.Context, t *domain.Thread, staff platform.Member, number int, text string) (err error) {
	ctx, span := observability.StartSpan(ctx, tracerRelay, "EditStaffReply", append(threadAttrs(t), attribute.Int("message.number", number))...)
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(text) == "" {
		return ErrEmptyReply
	}
	row, err := s.relayedReply(ctx, t, staff, number)
	if err != nil {
		return err
	}
	role := ""
	if row.RoleName != nil {
		role = *row.RoleName
	}
	dmText := formatReply(role, row.UserName, row.IsAnonymous, text)
	if limit := s.Cfg.Threads.MessageLimit; limit > 0 && utf8.RuneCountInString(dmText) > limit {
		return ErrTooLong
	}

	if err := s.Client.EditMessage(ctx, *row.DMChannelID, *row.DMMessageID, dmText); err != nil {
		return fmt.Errorf("edit reply: %w", err)
	}
	if row.InboxMessageID != nil {
		mirror := formatInboxReply(number, role, row.UserName, row.IsAnonymous, text)
		if err := s.Client.EditMessage(ctx, t.Channel(), *row.InboxMessageID, mirror); err != nil {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("could not edit reply mirror")
		}
	}
	if err := repo.UpdateMessageBody(ctx, s.DB, t.ID, *row.DMMessageID, text); err != nil {
		return err
	}

	sent, postErr := s.postToThread(ctx, t, fmt.Sprintf("**Reply `[%d]` edited**\n**Before:** %s\n**After:** %s", number, row.Body, text), nil)
	rec := &domain.ThreadMessage{
		ThreadID:    t.ID,
		MessageType: domain.MessageTypeReplyEdited,
		UserID:      &staff.User.ID,
		UserName:    row.UserName,
		RoleName:    row.RoleName,
		Body:        text,
		IsAnonymous: row.IsAnonymous,
		Metadata:    datatypes.JSONMap{"message_number": number, "original": row.Body},
	}
	if len(sent) > 0 {
		rec.InboxMessageID = &sent[0].ID
	}
	if err := repo.CreateMessage(ctx, s.DB, rec); err != nil {
		return err
	}
	if postErr != nil && !errors.Is(postErr, errOrphaned) {
		return postErr
	}
	return nil
}

// DeleteStaffReply deletes relayed reply number on both sides and appends a
// REPLY_DELETED row. The original TO_USER row is kept as history.
func (s *ThreadService) DeleteStaffReply(ctx context.Context, t *domain.Thread, staff platform.Member, number int) (err error) {
	ctx, span := observability.StartSpan(ctx, tracerRelay, "DeleteStaffReply", append(threadAttrs(t), attribute.Int("message.number", number))...)
	defer func() { observability.EndSpan(span, err) }()

	row, err := s.relayedReply(ctx, t, staff, number)
	if err != nil {
		return err
	}
	if err := s.Client.DeleteMessage(ctx, *row.DMChannelID, *row.DMMessageID); err != nil && !errors.Is(err, platform.ErrNotFound) {
		return fmt.Errorf("delete reply: %w", err)
	}
	if row.InboxMessageID != nil {
		if err := s.Client.DeleteMessage(ctx, t.Channel(), *row.InboxMessageID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("could not delete reply mirror")
		}
	}

	sent, postErr := s.postToThread(ctx, t, fmt.Sprintf("**Reply `[%d]` deleted**\n%s", number, row.Body), nil)
	rec := &domain.ThreadMessage{
		ThreadID:    t.ID,
		MessageType: domain.MessageTypeReplyDeleted,
		UserID:      &staff.User.ID,
		UserName:    row.UserName,
		RoleName:    row.RoleName,
		Body:        row.Body,
		IsAnonymous: row.IsAnonymous,
		Metadata:    datatypes.JSONMap{"message_number": number},
	}
	if len(sent) > 0 {
		rec.InboxMessageID = &sent[0].ID
	}
	if err := repo.CreateMessage(ctx, s.DB, rec); err != nil {
		return err
	}
	if postErr != nil && !errors.Is(postErr, errOrphaned) {
		return postErr
	}
	return nil
}
