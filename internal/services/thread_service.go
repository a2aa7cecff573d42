// Package services – ThreadService
//
// ThreadService owns the thread lifecycle: lookups, creation (admission
// gates, hooks, channel creation, the thread row, then best-effort
// decorations), close, suspend, scheduling and alerts. The message relay
// lives on the same type in relay.go.
//
// Lookups return (nil, nil) for absence. Status changes are single guarded
// UPDATEs, so racing closes (a command and a channel-deleted event) apply
// exactly once.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-modmail/internal/attachments"
	"github.com/tbourn/go-modmail/internal/config"
	"github.com/tbourn/go-modmail/internal/domain"
	"github.com/tbourn/go-modmail/internal/hooks"
	"github.com/tbourn/go-modmail/internal/observability"
	"github.com/tbourn/go-modmail/internal/platform"
	"github.com/tbourn/go-modmail/internal/repo"
	"github.com/tbourn/go-modmail/internal/sysutil"
)

const tracerThreads = "services/ThreadService"

// Close reasons, used as the ThreadsClosed metric label.
const (
	CloseReasonCommand        = "command"
	CloseReasonScheduled      = "scheduled"
	CloseReasonOrphaned       = "orphaned"
	CloseReasonChannelDeleted = "channel_deleted"
)

// ThreadService coordinates the store, the chat platform and the
// attachment store for one inbox.
type ThreadService struct {
	DB          *gorm.DB
	Client      platform.Client
	DMs         *platform.DMCache
	Attachments *attachments.Store
	Hooks       *hooks.Registry
	Cfg         config.Config

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewThreadService wires a ThreadService. hooks may be nil.
func NewThreadService(db *gorm.DB, client platform.Client, store *attachments.Store, h *hooks.Registry, cfg config.Config) *ThreadService {
	return &ThreadService{
		DB:          db,
		Client:      client,
		DMs:         platform.NewDMCache(client),
		Attachments: store,
		Hooks:       h,
		Cfg:         cfg,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateOptions tunes CreateNewThreadForUser.
type CreateOptions struct {
	// Quiet skips the staff ping and the auto-response.
	Quiet bool
	// IgnoreRequirements skips the account-age and server-tenure gates.
	IgnoreRequirements bool
	// IgnoreHooks skips the before-new-thread hooks.
	IgnoreHooks bool
	// Source is "dm" or "command"; passed to hooks.
	Source string
	// Message is the inbound DM that triggered creation, if any.
	Message *platform.Message
	// CategoryID overrides the configured category.
	CategoryID string
}

// CloseOptions tunes Close.
type CloseOptions struct {
	// Closer is the staff member closing the thread; nil for automatic closes.
	Closer *platform.User
	// SuppressSystemMessage skips the closing note in the thread.
	SuppressSystemMessage bool
	// Silent also skips the close message DM to the user.
	Silent bool
	// Reason labels the close in metrics and logs.
	Reason string
}

func (s *ThreadService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func threadAttrs(t *domain.Thread) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("thread.id", t.ID),
		attribute.String("user.id", t.UserID),
	}
}

// one maps repo.ErrNotFound to (nil, nil).
func one(t *domain.Thread, err error) (*domain.Thread, error) {
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindByID returns the thread with the given id.
func (s *ThreadService) FindByID(ctx context.Context, id string) (*domain.Thread, error) {
	return one(repo.GetThread(ctx, s.DB, id))
}

// FindByChannelID returns the thread bound to channelID, in any status.
func (s *ThreadService) FindByChannelID(ctx context.Context, channelID string) (*domain.Thread, error) {
	return one(repo.GetThreadByChannel(ctx, s.DB, channelID))
}

// FindOpenThreadByUserID returns the user's OPEN thread.
func (s *ThreadService) FindOpenThreadByUserID(ctx context.Context, userID string) (*domain.Thread, error) {
	return one(repo.GetOpenThreadByUser(ctx, s.DB, userID))
}

// FindOpenThreadByChannelID returns the thread bound to channelID if it is OPEN.
func (s *ThreadService) FindOpenThreadByChannelID(ctx context.Context, channelID string) (*domain.Thread, error) {
	return one(repo.GetThreadByChannelAndStatus(ctx, s.DB, channelID, domain.ThreadStatusOpen))
}

// FindSuspendedThreadByChannelID returns the thread bound to channelID if it
// is SUSPENDED.
func (s *ThreadService) FindSuspendedThreadByChannelID(ctx context.Context, channelID string) (*domain.Thread, error) {
	return one(repo.GetThreadByChannelAndStatus(ctx, s.DB, channelID, domain.ThreadStatusSuspended))
}

// FindOrCreateThreadForUser returns the user's open thread, creating one if
// there is none. Inbound-DM callers must run it on the dispatch queue; the
// queue is what keeps the check and the create from interleaving.
// A nil thread with a nil error means creation was declined.
func (s *ThreadService) FindOrCreateThreadForUser(ctx context.Context, user platform.User, opts CreateOptions) (*domain.Thread, error) {
	t, err := s.FindOpenThreadByUserID(ctx, user.ID)
	if err != nil || t != nil {
		return t, err
	}
	return s.CreateNewThreadForUser(ctx, user, opts)
}

// CreateNewThreadForUser opens a new thread and its staff channel.
//
// It returns ErrThreadAlreadyOpen if the user has an open thread, and
// (nil, nil) when an admission gate or a hook declines. A channel creation
// failure is returned and no row is written. Once the row exists, the ping,
// header, update notice, auto-response and after-hooks are best-effort: their
// failures are logged or reported inside the thread.
func (s *ThreadService) CreateNewThreadForUser(ctx context.Context, user platform.User, opts CreateOptions) (_ *domain.Thread, err error) {
	ctx, span := observability.StartSpan(ctx, tracerThreads, "CreateNewThreadForUser",
		attribute.String("user.id", user.ID),
		attribute.String("source", opts.Source),
	)
	defer func() { observability.EndSpan(span, err) }()

	existing, err := s.FindOpenThreadByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrThreadAlreadyOpen
	}

	if !opts.IgnoreRequirements {
		ok, err := s.admit(ctx, user)
		if err != nil || !ok {
			return nil, err
		}
	}

	category := sysutil.FirstNonEmpty(opts.CategoryID, s.Cfg.CategoryID)
	if !opts.IgnoreHooks {
		res, err := s.Hooks.BeforeNewThread(ctx, hooks.NewThreadInput{
			User:       user,
			Source:     opts.Source,
			Message:    opts.Message,
			CategoryID: category,
		})
		if err != nil {
			return nil, err
		}
		if res.Cancel {
			log.Info().Str("user_id", user.ID).Msg("thread creation cancelled by hook")
			return nil, nil
		}
		category = res.CategoryID
	}

	channelID, err := s.Client.CreateChannel(ctx, s.Cfg.InboxGuildID, platform.ChannelOptions{
		Name:       ChannelName(user.Username, s.Cfg.Threads.ChannelNameMaxLen),
		CategoryID: category,
		Topic:      fmt.Sprintf("Mod-mail thread with %s (%s)", user.DisplayName(), user.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("create thread channel: %w", err)
	}

	t := &domain.Thread{
		Status:    domain.ThreadStatusOpen,
		UserID:    user.ID,
		UserName:  user.Username,
		ChannelID: &channelID,
		CreatedAt: s.now(),
	}
	if err := repo.CreateThread(ctx, s.DB, t); err != nil {
		if derr := s.Client.DeleteChannel(ctx, channelID); derr != nil {
			log.Warn().Err(derr).Str("channel_id", channelID).Msg("could not remove channel of unsaved thread")
		}
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	observability.ThreadsOpened.Inc()
	log.Info().
		Str("thread_id", t.ID).
		Int("thread_number", t.ThreadNumber).
		Str("user_id", user.ID).
		Str("channel_id", channelID).
		Msg("thread opened")

	s.decorateNewThread(ctx, t, user, opts)
	return t, nil
}

// admit evaluates the admission gates. A denial optionally DMs the user
// and reports false without an error.
func (s *ThreadService) admit(ctx context.Context, user platform.User) (bool, error) {
	cfg := s.Cfg.Threads
	now := s.now()

	if cfg.RequiredAccountAge > 0 && !user.CreatedAt.IsZero() && now.Sub(user.CreatedAt) < cfg.RequiredAccountAge {
		s.deny(ctx, user.ID, cfg.AccountAgeDeniedMessage, "account_age")
		return false, nil
	}

	if cfg.RequiredTimeOnServer > 0 && len(s.Cfg.MainGuildIDs) > 0 {
		for _, guildID := range s.Cfg.MainGuildIDs {
			m, err := s.Client.Member(ctx, guildID, user.ID)
			if errors.Is(err, platform.ErrNotFound) {
				continue
			}
			if err != nil {
				return false, fmt.Errorf("member lookup: %w", err)
			}
			if now.Sub(m.JoinedAt) >= cfg.RequiredTimeOnServer {
				return true, nil
			}
		}
		s.deny(ctx, user.ID, cfg.TimeOnServerDeniedMessage, "time_on_server")
		return false, nil
	}
	return true, nil
}

func (s *ThreadService) deny(ctx context.Context, userID, message, gate string) {
	log.Info().Str("user_id", userID).Str("gate", gate).Msg("thread creation denied")
	if message == "" {
		return
	}
	if _, err := s.DMs.Send(ctx, userID, platform.OutgoingMessage{Content: message}); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("could not send denial message")
	}
}

func (s *ThreadService) decorateNewThread(ctx context.Context, t *domain.Thread, user platform.User, opts CreateOptions) {
	lg := log.With().Str("thread_id", t.ID).Logger()

	if !opts.Quiet {
		if ping, ok := s.mentionPing(user); ok {
			if _, err := s.Client.SendMessage(ctx, t.Channel(), ping); err != nil {
				lg.Warn().Err(err).Msg("staff ping failed")
			}
		}
	}

	if _, err := s.PostSystemMessage(ctx, t, s.threadHeader(ctx, t, user)); err != nil {
		lg.Warn().Err(err).Msg("thread header failed")
	}

	if notice := s.Cfg.Threads.UpdateNotice; notice != "" {
		if _, err := s.PostSystemMessage(ctx, t, notice); err != nil {
			lg.Warn().Err(err).Msg("update notice failed")
		}
	}

	if resp := s.Cfg.Threads.ResponseMessage; !opts.Quiet && resp != "" {
		if err := s.SendSystemMessageToUser(ctx, t, resp); err != nil {
			lg.Info().Err(err).Msg("auto-response not delivered")
			note := fmt.Sprintf("**NOTE:** Could not send auto-response to the user. The error given was: `%v`", err)
			if _, perr := s.PostSystemMessage(ctx, t, note); perr != nil {
				lg.Warn().Err(perr).Msg("could not report auto-response failure")
			}
		}
	}

	if err := s.Hooks.AfterNewThread(ctx, t); err != nil {
		lg.Error().Err(err).Msg("after-new-thread hook failed")
	}
}

// mentionPing builds the staff ping for a new thread from MentionRole.
func (s *ThreadService) mentionPing(user platform.User) (platform.OutgoingMessage, bool) {
	var out platform.OutgoingMessage
	var parts []string
	for _, r := range s.Cfg.Threads.MentionRole {
		switch r = strings.TrimSpace(r); strings.ToLower(r) {
		case "":
		case "here", "everyone":
			parts = append(parts, "@"+strings.ToLower(r))
			out.MentionEveryone = true
		default:
			parts = append(parts, "<@&"+r+">")
			out.MentionRoles = append(out.MentionRoles, r)
		}
	}
	if len(parts) == 0 {
		return out, false
	}
	out.Content = fmt.Sprintf("%s New modmail thread (%s)", strings.Join(parts, " "), user.DisplayName())
	return out, true
}

func (s *ThreadService) threadHeader(ctx context.Context, t *domain.Thread, user platform.User) string {
	now := s.now()
	var b strings.Builder
	fmt.Fprintf(&b, "**[%s]** (<@%s>) ID **%s**", user.Username, user.ID, user.ID)
	if !user.CreatedAt.IsZero() {
		fmt.Fprintf(&b, ", ACCOUNT AGE **%s**", humanAge(user.CreatedAt, now))
	}

	for _, guildID := range s.Cfg.MainGuildIDs {
		m, err := s.Client.Member(ctx, guildID, user.ID)
		if err != nil {
			if !errors.Is(err, platform.ErrNotFound) {
				log.Debug().Err(err).Str("guild_id", guildID).Msg("member lookup for header failed")
			}
			continue
		}
		fmt.Fprintf(&b, "\n**[%s]**", guildID)
		if m.Nick != "" {
			fmt.Fprintf(&b, " NICKNAME **%s**,", m.Nick)
		}
		if !m.JoinedAt.IsZero() {
			fmt.Fprintf(&b, " JOINED **%s** ago", humanAge(m.JoinedAt, now))
		}
		if m.RoleName != "" {
			fmt.Fprintf(&b, ", ROLE **%s**", m.RoleName)
		}
	}

	n, err := repo.CountClosedThreadsByUser(ctx, s.DB, t.UserID)
	if err == nil && n > 0 {
		plural := "s"
		if n == 1 {
			plural = ""
		}
		fmt.Fprintf(&b, "\n\nThis user has **%d** previous modmail thread%s. Use `%slogs` to see them.", n, plural, s.Cfg.Prefix)
	}
	return b.String()
}

// LogURL is where the transcript of t is served.
func (s *ThreadService) LogURL(t *domain.Thread) string {
	return s.Cfg.HTTP.URL + "/logs/" + t.ID
}

// Close moves t from OPEN or SUSPENDED to CLOSED and returns the log URL.
// Closing a thread that is already CLOSED is a no-op returning "": no
// message is posted and the channel is not deleted again.
func (s *ThreadService) Close(ctx context.Context, t *domain.Thread, opts CloseOptions) (_ string, err error) {
	ctx, span := observability.StartSpan(ctx, tracerThreads, "Close", threadAttrs(t)...)
	defer func() { observability.EndSpan(span, err) }()

	if opts.Reason == "" {
		opts.Reason = CloseReasonCommand
	}
	logURL := s.LogURL(t)
	storage := "local"

	changed, err := repo.TransitionThread(ctx, s.DB, t.ID, domain.ThreadStatusClosed,
		[]domain.ThreadStatus{domain.ThreadStatusOpen, domain.ThreadStatusSuspended},
		map[string]any{
			"scheduled_close_at":     nil,
			"scheduled_close_id":     nil,
			"scheduled_close_name":   nil,
			"scheduled_close_silent": false,
			"scheduled_suspend_at":   nil,
			"scheduled_suspend_id":   nil,
			"scheduled_suspend_name": nil,
			"log_storage_type":       storage,
			"log_storage_data":       datatypes.JSONMap{"url": logURL},
		})
	if err != nil {
		return "", err
	}
	if !changed {
		t.Status = domain.ThreadStatusClosed
		log.Debug().Str("thread_id", t.ID).Msg("close skipped: thread not open")
		return "", nil
	}

	t.Status = domain.ThreadStatusClosed
	t.ScheduledCloseAt, t.ScheduledCloseID, t.ScheduledCloseName, t.ScheduledCloseSilent = nil, nil, nil, false
	t.ScheduledSuspendAt, t.ScheduledSuspendID, t.ScheduledSuspendName = nil, nil, nil
	t.LogStorageType = &storage
	t.LogStorageData = datatypes.JSONMap{"url": logURL}

	lg := log.With().Str("thread_id", t.ID).Str("reason", opts.Reason).Logger()
	closedBy := "automatically"
	if opts.Closer != nil {
		closedBy = "by " + opts.Closer.Username
	}

	if !opts.SuppressSystemMessage && !opts.Silent {
		if _, err := s.PostSystemMessage(ctx, t, "Thread closed "+closedBy+"."); err != nil {
			lg.Warn().Err(err).Msg("closing note failed")
		}
	}
	if msg := s.Cfg.Threads.CloseMessage; msg != "" && !opts.Silent {
		if err := s.SendSystemMessageToUser(ctx, t, msg); err != nil {
			lg.Info().Err(err).Msg("close message not delivered")
		}
	}

	if ch := t.Channel(); ch != "" {
		if err := s.Client.DeleteChannel(ctx, ch); err != nil && !errors.Is(err, platform.ErrUnknownChannel) {
			lg.Warn().Err(err).Str("channel_id", ch).Msg("could not delete thread channel")
		}
	}

	observability.ThreadsClosed.WithLabelValues(opts.Reason).Inc()
	lg.Info().Msg("thread closed")

	if s.Cfg.LogChannelID != "" {
		note := fmt.Sprintf("Modmail thread #%d with %s (%s) was closed %s\nLogs: <%s>",
			t.ThreadNumber, t.UserName, t.UserID, closedBy, logURL)
		if _, err := s.Client.SendMessage(ctx, s.Cfg.LogChannelID, platform.OutgoingMessage{Content: note}); err != nil {
			lg.Warn().Err(err).Msg("could not post to log channel")
		}
	}

	if err := s.Hooks.AfterThreadClose(ctx, t); err != nil {
		lg.Error().Err(err).Msg("after-thread-close hook failed")
	}
	return logURL, nil
}

// ScheduleClose arranges for the sweeper to close t at `at`.
func (s *ThreadService) ScheduleClose(ctx context.Context, t *domain.Thread, at time.Time, by platform.User, silent bool) error {
	if !t.IsOpen() {
		return ErrInvalidTransition
	}
	at = at.UTC()
	err := s.update(ctx, t, map[string]any{
		"scheduled_close_at":     at,
		"scheduled_close_id":     by.ID,
		"scheduled_close_name":   by.Username,
		"scheduled_close_silent": silent,
	})
	if err != nil {
		return err
	}
	t.ScheduledCloseAt, t.ScheduledCloseID, t.ScheduledCloseName = &at, &by.ID, &by.Username
	t.ScheduledCloseSilent = silent
	return nil
}

// CancelScheduledClose clears a pending close.
func (s *ThreadService) CancelScheduledClose(ctx context.Context, t *domain.Thread) error {
	err := s.update(ctx, t, map[string]any{
		"scheduled_close_at":     nil,
		"scheduled_close_id":     nil,
		"scheduled_close_name":   nil,
		"scheduled_close_silent": false,
	})
	if err != nil {
		return err
	}
	t.ScheduledCloseAt, t.ScheduledCloseID, t.ScheduledCloseName, t.ScheduledCloseSilent = nil, nil, nil, false
	return nil
}

// Suspend parks an OPEN thread and clears any pending scheduled suspend.
func (s *ThreadService) Suspend(ctx context.Context, t *domain.Thread) error {
	changed, err := repo.TransitionThread(ctx, s.DB, t.ID, domain.ThreadStatusSuspended,
		[]domain.ThreadStatus{domain.ThreadStatusOpen},
		map[string]any{
			"scheduled_suspend_at":   nil,
			"scheduled_suspend_id":   nil,
			"scheduled_suspend_name": nil,
		})
	if err != nil {
		return err
	}
	if !changed {
		return ErrInvalidTransition
	}
	t.Status = domain.ThreadStatusSuspended
	t.ScheduledSuspendAt, t.ScheduledSuspendID, t.ScheduledSuspendName = nil, nil, nil
	return nil
}

// Unsuspend reopens a SUSPENDED thread. It fails with ErrThreadAlreadyOpen
// if the user has opened another thread in the meantime.
func (s *ThreadService) Unsuspend(ctx context.Context, t *domain.Thread) error {
	other, err := s.FindOpenThreadByUserID(ctx, t.UserID)
	if err != nil {
		return err
	}
	if other != nil && other.ID != t.ID {
		return ErrThreadAlreadyOpen
	}
	changed, err := repo.TransitionThread(ctx, s.DB, t.ID, domain.ThreadStatusOpen,
		[]domain.ThreadStatus{domain.ThreadStatusSuspended}, nil)
	if err != nil {
		return err
	}
	if !changed {
		return ErrInvalidTransition
	}
	t.Status = domain.ThreadStatusOpen
	return nil
}

// ScheduleSuspend arranges for the sweeper to suspend t at `at`.
func (s *ThreadService) ScheduleSuspend(ctx context.Context, t *domain.Thread, at time.Time, by platform.User) error {
	if !t.IsOpen() {
		return ErrInvalidTransition
	}
	at = at.UTC()
	err := s.update(ctx, t, map[string]any{
		"scheduled_suspend_at":   at,
		"scheduled_suspend_id":   by.ID,
		"scheduled_suspend_name": by.Username,
	})
	if err != nil {
		return err
	}
	t.ScheduledSuspendAt, t.ScheduledSuspendID, t.ScheduledSuspendName = &at, &by.ID, &by.Username
	return nil
}

// CancelScheduledSuspend clears a pending suspend.
func (s *ThreadService) CancelScheduledSuspend(ctx context.Context, t *domain.Thread) error {
	err := s.update(ctx, t, map[string]any{
		"scheduled_suspend_at":   nil,
		"scheduled_suspend_id":   nil,
		"scheduled_suspend_name": nil,
	})
	if err != nil {
		return err
	}
	t.ScheduledSuspendAt, t.ScheduledSuspendID, t.ScheduledSuspendName = nil, nil, nil
	return nil
}

// DueCloses returns the open threads whose scheduled close has passed,
// earliest first.
func (s *ThreadService) DueCloses(ctx context.Context) ([]domain.Thread, error) {
	return repo.ListDueCloses(ctx, s.DB, s.now())
}

// DueSuspends returns the open threads whose scheduled suspend has passed,
// earliest first.
func (s *ThreadService) DueSuspends(ctx context.Context) ([]domain.Thread, error) {
	return repo.ListDueSuspends(ctx, s.DB, s.now())
}

// SetAlert replaces the set of staff pinged on the next user reply. An
// empty ids clears it.
func (s *ThreadService) SetAlert(ctx context.Context, t *domain.Thread, ids []string) error {
	set := datatypes.JSONSlice[string]{}
	for _, id := range ids {
		if id != "" && !contains(set, id) {
			set = append(set, id)
		}
	}
	if err := s.update(ctx, t, map[string]any{"alert_ids": set}); err != nil {
		return err
	}
	t.AlertIDs = set
	return nil
}

// AddAlert adds userID to the alert set.
func (s *ThreadService) AddAlert(ctx context.Context, t *domain.Thread, userID string) error {
	cur, err := s.reload(ctx, t)
	if err != nil {
		return err
	}
	if cur.HasAlert(userID) {
		t.AlertIDs = cur.AlertIDs
		return nil
	}
	return s.SetAlert(ctx, t, append(append([]string(nil), cur.AlertIDs...), userID))
}

// RemoveAlert removes userID from the alert set.
func (s *ThreadService) RemoveAlert(ctx context.Context, t *domain.Thread, userID string) error {
	cur, err := s.reload(ctx, t)
	if err != nil {
		return err
	}
	var keep []string
	for _, id := range cur.AlertIDs {
		if id != userID {
			keep = append(keep, id)
		}
	}
	return s.SetAlert(ctx, t, keep)
}

// ListPreviousThreads returns a page of the user's threads, newest first,
// and the total count. Invalid page values fall back to page 1 of 10.
func (s *ThreadService) ListPreviousThreads(ctx context.Context, userID string, page, pageSize int) ([]domain.Thread, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	total, err := repo.CountThreadsByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Thread{}, 0, nil
	}
	items, err := repo.ListThreadsByUserPage(ctx, s.DB, userID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Messages returns the thread's log in display order.
func (s *ThreadService) Messages(ctx context.Context, t *domain.Thread) ([]domain.ThreadMessage, error) {
	return repo.ListMessages(ctx, s.DB, t.ID)
}

func (s *ThreadService) update(ctx context.Context, t *domain.Thread, fields map[string]any) error {
	err := repo.UpdateThread(ctx, s.DB, t.ID, fields)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrThreadNotFound
	}
	return err
}

func (s *ThreadService) reload(ctx context.Context, t *domain.Thread) (*domain.Thread, error) {
	cur, err := s.FindByID(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrThreadNotFound
	}
	return cur, nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
