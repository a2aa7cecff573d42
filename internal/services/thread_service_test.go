package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-modmail/internal/attachments"
	"github.com/tbourn/go-modmail/internal/config"
	"github.com/tbourn/go-modmail/internal/domain"
	"github.com/tbourn/go-modmail/internal/hooks"
	"github.com/tbourn/go-modmail/internal/observability"
	"github.com/tbourn/go-modmail/internal/platform"
	"github.com/tbourn/go-modmail/internal/platform/platformtest"
	"github.com/tbourn/go-modmail/internal/queue"
	"github.com/tbourn/go-modmail/internal/repo"
)

// ---------- test helpers ----------

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection: SQLite serializes writers anyway, and it keeps
	// PRAGMAs applied to every statement.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// urlBackend "saves" an attachment by echoing a deterministic URL.
type urlBackend struct{}

func (urlBackend) Name() string { return "test" }
func (urlBackend) Save(_ context.Context, att platform.Attachment) (string, error) {
	return "https://files.test/" + att.ID + "/" + att.Filename, nil
}

var (
	testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice   = platform.User{ID: "100", Username: "alice", CreatedAt: testNow.Add(-400 * 24 * time.Hour)}
	staff   = platform.Member{GuildID: "inbox", User: platform.User{ID: "900", Username: "mod"}, RoleName: "Admin"}
	staff2  = platform.Member{GuildID: "inbox", User: platform.User{ID: "901", Username: "other"}, RoleName: "Admin"}
)

type harness struct {
	db   *gorm.DB
	fake *platformtest.Fake
	svc  *ThreadService
	now  time.Time
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Defaults()
	cfg.InboxGuildID = "inbox"
	cfg.CategoryID = "cat"
	cfg.HTTP.URL = "http://mail.test"
	cfg.Threads.ResponseMessage = ""
	cfg.Threads.MentionRole = nil
	for _, m := range mutate {
		m(&cfg)
	}

	h := &harness{db: newServiceDB(t), fake: platformtest.New(), now: testNow}
	fetcher := attachments.NewFetcher(http.DefaultClient, 3).WithInterval(time.Millisecond)
	store := attachments.NewStore(urlBackend{}, fetcher)
	h.svc = NewThreadService(h.db, h.fake, store, hooks.New(), cfg)
	h.svc.Now = func() time.Time { return h.now }
	h.fake.AddUser(alice)
	return h
}

func (h *harness) open(t *testing.T) *domain.Thread {
	t.Helper()
	th, err := h.svc.CreateNewThreadForUser(context.Background(), alice, CreateOptions{Quiet: true, Source: "command"})
	if err != nil || th == nil {
		t.Fatalf("CreateNewThreadForUser: %v %v", th, err)
	}
	return th
}

func (h *harness) reload(t *testing.T, id string) *domain.Thread {
	t.Helper()
	th, err := h.svc.FindByID(context.Background(), id)
	if err != nil || th == nil {
		t.Fatalf("FindByID(%s): %v %v", id, th, err)
	}
	return th
}

func (h *harness) messages(t *testing.T, th *domain.Thread) []domain.ThreadMessage {
	t.Helper()
	ms, err := h.svc.Messages(context.Background(), th)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	return ms
}

func messagesOfType(ms []domain.ThreadMessage, typ domain.MessageType) []domain.ThreadMessage {
	var out []domain.ThreadMessage
	for _, m := range ms {
		if m.MessageType == typ {
			out = append(out, m)
		}
	}
	return out
}

var inboundSeq int

func dm(user platform.User, content string) *platform.Message {
	inboundSeq++
	return &platform.Message{
		ID:        fmt.Sprintf("in%d", inboundSeq),
		ChannelID: platformtest.DMChannelID(user.ID),
		Author:    user,
		Content:   content,
		Timestamp: testNow,
	}
}

// ---------- lookups ----------

func TestLookups_AbsenceIsNilNil(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for name, fn := range map[string]func() (*domain.Thread, error){
		"id":        func() (*domain.Thread, error) { return h.svc.FindByID(ctx, "nope") },
		"channel":   func() (*domain.Thread, error) { return h.svc.FindByChannelID(ctx, "nope") },
		"user":      func() (*domain.Thread, error) { return h.svc.FindOpenThreadByUserID(ctx, "nope") },
		"open":      func() (*domain.Thread, error) { return h.svc.FindOpenThreadByChannelID(ctx, "nope") },
		"suspended": func() (*domain.Thread, error) { return h.svc.FindSuspendedThreadByChannelID(ctx, "nope") },
	} {
		th, err := fn()
		if th != nil || err != nil {
			t.Fatalf("%s: expected (nil, nil), got (%v, %v)", name, th, err)
		}
	}

	th := h.open(t)
	if got, _ := h.svc.FindOpenThreadByChannelID(ctx, th.Channel()); got == nil || got.ID != th.ID {
		t.Fatalf("FindOpenThreadByChannelID = %v", got)
	}
	if got, _ := h.svc.FindSuspendedThreadByChannelID(ctx, th.Channel()); got != nil {
		t.Fatalf("open thread found as suspended")
	}
}

// ---------- creation ----------

func TestScenarioA_FirstDMCreatesThreadAndAutoResponds(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Threads.ResponseMessage = "Thanks, we'll be with you shortly."
		c.Threads.MentionRole = []string{"here"}
	})
	ctx := context.Background()

	msg := dm(alice, "hello")
	th, err := h.svc.FindOrCreateThreadForUser(ctx, alice, CreateOptions{Source: "dm", Message: msg})
	if err != nil || th == nil {
		t.Fatalf("FindOrCreateThreadForUser: %v %v", th, err)
	}
	if err := h.svc.ReceiveUserReply(ctx, th, msg); err != nil {
		t.Fatalf("ReceiveUserReply: %v", err)
	}

	got := h.reload(t, th.ID)
	if got.Status != domain.ThreadStatusOpen || got.UserName != "alice" || got.ThreadNumber != 1 {
		t.Fatalf("unexpected thread: %+v", got)
	}
	opts, ok := h.fake.Channel(th.Channel())
	if !ok || opts.Name != "alice" || opts.CategoryID != "cat" {
		t.Fatalf("unexpected channel: %+v %v", opts, ok)
	}

	from := messagesOfType(h.messages(t, th), domain.MessageTypeFromUser)
	if len(from) != 1 || from[0].Body != "hello" || *from[0].MessageNumber != 1 {
		t.Fatalf("unexpected FROM_USER rows: %+v", from)
	}

	dms := h.fake.SentTo(platformtest.DMChannelID(alice.ID))
	if len(dms) != 1 || dms[0].Content != "Thanks, we'll be with you shortly." {
		t.Fatalf("expected auto-response, got %+v", dms)
	}

	inbox := h.fake.SentTo(th.Channel())
	if len(inbox) == 0 || !strings.HasPrefix(inbox[0].Content, "@here") || !inbox[0].MentionEveryone {
		t.Fatalf("expected staff ping first, got %+v", inbox)
	}
	if !strings.Contains(inbox[len(inbox)-1].Content, "**alice:** hello") {
		t.Fatalf("expected relayed message last, got %q", inbox[len(inbox)-1].Content)
	}

	// A second DM reuses the thread.
	again, err := h.svc.FindOrCreateThreadForUser(ctx, alice, CreateOptions{Source: "dm"})
	if err != nil || again.ID != th.ID {
		t.Fatalf("expected the same thread, got %v %v", again, err)
	}
}

func TestConcurrentDMsThroughQueueCreateOneThread(t *testing.T) {
	h := newHarness(t)
	q := queue.New(queue.Options{Timeout: 5 * time.Second})

	const k = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	for i := 0; i < k; i++ {
		msg := dm(alice, fmt.Sprintf("message %d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(func(ctx context.Context) error {
				th, err := h.svc.FindOrCreateThreadForUser(ctx, alice, CreateOptions{Source: "dm", Message: msg})
				if err == nil {
					err = h.svc.ReceiveUserReply(ctx, th, msg)
				}
				if err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return err
			})
		}()
	}
	wg.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("queue did not drain: %v", err)
	}
	if len(errs) > 0 {
		t.Fatalf("task errors: %v", errs)
	}

	var open int64
	h.db.Model(&domain.Thread{}).Where("user_id = ? AND status = ?", alice.ID, domain.ThreadStatusOpen).Count(&open)
	if open != 1 {
		t.Fatalf("expected exactly one open thread, got %d", open)
	}
	if n := len(h.fake.CreatedChannels()); n != 1 {
		t.Fatalf("expected one channel, got %d", n)
	}
	th, _ := h.svc.FindOpenThreadByUserID(context.Background(), alice.ID)
	if from := messagesOfType(h.messages(t, th), domain.MessageTypeFromUser); len(from) != k {
		t.Fatalf("expected %d FROM_USER rows, got %d", k, len(from))
	}
}

func TestCreateNewThread_ConflictWhenOpen(t *testing.T) {
	h := newHarness(t)
	h.open(t)
	_, err := h.svc.CreateNewThreadForUser(context.Background(), alice, CreateOptions{})
	if !errors.Is(err, ErrThreadAlreadyOpen) {
		t.Fatalf("expected ErrThreadAlreadyOpen, got %v", err)
	}
	if n := len(h.fake.CreatedChannels()); n != 1 {
		t.Fatalf("conflict must not create a channel, got %d", n)
	}
}

func TestCreateNewThread_AccountAgeGate(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Threads.RequiredAccountAge = 30 * 24 * time.Hour
	})
	young := platform.User{ID: "200", Username: "young", CreatedAt: testNow.Add(-time.Hour)}
	h.fake.AddUser(young)
	ctx := context.Background()

	th, err := h.svc.CreateNewThreadForUser(ctx, young, CreateOptions{})
	if th != nil || err != nil {
		t.Fatalf("expected silent denial, got %v %v", th, err)
	}
	if len(h.fake.CreatedChannels()) != 0 {
		t.Fatalf("denied user got a channel")
	}
	denials := h.fake.SentTo(platformtest.DMChannelID(young.ID))
	if len(denials) != 1 || denials[0].Content != h.svc.Cfg.Threads.AccountAgeDeniedMessage {
		t.Fatalf("expected denial DM, got %+v", denials)
	}

	th, err = h.svc.CreateNewThreadForUser(ctx, young, CreateOptions{IgnoreRequirements: true})
	if err != nil || th == nil {
		t.Fatalf("IgnoreRequirements should bypass the gate: %v %v", th, err)
	}
}

func TestCreateNewThread_TimeOnServerGate(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.MainGuildIDs = []string{"main"}
		c.Threads.RequiredTimeOnServer = 24 * time.Hour
		c.Threads.TimeOnServerDeniedMessage = ""
	})
	ctx := context.Background()

	newcomer := platform.User{ID: "300", Username: "newcomer"}
	stranger := platform.User{ID: "301", Username: "stranger"}
	veteran := platform.User{ID: "302", Username: "veteran"}
	h.fake.AddMember(platform.Member{GuildID: "main", User: newcomer, JoinedAt: testNow.Add(-time.Hour)})
	h.fake.AddUser(stranger)
	h.fake.AddMember(platform.Member{GuildID: "main", User: veteran, JoinedAt: testNow.Add(-48 * time.Hour)})

	for _, u := range []platform.User{newcomer, stranger} {
		if th, err := h.svc.CreateNewThreadForUser(ctx, u, CreateOptions{}); th != nil || err != nil {
			t.Fatalf("%s: expected denial, got %v %v", u.Username, th, err)
		}
	}
	if len(h.fake.AllSent()) != 0 {
		t.Fatalf("empty denial message must not be sent")
	}
	if th, err := h.svc.CreateNewThreadForUser(ctx, veteran, CreateOptions{}); err != nil || th == nil {
		t.Fatalf("veteran should be admitted: %v %v", th, err)
	}
}

func TestCreateNewThread_Hooks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	reg := hooks.New()
	reg.OnBeforeNewThread(func(_ context.Context, in hooks.NewThreadInput) (hooks.NewThreadResult, error) {
		if in.User.ID == "cancel-me" {
			return hooks.NewThreadResult{Cancel: true}, nil
		}
		return hooks.NewThreadResult{CategoryID: "vip"}, nil
	})
	var after []string
	reg.OnAfterNewThread(func(_ context.Context, th *domain.Thread) error {
		after = append(after, th.ID)
		return errors.New("after hooks are best-effort")
	})
	h.svc.Hooks = reg

	th, err := h.svc.CreateNewThreadForUser(ctx, platform.User{ID: "cancel-me", Username: "x"}, CreateOptions{})
	if th != nil || err != nil {
		t.Fatalf("expected cancel, got %v %v", th, err)
	}

	th, err = h.svc.CreateNewThreadForUser(ctx, alice, CreateOptions{})
	if err != nil || th == nil {
		t.Fatalf("create: %v %v", th, err)
	}
	if opts, _ := h.fake.Channel(th.Channel()); opts.CategoryID != "vip" {
		t.Fatalf("category override not applied: %+v", opts)
	}
	if len(after) != 1 || after[0] != th.ID {
		t.Fatalf("after hook not run: %v", after)
	}

	h2 := newHarness(t)
	h2.svc.Hooks = reg
	if _, err := h2.svc.CreateNewThreadForUser(ctx, alice, CreateOptions{IgnoreHooks: true}); err != nil {
		t.Fatalf("IgnoreHooks: %v", err)
	}
	if opts, _ := h2.fake.Channel(h2.fake.CreatedChannels()[0]); opts.CategoryID != "cat" {
		t.Fatalf("IgnoreHooks should keep the configured category, got %+v", opts)
	}
}

func TestCreateNewThread_ChannelFailureWritesNoRow(t *testing.T) {
	h := newHarness(t)
	h.fake.CreateChannelErr = errors.New("missing permissions")

	_, err := h.svc.CreateNewThreadForUser(context.Background(), alice, CreateOptions{})
	if err == nil {
		t.Fatalf("expected channel creation error")
	}
	var n int64
	h.db.Model(&domain.Thread{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected no thread row, got %d", n)
	}
}

func TestCreateNewThread_AutoResponseFailureIsReportedInThread(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Threads.ResponseMessage = "hi" })
	h.fake.CloseDMs(alice.ID)

	th, err := h.svc.CreateNewThreadForUser(context.Background(), alice, CreateOptions{})
	if err != nil || th == nil {
		t.Fatalf("auto-response failure must not fail creation: %v %v", th, err)
	}
	sys := messagesOfType(h.messages(t, th), domain.MessageTypeSystem)
	if len(sys) < 2 || !strings.Contains(sys[len(sys)-1].Body, "Could not send auto-response") {
		t.Fatalf("expected an inline note, got %+v", sys)
	}
}

func TestCreateNewThread_HeaderCountsPreviousThreads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.open(t)
	if _, err := h.svc.Close(ctx, first, CloseOptions{Silent: true}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second := h.open(t)
	if second.ThreadNumber != 2 {
		t.Fatalf("thread_number = %d", second.ThreadNumber)
	}
	sys := messagesOfType(h.messages(t, second), domain.MessageTypeSystem)
	if len(sys) == 0 || !strings.Contains(sys[0].Body, "**1** previous modmail thread.") {
		t.Fatalf("header missing previous thread count: %+v", sys)
	}
	if !strings.Contains(sys[0].Body, "ACCOUNT AGE") {
		t.Fatalf("header missing account age: %q", sys[0].Body)
	}

	// Only closed threads count; a suspended one is still in progress.
	if err := h.svc.Suspend(ctx, second); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	third := h.open(t)
	sys = messagesOfType(h.messages(t, third), domain.MessageTypeSystem)
	if len(sys) == 0 || !strings.Contains(sys[0].Body, "**1** previous modmail thread.") {
		t.Fatalf("suspended thread counted as previous: %+v", sys)
	}
}

func TestCreateNewThread_DisplayNameInTopicAndPing(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Threads.MentionRole = []string{"here"} })
	bob := platform.User{ID: "101", Username: "bob", GlobalName: "Bobby Tables"}
	h.fake.AddUser(bob)

	th, err := h.svc.CreateNewThreadForUser(context.Background(), bob, CreateOptions{Source: "dm"})
	if err != nil || th == nil {
		t.Fatalf("CreateNewThreadForUser: %v %v", th, err)
	}
	if th.UserName != "bob" {
		t.Fatalf("snapshot name = %q, want the username", th.UserName)
	}
	opts, _ := h.fake.Channel(th.Channel())
	if opts.Name != "bob" || !strings.Contains(opts.Topic, "Bobby Tables (101)") {
		t.Fatalf("channel = %+v", opts)
	}
	sent := h.fake.SentTo(th.Channel())
	if len(sent) == 0 || sent[0].Content != "@here New modmail thread (Bobby Tables)" {
		t.Fatalf("ping = %+v", sent)
	}
}

// ---------- close ----------

func TestScenarioC_CloseDeletesChannelAndReturnsLogURL(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.LogChannelID = "logs"
		c.Threads.CloseMessage = "Thread closed. Reply to open a new one."
	})
	h.fake.AddChannel("logs")
	ctx := context.Background()
	th := h.open(t)
	channel := th.Channel()
	stale := h.reload(t, th.ID)

	url, err := h.svc.Close(ctx, th, CloseOptions{Closer: &staff.User})
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if url != "http://mail.test/logs/"+th.ID {
		t.Fatalf("log url = %q", url)
	}
	got := h.reload(t, th.ID)
	if !got.IsClosed() || got.LogStorageType == nil || *got.LogStorageType != "local" {
		t.Fatalf("unexpected closed thread: %+v", got)
	}
	if h.fake.HasChannel(channel) {
		t.Fatalf("channel not deleted")
	}
	if logs := h.fake.SentTo("logs"); len(logs) != 1 || !strings.Contains(logs[0].Content, url) {
		t.Fatalf("expected log channel note, got %+v", logs)
	}
	if dms := h.fake.SentTo(platformtest.DMChannelID(alice.ID)); len(dms) != 1 {
		t.Fatalf("expected close message DM, got %+v", dms)
	}

	// Racing and repeated closes are no-ops.
	for _, again := range []*domain.Thread{th, stale} {
		url, err := h.svc.Close(ctx, again, CloseOptions{})
		if err != nil || url != "" {
			t.Fatalf("second close: %q %v", url, err)
		}
	}
	if n := len(h.fake.DeletedChannels()); n != 1 {
		t.Fatalf("expected exactly one channel delete, got %d", n)
	}
	if n := len(h.fake.SentTo("logs")); n != 1 {
		t.Fatalf("second close must not post to the log channel")
	}
}

func TestClose_FromSuspended(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	th := h.open(t)
	if err := h.svc.Suspend(ctx, th); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if _, err := h.svc.Close(ctx, th, CloseOptions{Silent: true}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !h.reload(t, th.ID).IsClosed() {
		t.Fatalf("suspended thread should close")
	}
}

func TestOrphanedThreadClosesSilently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	th := h.open(t)
	before := testutil.ToFloat64(observability.ThreadsClosed.WithLabelValues(CloseReasonOrphaned))

	h.fake.RemoveChannel(th.Channel())
	m, err := h.svc.PostSystemMessage(ctx, th, "anyone there?")
	if m != nil || err != nil {
		t.Fatalf("orphan post should be (nil, nil), got %v %v", m, err)
	}
	if !h.reload(t, th.ID).IsClosed() {
		t.Fatalf("orphaned thread not closed")
	}
	if got := testutil.ToFloat64(observability.ThreadsClosed.WithLabelValues(CloseReasonOrphaned)); got != before+1 {
		t.Fatalf("orphan metric = %v, want %v", got, before+1)
	}
}

func TestReceiveUserReply_OrphanClosesAndAllowsRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	th := h.open(t)
	h.fake.RemoveChannel(th.Channel())

	msg := dm(alice, "still there?")
	if err := h.svc.ReceiveUserReply(ctx, th, msg); err != nil {
		t.Fatalf("ReceiveUserReply: %v", err)
	}
	if !th.IsClosed() {
		t.Fatalf("caller should see the thread closed")
	}
	if from := messagesOfType(h.messages(t, th), domain.MessageTypeFromUser); len(from) != 0 {
		t.Fatalf("orphaned relay must not be logged, got %d rows", len(from))
	}

	fresh, err := h.svc.FindOrCreateThreadForUser(ctx, alice, CreateOptions{Quiet: true})
	if err != nil || fresh == nil || fresh.ID == th.ID {
		t.Fatalf("expected a new thread: %v %v", fresh, err)
	}
	if err := h.svc.ReceiveUserReply(ctx, fresh, msg); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if from := messagesOfType(h.messages(t, fresh), domain.MessageTypeFromUser); len(from) != 1 {
		t.Fatalf("retry should log the message, got %d rows", len(from))
	}
}

// ---------- scheduling, suspend, alerts ----------

func TestScenarioD_ScheduleClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	th := h.open(t)

	at := h.now.Add(90 * time.Minute)
	if err := h.svc.ScheduleClose(ctx, th, at, staff.User, true); err != nil {
		t.Fatalf("ScheduleClose: %v", err)
	}
	got := h.reload(t, th.ID)
	if !got.IsOpen() || got.ScheduledCloseAt == nil || !got.ScheduledCloseAt.Equal(testNow.Add(5400*time.Second)) {
		t.Fatalf("unexpected schedule: %+v", got)
	}
	if *got.ScheduledCloseID != staff.User.ID || *got.ScheduledCloseName != "mod" || !got.ScheduledCloseSilent {
		t.Fatalf("closer snapshot not stored: %+v", got)
	}

	if err := h.svc.CancelScheduledClose(ctx, got); err != nil {
		t.Fatalf("CancelScheduledClose: %v", err)
	}
	if h.reload(t, th.ID).HasScheduledClose() {
		t.Fatalf("schedule not cleared")
	}
}

func TestSuspendUnsuspend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	th := h.open(t)

	if err := h.svc.ScheduleSuspend(ctx, th, h.now.Add(time.Hour), staff.User); err != nil {
		t.Fatalf("ScheduleSuspend: %v", err)
	}
	if err := h.svc.Suspend(ctx, th); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	got := h.reload(t, th.ID)
	if !got.IsSuspended() || got.HasScheduledSuspend() {
		t.Fatalf("suspend should clear the pending suspend: %+v", got)
	}
	if err := h.svc.Suspend(ctx, th); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double suspend: %v", err)
	}
	if f, _ := h.svc.FindSuspendedThreadByChannelID(ctx, th.Channel()); f == nil {
		t.Fatalf("suspended lookup failed")
	}

	// While suspended, a new DM opens a second thread; unsuspending the old
	// one would break the one-open-thread rule.
	other, err := h.svc.FindOrCreateThreadForUser(ctx, alice, CreateOptions{Quiet: true})
	if err != nil || other == nil || other.ID == th.ID {
		t.Fatalf("expected a fresh thread, got %v %v", other, err)
	}
	if err := h.svc.Unsuspend(ctx, th); !errors.Is(err, ErrThreadAlreadyOpen) {
		t.Fatalf("expected ErrThreadAlreadyOpen, got %v", err)
	}
	if _, err := h.svc.Close(ctx, other, CloseOptions{Silent: true}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.svc.Unsuspend(ctx, th); err != nil {
		t.Fatalf("Unsuspend: %v", err)
	}
	if !h.reload(t, th.ID).IsOpen() {
		t.Fatalf("unsuspend should reopen")
	}
	if err := h.svc.Unsuspend(ctx, th); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("unsuspend of open thread: %v", err)
	}
}

func TestScheduleOnClosedThreadIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	th := h.open(t)
	if _, err := h.svc.Close(ctx, th, CloseOptions{Silent: true}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.svc.ScheduleClose(ctx, th, h.now, staff.User, false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ScheduleClose: %v", err)
	}
	if err := h.svc.ScheduleSuspend(ctx, th, h.now, staff.User); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("ScheduleSuspend: %v", err)
	}
}

func TestAlerts_SetAddRemoveAndOneShotPing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	th := h.open(t)

	for _, id := range []string{"900", "900", "901"} {
		if err := h.svc.AddAlert(ctx, th, id); err != nil {
			t.Fatalf("AddAlert: %v", err)
		}
	}
	if got := h.reload(t, th.ID).AlertIDs; len(got) != 2 {
		t.Fatalf("alert set = %v", got)
	}
	if err := h.svc.RemoveAlert(ctx, th, "901"); err != nil {
		t.Fatalf("RemoveAlert: %v", err)
	}

	th = h.reload(t, th.ID)
	if err := h.svc.ReceiveUserReply(ctx, th, dm(alice, "ping me")); err != nil {
		t.Fatalf("ReceiveUserReply: %v", err)
	}
	var ping *platform.OutgoingMessage
	for _, m := range h.fake.SentTo(th.Channel()) {
		if len(m.MentionUsers) > 0 {
			m := m
			ping = &m
		}
	}
	if ping == nil || ping.MentionUsers[0] != "900" || !strings.Contains(ping.Content, "<@900>") {
		t.Fatalf("expected alert ping, got %+v", ping)
	}
	if got := h.reload(t, th.ID).AlertIDs; len(got) != 0 {
		t.Fatalf("alerts should clear after firing, got %v", got)
	}
}

func TestListPreviousThreads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		th := h.open(t)
		ids = append(ids, th.ID)
		h.now = h.now.Add(time.Minute)
		if _, err := h.svc.Close(ctx, th, CloseOptions{Silent: true}); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	items, total, err := h.svc.ListPreviousThreads(ctx, alice.ID, 1, 2)
	if err != nil || total != 3 || len(items) != 2 {
		t.Fatalf("page 1: %v %d %v", len(items), total, err)
	}
	if items[0].ID != ids[2] {
		t.Fatalf("expected newest first")
	}
	items, _, _ = h.svc.ListPreviousThreads(ctx, alice.ID, 2, 2)
	if len(items) != 1 || items[0].ID != ids[0] {
		t.Fatalf("page 2: %+v", items)
	}
	items, total, _ = h.svc.ListPreviousThreads(ctx, "nobody", 0, 0)
	if total != 0 || len(items) != 0 {
		t.Fatalf("unknown user: %d %d", len(items), total)
	}
}
