package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-modmail/internal/domain"
)

// newRepoDB opens a file-backed SQLite DB in a temp dir and migrates the
// full schema.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func strp(s string) *string { return &s }

func seedThread(t *testing.T, db *gorm.DB, userID, channelID string, status domain.ThreadStatus) *domain.Thread {
	t.Helper()
	th := &domain.Thread{Status: status, UserID: userID, UserName: "name-" + userID}
	if channelID != "" {
		th.ChannelID = strp(channelID)
	}
	if err := CreateThread(context.Background(), db, th); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	return th
}

func TestCreateThread_AssignsIDsNumbersAndDefaults(t *testing.T) {
	db := newRepoDB(t)

	a := seedThread(t, db, "u1", "c1", domain.ThreadStatusOpen)
	b := seedThread(t, db, "u2", "c2", domain.ThreadStatusOpen)

	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct UUIDs, got %q %q", a.ID, b.ID)
	}
	if a.ThreadNumber != 1 || b.ThreadNumber != 2 {
		t.Fatalf("thread numbers = %d, %d; want 1, 2", a.ThreadNumber, b.ThreadNumber)
	}
	if a.NextMessageNumber != 1 || a.CreatedAt.IsZero() {
		t.Fatalf("defaults not applied: %+v", a)
	}
}

func TestCreateThread_DuplicateChannelIsNotRetried(t *testing.T) {
	db := newRepoDB(t)
	seedThread(t, db, "u1", "c1", domain.ThreadStatusOpen)

	err := CreateThread(context.Background(), db, &domain.Thread{Status: domain.ThreadStatusOpen, UserID: "u2", UserName: "b", ChannelID: strp("c1")})
	if err == nil || !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	var n int64
	db.Model(&domain.Thread{}).Count(&n)
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestPointLookups(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)

	closed := seedThread(t, db, "u1", "c-old", domain.ThreadStatusClosed)
	open := seedThread(t, db, "u1", "c-new", domain.ThreadStatusOpen)
	susp := seedThread(t, db, "u2", "c-susp", domain.ThreadStatusSuspended)

	got, err := GetOpenThreadByUser(ctx, db, "u1")
	if err != nil || got.ID != open.ID {
		t.Fatalf("GetOpenThreadByUser = %+v, %v", got, err)
	}
	if _, err := GetOpenThreadByUser(ctx, db, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("suspended thread must not count as open, err=%v", err)
	}

	got, err = GetThreadByChannel(ctx, db, "c-old")
	if err != nil || got.ID != closed.ID {
		t.Fatalf("GetThreadByChannel = %+v, %v", got, err)
	}
	if _, err := GetThreadByChannelAndStatus(ctx, db, "c-old", domain.ThreadStatusOpen); !errors.Is(err, ErrNotFound) {
		t.Fatalf("closed thread returned for OPEN lookup, err=%v", err)
	}
	got, err = GetThreadByChannelAndStatus(ctx, db, "c-susp", domain.ThreadStatusSuspended)
	if err != nil || got.ID != susp.ID {
		t.Fatalf("GetThreadByChannelAndStatus = %+v, %v", got, err)
	}
	if _, err := GetThread(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetThread(missing) err=%v", err)
	}
}

func TestTransitionThread_Guarded(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	th := seedThread(t, db, "u1", "c1", domain.ThreadStatusOpen)

	from := []domain.ThreadStatus{domain.ThreadStatusOpen, domain.ThreadStatusSuspended}
	changed, err := TransitionThread(ctx, db, th.ID, domain.ThreadStatusClosed, from, map[string]any{"scheduled_close_at": nil})
	if err != nil || !changed {
		t.Fatalf("first close: changed=%v err=%v", changed, err)
	}
	changed, err = TransitionThread(ctx, db, th.ID, domain.ThreadStatusClosed, from, nil)
	if err != nil || changed {
		t.Fatalf("second close must be a no-op: changed=%v err=%v", changed, err)
	}
	got, _ := GetThread(ctx, db, th.ID)
	if !got.IsClosed() {
		t.Fatalf("status = %v", got.Status)
	}
}

func TestUpdateThread_FieldsAndNotFound(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	th := seedThread(t, db, "u1", "c1", domain.ThreadStatusOpen)

	due := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	if err := UpdateThread(ctx, db, th.ID, map[string]any{
		"scheduled_close_at":     due,
		"scheduled_close_id":     "staff",
		"scheduled_close_silent": true,
		"alert_ids":              datatypes.JSONSlice[string]{"s1", "s2"},
	}); err != nil {
		t.Fatalf("UpdateThread: %v", err)
	}
	got, _ := GetThread(ctx, db, th.ID)
	if got.ScheduledCloseAt == nil || !got.ScheduledCloseAt.Equal(due) || !got.ScheduledCloseSilent {
		t.Fatalf("schedule not persisted: %+v", got)
	}
	if !got.HasAlert("s2") {
		t.Fatalf("alert ids not persisted: %v", got.AlertIDs)
	}

	if err := UpdateThread(ctx, db, "missing", map[string]any{"user_name": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAllocateMessageNumber_Sequential(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	th := seedThread(t, db, "u1", "c1", domain.ThreadStatusOpen)

	for want := 1; want <= 3; want++ {
		n, err := AllocateMessageNumber(ctx, db, th.ID)
		if err != nil || n != want {
			t.Fatalf("AllocateMessageNumber = %d, %v; want %d", n, err, want)
		}
	}
	got, _ := GetThread(ctx, db, th.ID)
	if got.NextMessageNumber != 4 {
		t.Fatalf("next_message_number = %d; want 4", got.NextMessageNumber)
	}
	if _, err := AllocateMessageNumber(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDueClosesAndSuspends(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	now := time.Now().UTC()
	past, future := now.Add(-time.Minute), now.Add(time.Hour)

	due := seedThread(t, db, "u1", "c1", domain.ThreadStatusOpen)
	notDue := seedThread(t, db, "u2", "c2", domain.ThreadStatusOpen)
	suspended := seedThread(t, db, "u3", "c3", domain.ThreadStatusSuspended)
	_ = UpdateThread(ctx, db, due.ID, map[string]any{"scheduled_close_at": past, "scheduled_suspend_at": past})
	_ = UpdateThread(ctx, db, notDue.ID, map[string]any{"scheduled_close_at": future})
	_ = UpdateThread(ctx, db, suspended.ID, map[string]any{"scheduled_close_at": past})

	closes, err := ListDueCloses(ctx, db, now)
	if err != nil || len(closes) != 1 || closes[0].ID != due.ID {
		t.Fatalf("ListDueCloses = %+v, %v", closes, err)
	}
	suspends, err := ListDueSuspends(ctx, db, now)
	if err != nil || len(suspends) != 1 || suspends[0].ID != due.ID {
		t.Fatalf("ListDueSuspends = %+v, %v", suspends, err)
	}
}

func TestUserThreadCountsAndPaging(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		th := &domain.Thread{Status: domain.ThreadStatusClosed, UserID: "u1", UserName: "a", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := CreateThread(ctx, db, th); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	seedThread(t, db, "u1", "c-open", domain.ThreadStatusOpen)
	seedThread(t, db, "u2", "c-other", domain.ThreadStatusClosed)

	if n, _ := CountThreadsByUser(ctx, db, "u1"); n != 4 {
		t.Fatalf("CountThreadsByUser = %d", n)
	}
	if n, _ := CountClosedThreadsByUser(ctx, db, "u1"); n != 3 {
		t.Fatalf("CountClosedThreadsByUser = %d", n)
	}
	page, err := ListThreadsByUserPage(ctx, db, "u1", 1, 2)
	if err != nil || len(page) != 2 {
		t.Fatalf("ListThreadsByUserPage = %+v, %v", page, err)
	}
	// newest first: open (now), base+2h, base+1h, base
	if !page[0].CreatedAt.Equal(base.Add(2*time.Hour)) || !page[1].CreatedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected page order: %v, %v", page[0].CreatedAt, page[1].CreatedAt)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := map[string]bool{
		"UNIQUE constraint failed: threads.channel_id":           true,
		`duplicate key value violates unique constraint "idx_x"`: true,
		"database is locked":                                     false,
	}
	for msg, want := range cases {
		if got := IsUniqueViolation(errors.New(msg)); got != want {
			t.Fatalf("IsUniqueViolation(%q) = %v", msg, got)
		}
	}
	if IsUniqueViolation(nil) || !IsUniqueViolation(gorm.ErrDuplicatedKey) {
		t.Fatalf("nil / ErrDuplicatedKey handling wrong")
	}
}
