package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-modmail/internal/domain"
)

func TestCreateMessage_DefaultsAndUniqueDMID(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	th := seedThread(t, db, "u1", "c1", domain.ThreadStatusOpen)

	m := &domain.ThreadMessage{ThreadID: th.ID, MessageType: domain.MessageTypeFromUser, UserName: "a", Body: "hello", DMMessageID: strp("dm1")}
	if err := CreateMessage(ctx, db, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == 0 || m.CreatedAt.IsZero() {
		t.Fatalf("defaults not set: %+v", m)
	}
	dup := &domain.ThreadMessage{ThreadID: th.ID, MessageType: domain.MessageTypeFromUser, UserName: "a", Body: "again", DMMessageID: strp("dm1")}
	if err := CreateMessage(ctx, db, dup); !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestListMessages_OrderByCreatedThenID(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	th := seedThread(t, db, "u1", "c1", domain.ThreadStatusOpen)

	same := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	earlier := same.Add(-time.Second)
	// Insert out of timestamp order; same-timestamp rows fall back to id.
	bodies := []struct {
		body string
		at   time.Time
	}{{"b", same}, {"c", same}, {"a", earlier}, {"d", same}}
	for _, b := range bodies {
		if err := CreateMessage(ctx, db, &domain.ThreadMessage{ThreadID: th.ID, MessageType: domain.MessageTypeChat, Body: b.body, CreatedAt: b.at}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	out, err := ListMessages(ctx, db, th.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	got := ""
	for _, m := range out {
		got += m.Body
	}
	if got != "abcd" {
		t.Fatalf("order = %q; want abcd", got)
	}
}

func TestMessageLookups_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newRepoDB(t)
	th := seedThread(t, db, "u1", "c1", domain.ThreadStatusOpen)
	other := seedThread(t, db, "u2", "c2", domain.ThreadStatusOpen)

	num := 3
	m := &domain.ThreadMessage{ThreadID: th.ID, MessageType: domain.MessageTypeToUser, MessageNumber: &num, Body: "reply", DMMessageID: strp("dm9")}
	if err := CreateMessage(ctx, db, m); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := GetMessageByDMMessageID(ctx, db, "dm9")
	if err != nil || got.ID != m.ID {
		t.Fatalf("GetMessageByDMMessageID = %+v, %v", got, err)
	}
	got, err = GetMessageByNumber(ctx, db, th.ID, 3)
	if err != nil || got.ID != m.ID {
		t.Fatalf("GetMessageByNumber = %+v, %v", got, err)
	}
	if _, err := GetMessageByNumber(ctx, db, other.ID, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("number lookup leaked across threads: %v", err)
	}

	// (thread_id, dm_message_id) must both match.
	if err := UpdateMessageBody(ctx, db, other.ID, "dm9", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update across threads: %v", err)
	}
	if err := UpdateMessageBody(ctx, db, th.ID, "dm9", "edited"); err != nil {
		t.Fatalf("UpdateMessageBody: %v", err)
	}
	got, _ = GetMessageByDMMessageID(ctx, db, "dm9")
	if got.Body != "edited" {
		t.Fatalf("body = %q", got.Body)
	}

	if err := DeleteMessageByDMMessageID(ctx, db, th.ID, "dm9"); err != nil {
		t.Fatalf("DeleteMessageByDMMessageID: %v", err)
	}
	if err := DeleteMessageByDMMessageID(ctx, db, th.ID, "dm9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
