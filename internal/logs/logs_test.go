package logs

import (
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/go-modmail/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestFormat(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	th := &domain.Thread{
		ID:           "t-1",
		ThreadNumber: 7,
		Status:       domain.ThreadStatusClosed,
		UserID:       "100001",
		UserName:     "alice",
		CreatedAt:    start,
	}
	at := func(s int) time.Time { return start.Add(time.Duration(s) * time.Second) }
	msgs := []domain.ThreadMessage{
		{MessageType: domain.MessageTypeSystem, Body: "header", CreatedAt: at(0)},
		{MessageType: domain.MessageTypeFromUser, MessageNumber: ptr(1), UserName: "alice", Body: "help",
			Attachments: datatypes.JSONSlice[string]{"https://files.test/a.png"}, CreatedAt: at(1)},
		{MessageType: domain.MessageTypeToUser, MessageNumber: ptr(2), UserName: "mod", RoleName: ptr("Admin"),
			Body: "on it", IsAnonymous: true, CreatedAt: at(2)},
		{MessageType: domain.MessageTypeChat, UserName: "mod", Body: "note", CreatedAt: at(3)},
		{MessageType: domain.MessageTypeReplyEdited, UserName: "mod", RoleName: ptr("Admin"), Body: "on it now",
			Metadata: datatypes.JSONMap{"message_number": float64(2), "original": "on it"}, CreatedAt: at(4)},
		{MessageType: domain.MessageTypeReplyDeleted, UserName: "mod", Body: "on it now",
			Metadata: datatypes.JSONMap{"message_number": 2}, CreatedAt: at(5)},
		{MessageType: domain.MessageTypeSystemToUser, Body: "bye", CreatedAt: at(6)},
	}

	out := Format(th, msgs)
	for _, want := range []string{
		"# Modmail thread #7 with alice (100001)\n",
		"status CLOSED",
		"[2026-01-02 03:04:05] [SYSTEM] header\n",
		"[2026-01-02 03:04:06] [FROM USER] [1] alice: help\n  Attachment: https://files.test/a.png\n",
		"[TO USER] [2] (Anonymous) (Admin) mod: on it\n",
		"[CHAT] mod: note\n",
		"[REPLY EDITED] [2] (Admin) mod edited reply:\n  Before: on it\n  After: on it now\n",
		"[REPLY DELETED] [2] mod deleted reply: on it now\n",
		"[BOT TO USER] bye\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q\n---\n%s", want, out)
		}
	}
	if strings.Index(out, "header") > strings.Index(out, "bye") {
		t.Fatalf("messages out of order")
	}
}

func TestFormat_AttachmentAlreadyInBody(t *testing.T) {
	th := &domain.Thread{ThreadNumber: 1, UserName: "bob", UserID: "2", Status: domain.ThreadStatusOpen}
	url := "https://files.test/x.txt"
	out := Format(th, []domain.ThreadMessage{{
		MessageType: domain.MessageTypeFromUser,
		UserName:    "bob",
		Body:        "see\n" + url,
		Attachments: datatypes.JSONSlice[string]{url},
	}})
	if strings.Count(out, url) != 1 {
		t.Fatalf("attachment listed twice:\n%s", out)
	}
}
