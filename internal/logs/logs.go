// Package logs renders thread transcripts as plain text.
package logs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-modmail/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// Format renders t and its messages, which must already be in display
// order, as a plaintext transcript.
func Format(t *domain.Thread, messages []domain.ThreadMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Modmail thread #%d with %s (%s)\n", t.ThreadNumber, t.UserName, t.UserID)
	fmt.Fprintf(&b, "# Started %s UTC, status %s\n", stamp(t.CreatedAt), t.Status)
	if t.IsLegacy {
		b.WriteString("# Imported legacy thread\n")
	}
	b.WriteString("\n")

	for i := range messages {
		writeMessage(&b, &messages[i])
	}
	return b.String()
}

func stamp(ts time.Time) string { return ts.UTC().Format(timeLayout) }

func writeMessage(b *strings.Builder, m *domain.ThreadMessage) {
	fmt.Fprintf(b, "[%s] ", stamp(m.CreatedAt))

	switch m.MessageType {
	case domain.MessageTypeFromUser:
		fmt.Fprintf(b, "[FROM USER]%s %s: %s", number(m.MessageNumber), m.UserName, m.Body)
	case domain.MessageTypeToUser:
		fmt.Fprintf(b, "[TO USER]%s %s%s: %s", number(m.MessageNumber), anon(m), staffName(m), m.Body)
	case domain.MessageTypeChat:
		fmt.Fprintf(b, "[CHAT] %s: %s", m.UserName, m.Body)
	case domain.MessageTypeCommand:
		fmt.Fprintf(b, "[COMMAND] %s: %s", m.UserName, m.Body)
	case domain.MessageTypeSystem:
		fmt.Fprintf(b, "[SYSTEM] %s", m.Body)
	case domain.MessageTypeSystemToUser:
		fmt.Fprintf(b, "[BOT TO USER] %s", m.Body)
	case domain.MessageTypeReplyEdited:
		fmt.Fprintf(b, "[REPLY EDITED]%s %s%s edited reply:\n  Before: %s\n  After: %s",
			number(metaNumber(m.Metadata)), anon(m), staffName(m), metaString(m.Metadata, "original"), m.Body)
	case domain.MessageTypeReplyDeleted:
		fmt.Fprintf(b, "[REPLY DELETED]%s %s%s deleted reply: %s",
			number(metaNumber(m.Metadata)), anon(m), staffName(m), m.Body)
	case domain.MessageTypeLegacy:
		fmt.Fprintf(b, "[LEGACY] %s", m.Body)
	default:
		fmt.Fprintf(b, "[%s] %s", m.MessageType, m.Body)
	}
	b.WriteString("\n")

	for _, url := range m.Attachments {
		if !strings.Contains(m.Body, url) {
			fmt.Fprintf(b, "  Attachment: %s\n", url)
		}
	}
}

func number(n *int) string {
	if n == nil {
		return ""
	}
	return fmt.Sprintf(" [%d]", *n)
}

func anon(m *domain.ThreadMessage) string {
	if m.IsAnonymous {
		return "(Anonymous) "
	}
	return ""
}

func staffName(m *domain.ThreadMessage) string {
	if m.RoleName != nil && *m.RoleName != "" {
		return "(" + *m.RoleName + ") " + m.UserName
	}
	return m.UserName
}

// metaNumber reads "message_number" from metadata. Values read back from
// the store are JSON numbers.
func metaNumber(meta map[string]any) *int {
	var n int
	switch v := meta["message_number"].(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}

func metaString(meta map[string]any, key string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}
