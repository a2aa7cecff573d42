// Package domain defines the persistence models for mod-mail threads,
// thread messages, blocked users and snippets. These types are mapped with
// GORM and their table and column names are the on-disk contract shared
// with older installations, so renaming a column is a breaking change.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ThreadStatus is the lifecycle state of a Thread.
type ThreadStatus int

// Persisted status codes.
const (
	ThreadStatusOpen      ThreadStatus = 1
	ThreadStatusClosed    ThreadStatus = 2
	ThreadStatusSuspended ThreadStatus = 3
)

// String returns the upper-case status name used in logs and transcripts.
func (s ThreadStatus) String() string {
	switch s {
	case ThreadStatusOpen:
		return "OPEN"
	case ThreadStatusClosed:
		return "CLOSED"
	case ThreadStatusSuspended:
		return "SUSPENDED"
	default:
		return "UNKNOWN"
	}
}

// Thread is one user's mod-mail conversation and, while it is not closed,
// the staff channel it is relayed to.
//
// Fields:
//   - ID: UUID primary key.
//   - ThreadNumber: monotonically assigned, human-facing number.
//   - Status: OPEN, CLOSED or SUSPENDED; at most one OPEN row per UserID.
//   - UserID / UserName: the user and a snapshot of their name at creation.
//   - ChannelID: staff channel; NULL only for imported legacy rows.
//   - Scheduled*: pending close / suspend, applied by the sweepers.
//   - AlertIDs: staff to ping once on the next user reply.
//   - NextMessageNumber: counter for FROM_USER / TO_USER message numbers.
//   - LogStorageType / LogStorageData: where the transcript was persisted.
type Thread struct {
	ID       string       `json:"id"        gorm:"column:id;type:char(36);primaryKey"`
	Status   ThreadStatus `json:"status"    gorm:"column:status;not null;index:idx_threads_user_status,priority:2"`
	IsLegacy bool         `json:"is_legacy" gorm:"column:is_legacy;not null;default:false"`
	UserID   string       `json:"user_id"   gorm:"column:user_id;type:varchar(20);not null;index:idx_threads_user_status,priority:1"`
	UserName string       `json:"user_name" gorm:"column:user_name;type:varchar(128);not null"`

	// ChannelID is unique among non-null values.
	ChannelID *string `json:"channel_id,omitempty" gorm:"column:channel_id;type:varchar(20);uniqueIndex"`

	ScheduledCloseAt     *time.Time `json:"scheduled_close_at,omitempty"   gorm:"column:scheduled_close_at;index"`
	ScheduledCloseID     *string    `json:"scheduled_close_id,omitempty"   gorm:"column:scheduled_close_id;type:varchar(20)"`
	ScheduledCloseName   *string    `json:"scheduled_close_name,omitempty" gorm:"column:scheduled_close_name;type:varchar(128)"`
	ScheduledCloseSilent bool       `json:"scheduled_close_silent"         gorm:"column:scheduled_close_silent;not null;default:false"`

	ScheduledSuspendAt   *time.Time `json:"scheduled_suspend_at,omitempty"   gorm:"column:scheduled_suspend_at;index"`
	ScheduledSuspendID   *string    `json:"scheduled_suspend_id,omitempty"   gorm:"column:scheduled_suspend_id;type:varchar(20)"`
	ScheduledSuspendName *string    `json:"scheduled_suspend_name,omitempty" gorm:"column:scheduled_suspend_name;type:varchar(128)"`

	AlertIDs          datatypes.JSONSlice[string] `json:"alert_ids"           gorm:"column:alert_ids"`
	NextMessageNumber int                         `json:"next_message_number" gorm:"column:next_message_number;not null;default:1"`

	LogStorageType *string           `json:"log_storage_type,omitempty" gorm:"column:log_storage_type;type:varchar(32)"`
	LogStorageData datatypes.JSONMap `json:"log_storage_data,omitempty" gorm:"column:log_storage_data"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"         gorm:"column:metadata"`

	ThreadNumber int       `json:"thread_number" gorm:"column:thread_number;not null;uniqueIndex"`
	CreatedAt    time.Time `json:"created_at"    gorm:"column:created_at;not null"`
}

// TableName returns the database table name for Thread.
func (Thread) TableName() string { return "threads" }

// IsOpen reports whether the thread accepts relayed messages.
func (t *Thread) IsOpen() bool { return t.Status == ThreadStatusOpen }

// IsClosed reports whether the thread reached its terminal state.
func (t *Thread) IsClosed() bool { return t.Status == ThreadStatusClosed }

// IsSuspended reports whether the thread is parked until unsuspended.
func (t *Thread) IsSuspended() bool { return t.Status == ThreadStatusSuspended }

// HasScheduledClose reports whether a close is pending.
func (t *Thread) HasScheduledClose() bool { return t.ScheduledCloseAt != nil }

// HasScheduledSuspend reports whether a suspend is pending.
func (t *Thread) HasScheduledSuspend() bool { return t.ScheduledSuspendAt != nil }

// HasAlert reports whether userID is waiting for a ping on the next reply.
func (t *Thread) HasAlert(userID string) bool {
	for _, id := range t.AlertIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Channel returns the staff channel id, or "" for legacy rows.
func (t *Thread) Channel() string {
	if t.ChannelID == nil {
		return ""
	}
	return *t.ChannelID
}

// MessageType classifies a ThreadMessage.
type MessageType int

// Persisted message type codes.
const (
	MessageTypeSystem       MessageType = 1
	MessageTypeChat         MessageType = 2
	MessageTypeFromUser     MessageType = 3
	MessageTypeToUser       MessageType = 4
	MessageTypeLegacy       MessageType = 5
	MessageTypeCommand      MessageType = 6
	MessageTypeSystemToUser MessageType = 7
	MessageTypeReplyEdited  MessageType = 8
	MessageTypeReplyDeleted MessageType = 9
)

// String returns the upper-case type name used in transcripts.
func (m MessageType) String() string {
	switch m {
	case MessageTypeSystem:
		return "SYSTEM"
	case MessageTypeChat:
		return "CHAT"
	case MessageTypeFromUser:
		return "FROM_USER"
	case MessageTypeToUser:
		return "TO_USER"
	case MessageTypeLegacy:
		return "LEGACY"
	case MessageTypeCommand:
		return "COMMAND"
	case MessageTypeSystemToUser:
		return "SYSTEM_TO_USER"
	case MessageTypeReplyEdited:
		return "REPLY_EDITED"
	case MessageTypeReplyDeleted:
		return "REPLY_DELETED"
	default:
		return "UNKNOWN"
	}
}

// ThreadMessage is one logged event of a thread. Display and transcript
// order is (CreatedAt ASC, ID ASC); ID breaks ties for rows written within
// the same timestamp.
type ThreadMessage struct {
	ID            uint        `json:"id"             gorm:"column:id;primaryKey;autoIncrement"`
	ThreadID      string      `json:"thread_id"      gorm:"column:thread_id;type:char(36);not null;index:idx_thread_messages_order,priority:1"`
	MessageType   MessageType `json:"message_type"   gorm:"column:message_type;not null"`
	MessageNumber *int        `json:"message_number,omitempty" gorm:"column:message_number"`

	UserID   *string `json:"user_id,omitempty"   gorm:"column:user_id;type:varchar(20)"`
	UserName string  `json:"user_name"           gorm:"column:user_name;type:varchar(128);not null;default:''"`
	RoleName *string `json:"role_name,omitempty" gorm:"column:role_name;type:varchar(128)"`

	Body        string `json:"body"         gorm:"column:body;type:text;not null"`
	IsAnonymous bool   `json:"is_anonymous" gorm:"column:is_anonymous;not null;default:false"`

	Attachments      datatypes.JSONSlice[string] `json:"attachments"       gorm:"column:attachments"`
	SmallAttachments datatypes.JSONSlice[string] `json:"small_attachments" gorm:"column:small_attachments"`

	DMChannelID    *string `json:"dm_channel_id,omitempty"    gorm:"column:dm_channel_id;type:varchar(20)"`
	DMMessageID    *string `json:"dm_message_id,omitempty"    gorm:"column:dm_message_id;type:varchar(20);uniqueIndex"`
	InboxMessageID *string `json:"inbox_message_id,omitempty" gorm:"column:inbox_message_id;type:varchar(20);uniqueIndex"`

	Metadata  datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata"`
	CreatedAt time.Time         `json:"created_at"         gorm:"column:created_at;not null;index:idx_thread_messages_order,priority:2"`

	// Thread is the owning conversation; rows are cascade-deleted with it.
	Thread Thread `json:"-" gorm:"foreignKey:ThreadID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ThreadMessage.
func (ThreadMessage) TableName() string { return "thread_messages" }

// BlockedUser prevents a user from opening threads. A nil ExpiresAt blocks
// indefinitely.
type BlockedUser struct {
	UserID    string     `json:"user_id"              gorm:"column:user_id;type:varchar(20);primaryKey"`
	UserName  string     `json:"user_name"            gorm:"column:user_name;type:varchar(128);not null"`
	BlockedBy *string    `json:"blocked_by,omitempty" gorm:"column:blocked_by;type:varchar(20)"`
	BlockedAt time.Time  `json:"blocked_at"           gorm:"column:blocked_at;not null"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at;index"`
}

// TableName returns the database table name for BlockedUser.
func (BlockedUser) TableName() string { return "blocked_users" }

// Active reports whether the block is still in effect at now.
func (b *BlockedUser) Active(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// Snippet is a stored reply template; {1}..{N} are replaced by positional
// arguments when used.
type Snippet struct {
	Trigger   string    `json:"trigger"              gorm:"column:trigger;type:varchar(64);primaryKey"`
	Body      string    `json:"body"                 gorm:"column:body;type:text;not null"`
	CreatedBy *string   `json:"created_by,omitempty" gorm:"column:created_by;type:varchar(20)"`
	CreatedAt time.Time `json:"created_at"           gorm:"column:created_at;not null"`
}

// TableName returns the database table name for Snippet.
func (Snippet) TableName() string { return "snippets" }
