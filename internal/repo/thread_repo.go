// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Thread
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When a thread is not found, point lookups return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Updates keyed by id return ErrNotFound when no row matched.
//   - Guarded status transitions report whether the row changed instead of
//     failing, so a lost race is observable without an error.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-modmail/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// createThreadAttempts bounds retries when two writers pick the same
// thread_number.
const createThreadAttempts = 3

// IsUniqueViolation reports whether err is a unique-constraint failure from
// SQLite or PostgreSQL.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique constraint") || strings.Contains(s, "duplicate key")
}

// CreateThread inserts t with the next free thread_number. ID defaults to a
// fresh UUID, CreatedAt to now (UTC) and NextMessageNumber to 1.
func CreateThread(ctx context.Context, db *gorm.DB, t *domain.Thread) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.NextMessageNumber < 1 {
		t.NextMessageNumber = 1
	}

	var err error
	for attempt := 0; attempt < createThreadAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var maxNum int
			if err := tx.Model(&domain.Thread{}).
				Select("COALESCE(MAX(thread_number), 0)").
				Scan(&maxNum).Error; err != nil {
				return err
			}
			t.ThreadNumber = maxNum + 1
			return tx.Create(t).Error
		})
		// Only a thread_number collision is worth another attempt.
		if err == nil || !IsUniqueViolation(err) || !strings.Contains(strings.ToLower(err.Error()), "thread_number") {
			return err
		}
	}
	return err
}

// GetThread fetches a thread by id.
func GetThread(ctx context.Context, db *gorm.DB, id string) (*domain.Thread, error) {
	var t domain.Thread
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetThreadByChannel fetches the thread bound to channelID, in any status.
func GetThreadByChannel(ctx context.Context, db *gorm.DB, channelID string) (*domain.Thread, error) {
	var t domain.Thread
	if err := db.WithContext(ctx).Where("channel_id = ?", channelID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetThreadByChannelAndStatus fetches the thread bound to channelID only when
// it currently has the given status.
func GetThreadByChannelAndStatus(ctx context.Context, db *gorm.DB, channelID string, status domain.ThreadStatus) (*domain.Thread, error) {
	var t domain.Thread
	err := db.WithContext(ctx).
		Where("channel_id = ? AND status = ?", channelID, status).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetOpenThreadByUser fetches the user's OPEN thread. Should more than one
// exist (data written by a buggy older version), the newest wins.
func GetOpenThreadByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.Thread, error) {
	var t domain.Thread
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.ThreadStatusOpen).
		Order("created_at DESC, thread_number DESC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListDueCloses returns OPEN threads whose scheduled close is at or before now.
func ListDueCloses(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Thread, error) {
	var out []domain.Thread
	err := db.WithContext(ctx).
		Where("status = ? AND scheduled_close_at IS NOT NULL AND scheduled_close_at <= ?", domain.ThreadStatusOpen, now).
		Order("scheduled_close_at ASC").
		Find(&out).Error
	return out, err
}

// ListDueSuspends returns OPEN threads whose scheduled suspend is at or
// before now.
func ListDueSuspends(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Thread, error) {
	var out []domain.Thread
	err := db.WithContext(ctx).
		Where("status = ? AND scheduled_suspend_at IS NOT NULL AND scheduled_suspend_at <= ?", domain.ThreadStatusOpen, now).
		Order("scheduled_suspend_at ASC").
		Find(&out).Error
	return out, err
}

// UpdateThread applies fields to the thread with the given id in a single
// UPDATE. It returns ErrNotFound if no row matched.
func UpdateThread(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionThread moves the thread to status `to` only if its current
// status is one of from, applying extra fields in the same statement.
// changed is false when the precondition did not hold (or the row is gone).
func TransitionThread(ctx context.Context, db *gorm.DB, id string, to domain.ThreadStatus, from []domain.ThreadStatus, extra map[string]any) (changed bool, err error) {
	fields := map[string]any{"status": to}
	for k, v := range extra {
		fields[k] = v
	}
	res := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AllocateMessageNumber reserves the thread's next message number and
// advances the counter atomically.
func AllocateMessageNumber(ctx context.Context, db *gorm.DB, threadID string) (int, error) {
	var n int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Thread{}).
			Where("id = ?", threadID).
			UpdateColumn("next_message_number", gorm.Expr("next_message_number + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Model(&domain.Thread{}).
			Where("id = ?", threadID).
			Select("next_message_number").
			Scan(&n).Error; err != nil {
			return err
		}
		n--
		return nil
	})
	return n, err
}

// CountThreadsByUser returns how many threads the user has, in any status.
func CountThreadsByUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// CountClosedThreadsByUser returns how many of the user's threads are CLOSED.
func CountClosedThreadsByUser(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Thread{}).
		Where("user_id = ? AND status = ?", userID, domain.ThreadStatusClosed).
		Count(&total).Error
	return total, err
}

// ListThreadsByUserPage returns a page of the user's threads, newest first.
// The caller is responsible for computing offset and limit.
func ListThreadsByUserPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Thread, error) {
	var out []domain.Thread
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, thread_number DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
