// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ThreadMessage model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-modmail/internal/domain"
)

// CreateMessage appends a message row. CreatedAt defaults to now (UTC).
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.ThreadMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(m).Error
}

// ListMessages returns a thread's messages ordered deterministically
// (CreatedAt ASC, ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, threadID string) ([]domain.ThreadMessage, error) {
	var out []domain.ThreadMessage
	err := db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// GetMessageByDMMessageID fetches the row correlated with a DM-side message.
func GetMessageByDMMessageID(ctx context.Context, db *gorm.DB, dmMessageID string) (*domain.ThreadMessage, error) {
	var m domain.ThreadMessage
	if err := db.WithContext(ctx).Where("dm_message_id = ?", dmMessageID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByNumber fetches the relayed message with the given per-thread
// number.
func GetMessageByNumber(ctx context.Context, db *gorm.DB, threadID string, number int) (*domain.ThreadMessage, error) {
	var m domain.ThreadMessage
	err := db.WithContext(ctx).
		Where("thread_id = ? AND message_number = ?", threadID, number).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageBody rewrites the body of the row matched by
// (threadID, dmMessageID). It returns ErrNotFound if no row matched.
func UpdateMessageBody(ctx context.Context, db *gorm.DB, threadID, dmMessageID, body string) error {
	res := db.WithContext(ctx).
		Model(&domain.ThreadMessage{}).
		Where("thread_id = ? AND dm_message_id = ?", threadID, dmMessageID).
		Update("body", body)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMessageByDMMessageID removes the row matched by
// (threadID, dmMessageID). It returns ErrNotFound if no row matched.
func DeleteMessageByDMMessageID(ctx context.Context, db *gorm.DB, threadID, dmMessageID string) error {
	res := db.WithContext(ctx).
		Where("thread_id = ? AND dm_message_id = ?", threadID, dmMessageID).
		Delete(&domain.ThreadMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
