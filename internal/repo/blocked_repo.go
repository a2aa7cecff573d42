package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-modmail/internal/domain"
)

// BlockUser inserts or replaces the block for b.UserID.
func BlockUser(ctx context.Context, db *gorm.DB, b *domain.BlockedUser) error {
	if b.BlockedAt.IsZero() {
		b.BlockedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(b).Error
}

// UnblockUser removes the user's block. It returns ErrNotFound if the user
// was not blocked.
func UnblockUser(ctx context.Context, db *gorm.DB, userID string) error {
	res := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.BlockedUser{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetBlock fetches the block row for userID, expired or not.
func GetBlock(ctx context.Context, db *gorm.DB, userID string) (*domain.BlockedUser, error) {
	var b domain.BlockedUser
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// IsBlocked reports whether userID has a block in effect at now.
func IsBlocked(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.BlockedUser{}).
		Where("user_id = ? AND (expires_at IS NULL OR expires_at > ?)", userID, now).
		Count(&n).Error
	return n > 0, err
}

// ListExpiredBlocks returns blocks whose expiry is at or before now.
func ListExpiredBlocks(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.BlockedUser, error) {
	var out []domain.BlockedUser
	err := db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Order("expires_at ASC").
		Find(&out).Error
	return out, err
}
