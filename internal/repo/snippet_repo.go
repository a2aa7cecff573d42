package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-modmail/internal/domain"
)

// "trigger" is a reserved word in SQLite, so snippet queries go through map
// conditions and clause columns, which GORM quotes.

// CreateSnippet inserts a new snippet. An existing trigger is a unique
// violation.
func CreateSnippet(ctx context.Context, db *gorm.DB, s *domain.Snippet) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(s).Error
}

// GetSnippet fetches a snippet by trigger.
func GetSnippet(ctx context.Context, db *gorm.DB, trigger string) (*domain.Snippet, error) {
	var s domain.Snippet
	err := db.WithContext(ctx).
		Where(map[string]any{"trigger": trigger}).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSnippet removes a snippet. It returns ErrNotFound if none matched.
func DeleteSnippet(ctx context.Context, db *gorm.DB, trigger string) error {
	res := db.WithContext(ctx).
		Where(map[string]any{"trigger": trigger}).
		Delete(&domain.Snippet{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListSnippets returns all snippets ordered by trigger.
func ListSnippets(ctx context.Context, db *gorm.DB) ([]domain.Snippet, error) {
	var out []domain.Snippet
	err := db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "trigger"}}).
		Find(&out).Error
	return out, err
}
