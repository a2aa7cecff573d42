package services

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"gorm.io/gorm"

	"github.com/tbourn/go-modmail/internal/domain"
	"github.com/tbourn/go-modmail/internal/repo"
)

// SnippetService manages stored reply templates.
type SnippetService struct {
	DB *gorm.DB
}

// NewSnippetService constructs a SnippetService.
func NewSnippetService(db *gorm.DB) *SnippetService {
	return &SnippetService{DB: db}
}

func normalizeTrigger(trigger string) (string, error) {
	trigger = strings.ToLower(strings.TrimSpace(trigger))
	if trigger == "" || strings.IndexFunc(trigger, unicode.IsSpace) >= 0 {
		return "", ErrInvalidTrigger
	}
	return trigger, nil
}

// Add stores a new snippet. Triggers are case-insensitive.
func (s *SnippetService) Add(ctx context.Context, trigger, body, createdBy string) (*domain.Snippet, error) {
	trigger, err := normalizeTrigger(trigger)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyReply
	}
	sn := &domain.Snippet{Trigger: trigger, Body: body}
	if createdBy != "" {
		sn.CreatedBy = &createdBy
	}
	if err := repo.CreateSnippet(ctx, s.DB, sn); err != nil {
		if repo.IsUniqueViolation(err) {
			return nil, ErrSnippetExists
		}
		return nil, err
	}
	return sn, nil
}

// Get returns the snippet for trigger or ErrSnippetNotFound.
func (s *SnippetService) Get(ctx context.Context, trigger string) (*domain.Snippet, error) {
	trigger, err := normalizeTrigger(trigger)
	if err != nil {
		return nil, ErrSnippetNotFound
	}
	sn, err := repo.GetSnippet(ctx, s.DB, trigger)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSnippetNotFound
	}
	return sn, err
}

// Delete removes the snippet for trigger.
func (s *SnippetService) Delete(ctx context.Context, trigger string) error {
	trigger, err := normalizeTrigger(trigger)
	if err != nil {
		return ErrSnippetNotFound
	}
	err = repo.DeleteSnippet(ctx, s.DB, trigger)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSnippetNotFound
	}
	return err
}

// List returns all snippets ordered by trigger.
func (s *SnippetService) List(ctx context.Context) ([]domain.Snippet, error) {
	return repo.ListSnippets(ctx, s.DB)
}

// Render looks up trigger and substitutes args into its body.
func (s *SnippetService) Render(ctx context.Context, trigger string, args []string) (string, error) {
	sn, err := s.Get(ctx, trigger)
	if err != nil {
		return "", err
	}
	return RenderSnippet(sn.Body, args), nil
}
