package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-modmail/internal/domain"
	"github.com/tbourn/go-modmail/internal/platform"
	"github.com/tbourn/go-modmail/internal/repo"
)

// BlockService keeps users from opening threads, optionally for a limited
// time.
type BlockService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewBlockService constructs a BlockService.
func NewBlockService(db *gorm.DB) *BlockService {
	return &BlockService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *BlockService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// Block blocks user. A zero d blocks indefinitely; blocking an already
// blocked user replaces the previous block.
func (s *BlockService) Block(ctx context.Context, user platform.User, blockedBy string, d time.Duration) (*domain.BlockedUser, error) {
	now := s.now()
	b := &domain.BlockedUser{
		UserID:    user.ID,
		UserName:  user.Username,
		BlockedAt: now,
	}
	if blockedBy != "" {
		b.BlockedBy = &blockedBy
	}
	if d > 0 {
		exp := now.Add(d)
		b.ExpiresAt = &exp
	}
	if err := repo.BlockUser(ctx, s.DB, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Unblock lifts the user's block. It reports false if there was none.
func (s *BlockService) Unblock(ctx context.Context, userID string) (bool, error) {
	err := repo.UnblockUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Get returns the block in effect for userID, or nil if there is none.
// An expired block that the sweeper has not removed yet counts as none.
func (s *BlockService) Get(ctx context.Context, userID string) (*domain.BlockedUser, error) {
	b, err := repo.GetBlock(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !b.Active(s.now()) {
		return nil, nil
	}
	return b, nil
}

// IsBlocked reports whether userID is blocked right now.
func (s *BlockService) IsBlocked(ctx context.Context, userID string) (bool, error) {
	return repo.IsBlocked(ctx, s.DB, userID, s.now())
}

// ExpireBlocks removes every block whose expiry has passed and returns them.
func (s *BlockService) ExpireBlocks(ctx context.Context) ([]domain.BlockedUser, error) {
	due, err := repo.ListExpiredBlocks(ctx, s.DB, s.now())
	if err != nil {
		return nil, err
	}
	out := due[:0]
	for _, b := range due {
		if err := repo.UnblockUser(ctx, s.DB, b.UserID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return out, err
		}
		log.Info().Str("user_id", b.UserID).Msg("block expired")
		out = append(out, b)
	}
	return out, nil
}
