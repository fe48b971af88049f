package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/inkwise/inkwise/internal/ledger/domain"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log *zap.Logger
}

type Service struct {
	log *zap.Logger
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		log: p.Log.Named("ledger.service"),
	}
}

// CanConsume is the pre-flight gate: flexible users always pass, metered users
// need a positive balance. Advisory only; Settle is the authoritative check.
func (s *Service) CanConsume(user *userdomain.User) bool {
	if user == nil {
		return false
	}
	if !user.PlanTier.Metered() {
		return true
	}
	return user.Credits > 0
}

// Settle records exactly one completed generation. Metered tiers decrement the
// balance with a conditional update so concurrent settlements can never drive
// it below zero; the loser gets ErrInsufficientCredit and no mutation.
// Flexible tiers increment the usage counter unconditionally.
func (s *Service) Settle(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*ledgerdomain.Settlement, error) {
	tier, err := s.loadTier(ctx, db, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if tier.Metered() {
		res := db.WithContext(ctx).Exec(
			`UPDATE users SET credits = credits - 1, updated_at = ? WHERE id = ? AND credits > 0`,
			now, userID,
		)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ledgerdomain.ErrInsufficientCredit
		}
	} else {
		res := db.WithContext(ctx).Exec(
			`UPDATE users SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?`,
			now, userID,
		)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ledgerdomain.ErrUserNotFound
		}
	}

	return s.snapshot(ctx, db, userID, tier)
}

func (s *Service) loadTier(ctx context.Context, db *gorm.DB, userID snowflake.ID) (userdomain.PlanTier, error) {
	var user userdomain.User
	err := db.WithContext(ctx).Select("id", "plan_tier").First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ledgerdomain.ErrUserNotFound
		}
		return "", err
	}
	return user.PlanTier, nil
}

func (s *Service) snapshot(ctx context.Context, db *gorm.DB, userID snowflake.ID, tier userdomain.PlanTier) (*ledgerdomain.Settlement, error) {
	var user userdomain.User
	if err := db.WithContext(ctx).Select("id", "credits", "usage_count").First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &ledgerdomain.Settlement{
		UserID:     userID,
		Tier:       tier,
		Credits:    user.Credits,
		UsageCount: user.UsageCount,
	}, nil
}
