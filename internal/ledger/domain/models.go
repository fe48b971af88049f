// Package domain defines the credit ledger contract: gating and settlement of
// generation credits per plan tier.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
	"gorm.io/gorm"
)

var (
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrUserNotFound       = errors.New("user not found")
)

// Settlement is the ledger state after one settled generation.
type Settlement struct {
	UserID     snowflake.ID
	Tier       userdomain.PlanTier
	Credits    int64
	UsageCount int64
}

// Service applies plan-specific settlement rules.
//
// Settle takes an explicit db handle so finalization can run on a storage
// scope independent of the request that opened the stream.
type Service interface {
	CanConsume(user *userdomain.User) bool
	Settle(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Settlement, error)
}
