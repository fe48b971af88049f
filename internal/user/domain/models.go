// Package domain contains the user record and its persistence contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PlanTier is the subscription level controlling credit semantics.
type PlanTier string

const (
	TierFree     PlanTier = "free"
	TierStarter  PlanTier = "starter"
	TierPro      PlanTier = "pro"
	TierFlexible PlanTier = "flexible"
)

// Metered reports whether the tier gates generations on a credit balance.
// The flexible tier counts usage instead and is billed out-of-band.
func (t PlanTier) Metered() bool {
	return t != TierFlexible
}

func ParseTier(raw string) (PlanTier, bool) {
	switch PlanTier(raw) {
	case TierFree, TierStarter, TierPro, TierFlexible:
		return PlanTier(raw), true
	default:
		return "", false
	}
}

// User is the account plus credit-ledger record.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Email        string       `gorm:"uniqueIndex;not null"`
	PasswordHash string       `gorm:"not null"`
	PlanTier     PlanTier     `gorm:"type:text;not null;default:'free'"`
	Credits      int64        `gorm:"not null;default:0"`
	UsageCount   int64        `gorm:"not null;default:0"`
	CreatedAt    time.Time    `gorm:"not null"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	Update(ctx context.Context, db *gorm.DB, user *User) error
}

type Service interface {
	Register(ctx context.Context, email, password string) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	GetByID(ctx context.Context, id snowflake.ID) (*User, error)
	UpdateProfile(ctx context.Context, id snowflake.ID, email, password string) (*User, error)
}
