// Package domain models payment webhook ingestion: plan changes driven by an
// external billing provider, applied exactly once per event.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
)

var (
	// ErrEventAlreadyProcessed marks a webhook delivery that was applied before.
	ErrEventAlreadyProcessed = errors.New("payment event already processed")
	// ErrUnknownProduct means the event's product id is not in the plan catalog.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrUnknownAccount means the event references no registered user.
	ErrUnknownAccount = errors.New("unknown account")
)

// PaymentEvent records a processed webhook delivery. The unique event id is
// the idempotency key: redeliveries insert-conflict and are dropped.
type PaymentEvent struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	EventID   string       `gorm:"uniqueIndex;not null"`
	UserID    snowflake.ID `gorm:"not null;index"`
	ProductID string       `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (PaymentEvent) TableName() string { return "payment_events" }

// Event is one decoded webhook delivery.
type Event struct {
	EventID   string
	Email     string
	ProductID string
}

// Service applies payment events to user accounts.
type Service interface {
	Ingest(ctx context.Context, event Event) (*userdomain.User, error)
}
