package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/inkwise/inkwise/internal/billing/domain"
	"github.com/inkwise/inkwise/internal/config"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
	"github.com/inkwise/inkwise/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Scopes  *db.ScopeFactory
	GenID   *snowflake.Node
	Users   userdomain.Repository
	Catalog *config.PlanCatalogHolder
}

type Service struct {
	log     *zap.Logger
	scopes  *db.ScopeFactory
	genID   *snowflake.Node
	users   userdomain.Repository
	catalog *config.PlanCatalogHolder
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		log:     p.Log.Named("billing.service"),
		scopes:  p.Scopes,
		genID:   p.GenID,
		users:   p.Users,
		catalog: p.Catalog,
	}
}

// Ingest applies one payment event: switch the account to the purchased plan
// and reset its ledger to the plan's starting state. The event record and the
// account update commit together, so a crash cannot apply a plan change twice
// or mark an unapplied event as processed.
func (s *Service) Ingest(ctx context.Context, event billingdomain.Event) (*userdomain.User, error) {
	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		return nil, billingdomain.ErrEventAlreadyProcessed
	}

	plan, ok := s.catalog.FindByProduct(strings.TrimSpace(event.ProductID))
	if !ok {
		return nil, billingdomain.ErrUnknownProduct
	}
	tier, ok := userdomain.ParseTier(plan.Tier)
	if !ok {
		return nil, billingdomain.ErrUnknownProduct
	}

	scope, err := s.scopes.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	user, err := s.users.FindByEmail(ctx, scope.DB(), strings.ToLower(strings.TrimSpace(event.Email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, billingdomain.ErrUnknownAccount
	}

	record := &billingdomain.PaymentEvent{
		ID:        s.genID.Generate(),
		EventID:   eventID,
		UserID:    user.ID,
		ProductID: plan.ProductID,
		CreatedAt: time.Now().UTC(),
	}
	if err := scope.DB().WithContext(ctx).Create(record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, billingdomain.ErrEventAlreadyProcessed
		}
		return nil, err
	}

	user.PlanTier = tier
	if tier.Metered() {
		user.Credits = plan.Allotment
	} else {
		user.Credits = 0
		user.UsageCount = 0
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, scope.DB(), user); err != nil {
		return nil, err
	}
	if err := scope.Commit(); err != nil {
		return nil, err
	}

	s.log.Info("payment event applied",
		zap.String("event_id", eventID),
		zap.Int64("user_id", int64(user.ID)),
		zap.String("tier", string(tier)),
		zap.Int64("credits", user.Credits),
	)
	return user, nil
}
