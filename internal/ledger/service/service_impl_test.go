package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/inkwise/inkwise/internal/ledger/domain"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T) (ledgerdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&userdomain.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	return NewService(Params{Log: zap.NewNop()}), db, node
}

func seedUser(t *testing.T, db *gorm.DB, node *snowflake.Node, tier userdomain.PlanTier, credits int64) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           node.Generate(),
		Email:        fmt.Sprintf("%s@example.com", node.Generate()),
		PasswordHash: "x",
		PlanTier:     tier,
		Credits:      credits,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user.ID
}

func TestSettleDecrementsMeteredBalance(t *testing.T) {
	svc, db, node := setupLedger(t)
	userID := seedUser(t, db, node, userdomain.TierFree, 10)

	settlement, err := svc.Settle(context.Background(), db, userID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settlement.Credits != 9 {
		t.Fatalf("expected balance 9, got %d", settlement.Credits)
	}
}

func TestSettleRejectsAtZeroWithoutMutation(t *testing.T) {
	svc, db, node := setupLedger(t)
	userID := seedUser(t, db, node, userdomain.TierPro, 0)

	_, err := svc.Settle(context.Background(), db, userID)
	if !errors.Is(err, ledgerdomain.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}

	var user userdomain.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if user.Credits != 0 {
		t.Fatalf("balance mutated on rejected settle: %d", user.Credits)
	}
}

func TestSettleExhaustsBalanceExactly(t *testing.T) {
	svc, db, node := setupLedger(t)
	userID := seedUser(t, db, node, userdomain.TierFree, 10)

	for i := 0; i < 10; i++ {
		if _, err := svc.Settle(context.Background(), db, userID); err != nil {
			t.Fatalf("settle %d: %v", i+1, err)
		}
	}

	_, err := svc.Settle(context.Background(), db, userID)
	if !errors.Is(err, ledgerdomain.ErrInsufficientCredit) {
		t.Fatalf("11th settle should fail, got %v", err)
	}
}

func TestSettleFlexibleIncrementsUsage(t *testing.T) {
	svc, db, node := setupLedger(t)
	userID := seedUser(t, db, node, userdomain.TierFlexible, 0)

	for i := int64(1); i <= 3; i++ {
		settlement, err := svc.Settle(context.Background(), db, userID)
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if settlement.UsageCount != i {
			t.Fatalf("expected usage %d, got %d", i, settlement.UsageCount)
		}
	}
}

func TestSettleConcurrentAtBalanceOne(t *testing.T) {
	svc, db, node := setupLedger(t)
	userID := seedUser(t, db, node, userdomain.TierStarter, 1)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Settle(context.Background(), db, userID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledgerdomain.ErrInsufficientCredit):
			insufficient++
		default:
			t.Fatalf("unexpected settle error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("expected exactly one success past balance 1, got ok=%d insufficient=%d", ok, insufficient)
	}

	var user userdomain.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if user.Credits != 0 {
		t.Fatalf("expected balance 0, got %d", user.Credits)
	}
}

func TestSettleUnknownUser(t *testing.T) {
	svc, db, node := setupLedger(t)

	_, err := svc.Settle(context.Background(), db, node.Generate())
	if !errors.Is(err, ledgerdomain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
