package migration

import (
	billingdomain "github.com/inkwise/inkwise/internal/billing/domain"
	"github.com/inkwise/inkwise/internal/config"
	transcriptdomain "github.com/inkwise/inkwise/internal/transcript/domain"
	userdomain "github.com/inkwise/inkwise/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module runs schema setup on startup: versioned SQL migrations on postgres,
// AutoMigrate on the other dialects (dev and test databases).
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		return conn.AutoMigrate(
			&userdomain.User{},
			&transcriptdomain.Transcript{},
			&transcriptdomain.Message{},
			&billingdomain.PaymentEvent{},
		)
	}),
)
