package migration

import (
	"fmt"

	auditdomain "github.com/smallbiznis/kolekta/internal/audit/domain"
	"github.com/smallbiznis/kolekta/internal/config"
	customerdomain "github.com/smallbiznis/kolekta/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	plandomain "github.com/smallbiznis/kolekta/internal/plan/domain"
	"github.com/smallbiznis/kolekta/internal/seed"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
	verificationdomain "github.com/smallbiznis/kolekta/internal/verification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

// Run applies the schema and seeds the default plan. Postgres uses the
// embedded SQL migrations; other dialects fall back to gorm automigration
// so local sqlite setups keep working without a migration toolchain.
func Run(cfg config.Config, conn *gorm.DB, log *zap.Logger) error {
	if cfg.DBType == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return fmt.Errorf("resolve sql handle: %w", err)
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
	} else {
		err := conn.AutoMigrate(
			&customerdomain.Customer{},
			&plandomain.Plan{},
			&subscriptiondomain.Subscription{},
			&invoicedomain.Invoice{},
			&invoicedomain.Payment{},
			&verificationdomain.PaymentProofSubmission{},
			&auditdomain.AuditLog{},
		)
		if err != nil {
			return fmt.Errorf("automigrate schema: %w", err)
		}
		// mysql has no partial indexes; there the in-transaction guard is
		// the only duplicate defense
		if conn.Dialector.Name() == "sqlite" {
			err := conn.Exec(
				`CREATE UNIQUE INDEX IF NOT EXISTS uq_invoices_open_subscription
				 ON invoices (subscription_id)
				 WHERE status IN ('UNPAID', 'OVERDUE') AND invoice_type = 'subscription'`,
			).Error
			if err != nil {
				return fmt.Errorf("create open-invoice index: %w", err)
			}
		}
	}

	if err := seed.EnsureDefaultPlan(conn); err != nil {
		return fmt.Errorf("seed default plan: %w", err)
	}

	log.Info("database schema is up to date")
	return nil
}
