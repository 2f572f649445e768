package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/kolekta/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	log *zap.Logger
}

type ServiceParam struct {
	fx.In

	Log *zap.Logger
}

func NewService(p ServiceParam) ledgerdomain.Service {
	return &Service{
		log: p.Log.Named("ledger.service"),
	}
}

// ComputeBalance sums invoice amounts (debits) and the payments linked
// through those invoices (credits) for one customer. A customer with no
// invoices has balance 0.
func (s *Service) ComputeBalance(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (ledgerdomain.Balance, error) {
	type totals struct {
		TotalBilled float64 `gorm:"column:total_billed"`
		TotalPaid   float64 `gorm:"column:total_paid"`
	}

	var row totals
	err := db.WithContext(ctx).Raw(
		`SELECT
		   COALESCE((SELECT SUM(i.amount) FROM invoices i
		             WHERE i.customer_id = ? AND i.status <> 'VOID'), 0) AS total_billed,
		   COALESCE((SELECT SUM(p.amount) FROM payments p
		             JOIN invoices i ON i.id = p.invoice_id
		             WHERE i.customer_id = ? AND i.status <> 'VOID'), 0) AS total_paid`,
		customerID, customerID,
	).Scan(&row).Error
	if err != nil {
		return ledgerdomain.Balance{}, err
	}

	if row.TotalBilled < 0 || row.TotalPaid < 0 {
		s.log.Error("ledger components out of range",
			zap.String("customer_id", customerID.String()),
			zap.Float64("total_billed", row.TotalBilled),
			zap.Float64("total_paid", row.TotalPaid),
		)
		return ledgerdomain.Balance{}, ledgerdomain.ErrBalanceIntegrity
	}

	return ledgerdomain.Balance{
		Balance:     row.TotalBilled - row.TotalPaid,
		TotalBilled: row.TotalBilled,
		TotalPaid:   row.TotalPaid,
	}, nil
}
