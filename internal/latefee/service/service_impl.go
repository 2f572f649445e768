package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/kolekta/internal/audit/domain"
	"github.com/smallbiznis/kolekta/internal/clock"
	"github.com/smallbiznis/kolekta/internal/config"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	latefeedomain "github.com/smallbiznis/kolekta/internal/latefee/domain"
	"github.com/smallbiznis/kolekta/internal/providers/notify"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	pricing  *config.PricingHolder
	auditSvc auditdomain.Service
	notifier notify.Notifier
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock

	Pricing  *config.PricingHolder
	AuditSvc auditdomain.Service
	Notifier notify.Notifier `optional:"true"`
}

func NewService(p ServiceParam) latefeedomain.Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("latefee.service"),
		clock:    p.Clock,
		pricing:  p.Pricing,
		auditSvc: p.AuditSvc,
		notifier: notifier,
	}
}

type lateInvoiceRow struct {
	ID         snowflake.ID
	CustomerID snowflake.ID
	DueDate    time.Time
}

// ProcessLateFees applies the configured fee to every unpaid subscription
// invoice past its grace period, exactly once per invoice. The
// late_fee_applied flag is re-checked inside the UPDATE predicate, so
// repeated or overlapping runs no-op instead of double-charging.
func (s *Service) ProcessLateFees(ctx context.Context) (latefeedomain.Result, error) {
	cfg := s.pricing.Get()
	fee := cfg.LateFeeAmount
	graceDays := cfg.GracePeriodDays
	if fee <= 0 {
		fee = config.DefaultPricingConfig().LateFeeAmount
	}
	if graceDays <= 0 {
		graceDays = config.DefaultPricingConfig().GracePeriodDays
	}

	now := s.clock.Now()
	cutoff := now.AddDate(0, 0, -graceDays)
	result := latefeedomain.Result{}

	var rows []lateInvoiceRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, customer_id, due_date
		 FROM invoices
		 WHERE status IN (?, ?)
		   AND invoice_type = ?
		   AND due_date < ?
		   AND late_fee_applied = ?
		 ORDER BY due_date ASC`,
		invoicedomain.InvoiceStatusUnpaid,
		invoicedomain.InvoiceStatusOverdue,
		invoicedomain.InvoiceTypeSubscription,
		cutoff,
		false,
	).Scan(&rows).Error
	if err != nil {
		return result, err
	}

	var jobErr error
	for _, row := range rows {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		applied, err := s.applyFee(ctx, row.ID, fee, now)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			result.Errors = append(result.Errors, latefeedomain.BatchError{
				InvoiceID: row.ID.String(),
				Reason:    err.Error(),
			})
			continue
		}
		if !applied {
			// another run got this invoice first, or it was paid in the
			// meantime
			continue
		}

		result.ProcessedCount++
		result.TotalFeesApplied += fee

		// best-effort: a failed notification never rolls back the fee
		if err := s.notifier.Notify(ctx, row.CustomerID.String(), notify.TemplateLateFeeApplied, map[string]any{
			"invoice_id": row.ID.String(),
			"fee":        fee,
		}); err != nil {
			s.log.Warn("late fee notification failed",
				zap.String("invoice_id", row.ID.String()),
				zap.Error(err),
			)
		}
	}

	return result, jobErr
}

func (s *Service) applyFee(ctx context.Context, invoiceID snowflake.ID, fee float64, now time.Time) (bool, error) {
	var applied bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE invoices
			 SET late_fee_applied = ?,
			     late_fee_amount = ?,
			     amount = amount + ?,
			     updated_at = ?
			 WHERE id = ? AND late_fee_applied = ? AND status IN (?, ?)`,
			true, fee, fee, now, invoiceID, false,
			invoicedomain.InvoiceStatusUnpaid, invoicedomain.InvoiceStatusOverdue,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		applied = true
		return s.auditSvc.Record(ctx, tx, string(auditdomain.ActorTypeSystem), "invoice.late_fee_applied", "invoice", invoiceID.String(), map[string]any{
			"fee":        fee,
			"applied_at": now.Format(time.RFC3339),
		})
	})
	return applied, err
}

// Eligibility is a pure read for administrative inspection; it never mutates.
func (s *Service) Eligibility(ctx context.Context, invoiceID string) (latefeedomain.Eligibility, error) {
	trimmed := strings.TrimSpace(invoiceID)
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return latefeedomain.Eligibility{}, invoicedomain.ErrInvalidInvoice
	}

	var invoice invoicedomain.Invoice
	if err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ? LIMIT 1`, snowflake.ID(parsed),
	).Scan(&invoice).Error; err != nil {
		return latefeedomain.Eligibility{}, err
	}
	if invoice.ID == 0 {
		return latefeedomain.Eligibility{}, invoicedomain.ErrInvoiceNotFound
	}

	if invoice.LateFeeApplied {
		return latefeedomain.Eligibility{
			Eligible: false,
			Reason:   "late_fee_already_applied",
		}, nil
	}
	switch invoice.Status {
	case invoicedomain.InvoiceStatusUnpaid, invoicedomain.InvoiceStatusOverdue:
	default:
		return latefeedomain.Eligibility{
			Eligible: false,
			Reason:   fmt.Sprintf("invoice_status_%s", strings.ToLower(string(invoice.Status))),
		}, nil
	}

	graceDays := s.pricing.Get().GracePeriodDays
	if graceDays <= 0 {
		graceDays = config.DefaultPricingConfig().GracePeriodDays
	}

	now := s.clock.Now()
	eligibleAt := invoice.DueDate.AddDate(0, 0, graceDays)
	if now.After(eligibleAt) {
		return latefeedomain.Eligibility{
			Eligible:    true,
			Reason:      "past_grace_period",
			DaysOverdue: int(now.Sub(invoice.DueDate).Hours() / 24),
		}, nil
	}
	return latefeedomain.Eligibility{
		Eligible:          false,
		Reason:            "within_grace_period",
		DaysUntilEligible: int(eligibleAt.Sub(now).Hours()/24) + 1,
	}, nil
}
