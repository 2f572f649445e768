package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kolekta/internal/clock"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/kolekta/internal/ledger/domain"
	"github.com/smallbiznis/kolekta/internal/providers/notify"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// defaultPaymentTermDays is how long after generation an invoice falls due.
const defaultPaymentTermDays = 7

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo             invoicedomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	ledgerSvc        ledgerdomain.Service
	notifier         notify.Notifier
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Repo             invoicedomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	LedgerSvc        ledgerdomain.Service
	Notifier         notify.Notifier `optional:"true"`
}

func NewService(p ServiceParam) invoicedomain.Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("invoice.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		ledgerSvc:        p.LedgerSvc,
		notifier:         notifier,
	}
}

func (s *Service) GetByID(ctx context.Context, invoiceID string) (invoicedomain.Invoice, error) {
	id, err := parseID(invoiceID, invoicedomain.ErrInvalidInvoice)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

// Create persists one credit-aware invoice. The subscription row is locked
// for the duration of the transaction so the balance read and the insert are
// a single-writer section: two concurrent creations must not both consume
// the same credit.
func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	customerID, err := parseID(req.CustomerID, invoicedomain.ErrInvalidInvoice)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	subscriptionID, err := parseID(req.SubscriptionID, invoicedomain.ErrInvalidInvoice)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if req.BaseAmount < 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	var invoice invoicedomain.Invoice
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.lockSubscription(ctx, tx, subscriptionID); err != nil {
			return err
		}
		created, err := s.createInTx(ctx, tx, customerID, subscriptionID, req.BaseAmount, req.DueDate, req.Metadata, now)
		if err != nil {
			return err
		}
		invoice = created
		return nil
	})
	if txErr != nil {
		return invoicedomain.Invoice{}, txErr
	}

	s.notifyGenerated(ctx, invoice)
	return invoice, nil
}

// lockSubscription claims the subscription row for the transaction. Every
// writer that reads the customer balance before inserting an invoice goes
// through this lock, so credit application is serialized per subscription.
func (s *Service) lockSubscription(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	sub, err := s.subscriptionRepo.FindByIDForUpdate(ctx, tx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *Service) createInTx(
	ctx context.Context,
	tx *gorm.DB,
	customerID, subscriptionID snowflake.ID,
	baseAmount float64,
	dueDate time.Time,
	metadata map[string]any,
	now time.Time,
) (invoicedomain.Invoice, error) {
	balance, err := s.ledgerSvc.ComputeBalance(ctx, tx, customerID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	creditApplied := 0.0
	if balance.Balance < 0 {
		creditApplied = -balance.Balance
		if creditApplied > baseAmount {
			creditApplied = baseAmount
		}
	}

	finalAmount := baseAmount - creditApplied
	if finalAmount < 0 {
		// arithmetic above cannot go below zero; if it does, the ledger is
		// corrupt and the invoice must not be written
		s.log.Error("computed invoice amount below zero",
			zap.String("customer_id", customerID.String()),
			zap.Float64("base_amount", baseAmount),
			zap.Float64("credit_applied", creditApplied),
		)
		return invoicedomain.Invoice{}, invoicedomain.ErrNegativeInvoiceAmount
	}

	status := invoicedomain.InvoiceStatusUnpaid
	meta := datatypes.JSONMap{}
	for k, v := range metadata {
		meta[k] = v
	}
	if finalAmount == 0 {
		// fully covered by credit: settled at creation, kept on record
		status = invoicedomain.InvoiceStatusPaid
		meta["settled_by_credit"] = true
	}
	if creditApplied > 0 {
		meta["credit_applied"] = creditApplied
	}

	if dueDate.IsZero() {
		dueDate = now.AddDate(0, 0, defaultPaymentTermDays)
	}

	id := s.genID.Generate()
	invoice := invoicedomain.Invoice{
		ID:             id,
		InvoiceNumber:  fmt.Sprintf("INV-%s", id.String()),
		SubscriptionID: subscriptionID,
		CustomerID:     customerID,
		InvoiceType:    invoicedomain.InvoiceTypeSubscription,
		Status:         status,
		OriginalAmount: baseAmount,
		CreditApplied:  creditApplied,
		Amount:         finalAmount,
		DueDate:        dueDate,
		GeneratedDate:  now,
		Metadata:       meta,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
		return invoicedomain.Invoice{}, err
	}
	return invoice, nil
}

// billableSubscription is one row of the monthly batch query. Plan columns
// are nullable so a dangling plan reference surfaces as a skip, not an abort.
type billableSubscription struct {
	ID               snowflake.ID
	CustomerID       snowflake.ID
	PlanID           snowflake.ID
	PlanPrice        *float64
	BillingFrequency *string
}

// GenerateMonthly creates the cycle invoice for every eligible subscription.
// Eligibility and the duplicate guard are both re-checked inside each
// per-subscription transaction, so overlapping runs no-op per item.
func (s *Service) GenerateMonthly(ctx context.Context) (invoicedomain.GenerateMonthlyResult, error) {
	now := s.clock.Now()
	result := invoicedomain.GenerateMonthlyResult{}

	var subs []billableSubscription
	err := s.db.WithContext(ctx).Raw(
		`SELECT s.id, s.customer_id, s.plan_id,
		        p.price AS plan_price, p.billing_frequency
		 FROM subscriptions s
		 LEFT JOIN plans p ON p.id = s.plan_id
		 WHERE s.status = ?
		   AND s.billing_start_date <= ?
		   AND s.next_billing_date <= ?
		 ORDER BY s.id`,
		subscriptiondomain.SubscriptionStatusActive,
		now, now,
	).Scan(&subs).Error
	if err != nil {
		return result, err
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if sub.PlanPrice == nil || sub.BillingFrequency == nil {
			s.log.Warn("subscription missing plan data, skipped",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("plan_id", sub.PlanID.String()),
			)
			result.Skipped++
			result.Errors = append(result.Errors, invoicedomain.BatchError{
				SubscriptionID: sub.ID.String(),
				Reason:         "missing_plan",
			})
			continue
		}
		if !strings.EqualFold(*sub.BillingFrequency, "MONTHLY") {
			result.Skipped++
			continue
		}

		var invoice invoicedomain.Invoice
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := s.lockSubscription(ctx, tx, sub.ID); err != nil {
				return err
			}
			// re-checked under the row lock: a concurrent run that won the
			// lock has already committed its invoice by the time this reads
			open, err := s.repo.HasOpenForSubscription(ctx, tx, sub.ID, now)
			if err != nil {
				return err
			}
			if open {
				return invoicedomain.ErrDuplicateInvoice
			}
			created, err := s.createInTx(ctx, tx, sub.CustomerID, sub.ID, *sub.PlanPrice, time.Time{}, map[string]any{
				"source": "monthly_batch",
			}, now)
			if err != nil {
				return err
			}
			invoice = created
			return nil
		})
		if txErr != nil {
			if txErr == invoicedomain.ErrDuplicateInvoice {
				result.Skipped++
				continue
			}
			s.log.Warn("monthly invoice generation failed for subscription",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(txErr),
			)
			result.Errors = append(result.Errors, invoicedomain.BatchError{
				SubscriptionID: sub.ID.String(),
				Reason:         txErr.Error(),
			})
			continue
		}

		result.Created = append(result.Created, invoice)
		s.notifyGenerated(ctx, invoice)
	}

	return result, nil
}

// ApplyPayment records a payment and rolls the invoice (and its
// subscription's payment state) forward.
func (s *Service) ApplyPayment(ctx context.Context, invoiceID string, req invoicedomain.ApplyPaymentRequest) (invoicedomain.Payment, error) {
	id, err := parseID(invoiceID, invoicedomain.ErrInvalidInvoice)
	if err != nil {
		return invoicedomain.Payment{}, err
	}
	if req.Amount <= 0 {
		return invoicedomain.Payment{}, invoicedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	var payment invoicedomain.Payment
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		switch invoice.Status {
		case invoicedomain.InvoiceStatusUnpaid,
			invoicedomain.InvoiceStatusPartiallyPaid,
			invoicedomain.InvoiceStatusOverdue:
		default:
			return invoicedomain.ErrInvoiceNotPayable
		}

		payment = invoicedomain.Payment{
			ID:        s.genID.Generate(),
			InvoiceID: invoice.ID,
			Amount:    req.Amount,
			Method:    req.Method,
			Reference: req.Reference,
			PaidAt:    now,
			CreatedAt: now,
		}
		if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
			return err
		}

		paidTotal, err := s.repo.SumPayments(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}

		status := invoicedomain.InvoiceStatusPartiallyPaid
		if paidTotal >= invoice.Amount {
			status = invoicedomain.InvoiceStatusPaid
		}
		if err := s.repo.UpdateStatus(ctx, tx, invoice.ID, status, now); err != nil {
			return err
		}

		if status == invoicedomain.InvoiceStatusPaid {
			if err := s.subscriptionRepo.UpdatePaymentStatus(ctx, tx, invoice.SubscriptionID, subscriptiondomain.PaymentStatusPaid, now); err != nil {
				return err
			}
			// a pending subscription becomes active once its invoice clears
			if _, err := s.subscriptionRepo.UpdateStatus(ctx, tx, invoice.SubscriptionID,
				subscriptiondomain.SubscriptionStatusPendingPayment,
				subscriptiondomain.SubscriptionStatusActive, now); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return invoicedomain.Payment{}, txErr
	}
	return payment, nil
}

func (s *Service) notifyGenerated(ctx context.Context, invoice invoicedomain.Invoice) {
	err := s.notifier.Notify(ctx, invoice.CustomerID.String(), notify.TemplateInvoiceGenerated, map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"amount":         invoice.Amount,
		"due_date":       invoice.DueDate.Format(time.RFC3339),
	})
	if err != nil {
		s.log.Warn("invoice notification failed",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err),
		)
	}
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, invalid
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, invalid
	}
	return snowflake.ID(parsed), nil
}
