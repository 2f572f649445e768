package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
)

// WorkSubscription is the slim row claimed by sweep stages.
type WorkSubscription struct {
	ID                snowflake.ID
	CustomerID        snowflake.ID
	Status            subscriptiondomain.SubscriptionStatus
	GracePeriodEnd    *time.Time
	SuspendedAt       *time.Time
	NextBillingDate   time.Time
	BillingCycleCount int
}

// WorkInvoice is the slim invoice row claimed by the overdue stage.
type WorkInvoice struct {
	ID             snowflake.ID
	SubscriptionID snowflake.ID
	CustomerID     snowflake.ID
	DueDate        time.Time
}

// fetchOverdueCandidates pages through unpaid invoices past their due date.
// afterID keeps the scan strictly forward so rows that fail to transition
// cannot wedge the loop.
func (s *Scheduler) fetchOverdueCandidates(ctx context.Context, now time.Time, afterID snowflake.ID, limit int) ([]WorkInvoice, error) {
	var invoices []WorkInvoice
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, customer_id, due_date
		 FROM invoices
		 WHERE status = ?
		   AND due_date < ?
		   AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		invoicedomain.InvoiceStatusUnpaid,
		now, afterID, limit,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Scheduler) fetchSuspensionCandidates(ctx context.Context, now time.Time, afterID snowflake.ID, limit int) ([]WorkSubscription, error) {
	var subscriptions []WorkSubscription
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, customer_id, status, grace_period_end, suspended_at, next_billing_date, billing_cycle_count
		 FROM subscriptions
		 WHERE status = ?
		   AND grace_period_end IS NOT NULL
		   AND grace_period_end < ?
		   AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		subscriptiondomain.SubscriptionStatusActive,
		now, afterID, limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (s *Scheduler) fetchCancellationCandidates(ctx context.Context, cutoff time.Time, afterID snowflake.ID, limit int) ([]WorkSubscription, error) {
	var subscriptions []WorkSubscription
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, customer_id, status, grace_period_end, suspended_at, next_billing_date, billing_cycle_count
		 FROM subscriptions
		 WHERE status = ?
		   AND suspended_at IS NOT NULL
		   AND suspended_at < ?
		   AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		subscriptiondomain.SubscriptionStatusSuspended,
		cutoff, afterID, limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (s *Scheduler) fetchBillingDateCandidates(ctx context.Context, now time.Time, afterID snowflake.ID, limit int) ([]WorkSubscription, error) {
	var subscriptions []WorkSubscription
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, customer_id, status, grace_period_end, suspended_at, next_billing_date, billing_cycle_count
		 FROM subscriptions
		 WHERE status = ?
		   AND next_billing_date <= ?
		   AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		subscriptiondomain.SubscriptionStatusActive,
		now, afterID, limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
