package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE id = ? LIMIT 1`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).
		Raw(`SELECT * FROM subscriptions WHERE id = ? LIMIT 1 FOR UPDATE`, id).
		Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

// UpdateStatus re-checks the expected current status in the UPDATE predicate
// so concurrent sweeps no-op instead of double-applying a transition.
// Suspension and cancellation timestamps are set only when currently null.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to subscriptiondomain.SubscriptionStatus, now time.Time) (bool, error) {
	var result *gorm.DB
	switch to {
	case subscriptiondomain.SubscriptionStatusSuspended:
		result = db.WithContext(ctx).Exec(
			`UPDATE subscriptions
			 SET status = ?,
			     suspended_at = COALESCE(suspended_at, ?),
			     updated_at = ?
			 WHERE id = ? AND status = ?`,
			to, now, now, id, from,
		)
	case subscriptiondomain.SubscriptionStatusCancelled:
		result = db.WithContext(ctx).Exec(
			`UPDATE subscriptions
			 SET status = ?,
			     cancelled_at = COALESCE(cancelled_at, ?),
			     updated_at = ?
			 WHERE id = ? AND status = ?`,
			to, now, now, id, from,
		)
	default:
		result = db.WithContext(ctx).Exec(
			`UPDATE subscriptions
			 SET status = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			to, now, id, from,
		)
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status subscriptiondomain.PaymentStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET payment_status = ?, updated_at = ? WHERE id = ?`,
		status, now, id,
	).Error
}

// MarkReactivated starts a fresh lifecycle: pending payment, new billing
// start, and the prior suspension/cancellation markers cleared.
func (r *repo) MarkReactivated(ctx context.Context, db *gorm.DB, id snowflake.ID, billingStart time.Time, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?,
		     payment_status = ?,
		     billing_start_date = ?,
		     next_billing_date = ?,
		     grace_period_end = NULL,
		     suspended_at = NULL,
		     cancelled_at = NULL,
		     reactivated_at = ?,
		     updated_at = ?
		 WHERE id = ?`,
		subscriptiondomain.SubscriptionStatusPendingPayment,
		subscriptiondomain.PaymentStatusPending,
		billingStart, billingStart, now, now, id,
	).Error
}
