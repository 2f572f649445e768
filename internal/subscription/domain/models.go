// Package domain contains persistence models and lifecycle rules for
// collection subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive         SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPendingPayment SubscriptionStatus = "PENDING_PAYMENT"
	SubscriptionStatusSuspended      SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusCancelled      SubscriptionStatus = "CANCELLED"
)

// PaymentStatus is the derived payment state of the current billing cycle.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

// Subscription captures a customer's recurring collection agreement.
type Subscription struct {
	ID                snowflake.ID       `gorm:"primaryKey"`
	CustomerID        snowflake.ID       `gorm:"not null;index"`
	PlanID            snowflake.ID       `gorm:"not null;index"`
	Status            SubscriptionStatus `gorm:"type:text;not null;index"`
	PaymentStatus     PaymentStatus      `gorm:"type:text;not null;default:'PENDING'"`
	BillingStartDate  time.Time          `gorm:"not null"`
	NextBillingDate   time.Time          `gorm:"not null;index"`
	GracePeriodEnd    *time.Time         `gorm:"index"`
	SuspendedAt       *time.Time         `gorm:""`
	CancelledAt       *time.Time         `gorm:""`
	ReactivatedAt     *time.Time         `gorm:""`
	BillingCycleCount int                `gorm:"not null;default:0"`
	Metadata          datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt         time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// forwardTransitions encodes the one-way lifecycle. Reactivation is the only
// path back out of SUSPENDED/CANCELLED and goes through the service's
// Reactivate operation, not TransitionSubscription.
var forwardTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive:         {SubscriptionStatusPendingPayment, SubscriptionStatusSuspended, SubscriptionStatusCancelled},
	SubscriptionStatusPendingPayment: {SubscriptionStatusActive, SubscriptionStatusSuspended, SubscriptionStatusCancelled},
	SubscriptionStatusSuspended:      {SubscriptionStatusCancelled},
	SubscriptionStatusCancelled:      {},
}

// CanTransition reports whether from -> to is a legal forward transition.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, allowed := range forwardTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether raw is a known subscription status.
func IsValidStatus(raw SubscriptionStatus) bool {
	switch raw {
	case SubscriptionStatusActive, SubscriptionStatusPendingPayment,
		SubscriptionStatusSuspended, SubscriptionStatusCancelled:
		return true
	}
	return false
}
