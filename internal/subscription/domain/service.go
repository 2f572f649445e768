package domain

import (
	"context"
	"errors"
	"time"
)

type TransitionReason string

// ReactivationPath distinguishes the two reactivation flows. Recently
// cancelled subscriptions resume on the standard path; long-elapsed ones take
// the enhanced path which also clears stale unpaid invoices.
type ReactivationPath string

const (
	ReactivationPathStandard ReactivationPath = "standard"
	ReactivationPathEnhanced ReactivationPath = "enhanced"
)

type ReactivationResult struct {
	SubscriptionID   string           `json:"subscription_id"`
	Path             ReactivationPath `json:"path"`
	ReactivatedAt    time.Time        `json:"reactivated_at"`
	ArchivedInvoices int              `json:"archived_invoices"`
}

type Service interface {
	GetByID(ctx context.Context, subscriptionID string) (Subscription, error)
	TransitionSubscription(ctx context.Context, subscriptionID string, target SubscriptionStatus, reason TransitionReason) error
	ConfirmPayment(ctx context.Context, subscriptionID string) error
	Reactivate(ctx context.Context, subscriptionID string) (ReactivationResult, error)
}

var (
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidTargetStatus  = errors.New("invalid_target_status")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrNotReactivatable     = errors.New("subscription_not_reactivatable")
	ErrMissingPlan          = errors.New("missing_plan")
)
