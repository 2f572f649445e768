package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/kolekta/internal/audit/domain"
	"github.com/smallbiznis/kolekta/internal/clock"
	"github.com/smallbiznis/kolekta/internal/config"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo        subscriptiondomain.Repository
	invoiceRepo invoicedomain.Repository
	pricing     *config.PricingHolder
	auditSvc    auditdomain.Service
	resetter    subscriptiondomain.ScheduleResetter
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Repo        subscriptiondomain.Repository
	InvoiceRepo invoicedomain.Repository
	Pricing     *config.PricingHolder
	AuditSvc    auditdomain.Service
	Resetter    subscriptiondomain.ScheduleResetter `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	resetter := p.Resetter
	if resetter == nil {
		resetter = subscriptiondomain.NoOpScheduleResetter{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscription.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		pricing:     p.Pricing,
		auditSvc:    p.AuditSvc,
		resetter:    resetter,
	}
}

func (s *Service) GetByID(ctx context.Context, subscriptionID string) (subscriptiondomain.Subscription, error) {
	id, err := s.parseID(subscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

// TransitionSubscription applies a forward-only lifecycle transition. The
// current status is re-checked in the UPDATE predicate, so a stale caller
// no-ops instead of overwriting a newer state.
func (s *Service) TransitionSubscription(ctx context.Context, subscriptionID string, target subscriptiondomain.SubscriptionStatus, reason subscriptiondomain.TransitionReason) error {
	id, err := s.parseID(subscriptionID)
	if err != nil {
		return err
	}
	if !subscriptiondomain.IsValidStatus(target) {
		return subscriptiondomain.ErrInvalidTargetStatus
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if current.Status == target {
			return nil
		}
		if !subscriptiondomain.CanTransition(current.Status, target) {
			return subscriptiondomain.ErrInvalidTransition
		}

		updated, err := s.repo.UpdateStatus(ctx, tx, id, current.Status, target, now)
		if err != nil {
			return err
		}
		if !updated {
			// lost the race to another writer; their transition stands
			return nil
		}

		_ = s.auditSvc.Record(ctx, tx, string(auditdomain.ActorTypeSystem), "subscription.transition", "subscription", id.String(), map[string]any{
			"from":   string(current.Status),
			"to":     string(target),
			"reason": string(reason),
		})
		return nil
	})
}

// ConfirmPayment is driven by external payment-confirmation events. A paid
// pending subscription becomes active; payment status flips to PAID either way.
func (s *Service) ConfirmPayment(ctx context.Context, subscriptionID string) error {
	id, err := s.parseID(subscriptionID)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		if current.Status == subscriptiondomain.SubscriptionStatusPendingPayment {
			if _, err := s.repo.UpdateStatus(ctx, tx, id, current.Status, subscriptiondomain.SubscriptionStatusActive, now); err != nil {
				return err
			}
		}
		return s.repo.UpdatePaymentStatus(ctx, tx, id, subscriptiondomain.PaymentStatusPaid, now)
	})
}

// Reactivate re-enters the lifecycle from SUSPENDED or CANCELLED. Recent
// cancellations resume on the standard path; cancellations older than the
// configured boundary take the enhanced path, which also archives stale
// unpaid invoices and resets external collection-schedule state so the
// customer restarts with a clean ledger.
func (s *Service) Reactivate(ctx context.Context, subscriptionID string) (subscriptiondomain.ReactivationResult, error) {
	id, err := s.parseID(subscriptionID)
	if err != nil {
		return subscriptiondomain.ReactivationResult{}, err
	}

	now := s.clock.Now()
	boundaryDays := s.pricing.Get().ReactivationEnhancedAfterDays
	if boundaryDays <= 0 {
		boundaryDays = config.DefaultPricingConfig().ReactivationEnhancedAfterDays
	}

	var result subscriptiondomain.ReactivationResult
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if current.Status != subscriptiondomain.SubscriptionStatusSuspended &&
			current.Status != subscriptiondomain.SubscriptionStatusCancelled {
			return subscriptiondomain.ErrNotReactivatable
		}

		path := subscriptiondomain.ReactivationPathStandard
		reference := current.CancelledAt
		if reference == nil {
			reference = current.SuspendedAt
		}
		if reference != nil && now.Sub(*reference) > time.Duration(boundaryDays)*24*time.Hour {
			path = subscriptiondomain.ReactivationPathEnhanced
		}

		archived := 0
		if path == subscriptiondomain.ReactivationPathEnhanced {
			archived, err = s.invoiceRepo.ArchiveUnpaidBySubscription(ctx, tx, id, now)
			if err != nil {
				return err
			}
		}

		if err := s.repo.MarkReactivated(ctx, tx, id, now, now); err != nil {
			return err
		}

		result = subscriptiondomain.ReactivationResult{
			SubscriptionID:   id.String(),
			Path:             path,
			ReactivatedAt:    now,
			ArchivedInvoices: archived,
		}
		return nil
	})
	if txErr != nil {
		return subscriptiondomain.ReactivationResult{}, txErr
	}

	if result.Path == subscriptiondomain.ReactivationPathEnhanced {
		if err := s.resetter.Reset(ctx, id.String()); err != nil {
			// schedule state lives outside the billing core; reactivation
			// itself has already committed
			s.log.Warn("collection schedule reset failed",
				zap.String("subscription_id", id.String()),
				zap.Error(err),
			)
		}
	}

	_ = s.auditSvc.Record(ctx, s.db, string(auditdomain.ActorTypeSystem), "subscription.reactivated", "subscription", id.String(), map[string]any{
		"path":              string(result.Path),
		"archived_invoices": result.ArchivedInvoices,
	})

	return result, nil
}

func (s *Service) parseID(raw string) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, subscriptiondomain.ErrInvalidSubscription
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, subscriptiondomain.ErrInvalidSubscription
	}
	return snowflake.ID(parsed), nil
}
