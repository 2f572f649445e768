// Package scheduler runs the daily lifecycle sweep: overdue marking,
// suspension, cancellation, invoice generation, billing-date advancement and
// late fees, in a fixed order with idempotent write predicates.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/kolekta/internal/audit/domain"
	"github.com/smallbiznis/kolekta/internal/clock"
	"github.com/smallbiznis/kolekta/internal/config"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	latefeedomain "github.com/smallbiznis/kolekta/internal/latefee/domain"
	obsmetrics "github.com/smallbiznis/kolekta/internal/observability/metrics"
	"github.com/smallbiznis/kolekta/internal/providers/notify"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig       = errors.New("invalid_scheduler_config")
	ErrSweepAlreadyRunning = errors.New("sweep_already_running")
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	InvoiceSvc      invoicedomain.Service
	LateFeeSvc      latefeedomain.Service
	SubscriptionSvc subscriptiondomain.Service
	AuditSvc        auditdomain.Service
	Notifier        notify.Notifier `optional:"true"`
	GenID           *snowflake.Node
	Clock           clock.Clock
	Pricing         *config.PricingHolder
	Config          Config `optional:"true"`
}

type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	genID *snowflake.Node
	clock clock.Clock

	invoiceSvc      invoicedomain.Service
	lateFeeSvc      latefeedomain.Service
	subscriptionSvc subscriptiondomain.Service
	auditSvc        auditdomain.Service
	notifier        notify.Notifier
	pricing         *config.PricingHolder

	// running guards against overlapping sweeps in this process; the
	// write-time predicates below are the second line of defense.
	running atomic.Bool
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.InvoiceSvc == nil || p.LateFeeSvc == nil ||
		p.SubscriptionSvc == nil || p.AuditSvc == nil || p.GenID == nil ||
		p.Clock == nil || p.Pricing == nil {
		return nil, ErrInvalidConfig
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		invoiceSvc:      p.InvoiceSvc,
		lateFeeSvc:      p.LateFeeSvc,
		subscriptionSvc: p.SubscriptionSvc,
		auditSvc:        p.AuditSvc,
		notifier:        notifier,
		pricing:         p.Pricing,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(run)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(run)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// a timed-out stage is retried whole on the next sweep; its
		// predicates make the retry safe
		schedMetrics.IncJobTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes the full sweep in its fixed stage order. Safe to invoke
// manually at any time; a second concurrent call is rejected.
func (s *Scheduler) RunOnce(parent context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSweepAlreadyRunning
	}
	defer s.running.Store(false)

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"mark_overdue_invoices", s.MarkOverdueInvoicesJob},
		{"suspend_overdue_subscriptions", s.SuspendOverdueSubscriptionsJob},
		{"cancel_long_suspended", s.CancelLongSuspendedJob},
		{"generate_invoices", s.GenerateInvoicesJob},
		{"advance_billing_dates", s.AdvanceBillingDatesJob},
		{"process_late_fees", s.ProcessLateFeesJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		name := job.Name
		run := job.Run
		err = errors.Join(err, s.runJob(parent, name, run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// MarkOverdueInvoicesJob flips unpaid past-due invoices to OVERDUE and stamps
// the owning subscription's grace window (due date + grace period) if not
// already set. OVERDUE is non-terminal; the invoice stays payable.
func (s *Scheduler) MarkOverdueInvoicesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "mark_overdue_invoices")
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}
	now := s.clock.Now()
	graceDays := s.pricing.Get().GracePeriodDays
	if graceDays <= 0 {
		graceDays = config.DefaultPricingConfig().GracePeriodDays
	}

	var jobErr error
	afterID := snowflake.ID(0)
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		invoices, err := s.fetchOverdueCandidates(ctx, now, afterID, s.cfg.BatchSize)
		if err != nil {
			s.logJobError(run, "scheduler.fetch.failed", err)
			return errors.Join(jobErr, err)
		}
		if len(invoices) == 0 {
			break
		}

		for _, invoice := range invoices {
			afterID = invoice.ID
			graceEnd := invoice.DueDate.AddDate(0, 0, graceDays)
			var updated bool
			txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				result := tx.Exec(
					`UPDATE invoices SET status = ?, updated_at = ?
					 WHERE id = ? AND status = ?`,
					invoicedomain.InvoiceStatusOverdue, now,
					invoice.ID, invoicedomain.InvoiceStatusUnpaid,
				)
				if result.Error != nil {
					return result.Error
				}
				if result.RowsAffected == 0 {
					return nil
				}
				updated = true
				run.AddProcessed(1)
				return tx.Exec(
					`UPDATE subscriptions
					 SET grace_period_end = COALESCE(grace_period_end, ?), updated_at = ?
					 WHERE id = ?`,
					graceEnd, now, invoice.SubscriptionID,
				).Error
			})
			if txErr != nil {
				jobErr = errors.Join(jobErr, txErr)
				s.logJobError(run, "scheduler.invoice.mark_overdue.failed", txErr,
					zap.String("invoice_id", invoice.ID.String()),
				)
				continue
			}
			if !updated {
				continue
			}
			s.emitAuditEvent(ctx, "invoice.marked_overdue", "invoice", invoice.ID.String(), map[string]any{
				"subscription_id":  invoice.SubscriptionID.String(),
				"due_date":         invoice.DueDate,
				"grace_period_end": graceEnd,
			})
		}
	}

	obsmetrics.Scheduler().AddItemsProcessed("mark_overdue_invoices", "invoices", run.processedCount)
	return jobErr
}

// SuspendOverdueSubscriptionsJob suspends active subscriptions whose grace
// window has closed.
func (s *Scheduler) SuspendOverdueSubscriptionsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "suspend_overdue_subscriptions")
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}
	now := s.clock.Now()

	var jobErr error
	afterID := snowflake.ID(0)
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		subscriptions, err := s.fetchSuspensionCandidates(ctx, now, afterID, s.cfg.BatchSize)
		if err != nil {
			s.logJobError(run, "scheduler.fetch.failed", err)
			return errors.Join(jobErr, err)
		}
		if len(subscriptions) == 0 {
			break
		}

		for _, subscription := range subscriptions {
			afterID = subscription.ID
			err := s.subscriptionSvc.TransitionSubscription(ctx, subscription.ID.String(),
				subscriptiondomain.SubscriptionStatusSuspended,
				subscriptiondomain.TransitionReason("scheduler:grace_period_elapsed"))
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logJobError(run, "scheduler.subscription.suspend.failed", err,
					zap.String("subscription_id", subscription.ID.String()),
				)
				continue
			}
			run.AddProcessed(1)
			s.notifyBestEffort(ctx, subscription.CustomerID, notify.TemplateSuspensionNotice, map[string]any{
				"subscription_id": subscription.ID.String(),
			})
		}
	}

	obsmetrics.Scheduler().AddItemsProcessed("suspend_overdue_subscriptions", "subscriptions", run.processedCount)
	return jobErr
}

// CancelLongSuspendedJob cancels subscriptions suspended longer than the
// configured threshold.
func (s *Scheduler) CancelLongSuspendedJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "cancel_long_suspended")
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}
	now := s.clock.Now()
	thresholdDays := s.pricing.Get().CancelAfterSuspendedDays
	if thresholdDays <= 0 {
		thresholdDays = config.DefaultPricingConfig().CancelAfterSuspendedDays
	}
	cutoff := now.AddDate(0, 0, -thresholdDays)

	var jobErr error
	afterID := snowflake.ID(0)
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		subscriptions, err := s.fetchCancellationCandidates(ctx, cutoff, afterID, s.cfg.BatchSize)
		if err != nil {
			s.logJobError(run, "scheduler.fetch.failed", err)
			return errors.Join(jobErr, err)
		}
		if len(subscriptions) == 0 {
			break
		}

		for _, subscription := range subscriptions {
			afterID = subscription.ID
			err := s.subscriptionSvc.TransitionSubscription(ctx, subscription.ID.String(),
				subscriptiondomain.SubscriptionStatusCancelled,
				subscriptiondomain.TransitionReason("scheduler:suspension_expired"))
			if err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logJobError(run, "scheduler.subscription.cancel.failed", err,
					zap.String("subscription_id", subscription.ID.String()),
				)
				continue
			}
			run.AddProcessed(1)
			s.notifyBestEffort(ctx, subscription.CustomerID, notify.TemplateCancellationFinal, map[string]any{
				"subscription_id": subscription.ID.String(),
			})
		}
	}

	obsmetrics.Scheduler().AddItemsProcessed("cancel_long_suspended", "subscriptions", run.processedCount)
	return jobErr
}

// GenerateInvoicesJob delegates to the invoice generator's monthly batch.
func (s *Scheduler) GenerateInvoicesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "generate_invoices")
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	result, err := s.invoiceSvc.GenerateMonthly(ctx)
	run.AddProcessed(len(result.Created))
	for range result.Errors {
		run.IncError()
	}
	obsmetrics.Scheduler().AddItemsProcessed("generate_invoices", "invoices", len(result.Created))
	if err != nil {
		s.logJobError(run, "scheduler.invoice.generate.failed", err)
		return err
	}
	return nil
}

// AdvanceBillingDatesJob rolls next_billing_date forward one month for active
// subscriptions whose date has arrived. The prior date is part of the UPDATE
// predicate, so a re-run after partial failure cannot double-advance.
func (s *Scheduler) AdvanceBillingDatesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "advance_billing_dates")
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}
	now := s.clock.Now()

	var jobErr error
	afterID := snowflake.ID(0)
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		subscriptions, err := s.fetchBillingDateCandidates(ctx, now, afterID, s.cfg.BatchSize)
		if err != nil {
			s.logJobError(run, "scheduler.fetch.failed", err)
			return errors.Join(jobErr, err)
		}
		if len(subscriptions) == 0 {
			break
		}

		for _, subscription := range subscriptions {
			afterID = subscription.ID
			next := subscription.NextBillingDate.AddDate(0, 1, 0)
			result := s.db.WithContext(ctx).Exec(
				`UPDATE subscriptions
				 SET next_billing_date = ?,
				     billing_cycle_count = billing_cycle_count + 1,
				     payment_status = ?,
				     updated_at = ?
				 WHERE id = ? AND status = ? AND next_billing_date = ?`,
				next, subscriptiondomain.PaymentStatusPending, now,
				subscription.ID, subscriptiondomain.SubscriptionStatusActive,
				subscription.NextBillingDate,
			)
			if result.Error != nil {
				jobErr = errors.Join(jobErr, result.Error)
				s.logJobError(run, "scheduler.subscription.advance.failed", result.Error,
					zap.String("subscription_id", subscription.ID.String()),
				)
				continue
			}
			if result.RowsAffected > 0 {
				run.AddProcessed(1)
			}
		}
	}

	obsmetrics.Scheduler().AddItemsProcessed("advance_billing_dates", "subscriptions", run.processedCount)
	return jobErr
}

// ProcessLateFeesJob delegates to the late-fee engine.
func (s *Scheduler) ProcessLateFeesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "process_late_fees")
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	result, err := s.lateFeeSvc.ProcessLateFees(ctx)
	run.AddProcessed(result.ProcessedCount)
	for range result.Errors {
		run.IncError()
	}
	obsmetrics.Scheduler().AddItemsProcessed("process_late_fees", "invoices", result.ProcessedCount)
	if err != nil {
		s.logJobError(run, "scheduler.latefee.failed", err)
		return err
	}
	return nil
}

func (s *Scheduler) notifyBestEffort(ctx context.Context, customerID snowflake.ID, kind notify.TemplateKind, payload map[string]any) {
	if err := s.notifier.Notify(ctx, customerID.String(), kind, payload); err != nil {
		s.log.Warn("notification failed",
			zap.String("customer_id", customerID.String()),
			zap.String("template", string(kind)),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) emitAuditEvent(ctx context.Context, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, s.db, string(auditdomain.ActorTypeSystem), action, targetType, targetID, metadata)
}
