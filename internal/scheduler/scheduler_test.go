package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	auditdomain "github.com/smallbiznis/kolekta/internal/audit/domain"
	auditservice "github.com/smallbiznis/kolekta/internal/audit/service"
	"github.com/smallbiznis/kolekta/internal/clock"
	"github.com/smallbiznis/kolekta/internal/config"
	customerdomain "github.com/smallbiznis/kolekta/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/kolekta/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/kolekta/internal/invoice/service"
	latefeeservice "github.com/smallbiznis/kolekta/internal/latefee/service"
	ledgerservice "github.com/smallbiznis/kolekta/internal/ledger/service"
	obsmetrics "github.com/smallbiznis/kolekta/internal/observability/metrics"
	plandomain "github.com/smallbiznis/kolekta/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/kolekta/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/kolekta/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/kolekta/internal/subscription/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type schedulerFixture struct {
	db        *gorm.DB
	scheduler *Scheduler
	clock     *clock.FakeClock
	node      *snowflake.Node
}

func newSchedulerFixture(t *testing.T, start time.Time) *schedulerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	// sqlite has no row locks; strip the clause so the shared repositories work
	stripForUpdate := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(strings.ReplaceAll(sql, "FOR UPDATE", ""))
		}
	}
	if err := db.Callback().Query().Before("gorm:query").Register("sqlite_no_for_update", stripForUpdate); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	if err := db.Callback().Row().Before("gorm:row").Register("sqlite_no_for_update_row", stripForUpdate); err != nil {
		t.Fatalf("register row callback: %v", err)
	}

	if err := db.AutoMigrate(
		&customerdomain.Customer{},
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&invoicedomain.Invoice{},
		&invoicedomain.Payment{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)
	obsmetrics.ResetSchedulerMetricsForTest()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fakeClock := clock.NewFakeClock(start)
	log := zap.NewNop()
	pricing := config.NewStaticPricingHolder(config.DefaultPricingConfig())

	auditSvc := auditservice.NewService(auditservice.ServiceParam{
		DB: db, Log: log, GenID: node,
	})
	ledgerSvc := ledgerservice.NewService(ledgerservice.ServiceParam{Log: log})
	subscriptionRepo := subscriptionrepository.Provide()
	invoiceRepo := invoicerepository.Provide()
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fakeClock,
		Repo:        subscriptionRepo,
		InvoiceRepo: invoiceRepo,
		Pricing:     pricing,
		AuditSvc:    auditSvc,
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            fakeClock,
		Repo:             invoiceRepo,
		SubscriptionRepo: subscriptionRepo,
		LedgerSvc:        ledgerSvc,
	})
	lateFeeSvc := latefeeservice.NewService(latefeeservice.ServiceParam{
		DB:       db,
		Log:      log,
		Clock:    fakeClock,
		Pricing:  pricing,
		AuditSvc: auditSvc,
	})

	sched, err := New(Params{
		DB:              db,
		Log:             log,
		InvoiceSvc:      invoiceSvc,
		LateFeeSvc:      lateFeeSvc,
		SubscriptionSvc: subscriptionSvc,
		AuditSvc:        auditSvc,
		GenID:           node,
		Clock:           fakeClock,
		Pricing:         pricing,
		Config:          Config{BatchSize: 10},
	})
	if err != nil {
		t.Fatalf("New scheduler: %v", err)
	}

	return &schedulerFixture{db: db, scheduler: sched, clock: fakeClock, node: node}
}

func (f *schedulerFixture) seedActiveSubscription(t *testing.T, start time.Time) snowflake.ID {
	t.Helper()

	customerID := f.node.Generate()
	if err := f.db.Exec(
		`INSERT INTO customers (id, name, mobile, address, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		customerID, "Rosa Dalisay", "09171234567", "14 Mabini St", start, start,
	).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	planID := f.node.Generate()
	if err := f.db.Exec(
		`INSERT INTO plans (id, code, name, price, billing_frequency, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		planID, "residential-monthly", "Residential Monthly", 199.0,
		plandomain.BillingFrequencyMonthly, true, start, start,
	).Error; err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	subID := f.node.Generate()
	if err := f.db.Exec(
		`INSERT INTO subscriptions
		 (id, customer_id, plan_id, status, payment_status, billing_start_date,
		  next_billing_date, billing_cycle_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subID, customerID, planID,
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.PaymentStatusPending,
		start, start, 0, start, start,
	).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return subID
}

func (f *schedulerFixture) loadSubscription(t *testing.T, id snowflake.ID) subscriptiondomain.Subscription {
	t.Helper()
	var sub subscriptiondomain.Subscription
	if err := f.db.Raw(`SELECT * FROM subscriptions WHERE id = ?`, id).Scan(&sub).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	return sub
}

func (f *schedulerFixture) loadInvoices(t *testing.T, subID snowflake.ID) []invoicedomain.Invoice {
	t.Helper()
	var invoices []invoicedomain.Invoice
	if err := f.db.Raw(
		`SELECT * FROM invoices WHERE subscription_id = ? ORDER BY id`, subID,
	).Scan(&invoices).Error; err != nil {
		t.Fatalf("load invoices: %v", err)
	}
	return invoices
}

// runDay executes the sweep twice at the same instant; every stage must be a
// no-op the second time.
func (f *schedulerFixture) runDay(t *testing.T, ctx context.Context) {
	t.Helper()
	if err := f.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce at %v: %v", f.clock.Now(), err)
	}
	if err := f.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce at %v: %v", f.clock.Now(), err)
	}
}

func TestScheduler_FullLifecycle_FakeClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, start)
	subID := f.seedActiveSubscription(t, start)
	ctx := context.Background()

	// Day 0: cycle invoice generated, billing date advanced.
	f.runDay(t, ctx)

	invoices := f.loadInvoices(t, subID)
	if len(invoices) != 1 {
		t.Fatalf("expected 1 invoice after first sweep, got %d", len(invoices))
	}
	inv := invoices[0]
	if inv.Status != invoicedomain.InvoiceStatusUnpaid {
		t.Fatalf("expected UNPAID invoice, got %s", inv.Status)
	}
	if inv.Amount != 199 {
		t.Fatalf("expected invoice amount 199, got %v", inv.Amount)
	}
	wantDue := start.AddDate(0, 0, 7)
	if !inv.DueDate.Equal(wantDue) {
		t.Fatalf("expected due date %v, got %v", wantDue, inv.DueDate)
	}

	sub := f.loadSubscription(t, subID)
	if !sub.NextBillingDate.Equal(start.AddDate(0, 1, 0)) {
		t.Fatalf("expected next billing date %v, got %v", start.AddDate(0, 1, 0), sub.NextBillingDate)
	}
	if sub.BillingCycleCount != 1 {
		t.Fatalf("expected billing cycle count 1, got %d", sub.BillingCycleCount)
	}
	if sub.GracePeriodEnd != nil {
		t.Fatalf("grace period should not start before the invoice is overdue")
	}

	// Day 8 (Jan 9): past due, invoice flips to OVERDUE and the grace window
	// is stamped. Subscription stays ACTIVE through the grace period.
	for f.clock.Now().Before(start.AddDate(0, 0, 8)) {
		f.clock.Advance(24 * time.Hour)
		f.runDay(t, ctx)
	}

	inv = f.loadInvoices(t, subID)[0]
	if inv.Status != invoicedomain.InvoiceStatusOverdue {
		t.Fatalf("expected OVERDUE invoice on day 8, got %s", inv.Status)
	}
	if inv.LateFeeApplied {
		t.Fatal("late fee must not apply inside the grace period")
	}
	sub = f.loadSubscription(t, subID)
	if sub.Status != subscriptiondomain.SubscriptionStatusActive {
		t.Fatalf("expected ACTIVE during grace period, got %s", sub.Status)
	}
	if sub.GracePeriodEnd == nil || !sub.GracePeriodEnd.Equal(wantDue.AddDate(0, 0, 7)) {
		t.Fatalf("expected grace period end %v, got %v", wantDue.AddDate(0, 0, 7), sub.GracePeriodEnd)
	}

	// Day 15 (Jan 16): grace elapsed. Suspension and the one-time late fee
	// land on the same sweep.
	for f.clock.Now().Before(start.AddDate(0, 0, 15)) {
		f.clock.Advance(24 * time.Hour)
		f.runDay(t, ctx)
	}

	sub = f.loadSubscription(t, subID)
	if sub.Status != subscriptiondomain.SubscriptionStatusSuspended {
		t.Fatalf("expected SUSPENDED after grace period, got %s", sub.Status)
	}
	if sub.SuspendedAt == nil {
		t.Fatal("expected suspended_at to be set")
	}
	inv = f.loadInvoices(t, subID)[0]
	if !inv.LateFeeApplied {
		t.Fatal("expected late fee after grace period")
	}
	if inv.Amount != 249 {
		t.Fatalf("expected amount 249 after late fee, got %v", inv.Amount)
	}
	if inv.LateFeeAmount != 50 {
		t.Fatalf("expected late fee amount 50, got %v", inv.LateFeeAmount)
	}

	// Through Feb 20: no new invoices while suspended; cancellation fires 30
	// days after suspension.
	for f.clock.Now().Before(start.AddDate(0, 0, 50)) {
		f.clock.Advance(24 * time.Hour)
		f.runDay(t, ctx)
	}

	sub = f.loadSubscription(t, subID)
	if sub.Status != subscriptiondomain.SubscriptionStatusCancelled {
		t.Fatalf("expected CANCELLED 30 days after suspension, got %s", sub.Status)
	}
	if sub.CancelledAt == nil {
		t.Fatal("expected cancelled_at to be set")
	}
	invoices = f.loadInvoices(t, subID)
	if len(invoices) != 1 {
		t.Fatalf("suspended subscription must not accrue invoices, got %d", len(invoices))
	}
	if invoices[0].Amount != 249 {
		t.Fatalf("late fee must apply exactly once, amount %v", invoices[0].Amount)
	}
}

func TestScheduler_PaidInvoiceNeverPenalized(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, start)
	subID := f.seedActiveSubscription(t, start)
	ctx := context.Background()

	f.runDay(t, ctx)
	inv := f.loadInvoices(t, subID)[0]

	// Pay in full before the due date.
	payID := f.node.Generate()
	now := f.clock.Now()
	if err := f.db.Exec(
		`INSERT INTO payments (id, invoice_id, amount, method, reference, paid_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payID, inv.ID, inv.Amount, "gcash", "REF123456789", now, now,
	).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	if err := f.db.Exec(
		`UPDATE invoices SET status = ? WHERE id = ?`,
		invoicedomain.InvoiceStatusPaid, inv.ID,
	).Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	for f.clock.Now().Before(start.AddDate(0, 0, 20)) {
		f.clock.Advance(24 * time.Hour)
		f.runDay(t, ctx)
	}

	inv = f.loadInvoices(t, subID)[0]
	if inv.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("paid invoice must stay PAID, got %s", inv.Status)
	}
	if inv.LateFeeApplied {
		t.Fatal("paid invoice must never receive a late fee")
	}
	sub := f.loadSubscription(t, subID)
	if sub.Status != subscriptiondomain.SubscriptionStatusActive {
		t.Fatalf("paid subscription must stay ACTIVE, got %s", sub.Status)
	}
}

func TestScheduler_RunOnce_RejectsOverlap(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, start)

	f.scheduler.running.Store(true)
	err := f.scheduler.RunOnce(context.Background())
	if err != ErrSweepAlreadyRunning {
		t.Fatalf("expected ErrSweepAlreadyRunning, got %v", err)
	}
	f.scheduler.running.Store(false)

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce after release: %v", err)
	}
}

func TestScheduler_DisabledJobSkipped(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, start)
	subID := f.seedActiveSubscription(t, start)
	f.scheduler.cfg.EnabledJobs = []string{"mark_overdue_invoices"}

	if err := f.scheduler.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if invoices := f.loadInvoices(t, subID); len(invoices) != 0 {
		t.Fatalf("generate_invoices is disabled, expected 0 invoices, got %d", len(invoices))
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}
