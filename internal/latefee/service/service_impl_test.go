package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/kolekta/internal/audit/domain"
	auditservice "github.com/smallbiznis/kolekta/internal/audit/service"
	"github.com/smallbiznis/kolekta/internal/clock"
	"github.com/smallbiznis/kolekta/internal/config"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	latefeedomain "github.com/smallbiznis/kolekta/internal/latefee/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type lateFeeFixture struct {
	db    *gorm.DB
	svc   latefeedomain.Service
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newLateFeeFixture(t *testing.T, start time.Time) *lateFeeFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&invoicedomain.Invoice{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(start)
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.ServiceParam{
		DB: db, Log: log, GenID: node,
	})
	svc := NewService(ServiceParam{
		DB:       db,
		Log:      log,
		Clock:    fakeClock,
		Pricing:  config.NewStaticPricingHolder(config.DefaultPricingConfig()),
		AuditSvc: auditSvc,
	})
	return &lateFeeFixture{db: db, svc: svc, clock: fakeClock, node: node}
}

func (f *lateFeeFixture) seedInvoice(t *testing.T, dueDate time.Time, status invoicedomain.InvoiceStatus) snowflake.ID {
	t.Helper()
	now := f.clock.Now()
	id := f.node.Generate()
	invoice := invoicedomain.Invoice{
		ID:             id,
		InvoiceNumber:  "INV-" + id.String(),
		SubscriptionID: f.node.Generate(),
		CustomerID:     f.node.Generate(),
		InvoiceType:    invoicedomain.InvoiceTypeSubscription,
		Status:         status,
		OriginalAmount: 199,
		Amount:         199,
		DueDate:        dueDate,
		GeneratedDate:  dueDate.AddDate(0, 0, -7),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)
	return id
}

func (f *lateFeeFixture) loadInvoice(t *testing.T, id snowflake.ID) invoicedomain.Invoice {
	t.Helper()
	var invoice invoicedomain.Invoice
	require.NoError(t, f.db.Raw(`SELECT * FROM invoices WHERE id = ?`, id).Scan(&invoice).Error)
	return invoice
}

func TestProcessLateFees_AppliesOncePastGrace(t *testing.T) {
	now := time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC)
	f := newLateFeeFixture(t, now)

	// due Jan 8, grace ended Jan 15
	id := f.seedInvoice(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusOverdue)

	result, err := f.svc.ProcessLateFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 50.0, result.TotalFeesApplied)

	invoice := f.loadInvoice(t, id)
	assert.True(t, invoice.LateFeeApplied)
	assert.Equal(t, 50.0, invoice.LateFeeAmount)
	assert.Equal(t, 249.0, invoice.Amount)
}

func TestProcessLateFees_SecondRunIsNoOp(t *testing.T) {
	now := time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC)
	f := newLateFeeFixture(t, now)
	id := f.seedInvoice(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusOverdue)
	ctx := context.Background()

	first, err := f.svc.ProcessLateFees(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.ProcessedCount)

	second, err := f.svc.ProcessLateFees(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ProcessedCount)
	assert.Equal(t, 0.0, second.TotalFeesApplied)

	// the fee itself must not compound
	invoice := f.loadInvoice(t, id)
	assert.Equal(t, 249.0, invoice.Amount)
	assert.Equal(t, 50.0, invoice.LateFeeAmount)
}

func TestProcessLateFees_WithinGraceUntouched(t *testing.T) {
	now := time.Date(2025, 1, 12, 8, 0, 0, 0, time.UTC)
	f := newLateFeeFixture(t, now)

	// due Jan 8, grace runs to Jan 15
	id := f.seedInvoice(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusOverdue)

	result, err := f.svc.ProcessLateFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.False(t, f.loadInvoice(t, id).LateFeeApplied)
}

func TestProcessLateFees_PaidInvoicesExcluded(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	f := newLateFeeFixture(t, now)

	id := f.seedInvoice(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusPaid)

	result, err := f.svc.ProcessLateFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ProcessedCount)
	assert.False(t, f.loadInvoice(t, id).LateFeeApplied)
}

func TestApplyFee_SkipsInvoiceSettledMeanwhile(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	f := newLateFeeFixture(t, now)

	// the batch SELECT may have seen this invoice as overdue before a
	// payment landed; the write predicate has to catch it
	id := f.seedInvoice(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusPaid)

	impl, ok := f.svc.(*Service)
	require.True(t, ok)
	applied, err := impl.applyFee(context.Background(), id, 50, now)
	require.NoError(t, err)
	assert.False(t, applied)

	invoice := f.loadInvoice(t, id)
	assert.False(t, invoice.LateFeeApplied)
	assert.Equal(t, 199.0, invoice.Amount)
}

func TestProcessLateFees_RecordsAuditTrail(t *testing.T) {
	now := time.Date(2025, 1, 20, 8, 0, 0, 0, time.UTC)
	f := newLateFeeFixture(t, now)
	f.seedInvoice(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusOverdue)

	_, err := f.svc.ProcessLateFees(context.Background())
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(*) FROM audit_logs WHERE action = ?`, "invoice.late_fee_applied",
	).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEligibility_Views(t *testing.T) {
	now := time.Date(2025, 1, 12, 8, 0, 0, 0, time.UTC)
	f := newLateFeeFixture(t, now)
	ctx := context.Background()

	within := f.seedInvoice(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusOverdue)
	view, err := f.svc.Eligibility(ctx, within.String())
	require.NoError(t, err)
	assert.False(t, view.Eligible)
	assert.Equal(t, "within_grace_period", view.Reason)
	assert.Greater(t, view.DaysUntilEligible, 0)

	past := f.seedInvoice(t, time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusOverdue)
	view, err = f.svc.Eligibility(ctx, past.String())
	require.NoError(t, err)
	assert.True(t, view.Eligible)
	assert.Equal(t, "past_grace_period", view.Reason)
	assert.Greater(t, view.DaysOverdue, 0)

	paid := f.seedInvoice(t, time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusPaid)
	view, err = f.svc.Eligibility(ctx, paid.String())
	require.NoError(t, err)
	assert.False(t, view.Eligible)
	assert.Equal(t, "invoice_status_paid", view.Reason)

	_, err = f.svc.Eligibility(ctx, "999999999")
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestEligibility_AlreadyApplied(t *testing.T) {
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	f := newLateFeeFixture(t, now)
	ctx := context.Background()

	id := f.seedInvoice(t, time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), invoicedomain.InvoiceStatusOverdue)
	_, err := f.svc.ProcessLateFees(ctx)
	require.NoError(t, err)

	view, err := f.svc.Eligibility(ctx, id.String())
	require.NoError(t, err)
	assert.False(t, view.Eligible)
	assert.Equal(t, "late_fee_already_applied", view.Reason)
}
