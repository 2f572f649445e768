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
	"github.com/smallbiznis/kolekta/internal/providers/ocr"
	verificationdomain "github.com/smallbiznis/kolekta/internal/verification/domain"
	verificationrepository "github.com/smallbiznis/kolekta/internal/verification/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) ExtractText(ctx context.Context, imageRef string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

type appliedPayment struct {
	invoiceID string
	req       invoicedomain.ApplyPaymentRequest
}

type stubInvoiceSvc struct {
	invoice invoicedomain.Invoice
	applied []appliedPayment
}

func (s *stubInvoiceSvc) GetByID(ctx context.Context, invoiceID string) (invoicedomain.Invoice, error) {
	return s.invoice, nil
}

func (s *stubInvoiceSvc) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

func (s *stubInvoiceSvc) GenerateMonthly(ctx context.Context) (invoicedomain.GenerateMonthlyResult, error) {
	return invoicedomain.GenerateMonthlyResult{}, nil
}

func (s *stubInvoiceSvc) ApplyPayment(ctx context.Context, invoiceID string, req invoicedomain.ApplyPaymentRequest) (invoicedomain.Payment, error) {
	s.applied = append(s.applied, appliedPayment{invoiceID: invoiceID, req: req})
	return invoicedomain.Payment{Amount: req.Amount}, nil
}

func newVerificationService(t *testing.T, extractor ocr.TextExtractor, invoiceSvc invoicedomain.Service) (verificationdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&verificationdomain.PaymentProofSubmission{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC))

	svc := NewService(ServiceParam{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fakeClock,
		Repo:       verificationrepository.Provide(),
		InvoiceSvc: invoiceSvc,
		Extractor:  extractor,
		Pricing:    config.NewStaticPricingHolder(config.DefaultPricingConfig()),
		AuditSvc: auditservice.NewService(auditservice.ServiceParam{
			DB: db, Log: log, GenID: node,
		}),
	})
	return svc, db, node
}

func submitProof(t *testing.T, svc verificationdomain.Service, node *snowflake.Node, invoiceID string) verificationdomain.PaymentProofSubmission {
	t.Helper()
	submission, err := svc.Submit(context.Background(), verificationdomain.SubmitProofRequest{
		SubscriptionID: node.Generate().String(),
		CustomerID:     node.Generate().String(),
		InvoiceID:      invoiceID,
		ClaimedAmount:  199,
		ImageRef:       "uploads/proof-001.jpg",
	})
	require.NoError(t, err)
	require.Equal(t, verificationdomain.VerificationStatusPending, submission.VerificationStatus)
	return submission
}

const verifiableReceipt = `GCash
Sent to BARANGAY COLLECTIONS
0900 000 0000
Amount ₱199.00
Ref No. 0012345678901
Feb 1, 2025 9:00 AM`

func TestVerifySubmission_AutoVerifyAppliesPayment(t *testing.T) {
	invoiceID := snowflake.ID(1111).String()
	invoiceSvc := &stubInvoiceSvc{invoice: invoicedomain.Invoice{Amount: 199}}
	svc, _, node := newVerificationService(t, &stubExtractor{text: verifiableReceipt}, invoiceSvc)

	submission := submitProof(t, svc, node, invoiceID)

	outcome, err := svc.VerifySubmission(context.Background(), submission.ID.String())
	require.NoError(t, err)
	assert.Equal(t, verificationdomain.VerificationStatusAutoVerified, outcome.Status)
	assert.Equal(t, 100, outcome.Confidence)
	assert.True(t, outcome.IsValid)

	require.Len(t, invoiceSvc.applied, 1)
	assert.Equal(t, invoiceID, invoiceSvc.applied[0].invoiceID)
	assert.Equal(t, 199.0, invoiceSvc.applied[0].req.Amount)
	assert.Equal(t, "gcash", invoiceSvc.applied[0].req.Method)
	assert.Equal(t, "0012345678901", invoiceSvc.applied[0].req.Reference)

	stored, err := svc.GetByID(context.Background(), submission.ID.String())
	require.NoError(t, err)
	assert.Equal(t, verificationdomain.VerificationStatusAutoVerified, stored.VerificationStatus)
	assert.NotNil(t, stored.ResolvedAt)
}

func TestVerifySubmission_ResolvedExactlyOnce(t *testing.T) {
	invoiceSvc := &stubInvoiceSvc{invoice: invoicedomain.Invoice{Amount: 199}}
	svc, _, node := newVerificationService(t, &stubExtractor{text: verifiableReceipt}, invoiceSvc)
	submission := submitProof(t, svc, node, "")

	_, err := svc.VerifySubmission(context.Background(), submission.ID.String())
	require.NoError(t, err)

	_, err = svc.VerifySubmission(context.Background(), submission.ID.String())
	assert.ErrorIs(t, err, verificationdomain.ErrSubmissionResolved)
}

func TestVerifySubmission_ExtractionFailureRoutesToReview(t *testing.T) {
	invoiceSvc := &stubInvoiceSvc{}
	extractor := &stubExtractor{err: &ocr.ExtractionError{ImageRef: "uploads/proof-001.jpg", Timeout: true}}
	svc, _, node := newVerificationService(t, extractor, invoiceSvc)
	submission := submitProof(t, svc, node, "")

	outcome, err := svc.VerifySubmission(context.Background(), submission.ID.String())
	require.NoError(t, err, "extraction failure must not surface as a hard error")
	assert.Equal(t, verificationdomain.VerificationStatusNeedsReview, outcome.Status)
	assert.Empty(t, invoiceSvc.applied)

	stored, err := svc.GetByID(context.Background(), submission.ID.String())
	require.NoError(t, err)
	assert.Equal(t, verificationdomain.VerificationStatusNeedsReview, stored.VerificationStatus)
	assert.Nil(t, stored.ResolvedAt, "needs_review is not a terminal resolution")
	assert.Contains(t, stored.ExtractedFields, "extraction_error")
}

func TestVerifySubmission_WrongAccountGoesToReview(t *testing.T) {
	receipt := `Sent to 0918 999 8888
Amount ₱199.00
Ref No. 0012345678901
Feb 1, 2025`
	invoiceSvc := &stubInvoiceSvc{}
	svc, _, node := newVerificationService(t, &stubExtractor{text: receipt}, invoiceSvc)
	submission := submitProof(t, svc, node, "")

	outcome, err := svc.VerifySubmission(context.Background(), submission.ID.String())
	require.NoError(t, err)
	assert.Equal(t, verificationdomain.VerificationStatusNeedsReview, outcome.Status)
	assert.False(t, outcome.IsValid)
	assert.Empty(t, invoiceSvc.applied, "invalid submission must never settle an invoice")
}

func TestReview_ApproveSettlesInvoice(t *testing.T) {
	invoiceID := snowflake.ID(2222).String()
	extractor := &stubExtractor{err: &ocr.ExtractionError{ImageRef: "x", Cause: context.DeadlineExceeded}}
	invoiceSvc := &stubInvoiceSvc{invoice: invoicedomain.Invoice{Amount: 199}}
	svc, _, node := newVerificationService(t, extractor, invoiceSvc)
	submission := submitProof(t, svc, node, invoiceID)

	_, err := svc.VerifySubmission(context.Background(), submission.ID.String())
	require.NoError(t, err)

	reviewed, err := svc.Review(context.Background(), submission.ID.String(), verificationdomain.ReviewRequest{
		Approve:    true,
		ReviewedBy: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, verificationdomain.VerificationStatusVerified, reviewed.VerificationStatus)
	assert.Equal(t, "admin", reviewed.ReviewedBy)
	assert.NotNil(t, reviewed.ResolvedAt)
	require.Len(t, invoiceSvc.applied, 1)
	assert.Equal(t, invoiceID, invoiceSvc.applied[0].invoiceID)

	_, err = svc.Review(context.Background(), submission.ID.String(), verificationdomain.ReviewRequest{
		Approve:    false,
		ReviewedBy: "admin",
	})
	assert.ErrorIs(t, err, verificationdomain.ErrSubmissionNotInReview)
}

func TestReview_RejectDoesNotSettle(t *testing.T) {
	extractor := &stubExtractor{err: &ocr.ExtractionError{ImageRef: "x", Cause: context.DeadlineExceeded}}
	invoiceSvc := &stubInvoiceSvc{}
	svc, _, node := newVerificationService(t, extractor, invoiceSvc)
	submission := submitProof(t, svc, node, snowflake.ID(3333).String())

	_, err := svc.VerifySubmission(context.Background(), submission.ID.String())
	require.NoError(t, err)

	reviewed, err := svc.Review(context.Background(), submission.ID.String(), verificationdomain.ReviewRequest{
		Approve:    false,
		ReviewedBy: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, verificationdomain.VerificationStatusRejected, reviewed.VerificationStatus)
	assert.Empty(t, invoiceSvc.applied)
}

func TestReview_RequiresNeedsReviewStatus(t *testing.T) {
	invoiceSvc := &stubInvoiceSvc{}
	svc, _, node := newVerificationService(t, &stubExtractor{text: verifiableReceipt}, invoiceSvc)
	submission := submitProof(t, svc, node, "")

	_, err := svc.Review(context.Background(), submission.ID.String(), verificationdomain.ReviewRequest{
		Approve:    true,
		ReviewedBy: "admin",
	})
	assert.ErrorIs(t, err, verificationdomain.ErrSubmissionNotInReview)
}

func TestSubmit_RejectsMalformedInput(t *testing.T) {
	invoiceSvc := &stubInvoiceSvc{}
	svc, _, node := newVerificationService(t, &stubExtractor{}, invoiceSvc)

	_, err := svc.Submit(context.Background(), verificationdomain.SubmitProofRequest{
		SubscriptionID: "not-a-number",
		CustomerID:     node.Generate().String(),
		ClaimedAmount:  199,
		ImageRef:       "uploads/x.jpg",
	})
	assert.ErrorIs(t, err, verificationdomain.ErrInvalidSubmission)

	_, err = svc.Submit(context.Background(), verificationdomain.SubmitProofRequest{
		SubscriptionID: node.Generate().String(),
		CustomerID:     node.Generate().String(),
		ClaimedAmount:  0,
		ImageRef:       "uploads/x.jpg",
	})
	assert.ErrorIs(t, err, verificationdomain.ErrInvalidSubmission)
}

func TestVerifySubmission_UnknownID(t *testing.T) {
	invoiceSvc := &stubInvoiceSvc{}
	svc, _, _ := newVerificationService(t, &stubExtractor{}, invoiceSvc)

	_, err := svc.VerifySubmission(context.Background(), "424242")
	assert.ErrorIs(t, err, verificationdomain.ErrSubmissionNotFound)
}
