// Package service resolves payment-proof submissions: it drives the external
// text extractor under a deadline, scores the extracted text and persists the
// triage decision exactly once.
package service

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/kolekta/internal/audit/domain"
	"github.com/smallbiznis/kolekta/internal/clock"
	"github.com/smallbiznis/kolekta/internal/config"
	invoicedomain "github.com/smallbiznis/kolekta/internal/invoice/domain"
	"github.com/smallbiznis/kolekta/internal/providers/notify"
	"github.com/smallbiznis/kolekta/internal/providers/ocr"
	verificationdomain "github.com/smallbiznis/kolekta/internal/verification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const extractionTimeout = 30 * time.Second

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo       verificationdomain.Repository
	invoiceSvc invoicedomain.Service
	extractor  ocr.TextExtractor
	pricing    *config.PricingHolder
	auditSvc   auditdomain.Service
	notifier   notify.Notifier
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Repo       verificationdomain.Repository
	InvoiceSvc invoicedomain.Service
	Extractor  ocr.TextExtractor `optional:"true"`
	Pricing    *config.PricingHolder
	AuditSvc   auditdomain.Service
	Notifier   notify.Notifier `optional:"true"`
}

func NewService(p ServiceParam) verificationdomain.Service {
	extractor := p.Extractor
	if extractor == nil {
		extractor = ocr.NoOpExtractor{}
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("verification.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		invoiceSvc: p.InvoiceSvc,
		extractor:  extractor,
		pricing:    p.Pricing,
		auditSvc:   p.AuditSvc,
		notifier:   notifier,
	}
}

func (s *Service) GetByID(ctx context.Context, submissionID string) (verificationdomain.PaymentProofSubmission, error) {
	id, err := parseID(submissionID)
	if err != nil {
		return verificationdomain.PaymentProofSubmission{}, err
	}
	submission, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return verificationdomain.PaymentProofSubmission{}, err
	}
	if submission == nil {
		return verificationdomain.PaymentProofSubmission{}, verificationdomain.ErrSubmissionNotFound
	}
	return *submission, nil
}

func (s *Service) Submit(ctx context.Context, req verificationdomain.SubmitProofRequest) (verificationdomain.PaymentProofSubmission, error) {
	subscriptionID, err := parseID(req.SubscriptionID)
	if err != nil {
		return verificationdomain.PaymentProofSubmission{}, err
	}
	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return verificationdomain.PaymentProofSubmission{}, err
	}
	if req.ClaimedAmount <= 0 || req.ImageRef == "" {
		return verificationdomain.PaymentProofSubmission{}, verificationdomain.ErrInvalidSubmission
	}

	var invoiceID *snowflake.ID
	if req.InvoiceID != "" {
		id, err := parseID(req.InvoiceID)
		if err != nil {
			return verificationdomain.PaymentProofSubmission{}, err
		}
		invoiceID = &id
	}

	now := s.clock.Now()
	submission := verificationdomain.PaymentProofSubmission{
		ID:                 s.genID.Generate(),
		SubscriptionID:     subscriptionID,
		CustomerID:         customerID,
		InvoiceID:          invoiceID,
		ClaimedAmount:      req.ClaimedAmount,
		ImageRef:           req.ImageRef,
		VerificationStatus: verificationdomain.VerificationStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, s.db, &submission); err != nil {
		return verificationdomain.PaymentProofSubmission{}, err
	}

	s.audit(ctx, "proof.submitted", submission.ID, map[string]any{
		"subscription_id": submission.SubscriptionID.String(),
		"claimed_amount":  submission.ClaimedAmount,
	})
	return submission, nil
}

// VerifySubmission resolves one PENDING submission. Extraction failures and
// timeouts resolve to NEEDS_REVIEW so a human adjudicator is always
// reachable; they are never returned as hard errors.
func (s *Service) VerifySubmission(ctx context.Context, submissionID string) (verificationdomain.VerifyOutcome, error) {
	id, err := parseID(submissionID)
	if err != nil {
		return verificationdomain.VerifyOutcome{}, err
	}
	submission, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return verificationdomain.VerifyOutcome{}, err
	}
	if submission == nil {
		return verificationdomain.VerifyOutcome{}, verificationdomain.ErrSubmissionNotFound
	}
	if submission.VerificationStatus != verificationdomain.VerificationStatusPending {
		return verificationdomain.VerifyOutcome{}, verificationdomain.ErrSubmissionResolved
	}

	expectedAmount, err := s.expectedAmount(ctx, submission)
	if err != nil {
		return verificationdomain.VerifyOutcome{}, err
	}

	extractCtx, cancel := context.WithTimeout(ctx, extractionTimeout)
	text, extractErr := s.extractor.ExtractText(extractCtx, submission.ImageRef)
	cancel()
	if extractErr != nil {
		return s.resolveUnreadable(ctx, submission, extractErr)
	}

	cfg := s.pricing.Get().Verification
	evaluation := verificationdomain.Evaluate(text, verificationdomain.Expectations{
		AccountNumber:   cfg.CollectorNumber,
		ExpectedAmount:  expectedAmount,
		MinimumAmount:   cfg.MinimumAmount,
		AmountTolerance: cfg.AmountTolerance,
	})

	now := s.clock.Now()
	status := evaluation.Decision.Status()
	updated, err := s.repo.Resolve(ctx, s.db, submission.ID,
		verificationdomain.VerificationStatusPending, status,
		evaluation.Confidence, evaluationFields(evaluation), "", now)
	if err != nil {
		return verificationdomain.VerifyOutcome{}, err
	}
	if !updated {
		return verificationdomain.VerifyOutcome{}, verificationdomain.ErrSubmissionResolved
	}

	s.audit(ctx, "proof."+string(evaluation.Decision), submission.ID, map[string]any{
		"confidence": evaluation.Confidence,
		"is_valid":   evaluation.IsValid,
	})

	switch status {
	case verificationdomain.VerificationStatusAutoVerified:
		s.settleInvoice(ctx, submission, evaluation.Fields.ReferenceNumber)
	case verificationdomain.VerificationStatusNeedsReview:
		s.notifyReviewNeeded(ctx, submission)
	}

	return verificationdomain.VerifyOutcome{
		SubmissionID: submission.ID.String(),
		Status:       status,
		Confidence:   evaluation.Confidence,
		IsValid:      evaluation.IsValid,
		Checks:       evaluation.Checks,
		Fields:       evaluation.Fields,
	}, nil
}

func (s *Service) Review(ctx context.Context, submissionID string, req verificationdomain.ReviewRequest) (verificationdomain.PaymentProofSubmission, error) {
	id, err := parseID(submissionID)
	if err != nil {
		return verificationdomain.PaymentProofSubmission{}, err
	}
	if req.ReviewedBy == "" {
		return verificationdomain.PaymentProofSubmission{}, verificationdomain.ErrInvalidSubmission
	}
	submission, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return verificationdomain.PaymentProofSubmission{}, err
	}
	if submission == nil {
		return verificationdomain.PaymentProofSubmission{}, verificationdomain.ErrSubmissionNotFound
	}
	if submission.VerificationStatus != verificationdomain.VerificationStatusNeedsReview {
		return verificationdomain.PaymentProofSubmission{}, verificationdomain.ErrSubmissionNotInReview
	}

	status := verificationdomain.VerificationStatusRejected
	if req.Approve {
		status = verificationdomain.VerificationStatusVerified
	}

	now := s.clock.Now()
	updated, err := s.repo.Resolve(ctx, s.db, submission.ID,
		verificationdomain.VerificationStatusNeedsReview, status,
		submission.ConfidenceScore, submission.ExtractedFields, req.ReviewedBy, now)
	if err != nil {
		return verificationdomain.PaymentProofSubmission{}, err
	}
	if !updated {
		return verificationdomain.PaymentProofSubmission{}, verificationdomain.ErrSubmissionNotInReview
	}

	s.audit(ctx, "proof.reviewed", submission.ID, map[string]any{
		"approved":    req.Approve,
		"reviewed_by": req.ReviewedBy,
		"note":        req.Note,
	})
	if status == verificationdomain.VerificationStatusVerified {
		s.settleInvoice(ctx, submission, referenceFrom(submission.ExtractedFields))
	}

	resolved, err := s.repo.FindByID(ctx, s.db, submission.ID)
	if err != nil {
		return verificationdomain.PaymentProofSubmission{}, err
	}
	return *resolved, nil
}

// resolveUnreadable maps an extraction failure to a NEEDS_REVIEW resolution,
// recording the failure for the reviewer.
func (s *Service) resolveUnreadable(ctx context.Context, submission *verificationdomain.PaymentProofSubmission, cause error) (verificationdomain.VerifyOutcome, error) {
	s.log.Warn("text extraction failed, routing to review",
		zap.String("submission_id", submission.ID.String()),
		zap.Error(cause),
	)

	now := s.clock.Now()
	fields := datatypes.JSONMap{"extraction_error": cause.Error()}
	updated, err := s.repo.Resolve(ctx, s.db, submission.ID,
		verificationdomain.VerificationStatusPending,
		verificationdomain.VerificationStatusNeedsReview,
		0, fields, "", now)
	if err != nil {
		return verificationdomain.VerifyOutcome{}, err
	}
	if !updated {
		return verificationdomain.VerifyOutcome{}, verificationdomain.ErrSubmissionResolved
	}

	s.audit(ctx, "proof.extraction_failed", submission.ID, map[string]any{
		"error": cause.Error(),
	})
	s.notifyReviewNeeded(ctx, submission)

	return verificationdomain.VerifyOutcome{
		SubmissionID: submission.ID.String(),
		Status:       verificationdomain.VerificationStatusNeedsReview,
	}, nil
}

// expectedAmount prefers the linked invoice's amount over the customer's
// claim.
func (s *Service) expectedAmount(ctx context.Context, submission *verificationdomain.PaymentProofSubmission) (float64, error) {
	if submission.InvoiceID == nil {
		return submission.ClaimedAmount, nil
	}
	invoice, err := s.invoiceSvc.GetByID(ctx, submission.InvoiceID.String())
	if err != nil {
		return 0, err
	}
	return invoice.Amount, nil
}

// settleInvoice applies the verified payment to the linked invoice. Failure
// here never unwinds the verification; the payment can be re-applied by an
// operator.
func (s *Service) settleInvoice(ctx context.Context, submission *verificationdomain.PaymentProofSubmission, reference string) {
	if submission.InvoiceID == nil {
		return
	}
	_, err := s.invoiceSvc.ApplyPayment(ctx, submission.InvoiceID.String(), invoicedomain.ApplyPaymentRequest{
		Amount:    submission.ClaimedAmount,
		Method:    "gcash",
		Reference: reference,
	})
	if err != nil {
		s.log.Warn("verified proof payment application failed",
			zap.String("submission_id", submission.ID.String()),
			zap.String("invoice_id", submission.InvoiceID.String()),
			zap.Error(err),
		)
		s.audit(ctx, "proof.payment_apply_failed", submission.ID, map[string]any{
			"invoice_id": submission.InvoiceID.String(),
			"error":      err.Error(),
		})
	}
}

func (s *Service) notifyReviewNeeded(ctx context.Context, submission *verificationdomain.PaymentProofSubmission) {
	err := s.notifier.Notify(ctx, submission.CustomerID.String(), notify.TemplateProofReviewNeeded, map[string]any{
		"submission_id": submission.ID.String(),
	})
	if err != nil {
		s.log.Warn("review notification failed",
			zap.String("submission_id", submission.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) audit(ctx context.Context, action string, submissionID snowflake.ID, metadata map[string]any) {
	err := s.auditSvc.Record(ctx, s.db, string(auditdomain.ActorTypeSystem), action,
		"payment_proof_submission", submissionID.String(), metadata)
	if err != nil {
		s.log.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func evaluationFields(evaluation verificationdomain.Evaluation) datatypes.JSONMap {
	checks := make([]any, 0, len(evaluation.Checks))
	for _, check := range evaluation.Checks {
		checks = append(checks, map[string]any{
			"name":     check.Name,
			"critical": check.Critical,
			"passed":   check.Passed,
		})
	}
	amounts := make([]any, 0, len(evaluation.Fields.Amounts))
	for _, amount := range evaluation.Fields.Amounts {
		amounts = append(amounts, amount)
	}
	accounts := make([]any, 0, len(evaluation.Fields.AccountNumbers))
	for _, account := range evaluation.Fields.AccountNumbers {
		accounts = append(accounts, account)
	}
	return datatypes.JSONMap{
		"recipient_name":   evaluation.Fields.RecipientName,
		"account_numbers":  accounts,
		"amounts":          amounts,
		"reference_number": evaluation.Fields.ReferenceNumber,
		"date_time":        evaluation.Fields.DateTime,
		"checks":           checks,
		"is_valid":         evaluation.IsValid,
		"decision":         string(evaluation.Decision),
	}
}

func referenceFrom(fields datatypes.JSONMap) string {
	if fields == nil {
		return ""
	}
	if raw, ok := fields["reference_number"].(string); ok {
		return raw
	}
	return ""
}

func parseID(raw string) (snowflake.ID, error) {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, verificationdomain.ErrInvalidSubmission
	}
	return snowflake.ID(parsed), nil
}
