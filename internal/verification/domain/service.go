package domain

import (
	"context"
)

// SubmitProofRequest registers one uploaded receipt for verification.
type SubmitProofRequest struct {
	SubscriptionID string  `json:"subscription_id"`
	CustomerID     string  `json:"customer_id"`
	InvoiceID      string  `json:"invoice_id,omitempty"`
	ClaimedAmount  float64 `json:"claimed_amount"`
	ImageRef       string  `json:"image_ref"`
}

// ReviewRequest is a human adjudication of a NEEDS_REVIEW submission.
type ReviewRequest struct {
	Approve    bool   `json:"approve"`
	ReviewedBy string `json:"reviewed_by"`
	Note       string `json:"note,omitempty"`
}

// VerifyOutcome reports how one submission was resolved.
type VerifyOutcome struct {
	SubmissionID string             `json:"submission_id"`
	Status       VerificationStatus `json:"status"`
	Confidence   int                `json:"confidence"`
	IsValid      bool               `json:"is_valid"`
	Checks       []Check            `json:"checks"`
	Fields       ExtractedFields    `json:"fields"`
}

type Service interface {
	GetByID(ctx context.Context, submissionID string) (PaymentProofSubmission, error)
	Submit(ctx context.Context, req SubmitProofRequest) (PaymentProofSubmission, error)
	// VerifySubmission runs extraction and scoring for one PENDING
	// submission and resolves it. Extraction failures resolve to
	// NEEDS_REVIEW instead of returning an error.
	VerifySubmission(ctx context.Context, submissionID string) (VerifyOutcome, error)
	// Review applies a human decision to a NEEDS_REVIEW submission.
	Review(ctx context.Context, submissionID string, req ReviewRequest) (PaymentProofSubmission, error)
}
