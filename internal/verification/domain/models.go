// Package domain contains payment-proof submission models and the pure
// field-parsing and scoring rules applied to extracted receipt text.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// VerificationStatus represents the triage state of a submitted payment
// proof. A submission is resolved exactly once: every status except PENDING
// and NEEDS_REVIEW is terminal, and NEEDS_REVIEW can only move to the human
// decisions VERIFIED or REJECTED.
type VerificationStatus string

const (
	VerificationStatusPending      VerificationStatus = "PENDING"
	VerificationStatusNeedsReview  VerificationStatus = "NEEDS_REVIEW"
	VerificationStatusAutoVerified VerificationStatus = "AUTO_VERIFIED"
	VerificationStatusVerified     VerificationStatus = "VERIFIED"
	VerificationStatusAutoRejected VerificationStatus = "AUTO_REJECTED"
	VerificationStatusRejected     VerificationStatus = "REJECTED"
)

// IsTerminal reports whether a submission in this status can never change
// again.
func (s VerificationStatus) IsTerminal() bool {
	switch s {
	case VerificationStatusAutoVerified, VerificationStatusVerified,
		VerificationStatusAutoRejected, VerificationStatusRejected:
		return true
	}
	return false
}

// IsValidStatus reports whether raw is a known verification status.
func IsValidStatus(raw VerificationStatus) bool {
	switch raw {
	case VerificationStatusPending, VerificationStatusNeedsReview,
		VerificationStatusAutoVerified, VerificationStatusVerified,
		VerificationStatusAutoRejected, VerificationStatusRejected:
		return true
	}
	return false
}

// PaymentProofSubmission is one uploaded mobile-wallet receipt awaiting
// verification against an expected amount.
type PaymentProofSubmission struct {
	ID                 snowflake.ID       `gorm:"primaryKey"`
	SubscriptionID     snowflake.ID       `gorm:"not null;index"`
	CustomerID         snowflake.ID       `gorm:"not null;index"`
	InvoiceID          *snowflake.ID      `gorm:"index"`
	ClaimedAmount      float64            `gorm:"not null"`
	ImageRef           string             `gorm:"type:text;not null"`
	ExtractedFields    datatypes.JSONMap  `gorm:"type:jsonb"`
	ConfidenceScore    int                `gorm:"not null;default:0"`
	VerificationStatus VerificationStatus `gorm:"type:text;not null;index;default:'PENDING'"`
	ResolvedAt         *time.Time         `gorm:""`
	ReviewedBy         string             `gorm:"type:text"`
	Metadata           datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentProofSubmission) TableName() string { return "payment_proof_submissions" }

var (
	ErrInvalidSubmission     = errors.New("invalid_submission")
	ErrSubmissionNotFound    = errors.New("submission_not_found")
	ErrSubmissionResolved    = errors.New("submission_already_resolved")
	ErrSubmissionNotInReview = errors.New("submission_not_in_review")
)
