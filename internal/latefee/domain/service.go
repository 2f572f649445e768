// Package domain defines the late-fee engine's contract.
package domain

import (
	"context"
	"errors"
)

// Result summarizes one late-fee sweep.
type Result struct {
	ProcessedCount   int          `json:"processed_count"`
	TotalFeesApplied float64      `json:"total_fees_applied"`
	Errors           []BatchError `json:"errors,omitempty"`
}

type BatchError struct {
	InvoiceID string `json:"invoice_id"`
	Reason    string `json:"reason"`
}

// Eligibility is the administrative read-only view of one invoice's late-fee
// position.
type Eligibility struct {
	Eligible          bool   `json:"eligible"`
	Reason            string `json:"reason"`
	DaysOverdue       int    `json:"days_overdue,omitempty"`
	DaysUntilEligible int    `json:"days_until_eligible,omitempty"`
}

type Service interface {
	ProcessLateFees(ctx context.Context) (Result, error)
	Eligibility(ctx context.Context, invoiceID string) (Eligibility, error)
}

var (
	ErrLateFeeAlreadyApplied = errors.New("late_fee_already_applied")
)
