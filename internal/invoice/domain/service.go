package domain

import (
	"context"
	"errors"
	"time"
)

type CreateInvoiceRequest struct {
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	BaseAmount     float64        `json:"base_amount"`
	DueDate        time.Time      `json:"due_date"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type ApplyPaymentRequest struct {
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Reference string  `json:"reference,omitempty"`
}

// GenerateMonthlyResult summarizes a batch run. Per-item failures are
// collected; the batch never aborts on a single bad subscription.
type GenerateMonthlyResult struct {
	Created []Invoice    `json:"created"`
	Skipped int          `json:"skipped"`
	Errors  []BatchError `json:"errors,omitempty"`
}

type BatchError struct {
	SubscriptionID string `json:"subscription_id"`
	Reason         string `json:"reason"`
}

type Service interface {
	GetByID(ctx context.Context, invoiceID string) (Invoice, error)
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	GenerateMonthly(ctx context.Context) (GenerateMonthlyResult, error)
	ApplyPayment(ctx context.Context, invoiceID string, req ApplyPaymentRequest) (Payment, error)
}

var (
	ErrInvalidInvoice        = errors.New("invalid_invoice")
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrDuplicateInvoice      = errors.New("duplicate_invoice_for_cycle")
	ErrInvoiceNotPayable     = errors.New("invoice_not_payable")
	ErrNegativeInvoiceAmount = errors.New("negative_invoice_amount")
)
