// Package domain defines the derived customer balance.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Balance is the running position of one customer. Positive means the
// customer owes; negative is credit consumed by future invoices.
type Balance struct {
	Balance     float64 `json:"balance"`
	TotalBilled float64 `json:"total_billed"`
	TotalPaid   float64 `json:"total_paid"`
}

// Service derives balances from stored invoices and payments. It is a pure
// read; callers that write based on the result must pass their own
// transaction handle so the read and write are isolated together.
type Service interface {
	ComputeBalance(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (Balance, error)
}

// ErrBalanceIntegrity indicates a balance that disagrees with its components.
// This is a data-integrity fault: fatal, logged, never silently corrected.
var ErrBalanceIntegrity = errors.New("balance_integrity_violation")
