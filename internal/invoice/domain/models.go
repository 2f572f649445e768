// Package domain contains persistence models for invoicing and payments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states. OVERDUE is non-terminal;
// an overdue invoice remains payable.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid        InvoiceStatus = "UNPAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	// InvoiceStatusVoid marks invoices archived by an enhanced reactivation.
	// Void invoices stay on record but no longer count toward the balance.
	InvoiceStatusVoid InvoiceStatus = "VOID"
)

const InvoiceTypeSubscription = "subscription"

// Invoice is the immutable billing record for one cycle. Invoices are never
// deleted; they are the audit trail. Only the late-fee engine and payment
// application mutate them after creation.
type Invoice struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	InvoiceNumber  string            `gorm:"type:text;not null;uniqueIndex"`
	SubscriptionID snowflake.ID      `gorm:"not null;index"`
	CustomerID     snowflake.ID      `gorm:"not null;index"`
	InvoiceType    string            `gorm:"type:text;not null;default:'subscription'"`
	Status         InvoiceStatus     `gorm:"type:text;not null;index"`
	OriginalAmount float64           `gorm:"not null"`
	CreditApplied  float64           `gorm:"not null;default:0"`
	Amount         float64           `gorm:"not null"`
	LateFeeApplied bool              `gorm:"not null;default:false"`
	LateFeeAmount  float64           `gorm:"not null;default:0"`
	DueDate        time.Time         `gorm:"not null;index"`
	GeneratedDate  time.Time         `gorm:"not null"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Payment is a credit against an invoice.
type Payment struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"not null;index"`
	Amount    float64      `gorm:"not null"`
	Method    string       `gorm:"type:text;not null"`
	Reference string       `gorm:"type:text"`
	PaidAt    time.Time    `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
