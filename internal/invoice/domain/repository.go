package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// HasOpenForSubscription reports whether an unpaid/overdue invoice is
	// already open or one was generated today — the duplicate-run guard.
	HasOpenForSubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, today time.Time) (bool, error)
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	SumPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (float64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status InvoiceStatus, now time.Time) error
	// ArchiveUnpaidBySubscription settles stale unpaid/overdue invoices as
	// part of an enhanced reactivation; returns how many rows were touched.
	ArchiveUnpaidBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, now time.Time) (int, error)
}
