package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, submission *PaymentProofSubmission) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentProofSubmission, error)
	// Resolve moves a submission from one expected status to another,
	// persisting the evaluation output. The expected status is part of the
	// UPDATE predicate; false means another resolver got there first.
	Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to VerificationStatus, confidence int, fields datatypes.JSONMap, reviewedBy string, now time.Time) (bool, error)
}
