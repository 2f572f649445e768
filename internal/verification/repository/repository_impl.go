package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	verificationdomain "github.com/smallbiznis/kolekta/internal/verification/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() verificationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, submission *verificationdomain.PaymentProofSubmission) error {
	return db.WithContext(ctx).Create(submission).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*verificationdomain.PaymentProofSubmission, error) {
	var submission verificationdomain.PaymentProofSubmission
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_proof_submissions WHERE id = ? LIMIT 1`,
		id,
	).Scan(&submission).Error
	if err != nil {
		return nil, err
	}
	if submission.ID == 0 {
		return nil, nil
	}
	return &submission, nil
}

func (r *repo) Resolve(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to verificationdomain.VerificationStatus, confidence int, fields datatypes.JSONMap, reviewedBy string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_proof_submissions
		 SET verification_status = ?,
		     confidence_score = ?,
		     extracted_fields = ?,
		     reviewed_by = ?,
		     resolved_at = CASE WHEN ? THEN ? ELSE resolved_at END,
		     updated_at = ?
		 WHERE id = ? AND verification_status = ?`,
		to, confidence, fields, reviewedBy,
		to != verificationdomain.VerificationStatusNeedsReview, now,
		now, id, from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
