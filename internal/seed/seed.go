// Package seed bootstraps the default records a fresh deployment needs.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/kolekta/internal/plan/domain"
	"gorm.io/gorm"
)

const (
	defaultPlanCode  = "residential-monthly"
	defaultPlanName  = "Residential Monthly Collection"
	defaultPlanPrice = 199
)

// EnsureDefaultPlan seeds the standard residential plan on startup so new
// subscriptions can be created without any manual setup.
func EnsureDefaultPlan(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan plandomain.Plan
		err := tx.WithContext(ctx).
			Where("code = ?", defaultPlanCode).
			First(&plan).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		plan = plandomain.Plan{
			ID:               node.Generate(),
			Code:             defaultPlanCode,
			Name:             defaultPlanName,
			Price:            defaultPlanPrice,
			BillingFrequency: plandomain.BillingFrequencyMonthly,
			Active:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return tx.WithContext(ctx).Create(&plan).Error
	})
}
