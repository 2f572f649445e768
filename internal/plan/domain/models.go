// Package domain contains persistence models for collection plans.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type BillingFrequency string

const (
	BillingFrequencyMonthly BillingFrequency = "MONTHLY"
	BillingFrequencyWeekly  BillingFrequency = "WEEKLY"
)

// Plan is the priced collection offering a subscription bills against.
type Plan struct {
	ID               snowflake.ID     `gorm:"primaryKey"`
	Code             string           `gorm:"type:text;not null;uniqueIndex"`
	Name             string           `gorm:"type:text;not null"`
	Price            float64          `gorm:"not null"`
	BillingFrequency BillingFrequency `gorm:"type:text;not null"`
	Active           bool             `gorm:"not null;default:true"`
	CreatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
}

var (
	ErrPlanNotFound = errors.New("plan_not_found")
)
