package models

import "time"

const (
	BillingPeriodMonthly = "monthly"
	BillingPeriodYearly  = "yearly"
)

// Subscription mirrors the paid subscription state for a user. There is at
// most one row per user (unique user_id); renewals and plan changes update
// the row in place, cancellations reset the plan to free instead of deleting
// the row so history is preserved.
type Subscription struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:ux_subscriptions_user" json:"user_id"`
	Plan          string    `gorm:"type:varchar(50);not null;default:'free';index" json:"plan"`
	BillingPeriod string    `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_period"`
	StartDate     time.Time `gorm:"type:timestamp;not null" json:"start_date"`
	EndDate       time.Time `gorm:"type:timestamp;not null" json:"end_date"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCurrent reports whether the subscription window covers the given time.
func (s *Subscription) IsCurrent(at time.Time) bool {
	return !at.Before(s.StartDate) && at.Before(s.EndDate)
}
