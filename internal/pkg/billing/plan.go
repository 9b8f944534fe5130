package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/nrehberg/plansync/app/models"
	"github.com/nrehberg/plansync/internal/pkg/env"
)

// PriceConfig maps provider price ids to billing periods. Resolution fails
// closed: a recurring price id outside the mapping is an error, never a
// guessed period.
type PriceConfig struct {
	YearlyPriceID  string
	MonthlyPriceID string
}

func PriceConfigFromEnv() PriceConfig {
	return PriceConfig{
		YearlyPriceID:  strings.TrimSpace(env.GetEnv("STRIPE_YEARLY_PRICE_ID", "")),
		MonthlyPriceID: strings.TrimSpace(env.GetEnv("STRIPE_MONTHLY_PRICE_ID", "")),
	}
}

// ResolvePeriod returns the billing period for a recurring price id.
func (c PriceConfig) ResolvePeriod(priceID string) (string, error) {
	id := strings.TrimSpace(priceID)
	switch {
	case id == "":
		return "", fmt.Errorf("%w: empty price id", ErrInvalidPriceID)
	case c.YearlyPriceID != "" && id == c.YearlyPriceID:
		return models.BillingPeriodYearly, nil
	case c.MonthlyPriceID != "" && id == c.MonthlyPriceID:
		return models.BillingPeriodMonthly, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidPriceID, id)
	}
}

// periodEnd computes the subscription end date for a billing period.
func periodEnd(start time.Time, period string) time.Time {
	if period == models.BillingPeriodYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
