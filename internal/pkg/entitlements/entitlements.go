package entitlements

import "strings"

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Normalize maps arbitrary plan strings to a known Plan, defaulting to free.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPremium):
		return PlanPremium
	default:
		return PlanFree
	}
}

// Rank orders plans so reconciliation can pick the best entitlement.
func Rank(plan Plan) int {
	switch plan {
	case PlanPremium:
		return 1
	default:
		return 0
	}
}

// IsPaid reports whether the plan grants paid features.
func IsPaid(plan Plan) bool {
	return Rank(plan) > 0
}
