package constants

// Static route constants
const (
	StripeWebhookRoute = "/webhooks/stripe"
	HealthRoute        = "/healthz"
	APIRoute           = "/api"
	EntitlementsRoute  = "/entitlements/:user_id"
)
