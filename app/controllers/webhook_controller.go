package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/nrehberg/plansync/app/models"
	"github.com/nrehberg/plansync/internal/pkg/billing"
	"github.com/nrehberg/plansync/internal/pkg/database"
	"github.com/nrehberg/plansync/internal/pkg/env"
	"github.com/nrehberg/plansync/internal/pkg/metrics/counter"
)

// HandleStripeWebhook is the single inbound endpoint for provider
// notifications. Signature verification happens over the raw body before any
// parsing; every failure after that point answers 400 so the provider
// redelivers the whole event. Retry is entirely the provider's job, there is
// no internal retry or backoff.
func HandleStripeWebhook(c *fiber.Ctx) error {
	traceID := uuid.NewString()
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := billing.VerifyStripeWebhookSignature(rawBody, signature, secret, time.Now(), billing.DefaultSignatureTolerance); err != nil {
		// Log the reason, never the secret.
		log.Warnf("[%s] webhook signature rejected: %v", traceID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	event, err := billing.ParseEvent(rawBody)
	if err != nil {
		log.Warnf("[%s] webhook payload unparseable: %v", traceID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	_ = counter.AddReceived(event.TypeTag)

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.TypeTag,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[%s] webhook persist failed: %v", traceID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// Only a successfully reconciled event short-circuits a redelivery.
	// Failed events answered 400, so the provider redelivers them and they
	// must run again; the upsert semantics make reprocessing safe.
	if !created && stored.ProcessedSuccessfully() {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if err := svc.ProcessEvent(ctx, event); err != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
		_ = counter.AddFailed(event.TypeTag)
		log.Errorf("[%s] event %s (%s) failed: %v", traceID, event.ID, event.TypeTag, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": webhookErrorCode(err)})
	}

	_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
	_ = counter.AddProcessed(event.TypeTag)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// webhookErrorCode maps the billing error taxonomy to stable response codes.
func webhookErrorCode(err error) string {
	switch {
	case errors.Is(err, billing.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, billing.ErrInvalidPriceID):
		return "invalid_price_id"
	default:
		return "reconciliation_failed"
	}
}
