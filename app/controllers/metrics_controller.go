package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nrehberg/plansync/app/repository"
	"github.com/nrehberg/plansync/internal/pkg/metrics/counter"
)

// HandleWebhookMetrics returns per-event-type webhook counters for one
// outcome (received, processed or failed).
func HandleWebhookMetrics(c *fiber.Ctx) error {
	outcome := c.Query("outcome", "processed")
	switch outcome {
	case "received", "processed", "failed":
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_outcome"})
	}

	counts, err := counter.Snapshot(outcome)
	if err != nil {
		log.Errorf("webhook metrics snapshot failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "metrics_unavailable"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"outcome":  outcome,
		"counters": counts,
	})
}

// HandleSubscriptionMetrics summarizes stored subscriptions: total rows and
// paid windows ending within the next 30 days.
func HandleSubscriptionMetrics(c *fiber.Ctx) error {
	subs := repository.GetGlobalFactory().GetSubscriptionRepository()

	total, err := subs.Count()
	if err != nil {
		log.Errorf("subscription count failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "metrics_unavailable"})
	}

	expiring, err := subs.ListExpiringBefore(time.Now().Add(30 * 24 * time.Hour))
	if err != nil {
		log.Errorf("expiring subscription lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "metrics_unavailable"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"total":               total,
		"expiring_within_30d": len(expiring),
	})
}
