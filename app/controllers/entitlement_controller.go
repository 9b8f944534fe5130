package controllers

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nrehberg/plansync/app/models"
	"github.com/nrehberg/plansync/app/repository"
	"github.com/nrehberg/plansync/internal/pkg/cache"
	"github.com/nrehberg/plansync/internal/pkg/entitlements"
)

// Entitlement reads are served cache-aside with a short TTL; webhook
// reconciliation does not invalidate, so reads can lag a reconciled plan
// change by up to the TTL.
const entitlementCacheTTL = 60 * time.Second

// entitlementPayload is the response (and cached) shape of an entitlement
// read. The billing period fields are present only while a paid window
// covers the current time.
type entitlementPayload struct {
	UserID        uint       `json:"user_id"`
	Plan          string     `json:"plan"`
	BillingPeriod string     `json:"billing_period,omitempty"`
	PeriodEnd     *time.Time `json:"period_end,omitempty"`
	Cached        bool       `json:"cached"`
}

// entitlementFor derives the effective entitlement from the user row and the
// optional subscription row. Deactivated accounts keep their data but lose
// the paid plan; a lapsed subscription window contributes nothing.
func entitlementFor(user *models.User, sub *models.Subscription, at time.Time) entitlementPayload {
	p := entitlementPayload{
		UserID: user.ID,
		Plan:   string(entitlements.Normalize(user.Plan)),
	}
	if !user.IsActive() {
		p.Plan = string(entitlements.PlanFree)
		return p
	}
	if sub != nil && sub.IsCurrent(at) {
		p.BillingPeriod = sub.BillingPeriod
		p.PeriodEnd = &sub.EndDate
	}
	return p
}

// HandleGetEntitlement returns the effective plan and, when one is current,
// the paid subscription window for a user id.
func HandleGetEntitlement(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("user_id"), 10, 64)
	if err != nil || userID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_user_id"})
	}

	key := cache.UserPlanKey(uint(userID))
	if raw, err := cache.Get(key); err == nil && raw != "" {
		var payload entitlementPayload
		if json.Unmarshal([]byte(raw), &payload) == nil {
			payload.Cached = true
			return c.Status(fiber.StatusOK).JSON(payload)
		}
	} else if err != nil && !cache.IsNotFound(err) {
		log.Warnf("entitlement cache read failed: %v", err)
	}

	repos := repository.GetGlobalFactory()
	user, err := repos.GetUserRepository().GetByID(uint(userID))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
		}
		log.Errorf("entitlement lookup failed for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
	}

	sub, err := repos.GetSubscriptionRepository().GetByUserID(uint(userID))
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			log.Warnf("subscription lookup failed for user %d: %v", userID, err)
		}
		sub = nil
	}

	payload := entitlementFor(user, sub, time.Now())
	if buf, err := json.Marshal(payload); err == nil {
		if err := cache.Set(key, string(buf), entitlementCacheTTL); err != nil {
			log.Warnf("entitlement cache write failed: %v", err)
		}
	}
	return c.Status(fiber.StatusOK).JSON(payload)
}
