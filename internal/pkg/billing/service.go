package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/nrehberg/plansync/app/models"
	"github.com/nrehberg/plansync/internal/pkg/entitlements"
	"gorm.io/gorm"
)

// Service reconciles verified provider events into local account and
// subscription state.
type Service struct {
	repo     Repository
	provider ProviderClient
	prices   PriceConfig

	now func() time.Time
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, provider ProviderClient, prices PriceConfig) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		prices:   prices,
		now:      time.Now,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle with the
// environment-configured provider client and price mapping.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewStripeClientFromEnv(), PriceConfigFromEnv())
}

// ProcessEvent dispatches a verified event to its handler. Unhandled event
// types are logged and acknowledged; the provider must not redeliver events
// this service intentionally ignores.
func (s *Service) ProcessEvent(ctx context.Context, ev *Event) error {
	switch ev.Type {
	case EventCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, ev)
	case EventCustomerSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, ev)
	default:
		log.Infof("ignoring unhandled event type %s (event %s)", ev.TypeTag, ev.ID)
		return nil
	}
}

// handleCheckoutCompleted reconciles a completed checkout into local state:
// link the provider customer to the account once, then upsert the premium
// subscription per recurring line item. Line items are applied sequentially
// and best-effort; a failure partway leaves earlier items committed and the
// provider redelivers the whole event, which converges through the upsert.
func (s *Service) handleCheckoutCompleted(ctx context.Context, ev *Event) error {
	if ev.ObjectID == "" {
		return reconciliationErr(ev, errors.New("event missing checkout session id"))
	}

	session, err := s.provider.GetCheckoutSession(ctx, ev.ObjectID)
	if err != nil {
		return reconciliationErr(ev, err)
	}

	if session.CustomerEmail == "" {
		log.Warnf("checkout session %s has no customer email, nothing to reconcile", session.ID)
		return nil
	}

	user, err := s.repo.GetUserByEmail(session.CustomerEmail)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("checkout session %s: %w", session.ID, ErrAccountNotFound)
		}
		return reconciliationErr(ev, err)
	}

	if !user.HasStripeCustomer() && session.Customer != "" {
		if err := s.repo.AssignStripeCustomerID(user.ID, session.Customer); err != nil {
			return reconciliationErr(ev, err)
		}
	}

	for _, item := range session.LineItems {
		// One-time purchases carry no entitlement.
		if !item.Recurring {
			continue
		}

		period, err := s.prices.ResolvePeriod(item.PriceID)
		if err != nil {
			return err
		}

		start := s.now()
		sub := &models.Subscription{
			UserID:        user.ID,
			Plan:          string(entitlements.PlanPremium),
			BillingPeriod: period,
			StartDate:     start,
			EndDate:       periodEnd(start, period),
		}
		if err := s.repo.UpsertSubscription(sub); err != nil {
			return reconciliationErr(ev, err)
		}
		if err := s.repo.UpdateUserPlan(user.ID, string(entitlements.PlanPremium)); err != nil {
			return reconciliationErr(ev, err)
		}
		log.Infof("user %d upgraded to premium (%s) until %s", user.ID, period, sub.EndDate.Format(time.RFC3339))
	}
	return nil
}

// handleSubscriptionDeleted resolves the canceled subscription's owner by the
// provider customer id and drops the account back to free. A cancellation
// that cannot be applied is surfaced, never skipped.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, ev *Event) error {
	if ev.ObjectID == "" {
		return reconciliationErr(ev, errors.New("event missing subscription id"))
	}

	sub, err := s.provider.GetSubscription(ctx, ev.ObjectID)
	if err != nil {
		return reconciliationErr(ev, err)
	}

	user, err := s.repo.GetUserByStripeCustomerID(sub.Customer)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Errorf("subscription %s canceled but no account matches customer %s", sub.ID, sub.Customer)
			return fmt.Errorf("subscription %s: %w", sub.ID, ErrAccountNotFound)
		}
		return reconciliationErr(ev, err)
	}

	if err := s.repo.UpdateUserPlan(user.ID, string(entitlements.PlanFree)); err != nil {
		return reconciliationErr(ev, err)
	}
	if err := s.repo.CloseSubscription(user.ID); err != nil {
		return reconciliationErr(ev, err)
	}
	log.Infof("user %d downgraded to free after cancellation of %s", user.ID, sub.ID)
	return nil
}

// RecordWebhookEvent persists webhook payloads idempotently. A redelivery of
// a known provider event id comes back created=false together with the stored
// row; the caller decides from the row's processing state whether the
// handlers run again.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		// Deterministic fallback so id-less redeliveries still deduplicate.
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}
