package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nrehberg/plansync/app/models"
	"gorm.io/gorm"
)

type fakeRepo struct {
	users  map[uint]*models.User
	subs   map[uint]*models.Subscription
	events map[string]*models.WebhookEvent

	nextEventID uint
}

func newFakeRepo(users ...*models.User) *fakeRepo {
	r := &fakeRepo{
		users:  make(map[uint]*models.User),
		subs:   make(map[uint]*models.Subscription),
		events: make(map[string]*models.WebhookEvent),
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeRepo) GetUserByEmail(email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	for _, u := range r.users {
		if u.StripeCustomerID != "" && u.StripeCustomerID == customerID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) AssignStripeCustomerID(userID uint, customerID string) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if u.StripeCustomerID == "" {
		u.StripeCustomerID = customerID
	}
	return nil
}

func (r *fakeRepo) UpdateUserPlan(userID uint, plan string) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Plan = plan
	return nil
}

func (r *fakeRepo) UpsertSubscription(sub *models.Subscription) error {
	if existing, ok := r.subs[sub.UserID]; ok {
		existing.Plan = sub.Plan
		existing.BillingPeriod = sub.BillingPeriod
		existing.StartDate = sub.StartDate
		existing.EndDate = sub.EndDate
		*sub = *existing
		return nil
	}
	sub.ID = uint(len(r.subs) + 1)
	copied := *sub
	r.subs[sub.UserID] = &copied
	return nil
}

func (r *fakeRepo) CloseSubscription(userID uint) error {
	if sub, ok := r.subs[userID]; ok {
		sub.Plan = "free"
	}
	return nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := r.events[key]; ok {
		return false, stored, nil
	}
	r.nextEventID++
	event.ID = r.nextEventID
	copied := *event
	r.events[key] = &copied
	return true, &copied, nil
}

func (r *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, ev := range r.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeProvider struct {
	session *CheckoutSession
	sub     *ProviderSubscription
	err     error
}

func (p *fakeProvider) GetCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.session == nil || p.session.ID != id {
		return nil, errors.New("session not found")
	}
	return p.session, nil
}

func (p *fakeProvider) GetSubscription(_ context.Context, id string) (*ProviderSubscription, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.sub == nil || p.sub.ID != id {
		return nil, errors.New("subscription not found")
	}
	return p.sub, nil
}

var testPrices = PriceConfig{YearlyPriceID: "price_yearly", MonthlyPriceID: "price_monthly"}

func newTestService(repo Repository, provider ProviderClient, now time.Time) *Service {
	svc := NewService(repo, provider, testPrices)
	svc.now = func() time.Time { return now }
	return svc
}

func checkoutEvent(sessionID string) *Event {
	return &Event{
		ID:       "evt_checkout",
		TypeTag:  tagCheckoutSessionCompleted,
		Type:     EventCheckoutSessionCompleted,
		ObjectID: sessionID,
	}
}

func cancellationEvent(subID string) *Event {
	return &Event{
		ID:       "evt_cancel",
		TypeTag:  tagCustomerSubscriptionDeleted,
		Type:     EventCustomerSubscriptionDeleted,
		ObjectID: subID,
	}
}

func TestProcessEvent_CheckoutCompleted_Yearly(t *testing.T) {
	repo := newFakeRepo(&models.User{ID: 7, Email: "alice@example.com", Plan: "free"})
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_1",
			Customer:      "cus_123",
			CustomerEmail: "alice@example.com",
			LineItems:     []LineItem{{PriceID: "price_yearly", Recurring: true, Quantity: 1}},
		},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := newTestService(repo, provider, now)

	if err := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	user := repo.users[7]
	if user.StripeCustomerID != "cus_123" {
		t.Fatalf("expected customer id to be linked, got %q", user.StripeCustomerID)
	}
	if user.Plan != "premium" {
		t.Fatalf("expected premium plan, got %q", user.Plan)
	}

	sub := repo.subs[7]
	if sub == nil {
		t.Fatalf("expected subscription to be created")
	}
	if sub.BillingPeriod != models.BillingPeriodYearly || sub.Plan != "premium" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if !sub.EndDate.Equal(now.AddDate(1, 0, 0)) {
		t.Fatalf("expected end date %v, got %v", now.AddDate(1, 0, 0), sub.EndDate)
	}
}

func TestProcessEvent_CheckoutCompleted_Monthly(t *testing.T) {
	repo := newFakeRepo(&models.User{ID: 7, Email: "alice@example.com", Plan: "free"})
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_1",
			Customer:      "cus_123",
			CustomerEmail: "alice@example.com",
			LineItems:     []LineItem{{PriceID: "price_monthly", Recurring: true, Quantity: 1}},
		},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := newTestService(repo, provider, now)

	if err := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub := repo.subs[7]
	if sub == nil || sub.BillingPeriod != models.BillingPeriodMonthly {
		t.Fatalf("expected monthly subscription, got %+v", sub)
	}
	if !sub.EndDate.Equal(now.AddDate(0, 1, 0)) {
		t.Fatalf("expected end date %v, got %v", now.AddDate(0, 1, 0), sub.EndDate)
	}
}

func TestProcessEvent_CheckoutCompleted_Redelivery(t *testing.T) {
	repo := newFakeRepo(&models.User{ID: 7, Email: "alice@example.com", Plan: "free"})
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_1",
			Customer:      "cus_123",
			CustomerEmail: "alice@example.com",
			LineItems:     []LineItem{{PriceID: "price_yearly", Recurring: true, Quantity: 1}},
		},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := newTestService(repo, provider, now)

	for i := 0; i < 2; i++ {
		if err := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1")); err != nil {
			t.Fatalf("delivery %d: unexpected error: %v", i+1, err)
		}
	}

	if len(repo.subs) != 1 {
		t.Fatalf("expected one subscription row, got %d", len(repo.subs))
	}
	user := repo.users[7]
	if user.StripeCustomerID != "cus_123" || user.Plan != "premium" {
		t.Fatalf("redelivery diverged: %+v", user)
	}
}

func TestProcessEvent_CheckoutCompleted_CustomerIDSetOnce(t *testing.T) {
	repo := newFakeRepo(&models.User{ID: 7, Email: "alice@example.com", Plan: "premium", StripeCustomerID: "cus_original"})
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_1",
			Customer:      "cus_other",
			CustomerEmail: "alice@example.com",
			LineItems:     []LineItem{{PriceID: "price_yearly", Recurring: true, Quantity: 1}},
		},
	}
	svc := newTestService(repo, provider, time.Now())

	if err := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.users[7].StripeCustomerID != "cus_original" {
		t.Fatalf("customer id was overwritten: %q", repo.users[7].StripeCustomerID)
	}
}

func TestProcessEvent_CheckoutCompleted_AccountNotFound(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_1",
			Customer:      "cus_123",
			CustomerEmail: "nobody@example.com",
			LineItems:     []LineItem{{PriceID: "price_yearly", Recurring: true, Quantity: 1}},
		},
	}
	svc := newTestService(repo, provider, time.Now())

	err := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1"))
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if len(repo.users) != 0 {
		t.Fatalf("no account may be created on a checkout event")
	}
}

func TestProcessEvent_CheckoutCompleted_InvalidPriceID(t *testing.T) {
	repo := newFakeRepo(&models.User{ID: 7, Email: "alice@example.com", Plan: "free"})
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_1",
			Customer:      "cus_123",
			CustomerEmail: "alice@example.com",
			LineItems:     []LineItem{{PriceID: "price_unknown", Recurring: true, Quantity: 1}},
		},
	}
	svc := newTestService(repo, provider, time.Now())

	err := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1"))
	if !errors.Is(err, ErrInvalidPriceID) {
		t.Fatalf("expected ErrInvalidPriceID, got %v", err)
	}
	if repo.users[7].Plan != "free" {
		t.Fatalf("entitlement plan must not change on invalid price id")
	}
	if len(repo.subs) != 0 {
		t.Fatalf("no subscription may be created on invalid price id")
	}
}

func TestProcessEvent_CheckoutCompleted_NonRecurringIgnored(t *testing.T) {
	repo := newFakeRepo(&models.User{ID: 7, Email: "alice@example.com", Plan: "free"})
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_1",
			Customer:      "cus_123",
			CustomerEmail: "alice@example.com",
			LineItems:     []LineItem{{PriceID: "price_onetime", Recurring: false, Quantity: 2}},
		},
	}
	svc := newTestService(repo, provider, time.Now())

	if err := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.subs) != 0 {
		t.Fatalf("one-time purchases must not create subscriptions")
	}
	if repo.users[7].Plan != "free" {
		t.Fatalf("one-time purchases must not change the plan")
	}
}

func TestProcessEvent_SubscriptionDeleted(t *testing.T) {
	repo := newFakeRepo(
		&models.User{ID: 7, Email: "alice@example.com", Plan: "premium", StripeCustomerID: "cus_123"},
		&models.User{ID: 8, Email: "bob@example.com", Plan: "premium", StripeCustomerID: "cus_456"},
	)
	repo.subs[7] = &models.Subscription{ID: 1, UserID: 7, Plan: "premium", BillingPeriod: models.BillingPeriodYearly}
	provider := &fakeProvider{
		sub: &ProviderSubscription{ID: "sub_1", Customer: "cus_123", Status: "canceled"},
	}
	svc := newTestService(repo, provider, time.Now())

	if err := svc.ProcessEvent(context.Background(), cancellationEvent("sub_1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.users[7].Plan != "free" {
		t.Fatalf("expected canceled user to be free, got %q", repo.users[7].Plan)
	}
	if repo.subs[7].Plan != "free" {
		t.Fatalf("expected subscription row to be closed, got %q", repo.subs[7].Plan)
	}
	if repo.users[8].Plan != "premium" {
		t.Fatalf("other accounts must be left unchanged")
	}
}

func TestProcessEvent_SubscriptionDeleted_UnknownCustomer(t *testing.T) {
	repo := newFakeRepo(&models.User{ID: 7, Email: "alice@example.com", Plan: "premium", StripeCustomerID: "cus_123"})
	provider := &fakeProvider{
		sub: &ProviderSubscription{ID: "sub_1", Customer: "cus_unknown", Status: "canceled"},
	}
	svc := newTestService(repo, provider, time.Now())

	err := svc.ProcessEvent(context.Background(), cancellationEvent("sub_1"))
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if repo.users[7].Plan != "premium" {
		t.Fatalf("unrelated account must be left unchanged")
	}
}

func TestProcessEvent_UnhandledTypeIsAcknowledged(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{err: errors.New("must not be called")}, time.Now())

	ev := &Event{ID: "evt_x", TypeTag: "invoice.paid", Type: EventUnhandled, ObjectID: "in_1"}
	if err := svc.ProcessEvent(context.Background(), ev); err != nil {
		t.Fatalf("unhandled event types must not error, got %v", err)
	}
}

func TestProcessEvent_ProviderFailureWrapped(t *testing.T) {
	repo := newFakeRepo(&models.User{ID: 7, Email: "alice@example.com"})
	svc := newTestService(repo, &fakeProvider{err: errors.New("stripe is down")}, time.Now())

	err := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1"))
	var rerr *ReconciliationError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ReconciliationError, got %v", err)
	}
	if rerr.EventID != "evt_checkout" {
		t.Fatalf("expected event context on error, got %+v", rerr)
	}
}

func TestRecordWebhookEvent_Deduplicates(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{}, time.Now())

	in := WebhookEventInput{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventType:       tagCheckoutSessionCompleted,
		PayloadJSON:     `{"id":"evt_1"}`,
		SignatureValid:  true,
	}

	created, stored, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created || stored == nil {
		t.Fatalf("first delivery: created=%t stored=%v err=%v", created, stored, err)
	}

	created, _, err = svc.RecordWebhookEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("second delivery: unexpected error %v", err)
	}
	if created {
		t.Fatalf("redelivered event must be detected as duplicate")
	}
}

func TestRecordWebhookEvent_FailedEventStaysReprocessable(t *testing.T) {
	repo := newFakeRepo()
	provider := &fakeProvider{
		session: &CheckoutSession{
			ID:            "cs_1",
			Customer:      "cus_123",
			CustomerEmail: "alice@example.com",
			LineItems:     []LineItem{{PriceID: "price_yearly", Recurring: true, Quantity: 1}},
		},
	}
	svc := newTestService(repo, provider, time.Now())

	in := WebhookEventInput{
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventType:       tagCheckoutSessionCompleted,
		PayloadJSON:     `{"id":"evt_1"}`,
		SignatureValid:  true,
	}

	// First delivery: the account does not exist yet, reconciliation fails.
	created, stored, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("first delivery: created=%t err=%v", created, err)
	}
	procErr := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1"))
	if !errors.Is(procErr, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", procErr)
	}
	if err := svc.MarkWebhookProcessed(context.Background(), stored.ID, procErr); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	// Redelivery deduplicates, but a failed event must not count as done.
	created, stored, err = svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || created {
		t.Fatalf("redelivery: created=%t err=%v", created, err)
	}
	if stored.ProcessedSuccessfully() {
		t.Fatalf("failed event must stay reprocessable, got %+v", stored)
	}

	// Once the account exists the redelivered event reconciles.
	repo.users[7] = &models.User{ID: 7, Email: "alice@example.com", Plan: "free"}
	if err := svc.ProcessEvent(context.Background(), checkoutEvent("cs_1")); err != nil {
		t.Fatalf("redelivered event: %v", err)
	}
	if err := svc.MarkWebhookProcessed(context.Background(), stored.ID, nil); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	// Further redeliveries of the reconciled event short-circuit.
	created, stored, err = svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || created {
		t.Fatalf("third delivery: created=%t err=%v", created, err)
	}
	if !stored.ProcessedSuccessfully() {
		t.Fatalf("reconciled event must short-circuit redeliveries, got %+v", stored)
	}
}

func TestRecordWebhookEvent_FallbackEventID(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeProvider{}, time.Now())

	in := WebhookEventInput{Provider: "stripe", PayloadJSON: `{"type":"x"}`}
	created, stored, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("unexpected: created=%t err=%v", created, err)
	}
	if stored.ProviderEventID == "" {
		t.Fatalf("expected deterministic fallback event id")
	}

	// Same payload without an id must still deduplicate.
	created, _, err = svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || created {
		t.Fatalf("expected id-less redelivery to deduplicate, created=%t err=%v", created, err)
	}
}
