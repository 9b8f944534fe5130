package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nrehberg/plansync/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// StripeClient is a minimal read-only client for the Stripe REST API. Only
// the resource-retrieval calls the webhook pipeline needs are implemented;
// event payloads are never trusted as complete, the authoritative resource is
// always re-fetched through this client.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

// CheckoutSession is the expanded checkout session detail for a completed
// purchase flow.
type CheckoutSession struct {
	ID            string
	Customer      string
	CustomerEmail string
	LineItems     []LineItem
}

// LineItem is one purchased item of a checkout session.
type LineItem struct {
	PriceID   string
	Recurring bool
	Quantity  int64
}

// ProviderSubscription is the authoritative subscription resource fetched on
// cancellation events.
type ProviderSubscription struct {
	ID       string
	Customer string
	Status   string
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetCheckoutSession retrieves a checkout session with its line items
// expanded.
func (c *StripeClient) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	sessionID := strings.TrimSpace(id)
	if sessionID == "" {
		return nil, errors.New("checkout session id is required")
	}

	q := url.Values{}
	q.Add("expand[]", "line_items")
	body, err := c.get(ctx, "/checkout/sessions/"+url.PathEscape(sessionID), q)
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID              string `json:"id"`
		Customer        string `json:"customer"`
		CustomerDetails struct {
			Email string `json:"email"`
		} `json:"customer_details"`
		LineItems struct {
			Data []struct {
				Quantity int64 `json:"quantity"`
				Price    struct {
					ID   string `json:"id"`
					Type string `json:"type"`
				} `json:"price"`
			} `json:"data"`
		} `json:"line_items"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("checkout session response missing id")
	}

	session := &CheckoutSession{
		ID:            strings.TrimSpace(raw.ID),
		Customer:      strings.TrimSpace(raw.Customer),
		CustomerEmail: strings.TrimSpace(raw.CustomerDetails.Email),
	}
	for _, item := range raw.LineItems.Data {
		session.LineItems = append(session.LineItems, LineItem{
			PriceID:   strings.TrimSpace(item.Price.ID),
			Recurring: strings.EqualFold(item.Price.Type, "recurring"),
			Quantity:  item.Quantity,
		})
	}
	return session, nil
}

// GetSubscription retrieves a subscription resource by id.
func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	subscriptionID := strings.TrimSpace(id)
	if subscriptionID == "" {
		return nil, errors.New("subscription id is required")
	}

	body, err := c.get(ctx, "/subscriptions/"+url.PathEscape(subscriptionID), nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID       string `json:"id"`
		Customer string `json:"customer"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("subscription response missing id")
	}

	return &ProviderSubscription{
		ID:       strings.TrimSpace(raw.ID),
		Customer: strings.TrimSpace(raw.Customer),
		Status:   strings.TrimSpace(raw.Status),
	}, nil
}

func (c *StripeClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	baseURL := strings.TrimRight(c.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultStripeAPIBaseURL
	}
	u, err := url.Parse(baseURL + path)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe request %s failed: status=%d body=%s", path, resp.StatusCode, string(body))
	}
	return body, nil
}
