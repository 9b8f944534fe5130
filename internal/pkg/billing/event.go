package billing

import (
	"encoding/json"
	"errors"
	"strings"
)

// EventType is the closed set of Stripe event variants this service reacts
// to. Every tag outside the set maps to EventUnhandled, which is acknowledged
// without processing.
type EventType int

const (
	EventUnhandled EventType = iota
	EventCheckoutSessionCompleted
	EventCustomerSubscriptionDeleted
)

const (
	tagCheckoutSessionCompleted    = "checkout.session.completed"
	tagCustomerSubscriptionDeleted = "customer.subscription.deleted"
)

// ParseEventType maps a provider type tag onto the closed event enum.
func ParseEventType(tag string) EventType {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case tagCheckoutSessionCompleted:
		return EventCheckoutSessionCompleted
	case tagCustomerSubscriptionDeleted:
		return EventCustomerSubscriptionDeleted
	default:
		return EventUnhandled
	}
}

// Event is a verified provider notification. It carries only the envelope
// fields the handlers need; the authoritative resource is always re-fetched
// from the provider by ObjectID, the embedded payload is not trusted as
// complete.
type Event struct {
	ID       string
	TypeTag  string
	Type     EventType
	ObjectID string
	Raw      []byte
}

// ParseEvent decodes the provider event envelope. Callers must verify the
// signature over the raw body first.
func ParseEvent(payload []byte) (*Event, error) {
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Type) == "" {
		return nil, errors.New("event payload missing type")
	}

	return &Event{
		ID:       strings.TrimSpace(raw.ID),
		TypeTag:  strings.TrimSpace(raw.Type),
		Type:     ParseEventType(raw.Type),
		ObjectID: strings.TrimSpace(raw.Data.Object.ID),
		Raw:      append([]byte(nil), payload...),
	}, nil
}
