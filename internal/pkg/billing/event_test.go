package billing

import "testing"

func TestParseEventType(t *testing.T) {
	tests := []struct {
		in   string
		want EventType
	}{
		{in: "checkout.session.completed", want: EventCheckoutSessionCompleted},
		{in: "customer.subscription.deleted", want: EventCustomerSubscriptionDeleted},
		{in: "CHECKOUT.SESSION.COMPLETED", want: EventCheckoutSessionCompleted},
		{in: "invoice.paid", want: EventUnhandled},
		{in: "", want: EventUnhandled},
	}

	for _, tt := range tests {
		if got := ParseEventType(tt.in); got != tt.want {
			t.Fatalf("ParseEventType(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseEvent(t *testing.T) {
	raw := []byte(`{
		"id": "evt_123",
		"type": "checkout.session.completed",
		"data": { "object": { "id": "cs_456" } }
	}`)

	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.ID != "evt_123" || ev.ObjectID != "cs_456" {
		t.Fatalf("unexpected ids: event=%q object=%q", ev.ID, ev.ObjectID)
	}
	if ev.Type != EventCheckoutSessionCompleted {
		t.Fatalf("unexpected event type %d", ev.Type)
	}
	if string(ev.Raw) != string(raw) {
		t.Fatalf("expected raw payload to be preserved")
	}
}

func TestParseEvent_MissingType(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"id":"evt_1"}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
	if _, err := ParseEvent([]byte(`not-json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestParseEvent_UnknownTypeIsNotAnError(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Type != EventUnhandled {
		t.Fatalf("expected unhandled type, got %d", ev.Type)
	}
}
