package enums

import "testing"

func TestSessionStateTerminal(t *testing.T) {
	cases := map[SessionState]bool{
		SessionStateStarted:          false,
		SessionStateAddressSelected:  false,
		SessionStateShippingSelected: false,
		SessionStatePaymentPending:   false,
		SessionStateCompleted:        true,
		SessionStateFailed:           true,
		SessionStateAbandoned:        true,
		SessionStateExpired:          true,
	}
	for state, want := range cases {
		if got := state.IsTerminal(); got != want {
			t.Fatalf("%s: expected terminal=%v got %v", state, want, got)
		}
		if !state.IsValid() {
			t.Fatalf("%s should be valid", state)
		}
	}
}

func TestOrderStatusAllowsItemDeletion(t *testing.T) {
	if !OrderStatusPending.AllowsItemDeletion() || !OrderStatusFailed.AllowsItemDeletion() {
		t.Fatal("pending and failed orders allow item deletion")
	}
	for _, s := range []OrderStatus{OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCanceled} {
		if s.AllowsItemDeletion() {
			t.Fatalf("%s must not allow item deletion", s)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := ParseBlockedEntityType("phone"); err == nil {
		t.Fatal("expected unknown blocked entity type to fail")
	}
	if v, err := ParseVelocityType("card"); err != nil || v != VelocityTypeCard {
		t.Fatalf("expected card velocity type, got %q err=%v", v, err)
	}
	if _, err := ParseFraudVerdict("maybe"); err == nil {
		t.Fatal("expected unknown verdict to fail")
	}
	if _, err := ParseAuditEntityKind("user"); err == nil {
		t.Fatal("audit entity kinds are closed")
	}
}
