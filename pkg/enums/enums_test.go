package enums

import "testing"

func TestParseCurrencyIgnoresCase(t *testing.T) {
	got, err := ParseCurrency(" eur ")
	if err != nil || got != CurrencyEUR {
		t.Fatalf("expected EUR, got %q err=%v", got, err)
	}
	if _, err := ParseCurrency("XYZ"); err == nil {
		t.Fatalf("expected unknown currency error")
	}
	if CurrencyEUR.Lower() != "eur" {
		t.Fatalf("unexpected lower form %q", CurrencyEUR.Lower())
	}
}

func TestCurrencyExponent(t *testing.T) {
	for _, c := range []Currency{CurrencyJPY, CurrencyKRW} {
		if c.Exponent() != 0 {
			t.Fatalf("%s should be zero-decimal", c)
		}
	}
	if CurrencyUSD.Exponent() != 2 {
		t.Fatalf("USD should have two minor digits")
	}
}

func TestParseActorRole(t *testing.T) {
	if r, err := ParseActorRole("professor"); err != nil || r != ActorRoleProfessor {
		t.Fatalf("unexpected role %q err=%v", r, err)
	}
	if _, err := ParseActorRole("vendor"); err == nil {
		t.Fatalf("expected invalid role")
	}
}

func TestOutboxEnums(t *testing.T) {
	if _, err := ParseOutboxEventType("payment_succeeded"); err != nil {
		t.Fatalf("payment_succeeded should parse: %v", err)
	}
	if EventPaymentSucceeded.IsValid() != true || OutboxEventType("order_created").IsValid() {
		t.Fatalf("unexpected event type validity")
	}
	if !DeadLetterMaxAttempts.IsValid() {
		t.Fatalf("max_attempts should be valid")
	}
}

func TestPaymentStatus(t *testing.T) {
	got, err := ParsePaymentStatus(" SUCCEEDED ")
	if err != nil || got != PaymentStatusSucceeded {
		t.Fatalf("expected succeeded, got %q err=%v", got, err)
	}
	if _, err := ParsePaymentStatus("refunded"); err == nil {
		t.Fatalf("refunded is not a status")
	}
	for status, terminal := range map[PaymentStatus]bool{
		PaymentStatusPending:    false,
		PaymentStatusProcessing: false,
		PaymentStatusSucceeded:  true,
		PaymentStatusFailed:     true,
	} {
		if status.IsTerminal() != terminal {
			t.Fatalf("%s terminal=%v", status, status.IsTerminal())
		}
	}
	if DeadLetterReason("timeout").IsValid() {
		t.Fatalf("unknown dead letter reason accepted")
	}
}
