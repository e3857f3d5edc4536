package enums

import "testing"

func TestParsePaymentStatusNormalizesCase(t *testing.T) {
	cases := map[string]PaymentStatus{
		"COMPLETED":          PaymentStatusCompleted,
		" pending ":          PaymentStatusPending,
		"Partially_Refunded": PaymentStatusPartiallyRefunded,
	}
	for raw, want := range cases {
		got, err := ParsePaymentStatus(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s got %s", raw, want, got)
		}
	}

	if _, err := ParsePaymentStatus("settled"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestPaymentMethodRequiresGateway(t *testing.T) {
	gatewayLess := []PaymentMethod{
		PaymentMethodBankTransfer,
		PaymentMethodCashOnDelivery,
		PaymentMethodBuyNowPayLater,
		PaymentMethodHomeDeliveryPayment,
	}
	for _, method := range gatewayLess {
		if method.RequiresGateway() {
			t.Fatalf("%s should bypass gateways", method)
		}
	}
	if !PaymentMethodCard.RequiresGateway() || !PaymentMethodWallet.RequiresGateway() {
		t.Fatal("card and wallet must route through a gateway")
	}
	if PaymentMethodCashOnDelivery.Label() != "Cash on Delivery" {
		t.Fatalf("unexpected label %q", PaymentMethodCashOnDelivery.Label())
	}
}

func TestPaymentStatusValuesIsACopy(t *testing.T) {
	values := PaymentStatusValues()
	values[0] = "mutated"
	if !PaymentStatusPending.IsValid() {
		t.Fatal("mutating the returned slice must not affect the enumeration")
	}
}
