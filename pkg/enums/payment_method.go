package enums

import "slices"

// PaymentMethod describes how a customer intends to settle an order.
type PaymentMethod string

const (
	PaymentMethodCard                PaymentMethod = "card"
	PaymentMethodWallet              PaymentMethod = "wallet"
	PaymentMethodBankTransfer        PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery      PaymentMethod = "cash_on_delivery"
	PaymentMethodBuyNowPayLater      PaymentMethod = "buy_now_pay_later"
	PaymentMethodHomeDeliveryPayment PaymentMethod = "home_delivery_payment"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCard,
	PaymentMethodWallet,
	PaymentMethodBankTransfer,
	PaymentMethodCashOnDelivery,
	PaymentMethodBuyNowPayLater,
	PaymentMethodHomeDeliveryPayment,
}

var paymentMethodLabels = map[PaymentMethod]string{
	PaymentMethodCard:                "Card",
	PaymentMethodWallet:              "Wallet",
	PaymentMethodBankTransfer:        "Bank Transfer",
	PaymentMethodCashOnDelivery:      "Cash on Delivery",
	PaymentMethodBuyNowPayLater:      "Buy Now Pay Later",
	PaymentMethodHomeDeliveryPayment: "Home Delivery Payment",
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// Label returns the customer-facing name of the method.
func (p PaymentMethod) Label() string {
	if label, ok := paymentMethodLabels[p]; ok {
		return label
	}
	return string(p)
}

// RequiresGateway reports whether settling with this method goes through a
// third-party processor. Manual methods are confirmed out of band.
func (p PaymentMethod) RequiresGateway() bool {
	switch p {
	case PaymentMethodBankTransfer, PaymentMethodCashOnDelivery, PaymentMethodBuyNowPayLater, PaymentMethodHomeDeliveryPayment:
		return false
	default:
		return true
	}
}

func (p PaymentMethod) IsValid() bool {
	return slices.Contains(validPaymentMethods, p)
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse(validPaymentMethods, value, "payment method")
}
