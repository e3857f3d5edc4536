package enums

import "slices"

// CustomerType distinguishes registered accounts from checkout-created guests.
type CustomerType string

const (
	CustomerTypeRegistered CustomerType = "registered"
	CustomerTypeGuest      CustomerType = "guest"
)

var validCustomerTypes = []CustomerType{
	CustomerTypeRegistered,
	CustomerTypeGuest,
}

// String implements fmt.Stringer.
func (c CustomerType) String() string {
	return string(c)
}

func (c CustomerType) IsValid() bool {
	return slices.Contains(validCustomerTypes, c)
}

// ParseCustomerType converts raw input into a CustomerType.
func ParseCustomerType(value string) (CustomerType, error) {
	return parse(validCustomerTypes, value, "customer type")
}
