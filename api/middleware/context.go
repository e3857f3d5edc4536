package middleware

import "context"

// principal is the caller identity taken from a verified bearer token.
type principal struct {
	customerID   string
	customerType string
	deviceID     string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

// CustomerIDFromContext is empty for anonymous requests.
func CustomerIDFromContext(ctx context.Context) string { return principalFrom(ctx).customerID }

func CustomerTypeFromContext(ctx context.Context) string { return principalFrom(ctx).customerType }

// DeviceIDFromContext returns the device a guest token was minted for.
func DeviceIDFromContext(ctx context.Context) string { return principalFrom(ctx).deviceID }

// WithCustomerID marks ctx as authenticated for customerID, keeping any
// other claims already present.
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	p := principalFrom(ctx)
	p.customerID = customerID
	return withPrincipal(ctx, p)
}
