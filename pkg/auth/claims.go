package auth

import (
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	CustomerID   uuid.UUID
	CustomerType enums.CustomerType
	// DeviceID scopes guest tokens to the device that performed checkout.
	DeviceID string
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	CustomerID   uuid.UUID          `json:"customer_id"`
	CustomerType enums.CustomerType `json:"typ"`
	DeviceID     string             `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// IsGuest reports whether the token was issued to a checkout guest.
func (c *AccessTokenClaims) IsGuest() bool {
	return c != nil && c.CustomerType == enums.CustomerTypeGuest
}
