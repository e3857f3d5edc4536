package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-payments/pkg/config"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

// clockSkew tolerates small drift between API replicas.
const clockSkew = 30 * time.Second

var (
	ErrSecretRequired = errors.New("jwt secret is required")
	ErrIssuerRequired = errors.New("jwt issuer is required")
)

var signingMethod jwt.SigningMethod = jwt.SigningMethodHS256

// MintAccessToken signs a token for a registered customer.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if cfg.ExpirationMinutes <= 0 {
		return "", errors.New("jwt expiration minutes must be positive")
	}
	return sign(cfg, now, time.Duration(cfg.ExpirationMinutes)*time.Minute, payload)
}

// MintGuestToken signs the device-bound token a guest receives each time
// checkout resolves their identity.
func MintGuestToken(cfg config.JWTConfig, now time.Time, customerID uuid.UUID, deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", errors.New("guest tokens need a device id")
	}
	payload := AccessTokenPayload{CustomerID: customerID, CustomerType: enums.CustomerTypeGuest, DeviceID: deviceID}
	return sign(cfg, now, cfg.GuestTokenTTL(), payload)
}

func sign(cfg config.JWTConfig, now time.Time, ttl time.Duration, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg); err != nil {
		return "", err
	}
	switch {
	case payload.CustomerID == uuid.Nil:
		return "", errors.New("customer id is required")
	case !payload.CustomerType.IsValid():
		return "", fmt.Errorf("invalid customer type %q", payload.CustomerType)
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	now = now.UTC()
	claims := &AccessTokenClaims{
		CustomerID:   payload.CustomerID,
		CustomerType: payload.CustomerType,
		DeviceID:     payload.DeviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    cfg.Issuer,
			Subject:   payload.CustomerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, and returns the
// claims. Tokens without an expiry are rejected.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if claims.CustomerID == uuid.Nil || !claims.CustomerType.IsValid() {
		return nil, errors.New("token is missing customer claims")
	}
	return claims, nil
}

func checkConfig(cfg config.JWTConfig) error {
	if cfg.Secret == "" {
		return ErrSecretRequired
	}
	if cfg.Issuer == "" {
		return ErrIssuerRequired
	}
	return nil
}
