package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-payments/pkg/auth"
	"github.com/angelmondragon/storefront-payments/pkg/config"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60, GuestTokenMinutes: 60}
}

func TestOptionalAuthPassesAnonymousRequests(t *testing.T) {
	var called bool
	handler := OptionalAuth(testJWTConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if id := CustomerIDFromContext(r.Context()); id != "" {
			t.Fatalf("expected no customer in context, got %s", id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK || !called {
		t.Fatalf("expected anonymous request to pass, got %d", resp.Code)
	}
}

func TestOptionalAuthRejectsInvalidToken(t *testing.T) {
	handler := OptionalAuth(testJWTConfig(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOptionalAuthSeedsRegisteredCustomer(t *testing.T) {
	cfg := testJWTConfig()
	customerID := uuid.New()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		CustomerID:   customerID,
		CustomerType: enums.CustomerTypeRegistered,
		JTI:          uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	var gotID, gotType string
	handler := OptionalAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = CustomerIDFromContext(r.Context())
		gotType = CustomerTypeFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotID != customerID.String() {
		t.Fatalf("expected customer %s got %s", customerID, gotID)
	}
	if gotType != string(enums.CustomerTypeRegistered) {
		t.Fatalf("expected registered type got %s", gotType)
	}
}

func TestOptionalAuthCarriesGuestDevice(t *testing.T) {
	cfg := testJWTConfig()
	token, err := auth.MintGuestToken(cfg, time.Now(), uuid.New(), "device-1")
	if err != nil {
		t.Fatalf("mint guest token: %v", err)
	}

	var device string
	handler := OptionalAuth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device = DeviceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if device != "device-1" {
		t.Fatalf("expected guest device in context, got %q", device)
	}
}
