package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-payments/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-payments/internal/checkout"
	"github.com/angelmondragon/storefront-payments/internal/gateways"
	"github.com/angelmondragon/storefront-payments/internal/identity"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
)

type stubIdentity struct {
	input  identity.ResolveInput
	result *identity.ResolveResult
	err    error
}

func (s *stubIdentity) Resolve(_ context.Context, input identity.ResolveInput) (*identity.ResolveResult, error) {
	s.input = input
	return s.result, s.err
}

type stubCheckout struct {
	input  checkoutsvc.ProcessPaymentInput
	calls  int
	result *checkoutsvc.ProcessPaymentResult
	err    error
}

func (s *stubCheckout) ProcessPayment(_ context.Context, input checkoutsvc.ProcessPaymentInput) (*checkoutsvc.ProcessPaymentResult, error) {
	s.calls++
	s.input = input
	return s.result, s.err
}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestAddressForwardsDeviceAndTokenSubject(t *testing.T) {
	customerID := uuid.New()
	svc := &stubIdentity{result: &identity.ResolveResult{User: identity.CustomerView{ID: customerID, Type: enums.CustomerTypeRegistered}}}

	body := []byte(`{"user_id":"` + customerID.String() + `","region_id":"` + uuid.NewString() + `","prefecture_id":"` + uuid.NewString() + `","city":"Osaka","postal_code":"530-0001","line1":"1-1 Umeda"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/address", bytes.NewReader(body))
	req.Header.Set(DeviceIDHeader, "device-42")
	req = req.WithContext(middleware.WithCustomerID(req.Context(), customerID.String()))
	rec := httptest.NewRecorder()

	Address(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "device-42", svc.input.DeviceID)
	require.NotNil(t, svc.input.Subject)
	assert.Equal(t, customerID, *svc.input.Subject)
	assert.Equal(t, "Osaka", svc.input.City)
}

func TestAddressMapsServiceErrors(t *testing.T) {
	svc := &stubIdentity{err: pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{"email": "has already been taken"})}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/address", bytes.NewReader([]byte(`{"email":"taken@example.com"}`)))
	rec := httptest.NewRecorder()
	Address(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "has already been taken", env.Error.Details["email"])
}

func TestPaymentUsesPathOrderAndIdempotencyKey(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckout{result: &checkoutsvc.ProcessPaymentResult{
		OrderID:       orderID,
		PaymentMethod: enums.PaymentMethodCard,
		PaymentID:     "pi_123",
		PaymentIntent: "pi_123_secret",
		Amount:        decimal.NewFromInt(1000),
		Currency:      "USD",
	}}

	body := []byte(`{"name":"Aiko","email":"aiko@example.com","payment_method":"card","currency":"USD","amount":"1000"}`)
	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/payment", bytes.NewReader(body)), orderID.String())
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()

	Payment(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orderID, svc.input.OrderID)
	assert.Equal(t, "key-1", svc.input.IdempotencyKey)
	assert.True(t, svc.input.Amount.Equal(decimal.NewFromInt(1000)))

	var data map[string]any
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, "pi_123", data["payment_id"])
	assert.Equal(t, "pi_123_secret", data["payment_intent"])
}

func TestPaymentRejectsMismatchedBodyOrder(t *testing.T) {
	svc := &stubCheckout{}
	orderID := uuid.New()
	body := []byte(`{"order_id":"` + uuid.NewString() + `","name":"A","email":"a@example.com","payment_method":"card","currency":"USD","amount":"1"}`)
	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)), orderID.String())
	rec := httptest.NewRecorder()

	Payment(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.calls)
}

func TestPaymentGatewayFailureCarriesOrderID(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckout{err: gateways.FailureError(orderID, &gateways.Result{ErrorMessage: "Your card was declined."}, nil)}

	body := []byte(`{"name":"A","email":"a@example.com","payment_method":"card","currency":"USD","amount":"10"}`)
	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)), orderID.String())
	rec := httptest.NewRecorder()

	Payment(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, string(pkgerrors.CodeGateway), env.Error.Code)
	assert.Equal(t, "Your card was declined.", env.Error.Message)
	assert.Equal(t, orderID.String(), env.Error.Details["order_id"])
}

func TestPaymentRejectsMalformedOrderID(t *testing.T) {
	svc := &stubCheckout{}
	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{}`))), "42")
	rec := httptest.NewRecorder()

	Payment(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.calls)
}
