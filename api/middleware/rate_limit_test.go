package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	hits map[string]int64
	err  error
}

func (s *countingStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.hits == nil {
		s.hits = map[string]int64{}
	}
	s.hits[key]++
	return s.hits[key], nil
}

func postAddress(h http.Handler, ip, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/address", strings.NewReader(body))
	req.RemoteAddr = ip + ":41000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func emailBody(email string) string {
	return `{"email":"` + email + `","first_name":"Ana"}`
}

// echoBody proves the limiter hands the full body on to the next handler.
func echoBody() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	})
}

func TestRateLimitPassesUnderBudgetAndKeepsBody(t *testing.T) {
	h := RateLimit(NewRateLimitPolicy("checkout", time.Minute, 3, 3), &countingStore{}, nil)(echoBody())

	for i := 0; i < 3; i++ {
		rec := postAddress(h, "10.0.0.1", emailBody("a@example.com"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, emailBody("a@example.com"), rec.Body.String())
	}
}

func TestRateLimitEmailBudgetSpansIPs(t *testing.T) {
	store := &countingStore{}
	h := RateLimit(NewRateLimitPolicy("checkout", time.Minute, 100, 2), store, nil)(echoBody())

	postAddress(h, "10.0.0.1", emailBody("Buyer@Example.com"))
	postAddress(h, "10.0.0.2", emailBody("buyer@example.com "))
	rec := postAddress(h, "10.0.0.3", emailBody("buyer@example.com"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, postAddress(h, "10.0.0.3", emailBody("other@example.com")).Code)
	for key := range store.hits {
		assert.NotContains(t, key, "example.com", "emails must be hashed")
	}
}

func TestRateLimitIPBudget(t *testing.T) {
	store := &countingStore{}
	h := RateLimit(NewRateLimitPolicy("Checkout_Address", time.Minute, 1, 0), store, nil)(echoBody())

	postAddress(h, "10.0.0.9", emailBody("a@example.com"))
	assert.Equal(t, http.StatusTooManyRequests, postAddress(h, "10.0.0.9", emailBody("b@example.com")).Code)
	assert.Contains(t, store.hits, "sf:rl:ip:checkout_address:10.0.0.9")
}

func TestRateLimitPrefersForwardedFor(t *testing.T) {
	store := &countingStore{}
	h := RateLimit(NewRateLimitPolicy("checkout", time.Minute, 5, 0), store, nil)(echoBody())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, store.hits, "sf:rl:ip:checkout:203.0.113.7")
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	store := &countingStore{err: errors.New("redis down")}
	h := RateLimit(NewRateLimitPolicy("checkout", time.Minute, 1, 1), store, nil)(echoBody())

	assert.Equal(t, http.StatusServiceUnavailable, postAddress(h, "10.0.0.1", emailBody("a@example.com")).Code)
}

func TestRateLimitIgnoresNonJSONBodies(t *testing.T) {
	store := &countingStore{}
	h := RateLimit(NewRateLimitPolicy("checkout", time.Minute, 0, 1), store, nil)(echoBody())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, postAddress(h, "10.0.0.1", "email=a@example.com").Code)
	}
	assert.Empty(t, store.hits)
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := &countingStore{}
	h := RateLimit(NewRateLimitPolicy("checkout", 0, 1, 1), store, nil)(echoBody())
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, postAddress(h, "10.0.0.1", emailBody("a@example.com")).Code)
	}
	assert.Empty(t, store.hits)
}
