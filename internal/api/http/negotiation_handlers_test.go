package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appAuth "github.com/negotiation-hub/negotiation-hub/internal/application/auth"
	appNegotiation "github.com/negotiation-hub/negotiation-hub/internal/application/negotiation"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/keystore"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/memory"
	"github.com/negotiation-hub/negotiation-hub/internal/infrastructure/sse"
)

const testSecret = "test-secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	server *httptest.Server
	clock  *testClock
	auth   *appAuth.Service
}

func newTestEnv(t *testing.T, limiter *RateLimiter) *testEnv {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
	hub := sse.NewHub()
	svc := appNegotiation.NewService(memory.NewNegotiationRepository(), appNegotiation.Options{
		LockTTLSeconds: 300,
		Publisher:      sse.NewNegotiationPublisher(hub, clock.Now, zerolog.Nop()),
		Clock:          clock.Now,
	}, zerolog.Nop())
	authSvc := appAuth.NewService(keystore.NewSingle(testSecret), zerolog.Nop())
	srv := NewServer(svc, authSvc, hub, Options{TrustedHeader: true, Limiter: limiter}, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		hub.Stop()
		ts.Close()
	})
	return &testEnv{server: ts, clock: clock, auth: authSvc}
}

func (e *testEnv) do(t *testing.T, party, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if party != "" {
		req.Header.Set(headerPartyID, party)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(bytes.TrimSpace(data)) > 0 && string(bytes.TrimSpace(data)) != "null" {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func (e *testEnv) create(t *testing.T) string {
	t.Helper()
	code, body := e.do(t, "buyer", http.MethodPost, "/v1/negotiations", map[string]interface{}{
		"product_id": "42",
		"seller_id":  "seller",
		"price":      "500",
		"quantity":   10,
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["id"].(string)
}

func TestCreateAndGetNegotiation(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.create(t)

	code, body := env.do(t, "seller", http.MethodGet, "/v1/negotiations/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "buyer", body["last_offer_by"])
	assert.Equal(t, "500", body["proposed_price"])
	assert.Equal(t, false, body["is_locked"])
	_, hasExpiry := body["lock_expires_in"]
	assert.False(t, hasExpiry)

	code, body = env.do(t, "stranger", http.MethodGet, "/v1/negotiations/"+id, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NOT_PARTICIPANT", body["error"])

	code, body = env.do(t, "buyer", http.MethodGet, "/v1/negotiations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])
}

func TestCreateRequestValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.do(t, "buyer", http.MethodPost, "/v1/negotiations", map[string]interface{}{
		"seller_id": "seller",
		"quantity":  1,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["message"], "product_id is required")
	assert.Contains(t, body["message"], "price is required")

	code, _ = env.do(t, "buyer", http.MethodPost, "/v1/negotiations", map[string]interface{}{
		"product_id": "42", "seller_id": "seller", "price": 1, "quantity": 1, "discount": 5,
	})
	assert.Equal(t, http.StatusBadRequest, code, "unknown fields are rejected")

	code, body = env.do(t, "buyer", http.MethodPost, "/v1/negotiations", map[string]interface{}{
		"product_id": "42", "seller_id": "seller", "price": -3, "quantity": 1,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])

	env.create(t)
	code, body = env.do(t, "buyer", http.MethodPost, "/v1/negotiations", map[string]interface{}{
		"product_id": "42", "seller_id": "seller", "price": 1, "quantity": 1,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", body["error"])
}

func TestLockFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.create(t)

	code, body := env.do(t, "seller", http.MethodPost, "/v1/negotiations/"+id+"/lock", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["is_locked"])
	assert.Equal(t, float64(300), body["lock_expires_in"])
	assert.Equal(t, "seller", body["lock_owner"])

	env.clock.Advance(10 * time.Second)
	code, body = env.do(t, "buyer", http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"price": "450"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "LOCK_HELD_BY_OTHER", body["error"])
	assert.Equal(t, float64(290), body["lock_expires_in"])

	code, body = env.do(t, "buyer", http.MethodPost, "/v1/negotiations/"+id+"/lock/extend", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NOT_LOCK_OWNER", body["error"])

	code, body = env.do(t, "seller", http.MethodPost, "/v1/negotiations/"+id+"/lock/extend", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(300), body["lock_expires_in"])

	code, body = env.do(t, "buyer", http.MethodPost, "/v1/negotiations/"+id+"/lock/release", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["is_locked"])
	assert.Nil(t, body["lock_owner"])

	env.clock.Advance(301 * time.Second)
	code, _ = env.do(t, "buyer", http.MethodPost, "/v1/negotiations/"+id+"/lock", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestUpdateFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.create(t)

	code, body := env.do(t, "buyer", http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"status": "ACCEPTED"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "TURN_VIOLATION", body["error"])

	code, body = env.do(t, "seller", http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"status": "SETTLED"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["message"], "status must be one of")

	code, body = env.do(t, "seller", http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"price": "480", "message": "best I can do"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "COUNTER_OFFER", body["status"])
	assert.Equal(t, "seller", body["last_offer_by"])

	code, body = env.do(t, "buyer", http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"status": " accepted"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "ACCEPTED", body["status"])

	code, body = env.do(t, "seller", http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"quantity": 3})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NEGOTIATION_CLOSED", body["error"])

	code, body = env.do(t, "buyer", http.MethodGet, "/v1/negotiations/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, code)
	history := body["history"].([]interface{})
	require.Len(t, history, 3)
	counter := history[1].(map[string]interface{})
	assert.Equal(t, "COUNTER", counter["action"])
	assert.Equal(t, "best I can do", counter["message"])

	code, body = env.do(t, "buyer", http.MethodPost, "/v1/negotiations/"+id+"/order", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "ORDERED", body["status"])
}

func TestOfferPrecisionOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.create(t)

	for _, price := range []string{"10.12345", "0.00001", "100000000000000"} {
		code, body := env.do(t, "seller", http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"price": price})
		assert.Equal(t, http.StatusBadRequest, code, price)
		assert.Equal(t, "VALIDATION_ERROR", body["error"], price)
	}

	code, body := env.do(t, "seller", http.MethodPatch, "/v1/negotiations/"+id, map[string]interface{}{"price": "10.1234"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "10.1234", body["proposed_price"])
}

func TestListAndActiveOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.create(t)

	code, body := env.do(t, "seller", http.MethodGet, "/v1/negotiations?status=pending", nil)
	require.Equal(t, http.StatusOK, code)
	items := body["negotiations"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].(map[string]interface{})["id"])

	code, body = env.do(t, "seller", http.MethodGet, "/v1/negotiations?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])

	code, body = env.do(t, "buyer", http.MethodGet, "/v1/negotiations/active?product_id=42", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, body["id"])

	code, body = env.do(t, "buyer", http.MethodGet, "/v1/negotiations/active?product_id=99", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, body)
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.do(t, "", http.MethodGet, "/v1/negotiations", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", body["error"])

	token, err := env.auth.IssueToken("buyer", appAuth.RoleParty, time.Minute)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/negotiations", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, body = env.do(t, "buyer", http.MethodPost, "/v1/admin/locks/sweep", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", body["error"])
}

func TestAdminSweep(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.create(t)
	code, _ := env.do(t, "seller", http.MethodPost, "/v1/negotiations/"+id+"/lock", nil)
	require.Equal(t, http.StatusOK, code)
	env.clock.Advance(10 * time.Minute)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/admin/locks/sweep", nil)
	require.NoError(t, err)
	req.Header.Set(headerPartyID, "ops")
	req.Header.Set(headerPartyRole, "admin")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out["cleared"])
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, NewRateLimiter(0.001, 2))

	for i := 0; i < 2; i++ {
		code, _ := env.do(t, "buyer", http.MethodGet, "/v1/negotiations", nil)
		assert.Equal(t, http.StatusOK, code)
	}
	code, body := env.do(t, "buyer", http.MethodGet, "/v1/negotiations", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_LIMITED", body["error"])

	code, _ = env.do(t, "seller", http.MethodGet, "/v1/negotiations", nil)
	assert.Equal(t, http.StatusOK, code, "buckets are per party")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	code, body := env.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamDeliversChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.create(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/v1/negotiations/stream?client_id=tab-1", nil)
	require.NoError(t, err)
	req.Header.Set(headerPartyID, "buyer")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	code, _ := env.do(t, "seller", http.MethodPost, "/v1/negotiations/"+id+"/lock", nil)
	require.Equal(t, http.StatusOK, code)

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, "negotiation.lock", event)

	var msg sse.Message
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Data, &view))
	assert.Equal(t, id, view["id"])
	assert.Equal(t, true, view["is_locked"])
}
