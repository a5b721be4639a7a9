package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	checkoutsvc "github.com/angelmondragon/scentmarket-backend/internal/checkout"
	"github.com/angelmondragon/scentmarket-backend/internal/orders"
	"github.com/angelmondragon/scentmarket-backend/pkg/auth"
	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
	"github.com/angelmondragon/scentmarket-backend/pkg/pagination"
)

var testJWT = config.JWTConfig{Secret: "router-secret", Issuer: "scentmarket-test", ExpirationMinutes: 15}

type checkoutStub struct{ calls int }

func (s *checkoutStub) Execute(ctx context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
	s.calls++
	return &checkoutsvc.Result{Order: &orders.OrderDetail{ID: uuid.New(), UserID: input.UserID, Status: enums.OrderStatusProcessing}}, nil
}

type ordersStub struct{ orders.Service }

func (ordersStub) SalesSummary(context.Context, enums.SalesPeriod) (*orders.SalesSummary, error) {
	return &orders.SalesSummary{}, nil
}

func (ordersStub) ListUserOrders(context.Context, uuid.UUID, pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{Orders: []orders.OrderDetail{}}, nil
}

// memoryStore keeps idempotency records and rate-limit windows in memory.
// reset starts a new window for every scope.
type memoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	windows map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, windows: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (m *memoryStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[scope]++
	return m.windows[scope] <= limit, m.windows[scope], nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.windows)
}

func testRouter(t *testing.T, checkout *checkoutStub) http.Handler {
	return storeRouter(t, checkout, nil, 0)
}

func storeRouter(t *testing.T, checkout *checkoutStub, store *memoryStore, perMinute int64) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := &config.Config{
		App:      config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT:      testJWT,
		Checkout: config.CheckoutConfig{LockTimeout: time.Second, MaxLineItems: 10, RateLimitPerMinute: perMinute},
		Idempotency: config.IdempotencyConfig{
			CheckoutTTL:    7 * 24 * time.Hour,
			CartTTL:        24 * time.Hour,
			AdminStatusTTL: 24 * time.Hour,
		},
	}
	deps := Deps{
		Config:   cfg,
		Logger:   logger.Nop(),
		Gatherer: reg,
		HTTP:     metrics.NewHTTPMetrics(reg),
		Checkout: checkout,
		Orders:   ordersStub{},
	}
	if store != nil {
		deps.Store = store
	}
	return NewRouter(deps)
}

func bearer(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthLiveRoute(t *testing.T) {
	resp := httptest.NewRecorder()
	testRouter(t, &checkoutStub{}).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestMetricsRouteExposesHTTPMetrics(t *testing.T) {
	router := testRouter(t, &checkoutStub{})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `http_requests_total{method="GET",route="/health/live",status="200"} 1`)
}

func TestCheckoutRouteRequiresToken(t *testing.T) {
	stub := &checkoutStub{}
	resp := httptest.NewRecorder()
	testRouter(t, stub).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"shipping_address":"x"}`)))

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Zero(t, stub.calls)
}

func TestCheckoutRouteCreatesOrder(t *testing.T) {
	stub := &checkoutStub{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"shipping_address":"1 Main St"}`))
	req.Header.Set("Authorization", bearer(t, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()

	testRouter(t, stub).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, 1, stub.calls)
}

func TestUserOrdersRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()

	testRouter(t, &checkoutStub{}).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router := testRouter(t, &checkoutStub{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders/summary", nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders/summary", nil)
	req.Header.Set("Authorization", bearer(t, enums.UserRoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestThrottledCheckoutDoesNotBurnIdempotencyKey(t *testing.T) {
	stub := &checkoutStub{}
	store := newMemoryStore()
	router := storeRouter(t, stub, store, 1)
	token := bearer(t, enums.UserRoleCustomer)

	post := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"shipping_address":"1 Main St"}`))
		req.Header.Set("Authorization", token)
		req.Header.Set("Idempotency-Key", key)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	require.Equal(t, http.StatusCreated, post("first").Code)

	throttled := post("second")
	require.Equal(t, http.StatusTooManyRequests, throttled.Code)
	assert.Equal(t, "60", throttled.Header().Get("Retry-After"))
	assert.Equal(t, 1, stub.calls)

	store.reset()
	retried := post("second")
	assert.Equal(t, http.StatusCreated, retried.Code)
	assert.Equal(t, 2, stub.calls)

	store.reset()
	replayed := post("second")
	assert.Equal(t, http.StatusCreated, replayed.Code)
	assert.Equal(t, "true", replayed.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 2, stub.calls)
}
