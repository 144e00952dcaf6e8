package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/promotion"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/pkg/health"
)

type testServer struct {
	*httptest.Server
	health *health.Health
	tokens *auth.Tokens
}

func newTestServer(t *testing.T, mutate func(cfg *Config)) *testServer {
	t.Helper()

	cfg := &Config{
		Auth:      AuthConfig{JWTSecret: "secret", Issuer: "storefront"},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}},
	}
	if mutate != nil {
		mutate(cfg)
	}

	store := memory.New()
	store.PutProduct(product.Product{ID: "P1", Name: "Widget", Price: decimal.RequireFromString("10.00"), Stock: 5, Active: true})

	orders, err := order.NewService(store, store.Orders())
	require.NoError(t, err)
	tokens := auth.NewTokens([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)

	healthSvc := health.New()
	healthSvc.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := httptest.NewServer(newHTTPHandler(ctx, zaptest.NewLogger(t), cfg, routes{
		health: healthSvc,
		api: handler.NewHandler(
			store.Products(),
			cart.NewService(store.Carts(), store.Products()),
			promotion.NewService(store.Promotions(), store.Carts(), store.Products()),
			orders,
		),
		security: handler.NewSecurityHandler(store.APIKeys(), []byte("pepper"), tokens),
	}, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider()))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, health: healthSvc, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeStatus(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Status
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeStatus(t, resp))

	resp = s.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	s.health.SetReady(false)
	resp = s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unhealthy", decodeStatus(t, resp))
}

func TestServer_ReadinessCheckFailure(t *testing.T) {
	s := newTestServer(t, nil)
	s.health.Register(health.Readiness, "postgres", func(context.Context) error {
		return errors.New("connection refused")
	}, health.WithThresholds(1, 1))
	s.health.Start(context.Background(), 10*time.Millisecond)
	t.Cleanup(s.health.Stop)

	assert.Eventually(t, func() bool {
		resp, err := s.Client().Get(s.URL + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusServiceUnavailable
	}, time.Second, 10*time.Millisecond)

	resp := s.do(t, http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RequestID(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.do(t, http.MethodGet, "/livez", "", nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = s.do(t, http.MethodGet, "/livez", "", http.Header{"X-Request-Id": {"custom-request-id-12345"}})
	assert.Equal(t, "custom-request-id-12345", resp.Header.Get("X-Request-ID"))
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t, nil)

	resp := s.do(t, http.MethodOptions, "/api/products", "", http.Header{
		"Origin":                        {"http://example.com"},
		"Access-Control-Request-Method": {"POST"},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), handler.APIKeyHeader)

	resp = s.do(t, http.MethodGet, "/api/products", "", http.Header{"Origin": {"http://example.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Max: 2, Window: time.Hour}
	})

	for range 2 {
		resp := s.do(t, http.MethodGet, "/api/products", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	}

	resp := s.do(t, http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestServer_Checkout(t *testing.T) {
	s := newTestServer(t, nil)
	token, err := s.tokens.Issue("u1", time.Hour)
	require.NoError(t, err)
	user := http.Header{"Authorization": {"Bearer " + token}, "Content-Type": {"application/json"}}

	resp := s.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"P1","quantity":2}`, user)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/orders", `{"shipping_address_id":"a1","payment_method":"paypal"}`, user)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			TotalAmount string `json:"total_amount"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "20.00", body.Data.TotalAmount)

	resp = s.do(t, http.MethodGet, "/api/products/P1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
