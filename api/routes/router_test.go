package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/tipjar-backend/internal/creators"
	"github.com/angelmondragon/tipjar-backend/internal/donations"
	pkgAuth "github.com/angelmondragon/tipjar-backend/pkg/auth"
	"github.com/angelmondragon/tipjar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type fakeRedis struct {
	mu     sync.Mutex
	counts map[string]int64
	values map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counts: map[string]int64{}, values: map[string]string{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.(string)
	return nil
}

func (f *fakeRedis) DeleteIfEquals(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (f *fakeRedis) Ping(context.Context) error { return nil }

func (f *fakeRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

type stubDonations struct{}

func (stubDonations) CreateCheckout(context.Context, donations.CreateCheckoutInput) (*donations.CheckoutResult, error) {
	return &donations.CheckoutResult{SessionID: "cs_1"}, nil
}

type stubCreators struct{}

func (stubCreators) PublicProfile(_ context.Context, username string) (*creators.ProfileDTO, error) {
	if username != "ana" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, creators.MsgCreatorNotFound)
	}
	return &creators.ProfileDTO{ID: uuid.New(), Username: &username}, nil
}
func (stubCreators) Me(_ context.Context, id uuid.UUID) (*creators.MeDTO, error) {
	return &creators.MeDTO{ProfileDTO: creators.ProfileDTO{ID: id}}, nil
}
func (stubCreators) UpdateName(context.Context, uuid.UUID, creators.UpdateNameInput) error {
	return nil
}
func (stubCreators) UpdateBio(context.Context, uuid.UUID, creators.UpdateBioInput) error { return nil }
func (stubCreators) UpdateUsername(context.Context, uuid.UUID, creators.UpdateUsernameInput) (*creators.UsernameResult, error) {
	return &creators.UsernameResult{}, nil
}

type stubWebhooks struct{ calls int }

func (s *stubWebhooks) HandleEvent(context.Context, *stripe.Event) (string, error) {
	s.calls++
	return "queued", nil
}

type stubSecret struct{}

func (stubSecret) SigningSecret() string { return "whsec_test" }

func testConfig() *config.Config {
	return &config.Config{
		App:         config.AppConfig{Env: "test", CORSOrigins: "http://localhost:3000"},
		JWT:         config.JWTConfig{Secret: "secret", Issuer: "tipjar-auth"},
		RateLimit:   config.RateLimitConfig{CheckoutWindow: time.Minute, CheckoutIPLimit: 1},
		Idempotency: config.IdempotencyConfig{TTL: time.Hour, PendingTTL: time.Minute},
	}
}

func newTestRouter(t *testing.T, webhooks *stubWebhooks) http.Handler {
	t.Helper()
	return newTestRouterWithConfig(t, testConfig(), webhooks)
}

func newTestRouterWithConfig(t *testing.T, cfg *config.Config, webhooks *stubWebhooks) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Config:         cfg,
		Logger:         logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}),
		DB:             stubPinger{},
		Redis:          newFakeRedis(),
		Gatherer:       reg,
		Donations:      stubDonations{},
		Creators:       stubCreators{},
		StripeWebhooks: webhooks,
		Stripe:         stubSecret{},
		WebhookMetrics: metrics.NewWebhookMetrics(reg),
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, &stubWebhooks{})
	if rec := serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil)); rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", rec.Code)
	}
	if rec := serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil)); rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubWebhooks{})
	serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`)))

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tipjar_stripe_webhooks_received_total") {
		t.Fatalf("expected webhook counter in metrics output")
	}
}

func TestPrivateRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, &stubWebhooks{})
	for _, path := range []string{"/api/v1/me", "/api/v1/dashboard/stats", "/api/v1/stripe/accounts/onboarding-link"} {
		if rec := serve(router, httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, rec.Code)
		}
	}
}

func TestPrivateRouteWithToken(t *testing.T) {
	cfg := testConfig()
	userID := uuid.New()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, pkgAuth.AccessTokenPayload{UserID: userID})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := serve(newTestRouter(t, &stubWebhooks{}), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), userID.String()) {
		t.Fatalf("expected caller id in body: %s", rec.Body.String())
	}
}

func TestPublicRoutes(t *testing.T) {
	router := newTestRouter(t, &stubWebhooks{})
	if rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/public/v1/creators/ana", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/public/v1/creators/nobody", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestCheckoutIsRateLimited(t *testing.T) {
	router := newTestRouter(t, &stubWebhooks{})
	body := `{"slug":"ana","name":"Bia","message":"Parabéns!","price":2000,"creator_id":"acct_1"}`

	first := httptest.NewRequest(http.MethodPost, "/api/public/v1/donations/checkout", strings.NewReader(body))
	first.RemoteAddr = "9.9.9.9:1000"
	if rec := serve(router, first); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	second := httptest.NewRequest(http.MethodPost, "/api/public/v1/donations/checkout", strings.NewReader(body))
	second.RemoteAddr = "9.9.9.9:1000"
	if rec := serve(router, second); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", rec.Code)
	}
}

func TestCheckoutReplaysIdempotentRetry(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.CheckoutIPLimit = 5
	router := newTestRouterWithConfig(t, cfg, &stubWebhooks{})
	body := `{"slug":"ana","name":"Bia","message":"Parabéns!","price":2000,"creator_id":"acct_1"}`

	send := func(payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/public/v1/donations/checkout", strings.NewReader(payload))
		req.RemoteAddr = "8.8.8.8:1000"
		req.Header.Set("Idempotency-Key", "checkout-1")
		return serve(router, req)
	}

	first := send(body)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", first.Code)
	}
	retry := send(body)
	if retry.Code != http.StatusCreated || retry.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replayed 201, got %d replayed=%q", retry.Code, retry.Header().Get("Idempotent-Replayed"))
	}
	if retry.Body.String() != first.Body.String() {
		t.Fatalf("replayed body differs: %s vs %s", retry.Body.String(), first.Body.String())
	}
	if rec := send(strings.Replace(body, "2000", "3000", 1)); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key got %d", rec.Code)
	}
}

func TestStripeWebhookIsPublicButSigned(t *testing.T) {
	webhooks := &stubWebhooks{}
	rec := serve(newTestRouter(t, webhooks), httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if webhooks.calls != 0 {
		t.Fatalf("unsigned payload reached the service")
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/me", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := serve(newTestRouter(t, &stubWebhooks{}), req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
