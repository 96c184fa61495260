package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeIdempotencyStore struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{values: map[string]string{}}
}

func (f *fakeIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeIdempotencyStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeIdempotencyStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value.(string)
	return nil
}

func (f *fakeIdempotencyStore) DeleteIfEquals(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return scope + "#" + id
}

// countingHandler echoes the request body with 201 and counts invocations.
type countingHandler struct {
	mu     sync.Mutex
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.calls++
	n := h.calls
	h.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	status := h.status
	if status == 0 {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"call": n, "echo": string(body)})
}

var testPolicy = IdempotencyPolicy{TTL: time.Hour, PendingTTL: time.Minute}

func idempotentRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/public/v1/donations/checkout", strings.NewReader(body))
	req.RemoteAddr = "7.7.7.7:4000"
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	inner := &countingHandler{}
	handler := Idempotency(newFakeIdempotencyStore(), testPolicy, nil)(inner)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest("abc-1", `{"price":2000}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, idempotentRequest("abc-1", `{"price":2000}`))

	if inner.calls != 1 {
		t.Fatalf("handler ran %d times", inner.calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Header().Get(idempotencyReplayed) != "true" {
		t.Fatalf("missing replay header")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type %q", second.Header().Get("Content-Type"))
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("body mismatch: %s vs %s", second.Body.String(), first.Body.String())
	}
}

func TestIdempotency_RejectsReusedKeyWithDifferentBody(t *testing.T) {
	inner := &countingHandler{}
	handler := Idempotency(newFakeIdempotencyStore(), testPolicy, nil)(inner)

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest("abc-2", `{"price":2000}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest("abc-2", `{"price":9000}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), msgIdempotencyReused) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if inner.calls != 1 {
		t.Fatalf("handler ran %d times", inner.calls)
	}
}

func TestIdempotency_InFlightDuplicateConflicts(t *testing.T) {
	store := newFakeIdempotencyStore()
	req := idempotentRequest("abc-3", `{}`)
	store.values[store.IdempotencyKey(idempotencyScope(req), "abc-3")] = pendingMarkerPrefix + "whatever"

	inner := &countingHandler{}
	rec := httptest.NewRecorder()
	Idempotency(store, testPolicy, nil)(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), msgIdempotencyInFlight) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if inner.calls != 0 {
		t.Fatalf("handler should not run")
	}
}

func TestIdempotency_ServerErrorReleasesClaim(t *testing.T) {
	store := newFakeIdempotencyStore()
	inner := &countingHandler{status: http.StatusBadGateway}
	handler := Idempotency(store, testPolicy, nil)(inner)

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest("abc-4", `{}`))
	if len(store.values) != 0 {
		t.Fatalf("claim not released: %v", store.values)
	}

	inner.status = http.StatusCreated
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest("abc-4", `{}`))
	if rec.Code != http.StatusCreated || inner.calls != 2 {
		t.Fatalf("retry should run the handler again, got %d after %d calls", rec.Code, inner.calls)
	}
}

func TestIdempotency_NoHeaderPassesThrough(t *testing.T) {
	store := newFakeIdempotencyStore()
	inner := &countingHandler{}
	handler := Idempotency(store, testPolicy, nil)(inner)

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest("", `{}`))
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 calls got %d", inner.calls)
	}
	if len(store.values) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotency_InvalidKey(t *testing.T) {
	inner := &countingHandler{}
	rec := httptest.NewRecorder()
	Idempotency(newFakeIdempotencyStore(), testPolicy, nil)(inner).
		ServeHTTP(rec, idempotentRequest(strings.Repeat("k", maxRequestIDLen+1), `{}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if inner.calls != 0 {
		t.Fatalf("handler should not run")
	}
}

func TestIdempotency_StoreFailure(t *testing.T) {
	store := newFakeIdempotencyStore()
	store.err = errors.New("redis down")
	rec := httptest.NewRecorder()
	Idempotency(store, testPolicy, nil)(&countingHandler{}).ServeHTTP(rec, idempotentRequest("abc-5", `{}`))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestIdempotency_ScopeSeparatesCallers(t *testing.T) {
	a := idempotentRequest("k", `{}`)
	b := idempotentRequest("k", `{}`)
	b.RemoteAddr = "6.6.6.6:4000"
	if idempotencyScope(a) == idempotencyScope(b) {
		t.Fatalf("callers share a scope: %s", idempotencyScope(a))
	}
}
