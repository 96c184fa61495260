package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/stripe/stripe-go/v84"
)

func TestNewClientValidatesEnvAndKeys(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{name: "test key in test env", cfg: config.StripeConfig{APIKey: "sk_test_1", WebhookSecret: "whsec_1", Env: "test"}},
		{name: "restricted live key in live env", cfg: config.StripeConfig{APIKey: "rk_live_1", WebhookSecret: "whsec_1", Env: "LIVE"}},
		{name: "live key in test env", cfg: config.StripeConfig{APIKey: "sk_live_1", WebhookSecret: "whsec_1", Env: "test"}, wantErr: true},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_1", Env: "test"}, wantErr: true},
		{name: "missing key", cfg: config.StripeConfig{WebhookSecret: "whsec_1"}, wantErr: true},
		{name: "unknown env", cfg: config.StripeConfig{APIKey: "sk_test_1", WebhookSecret: "whsec_1", Env: "staging"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(ctx, tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.SigningSecret() != "whsec_1" {
				t.Fatalf("unexpected signing secret %q", client.SigningSecret())
			}
			if client.Currency() != "brl" {
				t.Fatalf("expected default currency brl, got %q", client.Currency())
			}
		})
	}
}

func TestPendingAmount(t *testing.T) {
	if PendingAmount(nil) != 0 {
		t.Fatal("nil balance should be zero")
	}
	var b stripe.Balance
	if err := json.Unmarshal([]byte(`{"object":"balance","pending":[{"amount":4321,"currency":"brl"},{"amount":1}]}`), &b); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if got := PendingAmount(&b); got != 4321 {
		t.Fatalf("expected 4321, got %d", got)
	}
}

func TestErrorClassification(t *testing.T) {
	notFound := &stripe.Error{HTTPStatusCode: http.StatusNotFound, Code: stripe.ErrorCodeResourceMissing}
	if !IsNotFound(notFound) || IsRetryable(notFound) {
		t.Fatal("404 should be not-found and permanent")
	}
	rateLimited := &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests}
	if !IsRetryable(rateLimited) {
		t.Fatal("429 should be retryable")
	}
	if !IsRetryable(errors.New("dial tcp: timeout")) {
		t.Fatal("transport errors should be retryable")
	}
	if IsRetryable(nil) || IsNotFound(nil) {
		t.Fatal("nil is neither")
	}
}

func TestMetadataValue(t *testing.T) {
	md := map[string]string{"donationId": "  abc "}
	if MetadataValue(md, "donationId") != "abc" {
		t.Fatal("expected trimmed value")
	}
	if MetadataValue(nil, "x") != "" || MetadataValue(md, "missing") != "" {
		t.Fatal("missing keys should be empty")
	}
}
