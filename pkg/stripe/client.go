package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultCurrency = "brl"
)

// keyPrefixes lists the secret and restricted key prefixes valid per environment.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
)

// Client holds the Stripe environment, webhook secret and checkout currency.
// API calls go through the stripe-go resource packages, which read the global
// key installed by NewClient.
type Client struct {
	environment   string
	signingSecret string
	currency      string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.WebhookSecret)
	switch {
	case apiKey == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	}
	if err := checkKeyMatchesEnv(env, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey
	stripe.SetAppInfo(&stripe.AppInfo{Name: "tipjar-backend"})

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"stripe_env": env, "currency": currency}), "stripe client initialized")
	}
	return &Client{environment: env, signingSecret: secret, currency: currency}, nil
}

// Currency returns the ISO currency used for checkout sessions.
func (c *Client) Currency() string {
	if c == nil || c.currency == "" {
		return defaultCurrency
	}
	return c.currency
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// checkKeyMatchesEnv stops a live key from being used with TIPJAR_STRIPE_ENV=test
// and the reverse.
func checkKeyMatchesEnv(env, key string) error {
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return fmt.Errorf("stripe environment must be %q or %q, got %q", testEnv, liveEnv, env)
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe environment %q requires a key starting with %s", env, strings.Join(prefixes, " or "))
}
