package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/balance"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/loginlink"
	"github.com/stripe/stripe-go/v84/paymentintent"
)

// Gateway exposes the Stripe calls the donation flows make. Services depend on
// narrow interfaces over it so tests can stub Stripe.
type Gateway struct {
	client *Client
}

// NewGateway wraps the initialized client.
func NewGateway(client *Client) *Gateway {
	if client == nil {
		return nil
	}
	return &Gateway{client: client}
}

func (g *Gateway) Currency() string {
	return g.client.Currency()
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return session.New(params)
}

func (g *Gateway) CreateAccount(ctx context.Context, params *stripe.AccountParams) (*stripe.Account, error) {
	if params != nil {
		params.Context = ctx
	}
	return account.New(params)
}

func (g *Gateway) CreateAccountLink(ctx context.Context, params *stripe.AccountLinkParams) (*stripe.AccountLink, error) {
	if params != nil {
		params.Context = ctx
	}
	return accountlink.New(params)
}

func (g *Gateway) CreateLoginLink(ctx context.Context, params *stripe.LoginLinkParams) (*stripe.LoginLink, error) {
	if params != nil {
		params.Context = ctx
	}
	return loginlink.New(params)
}

func (g *Gateway) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return paymentintent.Get(id, params)
}

// GetBalance reads the balance of a connected account.
func (g *Gateway) GetBalance(ctx context.Context, accountID string) (*stripe.Balance, error) {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	return balance.Get(params)
}

// PendingAmount returns the first pending balance entry, matching the dashboard's
// single-currency view.
func PendingAmount(b *stripe.Balance) int64 {
	if b == nil || len(b.Pending) == 0 || b.Pending[0] == nil {
		return 0
	}
	return b.Pending[0].Amount
}

// IsNotFound reports a Stripe 404 (unknown payment intent, account, ...).
func IsNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound ||
			stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}

// IsRetryable reports whether a Stripe failure may succeed on a later attempt.
// Non-Stripe errors (network, context) are treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return true
	}
	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return true
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
		return true
	case stripeErr.Type == stripe.ErrorTypeAPI:
		return true
	default:
		return false
	}
}

// MetadataValue returns the trimmed metadata value for key.
func MetadataValue(metadata map[string]string, key string) string {
	if metadata == nil {
		return ""
	}
	return strings.TrimSpace(metadata[key])
}
