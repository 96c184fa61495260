package donations

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/money"
)

const (
	MsgSlugRequired    = "Slug do creator é obrigatório"
	MsgNameRequired    = "O nome precisa ter pelo menos 1 letra"
	MsgMessageTooShort = "A mensagem precisa ter pelo menos 5 letras"
	MsgPriceTooLow     = "Selecione um valor maior que R$15"
	MsgCheckoutFailed  = "Falha ao criar pagamento, tente novamente."

	// Metadata keys shared with the webhook reconciler.
	MetadataDonorName    = "donorName"
	MetadataDonorMessage = "donorMessage"
	MetadataDonationID   = "donationId"

	minMessageLength  = 5
	defaultMinPrice   = 1500
	defaultCurrency   = "brl"
	paymentMethodCard = "card"
)

type donationStore interface {
	FindCreatorByAccountID(ctx context.Context, accountID string) (*models.User, error)
	Create(ctx context.Context, donation *models.Donation) error
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
}

type checkoutGateway interface {
	Currency() string
	CreateCheckoutSession(ctx context.Context, params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error)
}

type checkoutMetrics interface {
	IncCheckout(outcome string)
}

// CreateCheckoutInput is a visitor's donation request.
type CreateCheckoutInput struct {
	Slug      string
	Name      string
	Message   string
	Price     int64
	CreatorID string
}

// CheckoutResult points the visitor at the hosted checkout page.
type CheckoutResult struct {
	SessionID   string    `json:"session_id"`
	CheckoutURL string    `json:"checkout_url"`
	DonationID  uuid.UUID `json:"donation_id"`
}

// Service opens checkout sessions for donations.
type Service interface {
	CreateCheckout(ctx context.Context, input CreateCheckoutInput) (*CheckoutResult, error)
}

type ServiceParams struct {
	Store    donationStore
	Gateway  checkoutGateway
	Logger   *logger.Logger
	Metrics  checkoutMetrics
	BaseURL  string
	FeeRate  decimal.Decimal
	MinPrice int64
}

type service struct {
	store    donationStore
	gateway  checkoutGateway
	logg     *logger.Logger
	metrics  checkoutMetrics
	baseURL  string
	feeRate  decimal.Decimal
	minPrice int64
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("donation store required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("checkout gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(params.BaseURL) == "" {
		return nil, fmt.Errorf("base url required")
	}
	if params.FeeRate.IsNegative() || params.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate must be within [0, 1)")
	}
	minPrice := params.MinPrice
	if minPrice <= 0 {
		minPrice = defaultMinPrice
	}
	return &service{
		store:    params.Store,
		gateway:  params.Gateway,
		logg:     params.Logger,
		metrics:  params.Metrics,
		baseURL:  strings.TrimRight(params.BaseURL, "/"),
		feeRate:  params.FeeRate,
		minPrice: minPrice,
	}, nil
}

func (s *service) CreateCheckout(ctx context.Context, input CreateCheckoutInput) (*CheckoutResult, error) {
	if err := s.validate(input); err != nil {
		s.count("invalid")
		return nil, err
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"creator_account_id": input.CreatorID,
		"slug":               input.Slug,
		"price":              input.Price,
	})

	creator, err := s.store.FindCreatorByAccountID(ctx, input.CreatorID)
	if err != nil {
		s.count("failed")
		return nil, checkoutFailure(pkgerrors.CodeInternal, err, "lookup creator")
	}
	if creator == nil {
		s.count("failed")
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "creator not found for connected account").
			WithPublicMessage(MsgCheckoutFailed)
	}

	fee, amount := money.SplitFee(input.Price, s.feeRate)
	donation := &models.Donation{
		UserID:       creator.ID,
		Amount:       amount,
		Price:        input.Price,
		Fee:          fee,
		DonorName:    input.Name,
		DonorMessage: input.Message,
	}
	if err := s.store.Create(ctx, donation); err != nil {
		s.count("failed")
		return nil, checkoutFailure(pkgerrors.CodeInternal, err, "insert donation")
	}
	ctx = s.logg.WithDonationID(ctx, donation.ID)

	sess, err := s.gateway.CreateCheckoutSession(ctx, s.sessionParams(input, creator, donation))
	if err != nil {
		s.count("failed")
		return nil, checkoutFailure(pkgerrors.CodeDependency, err, "create checkout session")
	}
	if sess == nil || sess.ID == "" {
		s.count("failed")
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "checkout session returned without id").
			WithPublicMessage(MsgCheckoutFailed)
	}

	if err := s.store.SetCheckoutSession(ctx, donation.ID, sess.ID); err != nil {
		// reconciliation keys on the donation id in metadata, so the session stays usable
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to record checkout session id")
	}

	s.count("created")
	s.logg.Info(s.logg.WithField(ctx, "session_id", sess.ID), "checkout session created")
	return &CheckoutResult{
		SessionID:   sess.ID,
		CheckoutURL: sess.URL,
		DonationID:  donation.ID,
	}, nil
}

func (s *service) validate(input CreateCheckoutInput) error {
	switch {
	case input.Slug == "":
		return validationError(MsgSlugRequired)
	case utf8.RuneCountInString(input.Name) < 1:
		return validationError(MsgNameRequired)
	case utf8.RuneCountInString(input.Message) < minMessageLength:
		return validationError(MsgMessageTooShort)
	case input.Price < s.minPrice:
		return validationError(MsgPriceTooLow)
	case input.CreatorID == "":
		return validationError(MsgCheckoutFailed)
	}
	return nil
}

func (s *service) sessionParams(input CreateCheckoutInput, creator *models.User, donation *models.Donation) *stripego.CheckoutSessionParams {
	currency := s.gateway.Currency()
	if currency == "" {
		currency = defaultCurrency
	}
	returnURL := fmt.Sprintf("%s/creator/%s", s.baseURL, url.PathEscape(input.Slug))
	metadata := map[string]string{
		MetadataDonorName:    input.Name,
		MetadataDonorMessage: input.Message,
		MetadataDonationID:   donation.ID.String(),
	}

	return &stripego.CheckoutSessionParams{
		Mode:               stripego.String(string(stripego.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripego.StringSlice([]string{paymentMethodCard}),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
					Currency: stripego.String(currency),
					ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripego.String("Apoiar " + creatorLabel(creator)),
					},
					UnitAmount: stripego.Int64(input.Price),
				},
				Quantity: stripego.Int64(1),
			},
		},
		PaymentIntentData: &stripego.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripego.Int64(donation.Fee),
			TransferData: &stripego.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripego.String(input.CreatorID),
			},
			Metadata: metadata,
		},
		Metadata:   copyMetadata(metadata),
		SuccessURL: stripego.String(returnURL),
		CancelURL:  stripego.String(returnURL),
	}
}

func (s *service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.IncCheckout(outcome)
	}
}

func creatorLabel(u *models.User) string {
	if name := strings.TrimSpace(u.DisplayName()); name != "" {
		return name
	}
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return "creator"
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func validationError(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}

func checkoutFailure(code pkgerrors.Code, err error, step string) error {
	return pkgerrors.Wrap(code, err, step).
		WithDetails(map[string]any{"step": step}).
		WithPublicMessage(MsgCheckoutFailed)
}
