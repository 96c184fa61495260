package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	stripego "github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

const (
	MsgUnauthenticated      = "Usuário não autenticado"
	MsgAccountMissingID     = "Falha ao criar conta de pagamento"
	MsgAccountCreateFailed  = "Falha ao criar conta"
	accountLinkOnboarding   = "account_onboarding"
	controllerApplication   = "application"
	controllerDashboardType = "express"
)

type repository interface {
	ConnectedAccountID(ctx context.Context, userID uuid.UUID) (string, error)
	SaveConnectedAccountID(ctx context.Context, userID uuid.UUID, accountID string) error
}

type stripeGateway interface {
	CreateAccount(ctx context.Context, params *stripego.AccountParams) (*stripego.Account, error)
	CreateAccountLink(ctx context.Context, params *stripego.AccountLinkParams) (*stripego.AccountLink, error)
}

// OnboardingLink is the Stripe-hosted onboarding page for a connected account.
type OnboardingLink struct {
	URL *string `json:"url"`
}

// Service provisions Stripe Connect Express accounts for creators.
type Service interface {
	CreateAccount(ctx context.Context, userID uuid.UUID) (*OnboardingLink, error)
	OnboardingLink(ctx context.Context, userID uuid.UUID) *OnboardingLink
}

type ServiceParams struct {
	Repo    repository
	Stripe  stripeGateway
	Logger  *logger.Logger
	BaseURL string
}

type service struct {
	repo    repository
	stripe  stripeGateway
	logg    *logger.Logger
	baseURL string
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(params.BaseURL) == "" {
		return nil, fmt.Errorf("base url required")
	}
	return &service{
		repo:    params.Repo,
		stripe:  params.Stripe,
		logg:    params.Logger,
		baseURL: strings.TrimRight(params.BaseURL, "/"),
	}, nil
}

// CreateAccount provisions an Express account and returns its onboarding link.
// A user who already owns an account gets a fresh link for it instead.
func (s *service) CreateAccount(ctx context.Context, userID uuid.UUID) (*OnboardingLink, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, MsgUnauthenticated)
	}
	ctx = s.logg.WithUserID(ctx, userID)

	existing, err := s.repo.ConnectedAccountID(ctx, userID)
	if err != nil {
		return nil, createFailure(err, "load connected account")
	}
	if existing != "" {
		url, err := s.accountLink(ctx, existing)
		if err != nil {
			return nil, createFailure(err, "create account link")
		}
		return &OnboardingLink{URL: &url}, nil
	}

	acct, err := s.stripe.CreateAccount(ctx, &stripego.AccountParams{
		Controller: &stripego.AccountControllerParams{
			Fees:   &stripego.AccountControllerFeesParams{Payer: stripego.String(controllerApplication)},
			Losses: &stripego.AccountControllerLossesParams{Payments: stripego.String(controllerApplication)},
			StripeDashboard: &stripego.AccountControllerStripeDashboardParams{
				Type: stripego.String(controllerDashboardType),
			},
		},
	})
	if err != nil {
		return nil, createFailure(err, "create stripe account")
	}
	if acct == nil || acct.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe account returned without id").
			WithPublicMessage(MsgAccountMissingID)
	}
	ctx = s.logg.WithField(ctx, "stripe_account_id", acct.ID)

	if err := s.repo.SaveConnectedAccountID(ctx, userID, acct.ID); err != nil {
		return nil, createFailure(err, "save connected account")
	}

	url, err := s.accountLink(ctx, acct.ID)
	if err != nil {
		return nil, createFailure(err, "create account link")
	}
	s.logg.Info(ctx, "stripe connected account created")
	return &OnboardingLink{URL: &url}, nil
}

// OnboardingLink returns a null url when the user has no account or Stripe fails.
func (s *service) OnboardingLink(ctx context.Context, userID uuid.UUID) *OnboardingLink {
	if userID == uuid.Nil {
		return &OnboardingLink{}
	}
	accountID, err := s.repo.ConnectedAccountID(ctx, userID)
	if err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, userID), "load connected account failed", err)
		return &OnboardingLink{}
	}
	if accountID == "" {
		return &OnboardingLink{}
	}
	url, err := s.accountLink(ctx, accountID)
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "stripe_account_id", accountID), "create onboarding link failed", err)
		return &OnboardingLink{}
	}
	return &OnboardingLink{URL: &url}
}

func (s *service) accountLink(ctx context.Context, accountID string) (string, error) {
	returnURL := s.baseURL + "/dashboard"
	link, err := s.stripe.CreateAccountLink(ctx, &stripego.AccountLinkParams{
		Account:    stripego.String(accountID),
		RefreshURL: stripego.String(returnURL),
		ReturnURL:  stripego.String(returnURL),
		Type:       stripego.String(accountLinkOnboarding),
	})
	if err != nil {
		return "", err
	}
	if link == nil || link.URL == "" {
		return "", fmt.Errorf("account link returned without url")
	}
	return link.URL, nil
}

func createFailure(err error, step string) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, step).
		WithDetails(map[string]any{"step": step}).
		WithPublicMessage(MsgAccountCreateFailed)
}
