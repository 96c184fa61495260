package dashboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	stripego "github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/money"
	pkgpagination "github.com/angelmondragon/tipjar-backend/pkg/pagination"
	"github.com/angelmondragon/tipjar-backend/pkg/stripe"
)

const (
	MsgUnauthenticated = "Usuário não autenticado"
	MsgListFailed      = "Falha ao buscar dados"
	MsgStatsFailed     = "Falha ao buscar estatísticas"
	MsgInvalidStatus   = "Status inválido"
)

type repository interface {
	List(ctx context.Context, opts listQuery) ([]models.Donation, error)
	PaidTotals(ctx context.Context, userID uuid.UUID) (int64, int64, error)
	ConnectedAccountID(ctx context.Context, userID uuid.UUID) (string, error)
}

type stripeGateway interface {
	GetBalance(ctx context.Context, accountID string) (*stripego.Balance, error)
	CreateLoginLink(ctx context.Context, params *stripego.LoginLinkParams) (*stripego.LoginLink, error)
}

// Service serves the creator dashboard.
type Service interface {
	ListPaidDonations(ctx context.Context, userID uuid.UUID, params pkgpagination.Params) (*DonationList, error)
	ListDonations(ctx context.Context, userID uuid.UUID, status enums.DonationStatus) []DonationItem
	Stats(ctx context.Context, userID uuid.UUID) (*Stats, error)
	PendingBalance(ctx context.Context, accountID string) (int64, error)
	LoginLink(ctx context.Context, accountID string) *string
	ConnectedAccountID(ctx context.Context, userID uuid.UUID) (string, error)
}

type ServiceParams struct {
	Repo   repository
	Stripe stripeGateway
	Logger *logger.Logger
}

type service struct {
	repo   repository
	stripe stripeGateway
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("dashboard repository required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: params.Repo, stripe: params.Stripe, logg: params.Logger}, nil
}

func (s *service) ListPaidDonations(ctx context.Context, userID uuid.UUID, params pkgpagination.Params) (*DonationList, error) {
	if userID == uuid.Nil {
		return &DonationList{Items: []DonationItem{}}, nil
	}

	query := listQuery{
		userID: userID,
		status: enums.DonationStatusPaid,
		limit:  pkgpagination.LimitWithBuffer(params.Limit),
	}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list paid donations").WithPublicMessage(MsgListFailed)
	}

	rows, nextCursor := pkgpagination.Trim(rows, params.Limit, func(d models.Donation) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	return &DonationList{
		Items:  toDonationItems(rows),
		Cursor: nextCursor,
	}, nil
}

// ListDonations returns the donations for the table view, optionally limited
// to one status. Failures degrade to an empty list.
func (s *service) ListDonations(ctx context.Context, userID uuid.UUID, status enums.DonationStatus) []DonationItem {
	if userID == uuid.Nil {
		return []DonationItem{}
	}
	rows, err := s.repo.List(ctx, listQuery{userID: userID, status: status})
	if err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, userID), "list donations failed", err)
		return []DonationItem{}
	}
	return toDonationItems(rows)
}

func (s *service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	if userID == uuid.Nil {
		return zeroStats(), nil
	}

	count, amount, err := s.repo.PaidTotals(ctx, userID)
	if err != nil {
		return nil, statsFailure(err, "sum paid donations")
	}
	accountID, err := s.repo.ConnectedAccountID(ctx, userID)
	if err != nil {
		return nil, statsFailure(err, "load connected account")
	}
	balance, err := s.PendingBalance(ctx, accountID)
	if err != nil {
		return nil, statsFailure(err, "read stripe balance")
	}

	return &Stats{
		TotalDonations: count,
		TotalAmount:    amount,
		TotalAmountBRL: money.FormatBRL(amount),
		Balance:        balance,
	}, nil
}

// PendingBalance reads pending[0].amount from the connected account's balance.
func (s *service) PendingBalance(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, nil
	}
	balance, err := s.stripe.GetBalance(ctx, accountID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve stripe balance")
	}
	return stripe.PendingAmount(balance), nil
}

// LoginLink returns nil when there is no account or Stripe refuses the link.
func (s *service) LoginLink(ctx context.Context, accountID string) *string {
	if accountID == "" {
		return nil
	}
	link, err := s.stripe.CreateLoginLink(ctx, &stripego.LoginLinkParams{Account: stripego.String(accountID)})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "stripe_account_id", accountID), "create stripe login link failed", err)
		return nil
	}
	if link == nil || link.URL == "" {
		return nil
	}
	url := link.URL
	return &url
}

func (s *service) ConnectedAccountID(ctx context.Context, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", nil
	}
	return s.repo.ConnectedAccountID(ctx, userID)
}

func statsFailure(err error, step string) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, step).
		WithDetails(map[string]any{"step": step}).
		WithPublicMessage(MsgStatsFailed)
}
