package creators

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/angelmondragon/tipjar-backend/pkg/db"
	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/slug"
)

const (
	MsgUnauthenticated   = "Usuário não autenticado"
	MsgCreatorNotFound   = "Criador não encontrado"
	MsgProfileLoadFailed = "Falha ao buscar perfil"
	MsgNameTooShort      = "O nome precisa ter no mínimo 4 caracteres"
	MsgBioTooShort       = "A descrição precisa ter no mínimo 4 caracteres"
	MsgSaveFailed        = "Falha ao salvar alterações"
	MsgUsernameRequired  = "O username é obrigatório."
	MsgUsernameTooShort  = "O username deve ter no mínimo 4 caracteres."
	MsgUsernameTaken     = "Este username já está em uso."
	MsgUsernameFailed    = "Falha ao atualizar o username."

	minProfileLen = 4
)

type repository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateField(ctx context.Context, id uuid.UUID, column string, value any) error
}

// Service exposes creator profile reads and self-service edits.
type Service interface {
	PublicProfile(ctx context.Context, username string) (*ProfileDTO, error)
	Me(ctx context.Context, userID uuid.UUID) (*MeDTO, error)
	UpdateName(ctx context.Context, userID uuid.UUID, input UpdateNameInput) error
	UpdateBio(ctx context.Context, userID uuid.UUID, input UpdateBioInput) error
	UpdateUsername(ctx context.Context, userID uuid.UUID, input UpdateUsernameInput) (*UsernameResult, error)
}

type service struct {
	repo repository
	logg *logger.Logger
}

func NewService(repo repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("creators repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) PublicProfile(ctx context.Context, username string) (*ProfileDTO, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, MsgCreatorNotFound)
	}
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load creator").WithPublicMessage(MsgProfileLoadFailed)
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, MsgCreatorNotFound)
	}
	dto := profileFromModel(user)
	return &dto, nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*MeDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, MsgUnauthenticated)
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load profile").WithPublicMessage(MsgProfileLoadFailed)
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, MsgUnauthenticated)
	}
	return meFromModel(user), nil
}

func (s *service) UpdateName(ctx context.Context, userID uuid.UUID, input UpdateNameInput) error {
	return s.updateText(ctx, userID, "name", input.Name, MsgNameTooShort)
}

func (s *service) UpdateBio(ctx context.Context, userID uuid.UUID, input UpdateBioInput) error {
	return s.updateText(ctx, userID, "bio", input.Bio, MsgBioTooShort)
}

func (s *service) updateText(ctx context.Context, userID uuid.UUID, column, raw, tooShort string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, MsgUnauthenticated)
	}
	value := strings.TrimSpace(raw)
	if utf8.RuneCountInString(value) < minProfileLen {
		return pkgerrors.New(pkgerrors.CodeValidation, tooShort)
	}
	if err := s.repo.UpdateField(ctx, userID, column, value); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update "+column).
			WithDetails(map[string]any{"step": "update_" + column}).
			WithPublicMessage(MsgSaveFailed)
	}
	return nil
}

// UpdateUsername slugifies the requested username and stores it. The returned
// value is the stored slug.
func (s *service) UpdateUsername(ctx context.Context, userID uuid.UUID, input UpdateUsernameInput) (*UsernameResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, MsgUnauthenticated)
	}
	if input.Username == nil || strings.TrimSpace(*input.Username) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, MsgUsernameRequired)
	}
	username := slug.Make(*input.Username)
	if utf8.RuneCountInString(username) < minProfileLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, MsgUsernameTooShort)
	}

	owner, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return nil, usernameFailure(err, "check_username")
	}
	if owner != nil && owner.ID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, MsgUsernameTaken)
	}

	if err := s.repo.UpdateField(ctx, userID, "username", username); err != nil {
		if db.IsUniqueViolation(err, "ux_users_username") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, MsgUsernameTaken)
		}
		return nil, usernameFailure(err, "update_username")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"user_id": userID.String(), "username": username}), "creator username updated")
	return &UsernameResult{Username: username}, nil
}

func usernameFailure(err error, step string) error {
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, step).
		WithDetails(map[string]any{"step": step}).
		WithPublicMessage(MsgUsernameFailed)
}
