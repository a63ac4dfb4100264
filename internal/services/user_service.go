package services

import (
	"context"
	"errors"
	"strings"

	"github.com/herderhub/herderhub-api/internal/apperr"
	"github.com/herderhub/herderhub-api/internal/auth"
	"github.com/herderhub/herderhub-api/internal/models"
	"github.com/herderhub/herderhub-api/internal/msisdn"
	repo "github.com/herderhub/herderhub-api/internal/repository"
)

type UserService struct {
	r  repo.Users
	tm *auth.TokenManager
}

func NewUserService(r repo.Users, tm *auth.TokenManager) *UserService {
	return &UserService{r: r, tm: tm}
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

func (s *UserService) Register(ctx context.Context, req RegisterRequest) (models.User, error) {
	u := models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Role:     "user",
	}
	if err := u.Validate(); err != nil {
		return models.User{}, apperr.InvalidErr(err.Error(), nil)
	}
	if req.PhoneNumber != "" {
		phone, err := msisdn.Normalize(req.PhoneNumber)
		if err != nil {
			return models.User{}, apperr.InvalidErr(apperr.MsgInvalidPhone, map[string]string{"phoneNumber": apperr.MsgInvalidPhone})
		}
		u.PhoneNumber = phone
	}
	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return models.User{}, apperr.InvalidErr(err.Error(), map[string]string{"password": err.Error()})
	}
	if err != nil {
		return models.User{}, apperr.Wrap(err)
	}
	u.PasswordHash = hash

	created, err := s.r.Create(ctx, u)
	if errors.Is(err, repo.ErrDuplicate) {
		return models.User{}, apperr.ConflictErr("email already registered")
	}
	return created, storeErr(err, "user")
}

// Login checks credentials and issues a token pair. Unknown email and wrong
// password produce the same error.
func (s *UserService) Login(ctx context.Context, email, password string) (auth.TokenPair, error) {
	u, err := s.r.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repo.ErrNotFound) {
		return auth.TokenPair{}, apperr.UnauthorizedErr("invalid email or password")
	}
	if err != nil {
		return auth.TokenPair{}, apperr.Wrap(err)
	}
	if auth.VerifyPassword(password, u.PasswordHash) != nil {
		return auth.TokenPair{}, apperr.UnauthorizedErr("invalid email or password")
	}
	pair, err := s.tm.GeneratePair(u.ID, u.Role)
	if err != nil {
		return auth.TokenPair{}, apperr.Wrap(err)
	}
	return pair, nil
}

func (s *UserService) Refresh(refreshToken string) (auth.TokenPair, error) {
	claims, err := s.tm.ParseRefresh(refreshToken)
	if err != nil {
		return auth.TokenPair{}, apperr.UnauthorizedErr("invalid refresh token")
	}
	pair, err := s.tm.GeneratePair(claims.UserID, claims.Role)
	if err != nil {
		return auth.TokenPair{}, apperr.Wrap(err)
	}
	return pair, nil
}
