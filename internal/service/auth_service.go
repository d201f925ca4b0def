package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/visit-service/internal/auth"
	"github.com/fieldserve/visit-service/internal/config"
	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/repository"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

// AuthService coordinates registration and login flows.
type AuthService struct {
	accounts   repository.AccountRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, accounts repository.AccountRepository) *AuthService {
	return &AuthService{
		accounts:   accounts,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// RegisterInput describes an account registration payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
	Company  string
	TeamName string
}

// Register creates a new account. Clients self-register; engineer and admin
// accounts are created by an admin.
func (s *AuthService) Register(ctx context.Context, actor *domain.Account, input RegisterInput) (*domain.Account, error) {
	if input.Role == "" {
		input.Role = domain.RoleClient
	}
	if input.Role != domain.RoleClient && (actor == nil || !actor.IsAdmin()) {
		return nil, apperrors.NewForbidden("admin required to create staff accounts")
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Email == "" || strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewValidationError("email and password required", nil)
	}

	if _, err := s.accounts.GetByEmail(ctx, input.Email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": input.Email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	account := &domain.Account{
		Name:         strings.TrimSpace(input.Name),
		Email:        input.Email,
		PasswordHash: hash,
		Role:         input.Role,
		Company:      strings.TrimSpace(input.Company),
		TeamName:     strings.TrimSpace(input.TeamName),
		Active:       true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, apperrors.MapError(err)
	}
	return account, nil
}

// Login authenticates an account and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Account, string, time.Time, error) {
	account, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if !account.Active {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("account disabled")
	}
	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(account)
	if err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	return account, token, exp, nil
}

// ListEngineers returns active engineer accounts for assignment pickers.
func (s *AuthService) ListEngineers(ctx context.Context, actor *domain.Account) ([]domain.Account, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	engineers, err := s.accounts.ListByRole(ctx, domain.RoleEngineer)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return engineers, nil
}
