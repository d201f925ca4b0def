package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldserve/visit-service/internal/api/dto"
	"github.com/fieldserve/visit-service/internal/auth"
	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/service"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

// AccountsHandler exposes registration, login and account listing.
type AccountsHandler struct {
	service *service.AuthService
}

// NewAccountsHandler constructs handler.
func NewAccountsHandler(authService *service.AuthService) *AccountsHandler {
	return &AccountsHandler{service: authService}
}

// Register POST /auth/register. Clients self-register; staff accounts
// require an authenticated admin, so the route runs after the optional-auth
// middleware.
func (h *AccountsHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	actor, _ := auth.AccountFromContext(c)
	account, err := h.service.Register(c.UserContext(), actor, service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Company:  req.Company,
		TeamName: req.TeamName,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": accountResponse(account)})
}

// Login POST /auth/login.
func (h *AccountsHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	account, token, expiresAt, err := h.service.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Account:   accountResponse(account),
		Token:     token,
		ExpiresAt: expiresAt,
	}})
}

// ListEngineers GET /accounts/engineers.
func (h *AccountsHandler) ListEngineers(c *fiber.Ctx) error {
	actor, ok := auth.AccountFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	engineers, err := h.service.ListEngineers(c.UserContext(), actor)
	if err != nil {
		return err
	}
	items := make([]dto.AccountResponse, 0, len(engineers))
	for i := range engineers {
		items = append(items, accountResponse(&engineers[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func accountResponse(account *domain.Account) dto.AccountResponse {
	return dto.AccountResponse{
		ID:        account.ID,
		Name:      account.Name,
		Email:     account.Email,
		Role:      account.Role,
		Company:   account.Company,
		TeamName:  account.TeamName,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}
}
