package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/fieldserve/visit-service/internal/domain"
	"github.com/fieldserve/visit-service/internal/repository"
	apperrors "github.com/fieldserve/visit-service/pkg/util"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and loads the acting account.
type AuthMiddleware struct {
	tokens   *TokenManager
	accounts repository.AccountRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, accounts repository.AccountRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, accounts: accounts}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token := BearerToken(c.Get("Authorization"))
	if token == "" {
		// the SSE endpoint cannot set headers from EventSource clients
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		return apperrors.NewUnauthorized("missing bearer token")
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	account, err := m.accounts.GetByID(c.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("account not found")
		}
		return apperrors.MapError(err)
	}
	if !account.Active {
		return apperrors.NewUnauthorized("account disabled")
	}

	c.Locals(principalKey, account)
	return c.Next()
}

// HandleOptional loads the account when a valid token is present but lets
// anonymous requests through. Used on routes that behave differently for
// authenticated callers, such as registration.
func (m *AuthMiddleware) HandleOptional(c *fiber.Ctx) error {
	token := BearerToken(c.Get("Authorization"))
	if token == "" {
		return c.Next()
	}
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return c.Next()
	}
	account, err := m.accounts.GetByID(c.Context(), claims.AccountID)
	if err != nil || !account.Active {
		return c.Next()
	}
	c.Locals(principalKey, account)
	return c.Next()
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AccountFromContext retrieves the authenticated account.
func AccountFromContext(c *fiber.Ctx) (*domain.Account, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	account, ok := val.(*domain.Account)
	return account, ok
}
