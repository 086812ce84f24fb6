package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/testimonioya/recovery-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal is the business owner behind a dashboard session.
type Principal struct {
	UserID string
	Email  string
}

// AuthMiddleware admits requests carrying a valid dashboard session JWT.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle rejects the request unless the session token verifies and names a user.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	raw, err := bearerToken(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	claims, err := m.tokens.ParseToken(raw)
	if err != nil || claims.Subject == "" {
		return apperrors.NewUnauthorized("invalid or expired session")
	}
	c.Locals(principalKey, &Principal{UserID: claims.Subject, Email: claims.Email})
	return c.Next()
}

// bearerToken extracts the credential from an Authorization header value.
func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return token, nil
}

// PrincipalFromContext returns the session owner set by Handle.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}
