package middleware

import (
	"strings"

	"salesflow/core/config"
	"salesflow/core/controller"
	"salesflow/core/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Context keys set by AuthMiddleware. Session issuance lives in the external
// auth service; this middleware only extracts tenant identity from the token.
const (
	ContextKeyUserID    = "user_id"
	ContextKeyCompanyID = "company_id"
)

type Middleware struct {
	jwtSecret string
}

func NewMiddleware(cfg *config.Config) *Middleware {
	return &Middleware{jwtSecret: cfg.App.JWTSecret}
}

type claims struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates the bearer token and stores user/company ids in
// the request context.
func (m *Middleware) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				return controller.NewErrorResponse(401, errors.ErrUnauthorized, "missing bearer token")
			}
			tokenStr := strings.TrimPrefix(header, "Bearer ")

			var cl claims
			token, err := jwt.ParseWithClaims(tokenStr, &cl, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(m.jwtSecret), nil
			})
			if err != nil || !token.Valid {
				return controller.NewErrorResponse(401, errors.ErrUnauthorized, "invalid token")
			}

			userID, err := uuid.Parse(cl.UserID)
			if err != nil {
				return controller.NewErrorResponse(401, errors.ErrUnauthorized, "invalid user claim")
			}
			companyID, err := uuid.Parse(cl.CompanyID)
			if err != nil {
				return controller.NewErrorResponse(401, errors.ErrUnauthorized, "invalid company claim")
			}

			c.Set(ContextKeyUserID, userID)
			c.Set(ContextKeyCompanyID, companyID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user id from the echo context.
func UserID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(ContextKeyUserID).(uuid.UUID)
	return id, ok
}

// CompanyID returns the authenticated company id from the echo context.
func CompanyID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(ContextKeyCompanyID).(uuid.UUID)
	return id, ok
}
