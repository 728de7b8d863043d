package middleware // middleware provides shared request processing for handlers

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/garage-parking/internal/utils"
)

// Context keys set by JWTAuth.
const (
    OperatorIDKey = "operator_id"
    RoleKey       = "role"
)

// JWTAuth validates a Bearer operator token signed with secret and stores
// the subject and role claims in the echo context.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            scheme, raw, found := strings.Cut(auth, " ")
            if !found || !strings.EqualFold(scheme, "bearer") || raw == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }

            claims, err := utils.ParseAccessToken(secret, strings.TrimSpace(raw))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            c.Set(OperatorIDKey, claims.Subject)
            c.Set(RoleKey, claims.Role)
            return next(c)
        }
    }
}
