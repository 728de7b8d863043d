package middleware

import "github.com/labstack/echo/v4"

// operatorID returns the authenticated operator stored by JWTAuth, or
// "anon" for unauthenticated requests.  Rate limit keys use it.
func operatorID(c echo.Context) string {
    if s, ok := c.Get(OperatorIDKey).(string); ok && s != "" {
        return s
    }
    return "anon"
}
