package middleware

// identity.go holds the helpers that read the caller identity stored by
// JWTAuth.

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// subject returns the "sub" claim as a string.  Tokens minted by
// utils.NewAccessToken carry a numeric subject, which JSON decodes as
// float64.
func subject(cl jwt.MapClaims) string {
	switch v := cl["sub"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatUint(uint64(v), 10)
	}
	if v, ok := cl["user_id"].(string); ok {
		return v
	}
	return ""
}

// userID returns the authenticated subject or "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}

// UserID returns the authenticated subject as a number.  ok is false for
// anonymous requests and non-numeric subjects.
func UserID(c echo.Context) (id uint64, ok bool) {
	s, _ := c.Get("user_id").(string)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
