package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	callerIDKey   = "caller_id"
	callerUserKey = "caller_is_user"
)

// identityMiddleware resolves the caller: a valid bearer token yields the
// account subject, the guest header yields an anonymous id, and neither is a
// 401. An invalid or expired token is also a 401 rather than a guest
// downgrade, so clients learn their credential is dead.
func identityMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if header := c.Request().Header.Get("Authorization"); header != "" {
				raw, ok := strings.CutPrefix(header, "Bearer ")
				if !ok {
					return echo.NewHTTPError(http.StatusUnauthorized, "malformed authorization header")
				}
				parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) { return secret, nil },
					jwt.WithValidMethods([]string{"HS256"}))
				if err != nil || !parsed.Valid {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				sub, err := parsed.Claims.GetSubject()
				if err != nil || sub == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				c.Set(callerIDKey, "user:"+sub)
				c.Set(callerUserKey, true)
				return next(c)
			}
			if guest := c.Request().Header.Get("X-Guest-Session-ID"); guest != "" {
				c.Set(callerIDKey, "guest:"+guest)
				c.Set(callerUserKey, false)
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
		}
	}
}

func callerID(c echo.Context) string {
	id, _ := c.Get(callerIDKey).(string)
	return id
}

func callerIsUser(c echo.Context) bool {
	isUser, _ := c.Get(callerUserKey).(bool)
	return isUser
}
