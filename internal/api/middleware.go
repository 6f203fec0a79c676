package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AuthMiddleware requires "Authorization: Bearer <token>" when a token is
// configured.
func (s *Server) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.Token == "" {
			return next(c)
		}
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			s.httpMetrics.RecordUnauthorized()
			return c.JSON(http.StatusUnauthorized, NewErrorResponse(MsgMissingAuthHeader))
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) != 1 {
			s.logger.Warnf("rejected request to %s: invalid token", c.Path())
			s.httpMetrics.RecordUnauthorized()
			return c.JSON(http.StatusUnauthorized, NewErrorResponse(MsgUnauthorized))
		}
		return next(c)
	}
}
