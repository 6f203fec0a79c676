package logging

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func LoggerMiddleware(logger *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			if req.RequestURI == "/healthz" {
				return nil
			}

			latency := time.Since(start)
			fields := logrus.Fields{
				"remote_ip":  c.RealIP(),
				"method":     req.Method,
				"uri":        req.RequestURI,
				"user_agent": req.UserAgent(),
				"status":     res.Status,
				"latency":    latency.String(),
				"bytes_out":  res.Size,
			}
			if tradeID := c.Param("tradeId"); tradeID != "" {
				fields["trade_id"] = tradeID
			}

			entry := logger.WithFields(fields)
			if res.Status >= 500 {
				entry.Error("HTTP request")
			} else {
				entry.Info("HTTP request")
			}
			return nil
		}
	}
}
