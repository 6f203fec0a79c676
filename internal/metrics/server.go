package metrics

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const defaultPort = 9090

type Config struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled,omitempty"`
	Host    string `mapstructure:"host" json:"host,omitempty"`
	Port    int    `mapstructure:"port" json:"port,omitempty"`
	Token   string `mapstructure:"token" json:"token,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Host:    "0.0.0.0",
		Port:    defaultPort,
	}
}

// HealthCheck reports whether the daemon can serve verifications, usually by
// pinging the database. The API and the metrics server share it.
type HealthCheck func(ctx context.Context) error

// HealthHandler answers 200 while check passes and 503 otherwise.
func HealthHandler(check HealthCheck, logger *logrus.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if check != nil {
			err := check(c.Request().Context())
			if err != nil {
				logger.Warnf("health check failed: %v", err)
				return c.String(http.StatusServiceUnavailable, "txproof is unavailable")
			}
		}
		return c.String(http.StatusOK, "txproof is running")
	}
}

// Server exposes /metrics of one registry, plus /healthz for probes that only
// reach the metrics port.
type Server struct {
	e      *echo.Echo
	addr   string
	logger *logrus.Logger
}

func NewServer(cfg Config, logger *logrus.Logger, registry *prometheus.Registry, health HealthCheck) *Server {
	logger = logger.WithField("pkg", "metrics").Logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	grp := e.Group("/metrics")
	if cfg.Token != "" {
		logger.Info("metrics endpoint authentication enabled")
		grp.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Token)) == 1, nil
			},
			ErrorHandler: func(err error, c echo.Context) error {
				return echo.ErrUnauthorized
			},
		}))
	}
	grp.GET("", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog: logger,
	})))
	e.GET("/healthz", HealthHandler(health, logger))

	port := cfg.Port
	if port <= 0 {
		port = defaultPort
	}
	return &Server{
		e:      e,
		addr:   fmt.Sprintf("%s:%d", cfg.Host, port),
		logger: logger,
	}
}

func (s *Server) Start() {
	go func() {
		s.logger.Infof("starting metrics server on %s", s.addr)
		err := s.e.Start(s.addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("metrics server stopped: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.e.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// StartMetricsServer registers the services' collectors on a fresh registry and
// serves them. It returns nil when metrics are disabled.
func StartMetricsServer(cfg Config, services []string, health HealthCheck, logger *logrus.Logger) *Server {
	if !cfg.Enabled {
		logger.Info("metrics server disabled")
		return nil
	}

	registry := prometheus.NewRegistry()
	RegisterMetrics(services, registry, logger)

	server := NewServer(cfg, logger, registry, health)
	server.Start()
	return server
}
