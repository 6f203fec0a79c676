package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Route names of the txproof API.
const (
	RouteHealth    = "health"
	RouteStart     = "start"
	RouteTask      = "task"
	RouteGet       = "get"
	RouteTerminate = "terminate"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txproof",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route and status class",
		},
		[]string{"route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txproof",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route"},
	)

	httpUnauthorizedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "txproof",
			Subsystem: "http",
			Name:      "unauthorized_total",
			Help:      "API requests rejected for a missing or wrong bearer token",
		},
	)
)

// HTTPMetrics records API traffic per named route. A nil *HTTPMetrics is valid
// and records nothing.
type HTTPMetrics struct{}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{}
}

// Route returns a route level middleware labelling the request with name.
func (hm *HTTPMetrics) Route(name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if hm == nil {
			return next
		}
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			httpRequestsTotal.WithLabelValues(name, statusClass(status)).Inc()
			httpRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (hm *HTTPMetrics) RecordUnauthorized() {
	if hm == nil {
		return
	}
	httpUnauthorizedTotal.Inc()
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
