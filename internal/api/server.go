package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/txproof/internal/logging"
	"github.com/vultisig/txproof/internal/metrics"
	"github.com/vultisig/txproof/internal/tasks"
	"github.com/vultisig/txproof/proof"
	"github.com/vultisig/txproof/proof/pkg/parser"
	"github.com/vultisig/txproof/proof/pkg/storage"
)

type Config struct {
	Host  string
	Port  int64
	Token string
}

// ProofService is the part of proof.Service the API needs.
type ProofService interface {
	GetByTradeID(ctx context.Context, tradeID string) ([]storage.Verification, error)
	Terminate(ctx context.Context, tradeID string) (int, error)
}

type Server struct {
	cfg         Config
	service     ProofService
	client      tasks.Enqueuer
	inspector   tasks.Inspector
	httpMetrics *metrics.HTTPMetrics
	health      metrics.HealthCheck
	logger      *logrus.Logger
}

// NewServer returns a new server. httpMetrics and health may be nil.
func NewServer(
	cfg Config,
	service ProofService,
	client tasks.Enqueuer,
	inspector tasks.Inspector,
	httpMetrics *metrics.HTTPMetrics,
	health metrics.HealthCheck,
	logger *logrus.Logger,
) *Server {
	return &Server{
		cfg:         cfg,
		service:     service,
		client:      client,
		inspector:   inspector,
		httpMetrics: httpMetrics,
		health:      health,
		logger:      logger.WithField("pkg", "api").Logger,
	}
}

func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(logging.LoggerMiddleware(s.logger))

	e.Validator = &RequestValidator{Validator: validator.New()}

	hm := s.httpMetrics
	e.GET("/healthz", metrics.HealthHandler(s.health, s.logger), hm.Route(metrics.RouteHealth))

	grp := e.Group("/proof", s.AuthMiddleware)
	grp.POST("", s.StartVerification, hm.Route(metrics.RouteStart))
	grp.GET("/task/:taskId", s.GetTaskState, hm.Route(metrics.RouteTask))
	grp.GET("/:tradeId", s.GetVerifications, hm.Route(metrics.RouteGet))
	grp.DELETE("/:tradeId", s.TerminateVerifications, hm.Route(metrics.RouteTerminate))

	return e
}

func (s *Server) Start(ctx context.Context) error {
	e := s.Echo()

	eg := &errgroup.Group{}
	eg.Go(func() error {
		err := e.Start(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	})
	eg.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down server...")

		c, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		err := e.Shutdown(c)
		if err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

func (s *Server) StartVerification(c echo.Context) error {
	var req proof.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(MsgInvalidRequest, err.Error()))
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(MsgInvalidRequest, err.Error()))
	}
	if _, err := parser.RawAddressHex(req.RecipientAddress); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse(MsgInvalidAddress, err.Error()))
	}

	info, err := tasks.EnqueueVerify(s.client, req)
	if err != nil {
		s.logger.WithFields(req.Fields()).Errorf("tasks.EnqueueVerify: %v", err)
		return c.JSON(http.StatusInternalServerError, NewErrorResponse(MsgInternalError))
	}

	s.logger.WithFields(req.Fields()).WithField("task_id", info.ID).Info("verification enqueued")
	return c.JSON(http.StatusAccepted, NewSuccessResponse(http.StatusAccepted, EnqueuedTask{
		TaskID: info.ID,
		Queue:  info.Queue,
	}))
}

func (s *Server) GetTaskState(c echo.Context) error {
	taskID := c.Param("taskId")
	info, err := tasks.GetTask(s.inspector, taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return c.JSON(http.StatusNotFound, NewErrorResponse(MsgTaskNotFound))
		}
		s.logger.Errorf("tasks.GetTask: %v", err)
		return c.JSON(http.StatusInternalServerError, NewErrorResponse(MsgInternalError))
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, TaskState{
		TaskID:         taskID,
		State:          info.State.String(),
		VerificationID: string(info.Result),
	}))
}

func (s *Server) GetVerifications(c echo.Context) error {
	tradeID := c.Param("tradeId")
	records, err := s.service.GetByTradeID(c.Request().Context(), tradeID)
	if err != nil {
		s.logger.WithField("trade_id", tradeID).Errorf("s.service.GetByTradeID: %v", err)
		return c.JSON(http.StatusInternalServerError, NewErrorResponse(MsgInternalError))
	}
	if len(records) == 0 {
		return c.JSON(http.StatusNotFound, NewErrorResponse(MsgVerificationNotFound))
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, records))
}

func (s *Server) TerminateVerifications(c echo.Context) error {
	tradeID := c.Param("tradeId")
	n, err := s.service.Terminate(c.Request().Context(), tradeID)
	if err != nil {
		s.logger.WithField("trade_id", tradeID).Errorf("s.service.Terminate: %v", err)
		return c.JSON(http.StatusInternalServerError, NewErrorResponse(MsgInternalError))
	}
	if n == 0 {
		return c.JSON(http.StatusNotFound, NewErrorResponse(MsgVerificationNotFound))
	}
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, Terminated{
		TradeID:    tradeID,
		Terminated: n,
	}))
}
