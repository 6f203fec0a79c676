package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vultisig/txproof/config"
	"github.com/vultisig/txproof/internal/api"
	"github.com/vultisig/txproof/internal/logging"
	"github.com/vultisig/txproof/internal/metrics"
	"github.com/vultisig/txproof/internal/tasks"
	"github.com/vultisig/txproof/proof"
	proofmetrics "github.com/vultisig/txproof/proof/metrics"
	"github.com/vultisig/txproof/proof/pkg/graceful"
	"github.com/vultisig/txproof/proof/pkg/parser"
	"github.com/vultisig/txproof/proof/pkg/rpc"
	"github.com/vultisig/txproof/proof/pkg/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.GetConfigure()
	if err != nil {
		logrus.Warnf("config.GetConfigure: %v, falling back to environment", err)
		cfg, err = config.ReadEnvConfig()
		if err != nil {
			panic(fmt.Errorf("config.ReadEnvConfig: %w", err))
		}
	}

	logger := logging.NewLogger(cfg.LogFormat, cfg.LogLevel)

	pgPool, err := storage.NewPool(ctx, cfg.Database.DSN)
	if err != nil {
		panic(fmt.Errorf("storage.NewPool: %w", err))
	}
	repo, err := storage.WithMigrations(logger, pgPool)
	if err != nil {
		panic(fmt.Errorf("storage.WithMigrations: %w", err))
	}

	var (
		proofMetrics  proofmetrics.ProofMetrics = proofmetrics.NewNilProofMetrics()
		workerMetrics *metrics.WorkerMetrics
		httpMetrics   *metrics.HTTPMetrics
	)
	health := metrics.HealthCheck(pgPool.Ping)
	metricsServer := metrics.StartMetricsServer(
		cfg.Metrics,
		[]string{metrics.ServiceProof, metrics.ServiceWorker, metrics.ServiceHTTP},
		health,
		logger,
	)
	if metricsServer != nil {
		proofMetrics = metrics.NewProofMetrics()
		workerMetrics = metrics.NewWorkerMetrics()
		httpMetrics = metrics.NewHTTPMetrics()
	}

	pool := proof.NewDefaultPool(logger)
	sink := proof.NewSerialSink(logger)
	proxyProvider := rpc.NewProxyProvider(cfg.Proof.Proxy)

	service := proof.NewService(
		logger,
		repo,
		func(serviceAddress string) (proof.Transport, error) {
			return rpc.NewProofClient(logger, serviceAddress, proxyProvider, cfg.Proof.Client)
		},
		parser.NewParser(logger),
		pool,
		sink,
		proofMetrics,
	)

	closed, err := service.CloseStale(ctx)
	if err != nil {
		panic(fmt.Errorf("service.CloseStale: %w", err))
	}
	if closed > 0 {
		logger.Warnf("closed %d verifications left over from a previous run", closed)
	}

	redisOptions := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := asynq.NewClient(redisOptions)
	inspector := asynq.NewInspector(redisOptions)

	worker := asynq.NewServer(
		redisOptions,
		asynq.Config{
			Logger:      logger,
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				tasks.QUEUE_NAME: 10,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(
		tasks.TypeVerifyTxProof,
		metrics.WithWorkerMetrics(service.HandleVerifyTask, tasks.TypeVerifyTxProof, workerMetrics),
	)
	err = worker.Start(mux)
	if err != nil {
		panic(fmt.Errorf("worker.Start: %w", err))
	}

	server := api.NewServer(
		api.Config{
			Host:  cfg.Server.Host,
			Port:  cfg.Server.Port,
			Token: cfg.Server.Token,
		},
		service,
		client,
		inspector,
		httpMetrics,
		health,
		logger,
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Start(egCtx)
	})
	eg.Go(func() error {
		graceful.HandleSignals(egCtx, shutdownTimeout,
			graceful.Sequence(
				func(context.Context) {
					cancel()
					worker.Shutdown()
				},
				func(c context.Context) {
					err := service.TerminateAll(c)
					if err != nil {
						logger.Errorf("service.TerminateAll: %v", err)
					}
				},
				func(c context.Context) {
					err := pool.Shutdown(c)
					if err != nil {
						logger.Errorf("pool.Shutdown: %v", err)
					}
					sink.Close()
				},
			),
			func(c context.Context) {
				if metricsServer == nil {
					return
				}
				err := metricsServer.Stop(c)
				if err != nil {
					logger.Errorf("metricsServer.Stop: %v", err)
				}
			},
		)
		cancel()
		return nil
	})

	err = eg.Wait()
	closeAll(logger, client, inspector, repo)
	if err != nil {
		panic(fmt.Errorf("server stopped: %w", err))
	}
	logger.Info("txproof stopped")
}

func closeAll(logger *logrus.Logger, client *asynq.Client, inspector *asynq.Inspector, repo *storage.PostgresProofStore) {
	if err := client.Close(); err != nil {
		logger.Errorf("client.Close: %v", err)
	}
	if err := inspector.Close(); err != nil {
		logger.Errorf("inspector.Close: %v", err)
	}
	repo.Close()
}
