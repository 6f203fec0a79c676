package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vultisig/txproof/internal/check"
	"github.com/vultisig/txproof/internal/logging"
	"github.com/vultisig/txproof/proof"
	"github.com/vultisig/txproof/proof/pkg/parser"
	"github.com/vultisig/txproof/proof/pkg/rpc"
)

var errNotAllSucceeded = errors.New("not all trades were verified")

type verifyOptions struct {
	file      string
	timeout   time.Duration
	socks5    string
	logFormat string
	logLevel  string
}

func NewVerifyCmd() *cobra.Command {
	opts := &verifyOptions{}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Poll proof services until every trade in the file is decided",
		Long: `Reads a yaml file with a "trades" list and verifies every trade against its
proof service. Pending trades are polled every 90 seconds. The command exits
non-zero if any trade does not end in SUCCESS or the timeout elapses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts)
		},
	}

	verifyCmd.Flags().StringVarP(&opts.file, "file", "f", "", "yaml file with the trades to verify")
	verifyCmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 15*time.Minute, "give up on trades still pending after this long")
	verifyCmd.Flags().StringVar(&opts.socks5, "socks5", "", "socks5 proxy address for non-local proof services")
	verifyCmd.Flags().StringVar(&opts.logFormat, "log-format", string(logging.FormatText), "log format: text or json")
	verifyCmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	_ = verifyCmd.MarkFlagRequired("file")

	return verifyCmd
}

func runVerify(cmd *cobra.Command, opts *verifyOptions) error {
	var format logging.LogFormat
	if err := format.UnmarshalText([]byte(opts.logFormat)); err != nil {
		return err
	}
	logger := logging.NewLogger(format, opts.logLevel)
	logger.SetOutput(cmd.ErrOrStderr())

	reqs, err := check.LoadTrades(opts.file)
	if err != nil {
		return fmt.Errorf("check.LoadTrades: %w", err)
	}

	pool := proof.NewDefaultPool(logger)
	sink := proof.NewSerialSink(logger)
	defer sink.Close()

	proxyProvider := rpc.NewProxyProvider(rpc.ProxyConfig{Socks5Address: opts.socks5})
	checker := check.NewChecker(
		logger,
		func(serviceAddress string) (proof.Transport, error) {
			return rpc.NewProofClient(logger, serviceAddress, proxyProvider, rpc.Config{})
		},
		parser.NewParser(logger),
		pool,
		sink,
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	results := checker.Run(ctx, reqs)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("pool.Shutdown: %v", err)
	}

	if !check.Print(cmd.OutOrStdout(), results) {
		return errNotAllSucceeded
	}
	return nil
}
