package check

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vultisig/txproof/proof"
)

type TradeFile struct {
	Trades []proof.Request `yaml:"trades"`
}

// LoadTrades reads and validates a yaml trade file.
func LoadTrades(path string) ([]proof.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trade file: %w", err)
	}

	var file TradeFile
	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if len(file.Trades) == 0 {
		return nil, fmt.Errorf("no trades in %s", path)
	}

	for i, req := range file.Trades {
		err = req.Validate()
		if err != nil {
			return nil, fmt.Errorf("trade %d: %w", i, err)
		}
	}
	return file.Trades, nil
}

type Result struct {
	Request proof.Request
	Outcome *proof.Outcome
}

func (r Result) Succeeded() bool {
	return r.Outcome != nil && r.Outcome.Status == proof.StatusSuccess
}

type Checker struct {
	logger     *logrus.Logger
	transports proof.TransportFactory
	classifier proof.Classifier
	pool       proof.Submitter
	sink       proof.Sink
}

func NewChecker(
	logger *logrus.Logger,
	transports proof.TransportFactory,
	classifier proof.Classifier,
	pool proof.Submitter,
	sink proof.Sink,
) *Checker {
	return &Checker{
		logger:     logger.WithField("pkg", "check").Logger,
		transports: transports,
		classifier: classifier,
		pool:       pool,
		sink:       sink,
	}
}

// Run verifies all trades until each one reaches a terminal outcome or ctx is
// done. Verifiers still running at that point are terminated and report their
// last outcome, which may be nil if the service never answered.
func (c *Checker) Run(ctx context.Context, reqs []proof.Request) []Result {
	results := make([]Result, len(reqs))
	verifiers := make([]*proof.Verifier, len(reqs))
	finished := make(chan int, len(reqs))

	running := 0
	for i, req := range reqs {
		results[i].Request = req

		transport, err := c.transports(req.ServiceAddress)
		if err != nil {
			o := proof.ConnectionFailure(err.Error())
			results[i].Outcome = &o
			continue
		}

		v := proof.NewVerifier(c.logger, req, transport, c.classifier, c.pool, c.sink,
			proof.WithSubmitContext(ctx))
		verifiers[i] = v
		running++

		v.Start(
			func(o proof.Outcome) {
				c.logger.WithFields(req.Fields()).Infof("outcome: %s", o)
				if o.Status.IsTerminal() {
					finished <- i
				}
			},
			func(msg string, err error) {
				c.logger.WithFields(req.Fields()).WithError(err).Warn(msg)
			},
		)
	}

	for running > 0 {
		select {
		case <-finished:
			running--
		case <-ctx.Done():
			c.logger.Warnf("%d verifications still running: %v", running, ctx.Err())
			running = 0
		}
	}

	for i, v := range verifiers {
		if v == nil {
			continue
		}
		v.Terminate()
		results[i].Outcome = v.Result()
	}
	return results
}

// Print writes one line per trade and reports whether every trade succeeded.
func Print(w io.Writer, results []Result) bool {
	ok := true
	for _, r := range results {
		outcome := "NO_RESULT"
		if r.Outcome != nil {
			outcome = r.Outcome.String()
		}
		if !r.Succeeded() {
			ok = false
		}
		_, _ = fmt.Fprintf(w, "%-24s %-36s %s\n", r.Request.ShortID(), r.Request.TradeID, outcome)
	}
	return ok
}
