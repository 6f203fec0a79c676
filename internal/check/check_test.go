package check

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/txproof/proof"
)

const tradesYAML = `
trades:
  - trade_id: 3fa85f64-5717-4562-b3fc-2c963f66afa6
    tx_hash: 5e665addf6d7c6300670e8a89564ed12b5c1a21c336408e2835668f9a6a0d802
    recipient_address: 4AdkPJoxn7JCvAby9szgnt93MSEwdnxdhaASxbTBm6x5dCwmsDep2UYN4FhStDn5i11nsJbpU7oj59ahg8gXb1Mg3viqCuk
    tx_key: f3ce66c9d395e5e460c8802b2c3c1fff04e508434f9738ee35558aac4678c906
    service_address: 127.0.0.1:8081
    amount: 100000000000
    trade_date: 2024-03-01T11:00:00Z
    required_confirmations: 5
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTrades(t *testing.T) {
	reqs, err := LoadTrades(writeFile(t, tradesYAML))
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	req := reqs[0]
	assert.Equal(t, "3fa85f64-5717-4562-b3fc-2c963f66afa6", req.TradeID)
	assert.Equal(t, uint64(100000000000), req.Amount)
	assert.Equal(t, 5, req.Confirmations())
	assert.True(t, req.TradeDate.Equal(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)))
}

func TestLoadTrades_errors(t *testing.T) {
	_, err := LoadTrades(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadTrades(writeFile(t, "trades: ["))
	require.ErrorContains(t, err, "failed to parse yaml")

	_, err = LoadTrades(writeFile(t, "trades: []\n"))
	require.ErrorContains(t, err, "no trades")

	_, err = LoadTrades(writeFile(t, strings.Replace(tradesYAML, "tx_key:", "# tx_key:", 1)))
	require.ErrorContains(t, err, "tx_key is required")
}

type bodyTransport string

func (b bodyTransport) Get(context.Context, string) (string, error) {
	return string(b), nil
}

// byBody classifies on the body returned by bodyTransport.
type byBody map[string]proof.Outcome

func (m byBody) Classify(_ proof.Request, body string) proof.Outcome {
	return m[body]
}

func request(tradeID, service string) proof.Request {
	return proof.Request{
		TradeID:          tradeID,
		TxHash:           strings.Repeat("ab", 32),
		RecipientAddress: "4address",
		TxKey:            strings.Repeat("cd", 32),
		ServiceAddress:   service,
		Amount:           1,
		TradeDate:        time.Now(),
	}
}

func newChecker(t *testing.T, transports proof.TransportFactory) *Checker {
	t.Helper()
	logger := logrus.New()
	pool := proof.NewPool(logger, 3, 5, time.Minute)
	sink := proof.NewSerialSink(logger)
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
		sink.Close()
	})

	classifier := byBody{
		"ok":      proof.Success(),
		"bad":     proof.Failed(proof.DetailAmountNotMatching),
		"pending": proof.TxNotFound(),
	}
	return NewChecker(logger, transports, classifier, pool, sink)
}

func TestChecker_Run(t *testing.T) {
	c := newChecker(t, func(service string) (proof.Transport, error) {
		if service == "broken" {
			return nil, errors.New("bad proxy")
		}
		return bodyTransport(service), nil
	})

	reqs := []proof.Request{
		request("trade-1", "ok"),
		request("trade-2", "bad"),
		request("trade-3", "broken"),
	}
	results := c.Run(context.Background(), reqs)
	require.Len(t, results, 3)

	require.True(t, results[0].Succeeded())
	require.Equal(t, "FAILED/AMOUNT_NOT_MATCHING", results[1].Outcome.String())
	require.Equal(t, proof.StatusError, results[2].Outcome.Status)
	require.Equal(t, proof.DetailConnectionFailure, results[2].Outcome.DetailKind())

	var out bytes.Buffer
	require.False(t, Print(&out, results))
	require.Equal(t, 3, strings.Count(out.String(), "\n"))
	require.Contains(t, out.String(), "SUCCESS")
}

func TestChecker_Run_timeout(t *testing.T) {
	c := newChecker(t, func(service string) (proof.Transport, error) {
		return bodyTransport(service), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	results := c.Run(ctx, []proof.Request{request("trade-1", "pending")})
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Outcome)
	require.Equal(t, proof.StatusPending, results[0].Outcome.Status)
	require.False(t, results[0].Succeeded())
}

type blockingTransport chan struct{}

func (b blockingTransport) Get(ctx context.Context, _ string) (string, error) {
	<-b
	return "", errors.New("released")
}

func TestChecker_Run_timeoutWithSaturatedPool(t *testing.T) {
	release := make(blockingTransport)
	c := newChecker(t, func(string) (proof.Transport, error) {
		return release, nil
	})
	t.Cleanup(func() { close(release) })

	// more trades than the pool runs and queues together
	reqs := make([]proof.Request, 12)
	for i := range reqs {
		reqs[i] = request(fmt.Sprintf("trade-%d", i), "hanging")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	results := c.Run(ctx, reqs)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, results, len(reqs))
	for _, r := range results {
		require.False(t, r.Succeeded())
	}
}

func TestPrint_allSucceeded(t *testing.T) {
	ok := proof.Success()
	var out bytes.Buffer
	require.True(t, Print(&out, []Result{{Request: request("trade-1", "ok"), Outcome: &ok}}))
}
