package parser

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/txproof/proof"
)

const (
	testTxHash = "5e665addf6d7c6300670e8a89564ed12b5c1a21c336408e2835668f9a6a0d802"
	testTxKey  = "f3ce66c9d395e5e460c8802b2c3c1fff04e508434f9738ee35558aac4678c906"
	mainnet    = 18
)

func testKeys() (spend, view []byte) {
	spend = make([]byte, 32)
	view = make([]byte, 32)
	for i := range spend {
		spend[i] = byte(i + 1)
		view[i] = byte(0xa0 + i)
	}
	return spend, view
}

func testRequest() proof.Request {
	spend, view := testKeys()
	return proof.Request{
		TradeID:               "trade-1",
		TxHash:                testTxHash,
		RecipientAddress:      EncodeAddress(mainnet, spend, view, nil),
		TxKey:                 testTxKey,
		ServiceAddress:        "127.0.0.1:8081",
		Amount:                100000000000,
		TradeDate:             time.Unix(1_700_000_000, 0),
		RequiredConfirmations: 10,
	}
}

type fixture struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

func successBody(req proof.Request, mutate func(data map[string]any)) string {
	spend, view := testKeys()
	data := map[string]any{
		"address":          hex.EncodeToString(append(append([]byte{}, spend...), view...)),
		"tx_hash":          req.TxHash,
		"viewkey":          req.TxKey,
		"tx_timestamp":     req.TradeDate.Unix() + 60,
		"tx_confirmations": 12,
		"outputs": []map[string]any{
			{"match": false, "amount": 5},
			{"match": true, "amount": req.Amount},
		},
	}
	if mutate != nil {
		mutate(data)
	}
	b, _ := json.Marshal(fixture{Status: "success", Data: data})
	return string(b)
}

func TestParser_Classify(t *testing.T) {
	p := NewParser(logrus.New())
	req := testRequest()

	tests := []struct {
		name     string
		body     string
		expected proof.Outcome
	}{
		{
			name:     "success",
			body:     successBody(req, nil),
			expected: proof.Success(),
		},
		{
			name: "pending confirmations",
			body: successBody(req, func(d map[string]any) {
				d["tx_confirmations"] = 0
			}),
			expected: proof.PendingConfirmations(0),
		},
		{
			name:     "status fail means not found yet",
			body:     `{"status":"fail","data":{}}`,
			expected: proof.TxNotFound(),
		},
		{
			name:     "unknown status",
			body:     `{"status":"error","data":{}}`,
			expected: proof.ApiFailure("Unhandled status value"),
		},
		{
			name:     "empty body",
			body:     "  ",
			expected: proof.ApiInvalid("Empty json"),
		},
		{
			name:     "missing data",
			body:     `{"status":"success"}`,
			expected: proof.ApiInvalid("Missing data / status fields"),
		},
		{
			name:     "data is not an object",
			body:     `{"status":"success","data":[]}`,
			expected: proof.ApiInvalid("Missing data / status fields"),
		},
		{
			name: "missing address",
			body: successBody(req, func(d map[string]any) {
				delete(d, "address")
			}),
			expected: proof.ApiInvalid("Missing address field"),
		},
		{
			name: "address mismatch",
			body: successBody(req, func(d map[string]any) {
				d["address"] = strings.Repeat("00", 64)
			}),
			expected: proof.Failed(proof.DetailAddressInvalid),
		},
		{
			name: "tx hash mismatch",
			body: successBody(req, func(d map[string]any) {
				d["tx_hash"] = strings.Repeat("ab", 32)
			}),
			expected: proof.Failed(proof.DetailTxHashInvalid),
		},
		{
			name: "tx key mismatch",
			body: successBody(req, func(d map[string]any) {
				d["viewkey"] = strings.Repeat("cd", 32)
			}),
			expected: proof.Failed(proof.DetailTxKeyInvalid),
		},
		{
			name: "missing tx_timestamp",
			body: successBody(req, func(d map[string]any) {
				delete(d, "tx_timestamp")
			}),
			expected: proof.ApiInvalid("Missing tx_timestamp field"),
		},
		{
			name: "tx much older than trade",
			body: successBody(req, func(d map[string]any) {
				d["tx_timestamp"] = req.TradeDate.Add(-MaxDateTolerance - time.Minute).Unix()
			}),
			expected: proof.Failed(proof.DetailTradeDateNotMatching),
		},
		{
			name: "tx within date tolerance",
			body: successBody(req, func(d map[string]any) {
				d["tx_timestamp"] = req.TradeDate.Add(-MaxDateTolerance).Unix()
			}),
			expected: proof.Success(),
		},
		{
			name: "missing confirmations",
			body: successBody(req, func(d map[string]any) {
				delete(d, "tx_confirmations")
			}),
			expected: proof.ApiInvalid("Missing tx_confirmations field"),
		},
		{
			name: "no matching output",
			body: successBody(req, func(d map[string]any) {
				d["outputs"] = []map[string]any{{"match": false, "amount": req.Amount}}
			}),
			expected: proof.Failed(proof.DetailNoMatchFound),
		},
		{
			name: "amount mismatch",
			body: successBody(req, func(d map[string]any) {
				d["outputs"] = []map[string]any{{"match": true, "amount": req.Amount - 1}}
			}),
			expected: proof.Failed(proof.DetailAmountNotMatching),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Classify(req, tc.body)
			require.True(t, tc.expected.Equal(got), "expected %s, got %s", tc.expected, got)
		})
	}
}

func TestParser_Classify_invalidJSON(t *testing.T) {
	p := NewParser(logrus.New())

	got := p.Classify(testRequest(), "<html>bad gateway</html>")
	require.Equal(t, proof.StatusError, got.Status)
	require.Equal(t, proof.DetailApiInvalid, got.DetailKind())
	require.NotEmpty(t, got.Detail.Message)
}

func TestParser_Classify_badRecipientAddress(t *testing.T) {
	p := NewParser(logrus.New())
	req := testRequest()
	body := successBody(req, nil)
	req.RecipientAddress = "not-an-address"

	got := p.Classify(req, body)
	require.Equal(t, proof.StatusError, got.Status)
	require.Equal(t, proof.DetailApiInvalid, got.DetailKind())
}

func TestParser_Classify_isPure(t *testing.T) {
	p := NewParser(logrus.New())
	req := testRequest()
	body := successBody(req, func(d map[string]any) {
		d["tx_confirmations"] = 3
	})

	first := p.Classify(req, body)
	second := p.Classify(req, body)
	require.True(t, first.Equal(second))
	require.NotSame(t, first.Detail, second.Detail)
}

func TestParser_Classify_defaultConfirmations(t *testing.T) {
	p := NewParser(logrus.New())
	req := testRequest()
	req.RequiredConfirmations = 0

	got := p.Classify(req, successBody(req, func(d map[string]any) {
		d["tx_confirmations"] = proof.DefaultRequiredConfirmations - 1
	}))
	require.True(t, proof.PendingConfirmations(proof.DefaultRequiredConfirmations-1).Equal(got))
}
