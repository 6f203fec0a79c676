package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/txproof/proof"
)

// MaxDateTolerance is how much older than the trade the tx may look, to cover
// users with clocks out of sync.
const MaxDateTolerance = 48 * time.Hour

const (
	statusSuccess = "success"
	statusFail    = "fail"
)

type outputsResponse struct {
	Status *string         `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type outputsData struct {
	Address         *string  `json:"address"`
	TxHash          *string  `json:"tx_hash"`
	ViewKey         *string  `json:"viewkey"`
	TxTimestamp     *int64   `json:"tx_timestamp"`
	TxConfirmations *int     `json:"tx_confirmations"`
	Outputs         []output `json:"outputs"`
}

type output struct {
	Match  bool   `json:"match"`
	Amount uint64 `json:"amount"`
}

// Parser classifies answers of the xmrblocks style /api/outputs endpoint.
type Parser struct {
	logger *logrus.Logger
}

func NewParser(logger *logrus.Logger) *Parser {
	return &Parser{
		logger: logger.WithField("pkg", "parser").Logger,
	}
}

func (p *Parser) Classify(req proof.Request, body string) proof.Outcome {
	trimmed := bytes.TrimSpace([]byte(body))
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return proof.ApiInvalid("Empty json")
	}

	var resp outputsResponse
	err := json.Unmarshal(trimmed, &resp)
	if err != nil {
		return proof.ApiInvalid(fmt.Sprintf("json.Unmarshal: %v", err))
	}
	if resp.Status == nil || !isObject(resp.Data) {
		return proof.ApiInvalid("Missing data / status fields")
	}

	switch *resp.Status {
	case statusFail:
		// the service answers "fail" until the tx reached the mempool, or when
		// the request had invalid data; either way we ask again later
		return proof.TxNotFound()
	case statusSuccess:
	default:
		return proof.ApiFailure("Unhandled status value")
	}

	var data outputsData
	err = json.Unmarshal(resp.Data, &data)
	if err != nil {
		return proof.ApiInvalid(fmt.Sprintf("json.Unmarshal data: %v", err))
	}

	fields := req.Fields()

	if data.Address == nil {
		return proof.ApiInvalid("Missing address field")
	}
	expectedAddressHex, err := RawAddressHex(req.RecipientAddress)
	if err != nil {
		return proof.ApiInvalid(fmt.Sprintf("RawAddressHex: %v", err))
	}
	if !strings.EqualFold(*data.Address, expectedAddressHex) {
		p.logger.WithFields(fields).Warnf("address from json result %s, expected %s, recipient address %s",
			*data.Address, expectedAddressHex, req.RecipientAddress)
		return proof.Failed(proof.DetailAddressInvalid)
	}

	if data.TxHash == nil {
		return proof.ApiInvalid("Missing tx_hash field")
	}
	if !strings.EqualFold(*data.TxHash, req.TxHash) {
		p.logger.WithFields(fields).Warnf("txHash %s, expected %s", *data.TxHash, req.TxHash)
		return proof.Failed(proof.DetailTxHashInvalid)
	}

	if data.ViewKey == nil {
		return proof.ApiInvalid("Missing viewkey field")
	}
	if !strings.EqualFold(*data.ViewKey, req.TxKey) {
		p.logger.WithFields(fields).Warnf("viewkey %s, expected %s", *data.ViewKey, req.TxKey)
		return proof.Failed(proof.DetailTxKeyInvalid)
	}

	if data.TxTimestamp == nil {
		return proof.ApiInvalid("Missing tx_timestamp field")
	}
	tradeDateSeconds := req.TradeDate.Unix()
	difference := tradeDateSeconds - *data.TxTimestamp
	if difference > int64(MaxDateTolerance/time.Second) {
		p.logger.WithFields(fields).Warnf("tx_timestamp %d, tradeDate %d, difference %d",
			*data.TxTimestamp, tradeDateSeconds, difference)
		return proof.Failed(proof.DetailTradeDateNotMatching)
	}

	if data.TxConfirmations == nil {
		return proof.ApiInvalid("Missing tx_confirmations field")
	}
	confirmations := *data.TxConfirmations
	p.logger.WithFields(fields).Infof("confirmations: %d", confirmations)

	// one of the outputs has to be ours and carry the expected amount
	anyMatchFound := false
	amountMatches := false
	for _, out := range data.Outputs {
		if !out.Match {
			continue
		}
		anyMatchFound = true
		if out.Amount == req.Amount {
			amountMatches = true
			break
		}
		p.logger.WithFields(fields).Warnf("amount %d, expected %d", out.Amount, req.Amount)
	}
	if !anyMatchFound {
		return proof.Failed(proof.DetailNoMatchFound)
	}
	if !amountMatches {
		return proof.Failed(proof.DetailAmountNotMatching)
	}

	if confirmations < req.Confirmations() {
		return proof.PendingConfirmations(confirmations)
	}
	return proof.Success()
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
