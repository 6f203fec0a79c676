package proof

import (
	"errors"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultRequiredConfirmations = 10

// Request holds everything needed to ask one proof service about one trade.
// It is passed by value and never mutated after construction.
type Request struct {
	TradeID               string    `json:"trade_id" yaml:"trade_id" validate:"required"`
	TxHash                string    `json:"tx_hash" yaml:"tx_hash" validate:"required,hexadecimal,len=64"`
	RecipientAddress      string    `json:"recipient_address" yaml:"recipient_address" validate:"required"`
	TxKey                 string    `json:"tx_key" yaml:"tx_key" validate:"required,hexadecimal,len=64"`
	ServiceAddress        string    `json:"service_address" yaml:"service_address" validate:"required"`
	Amount                uint64    `json:"amount" yaml:"amount" validate:"required"`
	TradeDate             time.Time `json:"trade_date" yaml:"trade_date" validate:"required"`
	RequiredConfirmations int       `json:"required_confirmations,omitempty" yaml:"required_confirmations,omitempty" validate:"gte=0"`
}

func (r Request) Validate() error {
	switch {
	case r.TradeID == "":
		return errors.New("trade_id is required")
	case r.TxHash == "":
		return errors.New("tx_hash is required")
	case r.RecipientAddress == "":
		return errors.New("recipient_address is required")
	case r.TxKey == "":
		return errors.New("tx_key is required")
	case r.ServiceAddress == "":
		return errors.New("service_address is required")
	case r.RequiredConfirmations < 0:
		return errors.New("required_confirmations must not be negative")
	}
	return nil
}

// Confirmations falls back to DefaultRequiredConfirmations when unset.
func (r Request) Confirmations() int {
	if r.RequiredConfirmations == 0 {
		return DefaultRequiredConfirmations
	}
	return r.RequiredConfirmations
}

// OutputsPath is the proof service endpoint for this request. Parameter order
// is kept stable so service logs stay comparable.
func (r Request) OutputsPath() string {
	return "/api/outputs?txhash=" + url.QueryEscape(r.TxHash) +
		"&address=" + url.QueryEscape(r.RecipientAddress) +
		"&viewkey=" + url.QueryEscape(r.TxKey) +
		"&txprove=1"
}

func (r Request) ShortID() string {
	tradeID := r.TradeID
	if len(tradeID) > 8 {
		tradeID = tradeID[:8]
	}
	service := r.ServiceAddress
	if len(service) > 6 {
		service = service[:6]
	}
	return tradeID + " @ " + service
}

func (r Request) String() string {
	return "Request at: " + r.ServiceAddress + " for trade: " + r.TradeID
}

func (r Request) Fields() logrus.Fields {
	return logrus.Fields{
		"trade_id":        r.TradeID,
		"service_address": r.ServiceAddress,
		"tx_hash":         r.TxHash,
	}
}
