package proof

import (
	"fmt"
	"strings"
)

const maxErrorMessageLength = 2048

type Status string

const (
	StatusPending Status = "PENDING" // tx not visible yet or not enough confirmations
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusError   Status = "ERROR" // service or transport error, the proof itself may still be valid
)

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusError
}

type DetailKind string

const (
	// Pending
	DetailTxNotFound           DetailKind = "TX_NOT_FOUND"
	DetailPendingConfirmations DetailKind = "PENDING_CONFIRMATIONS"

	// Error
	DetailConnectionFailure DetailKind = "CONNECTION_FAILURE"
	DetailApiFailure        DetailKind = "API_FAILURE"
	DetailApiInvalid        DetailKind = "API_INVALID"
	DetailNoResultsTimeout  DetailKind = "NO_RESULTS_TIMEOUT"

	// Failed
	DetailTxHashInvalid        DetailKind = "TX_HASH_INVALID"
	DetailTxKeyInvalid         DetailKind = "TX_KEY_INVALID"
	DetailAddressInvalid       DetailKind = "ADDRESS_INVALID"
	DetailNoMatchFound         DetailKind = "NO_MATCH_FOUND"
	DetailAmountNotMatching    DetailKind = "AMOUNT_NOT_MATCHING"
	DetailTradeDateNotMatching DetailKind = "TRADE_DATE_NOT_MATCHING"
)

func (k DetailKind) isMismatch() bool {
	switch k {
	case DetailTxHashInvalid,
		DetailTxKeyInvalid,
		DetailAddressInvalid,
		DetailNoMatchFound,
		DetailAmountNotMatching,
		DetailTradeDateNotMatching:
		return true
	default:
		return false
	}
}

// Detail is only built through the Outcome constructors below, so it always
// travels with the status that produced it.
type Detail struct {
	Kind             DetailKind `json:"kind"`
	NumConfirmations int        `json:"num_confirmations,omitempty"`
	Message          string     `json:"message,omitempty"`
}

func (d Detail) String() string {
	switch {
	case d.Kind == DetailPendingConfirmations:
		return fmt.Sprintf("%s{%d}", d.Kind, d.NumConfirmations)
	case d.Message != "":
		return fmt.Sprintf("%s{%s}", d.Kind, d.Message)
	default:
		return string(d.Kind)
	}
}

// Outcome is an immutable result of one classification. A fresh value is
// created for every poll.
type Outcome struct {
	Status Status  `json:"status"`
	Detail *Detail `json:"detail,omitempty"`
}

func (o Outcome) String() string {
	if o.Detail == nil {
		return string(o.Status)
	}
	return string(o.Status) + "/" + o.Detail.String()
}

// DetailKind returns an empty kind when no detail is attached.
func (o Outcome) DetailKind() DetailKind {
	if o.Detail == nil {
		return ""
	}
	return o.Detail.Kind
}

func (o Outcome) Equal(other Outcome) bool {
	if o.Status != other.Status {
		return false
	}
	if o.Detail == nil || other.Detail == nil {
		return o.Detail == nil && other.Detail == nil
	}
	return *o.Detail == *other.Detail
}

func TxNotFound() Outcome {
	return Outcome{Status: StatusPending, Detail: &Detail{Kind: DetailTxNotFound}}
}

func PendingConfirmations(count int) Outcome {
	return Outcome{
		Status: StatusPending,
		Detail: &Detail{Kind: DetailPendingConfirmations, NumConfirmations: count},
	}
}

func Success() Outcome {
	return Outcome{Status: StatusSuccess}
}

// Failed panics on a detail that is not a validation mismatch: that is a
// programming error in the classifier.
func Failed(kind DetailKind) Outcome {
	if !kind.isMismatch() {
		panic(fmt.Sprintf("proof: %s is not a failure detail", kind))
	}
	return Outcome{Status: StatusFailed, Detail: &Detail{Kind: kind}}
}

func ConnectionFailure(msg string) Outcome {
	return errorOutcome(DetailConnectionFailure, msg)
}

func ApiFailure(msg string) Outcome {
	return errorOutcome(DetailApiFailure, msg)
}

func ApiInvalid(msg string) Outcome {
	return errorOutcome(DetailApiInvalid, msg)
}

func NoResultsTimeout() Outcome {
	return Outcome{Status: StatusError, Detail: &Detail{Kind: DetailNoResultsTimeout}}
}

func errorOutcome(kind DetailKind, msg string) Outcome {
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorMessageLength {
		msg = msg[:maxErrorMessageLength]
	}
	return Outcome{Status: StatusError, Detail: &Detail{Kind: kind, Message: msg}}
}
