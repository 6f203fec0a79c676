package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/txproof/proof/pkg/conv"
)

type ProofRepo interface {
	CreateVerification(ctx context.Context, req CreateVerificationDto) (Verification, error)
	SetOutcome(ctx context.Context, id uuid.UUID, outcome OutcomeDto) error
	SetTerminated(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (Verification, error)
	GetByTradeID(ctx context.Context, tradeID string) <-chan RowsStream[Verification]
	GetActive(ctx context.Context) <-chan RowsStream[Verification]
}

var ErrNoVerification = errors.New("verification not found")

type Verification struct {
	ID               uuid.UUID  `json:"id" validate:"required"`
	TradeID          string     `json:"trade_id" validate:"required"`
	ServiceAddress   string     `json:"service_address" validate:"required"`
	TxHash           string     `json:"tx_hash" validate:"required"`
	RecipientAddress string     `json:"recipient_address" validate:"required"`
	Amount           uint64     `json:"amount"`
	Status           *string    `json:"status"`
	Detail           *string    `json:"detail"`
	NumConfirmations int        `json:"num_confirmations"`
	ErrorMessage     *string    `json:"error_message"`
	PollCount        int        `json:"poll_count"`
	Terminated       bool       `json:"terminated"`
	FirstRequestAt   time.Time  `json:"first_request_at"`
	LastOutcomeAt    *time.Time `json:"last_outcome_at"`
	CreatedAt        time.Time  `json:"created_at" validate:"required"`
	UpdatedAt        time.Time  `json:"updated_at" validate:"required"`
}

func (v *Verification) Fields() logrus.Fields {
	return logrus.Fields{
		"id":                v.ID.String(),
		"trade_id":          v.TradeID,
		"service_address":   v.ServiceAddress,
		"tx_hash":           v.TxHash,
		"status":            conv.FromPtr(v.Status),
		"detail":            conv.FromPtr(v.Detail),
		"num_confirmations": v.NumConfirmations,
		"poll_count":        v.PollCount,
		"terminated":        v.Terminated,
		"first_request_at":  v.FirstRequestAt,
	}
}

type CreateVerificationDto struct {
	TradeID          string
	ServiceAddress   string
	TxHash           string
	RecipientAddress string
	Amount           uint64
	FirstRequestAt   time.Time
}

type OutcomeDto struct {
	Status           string
	Detail           *string
	NumConfirmations int
	ErrorMessage     *string
}
