package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresProofStore struct {
	pool *pgxpool.Pool
}

const defaultTimeout = 10 * time.Second

const verificationColumns = `id,
       trade_id,
       service_address,
       tx_hash,
       recipient_address,
       amount,
       status,
       detail,
       num_confirmations,
       error_message,
       poll_count,
       terminated,
       first_request_at,
       last_outcome_at,
       created_at,
       updated_at`

func NewRepo(pool *pgxpool.Pool) *PostgresProofStore {
	return &PostgresProofStore{
		pool: pool,
	}
}

func NewPool(c context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool.Ping: %w", err)
	}
	return pool, nil
}

func NewPostgresProofStore(c context.Context, dsn string) (*PostgresProofStore, error) {
	pool, err := NewPool(c, dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPool: %w", err)
	}
	return NewRepo(pool), nil
}

func (p *PostgresProofStore) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *PostgresProofStore) Close() {
	p.pool.Close()
}

func (p *PostgresProofStore) CreateVerification(c context.Context, req CreateVerificationDto) (Verification, error) {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	id, err := uuid.NewRandom()
	if err != nil {
		return Verification{}, fmt.Errorf("uuid.NewRandom: %w", err)
	}

	now := time.Now()
	v := Verification{
		ID:               id,
		TradeID:          req.TradeID,
		ServiceAddress:   req.ServiceAddress,
		TxHash:           req.TxHash,
		RecipientAddress: req.RecipientAddress,
		Amount:           req.Amount,
		FirstRequestAt:   req.FirstRequestAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err = p.pool.Exec(ctx, `INSERT INTO tx_proof_verification (
                        id,
                        trade_id,
                        service_address,
                        tx_hash,
                        recipient_address,
                        amount,
                        first_request_at,
                        created_at,
                        updated_at
) VALUES (
          $1,
          $2,
          $3,
          $4,
          $5,
          $6,
          $7,
          $8,
          $9
)`, v.ID,
		v.TradeID,
		v.ServiceAddress,
		v.TxHash,
		v.RecipientAddress,
		int64(v.Amount),
		v.FirstRequestAt,
		v.CreatedAt,
		v.UpdatedAt)
	if err != nil {
		return Verification{}, fmt.Errorf("p.pool.Exec: %w", err)
	}
	return v, nil
}

func (p *PostgresProofStore) SetOutcome(c context.Context, id uuid.UUID, outcome OutcomeDto) error {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	tag, err := p.pool.Exec(
		ctx,
		`UPDATE tx_proof_verification SET status = $1,
                                   detail = $2,
                                   num_confirmations = $3,
                                   error_message = $4,
                                   poll_count = poll_count + 1,
                                   last_outcome_at = now(),
                                   updated_at = now()
                               WHERE id = $5`,
		outcome.Status,
		outcome.Detail,
		outcome.NumConfirmations,
		outcome.ErrorMessage,
		id,
	)
	if err != nil {
		return fmt.Errorf("p.pool.Exec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoVerification
	}
	return nil
}

func (p *PostgresProofStore) SetTerminated(c context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	_, err := p.pool.Exec(
		ctx,
		`UPDATE tx_proof_verification SET terminated = $1,
                                   updated_at = now()
                               WHERE id = $2`,
		true,
		id,
	)
	if err != nil {
		return fmt.Errorf("p.pool.Exec: %w", err)
	}
	return nil
}

func (p *PostgresProofStore) GetByID(c context.Context, id uuid.UUID) (Verification, error) {
	ctx, cancel := context.WithTimeout(c, defaultTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT `+verificationColumns+` FROM tx_proof_verification WHERE id = $1 LIMIT 1`, id)
	if err != nil {
		return Verification{}, fmt.Errorf("p.pool.Query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Verification{}, ErrNoVerification
	}

	v, err := VerificationFromRow(rows)
	if err != nil {
		return Verification{}, fmt.Errorf("VerificationFromRow: %w", err)
	}
	return v, nil
}

func (p *PostgresProofStore) GetByTradeID(c context.Context, tradeID string) <-chan RowsStream[Verification] {
	return GetRowsStream[Verification](
		c,
		p.pool,
		VerificationFromRow,
		`SELECT `+verificationColumns+` FROM tx_proof_verification WHERE trade_id = $1 ORDER BY created_at DESC`,
		tradeID,
	)
}

func (p *PostgresProofStore) GetActive(c context.Context) <-chan RowsStream[Verification] {
	return GetRowsStream[Verification](
		c,
		p.pool,
		VerificationFromRow,
		`SELECT `+verificationColumns+` FROM tx_proof_verification WHERE terminated = $1`,
		false,
	)
}

type RowsStream[T any] struct {
	Row T
	Err error
}

func AllFromRowsStream[T any](ch <-chan RowsStream[T]) ([]T, error) {
	var items []T
	for item := range ch {
		if item.Err != nil {
			return nil, fmt.Errorf("item.Err: %w", item.Err)
		}
		items = append(items, item.Row)
	}
	return items, nil
}

// GetRowsStream
// TLDR: fetch rows from db with a non-buffered channel to control concurrency by data-consumer
func GetRowsStream[T any](
	ctx context.Context,
	pool *pgxpool.Pool,
	scanRow func(rows pgx.Rows) (T, error),
	sql string,
	args ...any,
) <-chan RowsStream[T] {
	ch := make(chan RowsStream[T])

	go func() {
		defer close(ch)

		rows, err := pool.Query(
			ctx,
			sql,
			args...,
		)
		if err != nil {
			ch <- RowsStream[T]{Err: fmt.Errorf("p.pool.Query: %w", err)}
			return
		}
		defer rows.Close()

		for rows.Next() {
			item, er := scanRow(rows)
			if er != nil {
				ch <- RowsStream[T]{Err: fmt.Errorf("scanRow: %w", er)}
				return
			}

			ch <- RowsStream[T]{Row: item}
		}
		err = rows.Err()
		if err != nil {
			ch <- RowsStream[T]{Err: fmt.Errorf("rows.Err: %w", err)}
			return
		}
	}()

	return ch
}

func VerificationFromRow(rows pgx.Rows) (Verification, error) {
	var (
		v      Verification
		amount int64
	)
	err := rows.Scan(
		&v.ID,
		&v.TradeID,
		&v.ServiceAddress,
		&v.TxHash,
		&v.RecipientAddress,
		&amount,
		&v.Status,
		&v.Detail,
		&v.NumConfirmations,
		&v.ErrorMessage,
		&v.PollCount,
		&v.Terminated,
		&v.FirstRequestAt,
		&v.LastOutcomeAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return Verification{}, fmt.Errorf("rows.Scan: %w", err)
	}
	v.Amount = uint64(amount)
	return v, nil
}
