package proof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/txproof/proof/metrics"
	"github.com/vultisig/txproof/proof/pkg/conv"
	"github.com/vultisig/txproof/proof/pkg/storage"
)

var ErrAlreadyRunning = errors.New("verification already running")

// TransportFactory builds the transport for one proof service address.
type TransportFactory func(serviceAddress string) (Transport, error)

// Listener is told about every outcome delivered for any trade. It runs on
// the sink.
type Listener func(req Request, outcome Outcome)

type Service struct {
	logger     *logrus.Logger
	repo       storage.ProofRepo
	transports TransportFactory
	classifier Classifier
	pool       Submitter
	sink       Sink
	metrics    metrics.ProofMetrics
	now        func() time.Time

	mu     sync.Mutex
	active map[string]*tracked
}

type tracked struct {
	id       uuid.UUID
	tradeID  string
	verifier *Verifier
}

func NewService(
	logger *logrus.Logger,
	repo storage.ProofRepo,
	transports TransportFactory,
	classifier Classifier,
	pool Submitter,
	sink Sink,
	proofMetrics metrics.ProofMetrics,
) *Service {
	if proofMetrics == nil {
		proofMetrics = metrics.NewNilProofMetrics()
	}
	return &Service{
		logger:     logger.WithField("pkg", "proof.service").Logger,
		repo:       repo,
		transports: transports,
		classifier: classifier,
		pool:       pool,
		sink:       sink,
		metrics:    proofMetrics,
		now:        time.Now,
		active:     make(map[string]*tracked),
	}
}

func activeKey(tradeID, serviceAddress string) string {
	return tradeID + "|" + serviceAddress
}

// StartVerification begins polling the request's proof service and returns
// the id of the stored verification record.
func (s *Service) StartVerification(ctx context.Context, req Request, listener Listener) (uuid.UUID, error) {
	err := req.Validate()
	if err != nil {
		return uuid.Nil, fmt.Errorf("req.Validate: %w", err)
	}

	key := activeKey(req.TradeID, req.ServiceAddress)
	t := &tracked{tradeID: req.TradeID}

	s.mu.Lock()
	if _, ok := s.active[key]; ok {
		s.mu.Unlock()
		return uuid.Nil, ErrAlreadyRunning
	}
	s.active[key] = t
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.active, key)
		s.mu.Unlock()
	}

	transport, err := s.transports(req.ServiceAddress)
	if err != nil {
		release()
		return uuid.Nil, fmt.Errorf("s.transports: %w", err)
	}

	v := NewVerifier(
		s.logger,
		req,
		transport,
		s.classifier,
		s.pool,
		s.sink,
		WithClock(s.now),
		WithMetrics(s.metrics),
	)

	record, err := s.repo.CreateVerification(ctx, storage.CreateVerificationDto{
		TradeID:          req.TradeID,
		ServiceAddress:   req.ServiceAddress,
		TxHash:           req.TxHash,
		RecipientAddress: req.RecipientAddress,
		Amount:           req.Amount,
		FirstRequestAt:   v.FirstRequest(),
	})
	if err != nil {
		release()
		return uuid.Nil, fmt.Errorf("s.repo.CreateVerification: %w", err)
	}

	s.mu.Lock()
	t.id = record.ID
	t.verifier = v
	s.metrics.SetActiveVerifications(float64(len(s.active)))
	s.mu.Unlock()

	s.logger.WithFields(req.Fields()).WithField("verification_id", record.ID.String()).Info("verification started")

	v.Start(
		func(outcome Outcome) {
			s.onOutcome(key, t, req, outcome, listener)
		},
		func(msg string, err error) {
			s.logger.WithFields(req.Fields()).WithError(err).Error(msg)
		},
	)
	return record.ID, nil
}

// onOutcome runs on the sink.
func (s *Service) onOutcome(key string, t *tracked, req Request, outcome Outcome, listener Listener) {
	ctx := context.Background()
	fields := req.Fields()

	s.metrics.RecordOutcome(req.ServiceAddress, string(outcome.Status), string(outcome.DetailKind()))

	err := s.repo.SetOutcome(ctx, t.id, outcomeDto(outcome))
	if err != nil {
		s.logger.WithFields(fields).Errorf("s.repo.SetOutcome: %v", err)
	}

	if outcome.Status.IsTerminal() {
		err = s.repo.SetTerminated(ctx, t.id)
		if err != nil {
			s.logger.WithFields(fields).Errorf("s.repo.SetTerminated: %v", err)
		}
		s.mu.Lock()
		if s.active[key] == t {
			delete(s.active, key)
		}
		s.metrics.SetActiveVerifications(float64(len(s.active)))
		s.mu.Unlock()
		s.logger.WithFields(fields).Infof("verification finished: %s", outcome)
	}

	if listener != nil {
		listener(req, outcome)
	}
}

// Terminate stops every active verification of the trade and returns how many
// were stopped.
func (s *Service) Terminate(ctx context.Context, tradeID string) (int, error) {
	s.mu.Lock()
	var stopped []*tracked
	for key, t := range s.active {
		if t.tradeID == tradeID && t.verifier != nil {
			stopped = append(stopped, t)
			delete(s.active, key)
		}
	}
	s.metrics.SetActiveVerifications(float64(len(s.active)))
	s.mu.Unlock()

	return len(stopped), s.terminate(ctx, stopped)
}

// TerminateAll is used on shutdown.
func (s *Service) TerminateAll(ctx context.Context) error {
	s.mu.Lock()
	stopped := make([]*tracked, 0, len(s.active))
	for key, t := range s.active {
		if t.verifier != nil {
			stopped = append(stopped, t)
			delete(s.active, key)
		}
	}
	s.metrics.SetActiveVerifications(float64(len(s.active)))
	s.mu.Unlock()

	return s.terminate(ctx, stopped)
}

func (s *Service) terminate(ctx context.Context, stopped []*tracked) error {
	var errs []error
	for _, t := range stopped {
		t.verifier.Terminate()
		err := s.repo.SetTerminated(ctx, t.id)
		if err != nil {
			errs = append(errs, fmt.Errorf("s.repo.SetTerminated(%s): %w", t.id, err))
		}
		s.logger.WithFields(t.verifier.Request().Fields()).Info("verification terminated")
	}
	return errors.Join(errs...)
}

// CloseStale marks records left active by a previous process as terminated:
// their verifiers are gone and the observation window restarts with a new
// request.
func (s *Service) CloseStale(ctx context.Context) (int, error) {
	records, err := storage.AllFromRowsStream(s.repo.GetActive(ctx))
	if err != nil {
		return 0, fmt.Errorf("storage.AllFromRowsStream: %w", err)
	}

	s.mu.Lock()
	running := make(map[uuid.UUID]bool, len(s.active))
	for _, t := range s.active {
		running[t.id] = true
	}
	s.mu.Unlock()

	closed := 0
	for _, r := range records {
		if running[r.ID] {
			continue
		}
		err = s.repo.SetTerminated(ctx, r.ID)
		if err != nil {
			return closed, fmt.Errorf("s.repo.SetTerminated: %w", err)
		}
		s.logger.WithFields(r.Fields()).Warn("closed stale verification")
		closed++
	}
	return closed, nil
}

func (s *Service) GetByTradeID(ctx context.Context, tradeID string) ([]storage.Verification, error) {
	records, err := storage.AllFromRowsStream(s.repo.GetByTradeID(ctx, tradeID))
	if err != nil {
		return nil, fmt.Errorf("storage.AllFromRowsStream: %w", err)
	}
	return records, nil
}

// Result returns the last outcome of an active verification.
func (s *Service) Result(tradeID, serviceAddress string) (*Outcome, bool) {
	s.mu.Lock()
	t, ok := s.active[activeKey(tradeID, serviceAddress)]
	s.mu.Unlock()
	if !ok || t.verifier == nil {
		return nil, false
	}
	return t.verifier.Result(), true
}

func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Service) HandleVerifyTask(ctx context.Context, task *asynq.Task) error {
	var req Request
	err := json.Unmarshal(task.Payload(), &req)
	if err != nil {
		return fmt.Errorf("json.Unmarshal: %v: %w", err, asynq.SkipRetry)
	}

	id, err := s.StartVerification(ctx, req, nil)
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.logger.WithFields(req.Fields()).Info("verification already running, skipping task")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("s.StartVerification: %w", err)
	}

	if w := task.ResultWriter(); w != nil {
		_, err = w.Write([]byte(id.String()))
		if err != nil {
			s.logger.WithFields(req.Fields()).Warnf("failed to write task result: %v", err)
		}
	}
	return nil
}

func outcomeDto(o Outcome) storage.OutcomeDto {
	dto := storage.OutcomeDto{Status: string(o.Status)}
	if o.Detail != nil {
		dto.Detail = conv.Ptr(string(o.Detail.Kind))
		dto.NumConfirmations = o.Detail.NumConfirmations
		dto.ErrorMessage = conv.PtrOrNil(o.Detail.Message)
	}
	return dto
}
