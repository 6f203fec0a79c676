package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const QUEUE_NAME = "tx-proof"

const (
	TypeVerifyTxProof = "proof:verify"

	maxRetry = 3
	// completed tasks stay inspectable so callers can read the verification id
	retention = 10 * time.Minute
)

type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

// NewVerifyTask wraps a verification request in an asynq task.
func NewVerifyTask(payload any) (*asynq.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}
	return asynq.NewTask(TypeVerifyTxProof, b), nil
}

func EnqueueVerify(client Enqueuer, payload any) (*asynq.TaskInfo, error) {
	task, err := NewVerifyTask(payload)
	if err != nil {
		return nil, fmt.Errorf("NewVerifyTask: %w", err)
	}
	info, err := client.Enqueue(
		task,
		asynq.Queue(QUEUE_NAME),
		asynq.MaxRetry(maxRetry),
		asynq.Retention(retention),
	)
	if err != nil {
		return nil, fmt.Errorf("client.Enqueue: %w", err)
	}
	return info, nil
}

// GetTask returns the task info; Result holds the verification id once the
// task completed.
func GetTask(inspector Inspector, taskID string) (*asynq.TaskInfo, error) {
	task, err := inspector.GetTaskInfo(QUEUE_NAME, taskID)
	if err != nil {
		return nil, fmt.Errorf("fail to find task, err: %w", err)
	}
	if task == nil {
		return nil, asynq.ErrTaskNotFound
	}
	return task, nil
}
