package api

import (
	"time"

	"github.com/vultisig/txproof/proof/pkg/rpc"
)

type APIResponse[T any] struct {
	Data      T             `json:"data,omitempty"`
	Error     ErrorResponse `json:"error"`
	Status    int           `json:"status,omitempty"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version"`
}

type ErrorResponse struct {
	Message          string `json:"message"`
	DetailedResponse string `json:"details,omitempty"`
}

const (
	MsgMissingAuthHeader    = "Missing authorization header"
	MsgUnauthorized         = "Unauthorized"
	MsgInternalError        = "An internal error occurred"
	MsgInvalidRequest       = "Invalid request"
	MsgInvalidAddress       = "Recipient address is not a valid Monero address"
	MsgVerificationNotFound = "No verification found for trade"
	MsgTaskNotFound         = "Task not found"
)

func NewErrorResponse(message string, details ...string) APIResponse[any] {
	resp := APIResponse[any]{
		Error: ErrorResponse{
			Message: message,
		},
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   rpc.Version,
	}
	if len(details) > 0 {
		resp.Error.DetailedResponse = details[0]
	}
	return resp
}

func NewSuccessResponse[T any](code int, data T) APIResponse[T] {
	return APIResponse[T]{
		Status:    code,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   rpc.Version,
	}
}

type EnqueuedTask struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

type TaskState struct {
	TaskID         string `json:"task_id"`
	State          string `json:"state"`
	VerificationID string `json:"verification_id,omitempty"`
}

type Terminated struct {
	TradeID    string `json:"trade_id"`
	Terminated int    `json:"terminated"`
}
