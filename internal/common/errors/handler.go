// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler reports failed loan pool jobs back to Zeebe.
type ErrorHandler struct {
	logger     Logger
	backoff    time.Duration
	maxRetries int
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// DefaultRetryBackoff delays redelivery of a failed job so a transient CRM or
// database outage has time to clear.
const DefaultRetryBackoff = 30 * time.Second

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger, backoff: DefaultRetryBackoff}
}

// WithRetryBackoff returns a copy of h using d between job retries.
func (h *ErrorHandler) WithRetryBackoff(d time.Duration) *ErrorHandler {
	clone := *h
	clone.backoff = d
	return &clone
}

// WithMaxRetries returns a copy of h that never grants a job more than n
// retries. Zero leaves the per-code budget alone.
func (h *ErrorHandler) WithMaxRetries(n int) *ErrorHandler {
	clone := *h
	clone.maxRetries = n
	return &clone
}

type jobAction int

const (
	actionFail jobAction = iota
	actionThrow
)

// jobDecision is what HandleJobError sends to the broker for one failure.
type jobDecision struct {
	action  jobAction
	retries int32
	bpmn    *BPMNError
	cause   *StandardError
}

// decide picks between failing with retries and throwing a BPMN error. The
// broker's remaining budget on the job and maxRetries (when positive) cap the
// retry count.
func decide(job entities.Job, err error, maxRetries int) jobDecision {
	stdErr := Normalize(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	if maxRetries > 0 && bpmnErr.Retries > maxRetries {
		bpmnErr.Retries = maxRetries
	}

	d := jobDecision{action: actionThrow, bpmn: bpmnErr, cause: stdErr}
	if bpmnErr.Retries > 0 && job.Retries > 0 {
		d.action = actionFail
		d.retries = int32(bpmnErr.Retries)
		if job.Retries < d.retries {
			d.retries = job.Retries
		}
		// this attempt consumed one
		d.retries--
	}
	return d
}

// HandleJobError fails the job with retries for retryable codes and throws a
// BPMN error otherwise.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	d := decide(job, err, h.maxRetries)
	h.logError(job, d)

	variables := ""
	if varsJSON, mErr := json.Marshal(d.bpmn.ToErrorVariables()); mErr == nil {
		variables = string(varsJSON)
	}

	var sendErr error
	switch d.action {
	case actionFail:
		sendErr = h.failJob(ctx, client, job, d, variables)
	default:
		sendErr = h.throwBPMNError(ctx, client, job, d, variables)
	}
	if sendErr != nil {
		h.logger.Error("Failed to report job failure", map[string]interface{}{
			"jobKey": job.Key,
			"error":  sendErr.Error(),
		})
	}
}

func (h *ErrorHandler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, d jobDecision, variables string) error {
	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(d.retries).
		ErrorMessage(d.bpmn.Message).
		RetryBackoff(h.backoff)

	if variables != "" {
		if withVars, err := cmd.VariablesFromString(variables); err == nil {
			_, err = withVars.Send(ctx)
			return err
		}
	}
	_, err := cmd.Send(ctx)
	return err
}

func (h *ErrorHandler) throwBPMNError(ctx context.Context, client worker.JobClient, job entities.Job, d jobDecision, variables string) error {
	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(d.bpmn.Code).
		ErrorMessage(d.bpmn.Message)

	if variables != "" {
		if withVars, err := cmd.VariablesFromString(variables); err == nil {
			_, err = withVars.Send(ctx)
			return err
		}
	}
	_, err := cmd.Send(ctx)
	return err
}

func (h *ErrorHandler) logError(job entities.Job, d jobDecision) {
	action := "throw"
	if d.action == actionFail {
		action = "fail"
	}
	h.logger.Error("Loan pool job failed", map[string]interface{}{
		"jobKey":             job.Key,
		"jobType":            job.Type,
		"processInstanceKey": job.ProcessInstanceKey,
		"errorCode":          string(d.cause.Code),
		"errorCategory":      GetErrorCategory(d.cause.Code),
		"details":            d.cause.Details,
		"retryable":          d.cause.Retryable,
		"action":             action,
		"retriesLeft":        d.retries,
	})
}

// Normalize wraps any error into a StandardError. Unknown errors become a
// non-retryable INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}
