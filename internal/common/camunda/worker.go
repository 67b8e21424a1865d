// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"fmt"
	"time"

	"loan-pool-sync/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

type WorkerOptions struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

// CamundaWorker owns one open job worker subscription.
type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

// NewWorker opens a job worker for opts.TaskType.
func NewWorker(client zbc.Client, opts WorkerOptions, handler worker.JobHandler, log logger.Logger) *CamundaWorker {
	if opts.MaxJobsActive <= 0 {
		opts.MaxJobsActive = 1
	}

	cmd := client.NewJobWorker().
		JobType(opts.TaskType).
		Handler(handler).
		MaxJobsActive(opts.MaxJobsActive).
		Name(opts.TaskType + "-worker")
	if opts.Timeout > 0 {
		cmd = cmd.Timeout(opts.Timeout)
	}

	w := &CamundaWorker{
		worker:   cmd.Open(),
		logger:   log,
		taskType: opts.TaskType,
	}

	log.Info("worker started", map[string]interface{}{
		"taskType":      opts.TaskType,
		"maxJobsActive": opts.MaxJobsActive,
		"timeout":       opts.Timeout.String(),
	})
	return w
}

func (w *CamundaWorker) TaskType() string {
	return w.taskType
}

// Stop closes the subscription and waits for in-flight jobs.
func (w *CamundaWorker) Stop(ctx context.Context) {
	w.logger.Info("stopping worker", map[string]interface{}{"taskType": w.taskType})

	done := make(chan struct{})
	go func() {
		w.worker.Close()
		w.worker.AwaitClose()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("worker stop timed out", map[string]interface{}{"taskType": w.taskType})
	}
}

// CompleteJob completes jobKey with variables. Transient gateway failures are
// retried per rc; a nil rc uses DefaultRetryConfig.
func CompleteJob(ctx context.Context, client worker.JobClient, jobKey int64, variables map[string]interface{}, rc *RetryConfig) error {
	request, err := client.NewCompleteJobCommand().JobKey(jobKey).VariablesFromMap(variables)
	if err != nil {
		return fmt.Errorf("encode job variables: %w", err)
	}

	_, err = Retry(ctx, rc, "complete job", func(ctx context.Context) (*pb.CompleteJobResponse, error) {
		return request.Send(ctx)
	})
	return err
}
