package processdatapools

import (
	"context"
	"fmt"
	"time"

	"loan-pool-sync/internal/common/camunda"
	"loan-pool-sync/internal/common/config"
	"loan-pool-sync/internal/common/errors"
	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/common/metrics"
	"loan-pool-sync/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType   = "loan-pool.process"
	WorkerName = "process-data-pools"
)

type Handler struct {
	config       *Config
	logger       logger.Logger
	service      *Service
	errorHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Logger       logger.Logger
	Dependencies ServiceDependencies
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)

	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", WorkerName, err)
	}

	var loggerInstance logger.Logger
	if opts.Logger != nil {
		loggerInstance = opts.Logger
	} else {
		loggerInstance = logger.NewStructured("info", "json")
	}

	deps := opts.Dependencies
	if deps.Logger == nil {
		deps.Logger = loggerInstance
	}

	return &Handler{
		config:       workerConfig,
		logger:       loggerInstance,
		service:      NewService(deps, workerConfig),
		errorHandler: errors.NewErrorHandler(loggerInstance).WithMaxRetries(workerConfig.MaxRetries),
	}, nil
}

// Handle runs one batch, or a single record when the job carries poolId.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing loan pool job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"worker":             TaskType,
	})

	input, err := h.parseInput(job)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errors.CodeOf(err)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errors.CodeOf(err)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	if err := h.completeJob(ctx, client, job, output); err != nil {
		// records are already committed; a redelivered job finds nothing left to do
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errors.CodeOf(err)).Inc()
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute runs the processor directly, outside of Zeebe.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input != nil && input.PoolID > 0 {
		return h.service.ProcessOne(ctx, input.PoolID)
	}
	return h.service.Run(ctx)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewPayloadInvalidError(fmt.Sprintf("failed to parse job variables: %v", err))
	}
	return parseVariables(variables)
}

func parseVariables(variables map[string]interface{}) (*Input, error) {
	result := validation.ValidateInput(variables, GetInputSchema())
	if !result.Valid {
		return nil, errors.NewPayloadInvalidError(fmt.Sprintf("validation errors: %v", result.GetErrorMessages()))
	}

	input := &Input{}
	if v, ok := variables["poolId"].(float64); ok {
		input.PoolID = int64(v)
	}
	return input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	if err := camunda.CompleteJob(ctx, client, job.GetKey(), output.Variables(), nil); err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
		return err
	}

	h.logger.Info("Completed loan pool job", map[string]interface{}{
		"jobKey":    job.GetKey(),
		"runId":     output.RunID,
		"processed": output.Processed,
		"failed":    output.Failed,
		"worker":    TaskType,
	})
	return nil
}

// Variables is the job result written back to the process instance.
func (o *Output) Variables() map[string]interface{} {
	return map[string]interface{}{
		"loanPoolRunId":     o.RunID,
		"loanPoolProcessed": o.Processed,
		"loanPoolCreated":   o.Created,
		"loanPoolUpdated":   o.Updated,
		"loanPoolSkipped":   o.Skipped,
		"loanPoolFailed":    o.Failed,
	}
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()

	if appConfig != nil {
		workerCfg := config.GetWorkerConfig(appConfig, WorkerName)
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.MaxJobsActive > 0 {
			cfg.MaxJobsActive = workerCfg.MaxJobsActive
		}
		if workerCfg.Timeout > 0 {
			cfg.Timeout = config.GetDuration(workerCfg.Timeout)
		}
		if workerCfg.MaxRetries > 0 {
			cfg.MaxRetries = workerCfg.MaxRetries
		}
		if workerCfg.Concurrency > 0 {
			cfg.Concurrency = workerCfg.Concurrency
		}

		if appConfig.Processing.CallTimeout > 0 {
			cfg.CallTimeout = config.GetDuration(appConfig.Processing.CallTimeout)
		}
		if appConfig.Processing.LookupFailurePolicy != "" {
			cfg.LookupFailurePolicy = appConfig.Processing.LookupFailurePolicy
		}
		if appConfig.Database.Elasticsearch.Index != "" {
			cfg.LedgerIndex = appConfig.Database.Elasticsearch.Index
		}
	}

	return cfg
}
