package stalepoolalert

import (
	"context"
	"fmt"
	"time"

	"loan-pool-sync/internal/common/camunda"
	"loan-pool-sync/internal/common/config"
	"loan-pool-sync/internal/common/errors"
	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType   = "loan-pool.stale-alert"
	WorkerName = "stale-pool-alert"
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

	loggerInstance := opts.Logger
	if loggerInstance == nil {
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

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx)
	if err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errors.CodeOf(err)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	variables := map[string]interface{}{
		"staleLoanPools":     output.StaleCount,
		"staleLoanPoolAlert": output.Alerted,
	}
	if err := camunda.CompleteJob(ctx, client, job.GetKey(), variables, nil); err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, errors.CodeOf(err)).Inc()
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
			"worker": TaskType,
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute runs one stale check directly, outside of Zeebe.
func (h *Handler) Execute(ctx context.Context) (*Output, error) {
	return h.service.Execute(ctx)
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

		if appConfig.Alerting.StaleAfterHours > 0 {
			cfg.StaleAfter = time.Duration(appConfig.Alerting.StaleAfterHours) * time.Hour
		}
		if appConfig.Alerting.Subject != "" {
			cfg.Subject = appConfig.Alerting.Subject
		}
		cfg.Recipients = appConfig.Alerting.Recipients

		if appConfig.Integrations.AWS.SES.Enabled {
			cfg.FromEmail = appConfig.Integrations.AWS.SES.FromEmail
		} else {
			cfg.Recipients = nil
		}
		if appConfig.Integrations.AWS.SNS.Enabled {
			cfg.TopicARN = appConfig.Integrations.AWS.SNS.TopicARN
		}
	}

	return cfg
}
