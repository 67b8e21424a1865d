// cmd/sync-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loan-pool-sync/internal/api"
	awsclient "loan-pool-sync/internal/common/aws"
	"loan-pool-sync/internal/common/camunda"
	"loan-pool-sync/internal/common/config"
	"loan-pool-sync/internal/common/database"
	"loan-pool-sync/internal/common/ghl"
	"loan-pool-sync/internal/common/lock"
	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/common/observability"
	"loan-pool-sync/internal/repository"
	"loan-pool-sync/internal/scheduler"

	pdp "loan-pool-sync/internal/workers/loan-pool/process-data-pools"
	spa "loan-pool-sync/internal/workers/loan-pool/stale-pool-alert"
)

const usage = `Usage: sync-manager [-config path] <command>

Commands:
  serve     run the intake API, the scheduler and the Zeebe workers
  process   reconcile every UNPROCESSED loan pool once (or -pool-id)
  alert     check for stale loan pools once and send the alert
`

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// app holds every initialised dependency.
type app struct {
	cfg     *config.Config
	zapLog  *zap.Logger
	log     logger.Logger
	obs     *observability.Observability
	pg      *database.PostgresClient
	redis   *database.RedisClient
	es      *database.ElasticsearchClient
	store   *repository.Store
	process *pdp.Handler
	alert   *spa.Handler
	ready   map[string]api.Pinger
}

func main() {
	configPath := flag.String("config", "", "path to a config file (default: configs/config.yaml)")
	poolID := flag.Int64("pool-id", 0, "process only this loan pool (process command)")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "serve"
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"command": command,
	})

	a, err := newApp(cfg, zapLog, log)
	if err != nil {
		zapLog.Fatal("initialisation failed", zap.Error(err))
	}
	defer a.close()

	switch command {
	case "serve":
		err = a.serve()
	case "process":
		err = a.runProcess(*poolID)
	case "alert":
		err = a.runAlert()
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("Command failed", map[string]interface{}{"error": err.Error()})
		a.close()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func newApp(cfg *config.Config, zapLog *zap.Logger, log logger.Logger) (*app, error) {
	a := &app{cfg: cfg, zapLog: zapLog, log: log, ready: map[string]api.Pinger{}}
	ctx := context.Background()

	a.obs = observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		TracingEnabled: cfg.Observability.TracingEnabled,
		SampleRatio:    cfg.Observability.SampleRatio,
		Logger:         log,
	})

	// --- Init PostgreSQL with retry ---
	err := retryWithBackoff(func() error {
		var err error
		a.pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return a.pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}
	log.Info("PostgreSQL connected successfully", nil)
	a.ready["postgres"] = a.pg

	if cfg.Database.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, a.pg.DB); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("Schema migrations applied", nil)
	}

	a.store = repository.NewStore(a.pg.DB, log)

	// --- Init Redis with retry ---
	var locker lock.Locker = lock.NoopLocker{}
	if cfg.Database.Redis.Enabled {
		err := retryWithBackoff(func() error {
			var err error
			a.redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return a.redis.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			return nil, err
		}
		log.Info("Redis connected successfully", nil)
		a.ready["redis"] = a.redis
		locker = lock.NewRedisLocker(a.redis.Client, "loan-pool:claim:", config.GetDuration(cfg.Processing.ClaimTTL))
	}

	// --- CRM client ---
	processDeps := pdp.ServiceDependencies{
		Logger:        log,
		Store:         a.store,
		Locker:        locker,
		Observability: a.obs,
		Contacts: ghl.NewClient(ghl.Options{
			BaseURL:  cfg.Integrations.GHL.BaseURL,
			APIToken: cfg.Integrations.GHL.APIToken,
			Timeout:  config.GetDuration(cfg.Integrations.GHL.Timeout),
			Logger:   log,
		}),
	}

	// --- Init Elasticsearch with retry ---
	if cfg.Database.Elasticsearch.Enabled {
		err := retryWithBackoff(func() error {
			var err error
			a.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return a.es.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			return nil, err
		}
		log.Info("Elasticsearch connected successfully", nil)
		a.ready["elasticsearch"] = a.es
		processDeps.Ledger = a.es
	}

	a.process, err = pdp.NewHandler(pdp.HandlerOptions{
		AppConfig:    cfg,
		Logger:       log,
		Dependencies: processDeps,
	})
	if err != nil {
		return nil, err
	}

	// --- Init AWS alert channels ---
	alertDeps := spa.ServiceDependencies{Logger: log, Store: a.store}
	if cfg.Integrations.AWS.SES.Enabled {
		ses, err := awsclient.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		alertDeps.Mailer = ses
	}
	if cfg.Integrations.AWS.SNS.Enabled {
		sns, err := awsclient.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		alertDeps.Publisher = sns
	}

	a.alert, err = spa.NewHandler(spa.HandlerOptions{
		AppConfig:    cfg,
		Logger:       log,
		Dependencies: alertDeps,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *app) runProcess(poolID int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.process.GetConfig().Timeout)
	defer cancel()

	out, err := a.process.Execute(ctx, &pdp.Input{PoolID: poolID})
	if err != nil {
		return err
	}
	return printJSON(out)
}

func (a *app) runAlert() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.alert.GetConfig().Timeout)
	defer cancel()

	out, err := a.alert.Execute(ctx)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func (a *app) serve() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Zeebe workers ---
	var workers []*camunda.CamundaWorker
	var zeebe *camunda.Client
	if a.cfg.Camunda.Enabled {
		err := retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         a.cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
			})
			return err
		}, 10, 2*time.Second, a.log, "Zeebe client initialization")
		if err != nil {
			return err
		}
		a.log.Info("Zeebe client connected successfully", nil)
		a.ready["zeebe"] = pingFunc(zeebe.HealthCheck)

		if a.process.IsEnabled() {
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), camunda.WorkerOptions{
				TaskType:      pdp.TaskType,
				MaxJobsActive: a.process.GetConfig().MaxJobsActive,
				Timeout:       a.process.GetConfig().Timeout,
			}, a.process.Handle, a.log))
		}
		if a.alert.IsEnabled() {
			workers = append(workers, camunda.NewWorker(zeebe.GetClient(), camunda.WorkerOptions{
				TaskType:      spa.TaskType,
				MaxJobsActive: a.alert.GetConfig().MaxJobsActive,
				Timeout:       a.alert.GetConfig().Timeout,
			}, a.alert.Handle, a.log))
		}
	}

	// --- Scheduler ---
	sched := scheduler.New(a.log)
	if a.cfg.Scheduler.Enabled {
		if a.process.IsEnabled() {
			sched.Add(pdp.WorkerName, config.GetDuration(a.cfg.Scheduler.ProcessInterval), func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, a.process.GetConfig().Timeout)
				defer cancel()
				_, err := a.process.Execute(ctx, nil)
				return err
			})
		}
		if a.alert.IsEnabled() {
			sched.Add(spa.WorkerName, config.GetDuration(a.cfg.Scheduler.AlertInterval), func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, a.alert.GetConfig().Timeout)
				defer cancel()
				_, err := a.alert.Execute(ctx)
				return err
			})
		}
		sched.Start(ctx)
	}

	// --- Intake, Health & Metrics Server ---
	router := api.NewRouter(api.Options{
		Store:        a.store,
		Logger:       a.log,
		MaxBodyBytes: a.cfg.Server.MaxBodyBytes,
		Dependencies: a.ready,
	})
	server := api.NewServer(a.cfg.Server.Address(), router,
		config.GetDuration(a.cfg.Server.ReadTimeout), config.GetDuration(a.cfg.Server.WriteTimeout))

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		a.log.Info("Shutdown signal received, stopping...", nil)
	case runErr = <-serverErr:
		a.log.Error("HTTP server failed", map[string]interface{}{"error": runErr.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	stop()
	sched.Wait()

	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			a.log.Error("Error closing Zeebe client", map[string]interface{}{"error": err.Error()})
		}
	}

	a.log.Info("sync-manager stopped gracefully", nil)
	return runErr
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.pg != nil {
		_ = a.pg.Close()
		a.pg = nil
	}
	if a.obs != nil {
		a.obs.Shutdown()
		a.obs = nil
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
