// internal/api/router.go
package api

import (
	"context"
	"net/http"
	"time"

	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PoolStore is the persistence used by the inbound API.
type PoolStore interface {
	Enqueue(ctx context.Context, payload string) (*models.LoanPool, error)
	GetByID(ctx context.Context, id int64) (*models.LoanPool, error)
	ListHistoryByPool(ctx context.Context, poolID int64) ([]models.ContactHistory, error)
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Store        PoolStore
	Logger       logger.Logger
	MaxBodyBytes int64
	// Dependencies are checked by /ready, keyed by name.
	Dependencies map[string]Pinger
}

// NewRouter mounts the loan intake, health and metrics routes.
func NewRouter(opts Options) *mux.Router {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"component": "api"})

	pools := NewLoanPoolHandler(opts.Store, log, opts.MaxBodyBytes)
	health := &HealthHandler{dependencies: opts.Dependencies, logger: log}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)

	router.HandleFunc("/loan-data-pool", pools.HandleCreate).Methods(http.MethodPost)
	router.HandleFunc("/loan-data-pool/{id:[0-9]+}", pools.HandleGet).Methods(http.MethodGet)
	router.HandleFunc("/health", health.HandleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", health.HandleReady).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

// NewServer wraps router with the configured timeouts.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

const requestIDHeader = "X-Request-ID"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
