package processdatapools

import (
	"context"

	"loan-pool-sync/internal/common/ghl"
	"loan-pool-sync/internal/common/lock"
	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/common/observability"
	"loan-pool-sync/internal/models"
	"loan-pool-sync/internal/repository"
)

// Per-record outcomes, also used as metric label values.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

type Input struct {
	// PoolID restricts the run to one record when non-zero.
	PoolID int64 `json:"poolId,omitempty"`
}

type Output struct {
	RunID     string         `json:"runId"`
	Processed int            `json:"processed"`
	Created   int            `json:"created"`
	Updated   int            `json:"updated"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Results   []RecordResult `json:"results,omitempty"`
}

type RecordResult struct {
	PoolID          int64  `json:"poolId"`
	Outcome         string `json:"outcome"`
	RemoteContactID string `json:"remoteContactId,omitempty"`
	HistoryID       int64  `json:"historyId,omitempty"`
	Error           string `json:"error,omitempty"`
}

func (o *Output) add(r RecordResult) {
	o.Results = append(o.Results, r)
	switch r.Outcome {
	case OutcomeCreated:
		o.Created++
		o.Processed++
	case OutcomeUpdated:
		o.Updated++
		o.Processed++
	case OutcomeSkipped:
		o.Skipped++
	case OutcomeFailed:
		o.Failed++
	}
}

// ContactClient is the CRM surface used by the processor.
type ContactClient interface {
	LookupByEmail(ctx context.Context, email string) ([]ghl.Contact, error)
	CreateContact(ctx context.Context, fields ghl.CreateFields) (*ghl.Contact, error)
	UpdateContact(ctx context.Context, contactID string, fields ghl.UpdateFields) (*ghl.Contact, error)
}

// PoolStore is the persistence surface used by the processor.
type PoolStore interface {
	ListUnprocessed(ctx context.Context) ([]models.LoanPool, error)
	GetByID(ctx context.Context, id int64) (*models.LoanPool, error)
	CommitOutcome(ctx context.Context, outcome repository.Outcome) (*models.ContactHistory, error)
}

// LedgerSink receives a copy of every committed ledger entry.
type LedgerSink interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

type ServiceDependencies struct {
	Logger        logger.Logger
	Store         PoolStore
	Contacts      ContactClient
	Locker        lock.Locker
	Ledger        LedgerSink
	Observability *observability.Observability
}
