package processdatapools

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"loan-pool-sync/internal/common/errors"
	"loan-pool-sync/internal/common/ghl"
	"loan-pool-sync/internal/common/lock"
	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/common/metrics"
	"loan-pool-sync/internal/common/observability"
	"loan-pool-sync/internal/models"
	"loan-pool-sync/internal/reconcile"
	"loan-pool-sync/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Service reconciles queued loan records against CRM contacts.
type Service struct {
	config   *Config
	logger   logger.Logger
	store    PoolStore
	contacts ContactClient
	locker   lock.Locker
	ledger   LedgerSink
	obs      *observability.Observability
	emails   *lock.KeyedMutex
	newRunID func() string
}

func NewService(deps ServiceDependencies, config *Config) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NoopLocker{}
	}

	return &Service{
		config:   config,
		logger:   log.WithFields(map[string]interface{}{"component": "pool-processor"}),
		store:    deps.Store,
		contacts: deps.Contacts,
		locker:   locker,
		ledger:   deps.Ledger,
		obs:      deps.Observability,
		emails:   lock.NewKeyedMutex(),
		newRunID: uuid.NewString,
	}
}

// Run processes every UNPROCESSED record once. A failing record never stops
// the batch; only a failure to list the queue is returned as an error.
func (s *Service) Run(ctx context.Context) (*Output, error) {
	start := time.Now()
	out := &Output{RunID: s.newRunID()}
	log := s.logger.WithFields(map[string]interface{}{"runId": out.RunID})

	ctx, span := s.obs.StartSpan(ctx, "loan_pool.batch", attribute.String("runId", out.RunID))
	var runErr error
	defer func() {
		observability.EndSpan(span, runErr)
		status := "ok"
		if runErr != nil {
			status = "error"
		}
		metrics.LoanPoolBatchDuration.Observe(time.Since(start).Seconds())
		s.obs.RecordBatchDuration(ctx, time.Since(start), status)
	}()

	pools, err := s.store.ListUnprocessed(ctx)
	if err != nil {
		runErr = err
		log.Error("Failed to list unprocessed loan pools", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	if len(pools) == 0 {
		log.Info("No unprocessed loan pools", nil)
		return out, nil
	}

	log.Info("Processing loan pools", map[string]interface{}{
		"records":     len(pools),
		"concurrency": s.config.Concurrency,
	})

	results := make([]RecordResult, len(pools))
	if s.config.Concurrency <= 1 {
		for i := range pools {
			results[i] = s.processRecord(ctx, out.RunID, pools[i])
		}
	} else {
		sem := make(chan struct{}, s.config.Concurrency)
		var wg sync.WaitGroup
		for i := range pools {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = s.processRecord(ctx, out.RunID, pools[i])
			}(i)
		}
		wg.Wait()
	}

	for _, r := range results {
		out.add(r)
	}

	log.Info("Loan pool batch finished", map[string]interface{}{
		"processed":  out.Processed,
		"created":    out.Created,
		"updated":    out.Updated,
		"skipped":    out.Skipped,
		"failed":     out.Failed,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return out, nil
}

// ProcessOne reconciles a single record by id.
func (s *Service) ProcessOne(ctx context.Context, poolID int64) (*Output, error) {
	pool, err := s.store.GetByID(ctx, poolID)
	if err != nil {
		return nil, err
	}

	out := &Output{RunID: s.newRunID()}
	out.add(s.processRecord(ctx, out.RunID, *pool))
	return out, nil
}

func (s *Service) processRecord(ctx context.Context, runID string, pool models.LoanPool) (result RecordResult) {
	result = RecordResult{PoolID: pool.ID}
	log := s.logger.WithFields(map[string]interface{}{"runId": runID, "poolId": pool.ID})

	ctx, span := s.obs.StartSpan(ctx, "loan_pool.record", attribute.Int64("poolId", pool.ID))
	defer func() {
		var spanErr error
		if result.Outcome == OutcomeFailed {
			spanErr = stderrors.New(result.Error)
		}
		span.SetAttributes(attribute.String("outcome", result.Outcome))
		observability.EndSpan(span, spanErr)
		metrics.LoanPoolRecords.WithLabelValues(result.Outcome).Inc()
		s.obs.RecordRecordOutcome(ctx, result.Outcome)
	}()

	defer func() {
		if r := recover(); r != nil {
			err := errors.NewReconciliationFailureError(pool.ID, fmt.Errorf("panic: %v", r))
			log.Error("Recovered panic while reconciling loan pool", map[string]interface{}{
				"error":     err.Error(),
				"errorCode": errors.CodeOf(err),
				"stack":     string(debug.Stack()),
			})
			result = RecordResult{PoolID: pool.ID, Outcome: OutcomeFailed, Error: err.Error()}
		}
	}()

	fail := func(msg string, err error) RecordResult {
		log.Error(msg, map[string]interface{}{
			"error":     err.Error(),
			"errorCode": errors.CodeOf(err),
		})
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		return result
	}

	if !pool.IsUnprocessed() {
		log.Info("Pool already processed", map[string]interface{}{"status": pool.Status.String()})
		result.Outcome = OutcomeSkipped
		return result
	}

	release, err := s.locker.Acquire(ctx, strconv.FormatInt(pool.ID, 10))
	if stderrors.Is(err, lock.ErrLocked) {
		log.Info("Loan pool claimed by another runner", nil)
		result.Outcome = OutcomeSkipped
		return result
	}
	if err != nil {
		return fail("Failed to claim loan pool", err)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn("Failed to release loan pool claim", map[string]interface{}{"error": err.Error()})
		}
	}()

	record, err := pool.Record()
	if err != nil {
		return fail("Failed to parse loan pool payload", errors.NewPayloadInvalidError(err.Error()))
	}

	unlock := s.emails.Lock(strings.ToLower(record.Email))
	defer unlock()

	// another runner may have committed this record while we waited
	current, err := s.store.GetByID(ctx, pool.ID)
	if err != nil {
		return fail("Failed to reload loan pool", err)
	}
	if !current.IsUnprocessed() {
		log.Info("Loan pool advanced by another runner", map[string]interface{}{"status": current.Status.String()})
		result.Outcome = OutcomeSkipped
		return result
	}

	contacts, err := s.lookup(ctx, record.Email)
	if err != nil {
		if s.config.LookupFailurePolicy == LookupPolicyDefer {
			return fail("Contact lookup failed, deferring record", err)
		}
		log.Warn("Contact lookup failed, treating as no contacts", map[string]interface{}{
			"email": record.Email,
			"error": err.Error(),
		})
		contacts = nil
	}

	matches := reconcile.MatchingLoanContacts(contacts, record.LoanID)
	if len(matches) > 1 {
		log.Warn("Multiple contacts match loan id, updating the first", map[string]interface{}{
			"loanId":  record.LoanID,
			"matches": len(matches),
		})
	}

	if len(matches) == 0 {
		result, err = s.createContact(ctx, runID, pool, record)
	} else {
		result, err = s.updateContact(ctx, runID, pool, &matches[0], record)
	}
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeRecordNotClaimable) {
			log.Info("Loan pool advanced by another runner", nil)
			result = RecordResult{PoolID: pool.ID, Outcome: OutcomeSkipped}
			return result
		}
		result = RecordResult{PoolID: pool.ID}
		return fail("Failed to reconcile loan pool", err)
	}
	return result
}

func (s *Service) lookup(ctx context.Context, email string) ([]ghl.Contact, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()

	contacts, err := s.contacts.LookupByEmail(callCtx, email)
	if err != nil {
		return nil, remoteError("lookup contact", err)
	}
	return contacts, nil
}

func (s *Service) createContact(ctx context.Context, runID string, pool models.LoanPool, record *models.LoanRecord) (RecordResult, error) {
	fields := reconcile.BuildCreateFields(record)

	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	contact, err := s.contacts.CreateContact(callCtx, fields)
	cancel()
	if err != nil {
		return RecordResult{}, remoteError("create contact", err)
	}

	actionData := string(contact.Raw)
	if actionData == "" {
		data, err := json.Marshal(contact)
		if err != nil {
			return RecordResult{}, errors.NewReconciliationFailureError(pool.ID, err)
		}
		actionData = string(data)
	}

	return s.commit(ctx, runID, repository.Outcome{
		PoolID:          pool.ID,
		RemoteContactID: contact.ID,
		Action:          models.ContactActionCreated,
		ActionData:      actionData,
	}, OutcomeCreated)
}

func (s *Service) updateContact(ctx context.Context, runID string, pool models.LoanPool, contact *ghl.Contact, record *models.LoanRecord) (RecordResult, error) {
	diff := reconcile.BuildUpdateDiff(contact, record)

	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	_, err := s.contacts.UpdateContact(callCtx, contact.ID, diff)
	cancel()
	if err != nil {
		return RecordResult{}, remoteError("update contact", err)
	}

	data, err := json.Marshal(diff)
	if err != nil {
		return RecordResult{}, errors.NewReconciliationFailureError(pool.ID, err)
	}

	return s.commit(ctx, runID, repository.Outcome{
		PoolID:          pool.ID,
		RemoteContactID: contact.ID,
		Action:          models.ContactActionUpdated,
		ActionData:      string(data),
	}, OutcomeUpdated)
}

func (s *Service) commit(ctx context.Context, runID string, outcome repository.Outcome, label string) (RecordResult, error) {
	entry, err := s.store.CommitOutcome(ctx, outcome)
	if err != nil {
		return RecordResult{}, err
	}

	s.indexLedger(ctx, runID, outcome, entry)

	return RecordResult{
		PoolID:          outcome.PoolID,
		Outcome:         label,
		RemoteContactID: outcome.RemoteContactID,
		HistoryID:       entry.ID,
	}, nil
}

// indexLedger mirrors a committed entry into the search index. The database
// row is authoritative, so failures are only logged.
func (s *Service) indexLedger(ctx context.Context, runID string, outcome repository.Outcome, entry *models.ContactHistory) {
	if s.ledger == nil || s.config.LedgerIndex == "" {
		return
	}

	doc := map[string]interface{}{
		"runId":           runID,
		"poolId":          entry.PoolID,
		"contactId":       entry.ContactID,
		"remoteContactId": outcome.RemoteContactID,
		"action":          entry.ActionName,
		"actionData":      json.RawMessage(entry.ActionData),
		"createdAt":       entry.CreatedAt,
	}
	if !json.Valid([]byte(entry.ActionData)) {
		doc["actionData"] = entry.ActionData
	}

	if err := s.ledger.IndexDocument(ctx, s.config.LedgerIndex, strconv.FormatInt(entry.ID, 10), doc); err != nil {
		s.logger.Warn("Failed to index contact history", map[string]interface{}{
			"poolId":           entry.PoolID,
			"contactHistoryId": entry.ID,
			"error":            err.Error(),
		})
	}
}

// remoteError maps a CRM client failure onto the error taxonomy.
func remoteError(op string, err error) error {
	var rejected *ghl.RejectedError
	if stderrors.As(err, &rejected) {
		return errors.NewRemoteRejectedError(op, rejected.StatusCode, err)
	}
	return errors.NewRemoteTransientError(op, err)
}
