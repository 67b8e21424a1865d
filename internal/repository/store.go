// Package repository persists the loan pool queue, the local contact shadows
// and the contact history ledger in Postgres.
package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"loan-pool-sync/internal/common/errors"
	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/models"

	"github.com/lib/pq"
)

const poolColumns = `id, status, status_name, payload, created_at, updated_at`

// ErrNotFound is returned by lookups for a missing row.
var ErrNotFound = stderrors.New("record not found")

// Store is the Postgres-backed queue and ledger.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "loan-pool-store"}),
	}
}

// Outcome is the result of one successful remote mutation, committed
// atomically with the status advance.
type Outcome struct {
	PoolID          int64
	RemoteContactID string
	Action          models.ContactAction
	ActionData      string
}

// Enqueue stores a raw payload as UNPROCESSED.
func (s *Store) Enqueue(ctx context.Context, payload string) (*models.LoanPool, error) {
	query := `INSERT INTO ghl_loandatapool (status, status_name, payload)
		VALUES ($1, $2, $3)
		RETURNING ` + poolColumns

	row := s.db.QueryRowContext(ctx, query,
		models.PoolStatusUnprocessed, models.PoolStatusUnprocessed.String(), payload)

	pool, err := scanPool(row)
	if err != nil {
		return nil, classify(errors.NewDatabaseWriteFailedError, "enqueue loan pool", err)
	}

	s.logger.Info("Saved raw payload to the pool", map[string]interface{}{
		"poolId": pool.ID,
	})
	return pool, nil
}

// ListByStatus returns every record in status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status models.PoolStatus) ([]models.LoanPool, error) {
	query := `SELECT ` + poolColumns + ` FROM ghl_loandatapool WHERE status = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, classify(errors.NewDatabaseReadFailedError, "list loan pools", err)
	}
	defer rows.Close()

	var pools []models.LoanPool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, classify(errors.NewDatabaseReadFailedError, "scan loan pool", err)
		}
		pools = append(pools, *pool)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(errors.NewDatabaseReadFailedError, "iterate loan pools", err)
	}
	return pools, nil
}

// ListUnprocessed is the batch selection for one processing run.
func (s *Store) ListUnprocessed(ctx context.Context) ([]models.LoanPool, error) {
	return s.ListByStatus(ctx, models.PoolStatusUnprocessed)
}

// GetByID loads a single record.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.LoanPool, error) {
	query := `SELECT ` + poolColumns + ` FROM ghl_loandatapool WHERE id = $1`

	pool, err := scanPool(s.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(errors.NewDatabaseReadFailedError, "get loan pool", err)
	}
	return pool, nil
}

// CountStale counts UNPROCESSED records created at or before cutoff.
func (s *Store) CountStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM ghl_loandatapool WHERE status = $1 AND created_at <= $2`

	var count int
	if err := s.db.QueryRowContext(ctx, query, models.PoolStatusUnprocessed, cutoff).Scan(&count); err != nil {
		return 0, classify(errors.NewDatabaseReadFailedError, "count stale loan pools", err)
	}
	return count, nil
}

// CommitOutcome advances the record to PROCESSED, finds or creates the local
// contact and appends the ledger entry in one transaction. The status update
// only applies to a record that is still UNPROCESSED; otherwise nothing is
// written and a RECORD_NOT_CLAIMABLE error is returned.
func (s *Store) CommitOutcome(ctx context.Context, outcome Outcome) (*models.ContactHistory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(errors.NewDatabaseWriteFailedError, "begin outcome transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE ghl_loandatapool SET status = $1, status_name = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.PoolStatusProcessed, models.PoolStatusProcessed.String(),
		outcome.PoolID, models.PoolStatusUnprocessed)
	if err != nil {
		return nil, classify(errors.NewDatabaseWriteFailedError, "advance loan pool status", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, classify(errors.NewDatabaseWriteFailedError, "advance loan pool status", err)
	}
	if affected == 0 {
		return nil, errors.NewRecordNotClaimableError(outcome.PoolID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ghl_contact (contact_id) VALUES ($1) ON CONFLICT (contact_id) DO NOTHING`,
		outcome.RemoteContactID); err != nil {
		return nil, classify(errors.NewDatabaseWriteFailedError, "insert contact", err)
	}

	var localContactID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM ghl_contact WHERE contact_id = $1`,
		outcome.RemoteContactID).Scan(&localContactID); err != nil {
		return nil, classify(errors.NewDatabaseWriteFailedError, "select contact", err)
	}

	entry := &models.ContactHistory{
		ContactID:  localContactID,
		PoolID:     outcome.PoolID,
		Action:     outcome.Action,
		ActionName: outcome.Action.String(),
		ActionData: outcome.ActionData,
	}
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO ghl_contacthistory (contact_id, pool_id, action, action_name, action_data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		entry.ContactID, entry.PoolID, entry.Action, entry.ActionName, entry.ActionData,
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return nil, classify(errors.NewDatabaseWriteFailedError, "insert contact history", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(errors.NewDatabaseWriteFailedError, "commit outcome transaction", err)
	}

	s.logger.Info("Saved contact outcome", map[string]interface{}{
		"poolId":           outcome.PoolID,
		"contactId":        localContactID,
		"remoteContactId":  outcome.RemoteContactID,
		"contactHistoryId": entry.ID,
		"action":           entry.ActionName,
	})
	return entry, nil
}

// ListHistoryByPool returns the ledger entries written for a record.
func (s *Store) ListHistoryByPool(ctx context.Context, poolID int64) ([]models.ContactHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contact_id, pool_id, action, action_name, action_data, created_at
		FROM ghl_contacthistory WHERE pool_id = $1 ORDER BY id`, poolID)
	if err != nil {
		return nil, classify(errors.NewDatabaseReadFailedError, "list contact history", err)
	}
	defer rows.Close()

	var entries []models.ContactHistory
	for rows.Next() {
		var e models.ContactHistory
		if err := rows.Scan(&e.ID, &e.ContactID, &e.PoolID, &e.Action, &e.ActionName, &e.ActionData, &e.CreatedAt); err != nil {
			return nil, classify(errors.NewDatabaseReadFailedError, "scan contact history", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(errors.NewDatabaseReadFailedError, "iterate contact history", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPool(row scanner) (*models.LoanPool, error) {
	var p models.LoanPool
	if err := row.Scan(&p.ID, &p.Status, &p.StatusName, &p.Payload, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// classify wraps err with the given constructor and tags Postgres error
// details. Connection-class and serialization errors stay retryable; integrity
// violations do not.
func classify(ctor func(string, error) *errors.StandardError, op string, err error) error {
	stdErr := ctor(op, err)

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		stdErr.WithMetadata("pgCode", string(pqErr.Code))
		stdErr.WithMetadata("pgClass", pqErr.Code.Class().Name())
		if pqErr.Code.Class() == "23" {
			stdErr.Retryable = false
		}
	}
	return stdErr
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}
