package processdatapools

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"loan-pool-sync/internal/common/errors"
	"loan-pool-sync/internal/common/ghl"
	"loan-pool-sync/internal/common/lock"
	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/models"
	"loan-pool-sync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// In-memory store
// ==========================

type fakeStore struct {
	mu        sync.Mutex
	pools     map[int64]*models.LoanPool
	contacts  map[string]int64
	history   []models.ContactHistory
	listErr   error
	commitErr error
}

func newFakeStore(payloads ...string) *fakeStore {
	s := &fakeStore{pools: map[int64]*models.LoanPool{}, contacts: map[string]int64{}}
	for i, p := range payloads {
		id := int64(i + 1)
		s.pools[id] = &models.LoanPool{
			ID:         id,
			Status:     models.PoolStatusUnprocessed,
			StatusName: models.PoolStatusUnprocessed.String(),
			Payload:    p,
			CreatedAt:  time.Now(),
		}
	}
	return s
}

func (s *fakeStore) ListUnprocessed(ctx context.Context) ([]models.LoanPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.LoanPool
	for _, p := range s.pools {
		if p.Status == models.PoolStatusUnprocessed {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*models.LoanPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) CommitOutcome(ctx context.Context, outcome repository.Outcome) (*models.ContactHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	p := s.pools[outcome.PoolID]
	if p == nil || p.Status != models.PoolStatusUnprocessed {
		return nil, errors.NewRecordNotClaimableError(outcome.PoolID)
	}
	p.Status = models.PoolStatusProcessed
	p.StatusName = p.Status.String()

	localID, ok := s.contacts[outcome.RemoteContactID]
	if !ok {
		localID = int64(len(s.contacts) + 1)
		s.contacts[outcome.RemoteContactID] = localID
	}

	entry := models.ContactHistory{
		ID:         int64(len(s.history) + 1),
		ContactID:  localID,
		PoolID:     outcome.PoolID,
		Action:     outcome.Action,
		ActionName: outcome.Action.String(),
		ActionData: outcome.ActionData,
		CreatedAt:  time.Now(),
	}
	s.history = append(s.history, entry)
	return &entry, nil
}

func (s *fakeStore) status(id int64) models.PoolStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pools[id].Status
}

func (s *fakeStore) historyFor(id int64) []models.ContactHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ContactHistory
	for _, h := range s.history {
		if h.PoolID == id {
			out = append(out, h)
		}
	}
	return out
}

// ==========================
// In-memory CRM
// ==========================

type contactUpdate struct {
	ID     string
	Fields ghl.UpdateFields
}

type fakeCRM struct {
	mu        sync.Mutex
	contacts  []ghl.Contact
	lookupErr error
	createErr map[string]error
	lookups   int
	creates   []ghl.CreateFields
	updates   []contactUpdate
}

func newFakeCRM(contacts ...ghl.Contact) *fakeCRM {
	return &fakeCRM{contacts: contacts, createErr: map[string]error{}}
}

func (c *fakeCRM) LookupByEmail(ctx context.Context, email string) ([]ghl.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	if c.lookupErr != nil {
		return nil, c.lookupErr
	}
	out := []ghl.Contact{}
	for _, contact := range c.contacts {
		if strings.EqualFold(contact.Email, email) {
			out = append(out, contact)
		}
	}
	return out, nil
}

func (c *fakeCRM) CreateContact(ctx context.Context, fields ghl.CreateFields) (*ghl.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.createErr[fields.Email]; err != nil {
		return nil, err
	}
	c.creates = append(c.creates, fields)

	contact := ghl.Contact{
		ID:        fmt.Sprintf("remote-%d", len(c.contacts)+1),
		Email:     fields.Email,
		FirstName: fields.FirstName,
		LastName:  fields.LastName,
	}
	for id, v := range fields.CustomField {
		contact.CustomField = append(contact.CustomField, ghl.CustomFieldValue{ID: id, Value: v})
	}
	contact.Raw, _ = json.Marshal(contact)
	c.contacts = append(c.contacts, contact)
	return &contact, nil
}

func (c *fakeCRM) UpdateContact(ctx context.Context, contactID string, fields ghl.UpdateFields) (*ghl.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, contactUpdate{ID: contactID, Fields: fields})
	for i := range c.contacts {
		if c.contacts[i].ID == contactID {
			cp := c.contacts[i]
			return &cp, nil
		}
	}
	return &ghl.Contact{ID: contactID}, nil
}

// ==========================
// Mocks
// ==========================

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) IndexDocument(ctx context.Context, index, id string, doc interface{}) error {
	args := m.Called(ctx, index, id, doc)
	return args.Error(0)
}

type lockerFunc func(ctx context.Context, key string) (lock.ReleaseFunc, error)

func (f lockerFunc) Acquire(ctx context.Context, key string) (lock.ReleaseFunc, error) {
	return f(ctx, key)
}

// ==========================
// Helpers
// ==========================

func payload(t *testing.T, fields map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(data)
}

func newTestService(t *testing.T, store PoolStore, crm ContactClient, mutate ...func(*Config, *ServiceDependencies)) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CallTimeout = time.Second
	deps := ServiceDependencies{
		Logger:   logger.NewTestLogger(t),
		Store:    store,
		Contacts: crm,
	}
	for _, m := range mutate {
		m(cfg, &deps)
	}
	require.NoError(t, cfg.Validate())
	return NewService(deps, cfg)
}

func loanContact(id, email, loanID string, extra ...ghl.CustomFieldValue) ghl.Contact {
	c := ghl.Contact{ID: id, Email: email, FirstName: "Ann", LastName: "Old"}
	if loanID != "" {
		c.CustomField = append(c.CustomField, ghl.CustomFieldValue{ID: models.FieldLoanID, Value: loanID})
	}
	c.CustomField = append(c.CustomField, extra...)
	return c
}

// ==========================
// Batch behaviour
// ==========================

func TestService_Run_NoMatchCreates(t *testing.T) {
	store := newFakeStore(payload(t, map[string]interface{}{
		"Email":     "ann@example.com",
		"FirstName": "Ann",
		"LoanId":    77,
		"LeadStage": "Application",
	}))
	crm := newFakeCRM()
	svc := newTestService(t, store, crm)

	out, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 1, out.Processed)
	assert.NotEmpty(t, out.RunID)
	require.Len(t, crm.creates, 1)
	assert.Empty(t, crm.updates)
	assert.Equal(t, "ann@example.com", crm.creates[0].Email)
	assert.Equal(t, "77", crm.creates[0].CustomField[models.FieldLoanID])
	assert.Equal(t, "Application", crm.creates[0].CustomField[models.FieldLeadStage])

	assert.Equal(t, models.PoolStatusProcessed, store.status(1))
	history := store.historyFor(1)
	require.Len(t, history, 1)
	assert.Equal(t, models.ContactActionCreated, history[0].Action)
	assert.Contains(t, history[0].ActionData, `"id":"remote-1"`)
}

func TestService_Run_Idempotent(t *testing.T) {
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com", "LoanId": "L1"}))
	crm := newFakeCRM()
	svc := newTestService(t, store, crm)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	lookups := crm.lookups

	out, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, out.Processed)
	assert.Equal(t, lookups, crm.lookups, "second run must not call the CRM")
	assert.Len(t, crm.creates, 1)
	assert.Len(t, store.historyFor(1), 1)
}

func TestService_Run_LoanIDMatchUpdatesWithDiff(t *testing.T) {
	remoteOnly := ghl.CustomFieldValue{ID: models.FieldLoanOfficerName, Value: "Remote Officer"}
	crm := newFakeCRM(loanContact("remote-9", "ann@example.com", "L1", remoteOnly))
	store := newFakeStore(payload(t, map[string]interface{}{
		"Email":      "ann@example.com",
		"FirstName":  "Ann",
		"LastName":   "New",
		"LoanId":     "L1",
		"LoanStatus": "Closed",
	}))
	svc := newTestService(t, store, crm)

	out, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, out.Updated)
	assert.Empty(t, crm.creates)
	require.Len(t, crm.updates, 1)

	update := crm.updates[0]
	assert.Equal(t, "remote-9", update.ID)
	assert.Empty(t, update.Fields.Email)
	assert.Empty(t, update.Fields.FirstName)
	assert.Equal(t, "New", update.Fields.LastName)
	assert.Equal(t, "Closed", update.Fields.CustomField[models.FieldLoanStatus])
	assert.Equal(t, "Remote Officer", update.Fields.CustomField[models.FieldLoanOfficerName])
	assert.Equal(t, "L1", update.Fields.CustomField[models.FieldLoanID])

	history := store.historyFor(1)
	require.Len(t, history, 1)
	assert.Equal(t, models.ContactActionUpdated, history[0].Action)
	assert.Contains(t, history[0].ActionData, `"lastName":"New"`)
	assert.NotContains(t, history[0].ActionData, `"email"`)
}

func TestService_Run_EmailMatchOtherLoanCreates(t *testing.T) {
	crm := newFakeCRM(loanContact("remote-1", "ann@example.com", "OTHER"))
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com", "LoanId": "L1"}))
	svc := newTestService(t, store, crm)

	out, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, out.Created)
	assert.Len(t, crm.creates, 1)
	assert.Empty(t, crm.updates)
}

func TestService_Run_TwoMatchesUpdatesFirstOnly(t *testing.T) {
	crm := newFakeCRM(
		loanContact("first", "ann@example.com", "L1"),
		loanContact("second", "ann@example.com", "L1"),
	)
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com", "LoanId": "L1", "LastName": "New"}))
	svc := newTestService(t, store, crm)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, crm.updates, 1)
	assert.Equal(t, "first", crm.updates[0].ID)
}

func TestService_Run_RejectedCreateLeavesRecordAndContinues(t *testing.T) {
	store := newFakeStore(
		payload(t, map[string]interface{}{"Email": "bad@example.com"}),
		payload(t, map[string]interface{}{"Email": "good@example.com"}),
	)
	crm := newFakeCRM()
	crm.createErr["bad@example.com"] = &ghl.RejectedError{Op: "create contact", StatusCode: 422, Body: `{"msg":"invalid"}`}
	svc := newTestService(t, store, crm)

	out, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, models.PoolStatusUnprocessed, store.status(1))
	assert.Empty(t, store.historyFor(1))
	assert.Equal(t, models.PoolStatusProcessed, store.status(2))

	require.Len(t, out.Results, 2)
	assert.Equal(t, OutcomeFailed, out.Results[0].Outcome)
	assert.Contains(t, out.Results[0].Error, "REMOTE_REJECTED")
}

func TestService_Run_LookupFailurePolicy(t *testing.T) {
	lookupErr := &ghl.TransientError{Op: "lookup contact", Err: context.DeadlineExceeded}

	t.Run("create", func(t *testing.T) {
		store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com"}))
		crm := newFakeCRM()
		crm.lookupErr = lookupErr
		svc := newTestService(t, store, crm)

		out, err := svc.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, out.Created)
		assert.Equal(t, models.PoolStatusProcessed, store.status(1))
	})

	t.Run("defer", func(t *testing.T) {
		store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com"}))
		crm := newFakeCRM()
		crm.lookupErr = lookupErr
		svc := newTestService(t, store, crm, func(c *Config, _ *ServiceDependencies) {
			c.LookupFailurePolicy = LookupPolicyDefer
		})

		out, err := svc.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, out.Failed)
		assert.Contains(t, out.Results[0].Error, "REMOTE_TRANSIENT")
		assert.Empty(t, crm.creates)
		assert.Equal(t, models.PoolStatusUnprocessed, store.status(1))
	})
}

func TestService_Run_InvalidPayloadStaysUnprocessed(t *testing.T) {
	store := newFakeStore(`{"FirstName":"NoEmail"}`, `not json`)
	crm := newFakeCRM()
	svc := newTestService(t, store, crm)

	out, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, out.Failed)
	assert.Equal(t, 0, crm.lookups)
	assert.Equal(t, models.PoolStatusUnprocessed, store.status(1))
	assert.Equal(t, models.PoolStatusUnprocessed, store.status(2))
	assert.Contains(t, out.Results[0].Error, "PAYLOAD_INVALID")
}

func TestService_Run_ClaimedRecordIsSkipped(t *testing.T) {
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com"}))
	crm := newFakeCRM()
	var keys []string
	svc := newTestService(t, store, crm, func(_ *Config, d *ServiceDependencies) {
		d.Locker = lockerFunc(func(ctx context.Context, key string) (lock.ReleaseFunc, error) {
			keys = append(keys, key)
			return nil, lock.ErrLocked
		})
	})

	out, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, keys)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 0, crm.lookups)
}

func TestService_Run_ClaimReleasedAfterRecord(t *testing.T) {
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com"}))
	released := 0
	svc := newTestService(t, store, newFakeCRM(), func(_ *Config, d *ServiceDependencies) {
		d.Locker = lockerFunc(func(ctx context.Context, key string) (lock.ReleaseFunc, error) {
			return func(context.Context) error {
				released++
				return nil
			}, nil
		})
	})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
}

func TestService_Run_NotClaimableCommitIsSkipped(t *testing.T) {
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com"}))
	store.commitErr = errors.NewRecordNotClaimableError(1)
	svc := newTestService(t, store, newFakeCRM())

	out, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Skipped)
	assert.Equal(t, 0, out.Failed)
}

func TestService_Run_CommitFailureIsReported(t *testing.T) {
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com"}))
	store.commitErr = errors.NewDatabaseWriteFailedError("commit outcome transaction", stderrors.New("conn closed"))
	svc := newTestService(t, store, newFakeCRM())

	out, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, models.PoolStatusUnprocessed, store.status(1))
}

func TestService_Run_ListFailure(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.NewDatabaseReadFailedError("list loan pools", stderrors.New("timeout"))
	svc := newTestService(t, store, newFakeCRM())

	out, err := svc.Run(context.Background())
	assert.Nil(t, out)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabaseReadFailed))
}

func TestService_Run_EmptyQueue(t *testing.T) {
	svc := newTestService(t, newFakeStore(), newFakeCRM())
	svc.newRunID = func() string { return "run-1" }

	out, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Output{RunID: "run-1"}, out)
}

func TestService_Run_Concurrent(t *testing.T) {
	var payloads []string
	for i := 0; i < 12; i++ {
		payloads = append(payloads, payload(t, map[string]interface{}{
			"Email":  fmt.Sprintf("user%d@example.com", i%3),
			"LoanId": fmt.Sprintf("L%d", i),
		}))
	}
	store := newFakeStore(payloads...)
	crm := newFakeCRM()
	svc := newTestService(t, store, crm, func(c *Config, _ *ServiceDependencies) {
		c.Concurrency = 4
	})

	out, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, out.Created)
	require.Len(t, out.Results, 12)
	for i, r := range out.Results {
		assert.Equal(t, int64(i+1), r.PoolID, "results keep queue order")
	}
	for id := int64(1); id <= 12; id++ {
		assert.Equal(t, models.PoolStatusProcessed, store.status(id))
	}
}

func TestService_Run_IndexesLedger(t *testing.T) {
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com"}))
	ledger := new(MockLedger)
	ledger.On("IndexDocument", mock.Anything, "ghl-contact-history", "1", mock.MatchedBy(func(doc interface{}) bool {
		m, ok := doc.(map[string]interface{})
		return ok && m["action"] == "CREATED" && m["poolId"] == int64(1)
	})).Return(nil).Once()

	svc := newTestService(t, store, newFakeCRM(), func(_ *Config, d *ServiceDependencies) {
		d.Ledger = ledger
	})

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestService_Run_LedgerFailureDoesNotFailRecord(t *testing.T) {
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com"}))
	ledger := new(MockLedger)
	ledger.On("IndexDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(stderrors.New("cluster red"))

	svc := newTestService(t, store, newFakeCRM(), func(_ *Config, d *ServiceDependencies) {
		d.Ledger = ledger
	})

	out, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, models.PoolStatusProcessed, store.status(1))
}

func TestService_ProcessOne(t *testing.T) {
	store := newFakeStore(
		payload(t, map[string]interface{}{"Email": "a@example.com"}),
		payload(t, map[string]interface{}{"Email": "b@example.com"}),
	)
	crm := newFakeCRM()
	svc := newTestService(t, store, crm)

	out, err := svc.ProcessOne(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, models.PoolStatusUnprocessed, store.status(1))
	assert.Equal(t, models.PoolStatusProcessed, store.status(2))

	again, err := svc.ProcessOne(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Skipped)
	assert.Len(t, crm.creates, 1)

	_, err = svc.ProcessOne(context.Background(), 99)
	assert.True(t, repository.IsNotFound(err))
}

// listBarrierStore holds every ListUnprocessed caller until n callers have
// listed, so concurrent runs see the same queue snapshot.
type listBarrierStore struct {
	*fakeStore
	listed sync.WaitGroup
}

func newListBarrierStore(n int, payloads ...string) *listBarrierStore {
	s := &listBarrierStore{fakeStore: newFakeStore(payloads...)}
	s.listed.Add(n)
	return s
}

func (s *listBarrierStore) ListUnprocessed(ctx context.Context) ([]models.LoanPool, error) {
	out, err := s.fakeStore.ListUnprocessed(ctx)
	s.listed.Done()
	s.listed.Wait()
	return out, err
}

func TestService_Run_ConcurrentRunsMutateOnce(t *testing.T) {
	store := newListBarrierStore(2, payload(t, map[string]interface{}{"Email": "ann@example.com", "LoanId": "L-1"}))
	crm := newFakeCRM()
	svc := newTestService(t, store, crm)

	outs := make([]*Output, 2)
	var wg sync.WaitGroup
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.Run(context.Background())
			assert.NoError(t, err)
			outs[i] = out
		}(i)
	}
	wg.Wait()

	require.NotNil(t, outs[0])
	require.NotNil(t, outs[1])
	assert.Equal(t, 1, outs[0].Created+outs[1].Created)
	assert.Equal(t, 1, outs[0].Skipped+outs[1].Skipped)

	mutations := len(crm.creates) + len(crm.updates)
	assert.Equal(t, 1, mutations)
	assert.Len(t, store.historyFor(1), mutations, "one ledger entry per remote mutation")
	assert.Equal(t, models.PoolStatusProcessed, store.status(1))
}

func TestService_ProcessOne_SkipsRecordAdvancedAfterLoad(t *testing.T) {
	store := newFakeStore(payload(t, map[string]interface{}{"Email": "ann@example.com"}))
	crm := newFakeCRM()
	svc := newTestService(t, store, crm)

	stale := *store.pools[1]
	store.pools[1].Status = models.PoolStatusProcessed

	result := svc.processRecord(context.Background(), "run-1", stale)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Zero(t, crm.lookups)
	assert.Empty(t, crm.creates)
}

// nilCreateCRM returns no contact and no error for one email.
type nilCreateCRM struct {
	*fakeCRM
	email string
}

func (c *nilCreateCRM) CreateContact(ctx context.Context, fields ghl.CreateFields) (*ghl.Contact, error) {
	if fields.Email == c.email {
		return nil, nil
	}
	return c.fakeCRM.CreateContact(ctx, fields)
}

func TestService_Run_PanicInRecordDoesNotStopBatch(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			store := newFakeStore(
				payload(t, map[string]interface{}{"Email": "broken@example.com"}),
				payload(t, map[string]interface{}{"Email": "ok@example.com"}),
			)
			crm := &nilCreateCRM{fakeCRM: newFakeCRM(), email: "broken@example.com"}
			svc := newTestService(t, store, crm, func(c *Config, _ *ServiceDependencies) {
				c.Concurrency = concurrency
			})

			out, err := svc.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, out.Failed)
			assert.Equal(t, 1, out.Created)

			require.Len(t, out.Results, 2)
			assert.Equal(t, OutcomeFailed, out.Results[0].Outcome)
			assert.Contains(t, out.Results[0].Error, "RECONCILIATION_FAILURE")

			assert.Equal(t, models.PoolStatusUnprocessed, store.status(1))
			assert.Equal(t, models.PoolStatusProcessed, store.status(2))
			assert.Empty(t, store.historyFor(1))
		})
	}
}
