package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loan-pool-sync/internal/common/logger"
	"loan-pool-sync/internal/models"
	"loan-pool-sync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Enqueue(ctx context.Context, payload string) (*models.LoanPool, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LoanPool), args.Error(1)
}

func (m *MockStore) GetByID(ctx context.Context, id int64) (*models.LoanPool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LoanPool), args.Error(1)
}

func (m *MockStore) ListHistoryByPool(ctx context.Context, poolID int64) ([]models.ContactHistory, error) {
	args := m.Called(ctx, poolID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ContactHistory), args.Error(1)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T, store PoolStore, deps map[string]Pinger) http.Handler {
	t.Helper()
	return NewRouter(Options{
		Store:        store,
		Logger:       logger.NewTestLogger(t),
		MaxBodyBytes: 256,
		Dependencies: deps,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleCreate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		storeErr   error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "invalid json",
			body:       `{"Email": "a@example.com"`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":{"title":"Payload is not valid json."}}`,
		},
		{
			name:       "trailing data",
			body:       `{"Email":"a@example.com"} {}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":{"title":"Payload is not valid json."}}`,
		},
		{
			name:       "missing email",
			body:       `{"FirstName":"Ann"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "not an object",
			body:       `["a@example.com"]`,
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "storage failure",
			body:       `{"Email":"a@example.com"}`,
			storeErr:   stderrors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":{"title":"Internal server error"}}`,
		},
		{
			name:       "created",
			body:       `{"Email":"a@example.com","LoanId":1234567890123,"Extra":{"x":1}}`,
			wantStatus: http.StatusCreated,
			wantBody:   `{"data":{"attributes":{"Email":"a@example.com","Extra":{"x":1},"LoanId":1234567890123}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			if tt.wantStatus == http.StatusCreated || tt.storeErr != nil {
				var pool *models.LoanPool
				if tt.storeErr == nil {
					pool = &models.LoanPool{ID: 1, Status: models.PoolStatusUnprocessed, Payload: tt.body}
				}
				store.On("Enqueue", mock.Anything, tt.body).Return(pool, tt.storeErr).Once()
			}

			rec := do(t, newTestRouter(t, store, nil), http.MethodPost, "/loan-data-pool", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
			store.AssertExpectations(t)
		})
	}
}

func TestHandleCreate_UnprocessableDetail(t *testing.T) {
	rec := do(t, newTestRouter(t, new(MockStore), nil), http.MethodPost, "/loan-data-pool", `{"Email":""}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Error errorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, titleInvalidPayload, body.Error.Title)
	require.NotEmpty(t, body.Error.Detail)
	assert.True(t, strings.HasPrefix(body.Error.Detail[0], "Email:"))
}

func TestHandleCreate_TooLarge(t *testing.T) {
	body := `{"Email":"a@example.com","Notes":"` + strings.Repeat("x", 512) + `"}`
	rec := do(t, newTestRouter(t, new(MockStore), nil), http.MethodPost, "/loan-data-pool", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleGet(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := new(MockStore)
	store.On("GetByID", mock.Anything, int64(7)).Return(&models.LoanPool{
		ID:         7,
		Status:     models.PoolStatusProcessed,
		StatusName: "PROCESSED",
		Payload:    `{"Email":"a@example.com"}`,
		CreatedAt:  created,
		UpdatedAt:  created,
	}, nil)
	store.On("ListHistoryByPool", mock.Anything, int64(7)).Return([]models.ContactHistory{{
		ID: 1, ContactID: 3, PoolID: 7,
		Action: models.ContactActionCreated, ActionName: "CREATED",
		ActionData: `{"id":"remote-1"}`, CreatedAt: created,
	}}, nil)
	store.On("GetByID", mock.Anything, int64(8)).Return(nil, repository.ErrNotFound)

	router := newTestRouter(t, store, nil)

	rec := do(t, router, http.MethodGet, "/loan-data-pool/7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			ID         int64                  `json:"id"`
			Attributes map[string]interface{} `json:"attributes"`
			History    []models.ContactHistory `json:"history"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.Data.ID)
	assert.Equal(t, "PROCESSED", body.Data.Attributes["status"])
	assert.Equal(t, map[string]interface{}{"Email": "a@example.com"}, body.Data.Attributes["payload"])
	require.Len(t, body.Data.History, 1)
	assert.Equal(t, models.ContactActionCreated, body.Data.History[0].Action)

	rec = do(t, router, http.MethodGet, "/loan-data-pool/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/loan-data-pool/abc", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	healthy := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return stderrors.New("dial tcp: refused") })

	router := newTestRouter(t, new(MockStore), map[string]Pinger{"postgres": healthy})
	rec := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(t, router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":"ok"`)

	router = newTestRouter(t, new(MockStore), map[string]Pinger{"postgres": healthy, "redis": down})
	rec = do(t, router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_ready")
}

func TestRequestIDIsPropagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	newTestRouter(t, new(MockStore), nil).ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestRouter(t, new(MockStore), nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
