package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"loan-pool-sync/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var fastRetry = &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"grpc unavailable", status.Error(codes.Unavailable, "gateway down"), true},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "backpressure"), true},
		{"grpc not found", status.Error(codes.NotFound, "job 42 not found"), false},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad variables"), false},
		{"plain connection refused", stderrors.New("dial tcp: connection refused"), true},
		{"plain deadline", stderrors.New("context deadline exceeded"), true},
		{"plain not found", stderrors.New("job not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableZeebeError(tt.err))
		})
	}
}

func TestRetry_RetriesTransient(t *testing.T) {
	calls := 0

	result, err := Retry(context.Background(), fastRetry, "complete job", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", status.Error(codes.Unavailable, "connection reset by peer")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	calls := 0

	_, err := Retry(context.Background(), fastRetry, "complete job", func(ctx context.Context) (struct{}, error) {
		calls++
		return struct{}{}, status.Error(codes.NotFound, "job 42 not found")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.HasCode(err, errors.ErrCodeWorkflowEngine))

	stdErr, _ := errors.AsStandardError(err)
	assert.False(t, stdErr.Retryable)
}

func TestRetry_ExhaustsRetries(t *testing.T) {
	calls := 0

	_, err := Retry(context.Background(), fastRetry, "activate jobs", func(ctx context.Context) (int, error) {
		calls++
		return 0, stderrors.New("gateway unavailable")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.True(t, stdErr.Retryable)
	assert.Contains(t, stdErr.Message, "after 3 attempts")
}

func TestRetry_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	_, err := Retry(ctx, slow, "complete job", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, stderrors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
