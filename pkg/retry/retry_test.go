package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast(n int) []Option {
	return []Option{WithMaxAttempts(n), WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}
}

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("flaky"))
		}
		return nil
	}, fast(5)...)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanent(t *testing.T) {
	root := errors.New("404")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(root)
	}, fast(5)...)

	assert.Equal(t, 1, calls)
	assert.Same(t, root, err)
}

func TestDo_PlainErrorsAreNotRetriedByDefault(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	}, fast(5)...)

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttemptsAndUnwraps(t *testing.T) {
	root := errors.New("timeout")
	var retries []int
	err := Do(context.Background(), func(context.Context) error {
		return Retryable(root)
	}, append(fast(3), WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		retries = append(retries, attempt)
	}))...)

	assert.Same(t, root, err)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", Retryable(errors.New("again"))
		}
		return "# lesson", nil
	}, fast(3)...)

	require.NoError(t, err)
	assert.Equal(t, "# lesson", v)
}

func TestStorageRetrier_RetriesPlainErrors(t *testing.T) {
	calls := 0
	var retried []int
	r := StorageRetrier(3,
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2*time.Millisecond),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }),
	)

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, retried, 2)
}
