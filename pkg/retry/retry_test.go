package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecWithRetries(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		failFirst int
		wantCalls int
		wantErr   bool
	}{
		{name: "succeeds first time", retries: 2, failFirst: 0, wantCalls: 1},
		{name: "fails twice then succeeds", retries: 2, failFirst: 2, wantCalls: 3},
		{name: "always fails", retries: 2, failFirst: 100, wantCalls: 3, wantErr: true},
		{name: "zero retries fails once", retries: 0, failFirst: 100, wantCalls: 1, wantErr: true},
		{name: "negative retries is zero", retries: -1, failFirst: 100, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := ExecWithRetries(context.Background(), tt.retries, func(ctx context.Context) (string, error) {
				calls++
				if calls <= tt.failFirst {
					return "", fmt.Errorf("attempt %d failed", calls)
				}
				return "ok", nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.EqualError(t, err, fmt.Sprintf("attempt %d failed", calls), "the last error is returned")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", got)
		})
	}
}

func TestPollUntilSucceeds(t *testing.T) {
	calls := 0
	err := PollUntil(context.Background(), "sync", time.Millisecond, 10, func(ctx context.Context) (bool, error) {
		calls++
		if calls == 2 {
			return false, errors.New("peer not online")
		}
		return calls >= 4, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestPollUntilTimesOut(t *testing.T) {
	calls := 0
	reason := errors.New("sync_state is async")
	err := PollUntil(context.Background(), "manatee sync", time.Millisecond, 5, func(ctx context.Context) (bool, error) {
		calls++
		return false, reason
	})

	var te *errs.TimeoutError
	require.True(t, errors.As(err, &te), "want TimeoutError, got %v", err)
	assert.Equal(t, 5, calls)
	assert.Equal(t, 5, te.Attempts)
	assert.Equal(t, "manatee sync", te.What)
	assert.ErrorIs(t, err, reason)
}

func TestPollUntilStop(t *testing.T) {
	calls := 0
	fatal := errors.New("vm state is failed")
	err := PollUntil(context.Background(), "vm running", time.Millisecond, 10, func(ctx context.Context) (bool, error) {
		calls++
		return false, Stop(fatal)
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, fatal)
	var te *errs.TimeoutError
	assert.False(t, errors.As(err, &te))
}

func TestPollUntilContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := PollUntil(ctx, "zk", time.Millisecond, 100, func(ctx context.Context) (bool, error) {
		calls++
		if calls == 3 {
			cancel()
		}
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 100)
}
