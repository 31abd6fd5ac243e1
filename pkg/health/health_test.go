package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/retry"
	"github.com/cuemby/fleetadm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		healthy bool
	}{
		{name: "ok", status: http.StatusOK, healthy: true},
		{name: "no content", status: http.StatusNoContent, healthy: true},
		{name: "redirect is not healthy", status: http.StatusFound, healthy: false},
		{name: "server error", status: http.StatusServiceUnavailable, healthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var path string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			res := NewHTTPChecker("sapi", server.URL+"/").Check(context.Background())
			assert.Equal(t, tt.healthy, res.Healthy, res.Message)
			assert.Equal(t, "/ping", path)
			assert.Contains(t, res.Message, "sapi")
			assert.Equal(t, CheckTypeHTTP, NewHTTPChecker("sapi", server.URL).Type())
		})
	}
}

func TestHTTPCheckerUnreachable(t *testing.T) {
	res := NewHTTPChecker("cnapi", "http://127.0.0.1:1").Check(context.Background())
	assert.False(t, res.Healthy)
}

func TestTCPChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	res := NewTCPChecker("127.0.0.1", port).Check(context.Background())
	assert.True(t, res.Healthy, res.Message)

	ln.Close()
	res = NewTCPChecker("127.0.0.1", port).Check(context.Background())
	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, strconv.Itoa(port))
}

type scriptedRunner struct {
	results []*types.CommandResult
	err     error
	calls   int
}

func (r *scriptedRunner) CommandExecute(ctx context.Context, serverUUID, script string) (*types.CommandResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	res := r.results[min(r.calls, len(r.results)-1)]
	r.calls++
	return res, nil
}

func TestExecChecker(t *testing.T) {
	tests := []struct {
		name    string
		runner  *scriptedRunner
		expect  string
		healthy bool
	}{
		{name: "exit zero", runner: &scriptedRunner{results: []*types.CommandResult{{Stdout: "ok"}}}, healthy: true},
		{name: "non-zero exit", runner: &scriptedRunner{results: []*types.CommandResult{{ExitStatus: 2, Stderr: "no response"}}}},
		{name: "expected output", runner: &scriptedRunner{results: []*types.CommandResult{{Stdout: "accepting connections"}}}, expect: "accepting", healthy: true},
		{name: "missing output", runner: &scriptedRunner{results: []*types.CommandResult{{Stdout: "rejecting connections"}}}, expect: "accepting"},
		{name: "transport error", runner: &scriptedRunner{err: errors.New("cnapi down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewExecChecker(tt.runner, "hn", "pg_isready").WithExpect(tt.expect).Check(context.Background())
			assert.Equal(t, tt.healthy, res.Healthy, res.Message)
		})
	}
}

func TestConditionWithPollUntil(t *testing.T) {
	runner := &scriptedRunner{results: []*types.CommandResult{
		{ExitStatus: 1, Stderr: "starting"},
		{ExitStatus: 1, Stderr: "starting"},
		{Stdout: "ready"},
	}}
	err := retry.PollUntil(context.Background(), "ready", 0, 5, Condition(NewExecChecker(runner, "hn", "check")))
	require.NoError(t, err)
	assert.Equal(t, 3, runner.calls)

	never := &scriptedRunner{results: []*types.CommandResult{{ExitStatus: 1, Stderr: "still starting"}}}
	err = retry.PollUntil(context.Background(), "ready", 0, 3, Condition(NewExecChecker(never, "hn", "check")))
	var te *errs.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "still starting")
}
