package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/fleetadm/pkg/types"
)

// CommandRunner runs a script on a compute node. gateway.Inventory
// satisfies it.
type CommandRunner interface {
	CommandExecute(ctx context.Context, serverUUID, script string) (*types.CommandResult, error)
}

// ExecChecker runs a script on a server and is healthy when it exits 0
// and, if Expect is set, its stdout contains Expect
type ExecChecker struct {
	Runner     CommandRunner
	ServerUUID string
	Script     string
	Expect     string
}

// NewExecChecker creates a remote exec checker
func NewExecChecker(runner CommandRunner, serverUUID, script string) *ExecChecker {
	return &ExecChecker{Runner: runner, ServerUUID: serverUUID, Script: script}
}

// WithExpect requires stdout to contain s
func (e *ExecChecker) WithExpect(s string) *ExecChecker {
	e.Expect = s
	return e
}

func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	res, err := e.Runner.CommandExecute(ctx, e.ServerUUID, e.Script)
	if err != nil {
		return result(start, false, fmt.Sprintf("exec on %s: %v", e.ServerUUID, err))
	}
	if res.ExitStatus != 0 {
		return result(start, false, fmt.Sprintf("exit status %d: %s", res.ExitStatus, truncate(res.Stderr)))
	}
	if e.Expect != "" && !strings.Contains(res.Stdout, e.Expect) {
		return result(start, false, fmt.Sprintf("output %q lacks %q", truncate(res.Stdout), e.Expect))
	}
	return result(start, true, truncate(res.Stdout))
}

func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 100 {
		return s[:100] + "..."
	}
	return s
}
