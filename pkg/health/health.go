package health

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/fleetadm/pkg/retry"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeExec CheckType = "exec"
	CheckTypeDNS  CheckType = "dns"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

func result(start time.Time, healthy bool, msg string) Result {
	return Result{
		Healthy:   healthy,
		Message:   msg,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Condition adapts a checker to retry.PollUntil. An unhealthy result is
// "not yet", and its message becomes the reason reported on timeout.
func Condition(c Checker) retry.Condition {
	return func(ctx context.Context) (bool, error) {
		res := c.Check(ctx)
		if !res.Healthy {
			return false, errors.New(res.Message)
		}
		return true, nil
	}
}
