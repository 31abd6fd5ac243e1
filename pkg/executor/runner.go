package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/errs"
	"github.com/cuemby/fleetadm/pkg/history"
	"github.com/cuemby/fleetadm/pkg/lock"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/plan"
	"github.com/cuemby/fleetadm/pkg/types"
)

// Confirm asks the operator a yes/no question
type Confirm func(prompt string) (bool, error)

// RunOptions control the confirmation step of a run
type RunOptions struct {
	// Yes skips the plan confirmation. Plan.Confirmations are still asked.
	Yes bool
	// DryRun stops after showing the plan
	DryRun bool
}

// Runner wraps plan execution in the full mutating-operation protocol:
// confirm, lock, record history, execute, finalize history, unlock
type Runner struct {
	Executor *Executor
	Locks    *lock.Manager
	Journal  history.Journal
	// Confirm defaults to always answering yes
	Confirm Confirm
	// Show receives the plan summary; defaults to discarding it
	Show func(summary string)
}

func (r *Runner) confirm(prompt string) (bool, error) {
	if r.Confirm == nil {
		return true, nil
	}
	return r.Confirm(prompt)
}

// Run confirms and executes p. It returns the finalized history entry,
// or nil when nothing was executed (empty plan, dry run).
func (r *Runner) Run(ctx context.Context, operation string, p *plan.Plan, opts RunOptions) (*types.HistoryEntry, error) {
	logger := log.WithComponent("runner")

	if r.Show != nil {
		r.Show(p.Summary())
	}
	if p.Empty() {
		logger.Info().Str("operation", operation).Msg("Nothing to do")
		return nil, nil
	}
	if opts.DryRun {
		return nil, nil
	}

	for _, c := range p.Confirmations {
		ok, err := r.confirm(fmt.Sprintf("Warning: %s. Continue? [y/N] ", c))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.ErrAborted
		}
	}
	if !opts.Yes {
		ok, err := r.confirm("Would you like to continue? [y/N] ")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.ErrAborted
		}
	}

	return r.Guard(ctx, operation, p.Changes, func(ctx context.Context) error {
		return r.Executor.Exec(ctx, p)
	})
}

// Guard runs fn under the fleet lock with a history entry saved before
// fn starts and finalized, with fn's error, after it returns. The lock is
// released on every path.
func (r *Runner) Guard(ctx context.Context, operation string, changes []types.Change, fn func(ctx context.Context) error) (*types.HistoryEntry, error) {
	var entry *types.HistoryEntry
	err := r.Locks.With(ctx, operation, func(ctx context.Context) error {
		var err error
		entry, err = r.Journal.Save(ctx, operation, changes)
		if err != nil {
			return err
		}
		logger := log.WithHistoryID(entry.UUID).With().Str("operation", operation).Logger()
		logger.Info().Int("changes", len(changes)).Msg("History entry saved")

		runErr := fn(ctx)

		// finalize even when ctx was cancelled mid-run
		if err := r.Journal.Update(context.WithoutCancel(ctx), entry, runErr); err != nil {
			logger.Error().Err(err).Msg("Failed to finalize history entry")
			return errors.Join(runErr, err)
		}
		if runErr != nil {
			logger.Error().Err(runErr).Msg("Operation failed")
		} else {
			logger.Info().Msg("Operation completed")
		}
		return runErr
	})
	return entry, err
}
