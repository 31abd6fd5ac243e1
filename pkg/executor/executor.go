// Package executor runs plans. Procedures execute strictly one after
// another in plan order; the first failure stops the run and nothing is
// rolled back.
package executor

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetadm/pkg/events"
	"github.com/cuemby/fleetadm/pkg/gateway"
	"github.com/cuemby/fleetadm/pkg/log"
	"github.com/cuemby/fleetadm/pkg/metrics"
	"github.com/cuemby/fleetadm/pkg/plan"
	"github.com/cuemby/fleetadm/pkg/procedure"
	"github.com/rs/zerolog"
)

// ProcedureError identifies the procedure a plan stopped at
type ProcedureError struct {
	Index int
	Total int
	Proc  procedure.Procedure
	Err   error
}

func (e *ProcedureError) Error() string {
	return fmt.Sprintf("procedure %d/%d (%s) failed: %v", e.Index+1, e.Total, e.Proc.Kind(), e.Err)
}

func (e *ProcedureError) Unwrap() error { return e.Err }

// Executor drives a plan's procedures against the gateway
type Executor struct {
	gw     *gateway.Context
	broker *events.Broker
	logger zerolog.Logger
}

// New creates an executor. broker may be nil.
func New(gw *gateway.Context, broker *events.Broker) *Executor {
	return &Executor{
		gw:     gw,
		broker: broker,
		logger: log.WithComponent("executor"),
	}
}

// Gateway returns the gateway procedures run against
func (e *Executor) Gateway() *gateway.Context {
	return e.gw
}

// Events returns the broker progress is published to, possibly nil
func (e *Executor) Events() *events.Broker {
	return e.broker
}

// Exec runs every procedure of p in order. Each one finishes before the
// next begins; the first failure is returned wrapped in a
// *ProcedureError and later procedures are not attempted.
func (e *Executor) Exec(ctx context.Context, p *plan.Plan) error {
	total := len(p.Procs)
	e.broker.Emit(events.EventPlanStarted, fmt.Sprintf("executing %d procedure(s)", total))

	for i, proc := range p.Procs {
		if err := ctx.Err(); err != nil {
			metrics.PlansTotal.WithLabelValues("failure").Inc()
			e.broker.Emit(events.EventPlanFailed, err.Error())
			return err
		}
		if err := e.run(ctx, i, total, proc); err != nil {
			metrics.PlansTotal.WithLabelValues("failure").Inc()
			e.broker.Emit(events.EventPlanFailed, err.Error())
			return err
		}
	}

	metrics.PlansTotal.WithLabelValues("success").Inc()
	e.broker.Emit(events.EventPlanCompleted, fmt.Sprintf("%d procedure(s) completed", total))
	return nil
}

func (e *Executor) run(ctx context.Context, i, total int, proc procedure.Procedure) error {
	kind := string(proc.Kind())
	summary := proc.Summarize()
	logger := e.logger.With().Str("proc", kind).Int("step", i+1).Int("of", total).Logger()

	logger.Info().Str("summary", summary).Msg("Executing procedure")
	e.broker.Emit(events.EventProcedureStarted, summary, "proc", kind)

	timer := metrics.NewTimer()
	err := proc.Execute(ctx, e.gw)
	timer.ObserveDurationVec(metrics.ProcedureDuration, kind)

	if err != nil {
		metrics.ProceduresTotal.WithLabelValues(kind, "failure").Inc()
		logger.Error().Err(err).Dur("duration", timer.Duration()).Msg("Procedure failed")
		e.broker.Emit(events.EventProcedureFailed, err.Error(), "proc", kind)
		return &ProcedureError{Index: i, Total: total, Proc: proc, Err: err}
	}

	metrics.ProceduresTotal.WithLabelValues(kind, "success").Inc()
	logger.Info().Dur("duration", timer.Duration()).Msg("Procedure completed")
	e.broker.Emit(events.EventProcedureCompleted, summary, "proc", kind)
	return nil
}
