package federation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Run identifies one reconciliation for recorders.
type Run struct {
	ID      string
	Mode    Mode
	DryRun  bool
	Started time.Time
}

// Recorder receives reconciliation progress. Implementations must not
// fail the reconciliation; they log their own errors.
type Recorder interface {
	RunStarted(ctx context.Context, run Run)
	OperationDone(ctx context.Context, run Run, index int, op Operation, err error)
	RunFinished(ctx context.Context, run Run, result *Result, err error)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RunStarted(context.Context, Run)                           {}
func (NopRecorder) OperationDone(context.Context, Run, int, Operation, error) {}
func (NopRecorder) RunFinished(context.Context, Run, *Result, error)          {}

// MultiRecorder fans out to several recorders in order.
type MultiRecorder []Recorder

func (m MultiRecorder) RunStarted(ctx context.Context, run Run) {
	for _, r := range m {
		r.RunStarted(ctx, run)
	}
}

func (m MultiRecorder) OperationDone(ctx context.Context, run Run, index int, op Operation, err error) {
	for _, r := range m {
		r.OperationDone(ctx, run, index, op, err)
	}
}

func (m MultiRecorder) RunFinished(ctx context.Context, run Run, result *Result, err error) {
	for _, r := range m {
		r.RunFinished(ctx, run, result, err)
	}
}

// Applied describes what Apply did.
type Applied struct {
	// Executed holds the operations that reached the API, in order.
	Executed []Operation
	// Skipped holds operations dropped by a pre-flight check.
	Skipped []Operation
}

// Reconciler executes plans against a gateway, one call at a time.
type Reconciler struct {
	gateway  Gateway
	observer *Observer
	recorder Recorder
}

// NewReconciler creates a new reconciler.
func NewReconciler(gateway Gateway, recorder Recorder) *Reconciler {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Reconciler{
		gateway:  gateway,
		observer: NewObserver(gateway),
		recorder: recorder,
	}
}

// Apply executes the plan in order and stops at the first failure, which
// is returned as an *OperationError. Earlier operations stay applied.
// A dry run executes nothing and reports every operation as executed.
func (r *Reconciler) Apply(ctx context.Context, run Run, plan Plan, dryRun bool) (*Applied, error) {
	applied := &Applied{}
	if dryRun {
		applied.Executed = append(applied.Executed, plan.Ops...)
		return applied, nil
	}

	for i, op := range plan.Ops {
		if err := ctx.Err(); err != nil {
			return applied, &OperationError{Index: i, Op: op, Err: err}
		}

		skip, err := r.step(ctx, op)
		if skip {
			log.Warn().
				Str("run", run.ID).
				Str("op", op.Kind().String()).
				Str("target", op.Target()).
				Msg("Skipping operation, federation still has members")
			applied.Skipped = append(applied.Skipped, op)
			continue
		}

		r.recorder.OperationDone(ctx, run, i, op, err)
		if err != nil {
			log.Error().
				Err(err).
				Str("run", run.ID).
				Int("index", i).
				Str("op", op.Kind().String()).
				Str("target", op.Target()).
				Msg("Operation failed")
			return applied, &OperationError{Index: i, Op: op, Err: err}
		}

		log.Debug().
			Str("run", run.ID).
			Int("index", i).
			Str("op", op.Kind().String()).
			Str("target", op.Target()).
			Msg("Operation applied")
		applied.Executed = append(applied.Executed, op)
	}
	return applied, nil
}

// step performs one operation. skip is true when a delete was abandoned
// because the federation still holds more than one member.
func (r *Reconciler) step(ctx context.Context, op Operation) (skip bool, err error) {
	switch o := op.(type) {
	case CreateFederation:
		_, err = r.gateway.CreateFederation(ctx, o.Name)
	case AddMember:
		_, err = r.gateway.AddMember(ctx, NewMemberPayload(o.Member))
	case RemoveMember:
		err = r.gateway.RemoveMember(ctx, o.Member)
	case DeleteFederation:
		members, rerr := r.observer.Members(ctx)
		if rerr != nil {
			return false, rerr
		}
		if len(members) > 1 {
			return true, nil
		}
		err = r.gateway.DeleteFederation(ctx, o.Federation)
	}
	return false, err
}
