package federation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Result is what a reconciliation reports back to the caller.
type Result struct {
	RunID  string `json:"run_id"`
	Mode   Mode   `json:"mode"`
	DryRun bool   `json:"dry_run"`
	Local  string `json:"local"`

	// Previous is the membership observed before any write.
	Previous []Member `json:"previous"`
	// Current is the membership re-read after a real apply, the simulated
	// membership under dry-run, or the matching members for a query.
	Current []Member `json:"current"`
	// Proposed holds the operations issued (or that would be issued).
	Proposed Proposed `json:"proposed"`
	// Skipped holds operations dropped by a pre-flight re-read.
	Skipped *Proposed `json:"skipped,omitempty"`
	Changed bool      `json:"changed"`
}

// Engine runs one reconciliation end to end: validate, observe, plan,
// apply, report. Calls are sequential; callers that share a federation
// across processes serialize through a lock.
type Engine struct {
	observer   *Observer
	reconciler *Reconciler
	recorder   Recorder
	now        func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRecorder sets the recorder notified about runs and operations.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates a new engine over the given gateway.
func NewEngine(gateway Gateway, opts ...EngineOption) *Engine {
	e := &Engine{
		recorder: NopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.observer = NewObserver(gateway)
	e.reconciler = NewReconciler(gateway, e.recorder)
	return e
}

// Reconcile converges the remote membership to the request. Errors are
// one of *ValidationError, *ObservationError, *NotPrimaryError or
// *OperationError.
func (e *Engine) Reconcile(ctx context.Context, req Request) (result *Result, err error) {
	run := Run{
		ID:      uuid.NewString(),
		Mode:    req.Mode,
		DryRun:  req.DryRun,
		Started: e.now(),
	}
	e.recorder.RunStarted(ctx, run)
	defer func() {
		e.recorder.RunFinished(ctx, run, result, err)
	}()

	logger := log.With().Str("run", run.ID).Str("mode", string(req.Mode)).Bool("dry_run", req.DryRun).Logger()

	if err := Validate(req); err != nil {
		return nil, err
	}

	local, err := e.observer.LocalIdentity(ctx)
	if err != nil {
		return nil, err
	}

	state, err := e.observer.Observe(ctx, local)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("local", local).
		Int("federations", len(state.Federations)).
		Int("members", len(state.Members)).
		Bool("primary", state.IsPrimary()).
		Msg("Observed federation state")

	result = &Result{
		RunID:    run.ID,
		Mode:     req.Mode,
		DryRun:   req.DryRun,
		Local:    local,
		Previous: state.Members,
	}

	if req.Mode == ModeQuery {
		result.Current = FilterMembers(state.Members, req.Desired)
		return result, nil
	}

	plan, err := BuildPlan(req.Desired, state, req.Mode)
	if err != nil {
		return nil, err
	}

	if plan.Empty() {
		logger.Debug().Msg("Federation already converged")
		result.Current = state.Members
		return result, nil
	}

	logger.Info().
		Int("remove", plan.Count(OpRemoveMember)).
		Int("add", plan.Count(OpAddMember)).
		Bool("create_federation", plan.Count(OpCreateFederation) > 0).
		Bool("delete_federation", plan.Count(OpDeleteFederation) > 0).
		Msg("Reconciling federation")

	applied, err := e.reconciler.Apply(ctx, run, plan, req.DryRun)
	if applied != nil {
		result.Proposed = GroupByKind(applied.Executed)
		if len(applied.Skipped) > 0 {
			skipped := GroupByKind(applied.Skipped)
			result.Skipped = &skipped
		}
		result.Changed = len(applied.Executed) > 0
	}
	if err != nil {
		return result, err
	}

	switch {
	case req.DryRun:
		result.Current = Simulate(state.Members, applied.Executed)
	case len(applied.Executed) > 0:
		members, err := e.observer.Members(ctx)
		if err != nil {
			return result, err
		}
		result.Current = members
	default:
		result.Current = state.Members
	}

	return result, nil
}
