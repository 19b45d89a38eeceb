package ledger

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fedsync/internal/federation"
)

// Recorder writes reconciliation progress into the ledger. Write errors
// are logged and never fail the reconciliation.
type Recorder struct {
	ledger *Ledger
	source string
}

// NewRecorder creates a recorder tagging entries with source.
func NewRecorder(l *Ledger, source string) *Recorder {
	return &Recorder{ledger: l, source: source}
}

func (r *Recorder) RunStarted(_ context.Context, run federation.Run) {
	r.append(EventReconcileStarted, run.ID, map[string]any{
		"mode":    string(run.Mode),
		"dry_run": run.DryRun,
	})
}

func (r *Recorder) OperationDone(_ context.Context, run federation.Run, index int, op federation.Operation, err error) {
	payload := map[string]any{
		"index":  index,
		"kind":   op.Kind().String(),
		"target": op.Target(),
	}
	switch o := op.(type) {
	case federation.RemoveMember:
		payload["member_id"] = o.Member.ID
	case federation.DeleteFederation:
		payload["federation_id"] = o.Federation.ID
	}

	if err != nil {
		payload["error"] = err.Error()
		r.append(EventOperationFailed, run.ID, payload)
		return
	}
	r.append(EventOperationApplied, run.ID, payload)
}

func (r *Recorder) RunFinished(_ context.Context, run federation.Run, result *federation.Result, err error) {
	payload := map[string]any{
		"mode":    string(run.Mode),
		"dry_run": run.DryRun,
	}
	if result != nil {
		payload["changed"] = result.Changed
		payload["local"] = result.Local
		payload["members"] = len(result.Current)
	}

	if err != nil {
		payload["error"] = err.Error()
		r.append(EventReconcileFailed, run.ID, payload)
		return
	}
	r.append(EventReconcileCompleted, run.ID, payload)
}

func (r *Recorder) append(eventType EventType, runID string, payload map[string]any) {
	if err := r.ledger.AppendWithSource(eventType, runID, r.source, payload); err != nil {
		log.Warn().Err(err).Str("event", string(eventType)).Str("run", runID).Msg("Failed to write ledger entry")
	}
}
