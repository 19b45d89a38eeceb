package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/fedsync/internal/db"
	"github.com/dokzlo13/fedsync/internal/federation"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndQuery(t *testing.T) {
	l := openLedger(t)

	require.NoError(t, l.Append(EventReconcileStarted, "run-1", map[string]any{"mode": "present"}))
	require.NoError(t, l.AppendWithSource(EventOperationApplied, "run-1", "cli", map[string]any{"target": "nd-b"}))
	require.NoError(t, l.Append(EventReconcileStarted, "run-2", nil))

	recent, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "run-2", recent[0].RunID)
	require.Nil(t, recent[0].Payload)

	byRun, err := l.ByRun("run-1")
	require.NoError(t, err)
	require.Len(t, byRun, 2)
	require.Equal(t, EventReconcileStarted, byRun[0].EventType)
	require.Equal(t, "present", byRun[0].Payload["mode"])
	require.Equal(t, "cli", byRun[1].Source)

	started, err := l.GetByType(EventReconcileStarted, 1)
	require.NoError(t, err)
	require.Len(t, started, 1)
	require.Equal(t, "run-2", started[0].RunID)
}

func TestDeleteOlderThan(t *testing.T) {
	l := openLedger(t)
	now := time.Now()

	l.now = func() time.Time { return now.Add(-48 * time.Hour) }
	require.NoError(t, l.Append(EventReconcileCompleted, "old", nil))
	l.now = func() time.Time { return now }
	require.NoError(t, l.Append(EventReconcileCompleted, "new", nil))

	deleted, err := l.DeleteOlderThan(24 * time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	recent, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "new", recent[0].RunID)
}

func TestRecorder(t *testing.T) {
	l := openLedger(t)
	rec := NewRecorder(l, "daemon")
	ctx := context.Background()
	run := federation.Run{ID: "run-7", Mode: federation.ModeAbsent}

	rec.RunStarted(ctx, run)
	rec.OperationDone(ctx, run, 0, federation.RemoveMember{Member: federation.Member{Address: "nd-b", ID: "m2"}}, nil)
	rec.OperationDone(ctx, run, 1, federation.DeleteFederation{Federation: federation.Federation{Name: "nd-a", ID: "f1"}}, errors.New("boom"))
	rec.RunFinished(ctx, run, &federation.Result{Local: "nd-a", Changed: true}, errors.New("boom"))

	entries, err := l.ByRun("run-7")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	require.Equal(t, EventReconcileStarted, entries[0].EventType)
	require.Equal(t, "absent", entries[0].Payload["mode"])

	require.Equal(t, EventOperationApplied, entries[1].EventType)
	require.Equal(t, "remove_member", entries[1].Payload["kind"])
	require.Equal(t, "m2", entries[1].Payload["member_id"])

	require.Equal(t, EventOperationFailed, entries[2].EventType)
	require.Equal(t, "f1", entries[2].Payload["federation_id"])
	require.Equal(t, "boom", entries[2].Payload["error"])

	require.Equal(t, EventReconcileFailed, entries[3].EventType)
	require.Equal(t, true, entries[3].Payload["changed"])
	require.Equal(t, "daemon", entries[3].Source)
}

func TestRecorderNeverStoresPasswords(t *testing.T) {
	l := openLedger(t)
	rec := NewRecorder(l, "cli")
	ctx := context.Background()
	run := federation.Run{ID: "run-8", Mode: federation.ModePresent}

	add := federation.AddMember{Member: federation.DesiredMember{Address: "nd-b", Username: "admin", Password: "hunter2"}}
	rec.OperationDone(ctx, run, 0, add, nil)

	var payload string
	require.NoError(t, l.db.QueryRow(`SELECT payload FROM event_ledger WHERE run_id = ?`, "run-8").Scan(&payload))
	require.NotContains(t, payload, "hunter2")
	require.Contains(t, payload, "nd-b")
}
