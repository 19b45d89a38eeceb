package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/fedsync/internal/secret"
)

func reconcile(t *testing.T, gw *fakeGateway, req Request, opts ...EngineOption) (*Result, error) {
	t.Helper()
	return NewEngine(gw, opts...).Reconcile(context.Background(), req)
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func TestReconcileBootstrap(t *testing.T) {
	gw := newFakeGateway("primary")

	res, err := reconcile(t, gw, Request{Desired: desired("A", "B"), Mode: ModePresent})
	require.NoError(t, err)

	require.Equal(t, []string{"create primary", "add A", "add B"}, gw.writes)
	require.True(t, res.Changed)
	require.Empty(t, res.Previous)
	require.Equal(t, []string{"A", "B", "primary"}, sorted(addressesOf(res.Current)))
	require.Equal(t, []FederationPayload{{Name: "primary"}}, res.Proposed.CreateFederation)
	require.Len(t, res.Proposed.AddMember, 2)
	require.Equal(t, "primary", res.Local)
	require.NotEmpty(t, res.RunID)
}

func TestReconcileIdempotent(t *testing.T) {
	gw := newFakeGateway("primary").withFederation("primary", "primary", "A", "C")
	req := Request{Desired: desired("A", "B"), Mode: ModePresent}

	res, err := reconcile(t, gw, req)
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, []string{"remove C", "add B"}, gw.writes)

	gw.writes = nil
	res, err = reconcile(t, gw, req)
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Empty(t, gw.writes)
	require.True(t, res.Proposed.Empty())
}

// For every desired set and every observed set the result is desired plus the primary.
func TestReconcileConverges(t *testing.T) {
	universe := []string{"A", "B", "C"}

	for dmask := 1; dmask < 1<<len(universe); dmask++ {
		for omask := 0; omask < 1<<len(universe); omask++ {
			want := pick(universe, dmask)
			gw := newFakeGateway("primary").withFederation("primary", append([]string{"primary"}, pick(universe, omask)...)...)

			_, err := reconcile(t, gw, Request{Desired: desired(want...), Mode: ModePresent})
			require.NoError(t, err)
			require.Equal(t, sorted(append(want, "primary")), sorted(gw.addresses()))
		}
	}
}

// Random starting memberships and desired sets converge in one run, and a
// second run writes nothing.
func TestReconcileConvergesFromRandomStates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	universe := make([]string, 8)
	for i := range universe {
		universe[i] = fmt.Sprintf("nd-%d", i)
	}

	for i := 0; i < 500; i++ {
		gw := newFakeGateway("primary")
		if observed := pick(universe, rng.Intn(1<<len(universe))); len(observed) > 0 || rng.Intn(2) == 0 {
			gw.withFederation("primary", append([]string{"primary"}, observed...)...)
		}
		want := pick(universe, 1+rng.Intn(1<<len(universe)-1))
		req := Request{Desired: desired(want...), Mode: ModePresent}

		_, err := reconcile(t, gw, req)
		require.NoError(t, err)
		require.Equal(t, sorted(append(want, "primary")), sorted(gw.addresses()), "iteration %d", i)

		gw.writes = nil
		res, err := reconcile(t, gw, req)
		require.NoError(t, err)
		require.False(t, res.Changed)
		require.Empty(t, gw.writes, "iteration %d", i)
	}
}

func TestReconcileDryRunIsPure(t *testing.T) {
	gw := newFakeGateway("primary").withFederation("primary", "primary", "A", "C")

	dry, err := reconcile(t, gw, Request{Desired: desired("A", "B"), Mode: ModePresent, DryRun: true})
	require.NoError(t, err)
	require.Empty(t, gw.writes)
	require.True(t, dry.Changed)
	require.True(t, dry.DryRun)
	require.Equal(t, []string{"primary", "A", "B"}, addressesOf(dry.Current))
	require.Equal(t, []string{"primary", "A", "C"}, addressesOf(dry.Previous))

	live, err := reconcile(t, gw, Request{Desired: desired("A", "B"), Mode: ModePresent})
	require.NoError(t, err)
	require.Equal(t, dry.Proposed, live.Proposed)
	require.Equal(t, sorted(addressesOf(dry.Current)), sorted(addressesOf(live.Current)))
}

func TestReconcileDryRunAbsent(t *testing.T) {
	gw := newFakeGateway("primary").withFederation("primary", "primary", "A")

	res, err := reconcile(t, gw, Request{Mode: ModeAbsent, DryRun: true})
	require.NoError(t, err)
	require.Empty(t, gw.writes)
	require.Empty(t, res.Current)
	require.Len(t, res.Proposed.RemoveMember, 1)
	require.Len(t, res.Proposed.DeleteFederation, 1)
}

func TestReconcileAbsent(t *testing.T) {
	gw := newFakeGateway("primary").withFederation("primary", "primary", "A", "B")

	res, err := reconcile(t, gw, Request{Mode: ModeAbsent})
	require.NoError(t, err)
	require.Equal(t, []string{"remove A", "remove B", "delete primary"}, gw.writes)
	require.Empty(t, res.Current)
	require.Empty(t, gw.federations)

	// Second run has nothing left to do
	gw.writes = nil
	res, err = reconcile(t, gw, Request{Mode: ModeAbsent})
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Empty(t, gw.writes)
}

func TestApplySkipsDeleteWhenMembersRemain(t *testing.T) {
	gw := newFakeGateway("primary").withFederation("primary", "primary", "A")

	state, err := NewObserver(gw).Observe(context.Background(), "primary")
	require.NoError(t, err)
	plan, err := BuildPlan(nil, state, ModeAbsent)
	require.NoError(t, err)
	require.Equal(t, []string{"remove_member A", "delete_federation primary"}, describe(plan.Ops))

	// Members attached by someone else after observation
	gw.members = append(gw.members, Member{Address: "late-1", ID: "x1"}, Member{Address: "late-2", ID: "x2"})

	applied, err := NewReconciler(gw, nil).Apply(context.Background(), Run{ID: "r"}, plan, false)
	require.NoError(t, err)
	require.Equal(t, []string{"remove A"}, gw.writes)
	require.Len(t, applied.Skipped, 1)
	require.Equal(t, OpDeleteFederation, applied.Skipped[0].Kind())
	require.NotEmpty(t, gw.federations)
}

func TestReconcilePartialFailure(t *testing.T) {
	gw := newFakeGateway("primary")
	gw.failOn = "add B"
	rec := &recordingRecorder{}

	res, err := reconcile(t, gw, Request{Desired: desired("A", "B", "C"), Mode: ModePresent}, WithRecorder(rec))
	require.Error(t, err)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, 2, opErr.Index)
	require.Equal(t, OpAddMember, opErr.Op.Kind())
	require.Equal(t, "B", opErr.Op.Target())
	require.NotContains(t, err.Error(), "pw-B")

	// Earlier operations stay applied
	require.Equal(t, []string{"create primary", "add A"}, gw.writes)
	require.NotNil(t, res)
	require.Len(t, res.Proposed.AddMember, 1)

	require.Equal(t, []string{
		"0 create_federation primary ok",
		"1 add_member A ok",
		"2 add_member B failed",
	}, rec.ops)
	require.Len(t, rec.finished, 1)
	require.Equal(t, err, rec.finished[0])

	// A retry resumes where the failure happened
	gw.failOn = ""
	gw.writes = nil
	_, err = reconcile(t, gw, Request{Desired: desired("A", "B", "C"), Mode: ModePresent})
	require.NoError(t, err)
	require.Equal(t, []string{"add B", "add C"}, gw.writes)
}

func TestReconcileNotPrimary(t *testing.T) {
	gw := newFakeGateway("secondary").withFederation("primary", "primary", "secondary", "A")

	for _, mode := range []Mode{ModePresent, ModeAbsent} {
		_, err := reconcile(t, gw, Request{Desired: desired("B"), Mode: mode})
		require.ErrorIs(t, err, ErrNotPrimary)
	}
	require.Empty(t, gw.writes)

	res, err := reconcile(t, gw, Request{Mode: ModeQuery})
	require.NoError(t, err)
	require.Equal(t, []string{"primary", "secondary", "A"}, addressesOf(res.Current))
}

func TestReconcileQuery(t *testing.T) {
	gw := newFakeGateway("primary").withFederation("primary", "primary", "A", "B")

	res, err := reconcile(t, gw, Request{Desired: []DesiredMember{{Address: "B"}, {Address: "Z"}}, Mode: ModeQuery})
	require.NoError(t, err)
	require.False(t, res.Changed)
	require.Equal(t, []string{"B"}, addressesOf(res.Current))
	require.Len(t, res.Previous, 3)
	require.Empty(t, gw.writes)
}

func TestReconcileValidation(t *testing.T) {
	gw := newFakeGateway("primary")
	rec := &recordingRecorder{}

	_, err := reconcile(t, gw, Request{Mode: ModePresent}, WithRecorder(rec))
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Len(t, rec.finished, 1)
}

func TestReconcileObservationError(t *testing.T) {
	gw := newFakeGateway("primary")
	gw.readErr = errors.New("connection refused")

	_, err := reconcile(t, gw, Request{Desired: desired("A"), Mode: ModePresent})
	var obsErr *ObservationError
	require.ErrorAs(t, err, &obsErr)
	require.Equal(t, "cluster info", obsErr.Resource)
	require.Empty(t, gw.writes)
}

func TestReconcileNeverLeaksPasswords(t *testing.T) {
	gw := newFakeGateway("primary")
	req := Request{
		Desired: []DesiredMember{{Address: "A", Username: "admin", Password: secret.Value("hunter2"), LoginDomain: "local"}},
		Mode:    ModePresent,
	}

	for _, dryRun := range []bool{true, false} {
		req.DryRun = dryRun
		res, err := reconcile(t, gw, req)
		require.NoError(t, err)

		out, err := json.Marshal(res)
		require.NoError(t, err)
		require.NotContains(t, string(out), "hunter2")
		require.NotContains(t, string(out), secret.Value("hunter2").Base64())
		require.Equal(t, secret.Redacted, res.Proposed.AddMember[0].Password)
		require.Equal(t, "local", res.Proposed.AddMember[0].LoginDomain)
	}

	// Only the wire payload carries the encoded credential
	require.Len(t, gw.payloads, 1)
	require.Equal(t, "aHVudGVyMg==", gw.payloads[0].Password)
}

func addressesOf(ms []Member) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Address)
	}
	return out
}
