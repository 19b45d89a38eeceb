package federation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// stateOf builds an observed state. fed is the federation name, "" for none.
func stateOf(local, fed string, hosts ...string) *State {
	s := &State{Local: local, Members: members(hosts...)}
	if fed != "" {
		f := Federation{Name: fed, ID: "fed-1"}
		s.Federations = []Federation{f}
		if fed == local {
			s.Federation = &f
		}
	}
	return s
}

func TestBuildPlan(t *testing.T) {
	tests := []struct {
		name     string
		desired  []DesiredMember
		state    *State
		mode     Mode
		expected []string
	}{
		// === present ===
		{
			name:    "present/remove_before_add",
			desired: desired("A", "B"),
			state:   stateOf("primary", "primary", "primary", "A", "C"),
			mode:    ModePresent,
			expected: []string{
				"remove_member C",
				"add_member B",
			},
		},
		{
			name:    "present/bootstrap_without_federation",
			desired: desired("A", "B"),
			state:   stateOf("primary", ""),
			mode:    ModePresent,
			expected: []string{
				"create_federation primary",
				"add_member A",
				"add_member B",
			},
		},
		{
			name:     "present/bootstrap_primary_only",
			desired:  desired("A"),
			state:    stateOf("primary", "primary", "primary"),
			mode:     ModePresent,
			expected: []string{"add_member A"},
		},
		{
			name:     "present/bootstrap_ignores_overlap",
			desired:  desired("A"),
			state:    stateOf("primary", "primary", "A"),
			mode:     ModePresent,
			expected: []string{"add_member A"},
		},
		{
			name:     "present/converged",
			desired:  desired("A", "B"),
			state:    stateOf("primary", "primary", "primary", "A", "B"),
			mode:     ModePresent,
			expected: []string{},
		},
		{
			name:    "present/duplicate_desired_added_once",
			desired: desired("A", "A", "B"),
			state:   stateOf("primary", ""),
			mode:    ModePresent,
			expected: []string{
				"create_federation primary",
				"add_member A",
				"add_member B",
			},
		},
		{
			name:    "present/replace_all",
			desired: desired("D"),
			state:   stateOf("primary", "primary", "primary", "A", "B"),
			mode:    ModePresent,
			expected: []string{
				"remove_member A",
				"remove_member B",
				"add_member D",
			},
		},
		{
			name:     "present/never_removes_local",
			desired:  desired("A"),
			state:    stateOf("primary", "primary", "A", "primary"),
			mode:     ModePresent,
			expected: []string{},
		},
		{
			name:     "present/only_removals_keep_federation",
			desired:  desired("A"),
			state:    stateOf("primary", "primary", "primary", "A", "B"),
			mode:     ModePresent,
			expected: []string{"remove_member B"},
		},

		// === absent ===
		{
			name:    "absent/removes_all_then_deletes",
			desired: nil,
			state:   stateOf("primary", "primary", "primary", "A", "B"),
			mode:    ModeAbsent,
			expected: []string{
				"remove_member A",
				"remove_member B",
				"delete_federation primary",
			},
		},
		{
			name:     "absent/primary_only_deletes_federation",
			state:    stateOf("primary", "primary", "primary"),
			mode:     ModeAbsent,
			expected: []string{"delete_federation primary"},
		},
		{
			name:     "absent/empty_federation_deleted",
			state:    stateOf("primary", "primary"),
			mode:     ModeAbsent,
			expected: []string{"delete_federation primary"},
		},
		{
			name:     "absent/nothing_observed",
			state:    stateOf("primary", ""),
			mode:     ModeAbsent,
			expected: []string{},
		},
		{
			name:     "absent/members_without_federation",
			state:    stateOf("primary", "", "primary", "A"),
			mode:     ModeAbsent,
			expected: []string{"remove_member A"},
		},

		// === query ===
		{
			name:     "query/never_plans",
			desired:  desired("A"),
			state:    stateOf("primary", "primary", "primary", "B"),
			mode:     ModeQuery,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildPlan(tt.desired, tt.state, tt.mode)
			require.NoError(t, err)
			require.Equal(t, tt.expected, describe(plan.Ops))
		})
	}
}

func TestBuildPlanNotPrimary(t *testing.T) {
	state := stateOf("secondary", "primary", "primary", "secondary", "A")

	for _, mode := range []Mode{ModePresent, ModeAbsent} {
		t.Run(string(mode), func(t *testing.T) {
			plan, err := BuildPlan(desired("A", "B"), state, mode)
			require.ErrorIs(t, err, ErrNotPrimary)
			require.True(t, plan.Empty())

			var npe *NotPrimaryError
			require.ErrorAs(t, err, &npe)
			require.Equal(t, "secondary", npe.Local)
			require.Equal(t, []string{"primary"}, npe.Federations)
		})
	}

	t.Run("query", func(t *testing.T) {
		_, err := BuildPlan(desired("A"), state, ModeQuery)
		require.NoError(t, err)
	})
}

// Every removal precedes every addition, and create precedes the first add.
func TestBuildPlanOrdering(t *testing.T) {
	universe := []string{"A", "B", "C", "D"}

	for dmask := 1; dmask < 1<<len(universe); dmask++ {
		for omask := 0; omask < 1<<len(universe); omask++ {
			want := pick(universe, dmask)
			have := append([]string{"primary"}, pick(universe, omask)...)

			for _, fed := range []string{"", "primary"} {
				plan, err := BuildPlan(desired(want...), stateOf("primary", fed, have...), ModePresent)
				require.NoError(t, err)

				lastRemove, firstAdd, create := -1, len(plan.Ops), -1
				for i, op := range plan.Ops {
					switch op.Kind() {
					case OpRemoveMember:
						lastRemove = i
					case OpAddMember:
						if i < firstAdd {
							firstAdd = i
						}
					case OpCreateFederation:
						create = i
					case OpDeleteFederation:
						t.Fatalf("present plan deletes the federation: %v", describe(plan.Ops))
					}
				}
				require.Less(t, lastRemove, firstAdd, describe(plan.Ops))

				hasAdds := plan.Count(OpAddMember) > 0
				if fed == "" && hasAdds {
					require.Equal(t, firstAdd-1, create, describe(plan.Ops))
				} else {
					require.Equal(t, -1, create, describe(plan.Ops))
				}
			}
		}
	}
}

func pick(universe []string, mask int) []string {
	var out []string
	for i, s := range universe {
		if mask&(1<<i) != 0 {
			out = append(out, s)
		}
	}
	return out
}

func TestFilterMembers(t *testing.T) {
	observed := members("primary", "A", "B")

	require.Equal(t, observed, FilterMembers(observed, nil))

	got := FilterMembers(observed, []DesiredMember{{Address: "B"}, {Address: "missing"}})
	require.Len(t, got, 1)
	require.Equal(t, "B", got[0].Address)

	require.Empty(t, FilterMembers(observed, []DesiredMember{{Address: "missing"}}))
}

func TestOpKindString(t *testing.T) {
	require.Equal(t, "create_federation", OpCreateFederation.String())
	require.Equal(t, "add_member", OpAddMember.String())
	require.Equal(t, "remove_member", OpRemoveMember.String())
	require.Equal(t, "delete_federation", OpDeleteFederation.String())
	require.Equal(t, "unknown", OpKind(42).String())
}
