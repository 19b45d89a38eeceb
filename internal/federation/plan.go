package federation

import "sort"

// OpKind identifies the kind of a structural operation.
type OpKind int

const (
	OpCreateFederation OpKind = iota
	OpAddMember
	OpRemoveMember
	OpDeleteFederation
)

// String returns a human-readable name for the kind.
func (k OpKind) String() string {
	switch k {
	case OpCreateFederation:
		return "create_federation"
	case OpAddMember:
		return "add_member"
	case OpRemoveMember:
		return "remove_member"
	case OpDeleteFederation:
		return "delete_federation"
	default:
		return "unknown"
	}
}

// Operation is one structural change. The concrete types below are the
// only implementations.
type Operation interface {
	Kind() OpKind
	// Target names what the operation touches, for logs and errors.
	Target() string
	isOperation()
}

// CreateFederation creates the federation named after the local cluster.
type CreateFederation struct {
	Name string
}

// AddMember attaches a desired cluster.
type AddMember struct {
	Member DesiredMember
}

// RemoveMember detaches an observed member.
type RemoveMember struct {
	Member Member
}

// DeleteFederation tears the federation down.
type DeleteFederation struct {
	Federation Federation
}

func (CreateFederation) Kind() OpKind { return OpCreateFederation }
func (AddMember) Kind() OpKind        { return OpAddMember }
func (RemoveMember) Kind() OpKind     { return OpRemoveMember }
func (DeleteFederation) Kind() OpKind { return OpDeleteFederation }

func (o CreateFederation) Target() string { return o.Name }
func (o AddMember) Target() string        { return o.Member.Address }
func (o RemoveMember) Target() string     { return o.Member.Address }
func (o DeleteFederation) Target() string { return o.Federation.Name }

func (CreateFederation) isOperation() {}
func (AddMember) isOperation()        {}
func (RemoveMember) isOperation()     {}
func (DeleteFederation) isOperation() {}

// Plan is the ordered list of operations for one reconciliation.
type Plan struct {
	Ops []Operation
}

// Empty reports whether there is nothing to do.
func (p Plan) Empty() bool {
	return len(p.Ops) == 0
}

// Count returns the number of operations of a kind.
func (p Plan) Count(kind OpKind) int {
	n := 0
	for _, op := range p.Ops {
		if op.Kind() == kind {
			n++
		}
	}
	return n
}

// BuildPlan computes the operations that converge state to desired.
// Query mode never plans; use FilterMembers instead.
func BuildPlan(desired []DesiredMember, state *State, mode Mode) (Plan, error) {
	if mode.Mutating() && state.FederationExists() && !state.IsPrimary() {
		return Plan{}, notPrimary(state)
	}

	switch mode {
	case ModeAbsent:
		return planAbsent(state), nil
	case ModePresent:
		return planPresent(desired, state), nil
	default:
		return Plan{}, nil
	}
}

func notPrimary(state *State) *NotPrimaryError {
	names := make([]string, 0, len(state.Federations))
	for _, f := range state.Federations {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return &NotPrimaryError{Local: state.Local, Federations: names}
}

// planAbsent removes every member but the local one, then deletes the
// federation when at most one member would remain.
func planAbsent(state *State) Plan {
	var plan Plan
	for _, m := range state.Members {
		if m.Address == state.Local {
			continue
		}
		plan.Ops = append(plan.Ops, RemoveMember{Member: m})
	}

	remaining := len(state.Members) - len(plan.Ops)
	if state.Federation != nil && remaining <= 1 {
		plan.Ops = append(plan.Ops, DeleteFederation{Federation: *state.Federation})
	}
	return plan
}

// planPresent removes observed members that are not desired and adds
// desired members that are not observed. Removals always come first.
func planPresent(desired []DesiredMember, state *State) Plan {
	var removals, additions []Operation

	if len(state.Members) <= 1 {
		// Nothing but (at most) the primary: every desired member is new
		additions = addAll(desired, nil)
	} else {
		wanted := addressSet(desired, desiredAddress)
		for _, m := range state.Members {
			if m.Address == state.Local {
				continue
			}
			if _, ok := wanted[m.Address]; !ok {
				removals = append(removals, RemoveMember{Member: m})
			}
		}
		additions = addAll(desired, addressSet(state.Members, memberAddress))
	}

	plan := Plan{Ops: removals}
	if len(additions) > 0 && !state.FederationExists() {
		plan.Ops = append(plan.Ops, CreateFederation{Name: state.Local})
	}
	plan.Ops = append(plan.Ops, additions...)
	return plan
}

// addAll schedules an addition for every desired address missing from
// existing. Repeated desired addresses are added once.
func addAll(desired []DesiredMember, existing map[string]struct{}) []Operation {
	var ops []Operation
	seen := make(map[string]struct{}, len(desired))
	for _, d := range desired {
		if _, dup := seen[d.Address]; dup {
			continue
		}
		seen[d.Address] = struct{}{}
		if _, ok := existing[d.Address]; ok {
			continue
		}
		ops = append(ops, AddMember{Member: d})
	}
	return ops
}

// FilterMembers returns the observed members matching the requested
// addresses, or all of them when none are requested. Requested addresses
// with no match are skipped.
func FilterMembers(observed []Member, requested []DesiredMember) []Member {
	if len(requested) == 0 {
		return observed
	}
	wanted := addressSet(requested, desiredAddress)
	var out []Member
	for _, m := range observed {
		if _, ok := wanted[m.Address]; ok {
			out = append(out, m)
		}
	}
	return out
}
