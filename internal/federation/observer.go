package federation

import "context"

// Observer reads the remote state a plan is computed from.
// Always fetches from the API - the API is the source of truth.
type Observer struct {
	gateway Gateway
}

// NewObserver creates a new observer.
func NewObserver(gateway Gateway) *Observer {
	return &Observer{gateway: gateway}
}

// LocalIdentity returns the local cluster name.
func (o *Observer) LocalIdentity(ctx context.Context) (string, error) {
	local, err := o.gateway.LocalIdentity(ctx)
	if err != nil {
		return "", &ObservationError{Resource: "cluster info", Err: err}
	}
	return local, nil
}

// Observe reads federations and members for the given local identity.
func (o *Observer) Observe(ctx context.Context, local string) (*State, error) {
	federations, err := o.gateway.Federations(ctx)
	if err != nil {
		return nil, &ObservationError{Resource: "federations", Err: err}
	}

	members, err := o.gateway.Members(ctx)
	if err != nil {
		return nil, &ObservationError{Resource: "members", Err: err}
	}

	state := &State{
		Local:       local,
		Federations: federations,
		Members:     members,
	}
	for i := range federations {
		if federations[i].Name == local {
			f := federations[i]
			state.Federation = &f
			break
		}
	}
	return state, nil
}

// Members re-reads the member list.
func (o *Observer) Members(ctx context.Context) ([]Member, error) {
	members, err := o.gateway.Members(ctx)
	if err != nil {
		return nil, &ObservationError{Resource: "members", Err: err}
	}
	return members, nil
}
