// Package federation reconciles the member list of a multi-cluster federation.
//
// A reconciliation reads the remote truth (local identity, federations,
// members), computes an ordered plan of structural operations and applies it
// one call at a time. Nothing is cached between calls.
package federation

import (
	"fmt"
	"strings"

	"github.com/dokzlo13/fedsync/internal/secret"
)

// DefaultLoginDomain is used when a desired member names no login domain.
const DefaultLoginDomain = "DefaultAuth"

// Mode selects what a reconciliation does.
type Mode string

const (
	ModePresent Mode = "present"
	ModeAbsent  Mode = "absent"
	ModeQuery   Mode = "query"
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePresent, ModeAbsent, ModeQuery:
		return m, nil
	case "":
		return ModePresent, nil
	default:
		return "", &ValidationError{Index: -1, Field: "state", Reason: fmt.Sprintf("unknown state %q", s)}
	}
}

// Mutating reports whether the mode may write to the remote API.
func (m Mode) Mutating() bool {
	return m == ModePresent || m == ModeAbsent
}

// DesiredMember is a cluster the caller wants in the federation.
type DesiredMember struct {
	Address     string       `json:"host" yaml:"host"`
	Username    string       `json:"username,omitempty" yaml:"username"`
	Password    secret.Value `json:"password,omitempty" yaml:"password"`
	LoginDomain string       `json:"login_domain,omitempty" yaml:"login_domain"`
}

// Domain returns the login domain, defaulting to DefaultLoginDomain.
func (d DesiredMember) Domain() string {
	if d.LoginDomain == "" {
		return DefaultLoginDomain
	}
	return d.LoginDomain
}

// Member is a federation member as observed on the remote side.
type Member struct {
	Address string `json:"host"`
	ID      string `json:"member_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Federation is the grouping object members attach to.
type Federation struct {
	Name string `json:"name"`
	ID   string `json:"federation_id,omitempty"`
}

// State is the observed remote state for one reconciliation.
type State struct {
	Local       string
	Federations []Federation
	// Federation is the entry named after the local cluster, nil when the
	// local cluster owns no federation.
	Federation *Federation
	Members    []Member
}

// FederationExists reports whether any federation was observed.
func (s *State) FederationExists() bool {
	return len(s.Federations) > 0
}

// IsPrimary reports whether the local cluster is the primary of the
// observed federation.
func (s *State) IsPrimary() bool {
	return s.Federation != nil
}

// Request is one reconciliation call.
type Request struct {
	Desired []DesiredMember
	Mode    Mode
	DryRun  bool
}

// addressSet indexes members by address.
func addressSet[T any](items []T, address func(T) string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[address(item)] = struct{}{}
	}
	return set
}

func memberAddress(m Member) string         { return m.Address }
func desiredAddress(d DesiredMember) string { return d.Address }
