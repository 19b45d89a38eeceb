package federation

import "github.com/dokzlo13/fedsync/internal/secret"

// MemberPayload is the request body for attaching a member. Password holds
// the base64 encoded credential and is only ever sent on the wire.
type MemberPayload struct {
	Host        string `json:"host"`
	UserName    string `json:"user_name"`
	Password    string `json:"password"`
	LoginDomain string `json:"login_domain"`
}

// NewMemberPayload builds the payload for a desired member.
func NewMemberPayload(d DesiredMember) MemberPayload {
	return MemberPayload{
		Host:        d.Address,
		UserName:    d.Username,
		Password:    d.Password.Base64(),
		LoginDomain: d.Domain(),
	}
}

// Sanitized returns a copy safe to report or log.
func (p MemberPayload) Sanitized() MemberPayload {
	p.Password = secret.Redacted
	return p
}

// FederationPayload is the request body for creating a federation.
type FederationPayload struct {
	Name string `json:"name"`
}

// Proposed groups a plan by kind for reporting. Member payloads are
// always sanitized.
type Proposed struct {
	CreateFederation []FederationPayload `json:"create_federation,omitempty"`
	AddMember        []MemberPayload     `json:"add_member,omitempty"`
	RemoveMember     []Member            `json:"remove_member,omitempty"`
	DeleteFederation []Federation        `json:"delete_federation,omitempty"`
}

// Empty reports whether nothing was proposed.
func (p Proposed) Empty() bool {
	return len(p.CreateFederation) == 0 && len(p.AddMember) == 0 &&
		len(p.RemoveMember) == 0 && len(p.DeleteFederation) == 0
}

// GroupByKind projects operations into a Proposed report.
func GroupByKind(ops []Operation) Proposed {
	var p Proposed
	for _, op := range ops {
		switch o := op.(type) {
		case CreateFederation:
			p.CreateFederation = append(p.CreateFederation, FederationPayload{Name: o.Name})
		case AddMember:
			p.AddMember = append(p.AddMember, NewMemberPayload(o.Member).Sanitized())
		case RemoveMember:
			p.RemoveMember = append(p.RemoveMember, o.Member)
		case DeleteFederation:
			p.DeleteFederation = append(p.DeleteFederation, o.Federation)
		}
	}
	return p
}

// Simulate returns the member list that applying ops to members would
// produce. Added members carry only their address.
func Simulate(members []Member, ops []Operation) []Member {
	out := make([]Member, 0, len(members))
	out = append(out, members...)

	for _, op := range ops {
		switch o := op.(type) {
		case RemoveMember:
			out = removeAddress(out, o.Member.Address)
		case AddMember:
			out = append(out, Member{Address: o.Member.Address})
		case DeleteFederation:
			out = out[:0]
		}
	}
	return out
}

func removeAddress(members []Member, address string) []Member {
	kept := members[:0]
	for _, m := range members {
		if m.Address != address {
			kept = append(kept, m)
		}
	}
	return kept
}
