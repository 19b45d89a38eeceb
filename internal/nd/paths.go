package nd

// Resource paths of the management API.
const (
	LoginPath       = "/login"
	ClusterInfoPath = "/nexus/infra/api/platform/v1/clusters"
	FederationsPath = "/nexus/api/federation/v4/federations"
	MembersPath     = "/nexus/api/federation/v4/members"
)

// FederationPath returns the path of a single federation.
func FederationPath(federationID string) string {
	return FederationsPath + "/" + federationID
}

// MemberPath returns the path of a single federation member.
func MemberPath(memberID string) string {
	return MembersPath + "/" + memberID
}
