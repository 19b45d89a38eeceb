package federation

// Validate checks a request before any remote interaction.
//
//   - present needs at least one member, each with host, username and password
//   - query members only need a host
//   - absent ignores the member list
func Validate(req Request) error {
	switch req.Mode {
	case ModePresent:
		if len(req.Desired) == 0 {
			return &ValidationError{Index: -1, Field: "clusters", Reason: "at least one cluster is required when state is present"}
		}
		for i, d := range req.Desired {
			switch {
			case d.Address == "":
				return &ValidationError{Index: i, Field: "cluster_hostname", Reason: "required when state is present"}
			case d.Username == "":
				return &ValidationError{Index: i, Field: "cluster_username", Reason: "required when state is present"}
			case d.Password.IsZero():
				return &ValidationError{Index: i, Field: "cluster_password", Reason: "required when state is present"}
			}
		}
	case ModeQuery:
		for i, d := range req.Desired {
			if d.Address == "" {
				return &ValidationError{Index: i, Field: "cluster_hostname", Reason: "required when querying a specific federation member"}
			}
		}
	case ModeAbsent:
	default:
		return &ValidationError{Index: -1, Field: "state", Reason: "must be one of present, absent, query"}
	}
	return nil
}
