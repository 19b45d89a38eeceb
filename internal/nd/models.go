package nd

import "encoding/json"

// Collection is the envelope every list endpoint returns.
type Collection struct {
	Items []json.RawMessage `json:"items"`
}

// Decode unmarshals every item into a value of type T.
func Decode[T any](c *Collection) ([]T, error) {
	if c == nil {
		return nil, nil
	}
	out := make([]T, 0, len(c.Items))
	for _, raw := range c.Items {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ClusterInfo is an item of the platform cluster collection.
type ClusterInfo struct {
	Spec struct {
		Name string `json:"name"`
	} `json:"spec"`
}

// FederationSpec is the writable part of a federation.
type FederationSpec struct {
	Name string `json:"name"`
}

// FederationObject is a federation as returned by the API.
type FederationObject struct {
	Spec   FederationSpec `json:"spec"`
	Status struct {
		FederationID string `json:"federationID"`
	} `json:"status"`
}

// FederationRequest is the body of a federation create call.
type FederationRequest struct {
	Spec FederationSpec `json:"spec"`
}

// MemberSpec is the writable part of a federation member.
// Password carries the base64 encoded credential, never plaintext.
type MemberSpec struct {
	Host        string `json:"host"`
	Name        string `json:"name,omitempty"`
	UserName    string `json:"userName,omitempty"`
	Password    string `json:"password,omitempty"`
	LoginDomain string `json:"loginDomain,omitempty"`
}

// MemberObject is a federation member as returned by the API.
type MemberObject struct {
	Spec   MemberSpec `json:"spec"`
	Status struct {
		MemberID string `json:"memberID"`
		Status   string `json:"status,omitempty"`
	} `json:"status"`
}

// MemberRequest is the body of a member create call.
type MemberRequest struct {
	Spec MemberSpec `json:"spec"`
}

// loginRequest is the body of the login call.
type loginRequest struct {
	UserName   string `json:"userName"`
	UserPasswd string `json:"userPasswd"`
	Domain     string `json:"domain"`
}

// loginResponse holds both token spellings the API has used.
type loginResponse struct {
	Token    string `json:"token"`
	JWTToken string `json:"jwttoken"`
}

// errorBody is the error envelope of the API.
type errorBody struct {
	Code     int      `json:"code"`
	Message  string   `json:"message"`
	Messages []string `json:"errors"`
}
