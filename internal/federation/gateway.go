package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fedsync/internal/nd"
)

// Gateway is the remote side of a reconciliation. Reads always hit the
// API; nothing is remembered between calls.
type Gateway interface {
	LocalIdentity(ctx context.Context) (string, error)
	Federations(ctx context.Context) ([]Federation, error)
	Members(ctx context.Context) ([]Member, error)

	CreateFederation(ctx context.Context, name string) (Federation, error)
	DeleteFederation(ctx context.Context, f Federation) error
	AddMember(ctx context.Context, p MemberPayload) (Member, error)
	RemoveMember(ctx context.Context, m Member) error
}

// API is the transport a NDGateway talks through. *nd.Client implements it.
type API interface {
	ReadCollection(ctx context.Context, path string) (*nd.Collection, error)
	Write(ctx context.Context, method, path string, payload any) (json.RawMessage, error)
}

// NDGateway implements Gateway on top of the dashboard API.
type NDGateway struct {
	api API
}

// NewNDGateway creates a new gateway.
func NewNDGateway(api API) *NDGateway {
	return &NDGateway{api: api}
}

// LocalIdentity returns the name of the cluster the API belongs to.
func (g *NDGateway) LocalIdentity(ctx context.Context) (string, error) {
	coll, err := g.api.ReadCollection(ctx, nd.ClusterInfoPath)
	if err != nil {
		return "", err
	}
	items, err := nd.Decode[nd.ClusterInfo](coll)
	if err != nil {
		return "", fmt.Errorf("decode cluster info: %w", err)
	}
	if len(items) == 0 || items[0].Spec.Name == "" {
		return "", errors.New("cluster info carries no cluster name")
	}
	return items[0].Spec.Name, nil
}

// Federations lists the federations. A missing collection is empty.
func (g *NDGateway) Federations(ctx context.Context) ([]Federation, error) {
	coll, err := g.api.ReadCollection(ctx, nd.FederationsPath)
	if nd.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	objs, err := nd.Decode[nd.FederationObject](coll)
	if err != nil {
		return nil, fmt.Errorf("decode federations: %w", err)
	}

	out := make([]Federation, 0, len(objs))
	for _, o := range objs {
		out = append(out, federationFromObject(o))
	}
	return out, nil
}

// Members lists the federation members. A missing collection is empty.
func (g *NDGateway) Members(ctx context.Context) ([]Member, error) {
	coll, err := g.api.ReadCollection(ctx, nd.MembersPath)
	if nd.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	objs, err := nd.Decode[nd.MemberObject](coll)
	if err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}

	out := make([]Member, 0, len(objs))
	for _, o := range objs {
		out = append(out, memberFromObject(o))
	}
	return out, nil
}

// CreateFederation creates a federation with the given name.
func (g *NDGateway) CreateFederation(ctx context.Context, name string) (Federation, error) {
	log.Info().Str("federation", name).Msg("Creating federation")

	raw, err := g.api.Write(ctx, http.MethodPost, nd.FederationsPath, nd.FederationRequest{
		Spec: nd.FederationSpec{Name: name},
	})
	if err != nil {
		return Federation{}, err
	}

	created := Federation{Name: name}
	var obj nd.FederationObject
	if len(raw) > 0 && json.Unmarshal(raw, &obj) == nil {
		created = federationFromObject(obj)
		if created.Name == "" {
			created.Name = name
		}
	}
	return created, nil
}

// DeleteFederation deletes a federation by id.
func (g *NDGateway) DeleteFederation(ctx context.Context, f Federation) error {
	if f.ID == "" {
		return fmt.Errorf("federation %q has no id", f.Name)
	}
	log.Info().Str("federation", f.Name).Str("id", f.ID).Msg("Deleting federation")

	_, err := g.api.Write(ctx, http.MethodDelete, nd.FederationPath(f.ID), nil)
	return err
}

// AddMember attaches a cluster to the federation.
func (g *NDGateway) AddMember(ctx context.Context, p MemberPayload) (Member, error) {
	log.Info().Str("member", p.Host).Str("login_domain", p.LoginDomain).Msg("Adding federation member")

	raw, err := g.api.Write(ctx, http.MethodPost, nd.MembersPath, nd.MemberRequest{Spec: nd.MemberSpec{
		Host:        p.Host,
		UserName:    p.UserName,
		Password:    p.Password,
		LoginDomain: p.LoginDomain,
	}})
	if err != nil {
		return Member{}, err
	}

	added := Member{Address: p.Host}
	var obj nd.MemberObject
	if len(raw) > 0 && json.Unmarshal(raw, &obj) == nil {
		added = memberFromObject(obj)
		if added.Address == "" {
			added.Address = p.Host
		}
	}
	return added, nil
}

// RemoveMember detaches a member by id.
func (g *NDGateway) RemoveMember(ctx context.Context, m Member) error {
	if m.ID == "" {
		return fmt.Errorf("member %q has no id", m.Address)
	}
	log.Info().Str("member", m.Address).Str("id", m.ID).Msg("Removing federation member")

	_, err := g.api.Write(ctx, http.MethodDelete, nd.MemberPath(m.ID), nil)
	return err
}

func federationFromObject(o nd.FederationObject) Federation {
	return Federation{Name: o.Spec.Name, ID: o.Status.FederationID}
}

func memberFromObject(o nd.MemberObject) Member {
	return Member{
		Address: o.Spec.Host,
		ID:      o.Status.MemberID,
		Name:    o.Spec.Name,
		Status:  o.Status.Status,
	}
}
