package federation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dokzlo13/fedsync/internal/secret"
)

// fakeGateway is an in-memory federation API.
type fakeGateway struct {
	mu sync.Mutex

	local       string
	federations []Federation
	members     []Member
	nextID      int

	writes   []string
	payloads []MemberPayload

	// failOn makes the write whose description matches fail.
	failOn  string
	readErr error
}

func newFakeGateway(local string) *fakeGateway {
	return &fakeGateway{local: local}
}

// withFederation seeds a federation and the given member hosts.
func (g *fakeGateway) withFederation(name string, hosts ...string) *fakeGateway {
	g.federations = append(g.federations, Federation{Name: name, ID: "fed-" + name})
	for _, h := range hosts {
		g.members = append(g.members, Member{Address: h, ID: g.id("m")})
	}
	return g
}

func (g *fakeGateway) id(prefix string) string {
	g.nextID++
	return fmt.Sprintf("%s%d", prefix, g.nextID)
}

func (g *fakeGateway) fail(desc string) error {
	if g.failOn == desc {
		return errors.New("remote rejected " + desc)
	}
	return nil
}

func (g *fakeGateway) LocalIdentity(ctx context.Context) (string, error) {
	if g.readErr != nil {
		return "", g.readErr
	}
	return g.local, nil
}

func (g *fakeGateway) Federations(ctx context.Context) ([]Federation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Federation(nil), g.federations...), nil
}

func (g *fakeGateway) Members(ctx context.Context) ([]Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Member(nil), g.members...), nil
}

func (g *fakeGateway) CreateFederation(ctx context.Context, name string) (Federation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	desc := "create " + name
	if err := g.fail(desc); err != nil {
		return Federation{}, err
	}
	g.writes = append(g.writes, desc)
	f := Federation{Name: name, ID: g.id("fed")}
	g.federations = append(g.federations, f)
	// The primary joins its own federation on creation
	g.members = append(g.members, Member{Address: name, ID: g.id("m")})
	return f, nil
}

func (g *fakeGateway) DeleteFederation(ctx context.Context, f Federation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	desc := "delete " + f.Name
	if err := g.fail(desc); err != nil {
		return err
	}
	g.writes = append(g.writes, desc)
	g.federations = nil
	g.members = nil
	return nil
}

func (g *fakeGateway) AddMember(ctx context.Context, p MemberPayload) (Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	desc := "add " + p.Host
	if err := g.fail(desc); err != nil {
		return Member{}, err
	}
	g.writes = append(g.writes, desc)
	g.payloads = append(g.payloads, p)
	m := Member{Address: p.Host, ID: g.id("m")}
	g.members = append(g.members, m)
	return m, nil
}

func (g *fakeGateway) RemoveMember(ctx context.Context, m Member) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	desc := "remove " + m.Address
	if err := g.fail(desc); err != nil {
		return err
	}
	g.writes = append(g.writes, desc)
	g.members = removeAddress(g.members, m.Address)
	return nil
}

func (g *fakeGateway) addresses() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m.Address)
	}
	return out
}

func desired(hosts ...string) []DesiredMember {
	out := make([]DesiredMember, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, DesiredMember{Address: h, Username: "admin", Password: secret.Value("pw-" + h)})
	}
	return out
}

func members(hosts ...string) []Member {
	out := make([]Member, 0, len(hosts))
	for i, h := range hosts {
		out = append(out, Member{Address: h, ID: fmt.Sprintf("id-%d", i)})
	}
	return out
}

// describe renders a plan as "kind target" strings.
func describe(ops []Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Kind().String()+" "+op.Target())
	}
	return out
}

type recordingRecorder struct {
	started  []Run
	ops      []string
	finished []error
}

func (r *recordingRecorder) RunStarted(_ context.Context, run Run) {
	r.started = append(r.started, run)
}

func (r *recordingRecorder) OperationDone(_ context.Context, _ Run, index int, op Operation, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	r.ops = append(r.ops, fmt.Sprintf("%d %s %s %s", index, op.Kind(), op.Target(), status))
}

func (r *recordingRecorder) RunFinished(_ context.Context, _ Run, _ *Result, err error) {
	r.finished = append(r.finished, err)
}
