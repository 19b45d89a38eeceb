// Package desired loads the desired member list from YAML files, Lua
// scripts and command-line specs.
package desired

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/fedsync/internal/federation"
	"github.com/dokzlo13/fedsync/internal/secret"
)

// Entry is one member as written by a user: a flat set of string fields.
// Several spellings are accepted for each field.
type Entry map[string]string

var (
	hostKeys     = []string{"host", "address", "cluster_hostname", "cluster_ip", "ip_address", "federation_member"}
	usernameKeys = []string{"username", "user", "cluster_username"}
	passwordKeys = []string{"password", "cluster_password"}
	domainKeys   = []string{"login_domain", "cluster_login_domain", "domain"}
)

var knownKeys = func() map[string]struct{} {
	known := make(map[string]struct{})
	for _, keys := range [][]string{hostKeys, usernameKeys, passwordKeys, domainKeys} {
		for _, k := range keys {
			known[k] = struct{}{}
		}
	}
	return known
}()

// Member converts the entry. index is used in error messages only.
func (e Entry) Member(index int) (federation.DesiredMember, error) {
	var unknown []string
	for k := range e {
		if _, ok := knownKeys[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return federation.DesiredMember{}, fmt.Errorf("member %d: unknown field(s) %s", index, strings.Join(unknown, ", "))
	}

	host, err := e.pick(index, hostKeys)
	if err != nil {
		return federation.DesiredMember{}, err
	}
	username, err := e.pick(index, usernameKeys)
	if err != nil {
		return federation.DesiredMember{}, err
	}
	password, err := e.pick(index, passwordKeys)
	if err != nil {
		return federation.DesiredMember{}, err
	}
	domain, err := e.pick(index, domainKeys)
	if err != nil {
		return federation.DesiredMember{}, err
	}

	return federation.DesiredMember{
		Address:     strings.TrimSpace(host),
		Username:    username,
		Password:    secret.Value(password),
		LoginDomain: domain,
	}, nil
}

// pick returns the value of the single alias set in the entry.
func (e Entry) pick(index int, keys []string) (string, error) {
	var found, value string
	for _, k := range keys {
		v, ok := e[k]
		if !ok || v == "" {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("member %d: %s and %s are mutually exclusive", index, found, k)
		}
		found, value = k, v
	}
	return value, nil
}

// Members converts a list of entries.
func Members(entries []Entry) ([]federation.DesiredMember, error) {
	out := make([]federation.DesiredMember, 0, len(entries))
	for i, e := range entries {
		m, err := e.Member(i)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Load reads desired members from a file. The format follows the
// extension: .yaml/.yml or .lua.
func Load(ctx context.Context, path string) ([]federation.DesiredMember, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read members file: %w", err)
		}
		return ParseYAML(data)
	case ".lua":
		return LoadLua(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported members file extension %q", ext)
	}
}

// ParseYAML accepts either a top-level list of entries or a mapping with
// a "clusters" or "members" list.
func ParseYAML(data []byte) ([]federation.DesiredMember, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse members: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	if doc.Kind == yaml.MappingNode {
		var wrapped struct {
			Clusters []Entry `yaml:"clusters"`
			Members  []Entry `yaml:"members"`
		}
		if err := doc.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("parse members: %w", err)
		}
		if len(wrapped.Clusters) > 0 && len(wrapped.Members) > 0 {
			return nil, fmt.Errorf("parse members: clusters and members are mutually exclusive")
		}
		return Members(append(wrapped.Clusters, wrapped.Members...))
	}

	var entries []Entry
	if err := doc.Decode(&entries); err != nil {
		return nil, fmt.Errorf("parse members: %w", err)
	}
	return Members(entries)
}

// ParseSpec parses a command-line member spec: host[,username,password[,login_domain]].
// A comma inside a value is written as \, and a backslash as \\.
func ParseSpec(spec string) (federation.DesiredMember, error) {
	parts := splitSpec(spec)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch len(parts) {
	case 1, 3, 4:
	default:
		return federation.DesiredMember{}, fmt.Errorf("invalid member %q: expected host[,username,password[,login_domain]]", redactSpec(parts))
	}

	m := federation.DesiredMember{Address: parts[0]}
	if len(parts) >= 3 {
		m.Username = parts[1]
		m.Password = secret.Value(parts[2])
	}
	if len(parts) == 4 {
		m.LoginDomain = parts[3]
	}
	return m, nil
}

// splitSpec splits on commas that are not escaped with a backslash.
func splitSpec(spec string) []string {
	var parts []string
	var cur strings.Builder
	for i := 0; i < len(spec); i++ {
		c := spec[i]
		switch {
		case c == '\\' && i+1 < len(spec) && (spec[i+1] == ',' || spec[i+1] == '\\'):
			cur.WriteByte(spec[i+1])
			i++
		case c == ',':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, cur.String())
}

// redactSpec renders a spec for an error message with the password hidden.
func redactSpec(parts []string) string {
	shown := append([]string(nil), parts...)
	if len(shown) >= 3 {
		shown[2] = secret.Redacted
	}
	return strings.Join(shown, ",")
}

// ParseSpecs parses several command-line member specs.
func ParseSpecs(specs []string) ([]federation.DesiredMember, error) {
	out := make([]federation.DesiredMember, 0, len(specs))
	for _, s := range specs {
		m, err := ParseSpec(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
