// Package secret holds credential values that must never be printed.
package secret

import (
	"encoding/base64"

	"gopkg.in/yaml.v3"
)

// Redacted replaces a secret wherever it would otherwise be rendered.
const Redacted = "********"

// Value is a plaintext credential. fmt, JSON, YAML and zerolog all render
// it as Redacted. Only Reveal and Base64 give access to the content.
type Value string

// Reveal returns the plaintext.
func (v Value) Reveal() string {
	return string(v)
}

// Base64 returns the standard base64 encoding of the plaintext, which is the
// form the management API expects for member credentials.
func (v Value) Base64() string {
	return base64.StdEncoding.EncodeToString([]byte(v))
}

// IsZero reports whether no secret was supplied.
func (v Value) IsZero() bool {
	return v == ""
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v == "" {
		return ""
	}
	return Redacted
}

// GoString keeps %#v from leaking the plaintext.
func (v Value) GoString() string {
	return v.String()
}

// MarshalText implements encoding.TextMarshaler (used by encoding/json).
func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText accepts the plaintext.
func (v *Value) UnmarshalText(text []byte) error {
	*v = Value(text)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (interface{}, error) {
	return v.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	*v = Value(s)
	return nil
}
