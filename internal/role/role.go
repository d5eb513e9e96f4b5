// Package role defines adapter roles: the extensible tokens naming a
// capability contract, and the table of contracts an adapter type must
// satisfy to be bound to a role.
package role

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/vk/rolebinder/internal/typeid"
)

// Role identifies a capability contract. The set is open: consumers may use
// any token that parses.
type Role string

// Built-in roles.
const (
	ActivationProvider Role = "activation_provider"
	NullSubstitute     Role = "null_substitute"
	StreamingSource    Role = "streaming_source"
)

var roleRegex = regexp.MustCompile(`^[a-z][a-z0-9_.-]*$`)

// Parse normalizes raw to lower case and validates it.
func Parse(raw string) (Role, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("role cannot be empty")
	}
	if !roleRegex.MatchString(s) {
		return "", fmt.Errorf("invalid role %q", raw)
	}
	return Role(s), nil
}

func (r Role) String() string { return string(r) }

// Activator is the contract of the activation_provider role.
type Activator interface {
	Activate(ctx context.Context, catalog *typeid.Catalog, adaptee typeid.ID) (any, error)
}

// Source is the contract of the streaming_source role.
type Source interface {
	Stream(ctx context.Context, value any, w io.Writer) error
}

// Configurable is implemented by adapters that accept the options declared
// next to them in module metadata.
type Configurable interface {
	Configure(options map[string]string) error
}
